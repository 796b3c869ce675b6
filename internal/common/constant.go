package common

// SessionCookieName is the cookie that carries the signed session token.
const SessionCookieName = "pilgrim_session"

// GenericLoginFailure is returned for every rejected login, whatever the cause.
const GenericLoginFailure = "Invalid username or password"

// GenericResetNotice is the forgot-password answer, identical for known and
// unknown addresses.
const GenericResetNotice = "If an account with that email exists, a password reset link has been sent"
