package models

import "time"

// Session maps an opaque session id to the user it authenticates. Its expiry
// is independent of any token expiry on the user.
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}
