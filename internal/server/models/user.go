// Package models defines server-side data models.
package models

import "time"

// Role is the account type. It decides the verification rule at creation.
type Role string

const (
	RolePilgrim   Role = "pilgrim"
	RoleOperator  Role = "operator"
	RoleMonastery Role = "monastery"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePilgrim, RoleOperator, RoleMonastery, RoleAdmin:
		return true
	}
	return false
}

// VirtualAdminID identifies the administrator that lives only in session
// state. No repository ever stores a row with this id.
const VirtualAdminID int64 = 9999

// TokenState is a token together with its expiry. The zero value means no
// token is set; it is stored as a NULL pair.
type TokenState struct {
	Token     string
	ExpiresAt time.Time
}

// IsZero reports whether no token is set.
func (t TokenState) IsZero() bool {
	return t.Token == ""
}

// LiveAt reports whether the token is set and now is strictly before expiry.
func (t TokenState) LiveAt(now time.Time) bool {
	return !t.IsZero() && now.Before(t.ExpiresAt)
}

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	Verified     bool

	Verification TokenState
	Reset        TokenState
	TwoFactor    TokenState

	FullName  string
	Phone     string
	Bio       string
	AvatarURL string

	CreatedAt time.Time
}

// Clone returns a copy that shares no memory with u.
func (u *User) Clone() *User {
	c := *u
	return &c
}

// UserPatch is a partial update. Nil fields are left untouched. A non-nil
// pointer to a zero TokenState clears that token pair.
type UserPatch struct {
	Username     *string
	Email        *string
	PasswordHash *string
	Role         *Role
	Verified     *bool

	Verification *TokenState
	Reset        *TokenState
	TwoFactor    *TokenState

	FullName  *string
	Phone     *string
	Bio       *string
	AvatarURL *string
}

// Apply merges p over u in place.
func (p UserPatch) Apply(u *User) {
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Verified != nil {
		u.Verified = *p.Verified
	}
	if p.Verification != nil {
		u.Verification = *p.Verification
	}
	if p.Reset != nil {
		u.Reset = *p.Reset
	}
	if p.TwoFactor != nil {
		u.TwoFactor = *p.TwoFactor
	}
	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	if p.AvatarURL != nil {
		u.AvatarURL = *p.AvatarURL
	}
}

// Merge overlays the non-nil fields of other onto p.
func (p UserPatch) Merge(other UserPatch) UserPatch {
	out := p
	if other.Username != nil {
		out.Username = other.Username
	}
	if other.Email != nil {
		out.Email = other.Email
	}
	if other.PasswordHash != nil {
		out.PasswordHash = other.PasswordHash
	}
	if other.Role != nil {
		out.Role = other.Role
	}
	if other.Verified != nil {
		out.Verified = other.Verified
	}
	if other.Verification != nil {
		out.Verification = other.Verification
	}
	if other.Reset != nil {
		out.Reset = other.Reset
	}
	if other.TwoFactor != nil {
		out.TwoFactor = other.TwoFactor
	}
	if other.FullName != nil {
		out.FullName = other.FullName
	}
	if other.Phone != nil {
		out.Phone = other.Phone
	}
	if other.Bio != nil {
		out.Bio = other.Bio
	}
	if other.AvatarURL != nil {
		out.AvatarURL = other.AvatarURL
	}
	return out
}

// Ptr returns a pointer to v. It keeps patch literals short.
func Ptr[T any](v T) *T {
	return &v
}
