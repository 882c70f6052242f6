package auth

import (
	"time"
)

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleStaff is a regular account: it can operate the service desk but
	// cannot manage the system.
	RoleStaff Role = "staff"

	// RoleAdmin is the privileged account. The bootstrap account is always
	// an admin.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of valid user roles.
var ValidRoles = []Role{RoleStaff, RoleAdmin}

// IsValidRole returns true if the role is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User represents an account as seen by the session core. Users are owned by
// the accounts subsystem; this package only reads them (and creates the
// bootstrap admin).
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"` // never serialised
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RefreshToken is a stored refresh token record. Only the SHA-256 hash of the
// raw token is kept.
type RefreshToken struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	TokenHash  string     `json:"-"` // never serialised
	DeviceInfo string     `json:"deviceInfo,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty"`
}

// IsActive reports whether the record can still be exchanged at the given time.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}

// Identity is the resolved caller of a request. It is produced once per
// request from a verified access token and passed down through the context.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Session is the result of a successful Login or Refresh. RefreshToken holds
// the raw token and is the only place it ever appears.
type Session struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	ExpiresIn        int       `json:"expiresIn"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
	User             *User     `json:"user"`
}

// LogoutRequest selects what Logout revokes.
type LogoutRequest struct {
	RefreshToken string
	All          bool
}

// LogoutResult reports the outcome of Logout.
type LogoutResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Revoked int64  `json:"revoked"`
}
