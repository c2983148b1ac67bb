package model

import (
	"strings"
	"time"
)

// Role is the single authorization claim carried by every access token.
// Downstream services trust the signed claim and never look the role up
// again, so the set of values is closed.
type Role string

const (
	RoleSuperAdmin  Role = "SuperAdmin"
	RoleClinicAdmin Role = "ClinicAdmin"
	RoleDoctor      Role = "Doctor"
	RolePatient     Role = "Patient"
)

// Roles lists every valid role in declaration order.
var Roles = []Role{RoleSuperAdmin, RoleClinicAdmin, RoleDoctor, RolePatient}

// ParseRole maps a client supplied role name onto the canonical Role.
// Matching ignores case and surrounding whitespace.
func ParseRole(s string) (Role, bool) {
	s = strings.TrimSpace(s)
	for _, r := range Roles {
		if strings.EqualFold(s, string(r)) {
			return r, true
		}
	}
	return "", false
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// IsAdmin reports whether r may manage other users.
func (r Role) IsAdmin() bool {
	return r == RoleSuperAdmin || r == RoleClinicAdmin
}

// User represents one identity as stored in the `users` table.  The
// refresh and reset token slots hold SHA‑256 digests of the opaque tokens;
// the raw values never reach storage.
//
// Fields:
//
//	ID                    – ULID primary key, immutable.
//	FullName              – display name.
//	Email                 – unique, case-sensitive login identifier.
//	PasswordHash          – bcrypt hash.
//	Role                  – authorization role.
//	RefreshTokenHash      – digest of the single live refresh token ("" when none).
//	RefreshTokenExpiresAt – refresh token is invalid once now >= this value.
//	ResetTokenHash        – digest of the single live reset token ("" when none).
//	ResetTokenExpiresAt   – reset token is invalid once now >= this value.
//	CreatedAt             – timestamp of creation.
//	UpdatedAt             – timestamp of last update.
type User struct {
	ID                    string     // users.id
	FullName              string     // users.full_name
	Email                 string     // users.email
	PasswordHash          string     // users.password_hash
	Role                  Role       // users.role
	RefreshTokenHash      string     // users.refresh_token_hash (nullable)
	RefreshTokenExpiresAt *time.Time // users.refresh_token_expires_at (nullable)
	ResetTokenHash        string     // users.reset_token_hash (nullable)
	ResetTokenExpiresAt   *time.Time // users.reset_token_expires_at (nullable)
	CreatedAt             time.Time  // users.created_at
	UpdatedAt             time.Time  // users.updated_at
}

// HasLiveRefreshToken reports whether the refresh slot holds a token that
// has not expired at now.
func (u *User) HasLiveRefreshToken(now time.Time) bool {
	return u.RefreshTokenHash != "" && u.RefreshTokenExpiresAt != nil && now.Before(*u.RefreshTokenExpiresAt)
}

// HasLiveResetToken reports whether the reset slot holds a token that has
// not expired at now.
func (u *User) HasLiveResetToken(now time.Time) bool {
	return u.ResetTokenHash != "" && u.ResetTokenExpiresAt != nil && now.Before(*u.ResetTokenExpiresAt)
}
