package users

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// RoleType represents a user's platform role, embedded in issued tokens.
type RoleType string

const (
	RoleMember    RoleType = "member"
	RoleModerator RoleType = "moderator"
	RoleAdmin     RoleType = "admin"
)

// User is the durable credential record consumed by the session core.
// Posts, communities, referrals and the rest of the platform keep their own
// user projections; this one carries only what login decisions need.
type User struct {
	ID                  string     `json:"id,omitempty"`
	Email               string     `json:"email,omitempty"`
	PasswordHash        string     `json:"-"` // never serialize
	Role                RoleType   `json:"role,omitempty"`
	Active              bool       `json:"active,omitempty"` // deactivated accounts may not log in
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at,omitempty"`
}

// Locked reports whether the account is locked out as of now.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
