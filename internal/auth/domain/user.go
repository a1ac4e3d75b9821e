package domain

import (
	"strings"
	"time"
)

// User is a registered account.
//
// While Verified is false the three verification fields are populated;
// once Verified flips to true they are cleared and never set again.
type User struct {
	ID           string
	EmailAddress string
	PasswordHash string // argon2id PHC string

	LoginAttempts       int
	LoginAttemptsExpiry time.Time

	// SessionNonces holds one salted hash per active device session.
	SessionNonces []string

	Verified             bool
	VerificationSlugHash string
	VerificationIPHash   string
	VerificationExpiry   *time.Time

	// Version is bumped by the store on every conditional update.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeEmail is the canonical form used for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MarkVerified performs the one-way unverified -> verified transition.
func (u *User) MarkVerified() {
	u.Verified = true
	u.VerificationSlugHash = ""
	u.VerificationIPHash = ""
	u.VerificationExpiry = nil
}

// VerificationLapsed reports whether an unverified account has outlived its
// verification window and is due for purging.
func (u *User) VerificationLapsed(now time.Time) bool {
	return !u.Verified && u.VerificationExpiry != nil && !now.Before(*u.VerificationExpiry)
}
