package service

import (
	"time"

	"github.com/aussiebroadwan/passage/pkg/jwtx"
)

// Config carries every tunable the engine reads. It is passed in at
// construction; nothing in this package reads the environment.
type Config struct {
	// Issuer is stamped into and required on bearer tokens.
	Issuer string

	// MaxLoginAttempts failed logins inside LockoutWindow lock the account
	// until the window elapses.
	MaxLoginAttempts int
	LockoutWindow    time.Duration

	TokenTTL        time.Duration
	VerificationTTL time.Duration
	ResetTTL        time.Duration

	// RevokeSessionsOnReset logs every device out after a password reset.
	RevokeSessionsOnReset bool

	// ConflictRetries bounds how often an optimistic write is replayed
	// after losing a race, starting at ConflictBackoff.
	ConflictRetries uint64
	ConflictBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		Issuer:                "passage",
		MaxLoginAttempts:      5,
		LockoutWindow:         5 * time.Minute,
		TokenTTL:              jwtx.DefaultSessionTTL,
		VerificationTTL:       24 * time.Hour,
		ResetTTL:              time.Hour,
		RevokeSessionsOnReset: true,
		ConflictRetries:       5,
		ConflictBackoff:       5 * time.Millisecond,
	}
}

// withDefaults fills zero numeric fields from DefaultConfig. Booleans are
// taken as given.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Issuer == "" {
		c.Issuer = d.Issuer
	}
	if c.MaxLoginAttempts <= 0 {
		c.MaxLoginAttempts = d.MaxLoginAttempts
	}
	if c.LockoutWindow <= 0 {
		c.LockoutWindow = d.LockoutWindow
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = d.TokenTTL
	}
	if c.VerificationTTL <= 0 {
		c.VerificationTTL = d.VerificationTTL
	}
	if c.ResetTTL <= 0 {
		c.ResetTTL = d.ResetTTL
	}
	if c.ConflictRetries == 0 {
		c.ConflictRetries = d.ConflictRetries
	}
	if c.ConflictBackoff <= 0 {
		c.ConflictBackoff = d.ConflictBackoff
	}
	return c
}
