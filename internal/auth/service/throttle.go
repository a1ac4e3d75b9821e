package service

import (
	"time"

	"github.com/aussiebroadwan/passage/internal/auth/domain"
)

// Throttle is the login attempt limiter. It only reads and mutates the
// attempt fields on the user; persisting them is up to the caller.
//
// A successful login leaves the counter alone. Only an elapsed window
// resets it.
type Throttle struct {
	MaxAttempts int
	Window      time.Duration
}

// Exceeded reports whether the user is locked out at now.
func (t Throttle) Exceeded(u domain.User, now time.Time) bool {
	return now.Before(u.LoginAttemptsExpiry) && u.LoginAttempts >= t.MaxAttempts
}

// WindowExpired reports whether the current attempt window has closed.
func WindowExpired(u domain.User, now time.Time) bool {
	return !now.Before(u.LoginAttemptsExpiry)
}

// RecordFailure counts one failed password check and re-arms the window.
// A failure after the window has closed starts again from one.
func (t Throttle) RecordFailure(u *domain.User, now time.Time) {
	if WindowExpired(*u, now) {
		u.LoginAttempts = 0
	}
	u.LoginAttempts++
	u.LoginAttemptsExpiry = now.Add(t.Window)
}
