package domain

import "time"

// ResetState is the position of a PasswordResetToken in its lifecycle.
// Transitions only move forward: Requested -> Authenticated -> Spent.
type ResetState int

const (
	ResetRequested ResetState = iota + 1
	ResetAuthenticated
	ResetSpent
)

func (s ResetState) String() string {
	switch s {
	case ResetRequested:
		return "requested"
	case ResetAuthenticated:
		return "authenticated"
	case ResetSpent:
		return "spent"
	default:
		return "unknown"
	}
}

// PasswordResetToken is keyed by email; at most one exists per address.
type PasswordResetToken struct {
	EmailAddress  string
	Authenticated bool
	AuthSlugHash  string // cleared once authenticated
	Spent         bool
	AuthExpiry    time.Time

	Version   int64
	CreatedAt time.Time
}

// State derives the lifecycle state from the flags.
func (t *PasswordResetToken) State() ResetState {
	switch {
	case t.Spent:
		return ResetSpent
	case t.Authenticated:
		return ResetAuthenticated
	default:
		return ResetRequested
	}
}

// Expired reports whether the record has outlived its window. Expired
// records are treated as absent everywhere.
func (t *PasswordResetToken) Expired(now time.Time) bool {
	return !now.Before(t.AuthExpiry)
}
