package domain

import "time"

// Session is the result of validating a bearer token.
type Session struct {
	UserID    string
	SessionID string // raw nonce carried by the token
	User      User
}

// Login is returned by a successful password login.
type Login struct {
	UserID    string
	Token     string
	ExpiresAt time.Time
}
