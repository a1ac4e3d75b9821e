package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionTTL is how long a bearer token stays valid after login.
const DefaultSessionTTL = 48 * time.Hour

// Claims are the bearer token claims. SID carries the raw session nonce;
// only its salted hash is kept server-side.
type Claims struct {
	jwt.RegisteredClaims

	SID string `json:"sid,omitempty"`
}

// NewSessionClaims builds the claims for a freshly created session.
func NewSessionClaims(subject, sid string, ttl time.Duration, issuer string, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		SID: sid,
	}
}

// ValidateRequired checks that subject, expiry and session id are present.
func (c *Claims) ValidateRequired() error {
	if c.Subject == "" || c.SID == "" || c.ExpiresAt == nil {
		return ErrMissingClaim
	}
	return nil
}

// ValidateIssuer is a no-op for an empty expected issuer.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected != "" && c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateExpiryAt reports ErrExpired once now has reached exp.
func (c *Claims) ValidateExpiryAt(now time.Time) error {
	if c.ExpiresAt != nil && !now.Before(c.ExpiresAt.Time) {
		return ErrExpired
	}
	return nil
}
