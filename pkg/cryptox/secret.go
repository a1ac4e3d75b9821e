package cryptox

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultSecretCost is the bcrypt cost used for session nonces and one-time
// slugs. The inputs are high-entropy so a lower cost than a password hash
// is acceptable, and nonce lookups run one comparison per active session.
const DefaultSecretCost = 8

// SecretHasher issues random secrets and stores only their salted hashes.
type SecretHasher struct {
	Cost int
	Size int // bytes of entropy per issued secret
}

// NewSecretHasher returns a hasher issuing 256-bit secrets at the given
// bcrypt cost. A cost outside bcrypt's range uses DefaultSecretCost.
func NewSecretHasher(cost int) *SecretHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultSecretCost
	}
	return &SecretHasher{Cost: cost, Size: TokenSize256}
}

// Issue draws a fresh random secret and returns it with its salted hash.
// The raw value must be handed to its recipient and then discarded.
func (s *SecretHasher) Issue() (raw, hash string, err error) {
	raw, err = GenerateToken(s.Size)
	if err != nil {
		return "", "", err
	}
	hash, err = s.Hash(raw)
	if err != nil {
		return "", "", err
	}
	return raw, hash, nil
}

// Hash salts and hashes an arbitrary value such as a requester IP.
func (s *SecretHasher) Hash(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("cryptox: refusing to hash empty secret")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(raw), s.Cost)
	if err != nil {
		return "", fmt.Errorf("cryptox: hash secret: %w", err)
	}
	return string(b), nil
}

// Check reports whether raw matches hash. The comparison is constant time
// in the content of the secret; an empty hash never matches.
func (s *SecretHasher) Check(raw, hash string) bool {
	if raw == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}
