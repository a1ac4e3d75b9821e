package service

import (
	"sync"

	"github.com/aussiebroadwan/passage/internal/auth/domain"
	"github.com/aussiebroadwan/passage/pkg/cryptox"
)

// Credentials sets and checks user passwords. Only the argon2id hash is
// ever stored on the user.
type Credentials struct {
	Hasher *cryptox.PasswordHasher

	dummyOnce sync.Once
	dummyHash string
}

// SetPassword replaces the user's password hash with one derived under a
// fresh salt.
func (c *Credentials) SetPassword(u *domain.User, raw string) error {
	hash, err := c.Hasher.HashPassword(raw)
	if err != nil {
		return hashFailed("set password", err)
	}
	u.PasswordHash = hash
	return nil
}

// CheckPassword is false when no hash has been set.
func (c *Credentials) CheckPassword(u domain.User, raw string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return c.Hasher.VerifyPassword(raw, u.PasswordHash) == nil
}

// Burn spends the same work as CheckPassword against a throwaway hash so
// that unknown emails cost as much as wrong passwords.
func (c *Credentials) Burn(raw string) {
	c.dummyOnce.Do(func() {
		filler, err := cryptox.GenerateToken(cryptox.TokenSize128)
		if err != nil {
			return
		}
		c.dummyHash, _ = c.Hasher.HashPassword(filler)
	})
	if c.dummyHash != "" {
		_ = c.Hasher.VerifyPassword(raw, c.dummyHash)
	}
}
