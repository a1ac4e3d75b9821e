package service

import (
	"context"

	"github.com/aussiebroadwan/passage/internal/auth/domain"
	"github.com/aussiebroadwan/passage/internal/auth/store"
	"github.com/aussiebroadwan/passage/pkg/cryptox"
)

// SessionRegistry tracks one salted nonce hash per signed-in device.
// Additions and removals go through the store's atomic set operations, so
// concurrent logins for the same user never drop each other's nonce.
type SessionRegistry struct {
	Store   store.Store
	Secrets *cryptox.SecretHasher
}

// GenerateNonce records a new session for the user and returns the raw
// nonce. Only its hash is persisted.
func (r *SessionRegistry) GenerateNonce(ctx context.Context, userID string) (string, error) {
	raw, hash, err := r.Secrets.Issue()
	if err != nil {
		return "", hashFailed("issue session nonce", err)
	}
	if err := r.Store.Users().AddSessionNonce(ctx, userID, hash); err != nil {
		return "", err
	}
	return raw, nil
}

// FindIndex returns the position of the hash matching nonce in the user's
// session set, or -1. Every entry is compared so the cost does not depend
// on where the match is.
func (r *SessionRegistry) FindIndex(u domain.User, nonce string) int {
	found := -1
	for i, hash := range u.SessionNonces {
		if r.Secrets.Check(nonce, hash) && found < 0 {
			found = i
		}
	}
	return found
}

// Remove ends the single session identified by nonce. It reports whether a
// session matched.
func (r *SessionRegistry) Remove(ctx context.Context, u domain.User, nonce string) (bool, error) {
	i := r.FindIndex(u, nonce)
	if i < 0 {
		return false, nil
	}
	if err := r.Store.Users().RemoveSessionNonce(ctx, u.ID, u.SessionNonces[i]); err != nil {
		return false, storeFailed("remove session nonce", err)
	}
	return true, nil
}

// RemoveAll ends every session for the user.
func (r *SessionRegistry) RemoveAll(ctx context.Context, userID string) error {
	if err := r.Store.Users().ClearSessionNonces(ctx, userID); err != nil {
		return storeFailed("clear session nonces", err)
	}
	return nil
}
