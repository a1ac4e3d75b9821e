package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/aussiebroadwan/passage/internal/auth/domain"
	"github.com/aussiebroadwan/passage/internal/auth/store"
	"github.com/aussiebroadwan/passage/pkg/errutil"
	"github.com/aussiebroadwan/passage/pkg/jwtx"
	"github.com/aussiebroadwan/passage/pkg/slogx"
)

// TokenService issues and validates bearer tokens. A token carries the raw
// session nonce; it stays valid only while the nonce's hash is still in the
// user's session set.
type TokenService struct {
	Store    store.Store
	Sessions *SessionRegistry
	Signer   jwtx.Signer
	Verifier jwtx.Verifier
	Issuer   string
	TTL      time.Duration
	Now      func() time.Time
}

// Issue opens a new session for the user and signs a token for it.
func (s *TokenService) Issue(ctx context.Context, userID string) (domain.Login, error) {
	nonce, err := s.Sessions.GenerateNonce(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Login{}, ErrNotFound
	}
	if err != nil {
		return domain.Login{}, storeFailed("add session nonce", err)
	}

	claims := jwtx.NewSessionClaims(userID, nonce, s.TTL, s.Issuer, s.Now())
	token, err := s.Signer.Sign(claims)
	if err != nil {
		// Nobody can present this nonce; drop it rather than leave it to
		// accumulate.
		u, getErr := s.Store.Users().GetUserByID(ctx, userID)
		if getErr == nil {
			if _, rmErr := s.Sessions.Remove(ctx, u, nonce); rmErr != nil {
				errutil.LogError(slogx.FromContext(ctx), "failed to drop unsigned session", rmErr)
			}
		}
		return domain.Login{}, oops.Code(CodeTokenSignFailed).With("alg", s.Signer.Alg()).Wrap(err)
	}

	return domain.Login{
		UserID:    userID,
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Validate resolves a bearer token to its live session.
//
// Checks run in order: signature and structure, required claims, expiry,
// then the user and session lookup. An expired token also revokes its
// session so it can never be replayed.
func (s *TokenService) Validate(ctx context.Context, token string) (domain.Session, error) {
	l := slogx.FromContext(ctx)

	claims, err := s.Verifier.Verify(token)
	if err != nil {
		l.Debug("bearer token rejected", slog.String("error", err.Error()))
		return domain.Session{}, ErrNotLoggedIn
	}
	if err := claims.ValidateRequired(); err != nil {
		l.Debug("bearer token missing claims")
		return domain.Session{}, ErrNotLoggedIn
	}

	if err := claims.ValidateExpiryAt(s.Now()); err != nil {
		return domain.Session{}, s.expire(ctx, claims)
	}

	u, err := s.Store.Users().GetUserByID(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Session{}, ErrNotLoggedIn
	}
	if err != nil {
		return domain.Session{}, storeFailed("get user", err)
	}
	if !u.Verified {
		return domain.Session{}, ErrNotLoggedIn
	}
	if s.Sessions.FindIndex(u, claims.SID) < 0 {
		return domain.Session{}, ErrNotLoggedIn
	}

	return domain.Session{
		UserID:    u.ID,
		SessionID: claims.SID,
		User:      u,
	}, nil
}

// expire removes the session named by an expired token. A missing user is
// reported as such rather than as an authentication failure.
func (s *TokenService) expire(ctx context.Context, claims jwtx.Claims) error {
	u, err := s.Store.Users().GetUserByID(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return storeFailed("get user", err)
	}

	removed, err := s.Sessions.Remove(ctx, u, claims.SID)
	if err != nil {
		return err
	}
	if removed {
		slogx.FromContext(ctx).Info("expired session revoked", slog.String("user_id", u.ID))
	}
	return ErrLoginExpired
}
