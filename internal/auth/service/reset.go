package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/aussiebroadwan/passage/internal/auth/domain"
	"github.com/aussiebroadwan/passage/internal/auth/store"
	"github.com/aussiebroadwan/passage/pkg/cryptox"
	"github.com/aussiebroadwan/passage/pkg/errutil"
	"github.com/aussiebroadwan/passage/pkg/slogx"
)

// PasswordResetService drives a reset token through
// Requested -> Authenticated -> Spent. Asking for a step the token is not
// ready for reports ErrNotFound, the same as no token at all.
type PasswordResetService struct {
	Store       store.Store
	Credentials *Credentials
	Secrets     *cryptox.SecretHasher
	Sessions    *SessionRegistry
	Mailer      Mailer
	Config      Config
	Metrics     *Metrics
	Now         func() time.Time
}

// Request opens a reset for a verified account and mails the slug. If the
// mail cannot be sent the token is deleted again.
func (s *PasswordResetService) Request(ctx context.Context, email string) (err error) {
	defer func() { s.Metrics.reset("request", err) }()
	l := slogx.FromContext(ctx)

	email = domain.NormalizeEmail(email)
	if email == "" {
		return ValidationError(map[string]string{"email": "required"})
	}

	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return storeFailed("get user", err)
	}
	if !u.Verified {
		return ErrNotFound
	}

	raw, hash, err := s.Secrets.Issue()
	if err != nil {
		return hashFailed("issue reset slug", err)
	}
	tok := domain.PasswordResetToken{
		EmailAddress: email,
		AuthSlugHash: hash,
		AuthExpiry:   s.Now().Add(s.Config.ResetTTL).Truncate(time.Millisecond),
	}
	if err := s.Store.ResetTokens().CreateResetToken(ctx, &tok); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return ErrResetPending
		}
		return storeFailed("create reset token", err)
	}

	if err := s.Mailer.SendResetEmail(ctx, email, raw); err != nil {
		if delErr := s.Store.ResetTokens().DeleteResetToken(ctx, email); delErr != nil {
			errutil.LogError(l, "failed to roll back reset request", delErr)
		}
		return oops.Code(CodeMailDeliveryFailed).With("user_id", u.ID).Wrap(err)
	}

	l.Info("password reset requested", slog.String("user_id", u.ID))
	return nil
}

// Authenticate proves possession of the mailed slug. The slug hash is
// cleared on success so the link cannot be used twice.
func (s *PasswordResetService) Authenticate(ctx context.Context, email, slug string) (err error) {
	defer func() { s.Metrics.reset("authenticate", err) }()

	email = domain.NormalizeEmail(email)
	fields := map[string]string{}
	if email == "" {
		fields["email"] = "required"
	}
	if slug == "" {
		fields["slug"] = "required"
	}
	if len(fields) > 0 {
		return ValidationError(fields)
	}

	return withConflictRetry(ctx, s.Config, s.Metrics, "reset_authenticate", func(ctx context.Context) error {
		tok, err := s.load(ctx, email, domain.ResetRequested)
		if err != nil {
			return err
		}
		if !s.Secrets.Check(slug, tok.AuthSlugHash) {
			return ErrIncorrect
		}

		tok.Authenticated = true
		tok.AuthSlugHash = ""
		return s.update(ctx, &tok)
	})
}

// ChangePassword spends an authenticated token and sets the new password.
// If the user cannot be updated the token is returned to Authenticated.
func (s *PasswordResetService) ChangePassword(ctx context.Context, email, newPassword string) (err error) {
	defer func() { s.Metrics.reset("change_password", err) }()
	l := slogx.FromContext(ctx)

	email = domain.NormalizeEmail(email)
	fields := map[string]string{}
	if email == "" {
		fields["email"] = "required"
	}
	if newPassword == "" {
		fields["password"] = "required"
	}
	if len(fields) > 0 {
		return ValidationError(fields)
	}

	var spent domain.PasswordResetToken
	err = withConflictRetry(ctx, s.Config, s.Metrics, "reset_spend", func(ctx context.Context) error {
		tok, err := s.load(ctx, email, domain.ResetAuthenticated)
		if err != nil {
			return err
		}
		tok.Spent = true
		if err := s.update(ctx, &tok); err != nil {
			return err
		}
		spent = tok
		return nil
	})
	if err != nil {
		return err
	}

	var userID string
	err = withConflictRetry(ctx, s.Config, s.Metrics, "reset_set_password", func(ctx context.Context) error {
		u, err := s.Store.Users().GetUserByEmail(ctx, email)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return storeFailed("get user", err)
		}
		if err := s.Credentials.SetPassword(&u, newPassword); err != nil {
			return err
		}
		if err := s.Store.Users().UpdateUser(ctx, &u); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return err
			}
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return storeFailed("update user", err)
		}
		userID = u.ID
		return nil
	})
	if err != nil {
		s.unspend(ctx, spent)
		return err
	}

	if s.Config.RevokeSessionsOnReset {
		if err := s.Sessions.RemoveAll(ctx, userID); err != nil {
			errutil.LogError(l, "failed to revoke sessions after reset", err)
		}
	}

	l.Info("password changed by reset", slog.String("user_id", userID))
	return nil
}

// load returns the live token for email if it is in state want.
func (s *PasswordResetService) load(ctx context.Context, email string, want domain.ResetState) (domain.PasswordResetToken, error) {
	tok, err := s.Store.ResetTokens().GetResetToken(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return domain.PasswordResetToken{}, ErrNotFound
	}
	if err != nil {
		return domain.PasswordResetToken{}, storeFailed("get reset token", err)
	}
	if tok.State() != want {
		return domain.PasswordResetToken{}, ErrNotFound
	}
	return tok, nil
}

// update passes store.ErrConflict through for the retry loop.
func (s *PasswordResetService) update(ctx context.Context, tok *domain.PasswordResetToken) error {
	err := s.Store.ResetTokens().UpdateResetToken(ctx, tok)
	switch {
	case err == nil, errors.Is(err, store.ErrConflict):
		return err
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	default:
		return storeFailed("update reset token", err)
	}
}

// unspend reverts a token spent by a password change that did not land.
func (s *PasswordResetService) unspend(ctx context.Context, tok domain.PasswordResetToken) {
	tok.Spent = false
	if err := s.Store.ResetTokens().UpdateResetToken(ctx, &tok); err != nil {
		errutil.LogError(slogx.FromContext(ctx), "failed to restore reset token", err)
	}
}
