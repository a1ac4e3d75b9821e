package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/aussiebroadwan/passage/internal/auth/domain"
	"github.com/aussiebroadwan/passage/internal/auth/store"
	"github.com/aussiebroadwan/passage/pkg/errutil"
	"github.com/aussiebroadwan/passage/pkg/idx"
	"github.com/aussiebroadwan/passage/pkg/slogx"
)

// AccountService covers registration, login and the session operations a
// signed-in user can perform.
type AccountService struct {
	Store        store.Store
	Credentials  *Credentials
	Throttle     Throttle
	Sessions     *SessionRegistry
	Tokens       *TokenService
	Verification *VerificationService
	Mailer       Mailer
	Config       Config
	Metrics      *Metrics
	Now          func() time.Time
}

// Register creates an unverified account and mails its verification link.
// If the mail cannot be sent the account is removed again.
func (s *AccountService) Register(ctx context.Context, email, password, ip string) (user domain.User, err error) {
	defer func() { s.Metrics.registration(err) }()
	l := slogx.FromContext(ctx)

	email = domain.NormalizeEmail(email)
	if fields := validateCredentials(email, password); len(fields) > 0 {
		return domain.User{}, ValidationError(fields)
	}
	if ip == "" {
		return domain.User{}, ValidationError(map[string]string{"ip": "required"})
	}

	now := s.Now()
	u := domain.User{
		ID:                  idx.NewAt(now).String(),
		EmailAddress:        email,
		LoginAttemptsExpiry: now.Truncate(time.Millisecond),
	}
	if err := s.Credentials.SetPassword(&u, password); err != nil {
		return domain.User{}, err
	}
	slug, err := s.Verification.Generate(&u, ip)
	if err != nil {
		return domain.User{}, err
	}

	if err := s.Store.Users().CreateUser(ctx, &u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, storeFailed("create user", err)
	}

	if err := s.Mailer.SendVerificationEmail(ctx, email, slug); err != nil {
		if delErr := s.Store.Users().DeleteUser(ctx, u.ID); delErr != nil {
			errutil.LogError(l, "failed to roll back registration", delErr)
		}
		return domain.User{}, oops.Code(CodeMailDeliveryFailed).With("user_id", u.ID).Wrap(err)
	}

	l.Info("user registered", slog.String("user_id", u.ID))
	l.Debug("verification mail sent", slog.String("email", email))
	return u, nil
}

// ResendVerification issues a fresh verification link for an unverified
// account, invalidating the previous one and extending the window.
func (s *AccountService) ResendVerification(ctx context.Context, email, ip string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return ValidationError(map[string]string{"email": "required"})
	}
	if ip == "" {
		return ValidationError(map[string]string{"ip": "required"})
	}

	var slug string
	err := withConflictRetry(ctx, s.Config, s.Metrics, "resend_verification", func(ctx context.Context) error {
		u, err := s.Store.Users().GetUserByEmail(ctx, email)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return storeFailed("get user", err)
		}
		if u.Verified {
			return ErrNotFound
		}

		slug, err = s.Verification.Generate(&u, ip)
		if err != nil {
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
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.Mailer.SendVerificationEmail(ctx, email, slug); err != nil {
		return oops.Code(CodeMailDeliveryFailed).Wrap(err)
	}
	return nil
}

// Login checks a password and opens a new session.
//
// The lockout check runs before the password is looked at, so a locked
// account reveals nothing about the password. Unknown emails cost a full
// hash and fail exactly like a wrong password.
func (s *AccountService) Login(ctx context.Context, email, password string) (login domain.Login, err error) {
	defer func() { s.Metrics.login(err) }()
	l := slogx.FromContext(ctx)

	email = domain.NormalizeEmail(email)
	fields := map[string]string{}
	if email == "" {
		fields["email"] = "required"
	}
	if password == "" {
		fields["password"] = "required"
	}
	if len(fields) > 0 {
		return domain.Login{}, ValidationError(fields)
	}

	var user domain.User
	err = withConflictRetry(ctx, s.Config, s.Metrics, "login", func(ctx context.Context) error {
		now := s.Now()

		u, err := s.Store.Users().GetUserByEmail(ctx, email)
		if errors.Is(err, store.ErrNotFound) {
			s.Credentials.Burn(password)
			return ErrIncorrect
		}
		if err != nil {
			return storeFailed("get user", err)
		}

		if s.Throttle.Exceeded(u, now) {
			return ErrLockedOut
		}

		if !s.Credentials.CheckPassword(u, password) {
			s.Throttle.RecordFailure(&u, now)
			if err := s.Store.Users().UpdateUser(ctx, &u); err != nil {
				if errors.Is(err, store.ErrConflict) {
					return err
				}
				if errors.Is(err, store.ErrNotFound) {
					return ErrIncorrect
				}
				return storeFailed("record failed login", err)
			}
			if s.Throttle.Exceeded(u, now) {
				s.Metrics.lockout()
				l.Info("account locked out", slog.String("user_id", u.ID))
			}
			return ErrIncorrect
		}

		if !u.Verified {
			return ErrNotVerified
		}
		user = u
		return nil
	})
	if err != nil {
		return domain.Login{}, err
	}

	login, err = s.Tokens.Issue(ctx, user.ID)
	if err != nil {
		return domain.Login{}, err
	}
	l.Info("user logged in", slog.String("user_id", user.ID))
	return login, nil
}

// Logout ends the session the token belongs to.
func (s *AccountService) Logout(ctx context.Context, token string) error {
	sess, err := s.Tokens.Validate(ctx, token)
	if err != nil {
		return err
	}
	if _, err := s.Sessions.Remove(ctx, sess.User, sess.SessionID); err != nil {
		return err
	}
	return nil
}

// LogoutAll ends every session of the token's user.
func (s *AccountService) LogoutAll(ctx context.Context, token string) error {
	sess, err := s.Tokens.Validate(ctx, token)
	if err != nil {
		return err
	}
	return s.Sessions.RemoveAll(ctx, sess.UserID)
}

// DeleteAccount removes the signed-in user after re-checking the password.
// The re-check is throttled like Login: a locked account is refused before
// the password is looked at, and a wrong password counts as a failed attempt.
// Any pending password reset for the address goes with it.
func (s *AccountService) DeleteAccount(ctx context.Context, token, password string) error {
	sess, err := s.Tokens.Validate(ctx, token)
	if err != nil {
		return err
	}
	if password == "" {
		return ValidationError(map[string]string{"password": "required"})
	}

	err = withConflictRetry(ctx, s.Config, s.Metrics, "delete account", func(ctx context.Context) error {
		now := s.Now()

		u, err := s.Store.Users().GetUserByID(ctx, sess.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return storeFailed("get user", err)
		}

		if s.Throttle.Exceeded(u, now) {
			return ErrLockedOut
		}
		if s.Credentials.CheckPassword(u, password) {
			return nil
		}

		s.Throttle.RecordFailure(&u, now)
		if err := s.Store.Users().UpdateUser(ctx, &u); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return err
			}
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return storeFailed("record failed password check", err)
		}
		if s.Throttle.Exceeded(u, now) {
			s.Metrics.lockout()
			slogx.FromContext(ctx).Info("account locked out", slog.String("user_id", u.ID))
		}
		return ErrIncorrect
	})
	if err != nil {
		return err
	}

	if err := s.Store.Users().DeleteUser(ctx, sess.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return storeFailed("delete user", err)
	}
	if err := s.Store.ResetTokens().DeleteResetToken(ctx, sess.User.EmailAddress); err != nil {
		errutil.LogError(slogx.FromContext(ctx), "failed to delete reset token of deleted account", err)
	}

	slogx.FromContext(ctx).Info("account deleted", slog.String("user_id", sess.UserID))
	return nil
}

func validateCredentials(email, password string) map[string]string {
	fields := map[string]string{}
	switch {
	case email == "":
		fields["email"] = "required"
	case !validEmail(email):
		fields["email"] = "invalid"
	}
	if password == "" {
		fields["password"] = "required"
	}
	return fields
}

// validEmail accepts a bare address, no display name.
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, "@")
}
