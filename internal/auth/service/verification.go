package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/passage/internal/auth/domain"
	"github.com/aussiebroadwan/passage/internal/auth/store"
	"github.com/aussiebroadwan/passage/pkg/cryptox"
	"github.com/aussiebroadwan/passage/pkg/idx"
	"github.com/aussiebroadwan/passage/pkg/slogx"
)

// slugSeparator joins the user id and the secret in a verification slug.
// Base64url secrets never contain it.
const slugSeparator = "."

// VerificationService runs the one-way unverified -> verified transition.
type VerificationService struct {
	Store   store.Store
	Secrets *cryptox.SecretHasher
	Config  Config
	Metrics *Metrics
	Now     func() time.Time
}

// Generate arms u with a fresh verification secret bound to ip and returns
// the slug to mail out. The caller persists u.
func (s *VerificationService) Generate(u *domain.User, ip string) (string, error) {
	raw, slugHash, err := s.Secrets.Issue()
	if err != nil {
		return "", hashFailed("issue verification slug", err)
	}
	ipHash, err := s.Secrets.Hash(ip)
	if err != nil {
		return "", hashFailed("hash requester ip", err)
	}

	exp := s.Now().Add(s.Config.VerificationTTL).Truncate(time.Millisecond)
	u.VerificationSlugHash = slugHash
	u.VerificationIPHash = ipHash
	u.VerificationExpiry = &exp

	return u.ID + slugSeparator + raw, nil
}

// Check requires both the secret and the requester ip to match. Both
// comparisons always run.
func (s *VerificationService) Check(u domain.User, secret, ip string) bool {
	slugOK := s.Secrets.Check(secret, u.VerificationSlugHash)
	ipOK := s.Secrets.Check(ip, u.VerificationIPHash)
	return slugOK && ipOK
}

// Verify marks the account named by slug as verified. Already verified,
// purged and unknown accounts all report ErrNotFound.
func (s *VerificationService) Verify(ctx context.Context, slug, ip string) (err error) {
	defer func() { s.Metrics.verification(err) }()

	slug = strings.TrimSpace(slug)
	if slug == "" {
		return ValidationError(map[string]string{"slug": "required"})
	}
	rawID, secret, ok := strings.Cut(slug, slugSeparator)
	if !ok || secret == "" {
		return ErrNotFound
	}
	id, err := idx.Parse(rawID)
	if err != nil {
		return ErrNotFound
	}
	userID := id.String()

	return withConflictRetry(ctx, s.Config, s.Metrics, "verify", func(ctx context.Context) error {
		u, err := s.Store.Users().GetUserByID(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return storeFailed("get user", err)
		}
		if u.Verified {
			return ErrNotFound
		}
		if !s.Check(u, secret, ip) {
			return ErrIncorrect
		}

		u.MarkVerified()
		if err := s.Store.Users().UpdateUser(ctx, &u); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return err
			}
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return storeFailed("update user", err)
		}

		slogx.FromContext(ctx).Info("account verified", slog.String("user_id", u.ID))
		return nil
	})
}
