package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/aussiebroadwan/passage/internal/auth/domain"
	"github.com/aussiebroadwan/passage/internal/auth/store"
)

type resetTokensRepo struct {
	s *Store
}

const resetTokenColumns = `
	email_address, authenticated, auth_slug_hash, spent, auth_expiry, version, created_at`

func (r *resetTokensRepo) CreateResetToken(ctx context.Context, t *domain.PasswordResetToken) error {
	now := r.s.nowMillis()

	err := r.s.withTx(ctx, func(tx pgx.Tx) error {
		// An expired token the sweeper has not reached yet must not block a
		// new request.
		if _, err := tx.Exec(ctx,
			`DELETE FROM password_reset_tokens WHERE email_address = $1 AND auth_expiry <= $2`,
			t.EmailAddress, now,
		); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `INSERT INTO password_reset_tokens (`+resetTokenColumns+`)
			VALUES ($1, $2, $3, $4, $5, 1, $6)`,
			t.EmailAddress,
			t.Authenticated,
			nullString(t.AuthSlugHash),
			t.Spent,
			t.AuthExpiry.UTC(),
			now,
		)
		return err
	})
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	if err != nil {
		return oops.With("operation", "create reset token").Wrap(err)
	}

	t.Version = 1
	t.CreatedAt = now
	return nil
}

func (r *resetTokensRepo) GetResetToken(ctx context.Context, email string) (domain.PasswordResetToken, error) {
	var (
		t        domain.PasswordResetToken
		slugHash *string
	)
	err := r.s.db.QueryRow(ctx,
		`SELECT `+resetTokenColumns+` FROM password_reset_tokens WHERE email_address = $1 AND auth_expiry > $2`,
		email, r.s.now().UTC(),
	).Scan(&t.EmailAddress, &t.Authenticated, &slugHash, &t.Spent, &t.AuthExpiry, &t.Version, &t.CreatedAt)
	if err != nil {
		return domain.PasswordResetToken{}, mapNotFound(err)
	}

	t.AuthSlugHash = derefString(slugHash)
	t.AuthExpiry = t.AuthExpiry.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func (r *resetTokensRepo) UpdateResetToken(ctx context.Context, t *domain.PasswordResetToken) error {
	now := r.s.now().UTC()

	tag, err := r.s.db.Exec(ctx, `
		UPDATE password_reset_tokens SET
			authenticated = $1,
			auth_slug_hash = $2,
			spent = $3,
			version = version + 1
		WHERE email_address = $4 AND version = $5 AND auth_expiry > $6`,
		t.Authenticated,
		nullString(t.AuthSlugHash),
		t.Spent,
		t.EmailAddress,
		t.Version,
		now,
	)
	if err != nil {
		return oops.With("operation", "update reset token").Wrap(err)
	}
	if tag.RowsAffected() > 0 {
		t.Version++
		return nil
	}

	var one int
	err = r.s.db.QueryRow(ctx,
		`SELECT 1 FROM password_reset_tokens WHERE email_address = $1 AND auth_expiry > $2`,
		t.EmailAddress, now,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return store.ErrConflict
}

func (r *resetTokensRepo) DeleteResetToken(ctx context.Context, email string) error {
	_, err := r.s.db.Exec(ctx, `DELETE FROM password_reset_tokens WHERE email_address = $1`, email)
	if err != nil {
		return oops.With("operation", "delete reset token").Wrap(err)
	}
	return nil
}

func (r *resetTokensRepo) DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.s.db.Exec(ctx,
		`DELETE FROM password_reset_tokens WHERE auth_expiry <= $1`, now.UTC())
	if err != nil {
		return 0, oops.With("operation", "delete expired reset tokens").Wrap(err)
	}
	return tag.RowsAffected(), nil
}
