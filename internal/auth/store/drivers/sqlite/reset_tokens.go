package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/passage/internal/auth/domain"
	"github.com/aussiebroadwan/passage/internal/auth/store"
)

type resetTokensRepo struct {
	s *Store
}

const resetTokenColumns = `
	email_address, authenticated, auth_slug_hash, spent, auth_expiry, version, created_at`

func (r *resetTokensRepo) CreateResetToken(ctx context.Context, t *domain.PasswordResetToken) error {
	now := r.s.now().UTC()

	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		// An expired token the sweeper has not reached yet must not block a
		// new request.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM password_reset_tokens WHERE email_address = ? AND auth_expiry <= ?`,
			t.EmailAddress, toMillis(now),
		); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `INSERT INTO password_reset_tokens (`+resetTokenColumns+`)
			VALUES (?, ?, ?, ?, ?, 1, ?)`,
			t.EmailAddress,
			t.Authenticated,
			mapStringNull(t.AuthSlugHash),
			t.Spent,
			toMillis(t.AuthExpiry),
			toMillis(now),
		)
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists
		}
		if err != nil {
			return err
		}

		t.Version = 1
		t.CreatedAt = fromMillis(toMillis(now))
		return nil
	})
}

func (r *resetTokensRepo) GetResetToken(ctx context.Context, email string) (domain.PasswordResetToken, error) {
	var (
		t         domain.PasswordResetToken
		slugHash  sql.NullString
		expiry    int64
		createdAt int64
	)
	err := r.s.db.QueryRowContext(ctx,
		`SELECT `+resetTokenColumns+` FROM password_reset_tokens WHERE email_address = ? AND auth_expiry > ?`,
		email, toMillis(r.s.now()),
	).Scan(&t.EmailAddress, &t.Authenticated, &slugHash, &t.Spent, &expiry, &t.Version, &createdAt)
	if err != nil {
		return domain.PasswordResetToken{}, mapNotFound(err)
	}

	t.AuthSlugHash = mapNullString(slugHash)
	t.AuthExpiry = fromMillis(expiry)
	t.CreatedAt = fromMillis(createdAt)
	return t, nil
}

func (r *resetTokensRepo) UpdateResetToken(ctx context.Context, t *domain.PasswordResetToken) error {
	now := toMillis(r.s.now())

	res, err := r.s.db.ExecContext(ctx, `
		UPDATE password_reset_tokens SET
			authenticated = ?,
			auth_slug_hash = ?,
			spent = ?,
			version = version + 1
		WHERE email_address = ? AND version = ? AND auth_expiry > ?`,
		t.Authenticated,
		mapStringNull(t.AuthSlugHash),
		t.Spent,
		t.EmailAddress,
		t.Version,
		now,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		t.Version++
		return nil
	}

	var one int
	err = r.s.db.QueryRowContext(ctx,
		`SELECT 1 FROM password_reset_tokens WHERE email_address = ? AND auth_expiry > ?`,
		t.EmailAddress, now,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return store.ErrConflict
}

func (r *resetTokensRepo) DeleteResetToken(ctx context.Context, email string) error {
	_, err := r.s.db.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE email_address = ?`, email)
	return err
}

func (r *resetTokensRepo) DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.s.db.ExecContext(ctx,
		`DELETE FROM password_reset_tokens WHERE auth_expiry <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
