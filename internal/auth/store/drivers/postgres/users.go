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

type usersRepo struct {
	s *Store
}

const userColumns = `
	id, email_address, password_hash, login_attempts, login_attempts_expiry,
	verified, verification_slug_hash, verification_ip_hash, verification_expiry,
	version, created_at, updated_at`

// liveUser hides unverified accounts whose verification window has closed.
// The placeholder index is spliced in by each query.
func liveUser(param string) string {
	return `NOT (NOT verified AND verification_expiry IS NOT NULL AND verification_expiry <= ` + param + `)`
}

func (r *usersRepo) CreateUser(ctx context.Context, u *domain.User) error {
	now := r.s.nowMillis()

	err := r.s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			DELETE FROM users
			WHERE email_address = $1 AND NOT verified AND verification_expiry <= $2`,
			u.EmailAddress, now,
		); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `INSERT INTO users (`+userColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10, $10)`,
			u.ID,
			u.EmailAddress,
			u.PasswordHash,
			u.LoginAttempts,
			u.LoginAttemptsExpiry.UTC(),
			u.Verified,
			nullString(u.VerificationSlugHash),
			nullString(u.VerificationIPHash),
			utcPtr(u.VerificationExpiry),
			now,
		)
		return err
	})
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	if err != nil {
		return oops.With("operation", "create user").With("user_id", u.ID).Wrap(err)
	}

	u.Version = 1
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.getUser(ctx, `id = $1`, id)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getUser(ctx, `email_address = $1`, email)
}

func (r *usersRepo) getUser(ctx context.Context, where string, arg any) (domain.User, error) {
	row := r.s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where+` AND `+liveUser("$2"),
		arg, r.s.now().UTC(),
	)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	nonces, err := r.listNonces(ctx, u.ID)
	if err != nil {
		return domain.User{}, err
	}
	u.SessionNonces = nonces
	return u, nil
}

func (r *usersRepo) listNonces(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.s.db.Query(ctx,
		`SELECT nonce_hash FROM session_nonces WHERE user_id = $1 ORDER BY created_at, nonce_hash`, userID)
	if err != nil {
		return nil, oops.With("operation", "list session nonces").With("user_id", userID).Wrap(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, oops.With("operation", "scan session nonce").Wrap(err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *usersRepo) UpdateUser(ctx context.Context, u *domain.User) error {
	now := r.s.nowMillis()

	tag, err := r.s.db.Exec(ctx, `
		UPDATE users SET
			email_address = $1,
			password_hash = $2,
			login_attempts = $3,
			login_attempts_expiry = $4,
			verified = $5,
			verification_slug_hash = $6,
			verification_ip_hash = $7,
			verification_expiry = $8,
			version = version + 1,
			updated_at = $9
		WHERE id = $10 AND version = $11 AND `+liveUser("$9"),
		u.EmailAddress,
		u.PasswordHash,
		u.LoginAttempts,
		u.LoginAttemptsExpiry.UTC(),
		u.Verified,
		nullString(u.VerificationSlugHash),
		nullString(u.VerificationIPHash),
		utcPtr(u.VerificationExpiry),
		now,
		u.ID,
		u.Version,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	if err != nil {
		return oops.With("operation", "update user").With("user_id", u.ID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, u.ID)
	}

	u.Version++
	u.UpdatedAt = now
	return nil
}

// missOrConflict explains why a conditional update matched no rows.
func (r *usersRepo) missOrConflict(ctx context.Context, id string) error {
	var one int
	err := r.s.db.QueryRow(ctx,
		`SELECT 1 FROM users WHERE id = $1 AND `+liveUser("$2"), id, r.s.now().UTC(),
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return store.ErrConflict
}

func (r *usersRepo) AddSessionNonce(ctx context.Context, userID, nonceHash string) error {
	now := r.s.now().UTC()
	tag, err := r.s.db.Exec(ctx, `
		INSERT INTO session_nonces (user_id, nonce_hash, created_at)
		SELECT id, $1::text, $2::timestamptz FROM users WHERE id = $3 AND `+liveUser("$2"),
		nonceHash, now, userID,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	if err != nil {
		return oops.With("operation", "add session nonce").With("user_id", userID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) RemoveSessionNonce(ctx context.Context, userID, nonceHash string) error {
	_, err := r.s.db.Exec(ctx,
		`DELETE FROM session_nonces WHERE user_id = $1 AND nonce_hash = $2`, userID, nonceHash)
	if err != nil {
		return oops.With("operation", "remove session nonce").With("user_id", userID).Wrap(err)
	}
	return nil
}

func (r *usersRepo) ClearSessionNonces(ctx context.Context, userID string) error {
	_, err := r.s.db.Exec(ctx, `DELETE FROM session_nonces WHERE user_id = $1`, userID)
	if err != nil {
		return oops.With("operation", "clear session nonces").With("user_id", userID).Wrap(err)
	}
	return nil
}

// DeleteUser cascades to session_nonces.
func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	tag, err := r.s.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return oops.With("operation", "delete user").With("user_id", userID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) DeleteExpiredUnverified(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.s.db.Exec(ctx,
		`DELETE FROM users WHERE NOT verified AND verification_expiry <= $1`, now.UTC())
	if err != nil {
		return 0, oops.With("operation", "delete expired unverified users").Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func (r *usersRepo) DeleteStaleSessionNonces(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.s.db.Exec(ctx,
		`DELETE FROM session_nonces WHERE created_at < $1`, before.UTC())
	if err != nil {
		return 0, oops.With("operation", "delete stale session nonces").Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u                domain.User
		slugHash, ipHash *string
		verificationExp  *time.Time
	)
	err := row.Scan(
		&u.ID,
		&u.EmailAddress,
		&u.PasswordHash,
		&u.LoginAttempts,
		&u.LoginAttemptsExpiry,
		&u.Verified,
		&slugHash,
		&ipHash,
		&verificationExp,
		&u.Version,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}

	u.LoginAttemptsExpiry = u.LoginAttemptsExpiry.UTC()
	u.VerificationSlugHash = derefString(slugHash)
	u.VerificationIPHash = derefString(ipHash)
	u.VerificationExpiry = utcPtr(verificationExp)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}
