package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

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
const liveUser = `NOT (verified = 0 AND verification_expiry IS NOT NULL AND verification_expiry <= ?)`

func (r *usersRepo) CreateUser(ctx context.Context, u *domain.User) error {
	now := r.s.now().UTC()

	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM users
			WHERE email_address = ? AND verified = 0 AND verification_expiry <= ?`,
			u.EmailAddress, toMillis(now),
		); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `INSERT INTO users (`+userColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			u.ID,
			u.EmailAddress,
			u.PasswordHash,
			u.LoginAttempts,
			toMillis(u.LoginAttemptsExpiry),
			u.Verified,
			mapStringNull(u.VerificationSlugHash),
			mapStringNull(u.VerificationIPHash),
			mapOptionalMillis(u.VerificationExpiry),
			toMillis(now),
			toMillis(now),
		)
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists
		}
		if err != nil {
			return err
		}

		u.Version = 1
		u.CreatedAt = fromMillis(toMillis(now))
		u.UpdatedAt = u.CreatedAt
		return nil
	})
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.getUser(ctx, `id = ?`, id)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getUser(ctx, `email_address = ?`, email)
}

func (r *usersRepo) getUser(ctx context.Context, where string, arg any) (domain.User, error) {
	row := r.s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where+` AND `+liveUser,
		arg, toMillis(r.s.now()),
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
	rows, err := r.s.db.QueryContext(ctx,
		`SELECT nonce_hash FROM session_nonces WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *usersRepo) UpdateUser(ctx context.Context, u *domain.User) error {
	now := r.s.now().UTC()

	res, err := r.s.db.ExecContext(ctx, `
		UPDATE users SET
			email_address = ?,
			password_hash = ?,
			login_attempts = ?,
			login_attempts_expiry = ?,
			verified = ?,
			verification_slug_hash = ?,
			verification_ip_hash = ?,
			verification_expiry = ?,
			version = version + 1,
			updated_at = ?
		WHERE id = ? AND version = ? AND `+liveUser,
		u.EmailAddress,
		u.PasswordHash,
		u.LoginAttempts,
		toMillis(u.LoginAttemptsExpiry),
		u.Verified,
		mapStringNull(u.VerificationSlugHash),
		mapStringNull(u.VerificationIPHash),
		mapOptionalMillis(u.VerificationExpiry),
		toMillis(now),
		u.ID,
		u.Version,
		toMillis(now),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.missOrConflict(ctx, u.ID)
	}

	u.Version++
	u.UpdatedAt = fromMillis(toMillis(now))
	return nil
}

// missOrConflict explains why a conditional update matched no rows.
func (r *usersRepo) missOrConflict(ctx context.Context, id string) error {
	var one int
	err := r.s.db.QueryRowContext(ctx,
		`SELECT 1 FROM users WHERE id = ? AND `+liveUser, id, toMillis(r.s.now()),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return store.ErrConflict
}

func (r *usersRepo) AddSessionNonce(ctx context.Context, userID, nonceHash string) error {
	now := r.s.now()
	res, err := r.s.db.ExecContext(ctx, `
		INSERT INTO session_nonces (user_id, nonce_hash, created_at)
		SELECT id, ?, ? FROM users WHERE id = ? AND `+liveUser,
		nonceHash, toMillis(now), userID, toMillis(now),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) RemoveSessionNonce(ctx context.Context, userID, nonceHash string) error {
	_, err := r.s.db.ExecContext(ctx,
		`DELETE FROM session_nonces WHERE user_id = ? AND nonce_hash = ?`, userID, nonceHash)
	return err
}

func (r *usersRepo) ClearSessionNonces(ctx context.Context, userID string) error {
	_, err := r.s.db.ExecContext(ctx, `DELETE FROM session_nonces WHERE user_id = ?`, userID)
	return err
}

// DeleteUser cascades to session_nonces (per schema).
func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	res, err := r.s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) DeleteExpiredUnverified(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.s.db.ExecContext(ctx,
		`DELETE FROM users WHERE verified = 0 AND verification_expiry <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *usersRepo) DeleteStaleSessionNonces(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.s.db.ExecContext(ctx,
		`DELETE FROM session_nonces WHERE created_at < ?`, toMillis(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u                 domain.User
		attemptsExpiry    int64
		slugHash, ipHash  sql.NullString
		verificationUntil sql.NullInt64
		createdAt         int64
		updatedAt         int64
	)
	err := row.Scan(
		&u.ID,
		&u.EmailAddress,
		&u.PasswordHash,
		&u.LoginAttempts,
		&attemptsExpiry,
		&u.Verified,
		&slugHash,
		&ipHash,
		&verificationUntil,
		&u.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}

	u.LoginAttemptsExpiry = fromMillis(attemptsExpiry)
	u.VerificationSlugHash = mapNullString(slugHash)
	u.VerificationIPHash = mapNullString(ipHash)
	u.VerificationExpiry = mapNullMillis(verificationUntil)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}
