package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/passage/internal/auth/domain"
	"github.com/aussiebroadwan/passage/internal/auth/store"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		mock.Close()
	})

	return mock, NewStore(mock, WithClock(func() time.Time { return fixedNow }))
}

func testUser() *domain.User {
	exp := fixedNow.Add(time.Hour)
	return &domain.User{
		ID:                   "01JXAMPLE0000000000000000",
		EmailAddress:         "alice@example.com",
		PasswordHash:         "hash",
		LoginAttemptsExpiry:  fixedNow,
		VerificationSlugHash: "slug",
		VerificationIPHash:   "ip",
		VerificationExpiry:   &exp,
	}
}

func TestCreateUser(t *testing.T) {
	tests := []struct {
		name      string
		insertErr error
		wantErr   error
	}{
		{name: "inserts after clearing lapsed rows"},
		{name: "duplicate email", insertErr: &pgconn.PgError{Code: uniqueViolation}, wantErr: store.ErrAlreadyExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, st := newMockStore(t)
			u := testUser()

			mock.ExpectBegin()
			mock.ExpectExec("DELETE FROM users").
				WithArgs(u.EmailAddress, fixedNow).
				WillReturnResult(pgxmock.NewResult("DELETE", 0))
			insert := mock.ExpectExec("INSERT INTO users")
			if tt.insertErr != nil {
				insert.WillReturnError(tt.insertErr)
				mock.ExpectRollback()
			} else {
				insert.WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectCommit()
			}

			err := st.Users().CreateUser(context.Background(), u)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.EqualValues(t, 1, u.Version)
			require.Equal(t, fixedNow, u.CreatedAt)
		})
	}
}

func TestUpdateUser(t *testing.T) {
	t.Run("bumps version", func(t *testing.T) {
		mock, st := newMockStore(t)
		u := testUser()
		u.Version = 3

		mock.ExpectExec("UPDATE users SET").WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, st.Users().UpdateUser(context.Background(), u))
		require.EqualValues(t, 4, u.Version)
	})

	t.Run("stale version", func(t *testing.T) {
		mock, st := newMockStore(t)
		u := testUser()
		u.Version = 3

		mock.ExpectExec("UPDATE users SET").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery("SELECT 1 FROM users").
			WithArgs(u.ID, fixedNow).
			WillReturnRows(pgxmock.NewRows([]string{"one"}).AddRow(1))

		require.ErrorIs(t, st.Users().UpdateUser(context.Background(), u), store.ErrConflict)
		require.EqualValues(t, 3, u.Version)
	})

	t.Run("missing row", func(t *testing.T) {
		mock, st := newMockStore(t)
		u := testUser()

		mock.ExpectExec("UPDATE users SET").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery("SELECT 1 FROM users").
			WithArgs(u.ID, fixedNow).
			WillReturnRows(pgxmock.NewRows([]string{"one"}))

		require.ErrorIs(t, st.Users().UpdateUser(context.Background(), u), store.ErrNotFound)
	})
}

func TestGetUserNotFound(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectQuery("FROM users WHERE id").
		WithArgs("missing", fixedNow).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err := st.Users().GetUserByID(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAddSessionNonce(t *testing.T) {
	t.Run("inserts for live user", func(t *testing.T) {
		mock, st := newMockStore(t)
		mock.ExpectExec("INSERT INTO session_nonces").
			WithArgs("nonce", fixedNow, "u1").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, st.Users().AddSessionNonce(context.Background(), "u1", "nonce"))
	})

	t.Run("no live user", func(t *testing.T) {
		mock, st := newMockStore(t)
		mock.ExpectExec("INSERT INTO session_nonces").
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		err := st.Users().AddSessionNonce(context.Background(), "u1", "nonce")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestDeleteUser(t *testing.T) {
	mock, st := newMockStore(t)
	mock.ExpectExec("DELETE FROM users WHERE id").
		WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM users WHERE id").
		WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, st.Users().DeleteUser(context.Background(), "u1"))
	require.ErrorIs(t, st.Users().DeleteUser(context.Background(), "u1"), store.ErrNotFound)
}

func TestSweeps(t *testing.T) {
	mock, st := newMockStore(t)
	mock.ExpectExec("DELETE FROM users WHERE NOT verified").
		WithArgs(fixedNow).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("DELETE FROM password_reset_tokens WHERE auth_expiry").
		WithArgs(fixedNow).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("DELETE FROM session_nonces WHERE created_at").
		WithArgs(fixedNow).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	n, err := st.Users().DeleteExpiredUnverified(context.Background(), fixedNow)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	n, err = st.ResetTokens().DeleteExpiredResetTokens(context.Background(), fixedNow)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = st.Users().DeleteStaleSessionNonces(context.Background(), fixedNow)
	require.NoError(t, err)
	require.EqualValues(t, 7, n)
}

func TestUpdateResetTokenConflict(t *testing.T) {
	mock, st := newMockStore(t)
	tok := &domain.PasswordResetToken{EmailAddress: "a@example.com", Authenticated: true, Version: 1}

	mock.ExpectExec("UPDATE password_reset_tokens").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT 1 FROM password_reset_tokens").
		WillReturnRows(pgxmock.NewRows([]string{"one"}).AddRow(1))

	require.ErrorIs(t, st.ResetTokens().UpdateResetToken(context.Background(), tok), store.ErrConflict)
}

func TestStoreErrorsAreWrapped(t *testing.T) {
	mock, st := newMockStore(t)
	mock.ExpectExec("DELETE FROM session_nonces").WillReturnError(errors.New("connection refused"))

	err := st.Users().ClearSessionNonces(context.Background(), "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost:5432/passage":   "pgx5://u:p@localhost:5432/passage",
		"postgresql://u:p@localhost:5432/passage": "pgx5://u:p@localhost:5432/passage",
		"pgx5://u:p@localhost:5432/passage":       "pgx5://u:p@localhost:5432/passage",
	}
	for in, want := range tests {
		assert.Equal(t, want, migrateURL(in))
	}
}

func TestApplyMigrationsNeedsURL(t *testing.T) {
	_, st := newMockStore(t)
	require.Error(t, st.ApplyMigrations(context.Background()))
}
