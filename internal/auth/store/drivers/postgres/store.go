// Package postgres is a store driver backed by PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/aussiebroadwan/passage/internal/auth/store"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// DB is the subset of *pgxpool.Pool the store uses, so tests can swap in
// pgxmock.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

type Store struct {
	db          DB
	databaseURL string
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry filtering.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithDatabaseURL sets the URL ApplyMigrations connects with. Open sets it
// automatically.
func WithDatabaseURL(url string) Option {
	return func(s *Store) { s.databaseURL = url }
}

// Open creates a connection pool for databaseURL and verifies it.
func Open(ctx context.Context, databaseURL string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "ping").Wrap(err)
	}

	return NewStore(pool, append([]Option{WithDatabaseURL(databaseURL)}, opts...)...), nil
}

func NewStore(db DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Users() store.Users             { return &usersRepo{s: s} }
func (s *Store) ResetTokens() store.ResetTokens { return &resetTokensRepo{s: s} }

func (s *Store) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

// withTx runs fn in a transaction, committing when it returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // no-op after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// nowMillis is the store clock truncated to the precision the other drivers
// keep, so round trips compare equal everywhere.
func (s *Store) nowMillis() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
