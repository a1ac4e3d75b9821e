package postgres

import (
	"context"
	"embed"
	"errors"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// Register pgx/v5 database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrateURL rewrites postgres:// and postgresql:// to the pgx5:// scheme
// the golang-migrate pgx/v5 driver registers.
func migrateURL(databaseURL string) string {
	if rest, found := strings.CutPrefix(databaseURL, "postgres://"); found {
		return "pgx5://" + rest
	}
	if rest, found := strings.CutPrefix(databaseURL, "postgresql://"); found {
		return "pgx5://" + rest
	}
	return databaseURL
}

// ApplyMigrations applies any pending migrations embedded in the binary.
func (s *Store) ApplyMigrations(context.Context) error {
	if s.databaseURL == "" {
		return oops.Code("MIGRATION_INIT_FAILED").Errorf("postgres store has no database url")
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return oops.Code("MIGRATION_SOURCE_FAILED").Wrap(err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(s.databaseURL))
	if err != nil {
		_ = source.Close() //nolint:errcheck // init error takes precedence
		return oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	defer func() {
		_, _ = m.Close() //nolint:errcheck // best effort
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_UP_FAILED").Wrap(err)
	}
	return nil
}
