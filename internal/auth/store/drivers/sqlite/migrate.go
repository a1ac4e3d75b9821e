package sqlite

import (
	"context"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"

	"github.com/aussiebroadwan/passage/internal/auth/store/drivers/sqlite/migrations"
)

// ApplyMigrations brings the schema up to date using the migrations
// embedded in the binary. The migrate instance is not closed: that would
// close the shared *sql.DB.
func (s *Store) ApplyMigrations(context.Context) error {
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}

	source, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return oops.Code("MIGRATION_SOURCE_FAILED").Wrap(err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_UP_FAILED").Wrap(err)
	}
	return nil
}
