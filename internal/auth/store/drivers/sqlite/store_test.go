package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/passage/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/passage/internal/auth/store/storetest"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, clock *storetest.Clock) *sqlite.Store {
	t.Helper()

	st, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "passage.db")), sqlite.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations(context.Background()))
	return st
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Harness {
		clock := storetest.NewClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
		return storetest.Harness{
			Store:   newTestStore(t, clock),
			Now:     clock.Now,
			Advance: clock.Advance,
		}
	})
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	clock := storetest.NewClock(time.Now())
	st := newTestStore(t, clock)

	require.NoError(t, st.ApplyMigrations(context.Background()))
	require.NoError(t, st.Ping(context.Background()))
}
