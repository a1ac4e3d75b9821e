package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/oops"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/passage/internal/auth/store"
)

func TestWithConflictRetry(t *testing.T) {
	cfg := Config{ConflictRetries: 3, ConflictBackoff: time.Millisecond}
	ctx := context.Background()

	t.Run("succeeds after conflicts", func(t *testing.T) {
		m := NewMetrics(prometheus.NewRegistry())
		calls := 0
		err := withConflictRetry(ctx, cfg, m, "op", func(context.Context) error {
			calls++
			if calls < 3 {
				return store.ErrConflict
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
		require.InDelta(t, 2, testutil.ToFloat64(m.conflicts.WithLabelValues("op")), 0)
	})

	t.Run("other errors stop at once", func(t *testing.T) {
		calls := 0
		err := withConflictRetry(ctx, cfg, nil, "op", func(context.Context) error {
			calls++
			return ErrNotFound
		})
		require.ErrorIs(t, err, ErrNotFound)
		require.Equal(t, 1, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := withConflictRetry(ctx, cfg, nil, "op", func(context.Context) error {
			calls++
			return store.ErrConflict
		})
		require.ErrorIs(t, err, store.ErrConflict)
		require.Equal(t, 4, calls)

		oe, ok := oops.AsOops(err)
		require.True(t, ok)
		require.Equal(t, CodeConflictRetriesExhausted, oe.Code())
		require.Equal(t, KindInternal, KindOf(err))
	})

	t.Run("context cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := withConflictRetry(cctx, cfg, nil, "op", func(context.Context) error {
			return store.ErrConflict
		})
		require.Error(t, err)
		require.True(t, errors.Is(err, context.Canceled) || errors.Is(err, store.ErrConflict))
	})
}
