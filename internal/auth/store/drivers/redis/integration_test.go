//go:build integration

package redis_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/aussiebroadwan/passage/internal/auth/store"
	"github.com/aussiebroadwan/passage/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/passage/internal/auth/store/storetest"
)

func TestAgainstRedisServer(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	st, err := redis.Open(ctx, url, redis.WithPrefix("it"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	u := storetest.NewUnverifiedUser("it@example.com", time.Now(), time.Hour)
	require.NoError(t, st.Users().CreateUser(ctx, u))

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- st.Users().AddSessionNonce(ctx, u.ID, fmt.Sprintf("nonce-%d", i))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := st.Users().GetUserByEmail(ctx, "it@example.com")
	require.NoError(t, err)
	require.Len(t, got.SessionNonces, n)

	stale := got
	got.LoginAttempts = 2
	require.NoError(t, st.Users().UpdateUser(ctx, &got))
	require.ErrorIs(t, st.Users().UpdateUser(ctx, &stale), store.ErrConflict)

	require.NoError(t, st.Users().DeleteUser(ctx, u.ID))
	_, err = st.Users().GetUserByID(ctx, u.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}
