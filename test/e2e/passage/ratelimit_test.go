//go:build e2e

package passage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/passage/pkg/authsdk"
)

// Credential endpoints allow five requests a minute per address and email.
func TestRateLimitLogin(t *testing.T) {
	p := setupContainer(t, nil)
	client := p.Client()
	ctx := context.Background()
	email := uniqueEmail(t)

	for i := range 5 {
		_, err := client.Login(ctx, email, "wrong password")
		require.Error(t, err)
		require.False(t, authsdk.IsRateLimited(err), "request %d should not be rate limited", i+1)
	}

	_, err := client.Login(ctx, email, "wrong password")
	require.Error(t, err)
	require.True(t, authsdk.IsRateLimited(err), "expected 429 after five attempts, got %v", err)

	// A different email has its own bucket.
	_, err = client.Login(ctx, uniqueEmail(t), "wrong password")
	require.Error(t, err)
	require.False(t, authsdk.IsRateLimited(err))
}

func TestRateLimitPasswordResetRequest(t *testing.T) {
	p := setupContainer(t, nil)
	client := p.Client()
	ctx := context.Background()
	email := uniqueEmail(t)

	var lastErr error
	for range 6 {
		lastErr = client.RequestPasswordReset(ctx, email)
	}
	require.Error(t, lastErr)
	require.True(t, authsdk.IsRateLimited(lastErr))
}
