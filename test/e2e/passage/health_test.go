//go:build e2e

package passage_test

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHealthEndpoints(t *testing.T) {
	p := setupContainer(t, nil)
	client := p.Client()
	ctx := context.Background()

	live, err := client.GetLiveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)

	ready, err := client.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
	require.NotNil(t, ready.Checks)
	require.Equal(t, "ok", ready.Checks.Store)
	require.Equal(t, "ok", ready.Checks.Signer)
}

func TestMetricsEndpoint(t *testing.T) {
	p := setupContainer(t, nil)

	resp, err := http.Get(p.BaseURL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "go_goroutines")
}
