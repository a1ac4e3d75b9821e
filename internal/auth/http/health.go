package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/passage/internal/auth/store"
	"github.com/aussiebroadwan/passage/pkg/authsdk"
	"github.com/aussiebroadwan/passage/pkg/errutil"
	"github.com/aussiebroadwan/passage/pkg/httpx"
	"github.com/aussiebroadwan/passage/pkg/jwtx"
	"github.com/aussiebroadwan/passage/pkg/slogx"
)

const readinessTimeout = 2 * time.Second

// LivezHandler answers 200 for as long as the process can serve at all.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler answers 503 while the store is unreachable or the signer
// has no usable key. Failure details go to the log, not the response.
func ReadyzHandler(startTime time.Time, version string, st store.Store, signer jwtx.Signer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l := slogx.FromContext(r.Context())
		resp := authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  &authsdk.HealthChecks{Store: "ok", Signer: "ok"},
		}

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		if err := st.Ping(ctx); err != nil {
			errutil.LogError(l, "readiness: store ping failed", err)
			resp.Checks.Store = "unavailable"
			resp.Status = "degraded"
		}
		if err := signer.Validate(); err != nil {
			errutil.LogError(l, "readiness: signer invalid", err)
			resp.Checks.Signer = "unavailable"
			resp.Status = "degraded"
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		httpx.WriteJSON(w, status, resp)
	}
}
