package http

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/passage/internal/auth/service"
	"github.com/aussiebroadwan/passage/pkg/httpx"
)

type ctxKey int

const ctxKeyBearer ctxKey = iota

// maxFormBytes caps request bodies the handlers read themselves.
const maxFormBytes = 64 << 10

// requireBearer rejects requests without an Authorization bearer token and
// stashes the raw token for the handler. The token itself is checked by the
// engine.
func requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := httpx.BearerToken(r)
		if !ok {
			writeServiceError(w, r, service.ErrNotLoggedIn)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyBearer, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerFromContext(ctx context.Context) string {
	token, _ := ctx.Value(ctxKeyBearer).(string)
	return token
}

// formValues returns the url-encoded body. net/http only parses bodies of
// POST, PUT and PATCH, so DELETE bodies are decoded here.
func formValues(r *http.Request) (url.Values, error) {
	if r.Method != http.MethodDelete {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return r.PostForm, nil
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxFormBytes))
	if err != nil {
		return nil, err
	}
	return url.ParseQuery(string(raw))
}

// requesterIP is the address verification links are bound to.
func requesterIP(r *http.Request) string {
	return httpx.ClientIP(r)
}
