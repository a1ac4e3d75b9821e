package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aussiebroadwan/passage/internal/auth/service"
	"github.com/aussiebroadwan/passage/internal/auth/store"
	"github.com/aussiebroadwan/passage/pkg/httpx"
	"github.com/aussiebroadwan/passage/pkg/jwtx"
	"github.com/aussiebroadwan/passage/pkg/slogx"
)

// Limits are the rate limit profiles applied by the router.
type Limits struct {
	// Credentials guards login, registration and the reset flow.
	Credentials httpx.RateLimitConfig `koanf:"credentials"`
	// Authenticated guards bearer-token operations.
	Authenticated httpx.RateLimitConfig `koanf:"authenticated"`
}

// DefaultLimits returns the httpx profiles.
func DefaultLimits() Limits {
	return Limits{
		Credentials:   httpx.StrictLimit,
		Authenticated: httpx.ModerateLimit,
	}
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	engine       *service.Engine
	store        store.Store
	signer       jwtx.Signer
	gatherer     prometheus.Gatherer
	limits       Limits
	proxies      httpx.TrustedProxies
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
}

// NewRouter builds a router over engine. gatherer may be nil, in which case
// /metrics is not served. Forwarding headers are honoured only from proxies;
// with none, the client IP is the TCP peer.
func NewRouter(
	engine *service.Engine,
	st store.Store,
	signer jwtx.Signer,
	gatherer prometheus.Gatherer,
	limits Limits,
	proxies httpx.TrustedProxies,
	buildVersion string,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		engine:       engine,
		store:        st,
		signer:       signer,
		gatherer:     gatherer,
		limits:       limits,
		proxies:      proxies,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		httpx.ClientIPMiddleware(r.proxies),
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerUsers()
	r.registerSessions()
	r.registerResets()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerUsers() {
	h := &UsersHandler{
		Accounts:     r.engine.Accounts,
		Verification: r.engine.Verification,
		Tokens:       r.engine.Tokens,
	}

	// Registration and verification are keyed by IP; the address does not
	// exist yet or is not the caller's to prove.
	r.Mux.Handle("POST /v1/users",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(r.limits.Credentials),
		),
	)
	r.Mux.Handle("POST /v1/users/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.RateLimitByIP(r.limits.Credentials),
		),
	)
	r.Mux.Handle("POST /v1/users/verify/resend",
		httpx.Chain(http.HandlerFunc(h.HandleResend),
			httpx.RateLimitByIPAndFormField(r.limits.Credentials, "email"),
		),
	)

	r.Mux.Handle("GET /v1/users/me",
		httpx.Chain(http.HandlerFunc(h.HandleMe),
			requireBearer,
			httpx.RateLimitByIP(r.limits.Authenticated),
		),
	)
	r.Mux.Handle("DELETE /v1/users/me",
		httpx.Chain(http.HandlerFunc(h.HandleDelete),
			requireBearer,
			httpx.RateLimitByIP(r.limits.Credentials),
		),
	)
}

func (r *Router) registerSessions() {
	h := &SessionsHandler{Accounts: r.engine.Accounts}

	// POST /sessions - strict, by IP + email (password guessing)
	r.Mux.Handle("POST /v1/sessions",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndFormField(r.limits.Credentials, "email"),
		),
	)
	r.Mux.Handle("DELETE /v1/sessions/current",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			requireBearer,
			httpx.RateLimitByIP(r.limits.Authenticated),
		),
	)
	r.Mux.Handle("DELETE /v1/sessions",
		httpx.Chain(http.HandlerFunc(h.HandleLogoutAll),
			requireBearer,
			httpx.RateLimitByIP(r.limits.Authenticated),
		),
	)
}

func (r *Router) registerResets() {
	h := &ResetsHandler{Resets: r.engine.Resets}

	r.Mux.Handle("POST /v1/password-resets",
		httpx.Chain(http.HandlerFunc(h.HandleRequest),
			httpx.RateLimitByIPAndFormField(r.limits.Credentials, "email"),
		),
	)
	r.Mux.Handle("POST /v1/password-resets/authenticate",
		httpx.Chain(http.HandlerFunc(h.HandleAuthenticate),
			httpx.RateLimitByIPAndFormField(r.limits.Credentials, "email"),
		),
	)
	r.Mux.Handle("POST /v1/password-resets/complete",
		httpx.Chain(http.HandlerFunc(h.HandleComplete),
			httpx.RateLimitByIPAndFormField(r.limits.Credentials, "email"),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.signer))

	if r.gatherer != nil {
		r.Mux.Handle("GET /metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}
}
