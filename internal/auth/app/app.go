package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	httpapi "github.com/aussiebroadwan/passage/internal/auth/http"
	"github.com/aussiebroadwan/passage/internal/auth/service"
	"github.com/aussiebroadwan/passage/internal/auth/store"
	"github.com/aussiebroadwan/passage/pkg/cryptox"
	"github.com/aussiebroadwan/passage/pkg/jwtx"
	"github.com/aussiebroadwan/passage/pkg/slogx"
)

// BuildVersion is overridden at build time via ldflags.
var BuildVersion = "dev"

// Application encapsulates the service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	signer   jwtx.Signer
	registry *prometheus.Registry

	// Services
	engine              *service.Engine
	housekeepingService *HousekeepingService

	// HTTP server
	server   *http.Server
	router   *httpapi.Router
	listener net.Listener

	shutdownOnce sync.Once
	shutdownErr  error
}

// Option customises New, mostly for tests.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	mailOut io.Writer
}

// WithLogger replaces the logger built from Config.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMailOutput sets where messages go when no SMTP host is configured.
func WithMailOutput(w io.Writer) Option {
	return func(o *options) { o.mailOut = w }
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg Config) *slog.Logger {
	return slogx.New(slogx.Config{
		Service: "passage",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
}

// New creates a new Application instance with all dependencies initialized.
// The store is migrated before New returns.
func New(ctx context.Context, cfg Config, opts ...Option) (*Application, error) {
	o := options{mailOut: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = NewLogger(cfg)
	}

	app := &Application{cfg: cfg, logger: o.logger}

	if err := app.initStore(ctx); err != nil {
		return nil, err
	}

	if err := app.initServices(o.mailOut); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	if err := app.initHTTP(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	return app, nil
}

// Run serves HTTP and the housekeeping loop until ctx is cancelled, then
// shuts down gracefully.
func (app *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", app.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", app.cfg.HTTPAddr, err)
	}
	app.listener = ln

	app.housekeepingService.Start(ctx)
	app.logger.Info("passage starting",
		"addr", ln.Addr().String(),
		"store", app.cfg.Store.Driver,
		"version", BuildVersion,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		shutdownErr := app.Shutdown()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return shutdownErr
	case <-ctx.Done():
		app.logger.Info("shutdown requested", "cause", context.Cause(ctx))
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// Addr is the address the server is listening on, once Run has started.
func (app *Application) Addr() net.Addr {
	if app.listener == nil {
		return nil
	}
	return app.listener.Addr()
}

// Handler exposes the HTTP handler, e.g. for httptest.
func (app *Application) Handler() http.Handler { return app.router }

// Engine exposes the account engine.
func (app *Application) Engine() *service.Engine { return app.engine }

// Shutdown gracefully shuts down the application. It is safe to call more
// than once.
func (app *Application) Shutdown() error {
	app.shutdownOnce.Do(func() {
		app.shutdownErr = app.shutdown()
	})
	return app.shutdownErr
}

func (app *Application) shutdown() error {
	app.logger.Info("shutting down passage...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing store", "error", err)
		return err
	}

	app.logger.Info("passage stopped")
	return nil
}

// initStore opens the configured store and applies migrations.
func (app *Application) initStore(ctx context.Context) error {
	db, err := OpenStore(ctx, app.cfg.Store, app.cfg.Token.TTL)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply store migrations: %w", err)
	}

	app.logger.Info("store ready", "driver", app.cfg.Store.Driver)
	return nil
}

// initServices builds the engine and its collaborators.
func (app *Application) initServices(mailOut io.Writer) error {
	signer, verifier, err := NewSignerVerifier(app.cfg.Token, app.cfg.Issuer, app.logger)
	if err != nil {
		return err
	}
	app.signer = signer

	passwords, err := NewPasswordHasher(app.cfg.Hashing)
	if err != nil {
		return err
	}

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := service.NewMetrics(app.registry)

	app.engine = service.NewEngine(app.cfg.EngineConfig(), service.Deps{
		Store:     app.db,
		Mailer:    NewMailer(app.cfg.SMTP, mailOut, app.logger),
		Passwords: passwords,
		Secrets:   cryptox.NewSecretHasher(app.cfg.Hashing.SecretCost),
		Signer:    signer,
		Verifier:  verifier,
		Metrics:   metrics,
	})

	app.housekeepingService = NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.SweepInterval,
		app.cfg.Token.TTL,
	)
	app.housekeepingService.Metrics = metrics
	return nil
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() error {
	proxies, err := app.cfg.Proxies()
	if err != nil {
		return fmt.Errorf("invalid trusted proxies: %w", err)
	}
	if len(proxies) > 0 {
		app.logger.Info("honouring forwarding headers", "trusted_proxies", app.cfg.TrustedProxies)
	}

	router := httpapi.NewRouter(
		app.engine,
		app.db,
		app.signer,
		app.registry,
		app.cfg.RateLimits,
		proxies,
		BuildVersion,
		app.logger,
	)
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              app.cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
	return nil
}

// Migrate opens the configured store and applies migrations only.
func Migrate(ctx context.Context, cfg Config, logger *slog.Logger) error {
	db, err := OpenStore(ctx, cfg.Store, cfg.Token.TTL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.ApplyMigrations(ctx); err != nil {
		return err
	}
	logger.Info("migrations applied", "driver", cfg.Store.Driver)
	return nil
}

// Sweep runs one housekeeping pass against the configured store.
func Sweep(ctx context.Context, cfg Config, logger *slog.Logger) (SweepResult, error) {
	db, err := OpenStore(ctx, cfg.Store, cfg.Token.TTL)
	if err != nil {
		return SweepResult{}, err
	}
	defer db.Close()

	hk := NewHousekeepingService(db, logger, cfg.SweepInterval, cfg.Token.TTL)
	return hk.Sweep(ctx), nil
}
