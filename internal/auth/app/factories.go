package app

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/aussiebroadwan/passage/internal/auth/mail"
	"github.com/aussiebroadwan/passage/internal/auth/service"
	"github.com/aussiebroadwan/passage/internal/auth/store"
	"github.com/aussiebroadwan/passage/internal/auth/store/drivers/postgres"
	"github.com/aussiebroadwan/passage/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/passage/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/passage/pkg/cryptox"
	"github.com/aussiebroadwan/passage/pkg/jwtx"
)

// OpenStore connects the configured driver. Migrations are not applied.
// sessionTTL is the token lifetime, used by drivers that trim session sets
// as they grow.
func OpenStore(ctx context.Context, cfg StoreConfig, sessionTTL time.Duration) (store.Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		st, err := sqlite.NewStore(sqlite.DSN(cfg.SQLitePath))
		if err != nil {
			return nil, oops.Code("DB_CONNECT_FAILED").With("driver", "sqlite").Wrap(err)
		}
		return st, nil

	case "postgres":
		return postgres.Open(ctx, cfg.PostgresURL)

	case "redis":
		addr := cfg.RedisAddr
		if !strings.Contains(addr, "://") {
			addr = "redis://" + addr
		}
		st, err := redis.Open(ctx, addr, redis.WithPrefix(cfg.RedisPrefix), redis.WithSessionTTL(sessionTTL))
		if err != nil {
			return nil, oops.Code("DB_CONNECT_FAILED").With("driver", "redis").Wrap(err)
		}
		return st, nil

	default:
		return nil, oops.Code("CONFIG_INVALID").Errorf("unknown store driver %q", cfg.Driver)
	}
}

// NewSignerVerifier loads or creates the token signing material.
func NewSignerVerifier(cfg TokenConfig, issuer string, logger *slog.Logger) (jwtx.Signer, jwtx.Verifier, error) {
	switch strings.ToUpper(cfg.Alg) {
	case "EDDSA":
		pemKey, err := cryptox.LoadOrCreateEd25519Key(cfg.KeyPath)
		if err != nil {
			return nil, nil, oops.Code("KEY_LOAD_FAILED").With("path", cfg.KeyPath).Wrap(err)
		}
		signer, err := jwtx.NewSignerEdDSA(pemKey)
		if err != nil {
			return nil, nil, oops.Code("KEY_LOAD_FAILED").Wrap(err)
		}
		ed := signer.(*jwtx.EdDSASigner)
		logger.Info("token signer ready", "alg", signer.Alg(), "kid", ed.KeyID(), "key_path", cfg.KeyPath)
		return signer, jwtx.NewVerifierEdDSA(ed.Public(), issuer), nil

	default:
		secret, err := cryptox.LoadOrCreateSigningSecret(cfg.SecretPath)
		if err != nil {
			return nil, nil, oops.Code("KEY_LOAD_FAILED").With("path", cfg.SecretPath).Wrap(err)
		}
		signer, err := jwtx.NewSignerHS256(secret)
		if err != nil {
			return nil, nil, oops.Code("KEY_LOAD_FAILED").Wrap(err)
		}
		logger.Info("token signer ready", "alg", signer.Alg(), "secret_path", cfg.SecretPath)
		return signer, jwtx.NewVerifierHS256(secret, issuer), nil
	}
}

// NewMailer returns an SMTP mailer when a host is configured, otherwise a
// mailer that prints messages to out.
func NewMailer(cfg mail.Config, out io.Writer, logger *slog.Logger) service.Mailer {
	if cfg.Host != "" {
		logger.Info("mail delivery via smtp", "host", cfg.Host, "port", cfg.Port)
		return mail.NewSMTPMailer(cfg)
	}
	logger.Warn("no smtp host configured, printing mail to stdout")
	return &mail.WriterMailer{Config: cfg, W: out}
}

// NewPasswordHasher loads or creates the pepper and applies the argon2id
// cost settings.
func NewPasswordHasher(cfg HashingConfig) (*cryptox.PasswordHasher, error) {
	pepper, err := cryptox.LoadOrCreatePepper(cfg.PepperPath)
	if err != nil {
		return nil, oops.Code("KEY_LOAD_FAILED").With("path", cfg.PepperPath).Wrap(err)
	}
	return cryptox.NewPasswordHasher(cryptox.PasswordParams{
		Memory:      cfg.ArgonMemory,
		Iterations:  cfg.ArgonIterations,
		Parallelism: cfg.ArgonParallelism,
	}, pepper), nil
}
