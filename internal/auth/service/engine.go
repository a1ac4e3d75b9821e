package service

import (
	"time"

	"github.com/aussiebroadwan/passage/internal/auth/store"
	"github.com/aussiebroadwan/passage/pkg/cryptox"
	"github.com/aussiebroadwan/passage/pkg/jwtx"
)

// Deps are the collaborators the engine is built from. Secrets, Metrics and
// Now are optional.
type Deps struct {
	Store     store.Store
	Mailer    Mailer
	Passwords *cryptox.PasswordHasher
	Secrets   *cryptox.SecretHasher
	Signer    jwtx.Signer
	Verifier  jwtx.Verifier
	Metrics   *Metrics
	Now       func() time.Time
}

// Engine groups the services that share one store and configuration.
type Engine struct {
	Config       Config
	Accounts     *AccountService
	Verification *VerificationService
	Resets       *PasswordResetService
	Tokens       *TokenService
	Sessions     *SessionRegistry
}

// NewEngine wires the services together.
func NewEngine(cfg Config, deps Deps) *Engine {
	cfg = cfg.withDefaults()
	if deps.Secrets == nil {
		deps.Secrets = cryptox.NewSecretHasher(cryptox.DefaultSecretCost)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	creds := &Credentials{Hasher: deps.Passwords}
	sessions := &SessionRegistry{Store: deps.Store, Secrets: deps.Secrets}
	tokens := &TokenService{
		Store:    deps.Store,
		Sessions: sessions,
		Signer:   deps.Signer,
		Verifier: deps.Verifier,
		Issuer:   cfg.Issuer,
		TTL:      cfg.TokenTTL,
		Now:      deps.Now,
	}
	verification := &VerificationService{
		Store:   deps.Store,
		Secrets: deps.Secrets,
		Config:  cfg,
		Metrics: deps.Metrics,
		Now:     deps.Now,
	}

	return &Engine{
		Config:       cfg,
		Sessions:     sessions,
		Tokens:       tokens,
		Verification: verification,
		Accounts: &AccountService{
			Store:        deps.Store,
			Credentials:  creds,
			Throttle:     Throttle{MaxAttempts: cfg.MaxLoginAttempts, Window: cfg.LockoutWindow},
			Sessions:     sessions,
			Tokens:       tokens,
			Verification: verification,
			Mailer:       deps.Mailer,
			Config:       cfg,
			Metrics:      deps.Metrics,
			Now:          deps.Now,
		},
		Resets: &PasswordResetService{
			Store:       deps.Store,
			Credentials: creds,
			Secrets:     deps.Secrets,
			Sessions:    sessions,
			Mailer:      deps.Mailer,
			Config:      cfg,
			Metrics:     deps.Metrics,
			Now:         deps.Now,
		},
	}
}
