package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/passage/internal/auth/domain"
	"github.com/aussiebroadwan/passage/internal/auth/service"
	"github.com/aussiebroadwan/passage/internal/auth/store"
	"github.com/aussiebroadwan/passage/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/passage/internal/auth/store/storetest"
	"github.com/aussiebroadwan/passage/pkg/cryptox"
	"github.com/aussiebroadwan/passage/pkg/jwtx"
)

const (
	testIP       = "1.2.3.4"
	testPassword = "Secret123!"
)

var (
	testSecret = []byte(strings.Repeat("k", jwtx.MinHS256SecretLength))
	errSMTP    = errors.New("smtp: connection refused")
)

type fakeMailer struct {
	mu           sync.Mutex
	verification map[string]string
	reset        map[string]string
	fail         error
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{verification: map[string]string{}, reset: map[string]string{}}
}

func (m *fakeMailer) SendVerificationEmail(_ context.Context, address, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.verification[address] = slug
	return nil
}

func (m *fakeMailer) SendResetEmail(_ context.Context, address, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.reset[address] = slug
	return nil
}

func (m *fakeMailer) setFail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *fakeMailer) verificationSlug(t *testing.T, address string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	slug, ok := m.verification[address]
	require.True(t, ok, "no verification mail for %s", address)
	return slug
}

func (m *fakeMailer) resetSlug(t *testing.T, address string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	slug, ok := m.reset[address]
	require.True(t, ok, "no reset mail for %s", address)
	return slug
}

type fixture struct {
	engine *service.Engine
	store  store.Store
	clock  *storetest.Clock
	mailer *fakeMailer
}

func newFixture(t *testing.T, mutate ...func(*service.Config)) *fixture {
	t.Helper()

	clock := storetest.NewClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	st, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "passage.db")), sqlite.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations(context.Background()))

	signer, err := jwtx.NewSignerHS256(testSecret)
	require.NoError(t, err)

	cfg := service.DefaultConfig()
	cfg.MaxLoginAttempts = 3
	for _, m := range mutate {
		m(&cfg)
	}

	mailer := newFakeMailer()
	engine := service.NewEngine(cfg, service.Deps{
		Store:     st,
		Mailer:    mailer,
		Passwords: cryptox.NewPasswordHasher(cryptox.PasswordParams{Memory: 1024, Iterations: 1, Parallelism: 1}, "pepper"),
		Secrets:   cryptox.NewSecretHasher(4),
		Signer:    signer,
		Verifier:  jwtx.NewVerifierHS256(testSecret, cfg.Issuer),
		Now:       clock.Now,
	})

	return &fixture{engine: engine, store: st, clock: clock, mailer: mailer}
}

// registerVerified creates an account and completes verification.
func (f *fixture) registerVerified(t *testing.T, email string) domain.User {
	t.Helper()
	ctx := context.Background()

	u, err := f.engine.Accounts.Register(ctx, email, testPassword, testIP)
	require.NoError(t, err)
	require.NoError(t, f.engine.Verification.Verify(ctx, f.mailer.verificationSlug(t, u.EmailAddress), testIP))

	got, err := f.store.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.Verified)
	return got
}

func (f *fixture) login(t *testing.T, email string) domain.Login {
	t.Helper()
	login, err := f.engine.Accounts.Login(context.Background(), email, testPassword)
	require.NoError(t, err)
	return login
}

func (f *fixture) user(t *testing.T, email string) domain.User {
	t.Helper()
	u, err := f.store.Users().GetUserByEmail(context.Background(), email)
	require.NoError(t, err)
	return u
}
