package http_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	authhttp "github.com/aussiebroadwan/passage/internal/auth/http"
	"github.com/aussiebroadwan/passage/internal/auth/service"
	"github.com/aussiebroadwan/passage/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/passage/pkg/authsdk"
	"github.com/aussiebroadwan/passage/pkg/cryptox"
	"github.com/aussiebroadwan/passage/pkg/httpx"
	"github.com/aussiebroadwan/passage/pkg/jwtx"
	"github.com/aussiebroadwan/passage/pkg/slogx"
)

const testPassword = "Secret123!"

var testSecret = []byte(strings.Repeat("k", jwtx.MinHS256SecretLength))

type outbox struct {
	mu           sync.Mutex
	verification map[string]string
	reset        map[string]string
}

func (o *outbox) SendVerificationEmail(_ context.Context, address, slug string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.verification[address] = slug
	return nil
}

func (o *outbox) SendResetEmail(_ context.Context, address, slug string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reset[address] = slug
	return nil
}

func (o *outbox) slug(t *testing.T, m map[string]string, address string) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := m[address]
	require.True(t, ok, "no mail for %s", address)
	return s
}

type server struct {
	client *authsdk.Client
	url    string
	outbox *outbox
}

func newServer(t *testing.T, limits authhttp.Limits) *server {
	t.Helper()

	st, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "passage.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations(context.Background()))

	signer, err := jwtx.NewSignerHS256(testSecret)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	cfg := service.DefaultConfig()
	box := &outbox{verification: map[string]string{}, reset: map[string]string{}}
	engine := service.NewEngine(cfg, service.Deps{
		Store:     st,
		Mailer:    box,
		Passwords: cryptox.NewPasswordHasher(cryptox.PasswordParams{Memory: 1024, Iterations: 1, Parallelism: 1}, "pepper"),
		Secrets:   cryptox.NewSecretHasher(4),
		Signer:    signer,
		Verifier:  jwtx.NewVerifierHS256(testSecret, cfg.Issuer),
		Metrics:   service.NewMetrics(reg),
	})

	router := authhttp.NewRouter(engine, st, signer, reg, limits, nil, "test", slogx.Discard())
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &server{client: authsdk.NewClient(srv.URL), url: srv.URL, outbox: box}
}

func (s *server) registerVerified(t *testing.T, email string) *authsdk.UserResponse {
	t.Helper()
	ctx := context.Background()

	user, err := s.client.Register(ctx, email, testPassword)
	require.NoError(t, err)
	require.NoError(t, s.client.Verify(ctx, s.outbox.slug(t, s.outbox.verification, user.Email)))
	return user
}

func TestRegisterVerifyLogin(t *testing.T) {
	s := newServer(t, authhttp.Limits{})
	ctx := context.Background()

	user, err := s.client.Register(ctx, "Ada@Example.com", testPassword)
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", user.Email)
	require.False(t, user.Verified)
	require.NotEmpty(t, user.UserID)

	_, err = s.client.Login(ctx, "ada@example.com", testPassword)
	require.True(t, authsdk.IsUnauthorized(err))
	require.Contains(t, err.Error(), "not verified")

	_, err = s.client.Register(ctx, "ada@example.com", testPassword)
	require.True(t, authsdk.IsConflict(err))

	require.NoError(t, s.client.Verify(ctx, s.outbox.slug(t, s.outbox.verification, "ada@example.com")))

	sess, err := s.client.Login(ctx, "ada@example.com", testPassword)
	require.NoError(t, err)
	require.Equal(t, user.UserID, sess.UserID())
	require.True(t, sess.ExpiresAt().After(time.Now()))

	me, err := sess.Me(ctx)
	require.NoError(t, err)
	require.True(t, me.Verified)
	require.Equal(t, 1, me.Sessions)
}

func TestRegisterValidation(t *testing.T) {
	s := newServer(t, authhttp.Limits{})

	_, err := s.client.Register(context.Background(), "not-an-address", "")
	require.True(t, authsdk.IsValidation(err))

	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Equal(t, "invalid", apiErr.Fields["email"])
	require.Equal(t, "required", apiErr.Fields["password"])
}

func TestVerifyUnknownSlug(t *testing.T) {
	s := newServer(t, authhttp.Limits{})

	err := s.client.Verify(context.Background(), "nobody.secret")
	require.True(t, authsdk.IsNotFound(err))

	err = s.client.Verify(context.Background(), "")
	require.True(t, authsdk.IsValidation(err))
}

func TestWrongPasswordIsGeneric(t *testing.T) {
	s := newServer(t, authhttp.Limits{})
	ctx := context.Background()
	s.registerVerified(t, "ada@example.com")

	_, wrong := s.client.Login(ctx, "ada@example.com", "nope")
	_, unknown := s.client.Login(ctx, "bob@example.com", testPassword)

	var a, b *authsdk.APIError
	require.ErrorAs(t, wrong, &a)
	require.ErrorAs(t, unknown, &b)
	require.Equal(t, http.StatusUnauthorized, a.Status)
	require.Equal(t, *a, *b)
}

func TestLogout(t *testing.T) {
	s := newServer(t, authhttp.Limits{})
	ctx := context.Background()
	s.registerVerified(t, "ada@example.com")

	phone, err := s.client.Login(ctx, "ada@example.com", testPassword)
	require.NoError(t, err)
	laptop, err := s.client.Login(ctx, "ada@example.com", testPassword)
	require.NoError(t, err)

	phoneToken := phone.Token()
	require.NoError(t, phone.Logout(ctx))

	stale := s.client.NewSessionFromToken(phone.UserID(), phoneToken, phone.ExpiresAt())
	_, err = stale.Me(ctx)
	require.True(t, authsdk.IsUnauthorized(err))

	me, err := laptop.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, me.Sessions)

	tablet, err := s.client.Login(ctx, "ada@example.com", testPassword)
	require.NoError(t, err)
	require.NoError(t, tablet.LogoutAll(ctx))

	_, err = laptop.Me(ctx)
	require.True(t, authsdk.IsUnauthorized(err))
}

func TestMissingBearer(t *testing.T) {
	s := newServer(t, authhttp.Limits{})

	resp, err := http.Get(s.url + "/v1/users/me")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, resp.Header.Get("WWW-Authenticate"), "invalid_token")

	_, err = s.client.NewSessionFromToken("u", "garbage", time.Now().Add(time.Hour)).Me(context.Background())
	require.True(t, authsdk.IsUnauthorized(err))
}

func TestDeleteAccount(t *testing.T) {
	s := newServer(t, authhttp.Limits{})
	ctx := context.Background()
	s.registerVerified(t, "ada@example.com")

	sess, err := s.client.Login(ctx, "ada@example.com", testPassword)
	require.NoError(t, err)
	token := sess.Token()

	require.True(t, authsdk.IsUnauthorized(sess.DeleteAccount(ctx, "nope")))
	require.NotEmpty(t, sess.Token(), "failed delete keeps the session")

	require.NoError(t, sess.DeleteAccount(ctx, testPassword))

	_, err = s.client.Login(ctx, "ada@example.com", testPassword)
	require.True(t, authsdk.IsUnauthorized(err))

	_, err = s.client.NewSessionFromToken(sess.UserID(), token, time.Now().Add(time.Hour)).Me(ctx)
	require.Error(t, err)
}

func TestPasswordReset(t *testing.T) {
	s := newServer(t, authhttp.Limits{})
	ctx := context.Background()
	s.registerVerified(t, "ada@example.com")

	old, err := s.client.Login(ctx, "ada@example.com", testPassword)
	require.NoError(t, err)

	require.NoError(t, s.client.RequestPasswordReset(ctx, "ada@example.com"))
	require.True(t, authsdk.IsConflict(s.client.RequestPasswordReset(ctx, "ada@example.com")))

	slug := s.outbox.slug(t, s.outbox.reset, "ada@example.com")
	require.True(t, authsdk.IsUnauthorized(s.client.AuthenticatePasswordReset(ctx, "ada@example.com", "wrong")))
	require.NoError(t, s.client.AuthenticatePasswordReset(ctx, "ada@example.com", slug))
	require.NoError(t, s.client.CompletePasswordReset(ctx, "ada@example.com", "N3wPassword!"))

	_, err = old.Me(ctx)
	require.True(t, authsdk.IsUnauthorized(err), "reset revokes existing sessions")

	_, err = s.client.Login(ctx, "ada@example.com", testPassword)
	require.True(t, authsdk.IsUnauthorized(err))
	_, err = s.client.Login(ctx, "ada@example.com", "N3wPassword!")
	require.NoError(t, err)
}

func TestResetUnknownEmail(t *testing.T) {
	s := newServer(t, authhttp.Limits{})

	err := s.client.RequestPasswordReset(context.Background(), "nobody@example.com")
	require.True(t, authsdk.IsNotFound(err))
}

func TestLoginRateLimited(t *testing.T) {
	limits := authhttp.DefaultLimits()
	limits.Credentials = httpx.RateLimitConfig{RequestsPerWindow: 2, Window: time.Hour, Burst: 2}
	s := newServer(t, limits)
	ctx := context.Background()

	for range 2 {
		_, err := s.client.Login(ctx, "ada@example.com", "nope")
		require.True(t, authsdk.IsUnauthorized(err))
	}

	_, err := s.client.Login(ctx, "ada@example.com", "nope")
	require.True(t, authsdk.IsRateLimited(err))

	// Another address from the same IP has its own bucket.
	_, err = s.client.Login(ctx, "bob@example.com", "nope")
	require.True(t, authsdk.IsUnauthorized(err))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t, authhttp.Limits{})
	ctx := context.Background()

	live, err := s.client.GetLiveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	ready, err := s.client.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
	require.Equal(t, "ok", ready.Checks.Store)
	require.Equal(t, "ok", ready.Checks.Signer)

	_, _ = s.client.Login(ctx, "nobody@example.com", "nope")

	resp, err := http.Get(s.url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := new(strings.Builder)
	_, err = io.Copy(body, resp.Body)
	require.NoError(t, err)
	require.Contains(t, body.String(), `passage_logins_total{result="incorrect"} 1`)
}

func TestFormOnlyBodies(t *testing.T) {
	s := newServer(t, authhttp.Limits{})

	resp, err := http.PostForm(s.url+"/v1/users", url.Values{"email": {"ada@example.com"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}
