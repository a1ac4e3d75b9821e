package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/passage/internal/auth/domain"
	"github.com/aussiebroadwan/passage/internal/auth/service"
	"github.com/aussiebroadwan/passage/internal/auth/store"
)

func resetState(t *testing.T, f *fixture, email string) domain.ResetState {
	t.Helper()
	tok, err := f.store.ResetTokens().GetResetToken(context.Background(), email)
	require.NoError(t, err)
	return tok.State()
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "alice@example.com")
	oldSession := f.login(t, "alice@example.com")

	require.NoError(t, f.engine.Resets.Request(ctx, "alice@example.com"))
	require.Equal(t, domain.ResetRequested, resetState(t, f, "alice@example.com"))
	slug := f.mailer.resetSlug(t, "alice@example.com")

	require.ErrorIs(t, f.engine.Resets.Authenticate(ctx, "alice@example.com", "wrong-slug"), service.ErrIncorrect)
	require.Equal(t, domain.ResetRequested, resetState(t, f, "alice@example.com"))

	require.NoError(t, f.engine.Resets.Authenticate(ctx, "alice@example.com", slug))
	require.Equal(t, domain.ResetAuthenticated, resetState(t, f, "alice@example.com"))

	// The slug was cleared; replaying it finds nothing.
	require.ErrorIs(t, f.engine.Resets.Authenticate(ctx, "alice@example.com", slug), service.ErrNotFound)

	require.NoError(t, f.engine.Resets.ChangePassword(ctx, "alice@example.com", "N3w-password"))
	require.Equal(t, domain.ResetSpent, resetState(t, f, "alice@example.com"))

	_, err := f.engine.Accounts.Login(ctx, "alice@example.com", testPassword)
	require.ErrorIs(t, err, service.ErrIncorrect)
	_, err = f.engine.Accounts.Login(ctx, "alice@example.com", "N3w-password")
	require.NoError(t, err)

	_, err = f.engine.Tokens.Validate(ctx, oldSession.Token)
	require.ErrorIs(t, err, service.ErrNotLoggedIn, "sessions are revoked by a reset")

	require.ErrorIs(t, f.engine.Resets.ChangePassword(ctx, "alice@example.com", "again"), service.ErrNotFound)
}

func TestResetKeepsSessionsWhenConfigured(t *testing.T) {
	f := newFixture(t, func(c *service.Config) { c.RevokeSessionsOnReset = false })
	ctx := context.Background()
	f.registerVerified(t, "alice@example.com")
	session := f.login(t, "alice@example.com")

	require.NoError(t, f.engine.Resets.Request(ctx, "alice@example.com"))
	require.NoError(t, f.engine.Resets.Authenticate(ctx, "alice@example.com", f.mailer.resetSlug(t, "alice@example.com")))
	require.NoError(t, f.engine.Resets.ChangePassword(ctx, "alice@example.com", "N3w-password"))

	_, err := f.engine.Tokens.Validate(ctx, session.Token)
	require.NoError(t, err)
}

func TestResetRequestFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "alice@example.com")
	_, err := f.engine.Accounts.Register(ctx, "pending@example.com", testPassword, testIP)
	require.NoError(t, err)

	require.ErrorIs(t, f.engine.Resets.Request(ctx, "nobody@example.com"), service.ErrNotFound)
	require.ErrorIs(t, f.engine.Resets.Request(ctx, "pending@example.com"), service.ErrNotFound)
	require.ErrorIs(t, f.engine.Resets.Request(ctx, ""), service.ErrValidation)

	require.NoError(t, f.engine.Resets.Request(ctx, "alice@example.com"))
	require.ErrorIs(t, f.engine.Resets.Request(ctx, "alice@example.com"), service.ErrResetPending)
}

func TestResetTokenExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "alice@example.com")

	require.NoError(t, f.engine.Resets.Request(ctx, "alice@example.com"))
	slug := f.mailer.resetSlug(t, "alice@example.com")

	f.clock.Advance(f.engine.Config.ResetTTL)

	require.ErrorIs(t, f.engine.Resets.Authenticate(ctx, "alice@example.com", slug), service.ErrNotFound)
	require.NoError(t, f.engine.Resets.Request(ctx, "alice@example.com"))
}

func TestResetRequestRollsBackWhenMailFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "alice@example.com")

	f.mailer.setFail(errSMTP)
	err := f.engine.Resets.Request(ctx, "alice@example.com")
	require.ErrorIs(t, err, errSMTP)
	require.Equal(t, service.KindInternal, service.KindOf(err))

	_, err = f.store.ResetTokens().GetResetToken(ctx, "alice@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	f.mailer.setFail(nil)
	require.NoError(t, f.engine.Resets.Request(ctx, "alice@example.com"))
}

func TestResetStepsOutOfOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "alice@example.com")

	require.ErrorIs(t, f.engine.Resets.ChangePassword(ctx, "alice@example.com", "x"), service.ErrNotFound)

	require.NoError(t, f.engine.Resets.Request(ctx, "alice@example.com"))
	require.ErrorIs(t, f.engine.Resets.ChangePassword(ctx, "alice@example.com", "x"), service.ErrNotFound)
	require.Equal(t, domain.ResetRequested, resetState(t, f, "alice@example.com"))
}

func TestConcurrentResetAuthenticateHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "alice@example.com")

	require.NoError(t, f.engine.Resets.Request(ctx, "alice@example.com"))
	slug := f.mailer.resetSlug(t, "alice@example.com")

	const n = 4
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.engine.Resets.Authenticate(ctx, "alice@example.com", slug)
		}()
	}
	wg.Wait()
	close(errs)

	var ok int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, service.ErrNotFound)
	}
	require.Equal(t, 1, ok)
}

func TestChangePasswordRestoresTokenWhenUserIsGone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.registerVerified(t, "alice@example.com")

	require.NoError(t, f.engine.Resets.Request(ctx, "alice@example.com"))
	require.NoError(t, f.engine.Resets.Authenticate(ctx, "alice@example.com", f.mailer.resetSlug(t, "alice@example.com")))

	require.NoError(t, f.store.Users().DeleteUser(ctx, u.ID))

	require.ErrorIs(t, f.engine.Resets.ChangePassword(ctx, "alice@example.com", "N3w-password"), service.ErrNotFound)
	require.Equal(t, domain.ResetAuthenticated, resetState(t, f, "alice@example.com"))
}
