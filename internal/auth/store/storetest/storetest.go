// Package storetest is a behavioural suite every store driver must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/passage/internal/auth/domain"
	"github.com/aussiebroadwan/passage/internal/auth/store"
	"github.com/aussiebroadwan/passage/pkg/idx"
	"github.com/stretchr/testify/require"
)

// Harness is a fresh, empty store plus control over the time it observes.
type Harness struct {
	Store store.Store

	// Now is the time the store currently treats as "now".
	Now func() time.Time

	// Advance moves the store's notion of time forward, including any
	// native expiry mechanism.
	Advance func(time.Duration)

	// NativeExpiry is set for drivers that purge on their own and report
	// zero from the sweep methods.
	NativeExpiry bool
}

// Clock is a settable time source for drivers that accept one.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock { return &Clock{now: start} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Run executes the suite, calling newHarness once per subtest.
func Run(t *testing.T, newHarness func(t *testing.T) Harness) {
	t.Run("users", func(t *testing.T) { runUsers(t, newHarness) })
	t.Run("sessions", func(t *testing.T) { runSessions(t, newHarness) })
	t.Run("expiry", func(t *testing.T) { runUserExpiry(t, newHarness) })
	t.Run("reset tokens", func(t *testing.T) { runResetTokens(t, newHarness) })
}

// NewUnverifiedUser builds a user whose verification window closes after ttl.
func NewUnverifiedUser(email string, now time.Time, ttl time.Duration) *domain.User {
	exp := now.Add(ttl).Truncate(time.Millisecond)
	return &domain.User{
		ID:                   idx.NewAt(now).String(),
		EmailAddress:         email,
		PasswordHash:         "$argon2id$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA",
		LoginAttemptsExpiry:  now.Truncate(time.Millisecond),
		VerificationSlugHash: "slug-hash",
		VerificationIPHash:   "ip-hash",
		VerificationExpiry:   &exp,
	}
}

func runUsers(t *testing.T, newHarness func(t *testing.T) Harness) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		h := newHarness(t)
		u := NewUnverifiedUser("alice@example.com", h.Now(), time.Hour)
		require.NoError(t, h.Store.Users().CreateUser(ctx, u))
		require.EqualValues(t, 1, u.Version)

		byID, err := h.Store.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, u.EmailAddress, byID.EmailAddress)
		require.Equal(t, u.PasswordHash, byID.PasswordHash)
		require.Equal(t, "slug-hash", byID.VerificationSlugHash)
		require.Equal(t, "ip-hash", byID.VerificationIPHash)
		require.NotNil(t, byID.VerificationExpiry)
		require.True(t, u.VerificationExpiry.Equal(*byID.VerificationExpiry))
		require.False(t, byID.Verified)
		require.Empty(t, byID.SessionNonces)
		require.EqualValues(t, 1, byID.Version)

		byEmail, err := h.Store.Users().GetUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.Equal(t, u.ID, byEmail.ID)
	})

	t.Run("missing user", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.Store.Users().GetUserByID(ctx, idx.New().String())
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = h.Store.Users().GetUserByEmail(ctx, "nobody@example.com")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate email", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.Store.Users().CreateUser(ctx, NewUnverifiedUser("dup@example.com", h.Now(), time.Hour)))

		err := h.Store.Users().CreateUser(ctx, NewUnverifiedUser("dup@example.com", h.Now(), time.Hour))
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("conditional update", func(t *testing.T) {
		h := newHarness(t)
		u := NewUnverifiedUser("cas@example.com", h.Now(), time.Hour)
		require.NoError(t, h.Store.Users().CreateUser(ctx, u))

		first, err := h.Store.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		second := first

		first.LoginAttempts = 3
		first.LoginAttemptsExpiry = h.Now().Add(5 * time.Minute).Truncate(time.Millisecond)
		require.NoError(t, h.Store.Users().UpdateUser(ctx, &first))
		require.EqualValues(t, 2, first.Version)

		second.LoginAttempts = 1
		require.ErrorIs(t, h.Store.Users().UpdateUser(ctx, &second), store.ErrConflict)
		require.EqualValues(t, 1, second.Version, "failed update leaves version alone")

		got, err := h.Store.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, 3, got.LoginAttempts)
		require.True(t, first.LoginAttemptsExpiry.Equal(got.LoginAttemptsExpiry))
		require.EqualValues(t, 2, got.Version)
	})

	t.Run("update verifies and persists", func(t *testing.T) {
		h := newHarness(t)
		u := NewUnverifiedUser("verify@example.com", h.Now(), time.Hour)
		require.NoError(t, h.Store.Users().CreateUser(ctx, u))

		u.MarkVerified()
		require.NoError(t, h.Store.Users().UpdateUser(ctx, u))

		// Verified accounts outlive the old verification window.
		h.Advance(2 * time.Hour)

		got, err := h.Store.Users().GetUserByEmail(ctx, "verify@example.com")
		require.NoError(t, err)
		require.True(t, got.Verified)
		require.Empty(t, got.VerificationSlugHash)
		require.Empty(t, got.VerificationIPHash)
		require.Nil(t, got.VerificationExpiry)
	})

	t.Run("update missing user", func(t *testing.T) {
		h := newHarness(t)
		u := NewUnverifiedUser("ghost@example.com", h.Now(), time.Hour)
		u.Version = 1
		require.ErrorIs(t, h.Store.Users().UpdateUser(ctx, u), store.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		h := newHarness(t)
		u := NewUnverifiedUser("gone@example.com", h.Now(), time.Hour)
		require.NoError(t, h.Store.Users().CreateUser(ctx, u))
		require.NoError(t, h.Store.Users().AddSessionNonce(ctx, u.ID, "n1"))

		require.NoError(t, h.Store.Users().DeleteUser(ctx, u.ID))
		_, err := h.Store.Users().GetUserByID(ctx, u.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
		require.ErrorIs(t, h.Store.Users().DeleteUser(ctx, u.ID), store.ErrNotFound)

		// The email is free again.
		require.NoError(t, h.Store.Users().CreateUser(ctx, NewUnverifiedUser("gone@example.com", h.Now(), time.Hour)))
	})
}

func runSessions(t *testing.T, newHarness func(t *testing.T) Harness) {
	ctx := context.Background()

	t.Run("add remove clear", func(t *testing.T) {
		h := newHarness(t)
		u := NewUnverifiedUser("s@example.com", h.Now(), time.Hour)
		require.NoError(t, h.Store.Users().CreateUser(ctx, u))
		users := h.Store.Users()

		require.NoError(t, users.AddSessionNonce(ctx, u.ID, "n1"))
		require.NoError(t, users.AddSessionNonce(ctx, u.ID, "n2"))

		got, err := users.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"n1", "n2"}, got.SessionNonces)

		require.NoError(t, users.RemoveSessionNonce(ctx, u.ID, "n1"))
		require.NoError(t, users.RemoveSessionNonce(ctx, u.ID, "absent"))
		got, err = users.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, []string{"n2"}, got.SessionNonces)

		require.NoError(t, users.ClearSessionNonces(ctx, u.ID))
		got, err = users.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Empty(t, got.SessionNonces)
	})

	t.Run("nonce changes leave version alone", func(t *testing.T) {
		h := newHarness(t)
		u := NewUnverifiedUser("v@example.com", h.Now(), time.Hour)
		require.NoError(t, h.Store.Users().CreateUser(ctx, u))

		require.NoError(t, h.Store.Users().AddSessionNonce(ctx, u.ID, "n1"))

		// A writer holding the pre-add revision still succeeds, and the
		// nonce survives its write.
		u.LoginAttempts = 1
		require.NoError(t, h.Store.Users().UpdateUser(ctx, u))

		got, err := h.Store.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, []string{"n1"}, got.SessionNonces)
		require.Equal(t, 1, got.LoginAttempts)
	})

	t.Run("stale nonces are swept", func(t *testing.T) {
		h := newHarness(t)
		alice := NewUnverifiedUser("alice@example.com", h.Now(), 24*time.Hour)
		bob := NewUnverifiedUser("bob@example.com", h.Now(), 24*time.Hour)
		users := h.Store.Users()
		require.NoError(t, users.CreateUser(ctx, alice))
		require.NoError(t, users.CreateUser(ctx, bob))

		require.NoError(t, users.AddSessionNonce(ctx, alice.ID, "old-a"))
		require.NoError(t, users.AddSessionNonce(ctx, bob.ID, "old-b"))
		h.Advance(time.Hour)
		require.NoError(t, users.AddSessionNonce(ctx, alice.ID, "fresh"))

		n, err := users.DeleteStaleSessionNonces(ctx, h.Now().Add(-30*time.Minute))
		require.NoError(t, err)
		require.EqualValues(t, 2, n)

		got, err := users.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		require.Equal(t, []string{"fresh"}, got.SessionNonces)
		got, err = users.GetUserByID(ctx, bob.ID)
		require.NoError(t, err)
		require.Empty(t, got.SessionNonces)

		n, err = users.DeleteStaleSessionNonces(ctx, h.Now().Add(-30*time.Minute))
		require.NoError(t, err)
		require.Zero(t, n)
	})

	t.Run("add to missing user", func(t *testing.T) {
		h := newHarness(t)
		err := h.Store.Users().AddSessionNonce(ctx, idx.New().String(), "n1")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("concurrent adds all persist", func(t *testing.T) {
		h := newHarness(t)
		u := NewUnverifiedUser("c@example.com", h.Now(), time.Hour)
		require.NoError(t, h.Store.Users().CreateUser(ctx, u))

		const n = 10
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- h.Store.Users().AddSessionNonce(ctx, u.ID, fmt.Sprintf("nonce-%d", i))
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := h.Store.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, got.SessionNonces, n)
	})
}

func runUserExpiry(t *testing.T, newHarness func(t *testing.T) Harness) {
	ctx := context.Background()

	t.Run("lapsed unverified account disappears", func(t *testing.T) {
		h := newHarness(t)
		u := NewUnverifiedUser("late@example.com", h.Now(), time.Minute)
		require.NoError(t, h.Store.Users().CreateUser(ctx, u))

		h.Advance(2 * time.Minute)

		_, err := h.Store.Users().GetUserByID(ctx, u.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = h.Store.Users().GetUserByEmail(ctx, "late@example.com")
		require.ErrorIs(t, err, store.ErrNotFound)

		n, err := h.Store.Users().DeleteExpiredUnverified(ctx, h.Now())
		require.NoError(t, err)
		if h.NativeExpiry {
			require.Zero(t, n)
		} else {
			require.EqualValues(t, 1, n)
		}
	})

	t.Run("lapsed account does not block registration", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.Store.Users().CreateUser(ctx, NewUnverifiedUser("again@example.com", h.Now(), time.Minute)))

		h.Advance(2 * time.Minute)

		fresh := NewUnverifiedUser("again@example.com", h.Now(), time.Hour)
		require.NoError(t, h.Store.Users().CreateUser(ctx, fresh))

		got, err := h.Store.Users().GetUserByEmail(ctx, "again@example.com")
		require.NoError(t, err)
		require.Equal(t, fresh.ID, got.ID)
	})
}

func runResetTokens(t *testing.T, newHarness func(t *testing.T) Harness) {
	ctx := context.Background()
	newToken := func(h Harness, email string, ttl time.Duration) *domain.PasswordResetToken {
		return &domain.PasswordResetToken{
			EmailAddress: email,
			AuthSlugHash: "slug-hash",
			AuthExpiry:   h.Now().Add(ttl).Truncate(time.Millisecond),
		}
	}

	t.Run("create get update", func(t *testing.T) {
		h := newHarness(t)
		tokens := h.Store.ResetTokens()
		tok := newToken(h, "alice@example.com", time.Hour)
		require.NoError(t, tokens.CreateResetToken(ctx, tok))
		require.EqualValues(t, 1, tok.Version)

		got, err := tokens.GetResetToken(ctx, "alice@example.com")
		require.NoError(t, err)
		require.Equal(t, domain.ResetRequested, got.State())
		require.Equal(t, "slug-hash", got.AuthSlugHash)
		require.True(t, tok.AuthExpiry.Equal(got.AuthExpiry))

		stale := got
		got.Authenticated = true
		got.AuthSlugHash = ""
		require.NoError(t, tokens.UpdateResetToken(ctx, &got))
		require.EqualValues(t, 2, got.Version)

		stale.Authenticated = true
		require.ErrorIs(t, tokens.UpdateResetToken(ctx, &stale), store.ErrConflict)

		got, err = tokens.GetResetToken(ctx, "alice@example.com")
		require.NoError(t, err)
		require.Equal(t, domain.ResetAuthenticated, got.State())
		require.Empty(t, got.AuthSlugHash)
	})

	t.Run("one live token per email", func(t *testing.T) {
		h := newHarness(t)
		tokens := h.Store.ResetTokens()
		require.NoError(t, tokens.CreateResetToken(ctx, newToken(h, "bob@example.com", time.Hour)))
		require.ErrorIs(t, tokens.CreateResetToken(ctx, newToken(h, "bob@example.com", time.Hour)), store.ErrAlreadyExists)

		require.NoError(t, tokens.DeleteResetToken(ctx, "bob@example.com"))
		require.NoError(t, tokens.DeleteResetToken(ctx, "bob@example.com"))
		require.NoError(t, tokens.CreateResetToken(ctx, newToken(h, "bob@example.com", time.Hour)))
	})

	t.Run("expired token is absent", func(t *testing.T) {
		h := newHarness(t)
		tokens := h.Store.ResetTokens()
		tok := newToken(h, "carol@example.com", time.Minute)
		require.NoError(t, tokens.CreateResetToken(ctx, tok))

		h.Advance(2 * time.Minute)

		_, err := tokens.GetResetToken(ctx, "carol@example.com")
		require.ErrorIs(t, err, store.ErrNotFound)

		tok.Authenticated = true
		require.ErrorIs(t, tokens.UpdateResetToken(ctx, tok), store.ErrNotFound)

		n, err := tokens.DeleteExpiredResetTokens(ctx, h.Now())
		require.NoError(t, err)
		if !h.NativeExpiry {
			require.EqualValues(t, 1, n)
		}

		require.NoError(t, tokens.CreateResetToken(ctx, newToken(h, "carol@example.com", time.Hour)))
	})

	t.Run("missing token", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.Store.ResetTokens().GetResetToken(ctx, "nobody@example.com")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}
