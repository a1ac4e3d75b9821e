package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/passage/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const exampleIssuer = "https://passage.example.test"

func TestNewSessionClaims(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	c := jwtx.NewSessionClaims("user-1", "nonce", jwtx.DefaultSessionTTL, exampleIssuer, now)

	require.Equal(t, "user-1", c.Subject)
	require.Equal(t, "nonce", c.SID)
	require.Equal(t, exampleIssuer, c.Issuer)
	require.True(t, c.ExpiresAt.Equal(now.Add(48*time.Hour)))
	require.NoError(t, c.ValidateRequired())
}

func TestValidateRequired(t *testing.T) {
	exp := jwt.NewNumericDate(time.Now())

	tests := []struct {
		name   string
		claims jwtx.Claims
	}{
		{"missing subject", jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}, SID: "s"}},
		{"missing sid", jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u", ExpiresAt: exp}}},
		{"missing exp", jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}, SID: "s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.claims.ValidateRequired(), jwtx.ErrMissingClaim)
		})
	}
}

func TestValidateIssuer(t *testing.T) {
	c := &jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "auth-service",
		},
	}

	t.Run("matching issuer", func(t *testing.T) {
		require.NoError(t, c.ValidateIssuer("auth-service"))
	})

	t.Run("empty expected issuer", func(t *testing.T) {
		require.NoError(t, c.ValidateIssuer(""))
	})

	t.Run("mismatched issuer", func(t *testing.T) {
		require.ErrorIs(t, c.ValidateIssuer("chat-service"), jwtx.ErrIssuer)
	})
}

func TestValidateExpiryAt(t *testing.T) {
	now := time.Now().UTC()
	claims := &jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now),
		},
	}

	require.NoError(t, claims.ValidateExpiryAt(now.Add(-time.Second)))
	require.ErrorIs(t, claims.ValidateExpiryAt(now), jwtx.ErrExpired)
	require.ErrorIs(t, claims.ValidateExpiryAt(now.Add(time.Minute)), jwtx.ErrExpired)

	require.NoError(t, (&jwtx.Claims{}).ValidateExpiryAt(now))
}
