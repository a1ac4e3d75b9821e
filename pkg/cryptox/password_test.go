package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// testParams keeps argon2 cheap enough for table tests.
var testParams = PasswordParams{Memory: 1024, Iterations: 1, Parallelism: 1}

func TestNewPasswordHasher_Defaults(t *testing.T) {
	h := NewPasswordHasher(PasswordParams{}, "pepper")
	require.Equal(t, DefaultPasswordParams, h.Params)
	require.Equal(t, "pepper", h.Pepper)

	h = NewPasswordHasher(testParams, "")
	require.EqualValues(t, 1024, h.Params.Memory)
	require.EqualValues(t, 32, h.Params.KeyLength)
	require.EqualValues(t, 16, h.Params.SaltLength)
}

func TestHashPassword(t *testing.T) {
	h := NewPasswordHasher(testParams, "pepper")

	tests := []struct {
		name     string
		password string
	}{
		{"simple password", "password123"},
		{"complex password", "P@ssw0rd!#$%^&*()"},
		{"long password", strings.Repeat("a", 100)},
		{"empty password", ""},
		{"unicode password", "пароль🔒密码"},
		{"whitespace password", "   spaces   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := h.HashPassword(tt.password)
			require.NoError(t, err)

			parts := strings.Split(hash, "$")
			require.Len(t, parts, 6, "PHC hash should have 6 parts")
			require.Equal(t, "argon2id", parts[1])
			require.Equal(t, "v=19", parts[2])
			require.Equal(t, "m=1024,t=1,p=1", parts[3])
			require.NotEmpty(t, parts[4], "salt should not be empty")
			require.NotEmpty(t, parts[5], "hash should not be empty")

			require.NoError(t, h.VerifyPassword(tt.password, hash))
		})
	}
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	h := NewPasswordHasher(testParams, "")

	hash1, err := h.HashPassword("samepassword")
	require.NoError(t, err)
	hash2, err := h.HashPassword("samepassword")
	require.NoError(t, err)

	require.NotEqual(t, hash1, hash2, "hashes should differ due to unique salts")
	require.NoError(t, h.VerifyPassword("samepassword", hash1))
	require.NoError(t, h.VerifyPassword("samepassword", hash2))
}

func TestVerifyPassword_WrongPassword(t *testing.T) {
	h := NewPasswordHasher(testParams, "pepper")
	hash, err := h.HashPassword("correct-password")
	require.NoError(t, err)

	for _, wrong := range []string{
		"wrong-password",
		"Correct-Password",
		"correct-password ",
		"",
		strings.Repeat("x", 10000),
	} {
		require.ErrorIs(t, h.VerifyPassword(wrong, hash), ErrPasswordMismatch)
	}
}

func TestVerifyPassword_PepperMismatch(t *testing.T) {
	hash, err := NewPasswordHasher(testParams, "one").HashPassword("secret")
	require.NoError(t, err)

	err = NewPasswordHasher(testParams, "two").VerifyPassword("secret", hash)
	require.ErrorIs(t, err, ErrPasswordMismatch)
}

func TestVerifyPassword_StoredParamsWin(t *testing.T) {
	old := NewPasswordHasher(testParams, "p")
	hash, err := old.HashPassword("secret")
	require.NoError(t, err)

	// A hasher configured with a higher cost still verifies older hashes.
	stronger := NewPasswordHasher(PasswordParams{Memory: 2048, Iterations: 2, Parallelism: 1}, "p")
	require.NoError(t, stronger.VerifyPassword("secret", hash))
}

func TestVerifyPassword_InvalidHashFormat(t *testing.T) {
	h := NewPasswordHasher(testParams, "")

	tests := []struct {
		name        string
		invalidHash string
	}{
		{"empty hash", ""},
		{"wrong algorithm", "$bcrypt$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"missing parts", "$argon2id$v=19$m=19456"},
		{"malformed parameters", "$argon2id$v=19$invalid$c2FsdA$aGFzaA"},
		{"invalid base64 salt", "$argon2id$v=19$m=19456,t=2,p=1$!!!invalid!!!$aGFzaA"},
		{"invalid base64 hash", "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$!!!invalid!!!"},
		{"wrong version", "$argon2id$v=18$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"missing version", "$argon2id$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.VerifyPassword("test-password", tt.invalidHash)
			require.ErrorIs(t, err, ErrInvalidHash)
		})
	}
}
