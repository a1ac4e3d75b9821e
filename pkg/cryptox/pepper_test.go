package cryptox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadOrCreatePepper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pepper")

	first, err := LoadOrCreatePepper(path)
	require.NoError(t, err)
	require.Len(t, first, 43)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := LoadOrCreatePepper(path)
	require.NoError(t, err)
	require.Equal(t, first, second, "pepper must be stable across loads")
}

func TestLoadOrCreatePepper_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pepper")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))

	_, err := LoadOrCreatePepper(path)
	require.Error(t, err)
}

func TestLoadOrCreateSigningSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.secret")

	secret, err := LoadOrCreateSigningSecret(path)
	require.NoError(t, err)
	require.Len(t, secret, 86)

	again, err := LoadOrCreateSigningSecret(path)
	require.NoError(t, err)
	require.Equal(t, secret, again)
}
