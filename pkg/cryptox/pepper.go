package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const pepperLength = 32

// LoadOrCreatePepper reads the password pepper from path, generating and
// persisting a fresh one if the file does not exist yet. Losing the pepper
// invalidates every stored password hash.
func LoadOrCreatePepper(path string) (string, error) {
	return loadOrCreateSecretFile(path, pepperLength)
}

// loadOrCreateSecretFile is shared by the pepper and the HS256 signing
// secret: both are random server-held values that must survive restarts.
func loadOrCreateSecretFile(path string, size int) (string, error) {
	path = filepath.Clean(path)

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		v := strings.TrimSpace(string(b))
		if v == "" {
			return "", fmt.Errorf("cryptox: secret file %s is empty", path)
		}
		return v, nil
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("cryptox: read secret file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("cryptox: create secret dir: %w", err)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: generate secret: %w", err)
	}
	v := base64.RawURLEncoding.EncodeToString(buf)

	if err := os.WriteFile(path, []byte(v), 0o600); err != nil {
		return "", fmt.Errorf("cryptox: write secret file: %w", err)
	}
	return v, nil
}

// LoadOrCreateSigningSecret is LoadOrCreatePepper for the bearer token HMAC key.
func LoadOrCreateSigningSecret(path string) ([]byte, error) {
	v, err := loadOrCreateSecretFile(path, TokenSize512)
	if err != nil {
		return nil, err
	}
	return []byte(v), nil
}
