package cryptox

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// GenerateEd25519Key generates a new Ed25519 private key.
// Returns the private key in PEM format (PKCS8).
func GenerateEd25519Key() ([]byte, error) {
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to generate Ed25519 key: %w", err)
	}

	// Ed25519 keys are always marshaled as PKCS8
	privateKeyBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to marshal PKCS8 key: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: privateKeyBytes,
	}), nil
}

// LoadOrCreateEd25519Key returns the PEM key stored at path, generating one
// on first use.
func LoadOrCreateEd25519Key(path string) ([]byte, error) {
	path = filepath.Clean(path)

	b, err := os.ReadFile(path)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("cryptox: read key file: %w", err)
	}

	pemKey, err := GenerateEd25519Key()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("cryptox: create key dir: %w", err)
	}
	if err := os.WriteFile(path, pemKey, 0o600); err != nil {
		return nil, fmt.Errorf("cryptox: write key file: %w", err)
	}
	return pemKey, nil
}
