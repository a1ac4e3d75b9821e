package jwtx

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// EdDSASigner signs with an Ed25519 key.
type EdDSASigner struct {
	kid string
	key ed25519.PrivateKey
	pub ed25519.PublicKey
}

func newEdDSASigner(pemKey []byte) (*EdDSASigner, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("jwtx: invalid PEM for Ed25519 key")
	}
	if block.Type != "PRIVATE KEY" {
		return nil, fmt.Errorf("jwtx: expected PRIVATE KEY, got %q", block.Type)
	}

	priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("jwtx: parse PKCS8: %w", err)
	}
	key, ok := priv.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwtx: not an Ed25519 private key")
	}

	pub := key.Public().(ed25519.PublicKey)
	return &EdDSASigner{kid: KeyID(pub), key: key, pub: pub}, nil
}

// KeyID is the first 96 bits of the key's SHA-256, base64url encoded.
func KeyID(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return base64.RawURLEncoding.EncodeToString(sum[:12])
}

func (s *EdDSASigner) Alg() string { return jwt.SigningMethodEdDSA.Alg() }

// KeyID returns the kid stamped on every token this signer produces.
func (s *EdDSASigner) KeyID() string { return s.kid }

// Public returns the verification key matching this signer.
func (s *EdDSASigner) Public() ed25519.PublicKey { return s.pub }

func (s *EdDSASigner) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

func (s *EdDSASigner) Validate() error {
	if len(s.key) != ed25519.PrivateKeySize || len(s.pub) != ed25519.PublicKeySize {
		return errors.New("jwtx: invalid Ed25519 key size")
	}
	return nil
}
