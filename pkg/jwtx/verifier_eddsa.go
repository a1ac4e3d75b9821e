package jwtx

import (
	"crypto/ed25519"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// EdDSAVerifier checks tokens against a single Ed25519 public key. A kid
// header, when present, must name that key.
type EdDSAVerifier struct {
	pub    ed25519.PublicKey
	kid    string
	issuer string
}

// NewVerifierEdDSA returns a verifier for pub. An empty issuer skips the
// issuer check.
func NewVerifierEdDSA(pub ed25519.PublicKey, issuer string) *EdDSAVerifier {
	return &EdDSAVerifier{pub: pub, kid: KeyID(pub), issuer: issuer}
}

func (v *EdDSAVerifier) Verify(tokenStr string) (Claims, error) {
	return parse(tokenStr, jwt.SigningMethodEdDSA, v.issuer, func(t *jwt.Token) (any, error) {
		if kid, ok := t.Header["kid"].(string); ok && kid != v.kid {
			return nil, fmt.Errorf("%w: unknown kid %q", ErrInvalidSig, kid)
		}
		return v.pub, nil
	})
}
