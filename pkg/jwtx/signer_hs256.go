package jwtx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// MinHS256SecretLength is the shortest secret accepted for HMAC signing.
const MinHS256SecretLength = 32

// HS256Signer signs tokens with a server-held shared secret.
type HS256Signer struct {
	secret []byte
}

func newHS256Signer(secret []byte) (*HS256Signer, error) {
	s := &HS256Signer{secret: secret}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *HS256Signer) Alg() string { return jwt.SigningMethodHS256.Alg() }

// Sign takes your claims and turns them into a signed JWT string.
func (s *HS256Signer) Sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *HS256Signer) Validate() error {
	if len(s.secret) < MinHS256SecretLength {
		return errors.New("jwtx: HS256 secret too short")
	}
	return nil
}

// HS256Verifier validates tokens signed by an HS256Signer with the same secret.
type HS256Verifier struct {
	secret []byte
	issuer string
}

// NewVerifierHS256 creates a verifier for HS256 tokens. An empty issuer
// disables the issuer check.
func NewVerifierHS256(secret []byte, issuer string) *HS256Verifier {
	return &HS256Verifier{secret: secret, issuer: issuer}
}

func (v *HS256Verifier) Verify(tokenStr string) (Claims, error) {
	return parse(tokenStr, jwt.SigningMethodHS256, v.issuer, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
}
