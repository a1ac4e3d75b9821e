package jwtx

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier checks a token's structure and signature and returns its claims.
//
// Time-based claims are deliberately not enforced here: callers need the
// claims of an expired token to revoke the session it names.
type Verifier interface {
	Verify(token string) (Claims, error)
}

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrMissingClaim = errors.New("jwtx: missing required claim")
)

// parse is shared by the HS256 and EdDSA verifiers.
func parse(tokenStr string, alg jwt.SigningMethod, issuer string, key jwt.Keyfunc) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{alg.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	var claims Claims
	token, err := parser.ParseWithClaims(tokenStr, &claims, key)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSig):
			return Claims{}, err
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, fmt.Errorf("%w: %v", ErrInvalidSig, err)
		case errors.Is(err, jwt.ErrTokenUnverifiable):
			return Claims{}, fmt.Errorf("%w: %v", ErrAlgMismatch, err)
		default:
			return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if !token.Valid {
		return Claims{}, ErrInvalidSig
	}

	if err := claims.ValidateIssuer(issuer); err != nil {
		return Claims{}, err
	}
	return claims, nil
}
