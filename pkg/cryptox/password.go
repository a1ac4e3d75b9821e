package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrPasswordMismatch is returned by VerifyPassword when the password does
// not produce the stored hash.
var ErrPasswordMismatch = errors.New("cryptox: password does not match")

// ErrInvalidHash is returned when an encoded hash cannot be parsed.
var ErrInvalidHash = errors.New("cryptox: invalid hash format")

// PasswordParams is the Argon2id cost configuration. Raising Memory or
// Iterations makes each hash slower; existing hashes keep verifying because
// the parameters are encoded alongside them.
type PasswordParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	KeyLength   uint32
	SaltLength  uint32
}

// DefaultPasswordParams follows the OWASP minimum for Argon2id.
var DefaultPasswordParams = PasswordParams{
	Memory:      19 * 1024,
	Iterations:  2,
	Parallelism: 1,
	KeyLength:   32,
	SaltLength:  16,
}

// PasswordHasher derives and checks salted, peppered Argon2id hashes.
type PasswordHasher struct {
	Params PasswordParams
	Pepper string
}

// NewPasswordHasher returns a hasher with the given parameters. Zero fields
// fall back to DefaultPasswordParams.
func NewPasswordHasher(params PasswordParams, pepper string) *PasswordHasher {
	if params.Memory == 0 {
		params.Memory = DefaultPasswordParams.Memory
	}
	if params.Iterations == 0 {
		params.Iterations = DefaultPasswordParams.Iterations
	}
	if params.Parallelism == 0 {
		params.Parallelism = DefaultPasswordParams.Parallelism
	}
	if params.KeyLength == 0 {
		params.KeyLength = DefaultPasswordParams.KeyLength
	}
	if params.SaltLength == 0 {
		params.SaltLength = DefaultPasswordParams.SaltLength
	}
	return &PasswordHasher{Params: params, Pepper: pepper}
}

// HashPassword generates a PHC-format Argon2id hash string including salt and parameters.
func (h *PasswordHasher) HashPassword(password string) (string, error) {
	p := h.Params
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("cryptox: read salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password+h.Pepper), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.Memory,
		p.Iterations,
		p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword compares a plaintext password against a PHC-style Argon2id
// hash using the parameters stored in the hash.
func (h *PasswordHasher) VerifyPassword(password, encodedHash string) error {
	// ["", "argon2id", "v=19", "m=X,t=Y,p=Z", "salt", "hash"]
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" {
		return fmt.Errorf("%w: expected 6 parts", ErrInvalidHash)
	}
	if parts[1] != "argon2id" {
		return fmt.Errorf("%w: not argon2id", ErrInvalidHash)
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return fmt.Errorf("%w: wrong version", ErrInvalidHash)
	}

	var mem, iters uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return fmt.Errorf("%w: parameters: %v", ErrInvalidHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("%w: salt: %v", ErrInvalidHash, err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return fmt.Errorf("%w: hash", ErrInvalidHash)
	}

	computed := argon2.IDKey(
		[]byte(password+h.Pepper),
		salt,
		iters,
		mem,
		par,
		uint32(len(expected)), // #nosec G115 - bounded by the decoded hash
	)

	if subtle.ConstantTimeCompare(computed, expected) == 1 {
		return nil
	}
	return ErrPasswordMismatch
}
