package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// Entropy sizes in bytes. Encoded length is ceil(n*4/3) base64url chars.
const (
	TokenSize128 = 16
	TokenSize256 = 32 // slugs and session nonces
	TokenSize512 = 64 // pepper and HS256 secret files
)

var errTokenSize = errors.New("cryptox: token size must be positive")

// GenerateToken returns size random bytes as unpadded base64url. The output
// never contains '.', which lets callers use it as a separator.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("%w: %d", errTokenSize, size)
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
