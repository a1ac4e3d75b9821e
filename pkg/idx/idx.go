// Package idx generates the ULIDs used as user and request identifiers.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a ULID in canonical string form.
type ID string

// ErrInvalid reports a malformed ULID string.
var ErrInvalid = errors.New("idx: invalid ulid")

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns an ID stamped with the current UTC time.
func New() ID {
	return NewAt(time.Now().UTC())
}

// NewAt returns an ID stamped with t. IDs minted in the same millisecond
// still sort in creation order.
func NewAt(t time.Time) ID {
	mu.Lock()
	defer mu.Unlock()

	return ID(ulid.MustNew(ulid.Timestamp(t), entropy).String())
}

// Parse accepts only canonical, strictly valid ULIDs. Verification slugs
// carry a user id, so anything else coming off the wire is rejected here
// before a store lookup.
func Parse(s string) (ID, error) {
	if _, err := ulid.ParseStrict(s); err != nil {
		return "", ErrInvalid
	}
	return ID(strings.ToUpper(s)), nil
}

func (id ID) String() string { return string(id) }
