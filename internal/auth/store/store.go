package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/passage/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict is returned by conditional updates when the stored
	// revision no longer matches the one the caller read.
	ErrConflict = errors.New("store: version conflict")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres, redis) implement this and expose sub-repositories.
//
// Reads never return records that have outlived their expiry, whether or not
// the driver has physically purged them yet.
type Store interface {
	Users() Users
	ResetTokens() ResetTokens

	// ApplyMigrations brings the schema up to date. Drivers without a
	// schema treat it as a no-op.
	ApplyMigrations(ctx context.Context) error

	// Ping verifies the backing connection is still alive.
	Ping(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error
}

type Users interface {
	// CreateUser inserts a new user (id is provided by the caller via ULID).
	// It sets Version, CreatedAt and UpdatedAt on u. An unverified account
	// with the same email whose verification window has lapsed is replaced;
	// any other duplicate yields ErrAlreadyExists.
	CreateUser(ctx context.Context, u *domain.User) error

	// GetUserByID returns a user by id, with its session nonces.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail looks a user up by normalized email.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// UpdateUser writes every scalar field of u if the stored Version still
	// equals u.Version, then bumps u.Version. Session nonces are not touched.
	UpdateUser(ctx context.Context, u *domain.User) error

	// AddSessionNonce atomically adds a nonce hash to the user's set.
	AddSessionNonce(ctx context.Context, userID, nonceHash string) error

	// RemoveSessionNonce atomically removes one nonce hash. Removing an
	// absent hash is not an error.
	RemoveSessionNonce(ctx context.Context, userID, nonceHash string) error

	// ClearSessionNonces removes every session for the user.
	ClearSessionNonces(ctx context.Context, userID string) error

	// DeleteUser removes the user and its sessions.
	DeleteUser(ctx context.Context, userID string) error

	// DeleteExpiredUnverified purges accounts whose verification window
	// closed before now. Drivers with native expiry return 0.
	DeleteExpiredUnverified(ctx context.Context, now time.Time) (int64, error)

	// DeleteStaleSessionNonces drops nonce hashes added before the given
	// time, across all users. Their tokens have already expired.
	DeleteStaleSessionNonces(ctx context.Context, before time.Time) (int64, error)
}

type ResetTokens interface {
	// CreateResetToken inserts a token in the Requested state. It yields
	// ErrAlreadyExists while an unexpired token exists for the email.
	CreateResetToken(ctx context.Context, t *domain.PasswordResetToken) error

	// GetResetToken returns the live token for email.
	GetResetToken(ctx context.Context, email string) (domain.PasswordResetToken, error)

	// UpdateResetToken is the conditional write for state transitions,
	// keyed on t.Version like UpdateUser.
	UpdateResetToken(ctx context.Context, t *domain.PasswordResetToken) error

	// DeleteResetToken removes the token for email if there is one.
	DeleteResetToken(ctx context.Context, email string) error

	// DeleteExpiredResetTokens purges tokens whose AuthExpiry is before now.
	DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}
