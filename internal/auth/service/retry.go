package service

import (
	"context"
	"errors"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/aussiebroadwan/passage/internal/auth/store"
)

// withConflictRetry replays fn while it reports store.ErrConflict. fn must
// re-read whatever it writes back. Other errors end the loop unchanged.
func withConflictRetry(ctx context.Context, cfg Config, m *Metrics, op string, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(cfg.ConflictRetries, retry.NewExponential(cfg.ConflictBackoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, store.ErrConflict) {
			m.storeConflict(op)
			return retry.RetryableError(err)
		}
		return err
	})
	if errors.Is(err, store.ErrConflict) {
		return oops.Code(CodeConflictRetriesExhausted).With("operation", op).Wrap(err)
	}
	return err
}
