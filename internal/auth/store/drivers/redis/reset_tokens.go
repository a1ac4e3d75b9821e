package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/passage/internal/auth/domain"
	"github.com/aussiebroadwan/passage/internal/auth/store"
	"github.com/redis/go-redis/v9"
)

type resetTokensRepo struct{ s *Store }

type resetRecord struct {
	EmailAddress  string `json:"email"`
	Authenticated bool   `json:"authenticated"`
	AuthSlugHash  string `json:"auth_slug_hash,omitempty"`
	Spent         bool   `json:"spent"`
	AuthExpiry    int64  `json:"auth_expiry"`
	Version       int64  `json:"version"`
	CreatedAt     int64  `json:"created_at"`
}

func newResetRecord(t *domain.PasswordResetToken) resetRecord {
	return resetRecord{
		EmailAddress:  t.EmailAddress,
		Authenticated: t.Authenticated,
		AuthSlugHash:  t.AuthSlugHash,
		Spent:         t.Spent,
		AuthExpiry:    t.AuthExpiry.UnixMilli(),
		Version:       t.Version,
		CreatedAt:     toMillis(t.CreatedAt),
	}
}

func (r resetRecord) toDomain() domain.PasswordResetToken {
	return domain.PasswordResetToken{
		EmailAddress:  r.EmailAddress,
		Authenticated: r.Authenticated,
		AuthSlugHash:  r.AuthSlugHash,
		Spent:         r.Spent,
		AuthExpiry:    fromMillis(r.AuthExpiry),
		Version:       r.Version,
		CreatedAt:     fromMillis(r.CreatedAt),
	}
}

func (r *resetTokensRepo) load(ctx context.Context, c redis.Cmdable, email string) (domain.PasswordResetToken, error) {
	raw, err := c.Get(ctx, r.s.resetKey(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PasswordResetToken{}, store.ErrNotFound
	}
	if err != nil {
		return domain.PasswordResetToken{}, err
	}

	var rec resetRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.PasswordResetToken{}, fmt.Errorf("decode reset token: %w", err)
	}
	t := rec.toDomain()
	if t.Expired(r.s.now()) {
		return domain.PasswordResetToken{}, store.ErrNotFound
	}
	return t, nil
}

func (r *resetTokensRepo) CreateResetToken(ctx context.Context, t *domain.PasswordResetToken) error {
	ttl := r.s.ttlUntil(&t.AuthExpiry)
	if ttl <= 0 {
		return errors.New("create reset token: expiry already passed")
	}

	now := r.s.now()
	rec := newResetRecord(t)
	rec.Version = 1
	rec.CreatedAt = now.UnixMilli()
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	ok, err := r.s.rdb.SetNX(ctx, r.s.resetKey(t.EmailAddress), data, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrAlreadyExists
	}

	t.Version = 1
	t.CreatedAt = fromMillis(rec.CreatedAt)
	return nil
}

func (r *resetTokensRepo) GetResetToken(ctx context.Context, email string) (domain.PasswordResetToken, error) {
	return r.load(ctx, r.s.rdb, email)
}

func (r *resetTokensRepo) UpdateResetToken(ctx context.Context, t *domain.PasswordResetToken) error {
	key := r.s.resetKey(t.EmailAddress)

	err := r.s.watchOnce(ctx, func(tx *redis.Tx) error {
		cur, err := r.load(ctx, tx, t.EmailAddress)
		if err != nil {
			return err
		}
		if cur.Version != t.Version {
			return store.ErrConflict
		}

		// The expiry is fixed at creation.
		ttl := r.s.ttlUntil(&cur.AuthExpiry)
		if ttl <= 0 {
			return store.ErrNotFound
		}

		rec := newResetRecord(t)
		rec.AuthExpiry = cur.AuthExpiry.UnixMilli()
		rec.CreatedAt = toMillis(cur.CreatedAt)
		rec.Version = cur.Version + 1
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return err
	}

	t.Version++
	return nil
}

func (r *resetTokensRepo) DeleteResetToken(ctx context.Context, email string) error {
	return r.s.rdb.Del(ctx, r.s.resetKey(email)).Err()
}

// DeleteExpiredResetTokens returns 0: tokens expire with their keys.
func (r *resetTokensRepo) DeleteExpiredResetTokens(context.Context, time.Time) (int64, error) {
	return 0, nil
}
