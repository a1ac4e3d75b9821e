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

type usersRepo struct{ s *Store }

type userRecord struct {
	ID                   string `json:"id"`
	EmailAddress         string `json:"email"`
	PasswordHash         string `json:"password_hash"`
	LoginAttempts        int    `json:"login_attempts"`
	LoginAttemptsExpiry  int64  `json:"login_attempts_expiry"`
	Verified             bool   `json:"verified"`
	VerificationSlugHash string `json:"verification_slug_hash,omitempty"`
	VerificationIPHash   string `json:"verification_ip_hash,omitempty"`
	VerificationExpiry   int64  `json:"verification_expiry,omitempty"`
	Version              int64  `json:"version"`
	CreatedAt            int64  `json:"created_at"`
	UpdatedAt            int64  `json:"updated_at"`
}

func newUserRecord(u *domain.User) userRecord {
	rec := userRecord{
		ID:                   u.ID,
		EmailAddress:         u.EmailAddress,
		PasswordHash:         u.PasswordHash,
		LoginAttempts:        u.LoginAttempts,
		LoginAttemptsExpiry:  toMillis(u.LoginAttemptsExpiry),
		Verified:             u.Verified,
		VerificationSlugHash: u.VerificationSlugHash,
		VerificationIPHash:   u.VerificationIPHash,
		Version:              u.Version,
		CreatedAt:            toMillis(u.CreatedAt),
		UpdatedAt:            toMillis(u.UpdatedAt),
	}
	if u.VerificationExpiry != nil {
		rec.VerificationExpiry = u.VerificationExpiry.UnixMilli()
	}
	return rec
}

func (r userRecord) toDomain() domain.User {
	u := domain.User{
		ID:                   r.ID,
		EmailAddress:         r.EmailAddress,
		PasswordHash:         r.PasswordHash,
		LoginAttempts:        r.LoginAttempts,
		LoginAttemptsExpiry:  fromMillis(r.LoginAttemptsExpiry),
		Verified:             r.Verified,
		VerificationSlugHash: r.VerificationSlugHash,
		VerificationIPHash:   r.VerificationIPHash,
		Version:              r.Version,
		CreatedAt:            fromMillis(r.CreatedAt),
		UpdatedAt:            fromMillis(r.UpdatedAt),
	}
	if r.VerificationExpiry != 0 {
		exp := fromMillis(r.VerificationExpiry)
		u.VerificationExpiry = &exp
	}
	return u
}

// load reads a user record, hiding accounts whose verification window has
// closed but whose key has not been evicted yet.
func (r *usersRepo) load(ctx context.Context, c redis.Cmdable, id string) (domain.User, error) {
	raw, err := c.Get(ctx, r.s.userKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.User{}, store.ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}

	var rec userRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.User{}, fmt.Errorf("decode user %s: %w", id, err)
	}
	u := rec.toDomain()
	if u.VerificationLapsed(r.s.now()) {
		return domain.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u *domain.User) error {
	ttl := r.s.ttlUntil(u.VerificationExpiry)
	if ttl < 0 {
		return fmt.Errorf("create user %s: verification window already closed", u.ID)
	}

	now := r.s.now()
	emailKey := r.s.emailKey(u.EmailAddress)

	err := r.s.watchRetry(ctx, func(tx *redis.Tx) error {
		staleID, err := tx.Get(ctx, emailKey).Result()
		switch {
		case errors.Is(err, redis.Nil):
			staleID = ""
		case err != nil:
			return err
		default:
			_, err := r.load(ctx, tx, staleID)
			if err == nil {
				return store.ErrAlreadyExists
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		rec := newUserRecord(u)
		rec.Version = 1
		rec.CreatedAt = now.UnixMilli()
		rec.UpdatedAt = rec.CreatedAt
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if staleID != "" {
				pipe.Del(ctx, r.s.userKey(staleID), r.s.sessionsKey(staleID))
			}
			pipe.Set(ctx, r.s.userKey(u.ID), data, ttl)
			pipe.Set(ctx, emailKey, u.ID, ttl)
			return nil
		})
		return err
	}, emailKey)
	if err != nil {
		return err
	}

	u.Version = 1
	u.CreatedAt = fromMillis(now.UnixMilli())
	u.UpdatedAt = u.CreatedAt
	return nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	u, err := r.load(ctx, r.s.rdb, id)
	if err != nil {
		return domain.User{}, err
	}

	nonces, err := r.s.rdb.ZRange(ctx, r.s.sessionsKey(id), 0, -1).Result()
	if err != nil {
		return domain.User{}, err
	}
	u.SessionNonces = nonces
	return u, nil
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	id, err := r.s.rdb.Get(ctx, r.s.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.User{}, store.ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return r.GetUserByID(ctx, id)
}

func (r *usersRepo) UpdateUser(ctx context.Context, u *domain.User) error {
	ttl := r.s.ttlUntil(u.VerificationExpiry)
	if u.Verified {
		ttl = 0
	}
	if ttl < 0 {
		return fmt.Errorf("update user %s: verification window already closed", u.ID)
	}

	now := r.s.now()
	userKey := r.s.userKey(u.ID)

	err := r.s.watchOnce(ctx, func(tx *redis.Tx) error {
		cur, err := r.load(ctx, tx, u.ID)
		if err != nil {
			return err
		}
		if cur.Version != u.Version {
			return store.ErrConflict
		}

		rec := newUserRecord(u)
		rec.EmailAddress = cur.EmailAddress
		rec.Version = cur.Version + 1
		rec.CreatedAt = toMillis(cur.CreatedAt)
		rec.UpdatedAt = now.UnixMilli()
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, userKey, data, ttl)
			pipe.Set(ctx, r.s.emailKey(cur.EmailAddress), u.ID, ttl)
			if ttl == 0 {
				pipe.Persist(ctx, r.s.sessionsKey(u.ID))
			} else {
				pipe.PExpire(ctx, r.s.sessionsKey(u.ID), ttl)
			}
			return nil
		})
		return err
	}, userKey)
	if err != nil {
		return err
	}

	u.Version++
	u.UpdatedAt = fromMillis(now.UnixMilli())
	return nil
}

func (r *usersRepo) AddSessionNonce(ctx context.Context, userID, nonceHash string) error {
	userKey := r.s.userKey(userID)
	sessionsKey := r.s.sessionsKey(userID)
	now := r.s.now()

	return r.s.watchRetry(ctx, func(tx *redis.Tx) error {
		u, err := r.load(ctx, tx, userID)
		if err != nil {
			return err
		}
		ttl := time.Duration(0)
		if !u.Verified {
			ttl = r.s.ttlUntil(u.VerificationExpiry)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZAdd(ctx, sessionsKey, redis.Z{Score: float64(now.UnixMilli()), Member: nonceHash})
			if r.s.sessionTTL > 0 {
				pipe.ZRemRangeByScore(ctx, sessionsKey, "-inf", olderThan(now.Add(-r.s.sessionTTL)))
			}
			if ttl > 0 {
				pipe.PExpire(ctx, sessionsKey, ttl)
			}
			return nil
		})
		return err
	}, userKey)
}

func (r *usersRepo) RemoveSessionNonce(ctx context.Context, userID, nonceHash string) error {
	return r.s.rdb.ZRem(ctx, r.s.sessionsKey(userID), nonceHash).Err()
}

func (r *usersRepo) ClearSessionNonces(ctx context.Context, userID string) error {
	return r.s.rdb.Del(ctx, r.s.sessionsKey(userID)).Err()
}

func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	userKey := r.s.userKey(userID)

	return r.s.watchRetry(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, userKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		var rec userRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode user %s: %w", userID, err)
		}

		emailKey := r.s.emailKey(rec.EmailAddress)
		owner, err := tx.Get(ctx, emailKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, userKey, r.s.sessionsKey(userID))
			if owner == userID {
				pipe.Del(ctx, emailKey)
			}
			return nil
		})
		return err
	}, userKey)
}

// DeleteExpiredUnverified returns 0: lapsed accounts expire with their keys.
func (r *usersRepo) DeleteExpiredUnverified(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// DeleteStaleSessionNonces walks every session set with SCAN and trims it by
// score. Sets emptied this way are removed by Redis itself.
func (r *usersRepo) DeleteStaleSessionNonces(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	iter := r.s.rdb.Scan(ctx, 0, r.s.sessionsPattern(), 100).Iterator()
	for iter.Next(ctx) {
		n, err := r.s.rdb.ZRemRangeByScore(ctx, iter.Val(), "-inf", olderThan(before)).Result()
		if err != nil {
			return total, fmt.Errorf("trim %s: %w", iter.Val(), err)
		}
		total += n
	}
	if err := iter.Err(); err != nil {
		return total, err
	}
	return total, nil
}
