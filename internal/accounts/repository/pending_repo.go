package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/staffboard/staffboard-backend/internal/accounts/domain"
)

const (
	pendingKeyPrefix  = "reg:pending:"        // reg:pending:{email} -> PendingRegistration
	pendingIndexKey   = "reg:pending:index"   // zset of emails scored by expiry
	attemptsKeyPrefix = "reg:attempts:"       // reg:attempts:{email} -> failed OTP count
	resetKeyPrefix    = "reg:reset:"          // reg:reset:{email} -> PasswordReset
	resetAttemptsPref = "reg:reset:attempts:" // reg:reset:attempts:{email}
)

// PendingRepository stores unverified sign-ups and password resets in redis.
// Every key expires with its OTP, so abandoned registrations clean themselves up.
type PendingRepository struct {
	client *redis.Client
}

// NewPendingRepository creates a new PendingRepository
func NewPendingRepository(client *redis.Client) *PendingRepository {
	return &PendingRepository{client: client}
}

// Save stores or replaces a pending registration. The failed-attempt counter
// is reset since a fresh code was issued.
func (r *PendingRepository) Save(ctx context.Context, p *domain.PendingRegistration) error {
	ttl := time.Until(p.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("pending registration for %s already expired", p.Email)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal pending registration: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, pendingKeyPrefix+p.Email, data, ttl)
	pipe.Del(ctx, attemptsKeyPrefix+p.Email)
	pipe.ZAdd(ctx, pendingIndexKey, redis.Z{Score: float64(p.ExpiresAt.Unix()), Member: p.Email})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save pending registration: %w", err)
	}
	return nil
}

func (r *PendingRepository) Get(ctx context.Context, email string) (*domain.PendingRegistration, error) {
	data, err := r.client.Get(ctx, pendingKeyPrefix+email).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrRegistrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending registration: %w", err)
	}

	var p domain.PendingRegistration
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending registration: %w", err)
	}
	n, err := r.client.Get(ctx, attemptsKeyPrefix+email).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get attempts: %w", err)
	}
	p.Attempts = n
	return &p, nil
}

// RecordFailedAttempt increments the OTP failure counter and returns the new
// count. The counter shares the registration's expiry.
func (r *PendingRepository) RecordFailedAttempt(ctx context.Context, email string, expiresAt time.Time) (int, error) {
	return incrWithExpiry(ctx, r.client, attemptsKeyPrefix+email, expiresAt)
}

func (r *PendingRepository) Delete(ctx context.Context, email string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, pendingKeyPrefix+email, attemptsKeyPrefix+email)
	pipe.ZRem(ctx, pendingIndexKey, email)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete pending registration: %w", err)
	}
	return nil
}

// Count returns how many registrations are still awaiting verification.
func (r *PendingRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.client.ZCount(ctx, pendingIndexKey, strconv.FormatInt(time.Now().Unix(), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count pending registrations: %w", err)
	}
	return n, nil
}

// PruneIndex drops index entries whose registration has expired.
func (r *PendingRepository) PruneIndex(ctx context.Context, now time.Time) (int64, error) {
	n, err := r.client.ZRemRangeByScore(ctx, pendingIndexKey, "-inf", "("+strconv.FormatInt(now.Unix(), 10)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to prune pending index: %w", err)
	}
	return n, nil
}

func (r *PendingRepository) SaveReset(ctx context.Context, p *domain.PasswordReset) error {
	ttl := time.Until(p.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("password reset for %s already expired", p.Email)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal password reset: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, resetKeyPrefix+p.Email, data, ttl)
	pipe.Del(ctx, resetAttemptsPref+p.Email)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save password reset: %w", err)
	}
	return nil
}

func (r *PendingRepository) GetReset(ctx context.Context, email string) (*domain.PasswordReset, error) {
	data, err := r.client.Get(ctx, resetKeyPrefix+email).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrInvalidOTP
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get password reset: %w", err)
	}

	var p domain.PasswordReset
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal password reset: %w", err)
	}
	n, err := r.client.Get(ctx, resetAttemptsPref+email).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get reset attempts: %w", err)
	}
	p.Attempts = n
	return &p, nil
}

func (r *PendingRepository) RecordFailedReset(ctx context.Context, email string, expiresAt time.Time) (int, error) {
	return incrWithExpiry(ctx, r.client, resetAttemptsPref+email, expiresAt)
}

func (r *PendingRepository) DeleteReset(ctx context.Context, email string) error {
	if err := r.client.Del(ctx, resetKeyPrefix+email, resetAttemptsPref+email).Err(); err != nil {
		return fmt.Errorf("failed to delete password reset: %w", err)
	}
	return nil
}

func incrWithExpiry(ctx context.Context, client *redis.Client, key string, expiresAt time.Time) (int, error) {
	pipe := client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireAt(ctx, key, expiresAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to record attempt: %w", err)
	}
	return int(incr.Val()), nil
}
