package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chatdeck/api/internal/models"
)

var ErrPendingNotFound = errors.New("pending record not found")

// PendingRepository keeps in-progress signups and password resets in Redis.
// SET with a TTL gives exactly the semantics these records need: at most one
// live record per key, last write wins on retry, and expiry purges the rest.
type PendingRepository struct {
	client *redis.Client
}

func NewPendingRepository(client *redis.Client) *PendingRepository {
	return &PendingRepository{client: client}
}

func signupKey(email string) string {
	return "pending:signup:" + email
}

func resetKey(userID string) string {
	return "pending:reset:" + userID
}

func (r *PendingRepository) SaveSignup(ctx context.Context, pending models.PendingSignup, ttl time.Duration) error {
	payload, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("marshal pending signup: %w", err)
	}
	return r.client.Set(ctx, signupKey(pending.Email), payload, ttl).Err()
}

func (r *PendingRepository) GetSignup(ctx context.Context, email string) (models.PendingSignup, error) {
	payload, err := r.client.Get(ctx, signupKey(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.PendingSignup{}, ErrPendingNotFound
		}
		return models.PendingSignup{}, err
	}

	var pending models.PendingSignup
	if err := json.Unmarshal(payload, &pending); err != nil {
		return models.PendingSignup{}, fmt.Errorf("unmarshal pending signup: %w", err)
	}
	return pending, nil
}

func (r *PendingRepository) DeleteSignup(ctx context.Context, email string) error {
	return r.client.Del(ctx, signupKey(email)).Err()
}

func (r *PendingRepository) SaveReset(ctx context.Context, pending models.PendingReset, ttl time.Duration) error {
	payload, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("marshal pending reset: %w", err)
	}
	return r.client.Set(ctx, resetKey(pending.UserID), payload, ttl).Err()
}

func (r *PendingRepository) GetReset(ctx context.Context, userID string) (models.PendingReset, error) {
	payload, err := r.client.Get(ctx, resetKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.PendingReset{}, ErrPendingNotFound
		}
		return models.PendingReset{}, err
	}

	var pending models.PendingReset
	if err := json.Unmarshal(payload, &pending); err != nil {
		return models.PendingReset{}, fmt.Errorf("unmarshal pending reset: %w", err)
	}
	return pending, nil
}

func (r *PendingRepository) DeleteReset(ctx context.Context, userID string) error {
	return r.client.Del(ctx, resetKey(userID)).Err()
}
