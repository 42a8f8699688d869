package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrTooManyRequests = errors.New("too many requests")

// Limiter throttles mutating requests per caller using a redis counter with
// a sliding window approximated by INCR + EXPIRE.
type Limiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
}

func NewLimiter(redisClient *redis.Client, limit int64, window time.Duration) *Limiter {
	return &Limiter{
		redis:  redisClient,
		limit:  limit,
		window: window,
	}
}

// Check counts one request for the caller and fails once the window's budget
// is spent.
func (l *Limiter) Check(ctx context.Context, caller string) error {
	key := fmt.Sprintf("mutation_attempts:%s", caller)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return err
	}

	if count == 1 {
		l.redis.Expire(ctx, key, l.window)
	}

	if count > l.limit {
		return ErrTooManyRequests
	}

	return nil
}

// Reset clears the caller's counter.
func (l *Limiter) Reset(ctx context.Context, caller string) error {
	key := fmt.Sprintf("mutation_attempts:%s", caller)
	return l.redis.Del(ctx, key).Err()
}
