package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lastSeenTTL = 7 * 24 * time.Hour

// Cache keeps a best-effort last-seen timestamp per person in redis. Misses
// and redis outages are tolerated; the database stays the source of truth.
type Cache struct {
	logger *slog.Logger
	redis  *redis.Client
}

func NewCache(logger *slog.Logger, redisClient *redis.Client) Cache {
	return Cache{logger: logger, redis: redisClient}
}

// Touch records that the person just reported in.
func (c *Cache) Touch(ctx context.Context, personID uuid.UUID) {
	key := fmt.Sprintf("lastseen:%s", personID)
	if err := c.redis.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), lastSeenTTL).Err(); err != nil {
		c.logger.DebugContext(ctx, "Failed to record last seen", "person_id", personID, "error", err)
	}
}

// LastSeen returns the person's last report time, or false when unknown.
func (c *Cache) LastSeen(ctx context.Context, personID uuid.UUID) (time.Time, bool) {
	key := fmt.Sprintf("lastseen:%s", personID)
	value, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.DebugContext(ctx, "Failed to read last seen", "person_id", personID, "error", err)
		}
		return time.Time{}, false
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
