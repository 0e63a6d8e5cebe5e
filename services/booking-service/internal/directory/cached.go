package directory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/model"
	"github.com/redis/go-redis/v9"
)

// Store is the subset of redis.Cmdable the cache needs.
type Store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

type cachedUser struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Provider   bool   `json:"provider"`
	AvatarPath string `json:"avatar_path,omitempty"`
}

// Cached fronts another Lookup with a Redis read-through cache. Redis failures degrade to the
// underlying lookup; misses for unknown users are not cached.
type Cached struct {
	next   Lookup
	store  Store
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewCached(next Lookup, store Store, ttl time.Duration, logger *slog.Logger) *Cached {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cached{next: next, store: store, ttl: ttl, prefix: "gobarber:user:", logger: logger}
}

func (c *Cached) Lookup(ctx context.Context, userID string) (model.User, error) {
	key := c.prefix + userID
	raw, err := c.store.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cu cachedUser
		if jsonErr := json.Unmarshal(raw, &cu); jsonErr == nil {
			return model.User(cu), nil
		}
		c.logger.Warn("directory cache entry corrupt", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("directory cache read failed", "err", err)
	}

	u, err := c.next.Lookup(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	if body, err := json.Marshal(cachedUser(u)); err == nil {
		if err := c.store.Set(ctx, key, body, c.ttl).Err(); err != nil {
			c.logger.Warn("directory cache write failed", "err", err)
		}
	}
	return u, nil
}
