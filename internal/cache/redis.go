package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/go-maap/pkg/cmr"
)

// Redis stores collection lists as JSON strings.
type Redis struct {
	client *redis.Client
}

// OpenRedis connects to addr. The connection is lazy; use Ping to check it.
func OpenRedis(addr, password string, db int) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})}
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Get(ctx context.Context, key string) ([]cmr.CollectionName, bool, error) {
	s, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var names []cmr.CollectionName
	if err := json.Unmarshal([]byte(s), &names); err != nil {
		return nil, false, fmt.Errorf("redis decode %s: %w", key, err)
	}
	return names, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, names []cmr.CollectionName, ttl time.Duration) error {
	b, err := json.Marshal(names)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key, string(b), ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
