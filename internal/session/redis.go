package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-kreatif/internal/cart"
)

// RedisBackend persists cart snapshots as JSON so a cart survives reloads and
// is shared between API replicas. Each save refreshes the TTL.
type RedisBackend struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

// Load implements Backend.
func (b RedisBackend) Load(ctx context.Context, key string) (cart.State, bool, error) {
	if b.Client == nil {
		return cart.State{}, false, errors.New("session: redis client not configured")
	}
	data, err := b.Client.Get(ctx, b.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return cart.State{}, false, nil
		}
		return cart.State{}, false, err
	}
	var state cart.State
	if err := json.Unmarshal(data, &state); err != nil {
		return cart.State{}, false, err
	}
	return state, true, nil
}

// Save implements Backend.
func (b RedisBackend) Save(ctx context.Context, key string, state cart.State) error {
	if b.Client == nil {
		return errors.New("session: redis client not configured")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return b.Client.Set(ctx, b.key(key), data, b.TTL).Err()
}

// Delete implements Backend.
func (b RedisBackend) Delete(ctx context.Context, key string) error {
	if b.Client == nil {
		return errors.New("session: redis client not configured")
	}
	return b.Client.Del(ctx, b.key(key)).Err()
}

func (b RedisBackend) key(key string) string {
	prefix := b.Prefix
	if prefix == "" {
		prefix = "cart:"
	}
	return prefix + key
}
