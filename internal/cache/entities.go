package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"freightdesk/internal/models"

	"github.com/redis/go-redis/v9"
)

// Dashboard list reads dominate this service, so entity lists are cached
// briefly and invalidated on every applied transition. The TTL is a backstop
// only; invalidation is the primary freshness mechanism.
const EntityListTTL = 30 * time.Second

// EntityListKey derives the cache key for one filtered entity list query.
func EntityListKey(kind models.EntityKind, filter string) string {
	return fmt.Sprintf("wf:entities:%s:%s", kind, filter)
}

func entityListPattern(kind models.EntityKind) string {
	return fmt.Sprintf("wf:entities:%s:*", kind)
}

// Aside implements the cache-aside pattern: on a miss, load is called and its
// result stored under key. Redis being unavailable degrades to a plain load.
func Aside(ctx context.Context, key string, dest interface{}, ttl time.Duration, load func() error) error {
	if client == nil {
		return load()
	}

	raw, err := client.Get(ctx, key).Result()
	if err == nil {
		if unmarshalErr := json.Unmarshal([]byte(raw), dest); unmarshalErr == nil {
			return nil
		}
		// Corrupt entry; fall through to a fresh load that overwrites it.
	} else if !errors.Is(err, redis.Nil) {
		return load()
	}

	if err := load(); err != nil {
		return err
	}

	if encoded, err := json.Marshal(dest); err == nil {
		client.Set(ctx, key, encoded, ttl)
	}
	return nil
}

// InvalidateEntityLists drops every cached list for the given entity kind.
func InvalidateEntityLists(ctx context.Context, kind models.EntityKind) {
	if client == nil {
		return
	}

	iter := client.Scan(ctx, 0, entityListPattern(kind), 100).Iterator()
	for iter.Next(ctx) {
		client.Del(ctx, iter.Val())
	}
}
