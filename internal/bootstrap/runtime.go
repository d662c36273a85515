// Package bootstrap wires shared runtime dependencies for the binaries.
package bootstrap

import (
	"context"
	"fmt"

	"freightdesk/internal/cache"
	"freightdesk/internal/config"
	"freightdesk/internal/database"
	"freightdesk/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	SeedDemo bool
}

// InitRuntime connects to the database and Redis and optionally seeds demo
// review data. Redis may come back nil when unreachable; callers degrade to
// polling-only operation.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if opts.SeedDemo {
		seeder := seed.NewSeeder(db)
		if err := seeder.Run(context.Background(), seed.Options{
			NumCarriers:   25,
			NumDispatches: 40,
		}); err != nil {
			return nil, nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	return db, r, nil
}
