package store

import (
	"context"
	"fmt"

	"hichat/internal/app/db"
	"hichat/internal/configs"
)

// Open builds the Gateway selected by cfg.StoreBackend.
func Open(ctx context.Context, cfg *configs.AppConfig) (Gateway, error) {
	switch cfg.StoreBackend {
	case configs.BackendMemory:
		return NewMemory(), nil

	case configs.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return NewPostgres(pool), nil

	case configs.BackendRedis:
		return NewRedis(ctx, cfg.RedisURL)

	case configs.BackendMongo:
		return NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)

	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.StoreBackend)
	}
}
