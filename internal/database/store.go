package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/qabase/qabase/backend/go-services/internal/config"
	"github.com/qabase/qabase/backend/go-services/internal/content/repository"
	"github.com/qabase/qabase/backend/go-services/pkg/logger"
)

// OpenStore connects to the configured database and makes sure the
// natural-key indexes exist. A missing connection string is fatal.
// Caller should call client.Disconnect(ctx).
func OpenStore(ctx context.Context, cfg config.MongoDBConfig, attempts int) (*repository.MongoRepo, *mongo.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	client, err := ConnectMongoWithRetry(ctx, cfg.URI, cfg.Timeout, attempts)
	if err != nil {
		return nil, nil, err
	}
	repo := repository.NewMongoRepo(client.Database(cfg.Database))
	ictx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := repo.EnsureIndexes(ictx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ensure indexes: %w", err)
	}
	logger.Infof("connected to MongoDB database %s", cfg.Database)
	return repo, client, nil
}
