package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rpggio/entityhub/internal/config"
	"github.com/rpggio/entityhub/internal/dynamo"
	"github.com/rpggio/entityhub/internal/memory"
	"github.com/rpggio/entityhub/internal/mongo"
	"github.com/rpggio/entityhub/internal/repository"
	"github.com/rpggio/entityhub/internal/sqlite"
)

// backendFactory opens a document backend from the db configuration.
type backendFactory func(ctx context.Context, cfg config.DBConfig) (repository.Backend, error)

var backendFactories = map[string]backendFactory{
	config.DriverMemory: func(context.Context, config.DBConfig) (repository.Backend, error) {
		return memory.New(), nil
	},
	config.DriverSQLite: openSQLite,
	config.DriverMongo: func(ctx context.Context, cfg config.DBConfig) (repository.Backend, error) {
		return mongo.Connect(ctx, mongo.Config{
			URI:            cfg.MongoURI,
			Database:       cfg.MongoDatabase,
			ConnectTimeout: 10 * time.Second,
		})
	},
	config.DriverDynamo: func(ctx context.Context, cfg config.DBConfig) (repository.Backend, error) {
		dcfg := dynamo.DefaultConfig()
		dcfg.Region = cfg.DynamoRegion
		dcfg.Endpoint = cfg.DynamoEndpoint
		dcfg.TablePrefix = cfg.DynamoTablePrefix
		client, err := dynamo.NewClient(ctx, dcfg)
		if err != nil {
			return nil, err
		}
		return dynamo.New(client, dcfg), nil
	},
}

func openBackend(ctx context.Context, cfg config.DBConfig) (repository.Backend, error) {
	factory, ok := backendFactories[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unknown driver %q (have %v)", cfg.Driver, driverNames())
	}
	return factory(ctx, cfg)
}

func driverNames() []string {
	names := make([]string, 0, len(backendFactories))
	for name := range backendFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func openSQLite(_ context.Context, cfg config.DBConfig) (repository.Backend, error) {
	if err := ensureDBDir(cfg.Path); err != nil {
		return nil, fmt.Errorf("prepare database path: %w", err)
	}
	db, err := sqlite.New(cfg.Path)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sqlite.NewBackend(db), nil
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
