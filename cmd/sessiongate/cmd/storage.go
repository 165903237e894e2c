package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmcleod/sessiongate/config"
	"github.com/jmcleod/sessiongate/storage"
	bboltstorage "github.com/jmcleod/sessiongate/storage/bbolt"
	"github.com/jmcleod/sessiongate/storage/memory"
	"github.com/jmcleod/sessiongate/storage/postgres"
)

// boltFile is the database file inside the data dir.
const boltFile = "sessiongate.db"

// openStorage opens the configured backend. The returned func releases it.
func openStorage(ctx context.Context, c config.Config) (storage.Repository, func(), error) {
	switch c.Backend {
	case config.BackendMemory:
		return memory.NewRepository(), func() {}, nil
	case config.BackendBolt:
		if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(c.DataDir, boltFile), nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open bbolt storage: %w", err)
		}
		return repo, func() { repo.Close() }, nil
	case config.BackendPostgres:
		repo, err := postgres.NewRepositoryFromDSN(ctx, c.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres storage: %w", err)
		}
		return repo, repo.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", c.Backend)
	}
}

// openPersistentStorage is openStorage for one-shot commands, which are
// pointless against the in-memory backend.
func openPersistentStorage(ctx context.Context, c config.Config) (storage.Repository, func(), error) {
	if c.Backend == config.BackendMemory {
		return nil, nil, fmt.Errorf("this command needs a persistent storage backend; set --storage bbolt or postgres")
	}
	return openStorage(ctx, c)
}
