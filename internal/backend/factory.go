package backend

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"tally/internal/store/memory"
	"tally/internal/store/mongodb"
	"tally/internal/store/sqlite"
)

const (
	defaultSeedDir = "data"
	defaultUser    = "guest"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MongoBackend:
		return f.createMongoBackend(ctx, config)
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createMongoBackend(ctx context.Context, config Config) (Backend, error) {
	st, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      config.MongoURI,
		Database: config.MongoDatabase,
		Timeout:  config.MongoTimeout,
		Location: config.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	f.logger.Info("Initialized MongoDB backend", "database", config.MongoDatabase)
	return st, nil
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (Backend, error) {
	repo, err := sqlite.NewRepository(config.SQLiteDBPath, config.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	users := memory.ReadSeedLines(filepath.Join(seedDir(config), "seed_users.txt"))
	if len(users) == 0 {
		users = []string{defaultUser}
	}
	if err := repo.SeedUsers(ctx, users); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to seed SQLite users: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath, "seeded_users", len(users))
	return repo, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (Backend, error) {
	dir := seedDir(config)
	st := memory.NewFromFiles(dir, config.Location)

	f.logger.Info("Initialized memory backend", "data_directory", dir)
	return st, nil
}

func seedDir(config Config) string {
	if config.SeedDir == "" {
		return defaultSeedDir
	}
	return config.SeedDir
}
