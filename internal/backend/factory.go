package backend

import (
	"context"
	"errors"
	"fmt"

	"gastos/internal/amqp"
	"gastos/internal/log"
	"gastos/internal/storage"
	"gastos/internal/store"
	"gastos/internal/store/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	return &DefaultFactory{
		logger: log.OrDiscard(logger).WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		result *BackendResult
		err    error
	)
	switch config.Type {
	case SQLiteBackend:
		result, err = f.createSQLiteBackend(config)
	case MemoryBackend:
		result, err = f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	feed, closeFeed := f.createFeed(config)
	result.Feed = feed
	if closeFeed != nil {
		closeStore := result.Cleanup
		result.Cleanup = func() error {
			var errs []error
			errs = append(errs, closeFeed())
			if closeStore != nil {
				errs = append(errs, closeStore())
			}
			return errors.Join(errs...)
		}
	}
	return result, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Backend: sqliteRepo,
		Cleanup: sqliteRepo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	f.logger.Info("Initialized memory backend")

	return &BackendResult{
		Backend: memory.New(),
		Cleanup: nil, // No cleanup needed for memory backend
	}, nil
}

// createFeed picks the AMQP feed when configured and reachable, falling back
// to the in-process feed otherwise.
func (f *DefaultFactory) createFeed(config Config) (store.ChangeFeed, CleanupFunc) {
	if config.AMQPURL == "" {
		return memory.NewFeed(), nil
	}

	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, "")
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP feed, notifications stay in process", "error", err)
		return memory.NewFeed(), nil
	}

	f.logger.Info("Initialized AMQP change feed", "exchange", config.AMQPExchange)
	return client, client.Close
}

var (
	_ store.Backend    = (*storage.SQLiteRepository)(nil)
	_ store.Backend    = (*memory.Store)(nil)
	_ store.ChangeFeed = (*amqp.Client)(nil)
	_ store.ChangeFeed = (*memory.Feed)(nil)
)
