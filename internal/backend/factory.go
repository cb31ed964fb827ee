package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/cache"
	"ledger/internal/log"
	"ledger/internal/rules"
	"ledger/internal/services"
	"ledger/internal/storage"
)

const cacheCleanupInterval = 10 * time.Minute

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default(log.ComponentApp)
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend opens storage, runs migrations and wires the ledger service.
// The AMQP client is optional: when it cannot connect the service runs jobs
// inline.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	repo, err := f.openRepository(config)
	if err != nil {
		return nil, err
	}

	var publisher services.JobPublisher
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, jobs will run inline", log.FieldError, err)
		} else {
			publisher = client
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	matcher := rules.NewMatcher(config.PatternCacheSize, config.PatternCacheTTL)
	caches := cache.NewManager()
	caches.Register("rule_patterns", matcher.Cache())
	if config.PatternCacheTTL > 0 {
		caches.StartCleanup(cacheCleanupInterval)
	}

	ledger := services.NewLedgerService(repo, matcher, publisher, f.logger.WithComponent(log.ComponentLedger))

	f.logger.InfoContext(ctx, "Initialized ledger backend",
		"backend", config.Type.String(),
		"amqp_enabled", publisher != nil)

	return &BackendResult{
		Ledger: ledger,
		Cleanup: func() error {
			caches.Stop()
			return ledger.Close()
		},
	}, nil
}

func (f *DefaultFactory) openRepository(config Config) (*storage.Repository, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		return repo, nil
	case PostgresBackend:
		repo, err := storage.NewPostgresRepository(config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
		}
		return repo, nil
	}
	return nil, errors.New("unsupported backend type: " + config.Type.String())
}
