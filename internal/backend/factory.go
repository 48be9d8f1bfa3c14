package backend

import (
	"fmt"
	"log/slog"
	"time"

	"tipped/internal/amqp"
	"tipped/internal/cache"
	"tipped/internal/config"
	"tipped/internal/core"
	"tipped/internal/services"
	"tipped/internal/storage"
	"tipped/internal/storage/memory"
)

const (
	summaryCacheSize = 128
	summaryCacheTTL  = 5 * time.Minute
	cleanupInterval  = 10 * time.Minute
)

// NewBackend wires a full backend from the application config: storage,
// the optional AMQP sync publisher, the tip and aggregate services, and
// the summary cache with its cleanup loop already running.
func NewBackend(cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	backendType := BackendType(cfg.DataBackend)
	if !backendType.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", cfg.DataBackend)
	}

	store, err := newStore(backendType, cfg, logger)
	if err != nil {
		return nil, err
	}

	publisher := newPublisher(backendType, cfg, logger)

	tips := services.NewTipService(store, publisher)

	summaryCache := cache.NewLRUCache[core.Summary](summaryCacheSize, summaryCacheTTL)
	manager := cache.NewManager()
	manager.Register(summaryCache)
	manager.StartCleanup(cleanupInterval)

	aggregates := services.NewAggregateService(store, summaryCache)

	return &Backend{
		Tips:       tips,
		Aggregates: aggregates,
		Cache:      manager,
		Cleanup: func() error {
			manager.Stop()
			return tips.Close()
		},
	}, nil
}

func newStore(backendType BackendType, cfg *config.Config, logger *slog.Logger) (services.TipStore, error) {
	switch backendType {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		logger.Info("Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)
		return repo, nil
	case MemoryBackend:
		logger.Info("Initialized memory backend")
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", backendType)
	}
}

// newPublisher returns nil when AMQP is unconfigured or unreachable;
// tips then stay pending until a sync path picks them up.
func newPublisher(backendType BackendType, cfg *config.Config, logger *slog.Logger) services.SyncPublisher {
	if backendType != SQLiteBackend || cfg.AMQPURL == "" {
		return nil
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing without sync", "error", err)
		return nil
	}

	logger.Info("Initialized AMQP client",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)
	return client
}
