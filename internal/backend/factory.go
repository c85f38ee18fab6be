package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finances/internal/amqp"
	"finances/internal/cache"
	"finances/internal/lock"
	applog "finances/internal/log"
	"finances/internal/rules"
	"finances/internal/services"
	ports "finances/internal/sheets"
	gsheet "finances/internal/sheets/google"
	sheetsmem "finances/internal/sheets/memory"
	"finances/internal/storage"
	"finances/internal/storage/memory"
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
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	seeds, err := rules.LoadSeeds(config.RulesSeedFile)
	if err != nil {
		return nil, err
	}

	store, err := f.createStore(config)
	if err != nil {
		return nil, err
	}

	amqpClient := f.createAMQPClient(ctx, config)

	locks := lock.NewKeyed()
	opts := []services.LedgerOption{
		services.WithRuleSeeds(seeds),
		services.WithRecalcConcurrency(config.RecalcConcurrency),
	}
	// Only set when non-nil: a typed nil would pass the service's nil check.
	if amqpClient != nil {
		opts = append(opts, services.WithPublisher(amqpClient))
	}
	ledger := services.NewLedgerService(store, locks, opts...)

	cacheSize := config.RuleCacheSize
	if cacheSize < 1 {
		cacheSize = 256
	}
	ttl := config.RuleCacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	cached := rules.NewCachedSource(store, cacheSize, ttl)
	caches := cache.NewManager()
	caches.Register(cached.Cleaner())

	matcher := rules.NewMatcher(cached)
	result := &BackendResult{
		Store:   store,
		Ledger:  ledger,
		Imports: services.NewImportService(store, matcher, ledger, locks),
		Rules:   services.NewRuleService(store, matcher, cached),
		Caches:  caches,
		AMQP:    amqpClient,
	}
	result.Cleanup = func() error {
		caches.Stop()
		var errs []error
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				errs = append(errs, fmt.Errorf("amqp: %w", err))
			}
		}
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
		return errors.Join(errs...)
	}

	f.logger.Info("Initialized ledger backend",
		applog.FieldComponent, applog.ComponentBackend,
		"type", config.Type.String(),
		"seed_rules", len(seeds),
		"amqp_enabled", amqpClient != nil)
	return result, nil
}

func (f *DefaultFactory) createStore(config Config) (storage.Store, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite store",
			applog.FieldComponent, applog.ComponentStorage,
			"db_path", config.SQLiteDBPath)
		return repo, nil
	case MemoryBackend:
		f.logger.Warn("Using in-memory store, data is lost on restart",
			applog.FieldComponent, applog.ComponentStorage)
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// createAMQPClient returns nil when AMQP is disabled or unreachable; the
// ledger keeps working without events.
func (f *DefaultFactory) createAMQPClient(ctx context.Context, config Config) *amqp.Client {
	if config.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events",
			applog.FieldComponent, applog.ComponentAMQP,
			applog.FieldError, err)
		return nil
	}
	f.logger.InfoContext(ctx, "Initialized AMQP client",
		applog.FieldComponent, applog.ComponentAMQP,
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client
}

// NewExporter returns the Google Sheets exporter when a spreadsheet is
// configured and an in-memory one otherwise.
func NewExporter(ctx context.Context, logger *slog.Logger, spreadsheetID, sheetName string) (ports.BalanceExporter, error) {
	if spreadsheetID == "" {
		logger.WarnContext(ctx, "No spreadsheet configured, balance exports stay in memory",
			applog.FieldComponent, applog.ComponentSheets)
		return sheetsmem.New(sheetName), nil
	}
	client, err := gsheet.New(ctx, spreadsheetID, sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	return client, nil
}
