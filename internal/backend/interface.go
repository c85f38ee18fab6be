package backend

import (
	"context"
	"time"

	"finances/internal/amqp"
	"finances/internal/cache"
	"finances/internal/services"
	"finances/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the wired ledger stack and the function that releases it.
type BackendResult struct {
	Store   storage.Store
	Ledger  *services.LedgerService
	Imports *services.ImportService
	Rules   *services.RuleService
	Caches  *cache.Manager
	// AMQP is nil when publishing is disabled or the broker was unreachable.
	AMQP    *amqp.Client
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Optional event publishing
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Rules
	RulesSeedFile string
	RuleCacheSize int
	RuleCacheTTL  time.Duration

	RecalcConcurrency int
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
