package backend

import (
	"context"

	"treso/internal/amqp"
	"treso/internal/feed"
	"treso/internal/ports"
	"treso/internal/services"
)

// CleanupFunc releases what a backend holds open.
type CleanupFunc func() error

// BackendResult is everything a binary needs to serve one data backend.
type BackendResult struct {
	Store   ports.Store
	Hub     *feed.Hub
	Service *services.TreasuryService

	// Publisher is nil when AMQP is not configured or unreachable.
	Publisher *amqp.Client
	// Budgets is nil when no spreadsheet is configured.
	Budgets ports.BudgetSource

	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Budget import is enabled when GoogleSpreadsheetID is set. Credentials
	// are read from the environment by the sheets client.
	GoogleSpreadsheetID string

	SeedOrganizationID   string
	SeedProjectID        string
	BudgetAlertThreshold float64
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
