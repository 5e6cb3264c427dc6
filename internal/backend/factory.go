package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"treso/internal/amqp"
	"treso/internal/core"
	"treso/internal/feed"
	"treso/internal/log"
	"treso/internal/ports"
	"treso/internal/services"
	gsheet "treso/internal/sheets/google"
	"treso/internal/storage"
	"treso/internal/store/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger

	// newBudgetSource builds the spreadsheet reader. Tests replace it.
	newBudgetSource func(ctx context.Context) (ports.BudgetSource, error)
}

func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
		newBudgetSource: func(ctx context.Context) (ports.BudgetSource, error) {
			return gsheet.NewFromEnv(ctx)
		},
	}
}

// CreateBackend opens the configured store, seeds the demo organization and
// project, then attaches the optional AMQP publisher and budget source.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	hub := feed.NewHub()
	var (
		store   ports.Store
		cleanup []func() error
	)
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, hub)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		store = repo
		cleanup = append(cleanup, repo.Close)
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		store = memory.New(hub)
		f.logger.Info("Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	if err := seed(ctx, store, config); err != nil {
		closeAll(cleanup)
		return nil, fmt.Errorf("seed demo project: %w", err)
	}

	result := &BackendResult{Store: store, Hub: hub}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without change events", log.FieldError, err)
		} else {
			result.Publisher = client
			cleanup = append(cleanup, client.Close)
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	if config.GoogleSpreadsheetID != "" {
		src, err := f.newBudgetSource(ctx)
		if err != nil {
			f.logger.Warn("Failed to initialize Google Sheets client, budget import disabled", log.FieldError, err)
		} else {
			result.Budgets = src
			f.logger.Info("Initialized Google Sheets budget source")
		}
	}

	// A nil *amqp.Client must not become a non-nil interface value.
	var publisher services.ChangePublisher
	if result.Publisher != nil {
		publisher = result.Publisher
	}
	result.Service = services.NewTreasuryService(store, publisher, f.logger)
	result.Cleanup = func() error { return closeAll(cleanup) }

	return result, nil
}

func seed(ctx context.Context, store ports.Store, config Config) error {
	if config.SeedOrganizationID == "" || config.SeedProjectID == "" {
		return nil
	}
	org := core.Organization{
		ID:                   config.SeedOrganizationID,
		Name:                 "Association de démonstration",
		Currency:             "EUR",
		BudgetAlertThreshold: config.BudgetAlertThreshold,
	}
	if _, err := store.GetOrganization(ctx, org.ID); errors.Is(err, ports.ErrNotFound) {
		if err := store.CreateOrganization(ctx, org); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if _, err := store.GetProject(ctx, org.ID, config.SeedProjectID); err == nil {
		return nil
	} else if !errors.Is(err, ports.ErrNotFound) {
		return err
	}
	year := time.Now().Year()
	return store.CreateProject(ctx, core.Project{
		ID:             config.SeedProjectID,
		OrganizationID: org.ID,
		Name:           "Projet de démonstration",
		FiscalYear:     year,
		StartDate:      time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC),
		Status:         "active",
	})
}

func closeAll(fns []func() error) error {
	var errs []error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
