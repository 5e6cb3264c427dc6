// Package ports declares the outbound interfaces the services depend on.
// Every read is scoped by an explicit organization and project id.
package ports

import (
	"context"
	"errors"
	"time"

	"treso/internal/core"
)

// ErrNotFound is returned when an organization, project, category or
// transaction does not exist within the requested scope.
var ErrNotFound = errors.New("not found")

// Snapshot is the complete state of one project at a point in time.
type Snapshot struct {
	OrganizationID string
	ProjectID      string
	Transactions   []core.Transaction
	Categories     []core.BudgetCategory
	TakenAt        time.Time
}

type (
	TransactionWriter interface {
		CreateTransaction(ctx context.Context, tx core.Transaction) error
		UpdateTransaction(ctx context.Context, tx core.Transaction) error
		DeleteTransaction(ctx context.Context, orgID, projectID, id string) error
	}

	TransactionLister interface {
		ListTransactions(ctx context.Context, orgID, projectID string) ([]core.Transaction, error)
		GetTransaction(ctx context.Context, orgID, projectID, id string) (core.Transaction, error)
	}

	CategoryReader interface {
		ListCategories(ctx context.Context, orgID, projectID string) ([]core.BudgetCategory, error)
		// CategoriesSyncedAt reports when budgets were last imported, zero if never.
		CategoriesSyncedAt(ctx context.Context) (time.Time, error)
	}

	// CategoryWriter upserts categories by id and records the import time.
	// UpdateCategory replaces one existing category of an organization's
	// project and leaves the import time alone.
	CategoryWriter interface {
		UpsertCategories(ctx context.Context, categories []core.BudgetCategory) error
		UpdateCategory(ctx context.Context, orgID string, category core.BudgetCategory) error
	}

	ProjectReader interface {
		GetOrganization(ctx context.Context, orgID string) (core.Organization, error)
		GetProject(ctx context.Context, orgID, projectID string) (core.Project, error)
		ListProjects(ctx context.Context, orgID string) ([]core.Project, error)
	}

	ProjectWriter interface {
		CreateOrganization(ctx context.Context, org core.Organization) error
		// CreateProject stores p and seeds it with the default chart of accounts.
		CreateProject(ctx context.Context, p core.Project) error
	}

	// SnapshotSubscriber delivers a full snapshot of projectID after every
	// change. The returned function cancels the subscription.
	SnapshotSubscriber interface {
		Subscribe(projectID string, onSnapshot func(Snapshot)) (unsubscribe func())
	}

	// BudgetSource yields budget lines maintained outside the application.
	BudgetSource interface {
		ReadBudgets(ctx context.Context) ([]core.BudgetCategory, error)
	}

	// Store is everything a backend provides.
	Store interface {
		TransactionWriter
		TransactionLister
		CategoryReader
		CategoryWriter
		ProjectReader
		ProjectWriter
	}
)
