package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"treso/internal/amqp"
	"treso/internal/core"
	"treso/internal/log"
	"treso/internal/ports"
	"treso/internal/stats"
)

// ErrValidation wraps every input validation failure.
var ErrValidation = errors.New("validation failed")

// ChangePublisher announces transaction changes to other processes.
type ChangePublisher interface {
	PublishTransactionChanged(ctx context.Context, msg *amqp.TransactionChangedMessage) error
}

// TreasuryService orchestrates transaction writes, change notification and
// report computation on top of a store.
type TreasuryService struct {
	store     ports.Store
	publisher ChangePublisher
	logger    *log.Logger
	now       func() time.Time
	newID     func() string
}

// NewTreasuryService returns a service over store. publisher may be nil, in
// which case no change events are sent.
func NewTreasuryService(store ports.Store, publisher ChangePublisher, logger *log.Logger) *TreasuryService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &TreasuryService{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentTreasury),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// CreateTransaction assigns an id, timestamps and a default status, then
// stores tx. The change event is best-effort.
func (s *TreasuryService) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if tx.ID == "" {
		tx.ID = s.newID()
	}
	if tx.Status == "" {
		tx.Status = core.DefaultStatus(tx.Type)
	}
	now := s.now().UTC()
	tx.CreatedAt, tx.UpdatedAt = now, now

	if err := tx.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	s.logChange(ctx, log.OpCreate, tx)
	s.publish(ctx, tx.OrganizationID, tx.ProjectID, tx.ID, amqp.ActionCreated)
	return tx, nil
}

// UpdateTransaction replaces an existing transaction, keeping its creation
// time.
func (s *TreasuryService) UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	existing, err := s.store.GetTransaction(ctx, tx.OrganizationID, tx.ProjectID, tx.ID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("load transaction: %w", err)
	}
	if tx.Status == "" {
		tx.Status = existing.Status
		if !tx.Status.AllowedFor(tx.Type) {
			tx.Status = core.DefaultStatus(tx.Type)
		}
	}
	tx.CreatedAt = existing.CreatedAt
	tx.UpdatedAt = s.now().UTC()

	if err := tx.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	s.logChange(ctx, log.OpUpdate, tx)
	s.publish(ctx, tx.OrganizationID, tx.ProjectID, tx.ID, amqp.ActionUpdated)
	return tx, nil
}

func (s *TreasuryService) DeleteTransaction(ctx context.Context, orgID, projectID, id string) error {
	if err := s.store.DeleteTransaction(ctx, orgID, projectID, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.logger.InfoContext(ctx, "Transaction deleted",
		log.FieldOrganizationID, orgID,
		log.FieldProjectID, projectID,
		log.FieldTransactionID, id)
	s.publish(ctx, orgID, projectID, id, amqp.ActionDeleted)
	return nil
}

func (s *TreasuryService) GetTransaction(ctx context.Context, orgID, projectID, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, orgID, projectID, id)
}

func (s *TreasuryService) ListTransactions(ctx context.Context, orgID, projectID string) ([]core.Transaction, error) {
	txs, err := s.store.ListTransactions(ctx, orgID, projectID)
	if err != nil {
		return nil, err
	}
	return stats.FilterByProject(txs, projectID), nil
}

func (s *TreasuryService) ListCategories(ctx context.Context, orgID, projectID string) ([]core.BudgetCategory, error) {
	cats, err := s.store.ListCategories(ctx, orgID, projectID)
	if err != nil {
		return nil, err
	}
	return stats.FilterCategoriesByProject(cats, projectID), nil
}

// CreateOrganization assigns an id, euros as currency and the default alert
// threshold where missing, then stores org.
func (s *TreasuryService) CreateOrganization(ctx context.Context, org core.Organization) (core.Organization, error) {
	if org.ID == "" {
		org.ID = s.newID()
	}
	if org.Currency == "" {
		org.Currency = "EUR"
	}
	if org.BudgetAlertThreshold == 0 {
		org.BudgetAlertThreshold = stats.DefaultAlertThreshold
	}
	if err := org.Validate(); err != nil {
		return core.Organization{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := s.store.CreateOrganization(ctx, org); err != nil {
		return core.Organization{}, fmt.Errorf("save organization: %w", err)
	}
	s.logger.InfoContext(ctx, "Organization created", log.FieldOrganizationID, org.ID)
	return org, nil
}

// CreateProject stores p as a draft unless a status is given. The store
// seeds it with the default chart of accounts.
func (s *TreasuryService) CreateProject(ctx context.Context, p core.Project) (core.Project, error) {
	if p.ID == "" {
		p.ID = s.newID()
	}
	if p.Status == "" {
		p.Status = "draft"
	}
	if err := p.Validate(); err != nil {
		return core.Project{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return core.Project{}, fmt.Errorf("save project: %w", err)
	}
	s.logger.InfoContext(ctx, "Project created",
		log.FieldOrganizationID, p.OrganizationID,
		log.FieldProjectID, p.ID)
	return p, nil
}

// UpdateCategoryBudget sets the budgeted amount of one category.
func (s *TreasuryService) UpdateCategoryBudget(ctx context.Context, orgID, projectID, categoryID string, budget core.Money) (core.BudgetCategory, error) {
	cats, err := s.ListCategories(ctx, orgID, projectID)
	if err != nil {
		return core.BudgetCategory{}, fmt.Errorf("load categories: %w", err)
	}
	var (
		c     core.BudgetCategory
		found bool
	)
	for _, cat := range cats {
		if cat.ID == categoryID {
			c, found = cat, true
			break
		}
	}
	if !found {
		return core.BudgetCategory{}, fmt.Errorf("category %s: %w", categoryID, ports.ErrNotFound)
	}

	c.BudgetedAmount = budget
	if err := c.Validate(); err != nil {
		return core.BudgetCategory{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := s.store.UpdateCategory(ctx, orgID, c); err != nil {
		return core.BudgetCategory{}, fmt.Errorf("update category: %w", err)
	}
	s.logger.InfoContext(ctx, "Category budget updated",
		log.FieldOrganizationID, orgID,
		log.FieldProjectID, projectID,
		log.FieldCategoryID, c.ID,
		log.FieldAmountCents, budget.Cents)
	return c, nil
}

func (s *TreasuryService) ListProjects(ctx context.Context, orgID string) ([]core.Project, error) {
	return s.store.ListProjects(ctx, orgID)
}

// CategoriesSyncedAt reports when budgets were last imported, zero if never.
func (s *TreasuryService) CategoriesSyncedAt(ctx context.Context) (time.Time, error) {
	return s.store.CategoriesSyncedAt(ctx)
}

// Snapshot loads the project's transactions and categories concurrently.
func (s *TreasuryService) Snapshot(ctx context.Context, orgID, projectID string) (ports.Snapshot, error) {
	snap := ports.Snapshot{OrganizationID: orgID, ProjectID: projectID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		txs, err := s.ListTransactions(gctx, orgID, projectID)
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		snap.Transactions = txs
		return nil
	})
	g.Go(func() error {
		cats, err := s.ListCategories(gctx, orgID, projectID)
		if err != nil {
			return fmt.Errorf("list categories: %w", err)
		}
		snap.Categories = cats
		return nil
	})
	if err := g.Wait(); err != nil {
		return ports.Snapshot{}, err
	}
	snap.TakenAt = s.now().UTC()
	return snap, nil
}

// ProjectStatistics computes a fresh report for one project using the
// organization's alert threshold.
func (s *TreasuryService) ProjectStatistics(ctx context.Context, orgID, projectID string) (ProjectReport, error) {
	var (
		snap ports.Snapshot
		org  core.Organization
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap, err = s.Snapshot(gctx, orgID, projectID)
		return err
	})
	g.Go(func() error {
		var err error
		org, err = s.store.GetOrganization(gctx, orgID)
		if err != nil {
			return fmt.Errorf("load organization: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return ProjectReport{}, err
	}
	return BuildReport(snap, org.BudgetAlertThreshold), nil
}

// AlertThreshold returns the organization's budget alert threshold, or the
// default when it has none.
func (s *TreasuryService) AlertThreshold(ctx context.Context, orgID string) float64 {
	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil || org.BudgetAlertThreshold <= 0 {
		return stats.DefaultAlertThreshold
	}
	return org.BudgetAlertThreshold
}

func (s *TreasuryService) publish(ctx context.Context, orgID, projectID, id string, action amqp.Action) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No change publisher configured, skipping event", log.FieldTransactionID, id)
		return
	}
	msg := amqp.NewTransactionChangedMessage(orgID, projectID, id, action)
	if err := s.publisher.PublishTransactionChanged(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish transaction change",
			log.FieldTransactionID, id,
			log.FieldProjectID, projectID,
			log.FieldError, err)
	}
}

func (s *TreasuryService) logChange(ctx context.Context, op string, tx core.Transaction) {
	log.NewStructuredLogger(s.logger).LogTransactionChanged(ctx, op,
		tx.OrganizationID, tx.ProjectID, tx.ID, string(tx.Type), tx.Amount.Cents, string(tx.Certainty))
}

// Close closes the store and the publisher when they hold resources.
func (s *TreasuryService) Close() error {
	var errs []error
	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	return errors.Join(errs...)
}
