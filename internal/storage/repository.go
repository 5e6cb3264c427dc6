package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"treso/internal/core"
	"treso/internal/feed"
	"treso/internal/ports"

	_ "modernc.org/sqlite"
)

const (
	dateLayout        = "2006-01-02"
	categoriesSyncKey = "budget_categories"
)

var _ ports.Store = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	hub     *feed.Hub
	now     func() time.Time
	// pubMu serializes snapshot reads and deliveries, so a later delivery
	// never carries older data than an earlier one.
	pubMu sync.Mutex
}

// NewSQLiteRepository opens dbPath, applies pending migrations and returns a
// repository publishing project snapshots to hub (which may be nil).
func NewSQLiteRepository(dbPath string, hub *feed.Hub) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		hub:     hub,
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) CreateOrganization(ctx context.Context, org core.Organization) error {
	if org.ID == "" {
		return fmt.Errorf("organization id is required")
	}
	if org.Currency == "" {
		org.Currency = "EUR"
	}
	err := r.queries.UpsertOrganization(ctx, Organization{
		ID:                   org.ID,
		Name:                 org.Name,
		Currency:             org.Currency,
		BudgetAlertThreshold: org.BudgetAlertThreshold,
	})
	if err != nil {
		return fmt.Errorf("upsert organization: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetOrganization(ctx context.Context, orgID string) (core.Organization, error) {
	o, err := r.queries.GetOrganization(ctx, orgID)
	if err != nil {
		return core.Organization{}, notFound(err, "organization %s", orgID)
	}
	return core.Organization{ID: o.ID, Name: o.Name, Currency: o.Currency, BudgetAlertThreshold: o.BudgetAlertThreshold}, nil
}

// CreateProject inserts p and its default chart of accounts in one
// transaction.
func (r *SQLiteRepository) CreateProject(ctx context.Context, p core.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, err := r.GetOrganization(ctx, p.OrganizationID); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	if p.Status == "" {
		p.Status = "draft"
	}
	err = q.CreateProject(ctx, Project{
		ID:             p.ID,
		OrganizationID: p.OrganizationID,
		Name:           p.Name,
		Description:    p.Description,
		FiscalYear:     int64(p.FiscalYear),
		StartDate:      formatDate(p.StartDate),
		EndDate:        formatDate(p.EndDate),
		Status:         p.Status,
	})
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	for _, t := range core.DefaultCategories() {
		if err := q.UpsertCategory(ctx, categoryRow(t.NewCategory(p.ID))); err != nil {
			return fmt.Errorf("seed category %q: %w", t.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Project created",
		"project_id", p.ID,
		"organization_id", p.OrganizationID,
		"categories", len(core.DefaultCategories()))

	r.publish(ctx, p.OrganizationID, p.ID)
	return nil
}

func (r *SQLiteRepository) GetProject(ctx context.Context, orgID, projectID string) (core.Project, error) {
	p, err := r.queries.GetProject(ctx, GetProjectParams{OrganizationID: orgID, ID: projectID})
	if err != nil {
		return core.Project{}, notFound(err, "project %s/%s", orgID, projectID)
	}
	return projectFromRow(p), nil
}

func (r *SQLiteRepository) ListProjects(ctx context.Context, orgID string) ([]core.Project, error) {
	if _, err := r.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	rows, err := r.queries.ListProjects(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	out := make([]core.Project, len(rows))
	for i, p := range rows {
		out[i] = projectFromRow(p)
	}
	return out, nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if _, err := r.GetProject(ctx, t.OrganizationID, t.ProjectID); err != nil {
		return err
	}
	row, err := transactionRow(t)
	if err != nil {
		return err
	}
	if err := r.queries.CreateTransaction(ctx, row); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"transaction_id", t.ID,
		"project_id", t.ProjectID,
		"amount_cents", t.Amount.Cents,
		"certainty", string(t.Certainty))

	r.publish(ctx, t.OrganizationID, t.ProjectID)
	return nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	row, err := transactionRow(t)
	if err != nil {
		return err
	}
	n, err := r.queries.UpdateTransaction(ctx, row)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", t.ID, ports.ErrNotFound)
	}
	r.publish(ctx, t.OrganizationID, t.ProjectID)
	return nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, orgID, projectID, id string) error {
	n, err := r.queries.DeleteTransaction(ctx, TransactionKey{OrganizationID: orgID, ProjectID: projectID, ID: id})
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", id, ports.ErrNotFound)
	}
	slog.InfoContext(ctx, "Transaction deleted", "transaction_id", id, "project_id", projectID)
	r.publish(ctx, orgID, projectID)
	return nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, orgID, projectID, id string) (core.Transaction, error) {
	row, err := r.queries.GetTransaction(ctx, TransactionKey{OrganizationID: orgID, ProjectID: projectID, ID: id})
	if err != nil {
		return core.Transaction{}, notFound(err, "transaction %s", id)
	}
	return transactionFromRow(row)
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, orgID, projectID string) ([]core.Transaction, error) {
	if _, err := r.GetProject(ctx, orgID, projectID); err != nil {
		return nil, err
	}
	rows, err := r.queries.ListTransactions(ctx, ListTransactionsParams{OrganizationID: orgID, ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := transactionFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, orgID, projectID string) ([]core.BudgetCategory, error) {
	if _, err := r.GetProject(ctx, orgID, projectID); err != nil {
		return nil, err
	}
	rows, err := r.queries.ListCategories(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]core.BudgetCategory, len(rows))
	for i, c := range rows {
		out[i] = core.BudgetCategory{
			ID:             c.ID,
			ProjectID:      c.ProjectID,
			Name:           c.Name,
			Type:           core.TransactionType(c.Type),
			AccountingCode: c.AccountingCode,
			BudgetedAmount: core.Money{Cents: c.BudgetedCents},
			Color:          c.Color,
		}
	}
	return out, nil
}

// UpsertCategories writes all categories in one transaction and records the
// import time. A category of an unknown project aborts the whole batch.
func (r *SQLiteRepository) UpsertCategories(ctx context.Context, categories []core.BudgetCategory) error {
	for _, c := range categories {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("category %q: %w", c.Name, err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	touched := make(map[string]string) // project -> organization
	for _, c := range categories {
		if _, seen := touched[c.ProjectID]; !seen {
			p, err := q.GetProjectByID(ctx, c.ProjectID)
			if err != nil {
				return notFound(err, "project %s", c.ProjectID)
			}
			touched[c.ProjectID] = p.OrganizationID
		}
		if err := q.UpsertCategory(ctx, categoryRow(c)); err != nil {
			return fmt.Errorf("upsert category %q: %w", c.Name, err)
		}
	}
	if err := q.SetSyncedAt(ctx, categoriesSyncKey, r.now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("record sync time: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Budget categories upserted", "count", len(categories), "projects", len(touched))
	for projectID, orgID := range touched {
		r.publish(ctx, orgID, projectID)
	}
	return nil
}

// UpdateCategory replaces an existing category of orgID's project.
func (r *SQLiteRepository) UpdateCategory(ctx context.Context, orgID string, c core.BudgetCategory) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("category %q: %w", c.Name, err)
	}
	existing, err := r.ListCategories(ctx, orgID, c.ProjectID)
	if err != nil {
		return err
	}
	found := false
	for _, e := range existing {
		if e.ID == c.ID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("category %s: %w", c.ID, ports.ErrNotFound)
	}
	if err := r.queries.UpsertCategory(ctx, categoryRow(c)); err != nil {
		return fmt.Errorf("update category %q: %w", c.Name, err)
	}
	r.publish(ctx, orgID, c.ProjectID)
	return nil
}

func (r *SQLiteRepository) CategoriesSyncedAt(ctx context.Context) (time.Time, error) {
	s, err := r.queries.GetSyncedAt(ctx, categoriesSyncKey)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get sync time: %w", err)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse sync time %q: %w", s, err)
	}
	return t, nil
}

// publish loads and broadcasts the project's snapshot. Failures are logged:
// the write already succeeded.
func (r *SQLiteRepository) publish(ctx context.Context, orgID, projectID string) {
	if r.hub == nil {
		return
	}
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	txs, err := r.ListTransactions(ctx, orgID, projectID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load snapshot transactions", "project_id", projectID, "error", err)
		return
	}
	cats, err := r.ListCategories(ctx, orgID, projectID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load snapshot categories", "project_id", projectID, "error", err)
		return
	}
	r.hub.Publish(ports.Snapshot{
		OrganizationID: orgID,
		ProjectID:      projectID,
		Transactions:   txs,
		Categories:     cats,
		TakenAt:        r.now(),
	})
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, ports.ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func categoryRow(c core.BudgetCategory) BudgetCategory {
	return BudgetCategory{
		ID:             c.ID,
		ProjectID:      c.ProjectID,
		Name:           c.Name,
		Type:           string(c.Type),
		AccountingCode: c.AccountingCode,
		BudgetedCents:  c.BudgetedAmount.Cents,
		Color:          c.Color,
	}
}

func projectFromRow(p Project) core.Project {
	return core.Project{
		ID:             p.ID,
		OrganizationID: p.OrganizationID,
		Name:           p.Name,
		Description:    p.Description,
		FiscalYear:     int(p.FiscalYear),
		StartDate:      parseDate(p.StartDate),
		EndDate:        parseDate(p.EndDate),
		Status:         p.Status,
	}
}

func transactionRow(t core.Transaction) (Transaction, error) {
	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return Transaction{}, fmt.Errorf("encode tags: %w", err)
	}
	if t.Tags == nil {
		tags = []byte("[]")
	}
	return Transaction{
		ID:                t.ID,
		OrganizationID:    t.OrganizationID,
		ProjectID:         t.ProjectID,
		Type:              string(t.Type),
		AmountCents:       t.Amount.Cents,
		Description:       t.Description,
		CategoryID:        t.CategoryID,
		Status:            string(t.Status),
		Certainty:         string(t.Certainty),
		TransactionDate:   formatDate(t.TransactionDate),
		DueDate:           formatDate(t.DueDate),
		CounterpartyName:  t.Counterparty.Name,
		CounterpartyType:  t.Counterparty.Type,
		CounterpartyEmail: t.Counterparty.Email,
		CounterpartyPhone: t.Counterparty.Phone,
		CounterpartySiret: t.Counterparty.SIRET,
		Tags:              string(tags),
		Notes:             t.Notes,
		InvoiceNumber:     t.InvoiceNumber,
		PaymentMethod:     t.PaymentMethod,
		VatRate:           t.VATRate,
		CreatedAt:         formatTime(t.CreatedAt),
		UpdatedAt:         formatTime(t.UpdatedAt),
	}, nil
}

func transactionFromRow(row Transaction) (core.Transaction, error) {
	var tags []string
	if row.Tags != "" {
		if err := json.Unmarshal([]byte(row.Tags), &tags); err != nil {
			return core.Transaction{}, fmt.Errorf("decode tags of %s: %w", row.ID, err)
		}
	}
	return core.Transaction{
		ID:              row.ID,
		OrganizationID:  row.OrganizationID,
		ProjectID:       row.ProjectID,
		Type:            core.TransactionType(row.Type),
		Amount:          core.Money{Cents: row.AmountCents},
		Description:     row.Description,
		CategoryID:      row.CategoryID,
		Status:          core.TransactionStatus(row.Status),
		Certainty:       core.Certainty(row.Certainty),
		TransactionDate: parseDate(row.TransactionDate),
		DueDate:         parseDate(row.DueDate),
		Counterparty: core.Counterparty{
			Name:  row.CounterpartyName,
			Type:  row.CounterpartyType,
			Email: row.CounterpartyEmail,
			Phone: row.CounterpartyPhone,
			SIRET: row.CounterpartySiret,
		},
		Tags:          tags,
		Notes:         row.Notes,
		InvoiceNumber: row.InvoiceNumber,
		PaymentMethod: row.PaymentMethod,
		VATRate:       row.VatRate,
		CreatedAt:     parseTime(row.CreatedAt),
		UpdatedAt:     parseTime(row.UpdatedAt),
	}, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func parseDate(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
