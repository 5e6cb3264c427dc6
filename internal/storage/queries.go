package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Organization struct {
	ID                   string
	Name                 string
	Currency             string
	BudgetAlertThreshold float64
}

type Project struct {
	ID             string
	OrganizationID string
	Name           string
	Description    string
	FiscalYear     int64
	StartDate      string
	EndDate        string
	Status         string
}

type BudgetCategory struct {
	ID             string
	ProjectID      string
	Name           string
	Type           string
	AccountingCode string
	BudgetedCents  int64
	Color          string
	Position       int64
}

type Transaction struct {
	ID                string
	OrganizationID    string
	ProjectID         string
	Type              string
	AmountCents       int64
	Description       string
	CategoryID        string
	Status            string
	Certainty         string
	TransactionDate   string
	DueDate           string
	CounterpartyName  string
	CounterpartyType  string
	CounterpartyEmail string
	CounterpartyPhone string
	CounterpartySiret string
	Tags              string
	Notes             string
	InvoiceNumber     string
	PaymentMethod     string
	VatRate           float64
	CreatedAt         string
	UpdatedAt         string
}

const upsertOrganization = `-- name: UpsertOrganization :exec
INSERT INTO organizations (id, name, currency, budget_alert_threshold)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    currency = excluded.currency,
    budget_alert_threshold = excluded.budget_alert_threshold
`

func (q *Queries) UpsertOrganization(ctx context.Context, arg Organization) error {
	_, err := q.db.ExecContext(ctx, upsertOrganization, arg.ID, arg.Name, arg.Currency, arg.BudgetAlertThreshold)
	return err
}

const getOrganization = `-- name: GetOrganization :one
SELECT id, name, currency, budget_alert_threshold FROM organizations WHERE id = ?
`

func (q *Queries) GetOrganization(ctx context.Context, id string) (Organization, error) {
	row := q.db.QueryRowContext(ctx, getOrganization, id)
	var i Organization
	err := row.Scan(&i.ID, &i.Name, &i.Currency, &i.BudgetAlertThreshold)
	return i, err
}

const createProject = `-- name: CreateProject :exec
INSERT INTO projects (id, organization_id, name, description, fiscal_year, start_date, end_date, status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreateProject(ctx context.Context, arg Project) error {
	_, err := q.db.ExecContext(ctx, createProject,
		arg.ID, arg.OrganizationID, arg.Name, arg.Description,
		arg.FiscalYear, arg.StartDate, arg.EndDate, arg.Status,
	)
	return err
}

const getProject = `-- name: GetProject :one
SELECT id, organization_id, name, description, fiscal_year, start_date, end_date, status
FROM projects WHERE organization_id = ? AND id = ?
`

type GetProjectParams struct {
	OrganizationID string
	ID             string
}

func (q *Queries) GetProject(ctx context.Context, arg GetProjectParams) (Project, error) {
	row := q.db.QueryRowContext(ctx, getProject, arg.OrganizationID, arg.ID)
	var i Project
	err := row.Scan(&i.ID, &i.OrganizationID, &i.Name, &i.Description, &i.FiscalYear, &i.StartDate, &i.EndDate, &i.Status)
	return i, err
}

const getProjectByID = `-- name: GetProjectByID :one
SELECT id, organization_id, name, description, fiscal_year, start_date, end_date, status
FROM projects WHERE id = ?
`

func (q *Queries) GetProjectByID(ctx context.Context, id string) (Project, error) {
	row := q.db.QueryRowContext(ctx, getProjectByID, id)
	var i Project
	err := row.Scan(&i.ID, &i.OrganizationID, &i.Name, &i.Description, &i.FiscalYear, &i.StartDate, &i.EndDate, &i.Status)
	return i, err
}

const listProjects = `-- name: ListProjects :many
SELECT id, organization_id, name, description, fiscal_year, start_date, end_date, status
FROM projects WHERE organization_id = ? ORDER BY name
`

func (q *Queries) ListProjects(ctx context.Context, organizationID string) ([]Project, error) {
	rows, err := q.db.QueryContext(ctx, listProjects, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Project
	for rows.Next() {
		var i Project
		if err := rows.Scan(&i.ID, &i.OrganizationID, &i.Name, &i.Description, &i.FiscalYear, &i.StartDate, &i.EndDate, &i.Status); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertCategory = `-- name: UpsertCategory :exec
INSERT INTO budget_categories (id, project_id, name, type, accounting_code, budgeted_cents, color, position)
VALUES (?, ?, ?, ?, ?, ?, ?,
    COALESCE((SELECT MAX(position) + 1 FROM budget_categories WHERE project_id = ?), 0))
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    type = excluded.type,
    accounting_code = excluded.accounting_code,
    budgeted_cents = excluded.budgeted_cents,
    color = excluded.color
`

func (q *Queries) UpsertCategory(ctx context.Context, arg BudgetCategory) error {
	_, err := q.db.ExecContext(ctx, upsertCategory,
		arg.ID, arg.ProjectID, arg.Name, arg.Type, arg.AccountingCode,
		arg.BudgetedCents, arg.Color, arg.ProjectID,
	)
	return err
}

const listCategories = `-- name: ListCategories :many
SELECT id, project_id, name, type, accounting_code, budgeted_cents, color, position
FROM budget_categories WHERE project_id = ? ORDER BY position, id
`

func (q *Queries) ListCategories(ctx context.Context, projectID string) ([]BudgetCategory, error) {
	rows, err := q.db.QueryContext(ctx, listCategories, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BudgetCategory
	for rows.Next() {
		var i BudgetCategory
		if err := rows.Scan(&i.ID, &i.ProjectID, &i.Name, &i.Type, &i.AccountingCode, &i.BudgetedCents, &i.Color, &i.Position); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const setSyncedAt = `-- name: SetSyncedAt :exec
INSERT INTO sync_state (name, synced_at) VALUES (?, ?)
ON CONFLICT(name) DO UPDATE SET synced_at = excluded.synced_at
`

func (q *Queries) SetSyncedAt(ctx context.Context, name, syncedAt string) error {
	_, err := q.db.ExecContext(ctx, setSyncedAt, name, syncedAt)
	return err
}

const getSyncedAt = `-- name: GetSyncedAt :one
SELECT synced_at FROM sync_state WHERE name = ?
`

func (q *Queries) GetSyncedAt(ctx context.Context, name string) (string, error) {
	row := q.db.QueryRowContext(ctx, getSyncedAt, name)
	var syncedAt string
	err := row.Scan(&syncedAt)
	return syncedAt, err
}

const transactionColumns = `id, organization_id, project_id, type, amount_cents, description, category_id,
    status, certainty, transaction_date, due_date,
    counterparty_name, counterparty_type, counterparty_email, counterparty_phone, counterparty_siret,
    tags, notes, invoice_number, payment_method, vat_rate, created_at, updated_at`

const createTransaction = `-- name: CreateTransaction :exec
INSERT INTO transactions (` + transactionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreateTransaction(ctx context.Context, arg Transaction) error {
	_, err := q.db.ExecContext(ctx, createTransaction, transactionArgs(arg)...)
	return err
}

const updateTransaction = `-- name: UpdateTransaction :execrows
UPDATE transactions SET
    type = ?, amount_cents = ?, description = ?, category_id = ?,
    status = ?, certainty = ?, transaction_date = ?, due_date = ?,
    counterparty_name = ?, counterparty_type = ?, counterparty_email = ?,
    counterparty_phone = ?, counterparty_siret = ?,
    tags = ?, notes = ?, invoice_number = ?, payment_method = ?, vat_rate = ?,
    updated_at = ?
WHERE organization_id = ? AND project_id = ? AND id = ?
`

func (q *Queries) UpdateTransaction(ctx context.Context, arg Transaction) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateTransaction,
		arg.Type, arg.AmountCents, arg.Description, arg.CategoryID,
		arg.Status, arg.Certainty, arg.TransactionDate, arg.DueDate,
		arg.CounterpartyName, arg.CounterpartyType, arg.CounterpartyEmail,
		arg.CounterpartyPhone, arg.CounterpartySiret,
		arg.Tags, arg.Notes, arg.InvoiceNumber, arg.PaymentMethod, arg.VatRate,
		arg.UpdatedAt,
		arg.OrganizationID, arg.ProjectID, arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteTransaction = `-- name: DeleteTransaction :execrows
DELETE FROM transactions WHERE organization_id = ? AND project_id = ? AND id = ?
`

type TransactionKey struct {
	OrganizationID string
	ProjectID      string
	ID             string
}

func (q *Queries) DeleteTransaction(ctx context.Context, arg TransactionKey) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteTransaction, arg.OrganizationID, arg.ProjectID, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getTransaction = `-- name: GetTransaction :one
SELECT ` + transactionColumns + `
FROM transactions WHERE organization_id = ? AND project_id = ? AND id = ?
`

func (q *Queries) GetTransaction(ctx context.Context, arg TransactionKey) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, getTransaction, arg.OrganizationID, arg.ProjectID, arg.ID)
	var i Transaction
	err := row.Scan(transactionDest(&i)...)
	return i, err
}

const listTransactions = `-- name: ListTransactions :many
SELECT ` + transactionColumns + `
FROM transactions WHERE organization_id = ? AND project_id = ? ORDER BY seq
`

type ListTransactionsParams struct {
	OrganizationID string
	ProjectID      string
}

func (q *Queries) ListTransactions(ctx context.Context, arg ListTransactionsParams) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions, arg.OrganizationID, arg.ProjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		var i Transaction
		if err := rows.Scan(transactionDest(&i)...); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func transactionArgs(t Transaction) []interface{} {
	return []interface{}{
		t.ID, t.OrganizationID, t.ProjectID, t.Type, t.AmountCents, t.Description, t.CategoryID,
		t.Status, t.Certainty, t.TransactionDate, t.DueDate,
		t.CounterpartyName, t.CounterpartyType, t.CounterpartyEmail, t.CounterpartyPhone, t.CounterpartySiret,
		t.Tags, t.Notes, t.InvoiceNumber, t.PaymentMethod, t.VatRate, t.CreatedAt, t.UpdatedAt,
	}
}

func transactionDest(t *Transaction) []interface{} {
	return []interface{}{
		&t.ID, &t.OrganizationID, &t.ProjectID, &t.Type, &t.AmountCents, &t.Description, &t.CategoryID,
		&t.Status, &t.Certainty, &t.TransactionDate, &t.DueDate,
		&t.CounterpartyName, &t.CounterpartyType, &t.CounterpartyEmail, &t.CounterpartyPhone, &t.CounterpartySiret,
		&t.Tags, &t.Notes, &t.InvoiceNumber, &t.PaymentMethod, &t.VatRate, &t.CreatedAt, &t.UpdatedAt,
	}
}
