package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treso/internal/amqp"
	"treso/internal/core"
	"treso/internal/ports"
	"treso/internal/stats"
	"treso/internal/store/memory"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.TransactionChangedMessage
	err  error
}

func (f *fakePublisher) PublishTransactionChanged(_ context.Context, msg *amqp.TransactionChangedMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return f.err
}

func (f *fakePublisher) actions() []amqp.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]amqp.Action, 0, len(f.msgs))
	for _, m := range f.msgs {
		out = append(out, m.Action)
	}
	return out
}

var fixedNow = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T, pub ChangePublisher) *TreasuryService {
	t.Helper()
	store := memory.New(nil)
	org := core.Organization{ID: "org1", Name: "Les Amis du Quartier", Currency: "EUR", BudgetAlertThreshold: 80}
	p := core.Project{
		ID: "p1", Name: "Fête de quartier", FiscalYear: 2025,
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Seed(context.Background(), org, p))

	svc := NewTreasuryService(store, pub, nil)
	svc.now = func() time.Time { return fixedNow }
	n := 0
	svc.newID = func() string {
		n++
		return "tx-" + string(rune('0'+n))
	}
	return svc
}

func draft(typ core.TransactionType, cents int64, category string, c core.Certainty) core.Transaction {
	return core.Transaction{
		OrganizationID:  "org1",
		ProjectID:       "p1",
		Type:            typ,
		Amount:          core.Money{Cents: cents},
		Description:     "Ligne de test",
		CategoryID:      core.CategoryID("p1", category),
		Certainty:       c,
		TransactionDate: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		Counterparty:    core.Counterparty{Name: "Mairie"},
	}
}

func TestCreateTransactionFillsDefaults(t *testing.T) {
	pub := &fakePublisher{}
	svc := newService(t, pub)

	tx, err := svc.CreateTransaction(context.Background(), draft(core.Revenue, 50000, "Dons et mécénat", core.Probable))
	require.NoError(t, err)

	assert.Equal(t, "tx-1", tx.ID)
	assert.Equal(t, core.DefaultStatus(core.Revenue), tx.Status)
	assert.Equal(t, fixedNow, tx.CreatedAt)
	assert.Equal(t, fixedNow, tx.UpdatedAt)
	assert.Equal(t, []amqp.Action{amqp.ActionCreated}, pub.actions())

	stored, err := svc.GetTransaction(context.Background(), "org1", "p1", tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.Amount, stored.Amount)
}

func TestCreateTransactionRejectsInvalidInput(t *testing.T) {
	pub := &fakePublisher{}
	svc := newService(t, pub)

	bad := draft(core.Expense, 0, "Réceptions", core.Confirmed)
	_, err := svc.CreateTransaction(context.Background(), bad)
	require.ErrorIs(t, err, core.ErrInvalidAmount)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, pub.actions())

	txs, err := svc.ListTransactions(context.Background(), "org1", "p1")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := newService(t, pub)

	_, err := svc.CreateTransaction(context.Background(), draft(core.Expense, 1000, "Réceptions", core.Confirmed))
	require.NoError(t, err)

	txs, err := svc.ListTransactions(context.Background(), "org1", "p1")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestServiceWithoutPublisher(t *testing.T) {
	svc := newService(t, nil)
	_, err := svc.CreateTransaction(context.Background(), draft(core.Expense, 1000, "Réceptions", core.Confirmed))
	require.NoError(t, err)
	assert.NoError(t, svc.Close())
}

func TestUpdateTransactionKeepsCreatedAt(t *testing.T) {
	pub := &fakePublisher{}
	svc := newService(t, pub)
	ctx := context.Background()

	tx, err := svc.CreateTransaction(ctx, draft(core.Expense, 1000, "Réceptions", core.Potential))
	require.NoError(t, err)

	later := fixedNow.Add(time.Hour)
	svc.now = func() time.Time { return later }

	tx.Amount = core.Money{Cents: 2500}
	tx.Certainty = core.Confirmed
	tx.CreatedAt = time.Time{}
	updated, err := svc.UpdateTransaction(ctx, tx)
	require.NoError(t, err)

	assert.Equal(t, fixedNow, updated.CreatedAt)
	assert.Equal(t, later, updated.UpdatedAt)
	assert.Equal(t, int64(2500), updated.Amount.Cents)
	assert.Equal(t, []amqp.Action{amqp.ActionCreated, amqp.ActionUpdated}, pub.actions())
}

func TestUpdateAndDeleteUnknownTransaction(t *testing.T) {
	pub := &fakePublisher{}
	svc := newService(t, pub)
	ctx := context.Background()

	ghost := draft(core.Expense, 1000, "Réceptions", core.Confirmed)
	ghost.ID = "missing"
	_, err := svc.UpdateTransaction(ctx, ghost)
	assert.ErrorIs(t, err, ports.ErrNotFound)

	err = svc.DeleteTransaction(ctx, "org1", "p1", "missing")
	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.Empty(t, pub.actions())
}

func TestDeleteTransactionPublishes(t *testing.T) {
	pub := &fakePublisher{}
	svc := newService(t, pub)
	ctx := context.Background()

	tx, err := svc.CreateTransaction(ctx, draft(core.Expense, 1000, "Réceptions", core.Confirmed))
	require.NoError(t, err)
	require.NoError(t, svc.DeleteTransaction(ctx, "org1", "p1", tx.ID))

	_, err = svc.GetTransaction(ctx, "org1", "p1", tx.ID)
	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.Equal(t, []amqp.Action{amqp.ActionCreated, amqp.ActionDeleted}, pub.actions())
}

func TestProjectStatistics(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	for _, d := range []core.Transaction{
		draft(core.Revenue, 100000, "Dons et mécénat", core.Confirmed),
		draft(core.Revenue, 50000, "Cotisations membres", core.Probable),
		draft(core.Expense, 30000, "Réceptions", core.Confirmed),
		draft(core.Expense, 20000, "Réceptions", core.Potential),
	} {
		_, err := svc.CreateTransaction(ctx, d)
		require.NoError(t, err)
	}

	report, err := svc.ProjectStatistics(ctx, "org1", "p1")
	require.NoError(t, err)

	s := report.Statistics
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, int64(150000), s.TotalRevenues.Cents)
	assert.Equal(t, int64(50000), s.TotalExpenses.Cents)
	assert.Equal(t, int64(100000), s.Balance.Cents)
	assert.Equal(t, int64(70000), s.Confirmed.Balance.Cents)
	assert.Equal(t, int64(50000), s.Probable.Revenues.Cents)
	assert.Equal(t, int64(20000), s.Potential.Expenses.Cents)

	require.Len(t, report.CategoryBreakdown, 3)
	assert.Equal(t, core.CategoryID("p1", "Dons et mécénat"), report.CategoryBreakdown[0].Category.ID)
	assert.Equal(t, int64(50000), report.CategoryBreakdown[2].Total.Cents)
	assert.Equal(t, 2, report.CategoryBreakdown[2].Count)

	// Seeded categories carry no budget, so nothing alerts.
	assert.Zero(t, report.BudgetRollup.TotalBudget.Cents)
	assert.Empty(t, report.Alerts)
	assert.Len(t, report.CategorySpending, len(core.DefaultCategories()))
	assert.Equal(t, fixedNow, report.GeneratedAt)
}

func TestProjectStatisticsUnknownProject(t *testing.T) {
	svc := newService(t, nil)
	_, err := svc.ProjectStatistics(context.Background(), "org1", "nope")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestBuildReportAlerts(t *testing.T) {
	cat := core.BudgetCategory{ID: "c1", ProjectID: "p1", Name: "Réceptions", Type: core.Expense, BudgetedAmount: core.Money{Cents: 10000}}
	snap := ports.Snapshot{
		OrganizationID: "org1",
		ProjectID:      "p1",
		Categories:     []core.BudgetCategory{cat},
		Transactions: []core.Transaction{
			{ProjectID: "p1", Type: core.Expense, Certainty: core.Confirmed, CategoryID: "c1", Amount: core.Money{Cents: 9000}},
			{ProjectID: "other", Type: core.Expense, Certainty: core.Confirmed, CategoryID: "c1", Amount: core.Money{Cents: 9000}},
		},
	}

	report := BuildReport(snap, 85)
	assert.Equal(t, int64(9000), report.Statistics.TotalExpenses.Cents)
	require.Len(t, report.Alerts, 2)
	assert.Equal(t, "c1", report.Alerts[0].CategoryID)
	assert.Equal(t, stats.SeverityWarning, report.Alerts[0].Severity)
	assert.Empty(t, report.Alerts[1].CategoryID)

	assert.Empty(t, BuildReport(snap, 95).Alerts)
}

func TestAlertThresholdFallsBack(t *testing.T) {
	svc := newService(t, nil)
	assert.Equal(t, 80.0, svc.AlertThreshold(context.Background(), "org1"))
	assert.Equal(t, stats.DefaultAlertThreshold, svc.AlertThreshold(context.Background(), "ghost"))
}

func TestCreateOrganizationAndProject(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	org, err := svc.CreateOrganization(ctx, core.Organization{Name: "Club de lecture"})
	require.NoError(t, err)
	assert.NotEmpty(t, org.ID)
	assert.Equal(t, "EUR", org.Currency)
	assert.Equal(t, stats.DefaultAlertThreshold, org.BudgetAlertThreshold)

	p, err := svc.CreateProject(ctx, core.Project{
		OrganizationID: org.ID,
		Name:           "Salon du livre",
		FiscalYear:     2025,
		StartDate:      time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "draft", p.Status)

	cats, err := svc.ListCategories(ctx, org.ID, p.ID)
	require.NoError(t, err)
	assert.Len(t, cats, len(core.DefaultCategories()))

	_, err = svc.CreateOrganization(ctx, core.Organization{Name: "X"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, core.ErrShortName)
	_, err = svc.CreateOrganization(ctx, core.Organization{Name: "Club", BudgetAlertThreshold: 120})
	assert.ErrorIs(t, err, core.ErrInvalidThreshold)

	_, err = svc.CreateProject(ctx, core.Project{OrganizationID: org.ID, Name: "Sans dates", FiscalYear: 2025})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.CreateProject(ctx, core.Project{
		OrganizationID: "nope",
		Name:           "Orphelin",
		FiscalYear:     2025,
		StartDate:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestUpdateCategoryBudgetFeedsReport(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	receptions := core.CategoryID("p1", "Réceptions")

	_, err := svc.CreateTransaction(ctx, draft(core.Expense, 9000, "Réceptions", core.Confirmed))
	require.NoError(t, err)

	c, err := svc.UpdateCategoryBudget(ctx, "org1", "p1", receptions, core.Money{Cents: 10000})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), c.BudgetedAmount.Cents)
	assert.Equal(t, "Réceptions", c.Name)

	report, err := svc.ProjectStatistics(ctx, "org1", "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), report.BudgetRollup.TotalBudget.Cents)
	require.NotEmpty(t, report.Alerts)

	_, err = svc.UpdateCategoryBudget(ctx, "org1", "p1", "nope", core.Money{Cents: 1})
	assert.ErrorIs(t, err, ports.ErrNotFound)
	_, err = svc.UpdateCategoryBudget(ctx, "org1", "p1", receptions, core.Money{Cents: -1})
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, core.ErrNegativeBudget)
}
