package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treso/internal/amqp"
	"treso/internal/core"
	"treso/internal/log"
	"treso/internal/ports"
	"treso/internal/services"
	"treso/internal/stats"
	"treso/internal/store/memory"
)

type fakeReporter struct {
	report services.ProjectReport
	err    error
	calls  int
}

func (f *fakeReporter) ProjectStatistics(context.Context, string, string) (services.ProjectReport, error) {
	f.calls++
	return f.report, f.err
}

type fakeSource struct {
	cats  []core.BudgetCategory
	err   error
	calls int
}

func (f *fakeSource) ReadBudgets(context.Context) ([]core.BudgetCategory, error) {
	f.calls++
	return f.cats, f.err
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New(nil)
	p := core.Project{
		ID: "p1", Name: "Fête de quartier", FiscalYear: 2025,
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.Seed(context.Background(), core.Organization{ID: "org1", Name: "Asso"}, p))
	return s
}

func bufferLogger(buf *bytes.Buffer) *log.Logger {
	return log.New(log.Config{Output: buf, Component: log.ComponentWorker})
}

func changed(project string) *amqp.TransactionChangedMessage {
	return amqp.NewTransactionChangedMessage("org1", project, "tx1", amqp.ActionUpdated)
}

func TestHandleTransactionChangedLogsAlertsOnce(t *testing.T) {
	var buf bytes.Buffer
	rep := &fakeReporter{report: services.ProjectReport{Alerts: []stats.Alert{
		{CategoryID: "c1", CategoryName: "Réceptions", UsedPercent: 90, Severity: stats.SeverityWarning},
	}}}
	w := NewBudgetWorker(rep, seededStore(t), nil, bufferLogger(&buf))
	ctx := context.Background()

	require.NoError(t, w.HandleTransactionChanged(ctx, changed("p1")))
	require.NoError(t, w.HandleTransactionChanged(ctx, changed("p1")))
	assert.Equal(t, 1, strings.Count(buf.String(), "Budget alert"))

	// Severity change is logged again.
	rep.report.Alerts[0].Severity = stats.SeverityOverBudget
	rep.report.Alerts[0].UsedPercent = 120
	require.NoError(t, w.HandleTransactionChanged(ctx, changed("p1")))
	assert.Equal(t, 2, strings.Count(buf.String(), "Budget alert"))
	assert.Contains(t, buf.String(), "severity=over_budget")

	// Once resolved, a new breach alerts again.
	rep.report.Alerts = nil
	require.NoError(t, w.HandleTransactionChanged(ctx, changed("p1")))
	rep.report.Alerts = []stats.Alert{{CategoryID: "c1", CategoryName: "Réceptions", UsedPercent: 121, Severity: stats.SeverityOverBudget}}
	require.NoError(t, w.HandleTransactionChanged(ctx, changed("p1")))
	assert.Equal(t, 3, strings.Count(buf.String(), "Budget alert"))
}

func TestHandleTransactionChangedUnknownProject(t *testing.T) {
	rep := &fakeReporter{err: fmt.Errorf("load: %w", ports.ErrNotFound)}
	w := NewBudgetWorker(rep, seededStore(t), nil, bufferLogger(&bytes.Buffer{}))
	assert.NoError(t, w.HandleTransactionChanged(context.Background(), changed("ghost")))
}

func TestHandleTransactionChangedReportError(t *testing.T) {
	rep := &fakeReporter{err: errors.New("disk on fire")}
	w := NewBudgetWorker(rep, seededStore(t), nil, bufferLogger(&bytes.Buffer{}))
	assert.Error(t, w.HandleTransactionChanged(context.Background(), changed("p1")))
}

func TestHandleTransactionChangedWithRealService(t *testing.T) {
	var buf bytes.Buffer
	store := seededStore(t)
	svc := services.NewTreasuryService(store, nil, bufferLogger(&bytes.Buffer{}))
	ctx := context.Background()

	catID := core.CategoryID("p1", "Réceptions")
	require.NoError(t, store.UpsertCategories(ctx, []core.BudgetCategory{{
		ID: catID, ProjectID: "p1", Name: "Réceptions", Type: core.Expense, BudgetedAmount: core.Money{Cents: 10000},
	}}))
	_, err := svc.CreateTransaction(ctx, core.Transaction{
		OrganizationID: "org1", ProjectID: "p1", Type: core.Expense,
		Amount: core.Money{Cents: 12000}, Description: "Buffet", CategoryID: catID,
		Certainty: core.Confirmed, TransactionDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Counterparty: core.Counterparty{Name: "Traiteur"},
	})
	require.NoError(t, err)

	w := NewBudgetWorker(svc, store, nil, bufferLogger(&buf))
	require.NoError(t, w.HandleTransactionChanged(ctx, changed("p1")))

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "Budget alert"), out)
	assert.Contains(t, out, "category_id="+catID)
}

func TestSyncBudgetsIfNeeded(t *testing.T) {
	store := seededStore(t)
	src := &fakeSource{cats: []core.BudgetCategory{
		{ID: core.CategoryID("p1", "Réceptions"), ProjectID: "p1", Name: "Réceptions", Type: core.Expense, BudgetedAmount: core.Money{Cents: 50000}},
		{ID: core.CategoryID("ghost", "Réceptions"), ProjectID: "ghost", Name: "Réceptions", Type: core.Expense, BudgetedAmount: core.Money{Cents: 100}},
	}}
	w := NewBudgetWorker(&fakeReporter{}, store, src, bufferLogger(&bytes.Buffer{}))
	ctx := context.Background()

	// Never imported.
	require.NoError(t, w.SyncBudgetsIfNeeded(ctx))
	assert.Equal(t, 1, src.calls)

	cats, err := store.ListCategories(ctx, "org1", "p1")
	require.NoError(t, err)
	assert.Len(t, cats, len(core.DefaultCategories()))
	var budget int64
	for _, c := range cats {
		if c.ID == core.CategoryID("p1", "Réceptions") {
			budget = c.BudgetedAmount.Cents
		}
	}
	assert.Equal(t, int64(50000), budget)

	// Fresh.
	require.NoError(t, w.SyncBudgetsIfNeeded(ctx))
	assert.Equal(t, 1, src.calls)

	// Stale.
	w.now = func() time.Time { return time.Now().Add(DefaultMaxBudgetAge + time.Hour) }
	require.NoError(t, w.SyncBudgetsIfNeeded(ctx))
	assert.Equal(t, 2, src.calls)

	require.NoError(t, w.ForceRefreshBudgets(ctx))
	assert.Equal(t, 3, src.calls)
}

func TestSyncBudgetsErrors(t *testing.T) {
	ctx := context.Background()

	w := NewBudgetWorker(&fakeReporter{}, seededStore(t), nil, bufferLogger(&bytes.Buffer{}))
	assert.NoError(t, w.SyncBudgetsIfNeeded(ctx))
	assert.Error(t, w.ForceRefreshBudgets(ctx))

	src := &fakeSource{err: errors.New("quota exceeded")}
	w = NewBudgetWorker(&fakeReporter{}, seededStore(t), src, bufferLogger(&bytes.Buffer{}))
	assert.ErrorContains(t, w.SyncBudgetsIfNeeded(ctx), "quota exceeded")

	src = &fakeSource{cats: []core.BudgetCategory{{ID: "x", ProjectID: "p1", Name: "Réceptions", Type: core.Expense, BudgetedAmount: core.Money{Cents: -1}}}}
	w = NewBudgetWorker(&fakeReporter{}, seededStore(t), src, bufferLogger(&bytes.Buffer{}))
	assert.ErrorIs(t, w.ForceRefreshBudgets(ctx), core.ErrNegativeBudget)
}

func TestRunStopsOnCancel(t *testing.T) {
	src := &fakeSource{}
	w := NewBudgetWorker(&fakeReporter{}, seededStore(t), src, bufferLogger(&bytes.Buffer{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, time.Hour) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
