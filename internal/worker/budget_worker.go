package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"treso/internal/amqp"
	"treso/internal/core"
	"treso/internal/log"
	"treso/internal/ports"
	"treso/internal/services"
	"treso/internal/stats"
)

// DefaultMaxBudgetAge is how long imported budgets stay fresh before the
// spreadsheet is read again.
const DefaultMaxBudgetAge = 7 * 24 * time.Hour

// Reporter computes project reports.
type Reporter interface {
	ProjectStatistics(ctx context.Context, orgID, projectID string) (services.ProjectReport, error)
}

// BudgetStore is the part of the store the worker writes imported budgets to.
type BudgetStore interface {
	ports.CategoryWriter
	CategoriesSyncedAt(ctx context.Context) (time.Time, error)
}

// BudgetWorker reacts to transaction changes by checking budget alerts and
// keeps budget categories in sync with the budget spreadsheet.
type BudgetWorker struct {
	reporter Reporter
	store    BudgetStore
	source   ports.BudgetSource
	logger   *log.Logger
	maxAge   time.Duration
	now      func() time.Time

	mu     sync.Mutex
	alerts map[string]string // project/category -> last logged severity
}

// NewBudgetWorker wires a worker. source may be nil when no spreadsheet is
// configured; budget syncs are then no-ops.
func NewBudgetWorker(reporter Reporter, store BudgetStore, source ports.BudgetSource, logger *log.Logger) *BudgetWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &BudgetWorker{
		reporter: reporter,
		store:    store,
		source:   source,
		logger:   logger.WithComponent(log.ComponentWorker),
		maxAge:   DefaultMaxBudgetAge,
		now:      time.Now,
		alerts:   make(map[string]string),
	}
}

// SetMaxBudgetAge overrides DefaultMaxBudgetAge. Non-positive values are
// ignored.
func (w *BudgetWorker) SetMaxBudgetAge(d time.Duration) {
	if d > 0 {
		w.maxAge = d
	}
}

// HandleTransactionChanged recomputes the project's report and logs budget
// alerts that are new or changed severity since the last message. Messages
// for unknown projects are dropped without error.
func (w *BudgetWorker) HandleTransactionChanged(ctx context.Context, msg *amqp.TransactionChangedMessage) error {
	w.logger.DebugContext(ctx, "Processing transaction change",
		log.FieldTransactionID, msg.TransactionID,
		log.FieldProjectID, msg.ProjectID,
		log.FieldOperation, string(msg.Action))

	report, err := w.reporter.ProjectStatistics(ctx, msg.OrganizationID, msg.ProjectID)
	if errors.Is(err, ports.ErrNotFound) {
		w.logger.WarnContext(ctx, "Dropping change for unknown project",
			log.FieldOrganizationID, msg.OrganizationID,
			log.FieldProjectID, msg.ProjectID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("compute report: %w", err)
	}

	for _, a := range w.freshAlerts(msg.ProjectID, report.Alerts) {
		log.NewStructuredLogger(w.logger).LogBudgetAlert(ctx,
			msg.OrganizationID, msg.ProjectID, a.CategoryID, a.Severity, a.UsedPercent, a.String())
	}
	return nil
}

// freshAlerts returns the alerts not already logged with the same severity
// and forgets categories of projectID that no longer alert.
func (w *BudgetWorker) freshAlerts(projectID string, alerts []stats.Alert) []stats.Alert {
	w.mu.Lock()
	defer w.mu.Unlock()

	current := make(map[string]bool, len(alerts))
	var out []stats.Alert
	for _, a := range alerts {
		key := projectID + "/" + a.CategoryID
		current[key] = true
		if w.alerts[key] != a.Severity {
			w.alerts[key] = a.Severity
			out = append(out, a)
		}
	}
	prefix := projectID + "/"
	for key := range w.alerts {
		if strings.HasPrefix(key, prefix) && !current[key] {
			delete(w.alerts, key)
		}
	}
	return out
}

// SyncBudgetsIfNeeded imports budgets when they were never imported or the
// last import is older than the max budget age.
func (w *BudgetWorker) SyncBudgetsIfNeeded(ctx context.Context) error {
	if w.source == nil {
		w.logger.DebugContext(ctx, "No budget source configured, skipping sync")
		return nil
	}

	lastSync, err := w.store.CategoriesSyncedAt(ctx)
	if err != nil {
		return fmt.Errorf("read last budget sync: %w", err)
	}
	if lastSync.IsZero() {
		w.logger.InfoContext(ctx, "Budgets never imported, loading from spreadsheet")
		return w.syncBudgets(ctx)
	}

	age := w.now().Sub(lastSync)
	if age > w.maxAge {
		w.logger.InfoContext(ctx, "Budgets are stale, refreshing from spreadsheet",
			"last_sync", lastSync.Format(time.RFC3339),
			"age", age.Round(time.Hour))
		return w.syncBudgets(ctx)
	}

	w.logger.DebugContext(ctx, "Budgets are fresh",
		"last_sync", lastSync.Format(time.RFC3339),
		"age", age.Round(time.Hour))
	return nil
}

// ForceRefreshBudgets imports budgets regardless of their age.
func (w *BudgetWorker) ForceRefreshBudgets(ctx context.Context) error {
	if w.source == nil {
		return errors.New("no budget source configured")
	}
	w.logger.InfoContext(ctx, "Force refreshing budgets from spreadsheet")
	return w.syncBudgets(ctx)
}

func (w *BudgetWorker) syncBudgets(ctx context.Context) error {
	cats, err := w.source.ReadBudgets(ctx)
	if err != nil {
		return fmt.Errorf("read budgets: %w", err)
	}

	byProject := make(map[string][]core.BudgetCategory)
	for _, c := range cats {
		byProject[c.ProjectID] = append(byProject[c.ProjectID], c)
	}
	projects := make([]string, 0, len(byProject))
	for id := range byProject {
		projects = append(projects, id)
	}
	sort.Strings(projects)

	imported, skipped := 0, 0
	for _, id := range projects {
		err := w.store.UpsertCategories(ctx, byProject[id])
		if errors.Is(err, ports.ErrNotFound) {
			w.logger.WarnContext(ctx, "Skipping budgets of unknown project",
				log.FieldProjectID, id,
				"count", len(byProject[id]))
			skipped += len(byProject[id])
			continue
		}
		if err != nil {
			return fmt.Errorf("import budgets of project %s: %w", id, err)
		}
		imported += len(byProject[id])
	}

	w.logger.InfoContext(ctx, "Budgets imported",
		"imported", imported,
		"skipped", skipped,
		"projects", len(projects))
	return nil
}

// Run checks budget freshness once, then every interval until ctx is done.
func (w *BudgetWorker) Run(ctx context.Context, interval time.Duration) error {
	if err := w.SyncBudgetsIfNeeded(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Initial budget sync failed", log.FieldError, err)
	}
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Budget refresh loop stopped")
			return nil
		case <-ticker.C:
			if err := w.SyncBudgetsIfNeeded(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Periodic budget sync failed", log.FieldError, err)
			}
		}
	}
}
