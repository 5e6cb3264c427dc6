package services

import (
	"time"

	"treso/internal/ports"
	"treso/internal/stats"
)

// ProjectReport bundles every figure the dashboard shows for one project.
type ProjectReport struct {
	OrganizationID string
	ProjectID      string
	GeneratedAt    time.Time

	Statistics        stats.Statistics
	CategoryBreakdown []stats.CategoryRow
	CategorySpending  []stats.CategorySpend
	BudgetRollup      stats.BudgetRollup
	CertaintyMix      stats.CertaintyMix
	Alerts            []stats.Alert
}

// BuildReport computes a report from a snapshot. It never fails: empty
// snapshots give a zero report.
func BuildReport(snap ports.Snapshot, alertThreshold float64) ProjectReport {
	txs := stats.FilterByProject(snap.Transactions, snap.ProjectID)
	cats := stats.FilterCategoriesByProject(snap.Categories, snap.ProjectID)

	s := stats.ComputeStatistics(txs)
	rows := stats.ComputeCategoryBreakdown(txs, cats, stats.BudgetsFromCategories(cats))
	rollup := stats.ComputeBudgetRollup(cats, s.TotalExpenses)

	return ProjectReport{
		OrganizationID:    snap.OrganizationID,
		ProjectID:         snap.ProjectID,
		GeneratedAt:       snap.TakenAt,
		Statistics:        s,
		CategoryBreakdown: rows,
		CategorySpending:  stats.CategorySpending(txs, cats),
		BudgetRollup:      rollup,
		CertaintyMix:      stats.CertaintyMixRatios(s),
		Alerts:            stats.BudgetAlerts(rows, rollup, alertThreshold),
	}
}
