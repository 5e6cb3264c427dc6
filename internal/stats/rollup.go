package stats

import (
	"fmt"

	"treso/internal/core"
)

// BudgetRollup answers how much of the project's overall budget ceiling has
// been consumed by expenses.
type BudgetRollup struct {
	TotalBudget       core.Money
	TotalExpenses     core.Money
	BudgetRemaining   core.Money
	BudgetUsedPercent float64
}

// ComputeBudgetRollup sums BudgetedAmount over every category, revenue
// categories included, and compares it to totalExpenses.
func ComputeBudgetRollup(categories []core.BudgetCategory, totalExpenses core.Money) BudgetRollup {
	var total core.Money
	for _, c := range categories {
		total = total.Add(c.BudgetedAmount)
	}
	return BudgetRollup{
		TotalBudget:       total,
		TotalExpenses:     totalExpenses,
		BudgetRemaining:   total.Sub(totalExpenses),
		BudgetUsedPercent: usedPercent(totalExpenses, total),
	}
}

// Usage levels drive the colour of budget progress bars.
type Usage string

const (
	UsageOK      Usage = "ok"
	UsageWarning Usage = "warning"
	UsageOver    Usage = "over"
)

// DefaultAlertThreshold is the usage percentage above which a budget line
// is flagged when the organization has not configured its own.
const DefaultAlertThreshold = 80.0

// UsageLevel classifies a used percentage against the default threshold.
func UsageLevel(usedPercent float64) Usage {
	switch {
	case usedPercent > 100:
		return UsageOver
	case usedPercent > DefaultAlertThreshold:
		return UsageWarning
	}
	return UsageOK
}

// Alert severities.
const (
	SeverityWarning    = "warning"
	SeverityOverBudget = "over_budget"
)

// Alert flags a budget line (or the whole project when CategoryID is empty)
// whose usage exceeds the alert threshold.
type Alert struct {
	CategoryID   string
	CategoryName string
	UsedPercent  float64
	Overrun      core.Money // amount above the budget, 0 when not over
	Severity     string
}

func (a Alert) String() string {
	name := a.CategoryName
	if a.CategoryID == "" {
		name = "budget total"
	}
	if a.Severity == SeverityOverBudget {
		return fmt.Sprintf("%s: dépassement de %s (%.1f%%)", name, a.Overrun, a.UsedPercent)
	}
	return fmt.Sprintf("%s: %.1f%% du budget utilisé", name, a.UsedPercent)
}

// BudgetAlerts lists breakdown rows and the rollup whose usage is above
// thresholdPercent. Rows without a budget never alert. A non-positive
// threshold falls back to DefaultAlertThreshold.
func BudgetAlerts(rows []CategoryRow, rollup BudgetRollup, thresholdPercent float64) []Alert {
	if thresholdPercent <= 0 {
		thresholdPercent = DefaultAlertThreshold
	}
	var alerts []Alert
	for _, r := range rows {
		if r.Budgeted.Cents <= 0 || r.UsedPercent <= thresholdPercent {
			continue
		}
		alerts = append(alerts, newAlert(r.Category.ID, r.Category.Name, r.UsedPercent, r.Total.Sub(r.Budgeted)))
	}
	if rollup.TotalBudget.Cents > 0 && rollup.BudgetUsedPercent > thresholdPercent {
		alerts = append(alerts, newAlert("", "", rollup.BudgetUsedPercent, rollup.TotalExpenses.Sub(rollup.TotalBudget)))
	}
	return alerts
}

func newAlert(id, name string, used float64, diff core.Money) Alert {
	a := Alert{CategoryID: id, CategoryName: name, UsedPercent: used, Severity: SeverityWarning}
	if used > 100 {
		a.Severity = SeverityOverBudget
		a.Overrun = diff
	}
	return a
}
