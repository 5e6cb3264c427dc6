package stats

import (
	"sort"

	"treso/internal/core"
)

// CategoryRow is one line of the spend-vs-budget breakdown.
type CategoryRow struct {
	Category     core.BudgetCategory
	Total        core.Money
	Count        int
	Budgeted     core.Money
	UsedPercent  float64
	IsOverBudget bool
}

// ComputeCategoryBreakdown groups txs by category id. Only ids that resolve
// to one of categories produce a row; transactions pointing at an unknown
// category are dropped here (they still count in ComputeStatistics).
//
// A row's budget is budgetedByCategory[id] when present, otherwise the
// category's own BudgetedAmount. Rows are sorted by Total descending, ties
// keeping the order in which their category was first met in txs.
func ComputeCategoryBreakdown(txs []core.Transaction, categories []core.BudgetCategory, budgetedByCategory map[string]core.Money) []CategoryRow {
	byID := make(map[string]core.BudgetCategory, len(categories))
	for _, c := range categories {
		if _, dup := byID[c.ID]; !dup {
			byID[c.ID] = c
		}
	}

	index := make(map[string]int)
	rows := make([]CategoryRow, 0)
	for _, tx := range txs {
		cat, ok := byID[tx.CategoryID]
		if !ok {
			continue
		}
		i, seen := index[cat.ID]
		if !seen {
			budgeted := cat.BudgetedAmount
			if b, ok := budgetedByCategory[cat.ID]; ok {
				budgeted = b
			}
			rows = append(rows, CategoryRow{Category: cat, Budgeted: budgeted})
			i = len(rows) - 1
			index[cat.ID] = i
		}
		rows[i].Total = rows[i].Total.Add(tx.Amount)
		rows[i].Count++
	}

	for i := range rows {
		rows[i].UsedPercent = usedPercent(rows[i].Total, rows[i].Budgeted)
		rows[i].IsOverBudget = rows[i].UsedPercent > 100
	}

	sort.SliceStable(rows, func(a, b int) bool {
		return rows[a].Total.Cents > rows[b].Total.Cents
	})
	return rows
}

// BudgetsFromCategories maps category ids to their budgeted amounts.
func BudgetsFromCategories(categories []core.BudgetCategory) map[string]core.Money {
	out := make(map[string]core.Money, len(categories))
	for _, c := range categories {
		out[c.ID] = c.BudgetedAmount
	}
	return out
}

// CategorySpend is the per-category view used by the budget tab: every
// category appears, spent or not.
type CategorySpend struct {
	CategoryID string
	Spent      core.Money
	Budgeted   core.Money
	Remaining  core.Money
	Percentage float64
}

// CategorySpending returns one entry per category in the order given,
// including categories with no transactions.
func CategorySpending(txs []core.Transaction, categories []core.BudgetCategory) []CategorySpend {
	spent := make(map[string]int64)
	for _, tx := range txs {
		spent[tx.CategoryID] += tx.Amount.Cents
	}
	out := make([]CategorySpend, 0, len(categories))
	for _, c := range categories {
		s := core.Money{Cents: spent[c.ID]}
		out = append(out, CategorySpend{
			CategoryID: c.ID,
			Spent:      s,
			Budgeted:   c.BudgetedAmount,
			Remaining:  c.BudgetedAmount.Sub(s),
			Percentage: usedPercent(s, c.BudgetedAmount),
		})
	}
	return out
}

func usedPercent(total, budgeted core.Money) float64 {
	if budgeted.Cents <= 0 {
		return 0
	}
	return percent(total.Cents, budgeted.Cents)
}
