// Package stats turns a project's transactions and budget categories into the
// figures shown on dashboards and reports.
//
// Every function is pure: inputs are never modified, nothing is cached, and
// empty inputs yield zero values. Amounts are summed in cents so that the
// per-certainty partitions always add up exactly to the per-type totals.
package stats

import "treso/internal/core"

// TotalByTypeAndCertainty sums the amounts of transactions matching both
// type and certainty. It is the primitive every other total derives from.
func TotalByTypeAndCertainty(txs []core.Transaction, t core.TransactionType, c core.Certainty) core.Money {
	var sum int64
	for i := range txs {
		if txs[i].Type == t && txs[i].Certainty == c {
			sum += txs[i].Amount.Cents
		}
	}
	return core.Money{Cents: sum}
}

// TotalByType sums amounts of the given type across every certainty tier.
// Transactions whose certainty is not one of the known tiers are not counted.
func TotalByType(txs []core.Transaction, t core.TransactionType) core.Money {
	var sum core.Money
	for _, c := range core.Certainties {
		sum = sum.Add(TotalByTypeAndCertainty(txs, t, c))
	}
	return sum
}

// TotalByCertainty sums amounts of the given tier regardless of type.
func TotalByCertainty(txs []core.Transaction, c core.Certainty) core.Money {
	return TotalByTypeAndCertainty(txs, core.Revenue, c).Add(TotalByTypeAndCertainty(txs, core.Expense, c))
}

// NetAmount returns revenues minus expenses.
func NetAmount(txs []core.Transaction) core.Money {
	return TotalByType(txs, core.Revenue).Sub(TotalByType(txs, core.Expense))
}

// FilterByProject returns the transactions of projectID in their original
// order. The input slice is left untouched.
func FilterByProject(txs []core.Transaction, projectID string) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.ProjectID == projectID {
			out = append(out, tx)
		}
	}
	return out
}

// FilterCategoriesByProject is the category counterpart of FilterByProject.
func FilterCategoriesByProject(categories []core.BudgetCategory, projectID string) []core.BudgetCategory {
	out := make([]core.BudgetCategory, 0, len(categories))
	for _, c := range categories {
		if c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	return out
}

func percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
