package stats

import "treso/internal/core"

// TierTotals holds the revenue and expense sums of one certainty tier.
type TierTotals struct {
	Revenues core.Money
	Expenses core.Money
	Balance  core.Money
}

// Statistics is the project summary shown on the dashboard KPIs.
type Statistics struct {
	Total         int
	TotalRevenues core.Money
	TotalExpenses core.Money
	Balance       core.Money

	Confirmed TierTotals
	Probable  TierTotals
	Potential TierTotals
}

// Tier returns the totals of tier c, or zero totals for an unknown tier.
func (s Statistics) Tier(c core.Certainty) TierTotals {
	switch c {
	case core.Confirmed:
		return s.Confirmed
	case core.Probable:
		return s.Probable
	case core.Potential:
		return s.Potential
	}
	return TierTotals{}
}

// ComputeStatistics summarises txs. Type totals are the sum of the tier
// totals, so TotalRevenues == Confirmed+Probable+Potential revenues exactly.
func ComputeStatistics(txs []core.Transaction) Statistics {
	tier := func(c core.Certainty) TierTotals {
		rev := TotalByTypeAndCertainty(txs, core.Revenue, c)
		exp := TotalByTypeAndCertainty(txs, core.Expense, c)
		return TierTotals{Revenues: rev, Expenses: exp, Balance: rev.Sub(exp)}
	}

	s := Statistics{
		Total:     len(txs),
		Confirmed: tier(core.Confirmed),
		Probable:  tier(core.Probable),
		Potential: tier(core.Potential),
	}
	for _, t := range []TierTotals{s.Confirmed, s.Probable, s.Potential} {
		s.TotalRevenues = s.TotalRevenues.Add(t.Revenues)
		s.TotalExpenses = s.TotalExpenses.Add(t.Expenses)
	}
	s.Balance = s.TotalRevenues.Sub(s.TotalExpenses)
	return s
}

// CertaintyMix is each tier's share of all money moved, in percent.
type CertaintyMix struct {
	Confirmed float64
	Probable  float64
	Potential float64
}

// CertaintyMixRatios computes each tier's (revenues+expenses) share of
// (TotalRevenues+TotalExpenses), clamped to [0, 100] because it sizes a
// progress bar. All ratios are 0 when nothing has moved.
func CertaintyMixRatios(s Statistics) CertaintyMix {
	whole := s.TotalRevenues.Cents + s.TotalExpenses.Cents
	share := func(t TierTotals) float64 {
		return clamp(percent(t.Revenues.Cents+t.Expenses.Cents, whole), 0, 100)
	}
	return CertaintyMix{
		Confirmed: share(s.Confirmed),
		Probable:  share(s.Probable),
		Potential: share(s.Potential),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
