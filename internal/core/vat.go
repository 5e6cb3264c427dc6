package core

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// VAT returns the tax part of a pre-tax amount at the given rate (percent),
// rounded half-up to the cent.
func VAT(amountHT Money, ratePercent float64) Money {
	ht := decimal.New(amountHT.Cents, -2)
	tax := ht.Mul(decimal.NewFromFloat(ratePercent)).Div(hundred)
	return fromDecimal(tax)
}

// AmountTTC returns the tax-inclusive amount for a pre-tax amount.
func AmountTTC(amountHT Money, ratePercent float64) Money {
	return amountHT.Add(VAT(amountHT, ratePercent))
}

// AmountHT recovers the pre-tax amount from a tax-inclusive one.
func AmountHT(amountTTC Money, ratePercent float64) Money {
	ttc := decimal.New(amountTTC.Cents, -2)
	divisor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(ratePercent).Div(hundred))
	return fromDecimal(ttc.DivRound(divisor, 4))
}

func fromDecimal(d decimal.Decimal) Money {
	return Money{Cents: d.Round(2).Shift(2).IntPart()}
}
