package escalation

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Surcharge carries the monetary penalty computed for a firing stage.
type Surcharge struct {
	// Incremental is the fee added by the firing stage alone.
	Incremental decimal.Decimal
	// Cumulative is the incremental fee plus the fees of all completed
	// stages, each computed against the original amount.
	Cumulative decimal.Decimal
}

// Accumulate computes the incremental and cumulative surcharge for the
// stage about to fire. Every percentage is applied to the original gross
// amount; fees are never compounded on top of a previously surcharged
// total. This is a documented business rule, not an implementation
// shortcut.
func Accumulate(stages []Stage, completed CompletedSet, firing Stage, amountOriginal decimal.Decimal) Surcharge {
	incremental := stageFee(amountOriginal, firing)
	cumulative := incremental
	for _, s := range stages {
		if s.Name == firing.Name {
			continue
		}
		if completed[s.Name] {
			cumulative = cumulative.Add(stageFee(amountOriginal, s))
		}
	}
	return Surcharge{Incremental: incremental, Cumulative: cumulative}
}

// TotalOpen is the figure shown to the customer: the original amount plus
// all accumulated fees.
func (s Surcharge) TotalOpen(amountOriginal decimal.Decimal) decimal.Decimal {
	return amountOriginal.Add(s.Cumulative)
}

func stageFee(amountOriginal decimal.Decimal, s Stage) decimal.Decimal {
	if s.SurchargePercent.IsZero() {
		return decimal.Zero
	}
	return amountOriginal.Mul(s.SurchargePercent).Div(hundred)
}
