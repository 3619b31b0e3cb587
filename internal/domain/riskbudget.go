package domain

import "github.com/shopspring/decimal"

// fixed amounts never use more than this share of the available balance
var maxFixedBalanceShare = decimal.NewFromFloat(0.9)

// RiskBudget margin allocation per trade.
// Either a fixed quote amount or a percentage of the available balance.
type RiskBudget struct {
	amount   decimal.Decimal
	percent  decimal.Decimal
	leverage int
}

// NewFixedRiskBudget returns a budget spending a fixed quote amount per trade.
func NewFixedRiskBudget(amount decimal.Decimal, leverage int) RiskBudget {
	return RiskBudget{amount: amount, leverage: leverage}
}

// NewPercentRiskBudget returns a budget spending percent of the available balance per trade.
func NewPercentRiskBudget(percent decimal.Decimal, leverage int) RiskBudget {
	return RiskBudget{percent: percent, leverage: leverage}
}

// Margin returns the quote amount committed as margin for the next trade.
func (r RiskBudget) Margin(balance decimal.Decimal) decimal.Decimal {
	if !balance.IsPositive() {
		return decimal.Zero
	}
	if r.percent.IsPositive() {
		return balance.Mul(r.percent).Div(decimal.NewFromInt(100))
	}
	if !r.amount.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(r.amount, balance.Mul(maxFixedBalanceShare))
}

// TargetNotional returns the leveraged position value for the next trade.
func (r RiskBudget) TargetNotional(balance decimal.Decimal) decimal.Decimal {
	lev := r.leverage
	if lev < 1 {
		lev = 1
	}
	return r.Margin(balance).Mul(decimal.NewFromInt(int64(lev)))
}
