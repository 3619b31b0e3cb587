package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// PositionSide represents the direction of a trading position
type PositionSide int

const (
	// PositionSideLong represents a long position (buy to open)
	PositionSideLong PositionSide = iota
	// PositionSideShort represents a short position (sell to open)
	PositionSideShort
)

// String returns long or short.
func (s PositionSide) String() string {
	if s == PositionSideShort {
		return "short"
	}
	return "long"
}

// SideForAction returns the position side opened by an action.
func SideForAction(a Action) PositionSide {
	if a == ActionSell {
		return PositionSideShort
	}
	return PositionSideLong
}

// Position open futures position as reported by the exchange.
type Position struct {
	Symbol        string
	EntryPrice    decimal.Decimal
	Amount        decimal.Decimal
	UnrealizedPnL decimal.Decimal
	Side          PositionSide
	UpdatedAt     time.Time
}

// NewPositionFromExternalSnapshot builds a position from the signed exchange amount.
// Negative amounts are short positions.
func NewPositionFromExternalSnapshot(symbol string, signedAmount, entryPrice, pnl decimal.Decimal, at time.Time) (*Position, error) {
	if signedAmount.IsZero() {
		return nil, errors.New("position amount must not be zero")
	}
	if !entryPrice.IsPositive() {
		return nil, errors.New("entry price must be greater than zero")
	}

	side := PositionSideLong
	if signedAmount.IsNegative() {
		side = PositionSideShort
	}

	return &Position{
		Symbol:        symbol,
		EntryPrice:    entryPrice,
		Amount:        signedAmount.Abs(),
		UnrealizedPnL: pnl,
		Side:          side,
		UpdatedAt:     at,
	}, nil
}

// PnL calculates profit and loss for the given market price.
func (p *Position) PnL(currentPrice decimal.Decimal) decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}

	if p.Side == PositionSideShort {
		return p.EntryPrice.Sub(currentPrice).Mul(p.Amount)
	}
	return currentPrice.Sub(p.EntryPrice).Mul(p.Amount)
}

// IsOpen returns true if the position has a positive amount.
func (p *Position) IsOpen() bool {
	return p != nil && p.Amount.IsPositive()
}

// PositionEvent is the threshold an open position has crossed.
type PositionEvent string

const (
	PositionHolding    PositionEvent = "holding"
	PositionTakeProfit PositionEvent = "take_profit"
	PositionStopLoss   PositionEvent = "stop_loss"
)

// PositionStatus is an open position measured at a market price.
type PositionStatus struct {
	Symbol     string
	Side       PositionSide
	Amount     decimal.Decimal
	EntryPrice decimal.Decimal
	Price      decimal.Decimal
	PnL        decimal.Decimal
	// PnLPercent is the price move in the position's favour, in percent of the entry price.
	PnLPercent decimal.Decimal
	Event      PositionEvent
	Time       time.Time
}

// Evaluate measures the position at price. Thresholds are fractions of the
// entry price: 0.002 reports a take profit once the move reaches 0.2%.
func (p *Position) Evaluate(price, profitThreshold, stopLossThreshold decimal.Decimal, at time.Time) PositionStatus {
	status := PositionStatus{
		Side:  PositionSideLong,
		Price: price,
		Event: PositionHolding,
		Time:  at,
	}
	if !p.IsOpen() || !p.EntryPrice.IsPositive() {
		return status
	}

	hundred := decimal.NewFromInt(100)
	status.Symbol = p.Symbol
	status.Side = p.Side
	status.Amount = p.Amount
	status.EntryPrice = p.EntryPrice
	status.PnL = p.PnL(price)
	status.PnLPercent = status.PnL.Div(p.EntryPrice.Mul(p.Amount)).Mul(hundred)

	switch {
	case status.PnLPercent.GreaterThanOrEqual(profitThreshold.Mul(hundred)):
		status.Event = PositionTakeProfit
	case status.PnLPercent.LessThanOrEqual(stopLossThreshold.Mul(hundred).Neg()):
		status.Event = PositionStopLoss
	}
	return status
}
