// Package trader places market orders and reports open positions on a futures account.
package trader

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/pvsra/internal/domain"
)

// OrderResult describes a submitted market order.
type OrderResult struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          domain.Action
	Quantity      decimal.Decimal
	AvgPrice      decimal.Decimal
	Status        string
}

// Trader is implemented by the live Binance futures trader and the simulator.
type Trader interface {
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.Action, qty decimal.Decimal, clientOrderID string) (OrderResult, error)
	OpenPosition(ctx context.Context, symbol string) (*domain.Position, error)
	Balance(ctx context.Context, asset string) (decimal.Decimal, error)
}
