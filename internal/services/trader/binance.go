package trader

import (
	"context"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/pvsra/internal/domain"
)

// FuturesTrader trades Binance USDⓈ-M futures with market orders.
type FuturesTrader struct {
	client   *futures.Client
	leverage int
	now      func() time.Time
}

func NewFuturesTrader(client *futures.Client, leverage int) (*FuturesTrader, error) {
	if client == nil {
		return nil, errors.New("futures client is required")
	}
	if leverage < 1 {
		leverage = 1
	}
	return &FuturesTrader{client: client, leverage: leverage, now: time.Now}, nil
}

// SetLeverage applies the configured leverage to symbol.
func (t *FuturesTrader) SetLeverage(ctx context.Context, symbol string) error {
	_, err := t.client.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(t.leverage).
		Do(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to set %dx leverage for %s", t.leverage, symbol)
	}
	return nil
}

func (t *FuturesTrader) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Action, qty decimal.Decimal, clientOrderID string) (OrderResult, error) {
	if !qty.IsPositive() {
		return OrderResult{}, errors.Errorf("order quantity must be positive, got %s", qty)
	}

	svc := t.client.NewCreateOrderService().
		Symbol(symbol).
		Side(sideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(qty.String())
	if clientOrderID != "" {
		svc = svc.NewClientOrderID(clientOrderID)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return OrderResult{}, errors.Wrapf(err, "failed to place %s market order for %s", side, symbol)
	}

	avg, err := parseOptional(resp.AvgPrice)
	if err != nil {
		return OrderResult{}, errors.Wrap(err, "failed to parse average price")
	}

	return OrderResult{
		OrderID:       strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID: resp.ClientOrderID,
		Symbol:        resp.Symbol,
		Side:          side,
		Quantity:      qty,
		AvgPrice:      avg,
		Status:        string(resp.Status),
	}, nil
}

// OpenPosition returns the non-zero one-way position for symbol, or nil.
func (t *FuturesTrader) OpenPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	risks, err := t.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get position risk for %s", symbol)
	}

	for _, r := range risks {
		if r.Symbol != symbol {
			continue
		}
		amt, err := decimal.NewFromString(r.PositionAmt)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse position amount")
		}
		if amt.IsZero() {
			continue
		}
		entry, err := decimal.NewFromString(r.EntryPrice)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse entry price")
		}
		pnl, err := parseOptional(r.UnRealizedProfit)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse unrealized pnl")
		}
		return domain.NewPositionFromExternalSnapshot(symbol, amt, entry, pnl, t.now())
	}

	return nil, nil
}

// Balance returns the available futures wallet balance of asset.
func (t *FuturesTrader) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	balances, err := t.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to get futures balance")
	}

	for _, b := range balances {
		if b.Asset != asset {
			continue
		}
		available, err := decimal.NewFromString(b.AvailableBalance)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "failed to parse %s balance", asset)
		}
		return available, nil
	}

	return decimal.Zero, nil
}

func sideType(a domain.Action) futures.SideType {
	if a == domain.ActionSell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func parseOptional(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
