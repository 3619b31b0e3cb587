// Package pricer provides the reference price used for sizing and simulated fills.
package pricer

import (
	"context"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/pvsra/internal/domain"
)

type Pricer interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// LastBarSource is satisfied by the bar store.
type LastBarSource interface {
	Last(symbol string) (domain.Bar, bool, bool)
}

// BarPricer prices a symbol at the close of its most recent bar, provisional or not.
type BarPricer struct {
	bars LastBarSource
}

func NewBarPricer(bars LastBarSource) *BarPricer {
	return &BarPricer{bars: bars}
}

func (p *BarPricer) GetPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	bar, _, ok := p.bars.Last(symbol)
	if !ok {
		return decimal.Zero, errors.Errorf("no bars for %s yet", symbol)
	}
	return bar.Close, nil
}

// FuturesPricer fetches the latest futures ticker price from Binance.
type FuturesPricer struct {
	client *futures.Client
}

func NewFuturesPricer(client *futures.Client) *FuturesPricer {
	return &FuturesPricer{client: client}
}

func (p *FuturesPricer) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := p.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to fetch %s price", symbol)
	}
	if len(prices) == 0 {
		return decimal.Zero, errors.Errorf("binance futures returned empty prices for %s", symbol)
	}

	return decimal.NewFromString(prices[0].Price)
}
