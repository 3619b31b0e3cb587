// Package collector fetches historical bars used to seed the bar store.
package collector

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/pvsra/internal/domain"
)

// KlineService abstracts the futures klines endpoint.
type KlineService interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]*futures.Kline, error)
}

// FuturesKlineService calls the Binance USDⓈ-M futures REST API.
type FuturesKlineService struct {
	client *futures.Client
}

// NewFuturesKlineService wraps a futures client.
func NewFuturesKlineService(client *futures.Client) *FuturesKlineService {
	return &FuturesKlineService{client: client}
}

// Klines fetches klines from Binance futures.
func (s *FuturesKlineService) Klines(ctx context.Context, symbol, interval string, limit int) ([]*futures.Kline, error) {
	return s.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
}

// BinanceBarProvider returns closed historical bars.
type BinanceBarProvider struct {
	klines KlineService
	now    func() time.Time
}

// NewBinanceBarProvider creates a provider on top of a kline service.
func NewBinanceBarProvider(klines KlineService) *BinanceBarProvider {
	return &BinanceBarProvider{klines: klines, now: time.Now}
}

// GetBars fetches up to limit bars in open time order. The still-forming
// last kline is dropped so only closed bars are returned.
func (p *BinanceBarProvider) GetBars(ctx context.Context, symbol, interval string, limit int) ([]domain.Bar, error) {
	klines, err := p.klines.Klines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch klines from Binance futures for %s", symbol)
	}

	now := p.now()
	bars := make([]domain.Bar, 0, len(klines))
	for i, k := range klines {
		if time.UnixMilli(k.CloseTime).After(now) {
			continue
		}
		bar, err := KlineToBar(k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			return nil, errors.Wrapf(err, "kline at index %d", i)
		}
		bars = append(bars, bar)
	}

	return bars, nil
}

// KlineToBar parses the string fields Binance uses for kline prices.
func KlineToBar(openTimeMs int64, open, high, low, closePrice, volume string) (domain.Bar, error) {
	o, err := decimal.NewFromString(open)
	if err != nil {
		return domain.Bar{}, errors.Wrap(err, "failed to parse open price")
	}
	h, err := decimal.NewFromString(high)
	if err != nil {
		return domain.Bar{}, errors.Wrap(err, "failed to parse high price")
	}
	l, err := decimal.NewFromString(low)
	if err != nil {
		return domain.Bar{}, errors.Wrap(err, "failed to parse low price")
	}
	c, err := decimal.NewFromString(closePrice)
	if err != nil {
		return domain.Bar{}, errors.Wrap(err, "failed to parse close price")
	}
	v, err := decimal.NewFromString(volume)
	if err != nil {
		return domain.Bar{}, errors.Wrap(err, "failed to parse volume")
	}

	return domain.Bar{
		OpenTime: time.Unix(0, openTimeMs*int64(time.Millisecond)).UTC(),
		Open:     o,
		High:     h,
		Low:      l,
		Close:    c,
		Volume:   v,
	}, nil
}
