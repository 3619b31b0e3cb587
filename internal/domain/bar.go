package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Bar single OHLCV candlestick for a fixed interval.
type Bar struct {
	OpenTime time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

// Validate checks OHLC consistency and non-negative volume.
func (b Bar) Validate() error {
	if b.OpenTime.IsZero() {
		return errors.Wrap(ErrInvalidBar, "open time is zero")
	}
	if b.High.LessThan(b.Low) {
		return errors.Wrapf(ErrInvalidBar, "high %s below low %s", b.High, b.Low)
	}
	if b.High.LessThan(decimal.Max(b.Open, b.Close)) {
		return errors.Wrapf(ErrInvalidBar, "high %s below body", b.High)
	}
	if b.Low.GreaterThan(decimal.Min(b.Open, b.Close)) {
		return errors.Wrapf(ErrInvalidBar, "low %s above body", b.Low)
	}
	if b.Volume.IsNegative() {
		return errors.Wrapf(ErrInvalidBar, "negative volume %s", b.Volume)
	}
	return nil
}

// Range high minus low.
func (b Bar) Range() decimal.Decimal {
	return b.High.Sub(b.Low)
}

// Body absolute distance between open and close.
func (b Bar) Body() decimal.Decimal {
	return b.Close.Sub(b.Open).Abs()
}

// Direction bullish when close > open, bearish otherwise (a doji counts as bearish).
func (b Bar) Direction() Direction {
	if b.Close.GreaterThan(b.Open) {
		return DirectionBullish
	}
	return DirectionBearish
}

// BarUpdate message emitted by a bar feed.
// Closed is false while the period is still forming.
type BarUpdate struct {
	Symbol string
	Bar    Bar
	Closed bool
}
