// Package pvsra classifies bars by volume relative to their recent average
// and by the size of their body relative to their range.
package pvsra

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/pvsra/internal/domain"
)

const (
	DefaultLookback = 10
)

var (
	DefaultClimaxMultiplier = decimal.NewFromInt(2)
	DefaultRisingMultiplier = decimal.NewFromFloat(1.5)

	climaxBodyShare = decimal.NewFromFloat(0.3)
	risingBodyShare = decimal.NewFromFloat(0.2)
)

// Params classifier tunables.
type Params struct {
	Lookback         int
	ClimaxMultiplier decimal.Decimal
	RisingMultiplier decimal.Decimal
}

// DefaultParams returns lookback 10, climax 2.0x, rising 1.5x.
func DefaultParams() Params {
	return Params{
		Lookback:         DefaultLookback,
		ClimaxMultiplier: DefaultClimaxMultiplier,
		RisingMultiplier: DefaultRisingMultiplier,
	}
}

// Validate checks the multipliers are ordered and positive.
func (p Params) Validate() error {
	if p.Lookback < 1 {
		return errors.Errorf("lookback must be at least 1, got %d", p.Lookback)
	}
	if !p.RisingMultiplier.IsPositive() {
		return errors.Errorf("rising multiplier must be positive, got %s", p.RisingMultiplier)
	}
	if p.ClimaxMultiplier.LessThanOrEqual(p.RisingMultiplier) {
		return errors.Errorf("climax multiplier %s must exceed rising multiplier %s", p.ClimaxMultiplier, p.RisingMultiplier)
	}
	return nil
}

// Classify annotates every bar of an ordered window.
// Bar i is compared with the mean volume of the lookback bars before it;
// bars without a full lookback are normal and not classifiable.
// A lookback below 1 leaves every bar normal.
func Classify(bars []domain.Bar, p Params) []domain.ClassifiedBar {
	out := make([]domain.ClassifiedBar, len(bars))
	if p.Lookback < 1 {
		for i, b := range bars {
			out[i] = classifyBar(b)
		}
		return out
	}

	lookback := decimal.NewFromInt(int64(p.Lookback))
	sum := decimal.Zero
	for i, b := range bars {
		out[i] = classifyBar(b)
		if i >= p.Lookback {
			avg := sum.Div(lookback)
			applyVolume(&out[i], avg, p)
			sum = sum.Sub(bars[i-p.Lookback].Volume)
		}
		sum = sum.Add(b.Volume)
	}
	return out
}

// ClassifyLast classifies only the newest bar of the window.
func ClassifyLast(bars []domain.Bar, p Params) (domain.ClassifiedBar, bool) {
	if len(bars) == 0 {
		return domain.ClassifiedBar{}, false
	}
	n := len(bars)
	cb := classifyBar(bars[n-1])
	if p.Lookback < 1 || n-1 < p.Lookback {
		return cb, false
	}

	sum := decimal.Zero
	for _, b := range bars[n-1-p.Lookback : n-1] {
		sum = sum.Add(b.Volume)
	}
	applyVolume(&cb, sum.Div(decimal.NewFromInt(int64(p.Lookback))), p)
	return cb, true
}

func classifyBar(b domain.Bar) domain.ClassifiedBar {
	cb := domain.ClassifiedBar{
		Bar:       b,
		BodySize:  b.Body(),
		BarRange:  b.Range(),
		Condition: domain.ConditionNormal,
		Direction: b.Direction(),
	}
	cb.Color = CandleColor(cb.Condition, cb.Direction)
	return cb
}

func applyVolume(cb *domain.ClassifiedBar, avg decimal.Decimal, p Params) {
	cb.Classifiable = true
	cb.AvgVolume = avg
	if !avg.IsPositive() {
		return
	}
	cb.VolumeRatio = cb.Volume.Div(avg)

	// a bar without range cannot show a directional body
	if cb.BarRange.IsZero() {
		return
	}

	switch {
	case cb.VolumeRatio.GreaterThanOrEqual(p.ClimaxMultiplier) &&
		cb.BodySize.GreaterThan(climaxBodyShare.Mul(cb.BarRange)):
		cb.Condition = domain.ConditionClimax
	case cb.VolumeRatio.GreaterThanOrEqual(p.RisingMultiplier) &&
		cb.VolumeRatio.LessThan(p.ClimaxMultiplier) &&
		cb.BodySize.GreaterThan(risingBodyShare.Mul(cb.BarRange)):
		cb.Condition = domain.ConditionRising
	}

	cb.Color = CandleColor(cb.Condition, cb.Direction)
	cb.Alert = domain.AlertText(cb.Condition, cb.Direction)
}

// CandleColor chart colour for a condition and direction.
func CandleColor(c domain.Condition, d domain.Direction) domain.CandleColor {
	bullish := d == domain.DirectionBullish
	switch c {
	case domain.ConditionClimax:
		if bullish {
			return domain.ColorCyan
		}
		return domain.ColorRed
	case domain.ConditionRising:
		if bullish {
			return domain.ColorBlue
		}
		return domain.ColorYellow
	default:
		if bullish {
			return domain.ColorGreen
		}
		return domain.ColorRed
	}
}
