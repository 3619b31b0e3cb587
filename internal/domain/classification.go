package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Condition volume/range classification of a bar.
type Condition string

const (
	ConditionClimax Condition = "climax"
	ConditionRising Condition = "rising"
	ConditionNormal Condition = "normal"
)

// Direction of a bar body.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
)

// Title returns a human-readable representation.
func (d Direction) Title() string {
	if d == DirectionBullish {
		return "Bull"
	}
	return "Bear"
}

// CandleColor chart colour of a classified candle.
type CandleColor string

const (
	ColorRed    CandleColor = "red"
	ColorCyan   CandleColor = "cyan"
	ColorBlue   CandleColor = "blue"
	ColorYellow CandleColor = "yellow"
	ColorGreen  CandleColor = "green"
)

// ClassifiedBar bar annotated with its volume/range metrics.
type ClassifiedBar struct {
	Bar
	AvgVolume   decimal.Decimal
	VolumeRatio decimal.Decimal
	BodySize    decimal.Decimal
	BarRange    decimal.Decimal
	Condition   Condition
	Direction   Direction
	Color       CandleColor
	// Alert is empty for normal bars.
	Alert string
	// Classifiable is false while fewer than lookback bars precede this one.
	Classifiable bool
}

// HasAlert reports whether the bar produced a climax or rising alert.
func (c ClassifiedBar) HasAlert() bool {
	return c.Alert != ""
}

// ToAlert builds the alert emitted for this bar.
func (c ClassifiedBar) ToAlert(symbol string, at time.Time) (Alert, bool) {
	if !c.HasAlert() {
		return Alert{}, false
	}
	return Alert{
		Symbol:      symbol,
		Timestamp:   at,
		BarTime:     c.OpenTime,
		Condition:   c.Condition,
		Direction:   c.Direction,
		Price:       c.Close,
		Volume:      c.Volume,
		VolumeRatio: c.VolumeRatio,
		Text:        c.Alert,
	}, true
}
