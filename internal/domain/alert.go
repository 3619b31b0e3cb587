package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	climaxConfidence = 0.8
	risingConfidence = 0.6
)

// Alert notable bar classification published to subscribers.
type Alert struct {
	Symbol      string          `json:"symbol"`
	Timestamp   time.Time       `json:"ts"`
	BarTime     time.Time       `json:"bar_time"`
	Condition   Condition       `json:"condition"`
	Direction   Direction       `json:"direction"`
	Price       decimal.Decimal `json:"price"`
	Volume      decimal.Decimal `json:"volume"`
	VolumeRatio decimal.Decimal `json:"volume_ratio"`
	Text        string          `json:"alert"`
}

// ImpliedAction maps the alert to the side it suggests and its confidence.
// The side follows the bar direction. ok is false for alerts with no clear side.
func (a Alert) ImpliedAction() (action Action, confidence float64, ok bool) {
	switch a.Condition {
	case ConditionClimax:
		confidence = climaxConfidence
	case ConditionRising:
		confidence = risingConfidence
	default:
		return 0, 0, false
	}

	switch a.Direction {
	case DirectionBullish:
		return ActionBuy, confidence, true
	case DirectionBearish:
		return ActionSell, confidence, true
	}
	return 0, 0, false
}

// AlertText composes the user-facing alert string.
func AlertText(c Condition, d Direction) string {
	switch c {
	case ConditionClimax:
		return d.Title() + " Climax - Potential Reversal"
	case ConditionRising:
		return "Rising Volume " + d.Title() + " - Continuation Signal"
	}
	return ""
}
