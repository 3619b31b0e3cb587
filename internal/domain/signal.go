package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeSignal fused recommendation for an intended action.
type TradeSignal struct {
	Action      Action  `json:"action"`
	Confidence  float64 `json:"confidence"`
	Rationale   string  `json:"rationale"`
	ShouldTrade bool    `json:"should_trade"`
	SourceAlert *Alert  `json:"source_alert,omitempty"`
}

// Guard stages a decision can stop at.
const (
	StagePosition = "position"
	StageCooldown = "cooldown"
	StageHistory  = "history"
	StageMomentum = "momentum"
	StageTrend    = "trend"
	StageSignal   = "signal"
	StageAccepted = "accepted"
)

// Decision outcome of the decision guard for one evaluation.
type Decision struct {
	Symbol     string          `json:"symbol"`
	Time       time.Time       `json:"ts"`
	Action     Action          `json:"action"`
	Allow      bool            `json:"allow"`
	Stage      string          `json:"stage"`
	Reason     string          `json:"reason"`
	Confidence float64         `json:"confidence"`
	Momentum   decimal.Decimal `json:"momentum"`
	Signal     *TradeSignal    `json:"signal,omitempty"`
}

// OrderOutcome result of acting on an accepted decision.
type OrderOutcome struct {
	Symbol   string          `json:"symbol"`
	Time     time.Time       `json:"ts"`
	Side     Action          `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Notional decimal.Decimal `json:"notional"`
	OrderID  string          `json:"order_id,omitempty"`
	Simulate bool            `json:"simulate"`
	Error    string          `json:"error,omitempty"`
}
