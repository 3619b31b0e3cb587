// Package fusion blends the latest volume alert with the momentum-derived
// intended action into a single trade signal.
package fusion

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/pvsra/internal/domain"
)

const (
	DefaultWeight    = 0.7
	DefaultFreshness = 300 * time.Second

	noAlertConfidence = 0.5
	staleConfidence   = 0.3
	// traditional confidence paired with a confirming alert
	confirmedBaseline = 0.3
	// blend inputs when the traditional signal overrides a contradicting alert
	overriddenAlertConfidence = 0.3
	overridingTradConfidence  = 0.5
)

// AlertSource returns the latest alert for a symbol and when it arrived.
type AlertSource interface {
	Latest(symbol string) (domain.Alert, time.Time, bool)
}

// Config fusion tunables.
type Config struct {
	// Weight share of the alert in blended confidences, 0..1.
	Weight float64
	// RequireConfirmation blocks trades that lack a fresh confirming alert.
	RequireConfirmation bool
	// Freshness alerts older than this are stale.
	Freshness time.Duration
}

// DefaultConfig returns weight 0.7, no confirmation, 300s freshness.
func DefaultConfig() Config {
	return Config{Weight: DefaultWeight, Freshness: DefaultFreshness}
}

// Validate checks the weight range and freshness window.
func (c Config) Validate() error {
	if c.Weight < 0 || c.Weight > 1 {
		return errors.Errorf("fusion weight must be within [0,1], got %v", c.Weight)
	}
	if c.Freshness <= 0 {
		return errors.Errorf("alert freshness must be positive, got %s", c.Freshness)
	}
	return nil
}

// Engine evaluates intended actions against the cached alerts.
type Engine struct {
	cfg    Config
	alerts AlertSource
}

// NewEngine creates an engine reading alerts from src.
func NewEngine(cfg Config, src AlertSource) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, errors.New("alert source is required")
	}
	return &Engine{cfg: cfg, alerts: src}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Evaluate fuses the latest alert for symbol with the intended action.
func (e *Engine) Evaluate(symbol string, intended domain.Action, now time.Time) domain.TradeSignal {
	alert, at, ok := e.alerts.Latest(symbol)
	if !ok {
		return Fuse(e.cfg, intended, nil, time.Time{}, now)
	}
	return Fuse(e.cfg, intended, &alert, at, now)
}

// Fuse applies the rules in order: absent or stale alert, implied action,
// confirmation, contradiction, ambiguous alert. It has no side effects.
func Fuse(cfg Config, intended domain.Action, alert *domain.Alert, alertAt, now time.Time) domain.TradeSignal {
	if alert == nil {
		return fallback(cfg, intended, noAlertConfidence, "no volume alert available", nil)
	}

	age := now.Sub(alertAt)
	if age > cfg.Freshness {
		return fallback(cfg, intended, staleConfidence,
			fmt.Sprintf("volume alert too old (%s > %s)", age.Truncate(time.Second), cfg.Freshness), alert)
	}

	implied, alertConfidence, ok := alert.ImpliedAction()
	if !ok {
		return fallback(cfg, intended, noAlertConfidence,
			fmt.Sprintf("no clear direction in volume alert %q", alert.Text), alert)
	}

	if implied == intended {
		return domain.TradeSignal{
			Action:      intended,
			Confidence:  blend(cfg.Weight, alertConfidence, confirmedBaseline),
			Rationale:   fmt.Sprintf("%s confirms %s", alert.Text, intended),
			ShouldTrade: true,
			SourceAlert: alert,
		}
	}

	if cfg.RequireConfirmation {
		return domain.TradeSignal{
			Action:      intended,
			Confidence:  alertConfidence,
			Rationale:   fmt.Sprintf("contradiction: %s suggests %s, intended %s", alert.Text, implied, intended),
			ShouldTrade: false,
			SourceAlert: alert,
		}
	}

	return domain.TradeSignal{
		Action:      intended,
		Confidence:  blend(cfg.Weight, overriddenAlertConfidence, overridingTradConfidence),
		Rationale:   fmt.Sprintf("momentum %s overrides %s (weighted)", intended, alert.Text),
		ShouldTrade: true,
		SourceAlert: alert,
	}
}

func fallback(cfg Config, intended domain.Action, confidence float64, rationale string, alert *domain.Alert) domain.TradeSignal {
	sig := domain.TradeSignal{
		Action:      intended,
		Confidence:  confidence,
		Rationale:   rationale,
		ShouldTrade: !cfg.RequireConfirmation,
		SourceAlert: alert,
	}
	if cfg.RequireConfirmation {
		sig.Rationale += ", confirmation required"
	}
	return sig
}

func blend(weight, alert, traditional float64) float64 {
	return weight*alert + (1-weight)*traditional
}
