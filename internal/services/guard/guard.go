// Package guard decides whether a fused signal becomes a trade intent.
package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/pvsra/internal/domain"
	"github.com/vadiminshakov/pvsra/pkg/indicators"
	"go.uber.org/zap"
)

const (
	DefaultCooldown       = 5 * time.Second
	DefaultMinBars        = 5
	DefaultMomentumWindow = 5
	DefaultTrendPeriod    = 20

	agreeingTradConfidence = 0.7
	neutralTradConfidence  = 0.5
)

// DefaultMinPriceChange minimum momentum treated as a move.
var DefaultMinPriceChange = decimal.NewFromFloat(0.0003)

// BarSource provides the recent bars of a symbol.
type BarSource interface {
	Snapshot(symbol string, n int) []domain.Bar
}

// SignalSource fuses alerts with an intended action.
type SignalSource interface {
	Evaluate(symbol string, intended domain.Action, now time.Time) domain.TradeSignal
}

// PositionChecker reports an open position for a symbol, nil when flat.
type PositionChecker interface {
	OpenPosition(ctx context.Context, symbol string) (*domain.Position, error)
}

// Config guard tunables.
type Config struct {
	AllowMultiplePositions bool
	Cooldown               time.Duration
	MinBars                int
	MomentumWindow         int
	MinPriceChange         decimal.Decimal
	// FusionWeight share of the fused confidence in the decision confidence.
	FusionWeight float64
	// TrendFilter rejects buys below and sells above the moving average.
	TrendFilter bool
	TrendPeriod int
	TrendMA     indicators.MAType
}

// DefaultConfig returns the guard defaults.
func DefaultConfig() Config {
	return Config{
		Cooldown:       DefaultCooldown,
		MinBars:        DefaultMinBars,
		MomentumWindow: DefaultMomentumWindow,
		MinPriceChange: DefaultMinPriceChange,
		FusionWeight:   0.7,
		TrendPeriod:    DefaultTrendPeriod,
		TrendMA:        indicators.MATypeSMA,
	}
}

// Validate checks the windows and thresholds.
func (c Config) Validate() error {
	if c.Cooldown < 0 {
		return errors.Errorf("cooldown must not be negative, got %s", c.Cooldown)
	}
	if c.MomentumWindow < 2 {
		return errors.Errorf("momentum window must be at least 2 bars, got %d", c.MomentumWindow)
	}
	if c.MinPriceChange.IsNegative() {
		return errors.Errorf("min price change must not be negative, got %s", c.MinPriceChange)
	}
	if c.FusionWeight < 0 || c.FusionWeight > 1 {
		return errors.Errorf("fusion weight must be within [0,1], got %v", c.FusionWeight)
	}
	if c.TrendFilter && c.TrendPeriod < 1 {
		return errors.Errorf("trend period must be positive, got %d", c.TrendPeriod)
	}
	return nil
}

// SymbolContext mutable decision state of one symbol.
type SymbolContext struct {
	mu            sync.Mutex
	lastTradeTime time.Time
	lastDecision  *domain.Decision
}

// Guard evaluates candidate trades per symbol.
type Guard struct {
	cfg       Config
	logger    *zap.Logger
	bars      BarSource
	signals   SignalSource
	positions PositionChecker

	mu       sync.Mutex
	contexts map[string]*SymbolContext
}

// New creates a guard. positions may be nil when the exchange cannot be asked.
func New(cfg Config, logger *zap.Logger, bars BarSource, signals SignalSource, positions PositionChecker) (*Guard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if bars == nil || signals == nil {
		return nil, errors.New("bar source and signal source are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinBars < cfg.MomentumWindow {
		cfg.MinBars = cfg.MomentumWindow
	}
	return &Guard{
		cfg:       cfg,
		logger:    logger,
		bars:      bars,
		signals:   signals,
		positions: positions,
		contexts:  make(map[string]*SymbolContext),
	}, nil
}

// Admit runs the checks in order: open position, cooldown, history, move
// size, trend filter, fusion. The first failing check rejects.
// An accepted decision records now as the symbol's last trade time.
func (g *Guard) Admit(ctx context.Context, symbol string, intended domain.Action, now time.Time) domain.Decision {
	sc := g.context(symbol)
	sc.mu.Lock()
	defer sc.mu.Unlock()

	decision := g.evaluate(ctx, sc, symbol, intended, now)
	if decision.Allow {
		sc.lastTradeTime = now
	}
	sc.lastDecision = &decision

	g.logger.Debug("trade decision",
		zap.String("symbol", symbol),
		zap.String("action", intended.String()),
		zap.Bool("allow", decision.Allow),
		zap.String("reason", decision.Reason),
		zap.Float64("confidence", decision.Confidence))
	return decision
}

func (g *Guard) evaluate(ctx context.Context, sc *SymbolContext, symbol string, intended domain.Action, now time.Time) domain.Decision {
	decision := domain.Decision{Symbol: symbol, Time: now, Action: intended}
	reject := func(stage, format string, args ...any) domain.Decision {
		decision.Stage = stage
		decision.Reason = fmt.Sprintf(format, args...)
		return decision
	}

	if !g.cfg.AllowMultiplePositions && g.positions != nil {
		pos, err := g.positions.OpenPosition(ctx, symbol)
		if err != nil {
			return reject(domain.StagePosition, "position check failed: %v", err)
		}
		if pos.IsOpen() {
			return reject(domain.StagePosition, "position exists: %s %s @ %s (pnl %s)",
				pos.Side, pos.Amount, pos.EntryPrice, pos.UnrealizedPnL.StringFixed(2))
		}
	}

	if !sc.lastTradeTime.IsZero() {
		if elapsed := now.Sub(sc.lastTradeTime); elapsed < g.cfg.Cooldown {
			return reject(domain.StageCooldown, "cooldown active: %s remaining", (g.cfg.Cooldown - elapsed).Truncate(time.Millisecond))
		}
	}

	need := g.cfg.MinBars
	if g.cfg.TrendFilter && g.cfg.TrendPeriod > need {
		need = g.cfg.TrendPeriod
	}
	bars := g.bars.Snapshot(symbol, need)
	momentum, ok := Momentum(bars, g.cfg.MomentumWindow)
	if !ok || len(bars) < g.cfg.MinBars {
		return reject(domain.StageHistory, "insufficient price history: %d bars, need %d", len(bars), g.cfg.MinBars)
	}
	decision.Momentum = momentum

	if momentum.Abs().LessThan(g.cfg.MinPriceChange) {
		return reject(domain.StageMomentum, "price change too small: %s < %s", momentum.StringFixed(6), g.cfg.MinPriceChange)
	}

	if g.cfg.TrendFilter {
		if reason, blocked := g.trendBlocks(bars, intended); blocked {
			return reject(domain.StageTrend, "%s", reason)
		}
	}

	signal := g.signals.Evaluate(symbol, intended, now)
	decision.Signal = &signal
	if !signal.ShouldTrade {
		decision.Confidence = signal.Confidence
		return reject(domain.StageSignal, "%s", signal.Rationale)
	}

	trad := TraditionalConfidence(momentum, intended, g.cfg.MinPriceChange)
	w := g.cfg.FusionWeight
	decision.Confidence = w*signal.Confidence + (1-w)*trad
	decision.Allow = true
	decision.Stage = domain.StageAccepted
	decision.Reason = fmt.Sprintf("%s; traditional %.2f + fused %.2f", signal.Rationale, trad, signal.Confidence)
	return decision
}

func (g *Guard) trendBlocks(bars []domain.Bar, intended domain.Action) (string, bool) {
	closes := make([]decimal.Decimal, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	ma, err := indicators.LastMA(g.cfg.TrendMA, closes, g.cfg.TrendPeriod)
	if err != nil {
		// not enough history for the average yet
		return "", false
	}

	price := closes[len(closes)-1]
	switch {
	case intended == domain.ActionBuy && price.LessThan(ma):
		return fmt.Sprintf("trend filter: price %s below %s%d %s", price, g.cfg.TrendMA, g.cfg.TrendPeriod, ma.StringFixed(4)), true
	case intended == domain.ActionSell && price.GreaterThan(ma):
		return fmt.Sprintf("trend filter: price %s above %s%d %s", price, g.cfg.TrendMA, g.cfg.TrendPeriod, ma.StringFixed(4)), true
	}
	return "", false
}

// LastTradeTime returns the last accepted decision time for symbol.
func (g *Guard) LastTradeTime(symbol string) (time.Time, bool) {
	sc := g.context(symbol)
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.lastTradeTime, !sc.lastTradeTime.IsZero()
}

// LastDecision returns the most recent decision for symbol.
func (g *Guard) LastDecision(symbol string) (domain.Decision, bool) {
	sc := g.context(symbol)
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.lastDecision == nil {
		return domain.Decision{}, false
	}
	return *sc.lastDecision, true
}

func (g *Guard) context(symbol string) *SymbolContext {
	g.mu.Lock()
	defer g.mu.Unlock()
	sc, ok := g.contexts[symbol]
	if !ok {
		sc = &SymbolContext{}
		g.contexts[symbol] = sc
	}
	return sc
}

// Momentum returns (lastClose - firstClose) / firstClose over the last window bars.
func Momentum(bars []domain.Bar, window int) (decimal.Decimal, bool) {
	if window < 2 || len(bars) < window {
		return decimal.Zero, false
	}
	first := bars[len(bars)-window].Close
	last := bars[len(bars)-1].Close
	if !first.IsPositive() {
		return decimal.Zero, false
	}
	return last.Sub(first).Div(first), true
}

// IntendedAction derives the momentum side; ok is false inside the dead band.
func IntendedAction(momentum, minChange decimal.Decimal) (domain.Action, bool) {
	switch {
	case momentum.GreaterThan(minChange):
		return domain.ActionBuy, true
	case momentum.LessThan(minChange.Neg()):
		return domain.ActionSell, true
	}
	return 0, false
}

// TraditionalConfidence is higher when momentum agrees with the action.
func TraditionalConfidence(momentum decimal.Decimal, action domain.Action, minChange decimal.Decimal) float64 {
	if side, ok := IntendedAction(momentum, minChange); ok && side == action {
		return agreeingTradConfidence
	}
	return neutralTradConfidence
}
