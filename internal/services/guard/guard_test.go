package guard

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/pvsra/internal/domain"
	"github.com/vadiminshakov/pvsra/internal/services/fusion"
	"go.uber.org/zap"
)

const symbol = "SUIUSDT"

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type mockBarSource struct {
	mock.Mock
}

func (m *mockBarSource) Snapshot(symbol string, n int) []domain.Bar {
	args := m.Called(symbol, n)
	return args.Get(0).([]domain.Bar)
}

type mockSignalSource struct {
	mock.Mock
}

func (m *mockSignalSource) Evaluate(symbol string, intended domain.Action, at time.Time) domain.TradeSignal {
	args := m.Called(symbol, intended, at)
	return args.Get(0).(domain.TradeSignal)
}

type mockPositionChecker struct {
	mock.Mock
}

func (m *mockPositionChecker) OpenPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	args := m.Called(ctx, symbol)
	pos, _ := args.Get(0).(*domain.Position)
	return pos, args.Error(1)
}

func closes(values ...string) []domain.Bar {
	bars := make([]domain.Bar, len(values))
	for i, v := range values {
		c := decimal.RequireFromString(v)
		bars[i] = domain.Bar{OpenTime: now.Add(time.Duration(i-len(values)) * time.Minute), Open: c, High: c, Low: c, Close: c}
	}
	return bars
}

// rising closes give momentum +1%
func rising() []domain.Bar {
	return closes("100", "100.2", "100.5", "100.8", "101")
}

func flatPosition(pc *mockPositionChecker) {
	pc.On("OpenPosition", mock.Anything, symbol).Return(nil, nil)
}

func newGuard(t *testing.T, cfg Config, bars BarSource, signals SignalSource, positions PositionChecker) *Guard {
	t.Helper()
	g, err := New(cfg, zap.NewNop(), bars, signals, positions)
	require.NoError(t, err)
	return g
}

func TestGuard_Admit_Accepts(t *testing.T) {
	bars := &mockBarSource{}
	bars.On("Snapshot", symbol, DefaultMinBars).Return(rising())
	signals := &mockSignalSource{}
	signals.On("Evaluate", symbol, domain.ActionBuy, now).
		Return(domain.TradeSignal{Action: domain.ActionBuy, Confidence: 0.65, Rationale: "Bull Climax confirms BUY", ShouldTrade: true})
	positions := &mockPositionChecker{}
	flatPosition(positions)

	g := newGuard(t, DefaultConfig(), bars, signals, positions)
	decision := g.Admit(context.Background(), symbol, domain.ActionBuy, now)

	require.True(t, decision.Allow, decision.Reason)
	assert.Equal(t, domain.StageAccepted, decision.Stage)
	// 0.7*0.65 + 0.3*0.7
	assert.InDelta(t, 0.665, decision.Confidence, 1e-9)
	assert.Contains(t, decision.Reason, "confirms BUY")
	assert.True(t, decision.Momentum.Equal(decimal.RequireFromString("0.01")))
	require.NotNil(t, decision.Signal)

	last, ok := g.LastTradeTime(symbol)
	require.True(t, ok)
	assert.True(t, last.Equal(now))

	bars.AssertExpectations(t)
	signals.AssertExpectations(t)
	positions.AssertExpectations(t)
}

func TestGuard_Admit_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		cfg       func(c *Config)
		bars      []domain.Bar
		position  *domain.Position
		posErr    error
		signal    *domain.TradeSignal
		stage     string
		reason    string
		skipsBars bool
	}{
		{
			name:      "open position",
			position:  &domain.Position{Symbol: symbol, Amount: decimal.NewFromInt(3), EntryPrice: decimal.NewFromInt(4)},
			stage:     domain.StagePosition,
			reason:    "position exists",
			skipsBars: true,
		},
		{
			name:      "position check failure",
			posErr:    errors.New("timeout"),
			stage:     domain.StagePosition,
			reason:    "position check failed",
			skipsBars: true,
		},
		{
			name:   "insufficient history",
			bars:   closes("100", "101"),
			stage:  domain.StageHistory,
			reason: "insufficient price history",
		},
		{
			name:   "move too small",
			bars:   closes("100", "100", "100", "100", "100.01"),
			stage:  domain.StageMomentum,
			reason: "price change too small",
		},
		{
			name:   "fusion rejects",
			bars:   rising(),
			signal: &domain.TradeSignal{Action: domain.ActionBuy, Confidence: 0.8, Rationale: "contradiction: Bear Climax suggests SELL", ShouldTrade: false},
			stage:  domain.StageSignal,
			reason: "contradiction",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}

			bars := &mockBarSource{}
			if !tt.skipsBars {
				bars.On("Snapshot", symbol, cfg.MinBars).Return(tt.bars)
			}
			signals := &mockSignalSource{}
			if tt.signal != nil {
				signals.On("Evaluate", symbol, domain.ActionBuy, now).Return(*tt.signal)
			}
			positions := &mockPositionChecker{}
			positions.On("OpenPosition", mock.Anything, symbol).Return(tt.position, tt.posErr)

			g := newGuard(t, cfg, bars, signals, positions)
			decision := g.Admit(context.Background(), symbol, domain.ActionBuy, now)

			assert.False(t, decision.Allow)
			assert.Equal(t, tt.stage, decision.Stage)
			assert.Contains(t, decision.Reason, tt.reason)
			_, traded := g.LastTradeTime(symbol)
			assert.False(t, traded, "rejections never start a cooldown")

			bars.AssertExpectations(t)
			signals.AssertExpectations(t)
		})
	}
}

func TestGuard_AllowMultiplePositionsSkipsCheck(t *testing.T) {
	bars := &mockBarSource{}
	bars.On("Snapshot", symbol, DefaultMinBars).Return(rising())
	signals := &mockSignalSource{}
	signals.On("Evaluate", symbol, domain.ActionBuy, now).Return(domain.TradeSignal{ShouldTrade: true, Confidence: 0.5, Rationale: "no volume alert available"})
	positions := &mockPositionChecker{}

	cfg := DefaultConfig()
	cfg.AllowMultiplePositions = true
	g := newGuard(t, cfg, bars, signals, positions)

	decision := g.Admit(context.Background(), symbol, domain.ActionBuy, now)
	assert.True(t, decision.Allow)
	positions.AssertNotCalled(t, "OpenPosition", mock.Anything, mock.Anything)
}

func TestGuard_CooldownIdempotence(t *testing.T) {
	bars := &mockBarSource{}
	bars.On("Snapshot", symbol, DefaultMinBars).Return(rising())
	signals := &mockSignalSource{}
	signals.On("Evaluate", symbol, domain.ActionBuy, mock.Anything).Return(domain.TradeSignal{ShouldTrade: true, Confidence: 0.5, Rationale: "no volume alert available"})

	g := newGuard(t, DefaultConfig(), bars, signals, nil)

	first := g.Admit(context.Background(), symbol, domain.ActionBuy, now)
	require.True(t, first.Allow)

	second := g.Admit(context.Background(), symbol, domain.ActionBuy, now.Add(2*time.Second))
	assert.False(t, second.Allow)
	assert.Contains(t, second.Reason, "cooldown active")

	last, _ := g.LastTradeTime(symbol)
	assert.True(t, last.Equal(now), "rejection must not move the cooldown baseline")

	third := g.Admit(context.Background(), symbol, domain.ActionBuy, now.Add(DefaultCooldown))
	assert.True(t, third.Allow)

	// other symbols have their own cooldown
	bars.On("Snapshot", "BTCUSDT", DefaultMinBars).Return(rising())
	signals.On("Evaluate", "BTCUSDT", domain.ActionBuy, mock.Anything).Return(domain.TradeSignal{ShouldTrade: true, Confidence: 0.5, Rationale: "no volume alert available"})
	other := g.Admit(context.Background(), "BTCUSDT", domain.ActionBuy, now.Add(DefaultCooldown+time.Second))
	assert.True(t, other.Allow)
}

type staticAlerts struct {
	alert domain.Alert
	at    time.Time
}

func (s staticAlerts) Latest(string) (domain.Alert, time.Time, bool) {
	return s.alert, s.at, true
}

func TestGuard_WithFusionEngine_ContradictionUnderConfirmation(t *testing.T) {
	bars := &mockBarSource{}
	bars.On("Snapshot", symbol, DefaultMinBars).Return(rising())

	bearClimax := domain.Alert{
		Symbol:    symbol,
		Condition: domain.ConditionClimax,
		Direction: domain.DirectionBearish,
		Text:      domain.AlertText(domain.ConditionClimax, domain.DirectionBearish),
	}
	engine, err := fusion.NewEngine(fusion.Config{Weight: 0.7, RequireConfirmation: true, Freshness: fusion.DefaultFreshness},
		staticAlerts{alert: bearClimax, at: now.Add(-30 * time.Second)})
	require.NoError(t, err)

	g := newGuard(t, DefaultConfig(), bars, engine, nil)
	decision := g.Admit(context.Background(), symbol, domain.ActionBuy, now)

	assert.False(t, decision.Allow)
	assert.Contains(t, decision.Reason, "contradiction")
	assert.InDelta(t, 0.8, decision.Confidence, 1e-9)
}

func TestGuard_TrendFilter(t *testing.T) {
	// long decline, then a short bounce: momentum says BUY, price stays below SMA(20)
	values := make([]string, 0, 20)
	for i := 0; i < 15; i++ {
		values = append(values, decimal.NewFromInt(int64(120-i)).String())
	}
	values = append(values, "100", "100.3", "100.6", "100.9", "101.2")

	cfg := DefaultConfig()
	cfg.TrendFilter = true

	bars := &mockBarSource{}
	bars.On("Snapshot", symbol, cfg.TrendPeriod).Return(closes(values...))
	signals := &mockSignalSource{}

	g := newGuard(t, cfg, bars, signals, nil)
	decision := g.Admit(context.Background(), symbol, domain.ActionBuy, now)

	assert.False(t, decision.Allow)
	assert.Contains(t, decision.Reason, "trend filter")
	signals.AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything, mock.Anything)
}

func TestMomentum(t *testing.T) {
	m, ok := Momentum(closes("50", "1", "1", "1", "100", "102"), 5)
	require.True(t, ok)
	assert.True(t, m.Equal(decimal.RequireFromString("101")), "uses the first bar of the window, got %s", m)

	_, ok = Momentum(closes("1", "2"), 5)
	assert.False(t, ok)

	_, ok = Momentum(closes("0", "1", "1", "1", "2"), 5)
	assert.False(t, ok)
}

func TestIntendedAction(t *testing.T) {
	minChange := DefaultMinPriceChange

	action, ok := IntendedAction(decimal.RequireFromString("0.001"), minChange)
	assert.True(t, ok)
	assert.Equal(t, domain.ActionBuy, action)

	action, ok = IntendedAction(decimal.RequireFromString("-0.001"), minChange)
	assert.True(t, ok)
	assert.Equal(t, domain.ActionSell, action)

	_, ok = IntendedAction(decimal.RequireFromString("0.0001"), minChange)
	assert.False(t, ok)

	assert.InDelta(t, 0.7, TraditionalConfidence(decimal.RequireFromString("0.001"), domain.ActionBuy, minChange), 1e-9)
	assert.InDelta(t, 0.5, TraditionalConfidence(decimal.RequireFromString("0.001"), domain.ActionSell, minChange), 1e-9)
}
