package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/pvsra/internal/domain"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type mockAlertSource struct {
	mock.Mock
}

func (m *mockAlertSource) Latest(symbol string) (domain.Alert, time.Time, bool) {
	args := m.Called(symbol)
	return args.Get(0).(domain.Alert), args.Get(1).(time.Time), args.Bool(2)
}

func alert(c domain.Condition, dir domain.Direction) *domain.Alert {
	return &domain.Alert{
		Symbol:    "SUIUSDT",
		Condition: c,
		Direction: dir,
		Text:      domain.AlertText(c, dir),
	}
}

func TestFuse(t *testing.T) {
	fresh := now.Add(-time.Minute)
	stale := now.Add(-301 * time.Second)

	tests := []struct {
		name        string
		confirm     bool
		intended    domain.Action
		alert       *domain.Alert
		alertAt     time.Time
		confidence  float64
		shouldTrade bool
		rationale   string
	}{
		{
			name:        "no alert",
			intended:    domain.ActionBuy,
			confidence:  0.5,
			shouldTrade: true,
			rationale:   "no volume alert",
		},
		{
			name:        "no alert under confirmation",
			confirm:     true,
			intended:    domain.ActionBuy,
			confidence:  0.5,
			shouldTrade: false,
			rationale:   "confirmation required",
		},
		{
			name:        "stale alert",
			intended:    domain.ActionSell,
			alert:       alert(domain.ConditionClimax, domain.DirectionBearish),
			alertAt:     stale,
			confidence:  0.3,
			shouldTrade: true,
			rationale:   "too old",
		},
		{
			name:        "stale alert under confirmation",
			confirm:     true,
			intended:    domain.ActionSell,
			alert:       alert(domain.ConditionClimax, domain.DirectionBearish),
			alertAt:     stale,
			confidence:  0.3,
			shouldTrade: false,
		},
		{
			name:        "alert exactly at freshness bound is fresh",
			intended:    domain.ActionBuy,
			alert:       alert(domain.ConditionClimax, domain.DirectionBullish),
			alertAt:     now.Add(-300 * time.Second),
			confidence:  0.7*0.8 + 0.3*0.3,
			shouldTrade: true,
		},
		{
			name:        "bull climax confirms buy",
			intended:    domain.ActionBuy,
			alert:       alert(domain.ConditionClimax, domain.DirectionBullish),
			alertAt:     fresh,
			confidence:  0.7*0.8 + 0.3*0.3,
			shouldTrade: true,
			rationale:   "confirms BUY",
		},
		{
			name:        "bear rising confirms sell",
			intended:    domain.ActionSell,
			alert:       alert(domain.ConditionRising, domain.DirectionBearish),
			alertAt:     fresh,
			confidence:  0.7*0.6 + 0.3*0.3,
			shouldTrade: true,
		},
		{
			name:        "contradiction under confirmation",
			confirm:     true,
			intended:    domain.ActionBuy,
			alert:       alert(domain.ConditionClimax, domain.DirectionBearish),
			alertAt:     fresh,
			confidence:  0.8,
			shouldTrade: false,
			rationale:   "contradiction",
		},
		{
			name:        "contradiction is down-weighted",
			intended:    domain.ActionBuy,
			alert:       alert(domain.ConditionRising, domain.DirectionBearish),
			alertAt:     fresh,
			confidence:  0.7*0.3 + 0.3*0.5,
			shouldTrade: true,
			rationale:   "overrides",
		},
		{
			name:        "ambiguous alert falls back",
			intended:    domain.ActionBuy,
			alert:       &domain.Alert{Condition: domain.ConditionNormal, Text: "?"},
			alertAt:     fresh,
			confidence:  0.5,
			shouldTrade: true,
			rationale:   "no clear direction",
		},
		{
			name:        "ambiguous alert under confirmation",
			confirm:     true,
			intended:    domain.ActionSell,
			alert:       &domain.Alert{Condition: domain.ConditionNormal},
			alertAt:     fresh,
			confidence:  0.5,
			shouldTrade: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.RequireConfirmation = tt.confirm

			sig := Fuse(cfg, tt.intended, tt.alert, tt.alertAt, now)
			assert.Equal(t, tt.intended, sig.Action)
			assert.InDelta(t, tt.confidence, sig.Confidence, 1e-9)
			assert.Equal(t, tt.shouldTrade, sig.ShouldTrade)
			assert.NotEmpty(t, sig.Rationale)
			if tt.rationale != "" {
				assert.Contains(t, sig.Rationale, tt.rationale)
			}
			assert.Equal(t, tt.alert, sig.SourceAlert)
		})
	}
}

func TestEngine_Evaluate(t *testing.T) {
	src := &mockAlertSource{}
	src.On("Latest", "SUIUSDT").Return(*alert(domain.ConditionClimax, domain.DirectionBearish), now.Add(-10*time.Second), true)
	src.On("Latest", "BTCUSDT").Return(domain.Alert{}, time.Time{}, false)

	engine, err := NewEngine(Config{Weight: 0.7, RequireConfirmation: true, Freshness: DefaultFreshness}, src)
	require.NoError(t, err)

	sig := engine.Evaluate("SUIUSDT", domain.ActionBuy, now)
	assert.False(t, sig.ShouldTrade)
	require.NotNil(t, sig.SourceAlert)
	assert.Equal(t, domain.ConditionClimax, sig.SourceAlert.Condition)

	sig = engine.Evaluate("BTCUSDT", domain.ActionBuy, now)
	assert.False(t, sig.ShouldTrade)
	assert.Nil(t, sig.SourceAlert)

	src.AssertExpectations(t)
}

func TestNewEngine_Validation(t *testing.T) {
	_, err := NewEngine(Config{Weight: 1.5, Freshness: time.Minute}, &mockAlertSource{})
	assert.Error(t, err)

	_, err = NewEngine(Config{Weight: 0.5}, &mockAlertSource{})
	assert.Error(t, err)

	_, err = NewEngine(DefaultConfig(), nil)
	assert.Error(t, err)
}
