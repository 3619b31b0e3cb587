package pvsra

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/pvsra/internal/domain"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// mkBar builds a bar with range 10 (low 100, high 110) and the given body.
func mkBar(i int, open, closePrice, volume string) domain.Bar {
	return domain.Bar{
		OpenTime: t0.Add(time.Duration(i) * time.Minute),
		Open:     d(open),
		High:     d("110"),
		Low:      d("100"),
		Close:    d(closePrice),
		Volume:   d(volume),
	}
}

// baseline returns n flat bars with volume 1000.
func baseline(n int) []domain.Bar {
	bars := make([]domain.Bar, 0, n+1)
	for i := 0; i < n; i++ {
		bars = append(bars, mkBar(i, "104", "105", "1000"))
	}
	return bars
}

func TestClassify_ClimaxExample(t *testing.T) {
	bars := append(baseline(10), mkBar(10, "101", "109", "2500"))

	out := Classify(bars, DefaultParams())
	require.Len(t, out, 11)

	last := out[10]
	assert.True(t, last.Classifiable)
	assert.True(t, last.AvgVolume.Equal(d("1000")))
	assert.True(t, last.VolumeRatio.Equal(d("2.5")))
	assert.Equal(t, domain.ConditionClimax, last.Condition)
	assert.Equal(t, domain.DirectionBullish, last.Direction)
	assert.Equal(t, domain.ColorCyan, last.Color)
	assert.Equal(t, "Bull Climax - Potential Reversal", last.Alert)
}

func TestClassify_Conditions(t *testing.T) {
	tests := []struct {
		name      string
		bar       domain.Bar
		condition domain.Condition
		direction domain.Direction
		color     domain.CandleColor
		alert     string
	}{
		{
			name:      "bear climax",
			bar:       mkBar(10, "109", "101", "2000"),
			condition: domain.ConditionClimax,
			direction: domain.DirectionBearish,
			color:     domain.ColorRed,
			alert:     "Bear Climax - Potential Reversal",
		},
		{
			name:      "climax volume with small body is not climax",
			bar:       mkBar(10, "105", "107", "3000"), // body 2 <= 3
			condition: domain.ConditionNormal,
			direction: domain.DirectionBullish,
			color:     domain.ColorGreen,
		},
		{
			name:      "bull rising",
			bar:       mkBar(10, "104", "107", "1500"), // body 3 > 2
			condition: domain.ConditionRising,
			direction: domain.DirectionBullish,
			color:     domain.ColorBlue,
			alert:     "Rising Volume Bull - Continuation Signal",
		},
		{
			name:      "bear rising",
			bar:       mkBar(10, "107", "104", "1999"),
			condition: domain.ConditionRising,
			direction: domain.DirectionBearish,
			color:     domain.ColorYellow,
			alert:     "Rising Volume Bear - Continuation Signal",
		},
		{
			name:      "rising volume with thin body is normal",
			bar:       mkBar(10, "104", "106", "1600"), // body 2 is not > 2
			condition: domain.ConditionNormal,
			direction: domain.DirectionBullish,
			color:     domain.ColorGreen,
		},
		{
			name:      "below rising threshold",
			bar:       mkBar(10, "109", "101", "1499"),
			condition: domain.ConditionNormal,
			direction: domain.DirectionBearish,
			color:     domain.ColorRed,
		},
		{
			name: "zero range",
			bar: domain.Bar{
				OpenTime: t0.Add(10 * time.Minute),
				Open:     d("105"),
				High:     d("105"),
				Low:      d("105"),
				Close:    d("105"),
				Volume:   d("5000"),
			},
			condition: domain.ConditionNormal,
			direction: domain.DirectionBearish,
			color:     domain.ColorRed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Classify(append(baseline(10), tt.bar), DefaultParams())
			last := out[len(out)-1]
			assert.Equal(t, tt.condition, last.Condition)
			assert.Equal(t, tt.direction, last.Direction)
			assert.Equal(t, tt.color, last.Color)
			assert.Equal(t, tt.alert, last.Alert)
		})
	}
}

func TestClassify_InsufficientLookback(t *testing.T) {
	bars := append(baseline(5), mkBar(5, "101", "109", "9000"))

	out := Classify(bars, DefaultParams())
	for _, cb := range out {
		assert.False(t, cb.Classifiable)
		assert.Equal(t, domain.ConditionNormal, cb.Condition)
		assert.Empty(t, cb.Alert)
	}

	_, ok := ClassifyLast(bars, DefaultParams())
	assert.False(t, ok)
}

func TestClassify_NonPositiveLookback(t *testing.T) {
	bars := append(baseline(10), mkBar(10, "101", "109", "9000"))

	for _, lookback := range []int{0, -3} {
		t.Run(fmt.Sprintf("lookback %d", lookback), func(t *testing.T) {
			p := DefaultParams()
			p.Lookback = lookback

			var out []domain.ClassifiedBar
			require.NotPanics(t, func() { out = Classify(bars, p) })
			require.Len(t, out, len(bars))
			for _, cb := range out {
				assert.False(t, cb.Classifiable)
				assert.Equal(t, domain.ConditionNormal, cb.Condition)
			}
			assert.Equal(t, domain.DirectionBullish, out[10].Direction)

			var (
				last domain.ClassifiedBar
				ok   bool
			)
			require.NotPanics(t, func() { last, ok = ClassifyLast(bars, p) })
			assert.False(t, ok)
			assert.Equal(t, domain.ConditionNormal, last.Condition)
		})
	}
}

func TestClassify_AverageExcludesCurrentBar(t *testing.T) {
	p := Params{Lookback: 3, ClimaxMultiplier: d("2"), RisingMultiplier: d("1.5")}
	bars := []domain.Bar{
		mkBar(0, "104", "105", "100"),
		mkBar(1, "104", "105", "200"),
		mkBar(2, "104", "105", "300"),
		mkBar(3, "104", "105", "400"),
		mkBar(4, "104", "105", "500"),
	}

	out := Classify(bars, p)
	assert.True(t, out[3].AvgVolume.Equal(d("200")))
	assert.True(t, out[4].AvgVolume.Equal(d("300")))
}

func TestClassify_Deterministic(t *testing.T) {
	bars := baseline(10)
	bars = append(bars,
		mkBar(10, "101", "109", "2500"),
		mkBar(11, "104", "107", "2100"),
		mkBar(12, "109", "101", "900"),
	)

	first := Classify(bars, DefaultParams())
	second := Classify(bars, DefaultParams())
	assert.Equal(t, first, second)

	last, ok := ClassifyLast(bars, DefaultParams())
	require.True(t, ok)
	assert.Equal(t, first[len(first)-1].Condition, last.Condition)
	assert.True(t, first[len(first)-1].VolumeRatio.Equal(last.VolumeRatio))
}

func TestClassify_ZeroAverageVolume(t *testing.T) {
	bars := make([]domain.Bar, 0, 11)
	for i := 0; i < 10; i++ {
		bars = append(bars, mkBar(i, "104", "105", "0"))
	}
	bars = append(bars, mkBar(10, "101", "109", "100"))

	last := Classify(bars, DefaultParams())[10]
	assert.True(t, last.Classifiable)
	assert.Equal(t, domain.ConditionNormal, last.Condition)
	assert.True(t, last.VolumeRatio.IsZero())
}

func TestParams_Validate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())
	assert.Error(t, Params{Lookback: 0, ClimaxMultiplier: d("2"), RisingMultiplier: d("1.5")}.Validate())
	assert.Error(t, Params{Lookback: 10, ClimaxMultiplier: d("1.5"), RisingMultiplier: d("1.5")}.Validate())
	assert.Error(t, Params{Lookback: 10, ClimaxMultiplier: d("2"), RisingMultiplier: d("0")}.Validate())
}
