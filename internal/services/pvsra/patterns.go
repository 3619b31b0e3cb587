package pvsra

import (
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/pvsra/internal/domain"
)

// Pattern summary of the most recent classified bars.
type Pattern string

const (
	PatternInsufficientData Pattern = "insufficient_data"
	PatternHighVolatility   Pattern = "high_volatility"
	PatternStrongTrend      Pattern = "strong_trend"
	PatternReversalSetup    Pattern = "reversal_setup"
	PatternConsolidation    Pattern = "consolidation"
)

// Trend direction of the scanned bars.
type Trend string

const (
	TrendBullish  Trend = "bullish"
	TrendBearish  Trend = "bearish"
	TrendSideways Trend = "sideways"
)

// DefaultScanLookback bars inspected by ScanPatterns.
const DefaultScanLookback = 5

var trendThreshold = decimal.NewFromFloat(0.01)

// Statistics aggregate counts of a classified window.
type Statistics struct {
	TotalBars        int             `json:"total_bars"`
	ClimaxBars       int             `json:"climax_bars"`
	RisingBars       int             `json:"rising_bars"`
	NormalBars       int             `json:"normal_bars"`
	ClimaxPercentage decimal.Decimal `json:"climax_percentage"`
	RisingPercentage decimal.Decimal `json:"rising_percentage"`
	NormalPercentage decimal.Decimal `json:"normal_percentage"`
	AvgVolume        decimal.Decimal `json:"avg_volume"`
	MaxVolumeRatio   decimal.Decimal `json:"max_volume_ratio"`
	AvgVolumeRatio   decimal.Decimal `json:"avg_volume_ratio"`
}

// ComputeStatistics summarizes a classified window. Volume ratios only count
// classifiable bars.
func ComputeStatistics(bars []domain.ClassifiedBar) Statistics {
	var st Statistics
	st.TotalBars = len(bars)
	if st.TotalBars == 0 {
		return st
	}

	volume := decimal.Zero
	ratioSum := decimal.Zero
	ratios := 0
	for _, b := range bars {
		switch b.Condition {
		case domain.ConditionClimax:
			st.ClimaxBars++
		case domain.ConditionRising:
			st.RisingBars++
		}
		volume = volume.Add(b.Volume)
		if b.Classifiable {
			ratios++
			ratioSum = ratioSum.Add(b.VolumeRatio)
			st.MaxVolumeRatio = decimal.Max(st.MaxVolumeRatio, b.VolumeRatio)
		}
	}
	st.NormalBars = st.TotalBars - st.ClimaxBars - st.RisingBars

	total := decimal.NewFromInt(int64(st.TotalBars))
	st.ClimaxPercentage = percentOf(st.ClimaxBars, total)
	st.RisingPercentage = percentOf(st.RisingBars, total)
	st.NormalPercentage = percentOf(st.NormalBars, total)
	st.AvgVolume = volume.Div(total)
	if ratios > 0 {
		st.AvgVolumeRatio = ratioSum.Div(decimal.NewFromInt(int64(ratios)))
	}
	return st
}

func percentOf(n int, total decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(int64(n)).Mul(decimal.NewFromInt(100)).Div(total)
}

// PatternScan result of ScanPatterns.
type PatternScan struct {
	Pattern         Pattern          `json:"pattern"`
	Trend           Trend            `json:"trend,omitempty"`
	ClimaxCount     int              `json:"climax_count"`
	RisingCount     int              `json:"rising_count"`
	PriceChangePct  decimal.Decimal  `json:"price_change_pct"`
	LatestCondition domain.Condition `json:"latest_condition,omitempty"`
	LatestAlert     string           `json:"latest_alert,omitempty"`
}

// ScanPatterns inspects the last lookback bars:
// two or more climax bars read as high volatility, three or more rising bars
// as a strong trend, one climax with rising bars as a reversal setup.
func ScanPatterns(bars []domain.ClassifiedBar, lookback int) PatternScan {
	if lookback < 1 {
		lookback = DefaultScanLookback
	}
	if len(bars) < lookback {
		return PatternScan{Pattern: PatternInsufficientData}
	}

	recent := bars[len(bars)-lookback:]
	var scan PatternScan
	for _, b := range recent {
		switch b.Condition {
		case domain.ConditionClimax:
			scan.ClimaxCount++
		case domain.ConditionRising:
			scan.RisingCount++
		}
	}

	switch {
	case scan.ClimaxCount >= 2:
		scan.Pattern = PatternHighVolatility
	case scan.RisingCount >= 3:
		scan.Pattern = PatternStrongTrend
	case scan.ClimaxCount == 1 && scan.RisingCount >= 1:
		scan.Pattern = PatternReversalSetup
	default:
		scan.Pattern = PatternConsolidation
	}

	first, last := recent[0].Close, recent[len(recent)-1].Close
	scan.Trend = TrendSideways
	if first.IsPositive() {
		change := last.Sub(first).Div(first)
		scan.PriceChangePct = change.Mul(decimal.NewFromInt(100))
		switch {
		case change.GreaterThan(trendThreshold):
			scan.Trend = TrendBullish
		case change.LessThan(trendThreshold.Neg()):
			scan.Trend = TrendBearish
		}
	}

	latest := recent[len(recent)-1]
	scan.LatestCondition = latest.Condition
	scan.LatestAlert = latest.Alert
	return scan
}
