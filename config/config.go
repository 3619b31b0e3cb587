package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/pvsra/internal/domain"
	"github.com/vadiminshakov/pvsra/pkg/indicators"
	"gopkg.in/yaml.v3"
)

const (
	DefaultInterval         = "1m"
	DefaultLookbackPeriod   = 10
	DefaultClimaxMultiplier = "2.0"
	DefaultRisingMultiplier = "1.5"
	DefaultFusionWeight     = 0.7
	DefaultAlertFreshness   = 300 * time.Second
	DefaultCooldown         = 5 * time.Second
	DefaultMinPriceChange   = "0.0003"
	DefaultMomentumWindow   = 5
	DefaultMinBars          = 5
	DefaultDecisionInterval = 2 * time.Second
	DefaultStoreCapacity    = 200
	DefaultSeedLimit        = 100
	DefaultTradeAmount      = "10"
	DefaultLeverage         = 5
	DefaultTrendPeriod      = 20
	DefaultTrendMA          = "sma"
	binanceMaxKlinesPerSeed = 1500
	maxLeverage             = 125
)

// Position thresholds are fractions of the entry price.
const (
	DefaultProfitThreshold   = "0.002"
	DefaultStopLossThreshold = "0.001"
)

// Config holds the settings of one monitored symbol.
type Config struct {
	Pair     domain.Pair
	Interval string
	// IntervalDuration is Interval as a duration, used for bar period identity.
	IntervalDuration time.Duration

	LookbackPeriod   int
	ClimaxMultiplier decimal.Decimal
	RisingMultiplier decimal.Decimal

	FusionWeight        float64
	RequireConfirmation bool
	AlertFreshness      time.Duration

	Cooldown               time.Duration
	MinPriceChange         decimal.Decimal
	AllowMultiplePositions bool
	MomentumWindow         int
	MinBars                int
	TrendFilter            bool
	TrendPeriod            int
	TrendMA                indicators.MAType
	// ProfitThreshold and StopLossThreshold are fractions of the entry price
	// an open position is measured against.
	ProfitThreshold   decimal.Decimal
	StopLossThreshold decimal.Decimal

	DecisionInterval time.Duration
	StoreCapacity    int
	SeedLimit        int

	TradeAmount        decimal.Decimal
	TradeAmountPercent decimal.Decimal
	Leverage           int
	LiveTrading        bool

	// Filters overrides exchange info when set.
	Filters *domain.SymbolFilters
}

// Symbol returns the exchange symbol, for example SUIUSDT.
func (c Config) Symbol() string {
	return c.Pair.Symbol()
}

// ConfigTmp is the YAML form of Config. Optional values are strings so that
// an absent key falls back to its default.
type ConfigTmp struct {
	Pair                   string `yaml:"pair"`
	Interval               string `yaml:"interval,omitempty"`
	LookbackPeriod         string `yaml:"lookback_period,omitempty"`
	ClimaxMultiplier       string `yaml:"climax_multiplier,omitempty"`
	RisingMultiplier       string `yaml:"rising_multiplier,omitempty"`
	FusionWeight           string `yaml:"fusion_weight,omitempty"`
	RequireConfirmation    bool   `yaml:"require_confirmation,omitempty"`
	AlertFreshness         string `yaml:"alert_freshness,omitempty"`
	Cooldown               string `yaml:"cooldown,omitempty"`
	MinPriceChange         string `yaml:"min_price_change,omitempty"`
	AllowMultiplePositions bool   `yaml:"allow_multiple_positions,omitempty"`
	MomentumWindow         string `yaml:"momentum_window,omitempty"`
	MinBars                string `yaml:"min_bars,omitempty"`
	ProfitThreshold        string `yaml:"profit_threshold,omitempty"`
	StopLossThreshold      string `yaml:"stop_loss_threshold,omitempty"`
	TrendFilter            bool   `yaml:"trend_filter,omitempty"`
	TrendPeriod            string `yaml:"trend_period,omitempty"`
	TrendMA                string `yaml:"trend_ma,omitempty"`
	DecisionInterval       string `yaml:"decision_interval,omitempty"`
	StoreCapacity          string `yaml:"store_capacity,omitempty"`
	SeedLimit              string `yaml:"seed_limit,omitempty"`
	TradeAmount            string `yaml:"trade_amount,omitempty"`
	TradeAmountPercent     string `yaml:"trade_amount_percent,omitempty"`
	Leverage               string `yaml:"leverage,omitempty"`
	LiveTrading            bool   `yaml:"live_trading,omitempty"`
	StepSize               string `yaml:"step_size,omitempty"`
	MinQty                 string `yaml:"min_qty,omitempty"`
	MinNotional            string `yaml:"min_notional,omitempty"`
}

// Get reads configs from --config or, when absent, from CLI flags.
func Get() ([]Config, error) {
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	path := fs.String("config", "", "path to yaml config")
	cli := registerFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, err
	}

	if *path != "" {
		return Load(*path)
	}

	c, err := cli.toConfigTmp()
	if err != nil {
		return nil, err
	}
	cfg, err := c.Parse()
	if err != nil {
		return nil, err
	}
	return []Config{cfg}, nil
}

// Load parses a YAML file holding a list of symbol configs.
func Load(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config")
	}
	return Parse(data)
}

// Parse decodes a YAML list of symbol configs.
func Parse(data []byte) ([]Config, error) {
	var tmps []ConfigTmp
	if err := yaml.Unmarshal(data, &tmps); err != nil {
		return nil, errors.Wrap(err, "failed to decode yaml config")
	}
	if len(tmps) == 0 {
		return nil, errors.New("config has no symbols")
	}

	configs := make([]Config, 0, len(tmps))
	seen := make(map[string]bool, len(tmps))
	for i, c := range tmps {
		cfg, err := c.Parse()
		if err != nil {
			return nil, errors.Wrapf(err, "config entry %d", i)
		}
		if seen[cfg.Symbol()] {
			return nil, errors.Errorf("config entry %d: duplicate pair %s", i, cfg.Pair)
		}
		seen[cfg.Symbol()] = true
		configs = append(configs, cfg)
	}
	return configs, nil
}

// Parse fills defaults and validates one entry.
func (c ConfigTmp) Parse() (Config, error) {
	var (
		cfg Config
		err error
	)

	cfg.Pair, err = domain.ParsePair(c.Pair)
	if err != nil {
		return Config{}, errors.Wrapf(err, "incorrect 'pair' param: %q", c.Pair)
	}

	cfg.Interval = orDefault(c.Interval, DefaultInterval)
	cfg.IntervalDuration, err = IntervalDuration(cfg.Interval)
	if err != nil {
		return Config{}, err
	}

	p := parser{}
	cfg.LookbackPeriod = p.int("lookback_period", c.LookbackPeriod, DefaultLookbackPeriod)
	cfg.ClimaxMultiplier = p.decimal("climax_multiplier", c.ClimaxMultiplier, DefaultClimaxMultiplier)
	cfg.RisingMultiplier = p.decimal("rising_multiplier", c.RisingMultiplier, DefaultRisingMultiplier)
	cfg.FusionWeight = p.float("fusion_weight", c.FusionWeight, DefaultFusionWeight)
	cfg.RequireConfirmation = c.RequireConfirmation
	cfg.AlertFreshness = p.duration("alert_freshness", c.AlertFreshness, DefaultAlertFreshness)
	cfg.Cooldown = p.duration("cooldown", c.Cooldown, DefaultCooldown)
	cfg.MinPriceChange = p.decimal("min_price_change", c.MinPriceChange, DefaultMinPriceChange)
	cfg.AllowMultiplePositions = c.AllowMultiplePositions
	cfg.MomentumWindow = p.int("momentum_window", c.MomentumWindow, DefaultMomentumWindow)
	cfg.MinBars = p.int("min_bars", c.MinBars, DefaultMinBars)
	cfg.ProfitThreshold = p.decimal("profit_threshold", c.ProfitThreshold, DefaultProfitThreshold)
	cfg.StopLossThreshold = p.decimal("stop_loss_threshold", c.StopLossThreshold, DefaultStopLossThreshold)
	cfg.TrendFilter = c.TrendFilter
	cfg.TrendPeriod = p.int("trend_period", c.TrendPeriod, DefaultTrendPeriod)
	cfg.TrendMA = indicators.MAType(strings.ToLower(orDefault(c.TrendMA, DefaultTrendMA)))
	cfg.DecisionInterval = p.duration("decision_interval", c.DecisionInterval, DefaultDecisionInterval)
	cfg.StoreCapacity = p.int("store_capacity", c.StoreCapacity, DefaultStoreCapacity)
	cfg.SeedLimit = p.int("seed_limit", c.SeedLimit, DefaultSeedLimit)
	cfg.TradeAmount = p.decimal("trade_amount", c.TradeAmount, DefaultTradeAmount)
	cfg.TradeAmountPercent = p.decimal("trade_amount_percent", c.TradeAmountPercent, "0")
	cfg.Leverage = p.int("leverage", c.Leverage, DefaultLeverage)
	cfg.LiveTrading = c.LiveTrading

	if c.StepSize != "" || c.MinQty != "" || c.MinNotional != "" {
		cfg.Filters = &domain.SymbolFilters{
			StepSize:    p.decimal("step_size", c.StepSize, "0"),
			MinQty:      p.decimal("min_qty", c.MinQty, "0"),
			MinNotional: p.decimal("min_notional", c.MinNotional, "0"),
		}
	}

	if p.err != nil {
		return Config{}, p.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "pair %s", cfg.Pair)
	}
	return cfg, nil
}

// Validate checks ranges of every tunable.
func (c Config) Validate() error {
	switch {
	case c.LookbackPeriod < 1:
		return errors.Errorf("lookback_period must be at least 1, got %d", c.LookbackPeriod)
	case !c.RisingMultiplier.IsPositive():
		return errors.Errorf("rising_multiplier must be positive, got %s", c.RisingMultiplier)
	case c.ClimaxMultiplier.LessThanOrEqual(c.RisingMultiplier):
		return errors.Errorf("climax_multiplier %s must exceed rising_multiplier %s", c.ClimaxMultiplier, c.RisingMultiplier)
	case c.FusionWeight < 0 || c.FusionWeight > 1:
		return errors.Errorf("fusion_weight must be within [0, 1], got %v", c.FusionWeight)
	case c.AlertFreshness <= 0:
		return errors.Errorf("alert_freshness must be positive, got %s", c.AlertFreshness)
	case c.Cooldown < 0:
		return errors.Errorf("cooldown must not be negative, got %s", c.Cooldown)
	case c.MinPriceChange.IsNegative():
		return errors.Errorf("min_price_change must not be negative, got %s", c.MinPriceChange)
	case c.MomentumWindow < 2:
		return errors.Errorf("momentum_window must be at least 2, got %d", c.MomentumWindow)
	case c.MinBars < 1:
		return errors.Errorf("min_bars must be at least 1, got %d", c.MinBars)
	case c.ProfitThreshold.IsNegative():
		return errors.Errorf("profit_threshold must not be negative, got %s", c.ProfitThreshold)
	case c.StopLossThreshold.IsNegative():
		return errors.Errorf("stop_loss_threshold must not be negative, got %s", c.StopLossThreshold)
	case c.TrendPeriod < 2:
		return errors.Errorf("trend_period must be at least 2, got %d", c.TrendPeriod)
	case c.TrendMA != indicators.MATypeSMA && c.TrendMA != indicators.MATypeEMA:
		return errors.Errorf("trend_ma must be sma or ema, got %q", c.TrendMA)
	case c.DecisionInterval <= 0:
		return errors.Errorf("decision_interval must be positive, got %s", c.DecisionInterval)
	case c.StoreCapacity <= c.LookbackPeriod:
		return errors.Errorf("store_capacity %d must exceed lookback_period %d", c.StoreCapacity, c.LookbackPeriod)
	case c.SeedLimit < 0 || c.SeedLimit > binanceMaxKlinesPerSeed:
		return errors.Errorf("seed_limit must be within [0, %d], got %d", binanceMaxKlinesPerSeed, c.SeedLimit)
	case c.TradeAmount.IsNegative():
		return errors.Errorf("trade_amount must not be negative, got %s", c.TradeAmount)
	case c.TradeAmountPercent.IsNegative() || c.TradeAmountPercent.GreaterThan(decimal.NewFromInt(100)):
		return errors.Errorf("trade_amount_percent must be within [0, 100], got %s", c.TradeAmountPercent)
	case c.Leverage < 1 || c.Leverage > maxLeverage:
		return errors.Errorf("leverage must be within [1, %d], got %d", maxLeverage, c.Leverage)
	}
	if c.Filters != nil {
		return c.Filters.Validate()
	}
	return nil
}

// RiskBudget returns the sizing policy of this symbol.
func (c Config) RiskBudget() domain.RiskBudget {
	if c.TradeAmountPercent.IsPositive() {
		return domain.NewPercentRiskBudget(c.TradeAmountPercent, c.Leverage)
	}
	return domain.NewFixedRiskBudget(c.TradeAmount, c.Leverage)
}

var intervalUnits = map[byte]time.Duration{
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

var binanceIntervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true, "3d": true, "1w": true,
}

// IntervalDuration converts a Binance kline interval such as 15m or 1d.
func IntervalDuration(interval string) (time.Duration, error) {
	if !binanceIntervals[interval] {
		return 0, errors.Errorf("unsupported interval %q", interval)
	}
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil {
		return 0, errors.Wrapf(err, "invalid interval %q", interval)
	}
	return time.Duration(n) * intervalUnits[interval[len(interval)-1]], nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

// parser keeps the first error so Parse reads as a flat list of fields.
type parser struct {
	err error
}

func (p *parser) fail(key, value, kind string, err error) {
	if p.err == nil {
		p.err = errors.Wrap(err, fmt.Sprintf("incorrect '%s' param %q (must be %s)", key, value, kind))
	}
}

func (p *parser) int(key, value string, def int) int {
	if strings.TrimSpace(value) == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		p.fail(key, value, "an integer", err)
	}
	return n
}

func (p *parser) float(key, value string, def float64) float64 {
	if strings.TrimSpace(value) == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		p.fail(key, value, "a number", err)
	}
	return f
}

func (p *parser) decimal(key, value, def string) decimal.Decimal {
	d, err := decimal.NewFromString(orDefault(value, def))
	if err != nil {
		p.fail(key, value, "a decimal", err)
	}
	return d
}

func (p *parser) duration(key, value string, def time.Duration) time.Duration {
	if strings.TrimSpace(value) == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		p.fail(key, value, "a duration like 5s", err)
	}
	return d
}
