package config

import (
	"flag"
	"strconv"

	"github.com/pkg/errors"
)

// cliFlags is the single-symbol fallback used when no --config is given.
type cliFlags struct {
	pair                *string
	interval            *string
	lookback            *int
	climax              *string
	rising              *string
	requireConfirmation *bool
	tradeAmount         *string
	leverage            *int
	liveTrading         *bool
}

func registerFlags(fs *flag.FlagSet) *cliFlags {
	return &cliFlags{
		pair:                fs.String("pair", "", "trade pair, example: SUI_USDT"),
		interval:            fs.String("interval", DefaultInterval, "kline interval, example: 1m"),
		lookback:            fs.Int("lookback", DefaultLookbackPeriod, "bars used for the volume average"),
		climax:              fs.String("climax", DefaultClimaxMultiplier, "climax volume multiplier"),
		rising:              fs.String("rising", DefaultRisingMultiplier, "rising volume multiplier"),
		requireConfirmation: fs.Bool("require-confirmation", false, "trade only when a fresh alert confirms"),
		tradeAmount:         fs.String("amount", DefaultTradeAmount, "margin per trade in quote asset"),
		leverage:            fs.Int("leverage", DefaultLeverage, "futures leverage"),
		liveTrading:         fs.Bool("live", false, "place real orders instead of simulating"),
	}
}

func (f *cliFlags) toConfigTmp() (ConfigTmp, error) {
	if *f.pair == "" {
		return ConfigTmp{}, errors.New("either --config or --pair must be provided")
	}
	return ConfigTmp{
		Pair:                *f.pair,
		Interval:            *f.interval,
		LookbackPeriod:      strconv.Itoa(*f.lookback),
		ClimaxMultiplier:    *f.climax,
		RisingMultiplier:    *f.rising,
		RequireConfirmation: *f.requireConfirmation,
		TradeAmount:         *f.tradeAmount,
		Leverage:            strconv.Itoa(*f.leverage),
		LiveTrading:         *f.liveTrading,
	}, nil
}
