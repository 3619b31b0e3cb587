package internal

import (
	"context"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/pvsra/config"
	"github.com/vadiminshakov/pvsra/internal/services/pricer"
	"github.com/vadiminshakov/pvsra/internal/services/trader"
	"github.com/vadiminshakov/pvsra/internal/storage/simstate"
	"go.uber.org/zap"
)

// NewTrader returns the trader and pricer for cfg. Live trading uses the
// futures account and applies the configured leverage. Otherwise orders are
// simulated at the last bar close, with state kept per symbol under stateDir.
func NewTrader(ctx context.Context, cfg config.Config, client *futures.Client, bars pricer.LastBarSource, stateDir string, logger *zap.Logger) (trader.Trader, pricer.Pricer, error) {
	if cfg.LiveTrading {
		if client == nil {
			return nil, nil, errors.New("live trading requires a futures client")
		}
		t, err := trader.NewFuturesTrader(client, cfg.Leverage)
		if err != nil {
			return nil, nil, err
		}
		if err := t.SetLeverage(ctx, cfg.Symbol()); err != nil {
			return nil, nil, err
		}
		return t, pricer.NewFuturesPricer(client), nil
	}

	p := pricer.NewBarPricer(bars)
	store, err := simstate.NewStore(stateDir, cfg.Symbol())
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open simulated state")
	}
	t, err := trader.NewSimulateTrader(cfg.Pair.To, cfg.Leverage, logger, p, store)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create simulated trader")
	}
	return t, p, nil
}
