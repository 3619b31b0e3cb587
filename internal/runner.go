package internal

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SymbolRunner is one symbol's monitoring loop.
type SymbolRunner interface {
	Symbol() string
	Run(ctx context.Context) error
}

// RunMonitors runs every monitor independently until ctx is done. A monitor
// that stops with an error is logged and the others keep running. An error is
// returned only when every monitor has failed.
func RunMonitors(ctx context.Context, logger *zap.Logger, monitors ...SymbolRunner) error {
	var (
		mu     sync.Mutex
		failed []error
	)

	g := new(errgroup.Group)
	for _, mon := range monitors {
		g.Go(func() error {
			err := mon.Run(ctx)
			if err == nil || (ctx.Err() != nil && errors.Is(err, ctx.Err())) {
				logger.Info("monitor stopped", zap.String("symbol", mon.Symbol()))
				return nil
			}
			logger.Error("monitor failed, other symbols keep running",
				zap.String("symbol", mon.Symbol()), zap.Error(err))

			mu.Lock()
			failed = append(failed, errors.Wrap(err, mon.Symbol()))
			mu.Unlock()
			return nil
		})
		logger.Info("started", zap.String("symbol", mon.Symbol()))
	}
	_ = g.Wait()

	if len(monitors) > 0 && len(failed) == len(monitors) {
		return errors.Wrapf(failed[0], "all %d monitors failed", len(monitors))
	}
	return ctx.Err()
}
