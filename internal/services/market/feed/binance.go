// Package feed streams live kline updates from Binance futures as bar updates.
package feed

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/pvsra/internal/domain"
	"github.com/vadiminshakov/pvsra/internal/services/market/collector"
	"github.com/vadiminshakov/pvsra/pkg/retrier"
	"go.uber.org/zap"
)

const defaultBuffer = 64

// ServeFunc matches futures.WsKlineServe.
type ServeFunc func(symbol, interval string, handler futures.WsKlineHandler, errHandler futures.ErrHandler) (doneC, stopC chan struct{}, err error)

// BinanceFeed converts kline websocket events into domain.BarUpdate values and
// reconnects when the connection drops.
type BinanceFeed struct {
	serve   ServeFunc
	retrier *retrier.Retrier
	logger  *zap.Logger
	buffer  int
}

// NewBinanceFeed creates a feed on top of futures.WsKlineServe.
func NewBinanceFeed(logger *zap.Logger) *BinanceFeed {
	return NewBinanceFeedWithServe(logger, futures.WsKlineServe)
}

// NewBinanceFeedWithServe creates a feed with a custom websocket dialer.
func NewBinanceFeedWithServe(logger *zap.Logger, serve ServeFunc) *BinanceFeed {
	f := &BinanceFeed{serve: serve, logger: logger, buffer: defaultBuffer}
	f.retrier = retrier.New(
		retrier.WithMaxRetries(retrier.Unlimited),
		retrier.WithInitialInterval(time.Second),
		retrier.WithMaxInterval(time.Minute),
		retrier.WithOnRetry(func(attempt int, err error, wait time.Duration) {
			logger.Warn("kline stream reconnecting",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err))
		}),
	)
	return f
}

// Stream opens the kline stream for symbol. The returned channel is closed
// once ctx is done. Only the first connection error is returned directly;
// later disconnects are retried in the background.
func (f *BinanceFeed) Stream(ctx context.Context, symbol, interval string) (<-chan domain.BarUpdate, error) {
	out := make(chan domain.BarUpdate, f.buffer)

	doneC, stopC, err := f.connect(ctx, symbol, interval, out)
	if err != nil {
		close(out)
		return nil, errors.Wrapf(err, "failed to open kline stream for %s", symbol)
	}

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				close(stopC)
				<-doneC
				return
			case <-doneC:
			}

			err := f.retrier.Do(ctx, func(ctx context.Context) error {
				var err error
				doneC, stopC, err = f.connect(ctx, symbol, interval, out)
				return err
			})
			if err != nil {
				// only ctx cancellation ends an unlimited retrier
				return
			}
			f.logger.Info("kline stream reconnected", zap.String("symbol", symbol))
		}
	}()

	return out, nil
}

func (f *BinanceFeed) connect(ctx context.Context, symbol, interval string, out chan<- domain.BarUpdate) (chan struct{}, chan struct{}, error) {
	handler := func(event *futures.WsKlineEvent) {
		update, err := EventToUpdate(event)
		if err != nil {
			f.logger.Warn("dropping malformed kline event", zap.String("symbol", symbol), zap.Error(err))
			return
		}
		select {
		case out <- update:
		case <-ctx.Done():
		}
	}
	errHandler := func(err error) {
		f.logger.Error("kline stream error", zap.String("symbol", symbol), zap.Error(err))
	}

	return f.serve(symbol, interval, handler, errHandler)
}

// EventToUpdate maps a kline event to a bar update. IsFinal marks a closed bar.
func EventToUpdate(event *futures.WsKlineEvent) (domain.BarUpdate, error) {
	if event == nil {
		return domain.BarUpdate{}, errors.New("nil kline event")
	}
	k := event.Kline
	bar, err := collector.KlineToBar(k.StartTime, k.Open, k.High, k.Low, k.Close, k.Volume)
	if err != nil {
		return domain.BarUpdate{}, err
	}

	symbol := event.Symbol
	if symbol == "" {
		symbol = k.Symbol
	}

	return domain.BarUpdate{Symbol: symbol, Bar: bar, Closed: k.IsFinal}, nil
}
