package events

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/pvsra/internal/domain"
	"go.uber.org/zap"
)

const defaultDeliveryTimeout = 5 * time.Second

// SubscriberFunc receives an alert for symbol. The context carries the
// delivery deadline.
type SubscriberFunc func(ctx context.Context, symbol string, alert domain.Alert) error

type subscriber struct {
	name string
	fn   SubscriberFunc
}

type latestAlert struct {
	alert domain.Alert
	at    time.Time
}

// AlertStream turns closed classified bars into alerts and delivers them to
// registered subscribers synchronously, in registration order.
type AlertStream struct {
	logger  *zap.Logger
	now     func() time.Time
	timeout time.Duration
	onFail  func(name string, err error)

	mu     sync.RWMutex
	subs   []subscriber
	latest map[string]latestAlert
	closed bool

	fanout *Broadcaster[domain.Alert]
}

// AlertStreamOption configures an AlertStream.
type AlertStreamOption func(*AlertStream)

// WithClock overrides the arrival clock.
func WithClock(now func() time.Time) AlertStreamOption {
	return func(s *AlertStream) {
		s.now = now
	}
}

// WithDeliveryTimeout bounds the context handed to each subscriber.
func WithDeliveryTimeout(d time.Duration) AlertStreamOption {
	return func(s *AlertStream) {
		s.timeout = d
	}
}

// WithFailureHook is called for every subscriber error or panic.
func WithFailureHook(fn func(name string, err error)) AlertStreamOption {
	return func(s *AlertStream) {
		s.onFail = fn
	}
}

// NewAlertStream creates an empty stream.
func NewAlertStream(logger *zap.Logger, opts ...AlertStreamOption) *AlertStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AlertStream{
		logger:  logger,
		now:     time.Now,
		timeout: defaultDeliveryTimeout,
		latest:  make(map[string]latestAlert),
		fanout:  NewBroadcaster[domain.Alert](256),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn. Subscribers are called in registration order.
func (s *AlertStream) Subscribe(name string, fn SubscriberFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, subscriber{name: name, fn: fn})
}

// SubscribeChan returns a buffered channel of alerts for consumers that must
// not run on the ingestion path. Full channels drop alerts.
func (s *AlertStream) SubscribeChan() (<-chan domain.Alert, func()) {
	ch := s.fanout.Subscribe()
	return ch, func() { s.fanout.Unsubscribe(ch) }
}

// OnBarClosed is called once per finalized bar. It returns the alert when the
// bar carried one and it was delivered.
func (s *AlertStream) OnBarClosed(ctx context.Context, symbol string, cb domain.ClassifiedBar) (domain.Alert, bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Alert{}, false
	}
	now := s.now()
	alert, ok := cb.ToAlert(symbol, now)
	if !ok {
		s.mu.Unlock()
		return domain.Alert{}, false
	}
	s.latest[symbol] = latestAlert{alert: alert, at: now}
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	s.logger.Info("volume alert",
		zap.String("symbol", symbol),
		zap.String("alert", alert.Text),
		zap.String("price", alert.Price.String()),
		zap.String("volume_ratio", alert.VolumeRatio.StringFixed(2)))

	for _, sub := range subs {
		s.deliver(ctx, sub, symbol, alert)
	}
	s.fanout.Publish(alert)
	return alert, true
}

// Latest returns the most recent alert for symbol and when it arrived.
// Old alerts are kept; staleness is decided by the reader.
func (s *AlertStream) Latest(symbol string) (domain.Alert, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.latest[symbol]
	return l.alert, l.at, ok
}

// Close stops delivery. Cached alerts stay readable.
func (s *AlertStream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.fanout.Close()
}

func (s *AlertStream) deliver(ctx context.Context, sub subscriber, symbol string, alert domain.Alert) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.fail(sub.name, symbol, errors.Errorf("panic: %v", r))
		}
	}()

	if err := sub.fn(ctx, symbol, alert); err != nil {
		s.fail(sub.name, symbol, err)
	}
}

func (s *AlertStream) fail(name, symbol string, err error) {
	s.logger.Error("alert subscriber failed",
		zap.String("subscriber", name),
		zap.String("symbol", symbol),
		zap.Error(err))
	if s.onFail != nil {
		s.onFail(name, err)
	}
}
