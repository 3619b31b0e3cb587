package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/pvsra/internal/domain"
	"go.uber.org/zap"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func climaxBar(i int) domain.ClassifiedBar {
	return domain.ClassifiedBar{
		Bar: domain.Bar{
			OpenTime: t0.Add(time.Duration(i) * time.Minute),
			Close:    decimal.NewFromInt(int64(100 + i)),
			Volume:   decimal.NewFromInt(2500),
		},
		VolumeRatio:  decimal.NewFromFloat(2.5),
		Condition:    domain.ConditionClimax,
		Direction:    domain.DirectionBullish,
		Alert:        domain.AlertText(domain.ConditionClimax, domain.DirectionBullish),
		Classifiable: true,
	}
}

type recorder struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (r *recorder) on(_ context.Context, _ string, a domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func TestAlertStream_OrderedDeliveryWithoutDuplicates(t *testing.T) {
	clock := t0
	stream := NewAlertStream(zap.NewNop(), WithClock(func() time.Time { return clock }))
	rec := &recorder{}
	stream.Subscribe("recorder", rec.on)

	const n = 25
	for i := 0; i < n; i++ {
		clock = t0.Add(time.Duration(i) * time.Minute)
		_, ok := stream.OnBarClosed(context.Background(), "SUIUSDT", climaxBar(i))
		require.True(t, ok)
	}

	require.Len(t, rec.alerts, n)
	for i := 1; i < n; i++ {
		assert.True(t, rec.alerts[i].BarTime.After(rec.alerts[i-1].BarTime))
		assert.True(t, rec.alerts[i].Timestamp.After(rec.alerts[i-1].Timestamp))
	}
}

func TestAlertStream_NormalBarProducesNothing(t *testing.T) {
	stream := NewAlertStream(zap.NewNop())
	rec := &recorder{}
	stream.Subscribe("recorder", rec.on)

	_, ok := stream.OnBarClosed(context.Background(), "SUIUSDT", domain.ClassifiedBar{Condition: domain.ConditionNormal})
	assert.False(t, ok)
	assert.Empty(t, rec.alerts)

	_, _, ok = stream.Latest("SUIUSDT")
	assert.False(t, ok)
}

func TestAlertStream_SubscriberFailuresAreIsolated(t *testing.T) {
	var failures []string
	stream := NewAlertStream(zap.NewNop(), WithFailureHook(func(name string, err error) {
		failures = append(failures, name)
	}))

	var order []string
	stream.Subscribe("panics", func(context.Context, string, domain.Alert) error {
		order = append(order, "panics")
		panic("boom")
	})
	stream.Subscribe("errors", func(context.Context, string, domain.Alert) error {
		order = append(order, "errors")
		return errors.New("telegram down")
	})
	stream.Subscribe("healthy", func(context.Context, string, domain.Alert) error {
		order = append(order, "healthy")
		return nil
	})

	alert, ok := stream.OnBarClosed(context.Background(), "SUIUSDT", climaxBar(0))
	require.True(t, ok)
	assert.Equal(t, "Bull Climax - Potential Reversal", alert.Text)
	assert.Equal(t, []string{"panics", "errors", "healthy"}, order)
	assert.Equal(t, []string{"panics", "errors"}, failures)
}

func TestAlertStream_SubscriberGetsDeadline(t *testing.T) {
	stream := NewAlertStream(zap.NewNop(), WithDeliveryTimeout(time.Second))

	var hasDeadline bool
	stream.Subscribe("deadline", func(ctx context.Context, _ string, _ domain.Alert) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	})
	stream.OnBarClosed(context.Background(), "SUIUSDT", climaxBar(0))
	assert.True(t, hasDeadline)
}

func TestAlertStream_LatestPerSymbol(t *testing.T) {
	clock := t0
	stream := NewAlertStream(zap.NewNop(), WithClock(func() time.Time { return clock }))

	stream.OnBarClosed(context.Background(), "SUIUSDT", climaxBar(0))
	clock = t0.Add(time.Minute)
	stream.OnBarClosed(context.Background(), "BTCUSDT", climaxBar(1))

	alert, at, ok := stream.Latest("SUIUSDT")
	require.True(t, ok)
	assert.Equal(t, "SUIUSDT", alert.Symbol)
	assert.True(t, at.Equal(t0))

	_, at, ok = stream.Latest("BTCUSDT")
	require.True(t, ok)
	assert.True(t, at.Equal(t0.Add(time.Minute)))
}

func TestAlertStream_CloseStopsDelivery(t *testing.T) {
	stream := NewAlertStream(zap.NewNop())
	rec := &recorder{}
	stream.Subscribe("recorder", rec.on)
	ch, _ := stream.SubscribeChan()

	stream.OnBarClosed(context.Background(), "SUIUSDT", climaxBar(0))
	stream.Close()
	_, ok := stream.OnBarClosed(context.Background(), "SUIUSDT", climaxBar(1))

	assert.False(t, ok)
	assert.Len(t, rec.alerts, 1)

	_, _, ok = stream.Latest("SUIUSDT")
	assert.True(t, ok, "cached alert survives close")

	got := <-ch
	assert.Equal(t, "SUIUSDT", got.Symbol)
	_, open := <-ch
	assert.False(t, open)
}

func TestBroadcaster_DropsForSlowReaders(t *testing.T) {
	b := NewBroadcaster[int](1)
	ch := b.Subscribe()

	b.Publish(1)
	b.Publish(2)

	assert.Equal(t, 1, <-ch)
	assert.Equal(t, uint64(1), b.Dropped())

	b.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)
	b.Publish(3)
}
