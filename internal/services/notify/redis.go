package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/vadiminshakov/pvsra/internal/domain"
)

const (
	DefaultRedisPrefix  = "pvsra"
	DefaultRedisHistory = 20
)

// RedisPublisher publishes alerts on a pub/sub channel and keeps a short
// per-symbol history list and a latest key for late readers.
type RedisPublisher struct {
	client  *redis.Client
	prefix  string
	history int64
}

func NewRedisPublisher(client *redis.Client, prefix string, history int) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if history <= 0 {
		history = DefaultRedisHistory
	}
	return &RedisPublisher{client: client, prefix: prefix, history: int64(history)}
}

// Channel is the pub/sub channel all alerts go to.
func (p *RedisPublisher) Channel() string {
	return p.prefix + ":alerts"
}

func (p *RedisPublisher) historyKey(symbol string) string {
	return fmt.Sprintf("%s:alerts:%s:history", p.prefix, symbol)
}

func (p *RedisPublisher) latestKey(symbol string) string {
	return fmt.Sprintf("%s:alerts:%s:latest", p.prefix, symbol)
}

// Notify publishes one alert. It has the alert subscriber signature.
func (p *RedisPublisher) Notify(ctx context.Context, symbol string, alert domain.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return errors.Wrap(err, "failed to encode alert")
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, p.Channel(), payload)
		pipe.LPush(ctx, p.historyKey(symbol), payload)
		pipe.LTrim(ctx, p.historyKey(symbol), 0, p.history-1)
		pipe.Set(ctx, p.latestKey(symbol), payload, 0)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to publish alert for %s", symbol)
	}
	return nil
}

// Recent returns up to n alerts for symbol, newest first.
func (p *RedisPublisher) Recent(ctx context.Context, symbol string, n int) ([]domain.Alert, error) {
	if n <= 0 {
		n = int(p.history)
	}
	raw, err := p.client.LRange(ctx, p.historyKey(symbol), 0, int64(n-1)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read alert history for %s", symbol)
	}

	alerts := make([]domain.Alert, 0, len(raw))
	for _, item := range raw {
		var a domain.Alert
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			return nil, errors.Wrap(err, "failed to decode alert")
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}
