package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/pvsra/internal/domain"
	"go.uber.org/zap"
)

func testAlert(price string) domain.Alert {
	barTime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.Alert{
		Symbol:      "SUIUSDT",
		Timestamp:   barTime.Add(time.Minute),
		BarTime:     barTime,
		Condition:   domain.ConditionClimax,
		Direction:   domain.DirectionBullish,
		Price:       decimal.RequireFromString(price),
		Volume:      decimal.NewFromInt(250),
		VolumeRatio: decimal.RequireFromString("2.5"),
		Text:        domain.AlertText(domain.ConditionClimax, domain.DirectionBullish),
	}
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	args := m.Called(ctx, params)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

func TestTelegram_Notify(t *testing.T) {
	sender := &mockSender{}
	sender.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *bot.SendMessageParams) bool {
		return p.ChatID == int64(42) && p.ParseMode == models.ParseModeMarkdown
	})).Return(&models.Message{}, nil).Once()

	tg := NewTelegramWithSender(sender, 42, zap.NewNop())
	require.NoError(t, tg.Notify(context.Background(), "SUIUSDT", testAlert("4.58")))
	sender.AssertExpectations(t)

	sender.On("SendMessage", mock.Anything, mock.Anything).Return(nil, errors.New("forbidden")).Once()
	err := tg.Notify(context.Background(), "SUIUSDT", testAlert("4.58"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden")
}

func TestFormatMarkdown(t *testing.T) {
	msg := FormatMarkdown("SUIUSDT", testAlert("4.58"))
	assert.Contains(t, msg, "*SUIUSDT* Bull Climax - Potential Reversal")
	assert.Contains(t, msg, "Price: `4.58`")
	assert.Contains(t, msg, "(2.50x avg)")
	assert.Contains(t, msg, "2024-03-01 12:00 UTC")
}

func TestRedisPublisher(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	pub := NewRedisPublisher(client, "", 3)

	sub := client.Subscribe(ctx, pub.Channel())
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	prices := []string{"1", "2", "3", "4", "5"}
	for _, p := range prices {
		require.NoError(t, pub.Notify(ctx, "SUIUSDT", testAlert(p)))
	}

	history, err := mr.List("pvsra:alerts:SUIUSDT:history")
	require.NoError(t, err)
	assert.Len(t, history, 3)

	latest, err := mr.Get("pvsra:alerts:SUIUSDT:latest")
	require.NoError(t, err)
	var a domain.Alert
	require.NoError(t, json.Unmarshal([]byte(latest), &a))
	assert.Equal(t, "5", a.Price.String())

	recent, err := pub.Recent(ctx, "SUIUSDT", 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "5", recent[0].Price.String())
	assert.Equal(t, "3", recent[2].Price.String())

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &a))
	assert.Equal(t, "1", a.Price.String())
}

func TestConsole_Notify(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	require.NoError(t, c.Notify(context.Background(), "SUIUSDT", testAlert("4.58")))
	assert.Contains(t, buf.String(), "SUIUSDT")
	assert.Contains(t, buf.String(), "Bull Climax - Potential Reversal")
	assert.Contains(t, buf.String(), "price=4.58")
}
