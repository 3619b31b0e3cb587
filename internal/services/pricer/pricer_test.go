package pricer

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/pvsra/internal/domain"
	"github.com/vadiminshakov/pvsra/internal/services/barstore"
)

func TestBarPricer(t *testing.T) {
	store := barstore.New(10, time.Minute)
	p := NewBarPricer(store)

	_, err := p.GetPrice(context.Background(), "SUIUSDT")
	require.Error(t, err)

	open := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	price := decimal.RequireFromString("4.58")
	require.NoError(t, store.UpsertProvisional("SUIUSDT", domain.Bar{
		OpenTime: open, Open: price, High: price, Low: price, Close: price, Volume: decimal.NewFromInt(1),
	}))

	got, err := p.GetPrice(context.Background(), "SUIUSDT")
	require.NoError(t, err)
	assert.Equal(t, "4.58", got.String())
}
