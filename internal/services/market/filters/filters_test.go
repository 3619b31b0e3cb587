package filters

import (
	"context"
	"testing"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/pvsra/internal/domain"
)

type mockExchangeInfo struct {
	mock.Mock
}

func (m *mockExchangeInfo) ExchangeInfo(ctx context.Context) (*futures.ExchangeInfo, error) {
	args := m.Called(ctx)
	info, _ := args.Get(0).(*futures.ExchangeInfo)
	return info, args.Error(1)
}

func symbolInfo(symbol, step, minQty, notional string) futures.Symbol {
	return futures.Symbol{
		Symbol: symbol,
		Filters: []map[string]interface{}{
			{"filterType": "LOT_SIZE", "stepSize": step, "minQty": minQty, "maxQty": "1000000"},
			{"filterType": "MIN_NOTIONAL", "notional": notional},
		},
	}
}

func TestProvider_StaticTableWins(t *testing.T) {
	info := &mockExchangeInfo{}
	p := NewProvider(map[string]domain.SymbolFilters{
		"suiusdt": {StepSize: decimal.RequireFromString("0.1"), MinQty: decimal.RequireFromString("0.1"), MinNotional: decimal.RequireFromString("5")},
	}, info)

	f, err := p.Filters(context.Background(), "SUIUSDT")
	require.NoError(t, err)
	assert.Equal(t, "0.1", f.StepSize.String())
	info.AssertNotCalled(t, "ExchangeInfo", mock.Anything)
}

func TestProvider_ExchangeInfoCached(t *testing.T) {
	info := &mockExchangeInfo{}
	info.On("ExchangeInfo", mock.Anything).Return(&futures.ExchangeInfo{
		Symbols: []futures.Symbol{
			symbolInfo("BTCUSDT", "0.001", "0.001", "100"),
			symbolInfo("SUIUSDT", "0.1", "0.1", "5"),
		},
	}, nil).Once()

	p := NewProvider(nil, info)

	f, err := p.Filters(context.Background(), "btcusdt")
	require.NoError(t, err)
	assert.Equal(t, "0.001", f.StepSize.String())
	assert.Equal(t, "100", f.MinNotional.String())

	f, err = p.Filters(context.Background(), "SUIUSDT")
	require.NoError(t, err)
	assert.Equal(t, "5", f.MinNotional.String())

	_, err = p.Filters(context.Background(), "DOGEUSDT")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidFilters))

	info.AssertExpectations(t)
}

func TestProvider_Errors(t *testing.T) {
	_, err := NewProvider(nil, nil).Filters(context.Background(), "SUIUSDT")
	assert.True(t, errors.Is(err, domain.ErrInvalidFilters))

	info := &mockExchangeInfo{}
	info.On("ExchangeInfo", mock.Anything).Return(nil, errors.New("timeout"))
	_, err = NewProvider(nil, info).Filters(context.Background(), "SUIUSDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exchange info")
}

func TestFromSymbol(t *testing.T) {
	s := symbolInfo("SUIUSDT", "0", "0.1", "5")
	_, err := FromSymbol(&s)
	assert.True(t, errors.Is(err, domain.ErrInvalidFilters))

	s = futures.Symbol{Symbol: "XUSDT"}
	_, err = FromSymbol(&s)
	assert.True(t, errors.Is(err, domain.ErrInvalidFilters))
}
