package clients

import (
	"github.com/adshao/go-binance/v2/futures"
)

// NewFuturesClient returns a USDⓈ-M futures client. Empty keys give a client
// that can only read public market data.
func NewFuturesClient(apiKey, apiSecret string) *futures.Client {
	return futures.NewClient(apiKey, apiSecret)
}
