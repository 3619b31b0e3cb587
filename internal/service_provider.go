package internal

import (
	"github.com/adshao/go-binance/v2/futures"
	"github.com/vadiminshakov/pvsra/config"
	"github.com/vadiminshakov/pvsra/internal/domain"
	"github.com/vadiminshakov/pvsra/internal/services/market/collector"
	"github.com/vadiminshakov/pvsra/internal/services/market/feed"
	"github.com/vadiminshakov/pvsra/internal/services/market/filters"
	"go.uber.org/zap"
)

// ServiceProvider holds the Binance futures market services shared by all monitors.
type ServiceProvider struct {
	client  *futures.Client
	history *collector.BinanceBarProvider
	feed    *feed.BinanceFeed
	filters *filters.Provider
}

// NewServiceProvider builds market services for client. Static filters from
// configs take precedence over exchange info.
func NewServiceProvider(client *futures.Client, configs []config.Config, logger *zap.Logger) *ServiceProvider {
	static := make(map[string]domain.SymbolFilters)
	for _, c := range configs {
		if c.Filters != nil {
			static[c.Symbol()] = *c.Filters
		}
	}

	return &ServiceProvider{
		client:  client,
		history: collector.NewBinanceBarProvider(collector.NewFuturesKlineService(client)),
		feed:    feed.NewBinanceFeed(logger),
		filters: filters.NewProvider(static, filters.NewFuturesExchangeInfo(client)),
	}
}

func (p *ServiceProvider) Client() *futures.Client {
	return p.client
}

func (p *ServiceProvider) History() BarHistory {
	return p.history
}

func (p *ServiceProvider) Feed() BarFeed {
	return p.feed
}

func (p *ServiceProvider) Filters() FilterSource {
	return p.filters
}
