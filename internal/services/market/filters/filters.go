// Package filters resolves the exchange sizing filters for a symbol.
package filters

import (
	"context"
	"strings"
	"sync"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/pvsra/internal/domain"
)

// ExchangeInfoService abstracts the futures exchange info endpoint.
type ExchangeInfoService interface {
	ExchangeInfo(ctx context.Context) (*futures.ExchangeInfo, error)
}

// FuturesExchangeInfo calls Binance futures.
type FuturesExchangeInfo struct {
	client *futures.Client
}

func NewFuturesExchangeInfo(client *futures.Client) *FuturesExchangeInfo {
	return &FuturesExchangeInfo{client: client}
}

func (s *FuturesExchangeInfo) ExchangeInfo(ctx context.Context) (*futures.ExchangeInfo, error) {
	return s.client.NewExchangeInfoService().Do(ctx)
}

// Provider returns filters from a static table first and falls back to
// exchange info, caching what it fetched.
type Provider struct {
	static map[string]domain.SymbolFilters
	info   ExchangeInfoService

	mu    sync.Mutex
	cache map[string]domain.SymbolFilters
}

// NewProvider creates a provider. info may be nil when every symbol is in the static table.
func NewProvider(static map[string]domain.SymbolFilters, info ExchangeInfoService) *Provider {
	table := make(map[string]domain.SymbolFilters, len(static))
	for symbol, f := range static {
		table[strings.ToUpper(symbol)] = f
	}
	return &Provider{
		static: table,
		info:   info,
		cache:  make(map[string]domain.SymbolFilters),
	}
}

// Filters returns validated filters for symbol.
func (p *Provider) Filters(ctx context.Context, symbol string) (domain.SymbolFilters, error) {
	symbol = strings.ToUpper(symbol)

	if f, ok := p.static[symbol]; ok {
		return f, f.Validate()
	}

	p.mu.Lock()
	f, ok := p.cache[symbol]
	p.mu.Unlock()
	if ok {
		return f, nil
	}

	if p.info == nil {
		return domain.SymbolFilters{}, errors.Wrapf(domain.ErrInvalidFilters, "no filters configured for %s", symbol)
	}

	info, err := p.info.ExchangeInfo(ctx)
	if err != nil {
		return domain.SymbolFilters{}, errors.Wrap(err, "failed to fetch exchange info")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range info.Symbols {
		s := &info.Symbols[i]
		parsed, err := FromSymbol(s)
		if err != nil {
			continue
		}
		p.cache[s.Symbol] = parsed
	}

	f, ok = p.cache[symbol]
	if !ok {
		return domain.SymbolFilters{}, errors.Wrapf(domain.ErrInvalidFilters, "symbol %s not listed", symbol)
	}
	return f, nil
}

// FromSymbol extracts LOT_SIZE and MIN_NOTIONAL from an exchange info entry.
func FromSymbol(s *futures.Symbol) (domain.SymbolFilters, error) {
	lot := s.LotSizeFilter()
	if lot == nil {
		return domain.SymbolFilters{}, errors.Wrapf(domain.ErrInvalidFilters, "%s has no LOT_SIZE filter", s.Symbol)
	}

	step, err := decimal.NewFromString(lot.StepSize)
	if err != nil {
		return domain.SymbolFilters{}, errors.Wrap(err, "failed to parse step size")
	}
	minQty, err := decimal.NewFromString(lot.MinQuantity)
	if err != nil {
		return domain.SymbolFilters{}, errors.Wrap(err, "failed to parse min quantity")
	}

	minNotional := decimal.Zero
	if mn := s.MinNotionalFilter(); mn != nil && mn.Notional != "" {
		minNotional, err = decimal.NewFromString(mn.Notional)
		if err != nil {
			return domain.SymbolFilters{}, errors.Wrap(err, "failed to parse min notional")
		}
	}

	f := domain.SymbolFilters{StepSize: step, MinQty: minQty, MinNotional: minNotional}
	return f, f.Validate()
}
