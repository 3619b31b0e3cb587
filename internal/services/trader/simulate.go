package trader

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/pvsra/internal/domain"
	"github.com/vadiminshakov/pvsra/internal/services/pricer"
	"github.com/vadiminshakov/pvsra/internal/storage/simstate"
	"go.uber.org/zap"
)

// DefaultSimulatedBalance is the starting quote balance of a fresh simulated account.
var DefaultSimulatedBalance = decimal.NewFromInt(10000)

type simPosition struct {
	pos    *domain.Position
	margin decimal.Decimal
}

// SimulateTrader is a one-way futures account simulator. Orders fill at the
// pricer's current price, opposite orders reduce or flip the position.
type SimulateTrader struct {
	mu         sync.RWMutex
	asset      string
	logger     *zap.Logger
	balance    decimal.Decimal
	positions  map[string]*simPosition
	pricer     pricer.Pricer
	leverage   int
	stateStore *simstate.Store
	now        func() time.Time
}

// NewSimulateTrader creates a simulator settling in asset. stateStore may be nil.
func NewSimulateTrader(asset string, leverage int, logger *zap.Logger, p pricer.Pricer, stateStore *simstate.Store) (*SimulateTrader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if p == nil {
		return nil, errors.New("pricer is required for SimulateTrader")
	}
	if leverage < 1 {
		leverage = 1
	}
	t := &SimulateTrader{
		asset:      strings.ToUpper(asset),
		logger:     logger,
		balance:    DefaultSimulatedBalance,
		positions:  make(map[string]*simPosition),
		pricer:     p,
		leverage:   leverage,
		stateStore: stateStore,
		now:        time.Now,
	}
	if err := t.restoreState(); err != nil {
		logger.Warn("failed to restore simulate state", zap.Error(err))
	}
	logger.Info("simulate init",
		zap.String("asset", t.asset),
		zap.String("balance", t.balance.String()),
		zap.Int("positions", len(t.positions)),
		zap.Int("leverage", leverage))
	return t, nil
}

func (t *SimulateTrader) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Action, qty decimal.Decimal, clientOrderID string) (OrderResult, error) {
	if !qty.IsPositive() {
		return OrderResult{}, errors.Errorf("order quantity must be positive, got %s", qty)
	}

	price, err := t.pricer.GetPrice(ctx, symbol)
	if err != nil {
		return OrderResult{}, errors.Wrap(err, "failed to get price for simulated order")
	}
	if !price.IsPositive() {
		return OrderResult{}, errors.Errorf("invalid simulated fill price %s", price)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	remaining := qty
	if sp, ok := t.positions[symbol]; ok && sp.pos.Side != domain.SideForAction(side) {
		remaining = t.reduce(symbol, sp, qty, price)
	}
	if remaining.IsPositive() {
		if err := t.openOrAdd(symbol, side, remaining, price); err != nil {
			return OrderResult{}, err
		}
	}
	t.persist()

	if clientOrderID == "" {
		clientOrderID = uuid.NewString()
	}
	t.logger.Info("simulated order filled",
		zap.String("symbol", symbol),
		zap.String("side", side.String()),
		zap.String("qty", qty.String()),
		zap.String("price", price.String()),
		zap.String("balance", t.balance.String()))

	return OrderResult{
		OrderID:       "sim-" + uuid.NewString(),
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          side,
		Quantity:      qty,
		AvgPrice:      price,
		Status:        "FILLED",
	}, nil
}

func (t *SimulateTrader) OpenPosition(_ context.Context, symbol string) (*domain.Position, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sp, ok := t.positions[symbol]
	if !ok {
		return nil, nil
	}
	clone := *sp.pos
	return &clone, nil
}

func (t *SimulateTrader) Balance(_ context.Context, asset string) (decimal.Decimal, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !strings.EqualFold(asset, t.asset) {
		return decimal.Zero, nil
	}
	return t.balance, nil
}

// reduce closes up to qty of the opposite position and returns the unfilled rest.
func (t *SimulateTrader) reduce(symbol string, sp *simPosition, qty, price decimal.Decimal) decimal.Decimal {
	closeQty := decimal.Min(qty, sp.pos.Amount)
	fraction := closeQty.Div(sp.pos.Amount)

	released := sp.margin.Mul(fraction)
	realized := sp.pos.PnL(price).Mul(fraction)

	t.balance = t.balance.Add(released).Add(realized)
	sp.margin = sp.margin.Sub(released)
	sp.pos.Amount = sp.pos.Amount.Sub(closeQty)
	sp.pos.UpdatedAt = t.now()

	if !sp.pos.Amount.IsPositive() {
		delete(t.positions, symbol)
	}

	t.logger.Info("simulated position reduced",
		zap.String("symbol", symbol),
		zap.String("closed", closeQty.String()),
		zap.String("realized_pnl", realized.String()))

	return qty.Sub(closeQty)
}

func (t *SimulateTrader) openOrAdd(symbol string, side domain.Action, qty, price decimal.Decimal) error {
	required := qty.Mul(price).Div(decimal.NewFromInt(int64(t.leverage)))
	if t.balance.LessThan(required) {
		return errors.Errorf("insufficient %s balance: have %s need %s (with %dx leverage)",
			t.asset, t.balance, required, t.leverage)
	}
	t.balance = t.balance.Sub(required)

	sp, ok := t.positions[symbol]
	if !ok {
		signed := qty
		if side == domain.ActionSell {
			signed = qty.Neg()
		}
		pos, err := domain.NewPositionFromExternalSnapshot(symbol, signed, price, decimal.Zero, t.now())
		if err != nil {
			return errors.Wrap(err, "create position")
		}
		t.positions[symbol] = &simPosition{pos: pos, margin: required}
		return nil
	}

	total := sp.pos.Amount.Add(qty)
	notional := sp.pos.EntryPrice.Mul(sp.pos.Amount).Add(price.Mul(qty))
	sp.pos.EntryPrice = notional.Div(total)
	sp.pos.Amount = total
	sp.pos.UpdatedAt = t.now()
	sp.margin = sp.margin.Add(required)
	return nil
}

func (t *SimulateTrader) restoreState() error {
	if t.stateStore == nil {
		return nil
	}
	state, err := t.stateStore.Load()
	if err != nil || state == nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if state.Balance != "" {
		balance, err := decimal.NewFromString(state.Balance)
		if err != nil {
			return errors.Wrap(err, "decode balance")
		}
		t.balance = balance
	}

	for symbol, stored := range state.Positions {
		pos, margin, err := stored.ToPosition(symbol)
		if err != nil {
			return errors.Wrapf(err, "decode %s position", symbol)
		}
		t.positions[symbol] = &simPosition{pos: pos, margin: margin}
	}

	return nil
}

func (t *SimulateTrader) persist() {
	if t.stateStore == nil {
		return
	}

	state := simstate.State{
		Asset:     t.asset,
		Balance:   t.balance.String(),
		Positions: make(map[string]*simstate.StoredPosition, len(t.positions)),
	}
	for symbol, sp := range t.positions {
		state.Positions[symbol] = simstate.NewStoredPosition(sp.pos, sp.margin)
	}

	if err := t.stateStore.Save(state); err != nil {
		t.logger.Warn("failed to persist simulate state", zap.Error(err))
	}
}
