package internal

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/pvsra/config"
	"github.com/vadiminshakov/pvsra/internal/domain"
	"github.com/vadiminshakov/pvsra/internal/events"
	"github.com/vadiminshakov/pvsra/internal/services/barstore"
	"github.com/vadiminshakov/pvsra/internal/services/fusion"
	"github.com/vadiminshakov/pvsra/internal/services/guard"
	"github.com/vadiminshakov/pvsra/internal/services/pricer"
	"github.com/vadiminshakov/pvsra/internal/services/pvsra"
	"github.com/vadiminshakov/pvsra/internal/services/trader"
	"github.com/vadiminshakov/pvsra/pkg/retrier"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BarHistory loads closed bars for seeding.
type BarHistory interface {
	GetBars(ctx context.Context, symbol, interval string, limit int) ([]domain.Bar, error)
}

// BarFeed streams live bar updates.
type BarFeed interface {
	Stream(ctx context.Context, symbol, interval string) (<-chan domain.BarUpdate, error)
}

// FilterSource returns exchange quantity filters.
type FilterSource interface {
	Filters(ctx context.Context, symbol string) (domain.SymbolFilters, error)
}

// Journal persists the monitor's events.
type Journal interface {
	SaveAlert(alert domain.Alert) error
	SaveDecision(decision domain.Decision) error
	SaveOrder(outcome domain.OrderOutcome) error
}

// Recorder observes the monitor's events, usually as metrics.
type Recorder interface {
	ObserveBar(u domain.BarUpdate)
	ObserveAlert(a domain.Alert)
	ObserveDecision(d domain.Decision)
	ObserveOrder(o domain.OrderOutcome)
	ObservePosition(p domain.PositionStatus)
}

// MonitorDeps are the collaborators of a Monitor. Journal and Recorder are optional.
type MonitorDeps struct {
	Logger   *zap.Logger
	Store    *barstore.Store
	Alerts   *events.AlertStream
	History  BarHistory
	Feed     BarFeed
	Filters  FilterSource
	Trader   trader.Trader
	Pricer   pricer.Pricer
	Journal  Journal
	Recorder Recorder
	Retrier  *retrier.Retrier
	Now      func() time.Time
}

// Monitor runs the pipeline of one symbol: bars are classified on close,
// alerts are published, and on every decision tick the guard is asked whether
// the momentum side should be traded.
type Monitor struct {
	cfg      config.Config
	symbol   string
	params   pvsra.Params
	budget   domain.RiskBudget
	logger   *zap.Logger
	store    *barstore.Store
	alerts   *events.AlertStream
	guard    *guard.Guard
	history  BarHistory
	feed     BarFeed
	filters  FilterSource
	trader   trader.Trader
	pricer   pricer.Pricer
	journal  Journal
	recorder Recorder
	retrier  *retrier.Retrier
	now      func() time.Time

	lastJournaled *domain.Decision
}

// NewMonitor creates a monitor for cfg and builds its fusion engine and guard.
func NewMonitor(cfg config.Config, deps MonitorDeps) (*Monitor, error) {
	if deps.Store == nil || deps.Alerts == nil {
		return nil, errors.New("bar store and alert stream are required")
	}
	if deps.Feed == nil || deps.Trader == nil || deps.Pricer == nil || deps.Filters == nil {
		return nil, errors.New("feed, trader, pricer and filters are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Journal == nil {
		deps.Journal = nopJournal{}
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Retrier == nil {
		deps.Retrier = retrier.New()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	params := pvsra.Params{
		Lookback:         cfg.LookbackPeriod,
		ClimaxMultiplier: cfg.ClimaxMultiplier,
		RisingMultiplier: cfg.RisingMultiplier,
	}
	if err := params.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid classifier params")
	}

	engine, err := fusion.NewEngine(fusion.Config{
		Weight:              cfg.FusionWeight,
		RequireConfirmation: cfg.RequireConfirmation,
		Freshness:           cfg.AlertFreshness,
	}, deps.Alerts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fusion engine")
	}

	logger := deps.Logger.With(zap.String("symbol", cfg.Symbol()))
	g, err := guard.New(guard.Config{
		AllowMultiplePositions: cfg.AllowMultiplePositions,
		Cooldown:               cfg.Cooldown,
		MinBars:                cfg.MinBars,
		MomentumWindow:         cfg.MomentumWindow,
		MinPriceChange:         cfg.MinPriceChange,
		FusionWeight:           cfg.FusionWeight,
		TrendFilter:            cfg.TrendFilter,
		TrendPeriod:            cfg.TrendPeriod,
		TrendMA:                cfg.TrendMA,
	}, logger, deps.Store, engine, deps.Trader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create guard")
	}

	return &Monitor{
		cfg:      cfg,
		symbol:   cfg.Symbol(),
		params:   params,
		budget:   cfg.RiskBudget(),
		logger:   logger,
		store:    deps.Store,
		alerts:   deps.Alerts,
		guard:    g,
		history:  deps.History,
		feed:     deps.Feed,
		filters:  deps.Filters,
		trader:   deps.Trader,
		pricer:   deps.Pricer,
		journal:  deps.Journal,
		recorder: deps.Recorder,
		retrier:  deps.Retrier,
		now:      deps.Now,
	}, nil
}

// Symbol returns the monitored exchange symbol.
func (m *Monitor) Symbol() string {
	return m.symbol
}

// Params returns the classifier settings.
func (m *Monitor) Params() pvsra.Params {
	return m.params
}

// Run seeds history, then ingests bars and evaluates decisions until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Seed(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.RunIngestion(ctx)
	})
	g.Go(func() error {
		return m.RunDecisions(ctx)
	})
	return g.Wait()
}

// Seed loads closed history into the bar store. Bars that do not extend the
// window are skipped.
func (m *Monitor) Seed(ctx context.Context) error {
	if m.history == nil || m.cfg.SeedLimit == 0 {
		return nil
	}

	bars, err := retrier.DoWithData(m.retrier, ctx, func(ctx context.Context) ([]domain.Bar, error) {
		return m.history.GetBars(ctx, m.symbol, m.cfg.Interval, m.cfg.SeedLimit)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to seed %s history", m.symbol)
	}

	seeded := 0
	for _, b := range bars {
		if err := m.store.AppendClosed(m.symbol, b); err != nil {
			m.logger.Warn("skipping seed bar", zap.Error(err))
			continue
		}
		seeded++
	}
	m.logger.Info("history seeded", zap.Int("bars", seeded), zap.String("interval", m.cfg.Interval))
	return nil
}

// RunIngestion consumes the live feed until ctx is done or the feed closes.
// Updates still buffered in the feed when ctx is done are dropped.
func (m *Monitor) RunIngestion(ctx context.Context) error {
	updates, err := m.feed.Stream(ctx, m.symbol, m.cfg.Interval)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s feed", m.symbol)
	}

	m.logger.Info("ingesting bars", zap.String("interval", m.cfg.Interval))
	for u := range updates {
		if ctx.Err() != nil {
			m.logger.Info("context done, stopping ingestion")
			break
		}
		m.HandleUpdate(ctx, u)
	}
	return ctx.Err()
}

// HandleUpdate applies one feed update. A closing update classifies the bar
// and publishes its alert. Once ctx is done bars are still stored but no
// alert is published.
func (m *Monitor) HandleUpdate(ctx context.Context, u domain.BarUpdate) (domain.Alert, bool) {
	if u.Symbol == "" {
		u.Symbol = m.symbol
	}
	closed, err := m.store.Apply(u)
	if err != nil {
		m.logger.Warn("bar update rejected", zap.Bool("closed", u.Closed), zap.Error(err))
		return domain.Alert{}, false
	}
	m.recorder.ObserveBar(u)
	if !closed || ctx.Err() != nil {
		return domain.Alert{}, false
	}

	cb, ok := pvsra.ClassifyLast(m.store.Closed(m.symbol, m.params.Lookback+1), m.params)
	if !ok {
		return domain.Alert{}, false
	}

	alert, ok := m.alerts.OnBarClosed(ctx, m.symbol, cb)
	if !ok {
		return domain.Alert{}, false
	}
	m.recorder.ObserveAlert(alert)
	if err := m.journal.SaveAlert(alert); err != nil {
		m.logger.Error("failed to journal alert", zap.Error(err))
	}
	return alert, true
}

// RunDecisions evaluates a decision on every tick until ctx is done.
func (m *Monitor) RunDecisions(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.DecisionInterval)
	defer ticker.Stop()

	m.logger.Info("starting decision loop",
		zap.Duration("interval", m.cfg.DecisionInterval),
		zap.Bool("live", m.cfg.LiveTrading))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("context done, stopping decision loop")
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Tick(ctx); err != nil {
				m.logger.Error("decision tick failed", zap.Error(err))
			}
		}
	}
}

// Tick derives the momentum side and runs it through the guard. An accepted
// decision is sized and sent to the trader. It returns nil when momentum
// gives no side.
func (m *Monitor) Tick(ctx context.Context) (*domain.Decision, error) {
	m.CheckPosition(ctx)

	bars := m.store.Snapshot(m.symbol, m.cfg.MomentumWindow)
	momentum, ok := guard.Momentum(bars, m.cfg.MomentumWindow)
	if !ok {
		m.logger.Debug("waiting for history", zap.Int("bars", len(bars)))
		return nil, nil
	}
	intended, ok := guard.IntendedAction(momentum, m.cfg.MinPriceChange)
	if !ok {
		return nil, nil
	}

	now := m.now()
	decision := m.guard.Admit(ctx, m.symbol, intended, now)
	m.recorder.ObserveDecision(decision)
	m.journalDecision(decision)

	if !decision.Allow {
		return &decision, nil
	}

	m.logger.Info("trade accepted",
		zap.String("action", decision.Action.String()),
		zap.Float64("confidence", decision.Confidence),
		zap.String("reason", decision.Reason))

	outcome := m.execute(ctx, decision)
	m.recorder.ObserveOrder(outcome)
	if err := m.journal.SaveOrder(outcome); err != nil {
		m.logger.Error("failed to journal order", zap.Error(err))
	}
	if outcome.Error != "" {
		return &decision, errors.Errorf("order for %s not placed: %s", m.symbol, outcome.Error)
	}
	return &decision, nil
}

// CheckPosition measures the open position at the current price against the
// profit and stop-loss thresholds. It returns false when no position is open.
func (m *Monitor) CheckPosition(ctx context.Context) (domain.PositionStatus, bool) {
	pos, err := m.trader.OpenPosition(ctx, m.symbol)
	if err != nil {
		m.logger.Warn("failed to load position", zap.Error(err))
		return domain.PositionStatus{}, false
	}
	if !pos.IsOpen() {
		return domain.PositionStatus{}, false
	}
	price, err := m.pricer.GetPrice(ctx, m.symbol)
	if err != nil {
		m.logger.Warn("failed to price position", zap.Error(err))
		return domain.PositionStatus{}, false
	}

	status := pos.Evaluate(price, m.cfg.ProfitThreshold, m.cfg.StopLossThreshold, m.now())
	fields := []zap.Field{
		zap.String("side", status.Side.String()),
		zap.String("size", status.Amount.String()),
		zap.String("entry", status.EntryPrice.String()),
		zap.String("price", status.Price.String()),
		zap.String("pnl", status.PnL.StringFixed(2)),
		zap.String("pnl_pct", status.PnLPercent.StringFixed(2)),
	}
	switch status.Event {
	case domain.PositionTakeProfit:
		m.logger.Info("profit target reached", fields...)
	case domain.PositionStopLoss:
		m.logger.Warn("stop loss triggered", fields...)
	default:
		m.logger.Info("position open", fields...)
	}
	m.recorder.ObservePosition(status)
	return status, true
}

// journalDecision skips decisions that repeat the previous one.
func (m *Monitor) journalDecision(d domain.Decision) {
	if prev := m.lastJournaled; prev != nil && !d.Allow &&
		prev.Allow == d.Allow && prev.Stage == d.Stage && prev.Action == d.Action {
		return
	}
	m.lastJournaled = &d
	if err := m.journal.SaveDecision(d); err != nil {
		m.logger.Error("failed to journal decision", zap.Error(err))
	}
}

func (m *Monitor) execute(ctx context.Context, d domain.Decision) domain.OrderOutcome {
	outcome := domain.OrderOutcome{
		Symbol:   m.symbol,
		Time:     d.Time,
		Side:     d.Action,
		Simulate: !m.cfg.LiveTrading,
	}
	fail := func(err error) domain.OrderOutcome {
		outcome.Error = err.Error()
		m.logger.Warn("order skipped", zap.String("action", d.Action.String()), zap.Error(err))
		return outcome
	}

	balance, err := m.trader.Balance(ctx, m.cfg.Pair.To)
	if err != nil {
		return fail(errors.Wrap(err, "balance"))
	}
	notional := m.budget.TargetNotional(balance)
	if !notional.IsPositive() {
		return fail(errors.Errorf("no margin available, balance %s %s", balance, m.cfg.Pair.To))
	}

	filters, err := m.filters.Filters(ctx, m.symbol)
	if err != nil {
		return fail(errors.Wrap(err, "filters"))
	}
	price, err := m.pricer.GetPrice(ctx, m.symbol)
	if err != nil {
		return fail(errors.Wrap(err, "price"))
	}

	size, err := domain.Quantize(domain.PositionSizeRequest{
		TargetNotional: notional,
		ReferencePrice: price,
		Filters:        filters,
	})
	outcome.Quantity = size.Quantity
	outcome.Price = price
	outcome.Notional = size.AchievedNotional
	if err != nil {
		return fail(err)
	}

	res, err := m.trader.PlaceMarketOrder(ctx, m.symbol, d.Action, size.Quantity, clientOrderID())
	if err != nil {
		return fail(errors.Wrap(err, "place order"))
	}
	outcome.OrderID = res.OrderID
	if res.AvgPrice.IsPositive() {
		outcome.Price = res.AvgPrice
		outcome.Notional = res.AvgPrice.Mul(size.Quantity)
	}

	m.logger.Info("order placed",
		zap.String("side", d.Action.String()),
		zap.String("qty", size.Quantity.String()),
		zap.String("price", outcome.Price.String()),
		zap.String("order_id", res.OrderID),
		zap.Bool("simulate", outcome.Simulate))
	return outcome
}

// clientOrderID fits Binance's 36 character limit.
func clientOrderID() string {
	return "pv-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

type nopJournal struct{}

func (nopJournal) SaveAlert(domain.Alert) error { return nil }
func (nopJournal) SaveDecision(domain.Decision) error { return nil }
func (nopJournal) SaveOrder(domain.OrderOutcome) error { return nil }

type nopRecorder struct{}

func (nopRecorder) ObserveBar(domain.BarUpdate) {}
func (nopRecorder) ObserveAlert(domain.Alert) {}
func (nopRecorder) ObserveDecision(domain.Decision) {}
func (nopRecorder) ObserveOrder(domain.OrderOutcome) {}
func (nopRecorder) ObservePosition(domain.PositionStatus) {}
