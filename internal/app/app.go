// Package app builds every subsystem from a config.Config and owns their
// lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zappabad/cloutmarket/internal/api"
	brokerservice "github.com/zappabad/cloutmarket/internal/broker/service"
	"github.com/zappabad/cloutmarket/internal/config"
	eventsservice "github.com/zappabad/cloutmarket/internal/events/service"
	"github.com/zappabad/cloutmarket/internal/instrument"
	"github.com/zappabad/cloutmarket/internal/market"
	marketservice "github.com/zappabad/cloutmarket/internal/market/service"
	"github.com/zappabad/cloutmarket/internal/metrics"
	"github.com/zappabad/cloutmarket/internal/orderbook/core"
	"github.com/zappabad/cloutmarket/internal/portfolio"
	"github.com/zappabad/cloutmarket/internal/pricing"
	"github.com/zappabad/cloutmarket/internal/publish"
	"github.com/zappabad/cloutmarket/internal/signal"
	"github.com/zappabad/cloutmarket/internal/store"
	"github.com/zappabad/cloutmarket/internal/trader"
	"github.com/zappabad/cloutmarket/internal/trader/runner"
	"github.com/zappabad/cloutmarket/internal/trader/strategy"
	"github.com/zappabad/cloutmarket/internal/trading"
)

// App owns all the subsystems.
type App struct {
	Registry  *instrument.Registry
	Metrics   *metrics.Metrics
	Store     store.Store
	Market    *marketservice.Aggregator
	Trading   *trading.Engine
	Events    *eventsservice.Service
	Publisher publish.Publisher
	Hub       *api.Hub
	API       *api.Server
	Bots      []*runner.Runner
	Broker    *brokerservice.Service

	cfg    *config.Config
	source signal.Source
	logger *slog.Logger
	now    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
}

// Option configures an App.
type Option func(*App)

// WithClock overrides the wall clock used by every subsystem.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		if now != nil {
			a.now = now
		}
	}
}

// WithSource replaces the signal source selected by the config.
func WithSource(src signal.Source) Option {
	return func(a *App) { a.source = src }
}

// WithStore replaces the store selected by the config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.Store = s }
}

// New builds the subsystems. ctx bounds connecting to external services.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}

	reg, err := cfg.Registry()
	if err != nil {
		return nil, fmt.Errorf("instruments: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("pricing location: %w", err)
	}
	a.Registry = reg
	a.Metrics = metrics.New()

	if a.Store == nil {
		if a.Store, err = newStore(ctx, cfg.Redis); err != nil {
			return nil, err
		}
	}
	if a.source == nil {
		a.source = newSource(cfg.Signal, reg, logger)
	}

	overlay := pricing.NewOverlay()
	engine := pricing.NewEngine(cfg.Pricing.Config, overlay)
	engine.SetClock(a.now)
	pressure := pricing.NewPressureBook()

	a.Market = marketservice.New(reg, a.source, engine, pressure, cfg.Refresh,
		marketservice.WithLogger(logger),
		marketservice.WithClock(a.now),
		marketservice.WithMetrics(a.Metrics),
		marketservice.WithMemoryStore(a.Store),
		marketservice.WithTimeProfile(pricing.NewTimeProfile(loc, cfg.Pricing.HolidayCalendar)),
	)

	accounts := portfolio.NewBook(decimal.NewFromFloat(cfg.Trading.StartingCash), a.Store)
	a.Trading = trading.New(reg, accounts, pressure, quotesFrom(a.Market), cfg.Trading.Config,
		trading.WithLogger(logger),
		trading.WithClock(a.now),
		trading.WithMetrics(a.Metrics),
		trading.WithSaver(a.Store),
	)

	a.Events = eventsservice.New(reg, overlay, cfg.Events,
		eventsservice.WithLogger(logger),
		eventsservice.WithClock(a.now),
		eventsservice.WithMetrics(a.Metrics),
	)

	if len(cfg.Kafka.Brokers) > 0 {
		a.Publisher = publish.NewKafkaPublisher(cfg.Kafka, a.Metrics, logger)
	} else {
		a.Publisher = publish.NopPublisher{}
	}

	a.Broker = brokerservice.New(cfg.Bots.Journal, logger)
	a.Hub = api.NewHub(256, a.Metrics, logger)
	apiCfg := api.Config{AdminToken: cfg.Server.AdminToken, Bots: a.Broker}
	if cfg.Metrics.Enabled {
		apiCfg.MetricsPath = cfg.Metrics.Path
		apiCfg.Metrics = a.Metrics.Handler()
	}
	a.API = api.NewServer(apiCfg, a.Market, a.Trading, a.Events, a.Hub, logger)

	if cfg.Bots.Enabled {
		mr := marketReader{market: a.Market, trading: a.Trading}
		for i := range cfg.Bots.Count {
			id := trader.BotID(fmt.Sprintf("bot-%d", i+1))
			r := runner.NewRunner(cfg.Bots.Runner, id, strategy.NewMarketMaker(id, cfg.Bots.Maker),
				mr, a.Events, a.Trading,
				runner.WithLogger(logger),
				runner.WithClock(a.now),
			)
			a.Bots = append(a.Bots, r)
		}
	}

	a.Market.OnCycle(a.afterCycle)
	return a, nil
}

func newStore(ctx context.Context, cfg store.RedisConfig) (store.Store, error) {
	if cfg.Addr == "" {
		return store.NewMemoryStore(), nil
	}
	s, err := store.NewRedisStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return s, nil
}

func newSource(cfg config.SignalConfig, reg *instrument.Registry, logger *slog.Logger) signal.Source {
	if cfg.URL == "" {
		return signal.NewSimulatedSource(reg, cfg.Simulated)
	}
	return signal.NewHTTPSource(cfg.URL, cfg.APIKey,
		signal.WithRetries(cfg.MaxRetries, cfg.RetryBackoff),
		signal.WithBatchLimits(cfg.Concurrency, cfg.RequestTimeout),
		signal.WithLogger(logger),
	)
}

// quotesFrom reads trading quotes from the aggregator's published set.
func quotesFrom(m *marketservice.Aggregator) trading.QuoteFunc {
	return func(id string) (trading.Quote, bool) {
		p, ok := m.Instrument(id)
		if !ok {
			return trading.Quote{}, false
		}
		return trading.Quote{
			Price:       decimal.NewFromFloat(p.Price).Round(4),
			DailyVolume: p.Volume,
			Category:    p.Category,
		}, true
	}
}

type marketReader struct {
	market  *marketservice.Aggregator
	trading *trading.Engine
}

func (r marketReader) Snapshot() *market.Snapshot { return r.market.Snapshot() }

func (r marketReader) TopOfBook(id string) (trading.TopOfBook, error) {
	return r.trading.TopOfBook(id)
}

// Start publishes the first cycle, endows and starts the bots, and begins
// serving the websocket hub.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return errors.New("app already started")
	}
	a.started = true

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.wg.Add(3)
	go func() {
		defer a.wg.Done()
		a.Hub.Run(runCtx)
	}()
	go func() {
		defer a.wg.Done()
		a.forwardTrades()
	}()
	go func() {
		defer a.wg.Done()
		a.forwardEvents()
	}()

	if err := a.Market.Start(ctx); err != nil {
		return fmt.Errorf("start aggregator: %w", err)
	}

	if err := a.endowBots(ctx); err != nil {
		return err
	}
	for _, r := range a.Bots {
		a.Broker.AttachBot(r.Events())
		r.Start()
	}

	a.logger.Info("app started",
		"instruments", a.Registry.Len(),
		"bots", len(a.Bots),
		"store", fmt.Sprintf("%T", a.Store),
		"publisher", fmt.Sprintf("%T", a.Publisher),
	)
	return nil
}

// endowBots gives each bot cash and an inventory in every instrument at
// its first published price. Bots restored from a checkpoint keep what
// they had.
func (a *App) endowBots(ctx context.Context) error {
	snap := a.Market.Snapshot()
	if snap == nil {
		return errors.New("endow bots: no published snapshot")
	}
	cash := decimal.NewFromFloat(a.cfg.Bots.EndowCash)
	for _, r := range a.Bots {
		user := string(r.BotID())
		pf, err := a.Trading.Portfolio(ctx, user)
		if err != nil {
			return fmt.Errorf("load %s: %w", user, err)
		}
		if len(pf.Holdings) > 0 {
			continue
		}
		if err := a.Trading.Endow(ctx, user, cash, "", 0, decimal.Zero); err != nil {
			return fmt.Errorf("endow %s: %w", user, err)
		}
		if a.cfg.Bots.EndowShares <= 0 {
			continue
		}
		for _, p := range snap.Instruments {
			cost := decimal.NewFromFloat(p.Price).Round(4)
			if err := a.Trading.Endow(ctx, user, decimal.Zero, p.ID, a.cfg.Bots.EndowShares, cost); err != nil {
				return fmt.Errorf("endow %s %s: %w", user, p.ID, err)
			}
		}
	}
	return nil
}

// afterCycle runs once per published snapshot.
func (a *App) afterCycle(ctx context.Context, snap *market.Snapshot) {
	if n, err := a.Trading.SweepExpired(ctx, a.now()); err != nil {
		a.logger.Warn("expiry sweep failed", "err", err)
	} else if n > 0 {
		a.logger.Debug("expired orders swept", "count", n)
	}
	if err := a.Trading.Checkpoint(ctx); err != nil {
		a.logger.Warn("portfolio checkpoint failed", "err", err)
	}
	if err := a.Publisher.Publish(ctx, snap); err != nil {
		a.logger.Warn("price feed publish failed", "cycle", snap.Cycle, "err", err)
	}
	a.Hub.Broadcast("snapshot", snap.UpdatedAt, snap)
}

type tradeMessage struct {
	InstrumentID string          `json:"instrument_id"`
	TradeID      string          `json:"trade_id"`
	Price        decimal.Decimal `json:"price"`
	Shares       int64           `json:"shares"`
	TakerSide    core.Side       `json:"taker_side"`
	Simulated    bool            `json:"simulated"`
}

func (a *App) forwardTrades() {
	for ev := range a.Trading.Events() {
		tr, ok := ev.Event.(core.TradeEvent)
		if !ok {
			continue
		}
		a.Hub.Broadcast("trade", time.Unix(0, tr.Time), tradeMessage{
			InstrumentID: ev.InstrumentID,
			TradeID:      tr.TradeID,
			Price:        tr.Price.Decimal(),
			Shares:       int64(tr.Shares),
			TakerSide:    tr.TakerSide,
			Simulated:    tr.Liquidity(),
		})
	}
}

func (a *App) forwardEvents() {
	for ev := range a.Events.Events() {
		a.Hub.Broadcast("event", ev.CreatedAt, ev)
	}
}

// Close shuts everything down in reverse dependency order and saves a
// final checkpoint.
func (a *App) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	var errs []error
	for _, r := range a.Bots {
		r.Close()
	}
	a.Broker.Close()
	if a.started {
		if err := a.Market.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop aggregator: %w", err))
		}
	}
	if err := a.Trading.Checkpoint(ctx); err != nil {
		errs = append(errs, fmt.Errorf("final checkpoint: %w", err))
	}
	a.Events.Close()
	a.Trading.Close()
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	if err := a.Publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	a.logger.Info("app stopped")
	return errors.Join(errs...)
}
