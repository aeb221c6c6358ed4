package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zappabad/cloutmarket/internal/instrument"
	"github.com/zappabad/cloutmarket/internal/metrics"
	"github.com/zappabad/cloutmarket/internal/orderbook/core"
	orderbookservice "github.com/zappabad/cloutmarket/internal/orderbook/service"
	"github.com/zappabad/cloutmarket/internal/portfolio"
	"github.com/zappabad/cloutmarket/internal/pricing"
)

// Saver persists portfolio checkpoints.
type Saver interface {
	SavePortfolio(ctx context.Context, cp portfolio.Checkpoint) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMetrics sets the collectors updated by the engine.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithSaver sets where Checkpoint writes dirty portfolios.
func WithSaver(s Saver) Option {
	return func(e *Engine) { e.saver = s }
}

// Engine is the order-matching and settlement engine. Each instrument's
// book is mutated only by its own actor goroutine and each account only
// under its own lock; nothing serializes unrelated instruments or users.
type Engine struct {
	cfg      Config
	registry *instrument.Registry
	accounts *portfolio.Book
	pressure *pricing.PressureBook
	quotes   QuoteFunc
	books    *bookSet
	orders   sync.Map // order id -> *orderRecord

	saver   Saver
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an Engine with one book per registered instrument. quotes
// supplies published prices; fills are reported to pressure.
func New(registry *instrument.Registry, accounts *portfolio.Book, pressure *pricing.PressureBook, quotes QuoteFunc, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg.withDefaults(),
		registry: registry,
		accounts: accounts,
		pressure: pressure,
		quotes:   quotes,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}
	if e.quotes == nil {
		e.quotes = func(string) (Quote, bool) { return Quote{}, false }
	}
	e.logger = e.logger.With("component", "trading")

	e.books = newBookSet(registry.IDs(), e.cfg, e.hookFor,
		orderbookservice.WithClock(e.now),
		orderbookservice.WithLogger(e.logger),
	)
	return e
}

// Submit validates and executes req for userID. On rejection nothing is
// mutated.
func (e *Engine) Submit(ctx context.Context, userID string, req OrderRequest) (Result, error) {
	res, err := e.submit(ctx, userID, req)
	if err != nil {
		e.metrics.OrdersRejected.WithLabelValues(rejectReason(err)).Inc()
		return Result{}, err
	}
	e.metrics.OrdersAccepted.WithLabelValues(req.Kind.String()).Inc()
	return res, nil
}

func (e *Engine) submit(ctx context.Context, userID string, req OrderRequest) (Result, error) {
	def, err := e.validate(userID, req)
	if err != nil {
		return Result{}, err
	}
	acct, err := e.accounts.Account(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if req.Kind == core.OrderKindMarket {
		return e.submitMarket(ctx, acct, def, req)
	}
	return e.submitLimit(ctx, acct, def, req)
}

func (e *Engine) validate(userID string, req OrderRequest) (instrument.Definition, error) {
	if userID == "" {
		return instrument.Definition{}, &ValidationError{Field: "user", Reason: "required"}
	}
	def, ok := e.registry.Get(req.InstrumentID)
	if !ok {
		return instrument.Definition{}, fmt.Errorf("%w: %s", ErrInstrumentNotFound, req.InstrumentID)
	}
	if req.Shares <= 0 {
		return def, &ValidationError{Field: "shares", Reason: "must be positive"}
	}
	if !req.Side.Valid() {
		return def, &ValidationError{Field: "side", Reason: "must be buy or sell"}
	}
	if !req.Kind.Valid() {
		return def, &ValidationError{Field: "kind", Reason: "must be limit or market"}
	}
	if req.Kind == core.OrderKindLimit {
		if !req.LimitPrice.IsPositive() {
			return def, &ValidationError{Field: "limit_price", Reason: "required and positive for limit orders"}
		}
		if _, ok := core.TicksFromDecimal(req.LimitPrice); !ok {
			return def, &ValidationError{Field: "limit_price", Reason: "must be a multiple of 0.01 within the price range"}
		}
	}
	if req.ExpiresIn < 0 {
		return def, &ValidationError{Field: "expires_in", Reason: "must not be negative"}
	}
	return def, nil
}

// ExecutionPrice returns the slippage-adjusted price a market order of
// shares would execute at.
func (e *Engine) ExecutionPrice(q Quote, side core.Side, shares int64) decimal.Decimal {
	frac := min(e.cfg.MaxSlippage, float64(shares)/max(q.DailyVolume, e.cfg.VolumeFloor))
	slip := q.Price.Mul(decimal.NewFromFloat(frac))
	if side == core.SideBuy {
		return q.Price.Add(slip).Round(4)
	}
	return decimal.Max(decimal.NewFromFloat(pricing.MinPrice), q.Price.Sub(slip).Round(4))
}

func (e *Engine) submitMarket(ctx context.Context, acct *portfolio.Account, def instrument.Definition, req OrderRequest) (Result, error) {
	q, ok := e.quotes(def.ID)
	if !ok || !q.Price.IsPositive() {
		return Result{}, fmt.Errorf("%w: %s", ErrNoPrice, def.ID)
	}
	price := e.ExecutionPrice(q, req.Side, req.Shares)
	now := e.now()

	var err error
	if req.Side == core.SideBuy {
		err = acct.ApplyBuy(def.ID, req.Shares, price, decimal.Zero, now)
	} else {
		err = acct.ApplySell(def.ID, req.Shares, price, 0, now)
	}
	if err != nil {
		return Result{}, err
	}

	o := Order{
		ID:           uuid.NewString(),
		UserID:       acct.UserID(),
		InstrumentID: def.ID,
		Side:         req.Side,
		Kind:         core.OrderKindMarket,
		Shares:       req.Shares,
		FilledShares: req.Shares,
		AvgFillPrice: price,
		Status:       StatusFilled,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	e.orders.Store(o.ID, &orderRecord{o: o})
	e.pressure.Record(def.ID, req.Side == core.SideBuy, req.Shares)
	e.metrics.Trades.WithLabelValues("simulated").Inc()

	fill := Fill{Price: price, Shares: req.Shares, Simulated: true}
	if book, ok := e.books.get(def.ID); ok {
		ev, err := book.RecordTrade(context.WithoutCancel(ctx), core.TradeEvent{
			Price:        tapePrice(price),
			Shares:       core.Shares(req.Shares),
			TakerSide:    req.Side,
			Time:         now.UnixNano(),
			TakerOrderID: core.OrderID(o.ID),
			TakerUserID:  core.UserID(o.UserID),
		})
		if err != nil {
			e.logger.Warn("market fill not recorded on tape", "instrument", def.ID, "order", o.ID, "err", err)
		}
		fill.TradeID = ev.TradeID
	}

	return Result{Order: o, Fills: []Fill{fill}, Portfolio: acct.Portfolio(e.valuationQuotes)}, nil
}

// tapePrice rounds an execution price to the nearest tick, at least one.
func tapePrice(p decimal.Decimal) core.PriceTicks {
	return core.PriceTicks(max(1, p.Shift(core.TickDecimals).Round(0).IntPart()))
}

func (e *Engine) submitLimit(ctx context.Context, acct *portfolio.Account, def instrument.Definition, req OrderRequest) (Result, error) {
	book, ok := e.books.get(def.ID)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrInstrumentNotFound, def.ID)
	}
	ticks, _ := core.TicksFromDecimal(req.LimitPrice)
	limit := ticks.Decimal()
	shares := decimal.NewFromInt(req.Shares)

	if req.Side == core.SideBuy {
		if err := acct.ReserveCash(limit.Mul(shares)); err != nil {
			return Result{}, err
		}
	} else {
		if err := acct.ReserveShares(def.ID, req.Shares); err != nil {
			return Result{}, err
		}
	}

	now := e.now()
	o := Order{
		ID:           uuid.NewString(),
		UserID:       acct.UserID(),
		InstrumentID: def.ID,
		Side:         req.Side,
		Kind:         core.OrderKindLimit,
		Shares:       req.Shares,
		LimitPrice:   limit,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.ExpiresIn > 0 {
		o.ExpiresAt = now.Add(req.ExpiresIn)
	}
	rec := &orderRecord{o: o}
	// the settlement hook looks the record up while the book is matching
	e.orders.Store(o.ID, rec)

	co := core.Order{
		ID:     core.OrderID(o.ID),
		UserID: core.UserID(o.UserID),
		Side:   o.Side,
		Kind:   core.OrderKindLimit,
		Price:  ticks,
		Shares: core.Shares(o.Shares),
		Time:   now.UnixNano(),
	}
	if !o.ExpiresAt.IsZero() {
		co.ExpiresAt = o.ExpiresAt.UnixNano()
	}

	report, err := book.SubmitLimit(context.WithoutCancel(ctx), co)
	if err != nil {
		e.orders.Delete(o.ID)
		if req.Side == core.SideBuy {
			acct.ReleaseCash(limit.Mul(shares))
		} else {
			acct.ReleaseShares(def.ID, req.Shares)
		}
		return Result{}, fmt.Errorf("submit %s: %w", def.ID, err)
	}

	fills := make([]Fill, 0, len(report.Fills))
	for _, f := range report.Fills {
		fills = append(fills, Fill{TradeID: f.TradeID, Price: f.Price.Decimal(), Shares: int64(f.Shares)})
	}
	return Result{Order: rec.snapshot(), Fills: fills, Portfolio: acct.Portfolio(e.valuationQuotes)}, nil
}

// Cancel cancels a pending order owned by userID and releases its
// reservation. Partially filled orders cannot be cancelled.
func (e *Engine) Cancel(ctx context.Context, userID, orderID string) (Order, error) {
	rec, ok := e.lookup(orderID)
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	o := rec.snapshot()
	if o.UserID != userID {
		return Order{}, ErrNotOwner
	}
	if o.Status != StatusPending {
		return Order{}, fmt.Errorf("%w: order is %s", ErrNotCancellable, o.Status)
	}
	book, ok := e.books.get(o.InstrumentID)
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrInstrumentNotFound, o.InstrumentID)
	}

	_, err := book.Cancel(ctx, core.OrderID(orderID), core.UserID(userID))
	switch {
	case err == nil:
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrPartiallyFilled):
		// filled or expired between the status check and the book
		return Order{}, fmt.Errorf("%w: %v", ErrNotCancellable, err)
	case errors.Is(err, core.ErrNotOwner):
		return Order{}, ErrNotOwner
	default:
		return Order{}, fmt.Errorf("cancel %s: %w", orderID, err)
	}
	return rec.snapshot(), nil
}

// OrderBook returns a sorted snapshot of one instrument's book.
func (e *Engine) OrderBook(ctx context.Context, instrumentID string) (BookSnapshot, error) {
	book, ok := e.books.get(instrumentID)
	if !ok {
		return BookSnapshot{}, fmt.Errorf("%w: %s", ErrInstrumentNotFound, instrumentID)
	}
	snap, err := book.Snapshot(ctx)
	if err != nil {
		return BookSnapshot{}, err
	}
	return snapshotFromCore(instrumentID, snap), nil
}

// RecentTrades returns up to n trades on instrumentID, newest last.
func (e *Engine) RecentTrades(instrumentID string, n int) ([]Trade, error) {
	book, ok := e.books.get(instrumentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInstrumentNotFound, instrumentID)
	}
	evs := book.GetTradesLast(n)
	out := make([]Trade, 0, len(evs))
	for _, ev := range evs {
		out = append(out, tradeFromEvent(instrumentID, ev))
	}
	return out, nil
}

// TopOfBook returns best bid, best ask and last trade for instrumentID.
func (e *Engine) TopOfBook(instrumentID string) (TopOfBook, error) {
	t, ok := e.books.top(instrumentID)
	if !ok {
		return TopOfBook{}, fmt.Errorf("%w: %s", ErrInstrumentNotFound, instrumentID)
	}
	return t, nil
}

// Order returns one order of userID.
func (e *Engine) Order(userID, orderID string) (Order, error) {
	rec, ok := e.lookup(orderID)
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	o := rec.snapshot()
	if o.UserID != userID {
		return Order{}, ErrNotOwner
	}
	return o, nil
}

// Orders returns userID's orders, oldest first.
func (e *Engine) Orders(userID string) []Order {
	var out []Order
	e.orders.Range(func(_, v any) bool {
		o := v.(*orderRecord).snapshot()
		if o.UserID == userID {
			out = append(out, o)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Portfolio returns userID's valued portfolio, creating the account with
// the starting endowment on first use.
func (e *Engine) Portfolio(ctx context.Context, userID string) (portfolio.Portfolio, error) {
	if userID == "" {
		return portfolio.Portfolio{}, &ValidationError{Field: "user", Reason: "required"}
	}
	acct, err := e.accounts.Account(ctx, userID)
	if err != nil {
		return portfolio.Portfolio{}, err
	}
	return acct.Portfolio(e.valuationQuotes), nil
}

// Endow credits userID with cash and optionally shares of instrumentID at
// cost. It is an administrative operation.
func (e *Engine) Endow(ctx context.Context, userID string, cash decimal.Decimal, instrumentID string, shares int64, cost decimal.Decimal) error {
	if shares > 0 {
		if _, ok := e.registry.Get(instrumentID); !ok {
			return fmt.Errorf("%w: %s", ErrInstrumentNotFound, instrumentID)
		}
	}
	acct, err := e.accounts.Account(ctx, userID)
	if err != nil {
		return err
	}
	return acct.Endow(cash, instrumentID, shares, cost, e.now())
}

// SweepExpired removes resting orders expired at now from every book and
// forgets terminal orders older than the retention window.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	var (
		total int
		errs  []error
	)
	for _, id := range e.registry.IDs() {
		book, _ := e.books.get(id)
		n, err := book.SweepExpired(ctx, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep %s: %w", id, err))
			continue
		}
		total += n
	}

	cutoff := now.Add(-e.cfg.OrderRetention)
	e.orders.Range(func(k, v any) bool {
		o := v.(*orderRecord).snapshot()
		if o.Status.Terminal() && o.UpdatedAt.Before(cutoff) {
			e.orders.Delete(k)
		}
		return true
	})
	return total, errors.Join(errs...)
}

// Checkpoint saves every portfolio changed since the last call. Failed
// saves are retried on the next call.
func (e *Engine) Checkpoint(ctx context.Context) error {
	if e.saver == nil {
		return nil
	}
	var errs []error
	for _, cp := range e.accounts.Dirty() {
		if err := e.saver.SavePortfolio(ctx, cp); err != nil {
			e.accounts.MarkDirty(cp.UserID)
			e.metrics.CheckpointErrors.Inc()
			errs = append(errs, fmt.Errorf("checkpoint %s: %w", cp.UserID, err))
		}
	}
	return errors.Join(errs...)
}

// Events returns the consolidated book events channel.
func (e *Engine) Events() <-chan BookEvent { return e.books.external }

// DroppedEvents returns the count of dropped book events.
func (e *Engine) DroppedEvents() int64 { return e.books.dropped.Load() }

// Close shuts down every book.
func (e *Engine) Close() { e.books.close() }

func (e *Engine) lookup(orderID string) (*orderRecord, bool) {
	v, ok := e.orders.Load(orderID)
	if !ok {
		return nil, false
	}
	return v.(*orderRecord), true
}

func (e *Engine) valuationQuotes(id string) (portfolio.Quote, bool) {
	def, ok := e.registry.Get(id)
	if !ok {
		return portfolio.Quote{}, false
	}
	pq := portfolio.Quote{Category: def.Category}
	if q, ok := e.quotes(id); ok {
		pq.Price = q.Price
	}
	return pq, true
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInstrumentNotFound):
		return "instrument_not_found"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, ErrNoPrice):
		return "no_price"
	default:
		return "internal"
	}
}
