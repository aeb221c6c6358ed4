// Package service runs the market data refresh cycle.
package service

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zappabad/cloutmarket/internal/instrument"
	"github.com/zappabad/cloutmarket/internal/market"
	"github.com/zappabad/cloutmarket/internal/metrics"
	"github.com/zappabad/cloutmarket/internal/pricing"
	"github.com/zappabad/cloutmarket/internal/signal"
)

// MemoryStore persists pricing memory between restarts.
type MemoryStore interface {
	LoadPricingMemory(ctx context.Context, instrumentID string) (pricing.Memory, bool, error)
	SavePricingMemory(ctx context.Context, instrumentID string, m pricing.Memory) error
}

// CycleHook runs after a published cycle, on the cycle goroutine but after
// the next tick is free to start. Hooks never run concurrently with each
// other, and a snapshot superseded before its hooks start is skipped.
type CycleHook func(ctx context.Context, snap *market.Snapshot)

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithMetrics sets the collectors updated by the aggregator.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithMemoryStore restores pricing memory on Start and saves it after each
// cycle.
func WithMemoryStore(s MemoryStore) Option {
	return func(a *Aggregator) { a.memory = s }
}

// WithTimeProfile sets the time-of-day and holiday profile.
func WithTimeProfile(p *pricing.TimeProfile) Option {
	return func(a *Aggregator) {
		if p != nil {
			a.profile = p
		}
	}
}

// Status is the aggregator's health summary.
type Status struct {
	Cycles      uint64    `json:"cycles"`
	Skipped     int64     `json:"skipped"`
	LastRefresh time.Time `json:"last_refresh"`
	Running     bool      `json:"running"`
}

// Aggregator owns the refresh cycle and the published instrument set.
type Aggregator struct {
	cfg      Config
	registry *instrument.Registry
	source   signal.Source
	engine   *pricing.Engine
	pressure *pricing.PressureBook
	profile  *pricing.TimeProfile
	memory   MemoryStore
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	published   atomic.Pointer[market.Snapshot]
	running     atomic.Bool
	cycles      atomic.Uint64
	skipped     atomic.Int64
	lastRefresh atomic.Int64

	hooksMu sync.Mutex
	hooks   []CycleHook
	// afterMu serializes after-cycle work, which runs outside the running guard.
	afterMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Aggregator pricing every instrument in registry.
func New(registry *instrument.Registry, source signal.Source, engine *pricing.Engine, pressure *pricing.PressureBook, cfg Config, opts ...Option) *Aggregator {
	a := &Aggregator{
		cfg:      cfg.withDefaults(),
		registry: registry,
		source:   source,
		engine:   engine,
		pressure: pressure,
		profile:  pricing.NewTimeProfile(time.Local, ""),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = metrics.New()
	}
	a.logger = a.logger.With("component", "aggregator")
	return a
}

// OnCycle registers h to run after every published cycle.
func (a *Aggregator) OnCycle(h CycleHook) {
	a.hooksMu.Lock()
	defer a.hooksMu.Unlock()
	a.hooks = append(a.hooks, h)
}

// Start restores pricing memory, publishes a first cycle and starts the
// refresh loop.
func (a *Aggregator) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.restoreMemory(a.ctx)
	a.RefreshOnce(a.ctx)

	a.wg.Add(1)
	go a.run()

	a.logger.Info("aggregator started",
		"instruments", a.registry.Len(),
		"peak_interval", a.cfg.PeakInterval,
		"off_peak_interval", a.cfg.OffPeakInterval,
	)
	return nil
}

// Stop cancels the loop and waits for a running cycle to finish.
func (a *Aggregator) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("aggregator stopped", "cycles", a.cycles.Load(), "skipped", a.skipped.Load())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Interval returns the refresh period in effect at t.
func (a *Aggregator) Interval(t time.Time) time.Duration {
	h := t.In(a.profile.Location()).Hour()
	start, end := a.cfg.PeakStartHour, a.cfg.PeakEndHour
	var peak bool
	if start <= end {
		peak = h >= start && h < end
	} else {
		peak = h >= start || h < end
	}
	if peak {
		return a.cfg.PeakInterval
	}
	return a.cfg.OffPeakInterval
}

// run fires a tick per interval. Each tick runs on its own goroutine so a
// slow cycle makes the following ticks skip rather than queue.
func (a *Aggregator) run() {
	defer a.wg.Done()

	timer := time.NewTimer(a.Interval(a.now()))
	defer timer.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-timer.C:
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				a.RefreshOnce(a.ctx)
			}()
			timer.Reset(a.Interval(a.now()))
		}
	}
}

// RefreshOnce runs one cycle unless one is already running, in which case
// the call is counted as skipped. It reports whether it ran.
func (a *Aggregator) RefreshOnce(ctx context.Context) bool {
	if !a.running.CompareAndSwap(false, true) {
		a.skipped.Add(1)
		a.metrics.RefreshSkipped.Inc()
		a.logger.Debug("refresh skipped, previous cycle still running")
		return false
	}
	var snap *market.Snapshot
	func() {
		defer a.running.Store(false)
		snap = a.cycle(ctx)
	}()

	a.afterCycle(ctx, snap)
	return true
}

func (a *Aggregator) cycle(ctx context.Context) *market.Snapshot {
	start := a.now()
	defs := a.registry.All()

	keys := make([]string, 0, len(defs))
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if !seen[d.SignalKey] {
			seen[d.SignalKey] = true
			keys = append(keys, d.SignalKey)
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
	snaps, err := a.source.FetchBatch(fetchCtx, keys)
	cancel()
	if err != nil {
		a.logger.Warn("signal batch failed, using synthetic estimates where missing", "err", err)
	}

	pressure := a.pressure.Snapshot()
	multiplier := a.profile.Multiplier(start)

	type priced struct {
		def  instrument.Definition
		snap signal.Snapshot
		res  pricing.Result
		vol  float64
	}
	rows := make([]priced, 0, len(defs))
	moves := make([]pricing.Move, 0, len(defs))
	var fallbacks, trips int

	for _, def := range defs {
		snap, ok := snaps[def.SignalKey]
		if !ok {
			snap = signal.Synthetic(def, start)
			fallbacks++
			a.logger.Warn("signal unavailable, using synthetic estimate", "instrument", def.ID, "key", def.SignalKey)
		}
		snap = snap.Normalize()
		p := pressure[def.ID]
		res := a.engine.ComputePrice(def, snap, p.Volume(), p.Buy, p.Sell)

		change, tripped := pricing.ClampChange(res.PercentChange*multiplier, a.cfg.MaxChangePercent)
		if tripped {
			trips++
			a.logger.Warn("circuit breaker tripped", "instrument", def.ID, "change", res.PercentChange*multiplier, "max", a.cfg.MaxChangePercent)
		}

		rows = append(rows, priced{def: def, snap: snap, res: res, vol: p.Volume()})
		moves = append(moves, pricing.Move{ID: def.ID, Category: def.Category, Previous: res.PreviousPrice, Change: change})
	}

	pricing.ApplySectorCorrelation(moves, a.cfg.CorrelationFactor)

	items := make([]market.PricedInstrument, 0, len(rows))
	for i, row := range rows {
		m := moves[i]
		if change, tripped := pricing.ClampChange(m.Change, a.cfg.MaxChangePercent); tripped {
			trips++
			m.Change = change
			m.Price = pricing.PriceFromChange(m.Previous, change)
		}
		a.engine.Remember(m.ID, m.Price)

		items = append(items, market.PricedInstrument{
			ID:            row.def.ID,
			Symbol:        row.def.Symbol,
			Name:          row.def.Name,
			Category:      row.def.Category,
			Price:         m.Price,
			PreviousPrice: m.Previous,
			PercentChange: m.Change,
			Volume:        float64(row.snap.ActiveUsers)/10*math.Max(0.1, row.snap.ActivityRatio) + row.vol,
			MarketCap:     m.Price * float64(row.snap.Subscribers),
			Drivers:       row.res.Drivers,
			UpdatedAt:     start,
		})
	}

	n := a.cycles.Add(1)
	snap := market.NewSnapshot(n, start, items, a.cfg.SentimentThreshold)
	a.published.Store(snap)
	a.pressure.Decay(a.cfg.PressureDecay)
	a.lastRefresh.Store(start.UnixNano())

	elapsed := a.now().Sub(start)
	a.metrics.RefreshCycles.Inc()
	a.metrics.CycleDuration.Observe(elapsed.Seconds())
	a.metrics.SignalFallbacks.Add(float64(fallbacks))
	a.metrics.CircuitTrips.Add(float64(trips))

	a.logger.Info("refresh cycle complete",
		"cycle", n,
		"instruments", len(items),
		"fallbacks", fallbacks,
		"circuit_trips", trips,
		"sentiment", snap.Sentiment,
		"multiplier", multiplier,
		"duration", elapsed,
	)
	return snap
}

func (a *Aggregator) afterCycle(ctx context.Context, snap *market.Snapshot) {
	a.afterMu.Lock()
	defer a.afterMu.Unlock()

	if latest := a.published.Load(); latest != nil && snap != nil && latest.Cycle > snap.Cycle {
		a.logger.Debug("after-cycle hooks superseded", "cycle", snap.Cycle, "latest", latest.Cycle)
		return
	}

	hookCtx, cancel := context.WithTimeout(ctx, a.cfg.HookTimeout)
	defer cancel()

	a.hooksMu.Lock()
	hooks := make([]CycleHook, len(a.hooks))
	copy(hooks, a.hooks)
	a.hooksMu.Unlock()

	for _, h := range hooks {
		h(hookCtx, snap)
	}
	a.saveMemory(hookCtx)
}

func (a *Aggregator) restoreMemory(ctx context.Context) {
	if a.memory == nil {
		return
	}
	restored := 0
	for _, id := range a.registry.IDs() {
		m, ok, err := a.memory.LoadPricingMemory(ctx, id)
		if err != nil {
			a.logger.Warn("load pricing memory failed", "instrument", id, "err", err)
			continue
		}
		if ok {
			a.engine.Restore(id, m)
			restored++
		}
	}
	a.logger.Info("pricing memory restored", "instruments", restored)
}

func (a *Aggregator) saveMemory(ctx context.Context) {
	if a.memory == nil {
		return
	}
	for _, id := range a.registry.IDs() {
		m, ok := a.engine.Memory(id)
		if !ok {
			continue
		}
		if err := a.memory.SavePricingMemory(ctx, id, m); err != nil {
			a.metrics.CheckpointErrors.Inc()
			a.logger.Warn("save pricing memory failed", "instrument", id, "err", err)
		}
	}
}

// Snapshot returns the published set, or nil before the first cycle.
func (a *Aggregator) Snapshot() *market.Snapshot { return a.published.Load() }

// Instrument returns one published instrument.
func (a *Aggregator) Instrument(id string) (market.PricedInstrument, bool) {
	return a.published.Load().Instrument(id)
}

// Price returns the published price of id.
func (a *Aggregator) Price(id string) (float64, bool) {
	p, ok := a.Instrument(id)
	if !ok {
		return 0, false
	}
	return p.Price, true
}

// Status returns cycle counters for health reporting.
func (a *Aggregator) Status() Status {
	s := Status{
		Cycles:  a.cycles.Load(),
		Skipped: a.skipped.Load(),
		Running: a.running.Load(),
	}
	if ns := a.lastRefresh.Load(); ns > 0 {
		s.LastRefresh = time.Unix(0, ns)
	}
	return s
}
