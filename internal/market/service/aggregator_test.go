package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zappabad/cloutmarket/internal/instrument"
	"github.com/zappabad/cloutmarket/internal/market"
	"github.com/zappabad/cloutmarket/internal/metrics"
	"github.com/zappabad/cloutmarket/internal/pricing"
	"github.com/zappabad/cloutmarket/internal/signal"
)

var noon = time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)

type stubSource struct {
	mu      sync.Mutex
	snaps   map[string]signal.Snapshot
	err     error
	block   chan struct{}
	entered chan struct{}
	calls   int
}

func (s *stubSource) FetchSnapshot(ctx context.Context, key string) (signal.Snapshot, error) {
	out, _ := s.FetchBatch(ctx, []string{key})
	snap, ok := out[key]
	if !ok {
		return signal.Snapshot{}, signal.ErrUnavailable
	}
	return snap, nil
}

func (s *stubSource) FetchBatch(ctx context.Context, keys []string) (map[string]signal.Snapshot, error) {
	s.mu.Lock()
	s.calls++
	block, entered := s.block, s.entered
	s.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	out := make(map[string]signal.Snapshot)
	for _, k := range keys {
		if snap, ok := s.snaps[k]; ok {
			out[k] = snap
		}
	}
	return out, s.err
}

type memStore struct {
	mu    sync.Mutex
	saved map[string]pricing.Memory
}

func (m *memStore) LoadPricingMemory(_ context.Context, id string) (pricing.Memory, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.saved[id]
	return mem, ok, nil
}

func (m *memStore) SavePricingMemory(_ context.Context, id string, mem pricing.Memory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[id] = mem
	return nil
}

func neutral(key string, subs, active int64) signal.Snapshot {
	return signal.Snapshot{Key: key, Subscribers: subs, ActiveUsers: active, ActivityRatio: 1, Engagement: 0.5}
}

type fixture struct {
	agg      *Aggregator
	src      *stubSource
	pressure *pricing.PressureBook
	metrics  *metrics.Metrics
	reg      *instrument.Registry
}

func newFixture(t *testing.T, defs []instrument.Definition, src *stubSource, opts ...Option) *fixture {
	t.Helper()
	reg, err := instrument.NewRegistry(defs)
	require.NoError(t, err)

	engine := pricing.NewEngine(pricing.DefaultConfig(), pricing.NewOverlay())
	engine.SetClock(func() time.Time { return noon })
	pressure := pricing.NewPressureBook()
	m := metrics.New()

	// a Wednesday at noon has a multiplier of exactly 1
	profile := pricing.NewTimeProfile(time.UTC, "")
	opts = append([]Option{
		WithClock(func() time.Time { return noon }),
		WithMetrics(m),
		WithTimeProfile(profile),
	}, opts...)

	return &fixture{
		agg:      New(reg, src, engine, pressure, DefaultConfig(), opts...),
		src:      src,
		pressure: pressure,
		metrics:  m,
		reg:      reg,
	}
}

func def(id string, cat instrument.Category) instrument.Definition {
	return instrument.Definition{ID: id, Symbol: id, SignalKey: id, Category: cat, Volatility: 1, CategoryMultiplier: 2}
}

func TestRefreshPublishesSnapshot(t *testing.T) {
	src := &stubSource{snaps: map[string]signal.Snapshot{
		"code": neutral("code", 1_000_000, 10_000),
	}}
	f := newFixture(t, []instrument.Definition{def("code", instrument.CategoryTechnology)}, src)

	assert.Nil(t, f.agg.Snapshot())
	require.True(t, f.agg.RefreshOnce(context.Background()))

	snap := f.agg.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, uint64(1), snap.Cycle)

	p, ok := f.agg.Instrument("code")
	require.True(t, ok)
	// base 2000 + 50, first cycle has no memory so the change is zero
	assert.InDelta(t, 2050, p.Price, 1e-9)
	assert.InDelta(t, 0, p.PercentChange, 1e-9)
	assert.InDelta(t, 1000, p.Volume, 1e-9)
	assert.InDelta(t, 2050*1_000_000, p.MarketCap, 1e-3)
	assert.Equal(t, "live", p.Drivers.Origin)
	assert.Equal(t, market.SentimentNeutral, snap.Sentiment)

	price, ok := f.agg.Price("code")
	require.True(t, ok)
	assert.InDelta(t, 2050, price, 1e-9)

	_, ok = f.agg.Price("missing")
	assert.False(t, ok)

	st := f.agg.Status()
	assert.Equal(t, uint64(1), st.Cycles)
	assert.True(t, st.LastRefresh.Equal(noon))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RefreshCycles))
}

func TestRefreshFallsBackToSynthetic(t *testing.T) {
	src := &stubSource{err: errors.New("upstream down")}
	f := newFixture(t, []instrument.Definition{def("code", instrument.CategoryTechnology)}, src)

	require.True(t, f.agg.RefreshOnce(context.Background()))

	p, ok := f.agg.Instrument("code")
	require.True(t, ok)
	assert.Equal(t, "synthetic", p.Drivers.Origin)
	assert.Greater(t, p.Price, 0.0)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SignalFallbacks))
}

func TestCircuitBreakerClampsMove(t *testing.T) {
	src := &stubSource{snaps: map[string]signal.Snapshot{
		"code": neutral("code", 1_000_000, 10_000),
	}}
	f := newFixture(t, []instrument.Definition{def("code", instrument.CategoryTechnology)}, src)
	require.True(t, f.agg.RefreshOnce(context.Background()))

	// doubling the audience would move the price far beyond the band
	src.snaps["code"] = neutral("code", 2_000_000, 20_000)
	require.True(t, f.agg.RefreshOnce(context.Background()))

	p, _ := f.agg.Instrument("code")
	assert.InDelta(t, 10, p.PercentChange, 1e-9)
	assert.InDelta(t, 2050*1.1, p.Price, 1e-6)
	assert.InDelta(t, 2050, p.PreviousPrice, 1e-9)
	assert.GreaterOrEqual(t, testutil.ToFloat64(f.metrics.CircuitTrips), 1.0)
}

func TestSectorAggregates(t *testing.T) {
	src := &stubSource{snaps: map[string]signal.Snapshot{
		"a": neutral("a", 100_000, 1_000),
		"b": neutral("b", 200_000, 2_000),
		"c": neutral("c", 300_000, 3_000),
	}}
	f := newFixture(t, []instrument.Definition{
		def("a", instrument.CategoryTechnology),
		def("b", instrument.CategoryTechnology),
		def("c", instrument.CategoryGaming),
	}, src)
	require.True(t, f.agg.RefreshOnce(context.Background()))

	snap := f.agg.Snapshot()
	require.Len(t, snap.Instruments, 3)
	require.Len(t, snap.Sectors, 2)
	counts := map[instrument.Category]int{}
	for _, s := range snap.Sectors {
		counts[s.Category] = s.Count
	}
	assert.Equal(t, 2, counts[instrument.CategoryTechnology])
	assert.Equal(t, 1, counts[instrument.CategoryGaming])
}

func TestTradingPressureDecaysAfterCycle(t *testing.T) {
	src := &stubSource{snaps: map[string]signal.Snapshot{
		"code": neutral("code", 1_000_000, 10_000),
	}}
	f := newFixture(t, []instrument.Definition{def("code", instrument.CategoryTechnology)}, src)
	f.pressure.Record("code", true, 100)

	require.True(t, f.agg.RefreshOnce(context.Background()))

	p, _ := f.agg.Instrument("code")
	assert.InDelta(t, 1100, p.Volume, 1e-9)
	assert.Greater(t, p.Drivers.TradingImpact, 0.0)
	assert.InDelta(t, 50, f.pressure.Get("code").Buy, 1e-9)
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	src := &stubSource{
		snaps:   map[string]signal.Snapshot{"code": neutral("code", 1_000_000, 10_000)},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	f := newFixture(t, []instrument.Definition{def("code", instrument.CategoryTechnology)}, src)

	done := make(chan bool)
	go func() { done <- f.agg.RefreshOnce(context.Background()) }()
	<-src.entered

	assert.False(t, f.agg.RefreshOnce(context.Background()))
	assert.Nil(t, f.agg.Snapshot())

	close(src.block)
	assert.True(t, <-done)

	st := f.agg.Status()
	assert.Equal(t, uint64(1), st.Cycles)
	assert.Equal(t, int64(1), st.Skipped)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RefreshSkipped))
}

func TestCycleHooksAndMemory(t *testing.T) {
	src := &stubSource{snaps: map[string]signal.Snapshot{
		"code": neutral("code", 1_000_000, 10_000),
	}}
	store := &memStore{saved: map[string]pricing.Memory{
		"code": {PreviousPrice: 2000},
	}}
	f := newFixture(t, []instrument.Definition{def("code", instrument.CategoryTechnology)}, src, WithMemoryStore(store))

	var got []uint64
	f.agg.OnCycle(func(_ context.Context, snap *market.Snapshot) {
		got = append(got, snap.Cycle)
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.agg.Start(ctx))
	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, f.agg.Stop(stopCtx))

	require.Equal(t, []uint64{1}, got)

	// the restored previous price makes the first cycle a real move
	p, _ := f.agg.Instrument("code")
	assert.InDelta(t, 2000, p.PreviousPrice, 1e-9)
	assert.Greater(t, p.PercentChange, 0.0)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.InDelta(t, p.Price, store.saved["code"].PreviousPrice, 1e-9)
}

func TestSlowHookDoesNotSkipNextCycle(t *testing.T) {
	src := &stubSource{snaps: map[string]signal.Snapshot{"code": neutral("code", 1_000_000, 10_000)}}
	f := newFixture(t, []instrument.Definition{def("code", instrument.CategoryTechnology)}, src)

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var got []uint64
	f.agg.OnCycle(func(_ context.Context, snap *market.Snapshot) {
		if snap.Cycle == 1 {
			close(entered)
			<-release
		}
		mu.Lock()
		got = append(got, snap.Cycle)
		mu.Unlock()
	})

	first := make(chan bool)
	go func() { first <- f.agg.RefreshOnce(context.Background()) }()
	<-entered

	second := make(chan bool)
	go func() { second <- f.agg.RefreshOnce(context.Background()) }()
	require.Eventually(t, func() bool {
		snap := f.agg.Snapshot()
		return snap != nil && snap.Cycle == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(2), f.agg.Status().Cycles)

	close(release)
	assert.True(t, <-first)
	assert.True(t, <-second)

	assert.Zero(t, f.agg.Status().Skipped)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 2}, got)
}

func TestIntervalFollowsPeakWindow(t *testing.T) {
	f := newFixture(t, []instrument.Definition{def("code", instrument.CategoryTechnology)}, &stubSource{})
	cfg := DefaultConfig()

	assert.Equal(t, cfg.OffPeakInterval, f.agg.Interval(noon))
	assert.Equal(t, cfg.PeakInterval, f.agg.Interval(noon.Add(6*time.Hour)))
	assert.Equal(t, cfg.OffPeakInterval, f.agg.Interval(noon.Add(11*time.Hour)))
}
