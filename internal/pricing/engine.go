// Package pricing turns engagement snapshots, trading feedback and event
// overlays into instrument prices.
package pricing

import (
	"math"
	"sync"
	"time"

	"github.com/zappabad/cloutmarket/internal/instrument"
	"github.com/zappabad/cloutmarket/internal/signal"
)

// MinPrice is the floor for every computed price.
const MinPrice = 0.01

// Config holds the model weights.
type Config struct {
	SignalWeight  float64 `yaml:"signal_weight"`
	TradingWeight float64 `yaml:"trading_weight"`
	// LiquidityDivisor scales subscribers into the liquidity term of the
	// trading impact: liquidity = max(1, subscribers/LiquidityDivisor).
	LiquidityDivisor float64 `yaml:"liquidity_divisor"`
}

// DefaultConfig returns the standard weights.
func DefaultConfig() Config {
	return Config{
		SignalWeight:     0.7,
		TradingWeight:    0.3,
		LiquidityDivisor: 100_000,
	}
}

// Drivers breaks a price down into its contributing factors.
type Drivers struct {
	BasePrice     float64 `json:"base_price"`
	SignalImpact  float64 `json:"signal_impact"`
	TradingImpact float64 `json:"trading_impact"`
	EventImpact   float64 `json:"event_impact"`
	Origin        string  `json:"origin"`
}

// Result is the output of one ComputePrice call.
type Result struct {
	BasePrice  float64
	FinalPrice float64
	// PreviousPrice is the remembered price the change is measured against.
	PreviousPrice float64
	// PublishedPrice is the volatility-adjusted price, also stored as the
	// new memory.
	PublishedPrice float64
	PercentChange  float64
	Drivers       Drivers
}

// Memory is the per-instrument state carried between calls.
type Memory struct {
	PreviousPrice     float64 `json:"previous_price"`
	LastTradingImpact float64 `json:"last_trading_impact"`
}

type slot struct {
	mu  sync.Mutex
	mem Memory
}

// Engine computes prices. Its only state is one Memory per instrument;
// calls for different instruments never contend.
type Engine struct {
	cfg     Config
	overlay *Overlay
	now     func() time.Time
	slots   sync.Map // instrument id -> *slot
}

// NewEngine creates an Engine reading event impacts from overlay, which may be nil.
func NewEngine(cfg Config, overlay *Overlay) *Engine {
	d := DefaultConfig()
	if cfg.SignalWeight == 0 && cfg.TradingWeight == 0 {
		cfg.SignalWeight, cfg.TradingWeight = d.SignalWeight, d.TradingWeight
	}
	if cfg.LiquidityDivisor <= 0 {
		cfg.LiquidityDivisor = d.LiquidityDivisor
	}
	if overlay == nil {
		overlay = NewOverlay()
	}
	return &Engine{cfg: cfg, overlay: overlay, now: time.Now}
}

// SetClock overrides the clock used to expire event overlays.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Overlay returns the event overlay the engine reads.
func (e *Engine) Overlay() *Overlay { return e.overlay }

func (e *Engine) slot(id string) *slot {
	if s, ok := e.slots.Load(id); ok {
		return s.(*slot)
	}
	s, _ := e.slots.LoadOrStore(id, &slot{})
	return s.(*slot)
}

// BasePrice derives the community-size component of the price.
func BasePrice(def instrument.Definition, snap signal.Snapshot) float64 {
	return math.Max(1, float64(snap.Subscribers)/1000*def.CategoryMultiplier+float64(snap.ActiveUsers)/100*0.5)
}

// SignalImpact combines the engagement metrics into a fractional impact.
func SignalImpact(snap signal.Snapshot) float64 {
	activity := snap.ActivityRatio - 1
	quality := snap.Engagement - 0.5
	raw := snap.GrowthRate*0.3 + activity*0.2 + quality*0.15 + snap.ViralBoost + snap.Sentiment*0.1
	return raw * (1 + math.Abs(activity)*0.2)
}

// TradingImpact turns accumulated pressure into a fractional impact. It is
// zero when nothing traded.
func TradingImpact(volume, buy, sell, liquidity float64) float64 {
	if volume <= 0 {
		return 0
	}
	if liquidity < 1 {
		liquidity = 1
	}
	return (buy-sell)/volume*0.3 + (volume/1000)/liquidity*0.1
}

// ComputePrice prices def from snap and the trading pressure accumulated
// since the last cycle. It never fails; degenerate input yields MinPrice.
func (e *Engine) ComputePrice(def instrument.Definition, snap signal.Snapshot, volume, buy, sell float64) Result {
	snap = snap.Normalize()
	base := BasePrice(def, snap)
	sig := SignalImpact(snap)
	liquidity := math.Max(1, float64(snap.Subscribers)/e.cfg.LiquidityDivisor)
	trade := TradingImpact(volume, buy, sell, liquidity)
	event := e.overlay.Impact(def.ID, e.now())

	s := e.slot(def.ID)
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.mem.PreviousPrice
	if !validPrice(prev) {
		prev = 0
	}

	final := base * (1 + e.cfg.SignalWeight*sig + e.cfg.TradingWeight*trade + event)
	switch {
	case math.IsNaN(final) || math.IsInf(final, 1):
		final = prev
		if final == 0 {
			final = MinPrice
		}
	case final < MinPrice:
		final = MinPrice
	}
	if !isFinite(sig) {
		sig = 0
	}
	if !isFinite(trade) {
		trade = 0
	}

	if prev == 0 {
		prev = final
	}
	raw := (final - prev) / prev * 100
	if !isFinite(raw) {
		raw = 0
	}
	next := prev * (1 + raw*def.Volatility/100)
	if !isFinite(next) {
		next = prev
	}
	next = math.Max(MinPrice, next)

	s.mem = Memory{PreviousPrice: next, LastTradingImpact: trade}

	return Result{
		BasePrice:      base,
		FinalPrice:     final,
		PreviousPrice:  prev,
		PublishedPrice: next,
		PercentChange:  (next - prev) / prev * 100,
		Drivers: Drivers{
			BasePrice:     base,
			SignalImpact:  sig,
			TradingImpact: trade,
			EventImpact:   event,
			Origin:        snap.Origin.String(),
		},
	}
}

// Remember overwrites the remembered price for id, e.g. after cross-
// instrument adjustments changed the published price.
func (e *Engine) Remember(id string, price float64) {
	if !isFinite(price) {
		return
	}
	s := e.slot(id)
	s.mu.Lock()
	s.mem.PreviousPrice = math.Max(MinPrice, price)
	s.mu.Unlock()
}

// Memory returns the state remembered for id.
func (e *Engine) Memory(id string) (Memory, bool) {
	v, ok := e.slots.Load(id)
	if !ok {
		return Memory{}, false
	}
	s := v.(*slot)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mem, s.mem.PreviousPrice > 0
}

// Restore seeds the memory for id, typically from a checkpoint.
func (e *Engine) Restore(id string, m Memory) {
	if !validPrice(m.PreviousPrice) {
		return
	}
	if !isFinite(m.LastTradingImpact) {
		m.LastTradingImpact = 0
	}
	s := e.slot(id)
	s.mu.Lock()
	s.mem = m
	s.mu.Unlock()
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func validPrice(v float64) bool { return isFinite(v) && v > 0 }
