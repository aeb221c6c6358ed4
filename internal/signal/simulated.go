package signal

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/zappabad/cloutmarket/internal/instrument"
)

// SimulatedConfig tunes the SimulatedSource random walk.
type SimulatedConfig struct {
	Seed uint64 `yaml:"seed"`
	// Step is the standard deviation of each cycle's multiplicative move.
	Step float64 `yaml:"step"`
	// FailureRate is the probability that a single fetch reports unavailable.
	FailureRate float64 `yaml:"failure_rate"`
}

// DefaultSimulatedConfig returns a gentle walk with no failures.
func DefaultSimulatedConfig() SimulatedConfig {
	return SimulatedConfig{Seed: 1, Step: 0.02}
}

type walk struct {
	subscribers float64
	active      float64
	activity    float64
	engagement  float64
	sentiment   float64
	viral       float64
}

// SimulatedSource produces live-looking snapshots by walking each
// community's synthetic baseline. It is used when no metrics API is
// configured.
type SimulatedSource struct {
	cfg   SimulatedConfig
	defs  map[string]instrument.Definition
	now   func() time.Time
	mu    sync.Mutex
	rng   *rand.Rand
	state map[string]*walk
}

// NewSimulatedSource creates a source for every definition in reg.
func NewSimulatedSource(reg *instrument.Registry, cfg SimulatedConfig) *SimulatedSource {
	if cfg.Step <= 0 {
		cfg.Step = DefaultSimulatedConfig().Step
	}
	s := &SimulatedSource{
		cfg:   cfg,
		defs:  make(map[string]instrument.Definition, reg.Len()),
		now:   time.Now,
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		state: make(map[string]*walk, reg.Len()),
	}
	for _, d := range reg.All() {
		s.defs[d.SignalKey] = d
	}
	return s
}

// FetchSnapshot advances and returns the walk for key.
func (s *SimulatedSource) FetchSnapshot(ctx context.Context, key string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	def, ok := s.defs[key]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrUnavailable, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.FailureRate > 0 && s.rng.Float64() < s.cfg.FailureRate {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrUnavailable, key)
	}

	now := s.now()
	base := Synthetic(def, now)
	w, ok := s.state[key]
	if !ok {
		w = &walk{
			subscribers: float64(base.Subscribers),
			active:      float64(base.ActiveUsers),
			activity:    base.ActivityRatio,
			engagement:  base.Engagement,
			sentiment:   base.Sentiment,
			viral:       base.ViralBoost,
		}
		s.state[key] = w
	}

	step := s.cfg.Step * def.Volatility
	prevSubs := w.subscribers
	w.subscribers = math.Max(1, w.subscribers*(1+s.rng.NormFloat64()*step*0.25))
	w.active = math.Max(0, w.active*(1+s.rng.NormFloat64()*step))
	// activity and sentiment mean-revert toward the baseline
	w.activity += (base.ActivityRatio-w.activity)*0.2 + s.rng.NormFloat64()*step
	w.engagement += (base.Engagement-w.engagement)*0.2 + s.rng.NormFloat64()*step*0.5
	w.sentiment += (base.Sentiment-w.sentiment)*0.2 + s.rng.NormFloat64()*step*2
	w.viral = math.Max(0, w.viral*0.7+math.Max(0, s.rng.NormFloat64())*step)

	snap := Snapshot{
		Key:           key,
		Subscribers:   int64(w.subscribers),
		ActiveUsers:   int64(w.active),
		GrowthRate:    (w.subscribers - prevSubs) / prevSubs,
		ActivityRatio: w.activity,
		Engagement:    w.engagement,
		ViralBoost:    w.viral,
		Sentiment:     w.sentiment,
		CapturedAt:    now,
		Origin:        OriginLive,
	}
	return snap.Normalize(), nil
}

// FetchBatch fetches each key in turn; unavailable keys are left out.
func (s *SimulatedSource) FetchBatch(ctx context.Context, keys []string) (map[string]Snapshot, error) {
	out := make(map[string]Snapshot, len(keys))
	for _, key := range keys {
		snap, err := s.FetchSnapshot(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			continue
		}
		out[key] = snap
	}
	return out, nil
}
