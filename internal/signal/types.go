// Package signal supplies per-instrument engagement snapshots and the
// deterministic fallback used when a source cannot deliver.
package signal

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrUnavailable is returned when a source has no snapshot for a key.
var ErrUnavailable = errors.New("signal unavailable")

// Origin records where a snapshot came from.
type Origin uint8

const (
	OriginLive Origin = iota
	OriginSynthetic
)

func (o Origin) String() string {
	switch o {
	case OriginLive:
		return "live"
	case OriginSynthetic:
		return "synthetic"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Origin) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Snapshot is one cycle's measurement of a community's engagement.
type Snapshot struct {
	Key         string    `json:"key"`
	Subscribers int64     `json:"subscribers"`
	ActiveUsers int64     `json:"active_users"`
	// GrowthRate is fractional subscriber growth per day (0.01 = 1%).
	GrowthRate float64 `json:"growth_rate"`
	// ActivityRatio is post activity relative to the community's baseline; 1 is normal.
	ActivityRatio float64   `json:"activity_ratio"`
	Engagement    float64   `json:"engagement"`
	ViralBoost    float64   `json:"viral_boost"`
	Sentiment     float64   `json:"sentiment"`
	CapturedAt    time.Time `json:"captured_at"`
	Origin        Origin    `json:"origin"`
}

// Normalize clamps every field into its documented range and replaces NaN
// or infinite values with neutral ones.
func (s Snapshot) Normalize() Snapshot {
	if s.Subscribers < 0 {
		s.Subscribers = 0
	}
	if s.ActiveUsers < 0 {
		s.ActiveUsers = 0
	}
	s.GrowthRate = finite(s.GrowthRate, 0)
	s.ActivityRatio = math.Max(0, finite(s.ActivityRatio, 1))
	s.Engagement = clamp(finite(s.Engagement, 0.5), 0, 1)
	s.ViralBoost = clamp(finite(s.ViralBoost, 0), 0, 1)
	s.Sentiment = clamp(finite(s.Sentiment, 0), -1, 1)
	return s
}

func finite(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

// Source fetches snapshots by signal key. FetchBatch may return a partial
// map; keys that are missing are treated as unavailable.
type Source interface {
	FetchSnapshot(ctx context.Context, key string) (Snapshot, error)
	FetchBatch(ctx context.Context, keys []string) (map[string]Snapshot, error)
}
