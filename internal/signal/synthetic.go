package signal

import (
	"hash/fnv"
	"time"

	"github.com/zappabad/cloutmarket/internal/instrument"
)

type profile struct {
	subscribers float64
	activeRatio float64
	growth      float64
	activity    float64
	engagement  float64
	viral       float64
	sentiment   float64
}

func categoryProfile(c instrument.Category) profile {
	switch c {
	case instrument.CategoryTechnology:
		return profile{subscribers: 4_000_000, activeRatio: 0.004, growth: 0.010, activity: 1.05, engagement: 0.62, viral: 0.02, sentiment: 0.10}
	case instrument.CategoryGaming:
		return profile{subscribers: 3_000_000, activeRatio: 0.006, growth: 0.015, activity: 1.10, engagement: 0.58, viral: 0.04, sentiment: 0.15}
	case instrument.CategoryFinance:
		return profile{subscribers: 2_500_000, activeRatio: 0.008, growth: 0.020, activity: 1.20, engagement: 0.55, viral: 0.06, sentiment: 0.00}
	case instrument.CategoryEntertainment:
		return profile{subscribers: 3_500_000, activeRatio: 0.005, growth: 0.008, activity: 1.00, engagement: 0.52, viral: 0.03, sentiment: 0.20}
	case instrument.CategoryScience:
		return profile{subscribers: 2_000_000, activeRatio: 0.003, growth: 0.006, activity: 0.95, engagement: 0.70, viral: 0.01, sentiment: 0.25}
	case instrument.CategorySports:
		return profile{subscribers: 1_500_000, activeRatio: 0.009, growth: 0.012, activity: 1.15, engagement: 0.60, viral: 0.05, sentiment: 0.05}
	case instrument.CategoryMemes:
		return profile{subscribers: 5_000_000, activeRatio: 0.007, growth: 0.025, activity: 1.30, engagement: 0.45, viral: 0.10, sentiment: 0.30}
	case instrument.CategoryLifestyle:
		return profile{subscribers: 1_200_000, activeRatio: 0.004, growth: 0.007, activity: 0.98, engagement: 0.65, viral: 0.01, sentiment: 0.15}
	}
	return profile{subscribers: 1_000_000, activeRatio: 0.005, growth: 0, activity: 1, engagement: 0.5}
}

// Synthetic returns the deterministic category-based estimate for def. The
// same definition always yields the same values; only CapturedAt varies.
func Synthetic(def instrument.Definition, now time.Time) Snapshot {
	p := categoryProfile(def.Category)

	// spread instruments of one category between 0.5x and 1.5x of the profile
	h := fnv.New32a()
	_, _ = h.Write([]byte(def.SignalKey))
	scale := 0.5 + float64(h.Sum32()%1000)/1000

	subs := p.subscribers * scale
	return Snapshot{
		Key:           def.SignalKey,
		Subscribers:   int64(subs),
		ActiveUsers:   int64(subs * p.activeRatio),
		GrowthRate:    p.growth,
		ActivityRatio: p.activity,
		Engagement:    p.engagement,
		ViralBoost:    p.viral,
		Sentiment:     p.sentiment,
		CapturedAt:    now,
		Origin:        OriginSynthetic,
	}
}
