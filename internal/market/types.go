// Package market holds the published instrument set and the market-wide
// aggregates computed with it.
package market

import (
	"sort"
	"time"

	"github.com/zappabad/cloutmarket/internal/instrument"
	"github.com/zappabad/cloutmarket/internal/pricing"
)

// PricedInstrument is one published instrument.
type PricedInstrument struct {
	ID            string              `json:"id"`
	Symbol        string              `json:"symbol"`
	Name          string              `json:"name"`
	Category      instrument.Category `json:"category"`
	Price         float64             `json:"price"`
	PreviousPrice float64             `json:"previous_price"`
	PercentChange float64             `json:"percent_change"`
	Volume        float64             `json:"volume"`
	MarketCap     float64             `json:"market_cap"`
	Drivers       pricing.Drivers     `json:"drivers"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// Sentiment is the market-wide mood derived from the mean change.
type Sentiment string

const (
	SentimentBullish Sentiment = "bullish"
	SentimentBearish Sentiment = "bearish"
	SentimentNeutral Sentiment = "neutral"
)

// SectorPerformance aggregates one category of a published set.
type SectorPerformance struct {
	Category   instrument.Category `json:"category"`
	AvgChange  float64             `json:"avg_change"`
	Volume     float64             `json:"volume"`
	Count      int                 `json:"count"`
	TopGainer  string              `json:"top_gainer"`
	TopLoser   string              `json:"top_loser"`
	GainerMove float64             `json:"gainer_move"`
	LoserMove  float64             `json:"loser_move"`
}

// Snapshot is an immutable published set. It is replaced wholesale each
// cycle and never mutated after NewSnapshot returns.
type Snapshot struct {
	Cycle       uint64              `json:"cycle"`
	UpdatedAt   time.Time           `json:"updated_at"`
	Instruments []PricedInstrument  `json:"instruments"`
	AvgChange   float64             `json:"avg_change"`
	Sentiment   Sentiment           `json:"sentiment"`
	Sectors     []SectorPerformance `json:"sectors"`

	index map[string]int
}

// NewSnapshot builds a Snapshot from items, computing the aggregates.
// threshold is the mean percent change beyond which the market is bullish
// or bearish.
func NewSnapshot(cycle uint64, at time.Time, items []PricedInstrument, threshold float64) *Snapshot {
	instruments := make([]PricedInstrument, len(items))
	copy(instruments, items)
	sort.Slice(instruments, func(i, j int) bool { return instruments[i].ID < instruments[j].ID })

	s := &Snapshot{
		Cycle:       cycle,
		UpdatedAt:   at,
		Instruments: instruments,
		index:       make(map[string]int, len(instruments)),
	}
	for i, p := range instruments {
		s.index[p.ID] = i
		s.AvgChange += p.PercentChange
	}
	if n := len(instruments); n > 0 {
		s.AvgChange /= float64(n)
	}
	s.Sentiment = SentimentFor(s.AvgChange, threshold)
	s.Sectors = SectorPerformances(instruments)
	return s
}

// Instrument returns the published instrument id.
func (s *Snapshot) Instrument(id string) (PricedInstrument, bool) {
	if s == nil {
		return PricedInstrument{}, false
	}
	i, ok := s.index[id]
	if !ok {
		return PricedInstrument{}, false
	}
	return s.Instruments[i], true
}

// SentimentFor classifies a mean percent change.
func SentimentFor(avgChange, threshold float64) Sentiment {
	switch {
	case avgChange > threshold:
		return SentimentBullish
	case avgChange < -threshold:
		return SentimentBearish
	default:
		return SentimentNeutral
	}
}

// SectorPerformances groups instruments by category, in category order.
func SectorPerformances(instruments []PricedInstrument) []SectorPerformance {
	bySector := make(map[instrument.Category]*SectorPerformance)
	for _, p := range instruments {
		sp, ok := bySector[p.Category]
		if !ok {
			sp = &SectorPerformance{
				Category:   p.Category,
				TopGainer:  p.ID,
				TopLoser:   p.ID,
				GainerMove: p.PercentChange,
				LoserMove:  p.PercentChange,
			}
			bySector[p.Category] = sp
		}
		sp.Count++
		sp.AvgChange += p.PercentChange
		sp.Volume += p.Volume
		if p.PercentChange > sp.GainerMove {
			sp.TopGainer, sp.GainerMove = p.ID, p.PercentChange
		}
		if p.PercentChange < sp.LoserMove {
			sp.TopLoser, sp.LoserMove = p.ID, p.PercentChange
		}
	}

	out := make([]SectorPerformance, 0, len(bySector))
	for _, c := range instrument.Categories {
		sp, ok := bySector[c]
		if !ok {
			continue
		}
		sp.AvgChange /= float64(sp.Count)
		out = append(out, *sp)
	}
	return out
}
