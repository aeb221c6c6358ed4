// Package strategy holds the bot strategies.
package strategy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zappabad/cloutmarket/internal/orderbook/core"
	"github.com/zappabad/cloutmarket/internal/trader"
)

// MakerConfig tunes a MarketMaker.
type MakerConfig struct {
	// Instruments limits quoting to these ids; empty quotes every instrument.
	Instruments []string `yaml:"instruments"`
	// Spread is the fractional distance of each quote from the published
	// price.
	Spread float64 `yaml:"spread"`
	// EventSpreadMultiplier widens the spread while an event is active on
	// the instrument.
	EventSpreadMultiplier float64       `yaml:"event_spread_multiplier"`
	Shares                int64         `yaml:"shares"`
	Expiry                time.Duration `yaml:"expiry"`
	// PerTick is how many instruments are quoted per tick, round-robin.
	PerTick int `yaml:"per_tick"`
}

// DefaultMakerConfig returns a tight two-sided quote of 10 shares.
func DefaultMakerConfig() MakerConfig {
	return MakerConfig{
		Spread:                0.01,
		EventSpreadMultiplier: 2,
		Shares:                10,
		Expiry:                2 * time.Minute,
		PerTick:               3,
	}
}

// MarketMaker quotes a bid and an ask around the published price. A side
// is skipped when the book already has a better or equal quote on it.
type MarketMaker struct {
	botID trader.BotID
	cfg   MakerConfig
	allow map[string]bool
	next  int
}

// NewMarketMaker creates a MarketMaker for botID.
func NewMarketMaker(botID trader.BotID, cfg MakerConfig) *MarketMaker {
	d := DefaultMakerConfig()
	if cfg.Spread <= 0 {
		cfg.Spread = d.Spread
	}
	if cfg.EventSpreadMultiplier < 1 {
		cfg.EventSpreadMultiplier = d.EventSpreadMultiplier
	}
	if cfg.Shares <= 0 {
		cfg.Shares = d.Shares
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = d.Expiry
	}
	if cfg.PerTick <= 0 {
		cfg.PerTick = d.PerTick
	}
	m := &MarketMaker{botID: botID, cfg: cfg}
	if len(cfg.Instruments) > 0 {
		m.allow = make(map[string]bool, len(cfg.Instruments))
		for _, id := range cfg.Instruments {
			m.allow[id] = true
		}
	}
	return m
}

// Quote returns the bid and ask for price at the given spread, on the cent
// grid. The bid is at least one cent and the ask above the bid.
func Quote(price, spread float64) (bid, ask decimal.Decimal) {
	cent := decimal.New(1, -2)
	p := decimal.NewFromFloat(price)
	bid = p.Mul(decimal.NewFromFloat(1 - spread)).RoundFloor(2)
	ask = p.Mul(decimal.NewFromFloat(1 + spread)).RoundCeil(2)
	if bid.LessThan(cent) {
		bid = cent
	}
	if ask.LessThanOrEqual(bid) {
		ask = bid.Add(cent)
	}
	return bid, ask
}

// Step implements Strategy.
func (m *MarketMaker) Step(ctx context.Context, now time.Time, mr MarketReader, er EventReader) ([]trader.OrderIntent, []trader.Event) {
	snap := mr.Snapshot()
	if snap == nil || len(snap.Instruments) == 0 {
		return nil, nil
	}

	var candidates []int
	for i, p := range snap.Instruments {
		if m.allow == nil || m.allow[p.ID] {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	var intents []trader.OrderIntent
	n := min(m.cfg.PerTick, len(candidates))
	for k := 0; k < n; k++ {
		if ctx.Err() != nil {
			break
		}
		p := snap.Instruments[candidates[(m.next+k)%len(candidates)]]

		spread := m.cfg.Spread
		if len(er.Active(p.ID)) > 0 {
			spread *= m.cfg.EventSpreadMultiplier
		}
		bid, ask := Quote(p.Price, spread)

		top, err := mr.TopOfBook(p.ID)
		if err != nil {
			continue
		}
		if !top.BidOK || top.BidPrice.LessThan(bid) {
			intents = append(intents, m.intent(p.ID, core.SideBuy, bid))
		}
		if !top.AskOK || top.AskPrice.GreaterThan(ask) {
			intents = append(intents, m.intent(p.ID, core.SideSell, ask))
		}
	}
	m.next = (m.next + n) % len(candidates)

	return intents, nil
}

func (m *MarketMaker) intent(id string, side core.Side, price decimal.Decimal) trader.OrderIntent {
	return trader.OrderIntent{
		InstrumentID: id,
		Kind:         core.OrderKindLimit,
		Side:         side,
		LimitPrice:   price,
		Shares:       m.cfg.Shares,
		ExpiresIn:    m.cfg.Expiry,
	}
}
