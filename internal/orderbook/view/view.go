package view

import (
	"sort"
	"sync"

	"github.com/zappabad/cloutmarket/internal/orderbook/core"
	"github.com/zappabad/cloutmarket/internal/ring"
)

// RestingOrder represents a snapshot of a resting order.
type RestingOrder struct {
	ID        core.OrderID
	UserID    core.UserID
	Side      core.Side
	Price     core.PriceTicks
	Remaining core.Shares
	Time      int64
	ExpiresAt int64
}

// Level represents aggregate shares at a price level.
type Level struct {
	Price  core.PriceTicks
	Shares core.Shares
	Orders int
}

// BookView maintains an eventually consistent, read-only view of one book,
// fed from the service's event stream. It is thread-safe and returns copies.
type BookView struct {
	mu     sync.RWMutex
	orders map[core.OrderID]RestingOrder
	depth  [2]map[core.PriceTicks]Level
	tape   *ring.Buffer[core.TradeEvent]
	volume core.Shares
}

// NewBookView creates a new BookView with the given trade tape capacity.
func NewBookView(tapeCapacity int) *BookView {
	return &BookView{
		orders: map[core.OrderID]RestingOrder{},
		depth: [2]map[core.PriceTicks]Level{
			core.SideBuy:  {},
			core.SideSell: {},
		},
		tape: ring.New[core.TradeEvent](tapeCapacity),
	}
}

// Apply processes an event and updates the view accordingly.
func (v *BookView) Apply(ev core.Event) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch e := ev.(type) {
	case core.TradeEvent:
		v.tape.Append(e)
		v.volume += e.Shares

	case core.OrderRestedEvent:
		v.orders[e.OrderID] = RestingOrder{
			ID:        e.OrderID,
			UserID:    e.UserID,
			Side:      e.Side,
			Price:     e.Price,
			Remaining: e.Shares,
			Time:      e.Time,
			ExpiresAt: e.ExpiresAt,
		}
		v.adjust(e.Side, e.Price, e.Shares, 1)

	case core.OrderReducedEvent:
		o, ok := v.orders[e.OrderID]
		if !ok {
			// event stream incomplete or out of order
			return
		}
		v.adjust(o.Side, o.Price, e.Delta, 0)
		o.Remaining = e.Remaining
		v.orders[e.OrderID] = o

	case core.OrderRemovedEvent:
		o, ok := v.orders[e.OrderID]
		if !ok {
			return
		}
		v.adjust(o.Side, o.Price, -o.Remaining, -1)
		delete(v.orders, e.OrderID)
	}
}

func (v *BookView) adjust(side core.Side, price core.PriceTicks, shares core.Shares, orders int) {
	m := v.depth[side]
	l := m[price]
	l.Price = price
	l.Shares += shares
	l.Orders += orders
	if l.Shares <= 0 || l.Orders <= 0 {
		delete(m, price)
		return
	}
	m[price] = l
}

// Levels returns aggregate shares at each price level, sorted best->worst.
func (v *BookView) Levels(side core.Side) []Level {
	v.mu.RLock()
	defer v.mu.RUnlock()

	src := v.depth[side]
	out := make([]Level, 0, len(src))
	for _, l := range src {
		out = append(out, l)
	}

	sort.Slice(out, func(i, j int) bool {
		if side == core.SideBuy {
			return out[i].Price > out[j].Price // best bid is highest
		}
		return out[i].Price < out[j].Price // best ask is lowest
	})
	return out
}

// Orders returns all resting orders on a side, sorted by price (best first), then time, then id.
func (v *BookView) Orders(side core.Side) []RestingOrder {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]RestingOrder, 0, len(v.orders))
	for _, o := range v.orders {
		if o.Side == side {
			out = append(out, o)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			if side == core.SideBuy {
				return out[i].Price > out[j].Price
			}
			return out[i].Price < out[j].Price
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})

	return out
}

// TradesLast returns the last n trades in chronological order.
func (v *BookView) TradesLast(n int) []core.TradeEvent {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.tape.Last(n)
}

// Volume returns the total shares traded since the view was created.
func (v *BookView) Volume() core.Shares {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.volume
}
