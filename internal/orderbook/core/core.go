package core

import (
	"errors"
	"sort"
	"strconv"
)

var (
	ErrInvalidOrder     = errors.New("invalid order")
	ErrDuplicateID      = errors.New("duplicate order id")
	ErrNotFound         = errors.New("order not found")
	ErrPartiallyFilled  = errors.New("order partially filled")
	ErrNotOwner         = errors.New("order owned by another user")
	ErrInvalidLiquidity = errors.New("invalid liquidity trade")
)

// Fill represents a single fill from a match.
type Fill struct {
	TradeID      string
	MakerOrderID OrderID
	MakerUserID  UserID
	Price        PriceTicks
	Shares       Shares
}

// SubmitReport is returned after submitting an order.
type SubmitReport struct {
	OrderID   OrderID
	Remaining Shares
	Fills     []Fill
	Rested    bool
}

// CancelReport is returned after canceling an order.
type CancelReport struct {
	OrderID      OrderID
	CanceledSize Shares
	Entry        Entry
}

// Entry is a read-only copy of a resting order.
type Entry struct {
	OrderID   OrderID
	UserID    UserID
	Side      Side
	Price     PriceTicks
	Remaining Shares
	Original  Shares
	Time      int64
	ExpiresAt int64
}

// LevelSnapshot is one price level with its orders in arrival order.
type LevelSnapshot struct {
	Price  PriceTicks
	Total  Shares
	Orders []Entry
}

// BookSnapshot is a point-in-time copy of the book. Bids are sorted
// descending and asks ascending.
type BookSnapshot struct {
	Bids      []LevelSnapshot
	Asks      []LevelSnapshot
	LastTrade *TradeEvent
}

// BestBid returns the highest bid price, if any.
func (s BookSnapshot) BestBid() (PriceTicks, bool) {
	if len(s.Bids) == 0 {
		return 0, false
	}
	return s.Bids[0].Price, true
}

// BestAsk returns the lowest ask price, if any.
func (s BookSnapshot) BestAsk() (PriceTicks, bool) {
	if len(s.Asks) == 0 {
		return 0, false
	}
	return s.Asks[0].Price, true
}

// Option configures a Core.
type Option func(*Core)

// WithTradeIDs sets the generator used for trade ids.
func WithTradeIDs(next func() string) Option {
	return func(c *Core) {
		if next != nil {
			c.nextTradeID = next
		}
	}
}

// Core is the deterministic order matching engine.
// It has no goroutines, mutexes, channels, or time calls.
type Core struct {
	ob          *orderBook
	lastTrade   *TradeEvent
	tradeSeq    uint64
	nextTradeID func() string
}

// NewCore creates a new Core instance.
func NewCore(opts ...Option) *Core {
	c := &Core{ob: newOrderBook()}
	c.nextTradeID = func() string {
		c.tradeSeq++
		return "T" + strconv.FormatUint(c.tradeSeq, 10)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func validateLimit(o Order) error {
	if o.Kind != OrderKindLimit {
		return ErrInvalidOrder
	}
	if o.ID == "" || o.UserID == "" {
		return ErrInvalidOrder
	}
	if o.Shares <= 0 {
		return ErrInvalidOrder
	}
	if o.Price <= 0 {
		return ErrInvalidOrder
	}
	if !o.Side.Valid() {
		return ErrInvalidOrder
	}
	if o.Time <= 0 {
		return ErrInvalidOrder
	}
	if o.Expired(o.Time) {
		return ErrInvalidOrder
	}
	return nil
}

// SubmitLimit submits a limit order to the book. Matching is price first,
// then arrival time; every slice executes at the resting order's price.
func (c *Core) SubmitLimit(o Order) (SubmitReport, []Event, error) {
	if err := validateLimit(o); err != nil {
		return SubmitReport{}, nil, err
	}
	if _, exists := c.ob.orders[o.ID]; exists {
		return SubmitReport{}, nil, ErrDuplicateID
	}

	remaining := o.Shares
	fills, evs := c.match(o, &remaining)

	rested := false
	if remaining > 0 {
		original := o.Shares
		o.Shares = remaining
		c.ob.addResting(o, original)
		rested = true
		evs = append(evs, OrderRestedEvent{
			OrderID: o.ID, UserID: o.UserID, Side: o.Side,
			Price: o.Price, Shares: remaining, Time: o.Time, ExpiresAt: o.ExpiresAt,
		})
	}

	return SubmitReport{
		OrderID:   o.ID,
		Remaining: remaining,
		Fills:     fills,
		Rested:    rested,
	}, evs, nil
}

// Cancel cancels a resting order owned by userID. A resting order that has
// already been partially filled cannot be cancelled.
func (c *Core) Cancel(id OrderID, userID UserID, now int64) (CancelReport, []Event, error) {
	if id == "" || now <= 0 {
		return CancelReport{}, nil, ErrInvalidOrder
	}
	node, ok := c.ob.orders[id]
	if !ok {
		return CancelReport{}, nil, ErrNotFound
	}
	if node.userID != userID {
		return CancelReport{}, nil, ErrNotOwner
	}
	if node.touched() {
		return CancelReport{}, nil, ErrPartiallyFilled
	}
	entry := node.entry()
	c.ob.remove(node)
	ev := OrderRemovedEvent{
		OrderID:   node.id,
		Reason:    RemoveReasonCanceled,
		Remaining: node.shares,
		Price:     node.price,
		Side:      node.side,
		UserID:    node.userID,
		Time:      now,
	}
	return CancelReport{OrderID: id, CanceledSize: node.shares, Entry: entry}, []Event{ev}, nil
}

// SweepExpired removes every resting order whose expiry is at or before now.
func (c *Core) SweepExpired(now int64) []Event {
	var expired []*restingOrder
	for _, node := range c.ob.orders {
		if node.expired(now) {
			expired = append(expired, node)
		}
	}
	if len(expired) == 0 {
		return nil
	}
	// deterministic event order
	sortByArrival(expired)

	evs := make([]Event, 0, len(expired))
	for _, node := range expired {
		evs = append(evs, c.expire(node, now))
	}
	return evs
}

// RecordTrade records a fill against simulated liquidity so that it shows up
// as the last trade. The book itself is not touched.
func (c *Core) RecordTrade(ev TradeEvent) (TradeEvent, error) {
	if ev.MakerOrderID != "" || ev.TakerOrderID == "" || ev.Shares <= 0 || ev.Price <= 0 {
		return TradeEvent{}, ErrInvalidLiquidity
	}
	if ev.TradeID == "" {
		ev.TradeID = c.nextTradeID()
	}
	last := ev
	c.lastTrade = &last
	return ev, nil
}

// Snapshot returns a sorted copy of both sides of the book.
func (c *Core) Snapshot() BookSnapshot {
	snap := BookSnapshot{
		Bids: c.ob.bids.sorted(),
		Asks: c.ob.asks.sorted(),
	}
	if c.lastTrade != nil {
		last := *c.lastTrade
		snap.LastTrade = &last
	}
	return snap
}

// Order returns the resting entry for id.
func (c *Core) Order(id OrderID) (Entry, bool) {
	node, ok := c.ob.orders[id]
	if !ok {
		return Entry{}, false
	}
	return node.entry(), true
}

// Len returns the number of resting orders.
func (c *Core) Len() int { return len(c.ob.orders) }

func (c *Core) expire(node *restingOrder, now int64) Event {
	c.ob.remove(node)
	return OrderRemovedEvent{
		OrderID:   node.id,
		Reason:    RemoveReasonExpired,
		Remaining: node.shares,
		Price:     node.price,
		Side:      node.side,
		UserID:    node.userID,
		Time:      now,
	}
}

// match consumes from opposite book. It mutates resting makers and emits events.
func (c *Core) match(taker Order, remaining *Shares) ([]Fill, []Event) {
	var (
		fills  []Fill
		events []Event
	)

	opp := c.ob.asks
	if taker.Side == SideSell {
		opp = c.ob.bids
	}

	for *remaining > 0 {
		best := opp.bestLevel()
		if best == nil {
			break
		}

		switch taker.Side {
		case SideBuy:
			if best.price > taker.Price {
				return fills, events
			}
		case SideSell:
			if best.price < taker.Price {
				return fills, events
			}
		}

		for *remaining > 0 && best.head != nil {
			maker := best.head
			if maker.expired(taker.Time) {
				events = append(events, c.expire(maker, taker.Time))
				continue
			}
			if maker.shares <= 0 {
				best.popHead()
				delete(c.ob.orders, maker.id)
				continue
			}

			traded := *remaining
			if maker.shares < traded {
				traded = maker.shares
			}

			*remaining -= traded
			maker.shares -= traded
			best.total -= traded

			trade := TradeEvent{
				TradeID:   c.nextTradeID(),
				Price:     best.price,
				Shares:    traded,
				TakerSide: taker.Side,
				Time:      taker.Time,

				TakerOrderID: taker.ID,
				TakerUserID:  taker.UserID,
				MakerOrderID: maker.id,
				MakerUserID:  maker.userID,
			}
			last := trade
			c.lastTrade = &last

			fills = append(fills, Fill{
				TradeID:      trade.TradeID,
				MakerOrderID: maker.id,
				MakerUserID:  maker.userID,
				Price:        best.price,
				Shares:       traded,
			})
			events = append(events, trade)

			if maker.isFilled() {
				best.popHead()
				delete(c.ob.orders, maker.id)

				events = append(events, OrderRemovedEvent{
					OrderID:   maker.id,
					Reason:    RemoveReasonFilled,
					Remaining: 0,
					Price:     maker.price,
					Side:      maker.side,
					UserID:    maker.userID,
					Time:      taker.Time,
				})
			} else {
				events = append(events, OrderReducedEvent{
					OrderID:   maker.id,
					Delta:     -traded,
					Remaining: maker.shares,
					Price:     maker.price,
					Side:      maker.side,
					UserID:    maker.userID,
					MatchTime: taker.Time,
				})
			}
		}

		// expire() may already have dropped the level
		if _, live := opp.levels[best.price]; live && (best.total <= 0 || best.head == nil) {
			opp.removeLevel(best)
		}
	}

	return fills, events
}

func sortByArrival(nodes []*restingOrder) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].seq < nodes[j].seq })
}
