package core

import (
	"container/heap"
	"sort"
)

// internal resting order node (never exposed)
type restingOrder struct {
	id        OrderID
	userID    UserID
	side      Side
	price     PriceTicks
	shares    Shares
	original  Shares
	time      int64
	expiresAt int64
	seq       uint64

	level *level
	prev  *restingOrder
	next  *restingOrder
}

func (o *restingOrder) isFilled() bool { return o.shares <= 0 }

func (o *restingOrder) expired(now int64) bool { return o.expiresAt > 0 && o.expiresAt <= now }

func (o *restingOrder) touched() bool { return o.shares < o.original }

func (o *restingOrder) entry() Entry {
	return Entry{
		OrderID:   o.id,
		UserID:    o.userID,
		Side:      o.side,
		Price:     o.price,
		Remaining: o.shares,
		Original:  o.original,
		Time:      o.time,
		ExpiresAt: o.expiresAt,
	}
}

type level struct {
	price      PriceTicks
	head, tail *restingOrder
	total      Shares
}

func (l *level) append(o *restingOrder) {
	o.level = l
	o.prev = l.tail
	o.next = nil
	if l.tail != nil {
		l.tail.next = o
	} else {
		l.head = o
	}
	l.tail = o
}

func (l *level) popHead() *restingOrder {
	o := l.head
	if o == nil {
		return nil
	}
	n := o.next
	l.head = n
	if n != nil {
		n.prev = nil
	} else {
		l.tail = nil
	}
	o.prev, o.next, o.level = nil, nil, nil
	return o
}

func (l *level) unlink(o *restingOrder) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		l.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		l.tail = o.prev
	}
	o.prev, o.next, o.level = nil, nil, nil
}

// heap of levels
type levelHeap struct {
	data  []*level
	index map[*level]int
	isBid bool
}

func newLevelHeap(isBid bool) *levelHeap {
	h := &levelHeap{
		data:  []*level{},
		index: map[*level]int{},
		isBid: isBid,
	}
	heap.Init(h)
	return h
}

func (h *levelHeap) Len() int { return len(h.data) }
func (h *levelHeap) Less(i, j int) bool {
	if h.isBid {
		return h.data[i].price > h.data[j].price // max-heap for bids
	}
	return h.data[i].price < h.data[j].price // min-heap for asks
}
func (h *levelHeap) Swap(i, j int) {
	h.data[i], h.data[j] = h.data[j], h.data[i]
	h.index[h.data[i]] = i
	h.index[h.data[j]] = j
}
func (h *levelHeap) Push(x any) {
	l := x.(*level)
	h.data = append(h.data, l)
	h.index[l] = len(h.data) - 1
}
func (h *levelHeap) Pop() any {
	n := len(h.data)
	if n == 0 {
		return nil
	}
	l := h.data[n-1]
	h.data = h.data[:n-1]
	delete(h.index, l)
	return l
}
func (h *levelHeap) best() *level {
	if len(h.data) == 0 {
		return nil
	}
	return h.data[0]
}
func (h *levelHeap) removeLevel(l *level) {
	i, ok := h.index[l]
	if !ok {
		return
	}
	heap.Remove(h, i)
}

type bookSide struct {
	isBid  bool
	levels map[PriceTicks]*level
	h      *levelHeap
}

func newBookSide(isBid bool) *bookSide {
	return &bookSide{
		isBid:  isBid,
		levels: map[PriceTicks]*level{},
		h:      newLevelHeap(isBid),
	}
}

func (bs *bookSide) bestLevel() *level { return bs.h.best() }

func (bs *bookSide) getOrCreate(price PriceTicks) *level {
	if l, ok := bs.levels[price]; ok {
		return l
	}
	l := &level{price: price}
	bs.levels[price] = l
	heap.Push(bs.h, l)
	return l
}

func (bs *bookSide) removeLevel(l *level) {
	delete(bs.levels, l.price)
	bs.h.removeLevel(l)
}

// sorted returns price levels best first, each with its FIFO queue.
func (bs *bookSide) sorted() []LevelSnapshot {
	prices := make([]PriceTicks, 0, len(bs.levels))
	for p := range bs.levels {
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool {
		if bs.isBid {
			return prices[i] > prices[j]
		}
		return prices[i] < prices[j]
	})

	out := make([]LevelSnapshot, 0, len(prices))
	for _, p := range prices {
		l := bs.levels[p]
		ls := LevelSnapshot{Price: p, Total: l.total}
		for o := l.head; o != nil; o = o.next {
			ls.Orders = append(ls.Orders, o.entry())
		}
		out = append(out, ls)
	}
	return out
}

type orderBook struct {
	bids *bookSide
	asks *bookSide

	orders map[OrderID]*restingOrder // resting only
	seq    uint64
}

func newOrderBook() *orderBook {
	return &orderBook{
		bids:   newBookSide(true),
		asks:   newBookSide(false),
		orders: map[OrderID]*restingOrder{},
	}
}

func (ob *orderBook) sideFor(s Side) *bookSide {
	if s == SideBuy {
		return ob.bids
	}
	return ob.asks
}

// addResting appends the remainder of o. original is the size the order was
// submitted with, so a later cancel can tell a partially filled entry apart.
func (ob *orderBook) addResting(o Order, original Shares) *restingOrder {
	ob.seq++
	node := &restingOrder{
		id:        o.ID,
		userID:    o.UserID,
		side:      o.Side,
		price:     o.Price,
		shares:    o.Shares,
		original:  original,
		time:      o.Time,
		expiresAt: o.ExpiresAt,
		seq:       ob.seq,
	}
	side := ob.sideFor(o.Side)
	l := side.getOrCreate(o.Price)
	l.append(node)
	l.total += node.shares
	ob.orders[node.id] = node
	return node
}

func (ob *orderBook) remove(node *restingOrder) {
	side := ob.sideFor(node.side)
	l := node.level
	if l != nil {
		l.total -= node.shares
		l.unlink(node)
		if l.total <= 0 || l.head == nil {
			side.removeLevel(l)
		}
	}
	delete(ob.orders, node.id)
}
