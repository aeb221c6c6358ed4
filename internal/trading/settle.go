package trading

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zappabad/cloutmarket/internal/orderbook/core"
	orderbookservice "github.com/zappabad/cloutmarket/internal/orderbook/service"
)

type orderRecord struct {
	mu       sync.Mutex
	o        Order
	notional decimal.Decimal // sum of price*shares over fills
}

func (r *orderRecord) snapshot() Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.o
}

func (r *orderRecord) fill(shares int64, price decimal.Decimal, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.o.Status.Terminal() {
		return
	}
	r.o.FilledShares += shares
	r.notional = r.notional.Add(price.Mul(decimal.NewFromInt(shares)))
	r.o.AvgFillPrice = r.notional.Div(decimal.NewFromInt(r.o.FilledShares)).Round(4)
	r.o.UpdatedAt = now

	next := StatusPartial
	if r.o.FilledShares >= r.o.Shares {
		next = StatusFilled
	}
	if canMove(r.o.Status, next) {
		r.o.Status = next
	}
}

// finish moves the order to a terminal status and reports whether it did.
func (r *orderRecord) finish(status Status, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !canMove(r.o.Status, status) {
		return false
	}
	r.o.Status = status
	r.o.UpdatedAt = now
	return true
}

// hookFor returns the settlement hook for one instrument's book. It runs on
// the book's actor goroutine, so a fill is settled before the book accepts
// its next command.
func (e *Engine) hookFor(instrumentID string) orderbookservice.EventHook {
	return func(ev core.Event) {
		switch ev := ev.(type) {
		case core.TradeEvent:
			if ev.Liquidity() {
				return
			}
			e.settleTrade(instrumentID, ev)
		case core.OrderRemovedEvent:
			e.settleRemoval(ev)
		}
	}
}

func (e *Engine) settleTrade(instrumentID string, ev core.TradeEvent) {
	price := ev.Price.Decimal()
	now := time.Unix(0, ev.Time)
	shares := int64(ev.Shares)

	e.settleLeg(instrumentID, string(ev.TakerOrderID), shares, price, now)
	e.settleLeg(instrumentID, string(ev.MakerOrderID), shares, price, now)

	e.pressure.Record(instrumentID, ev.TakerSide == core.SideBuy, shares)
	e.metrics.Trades.WithLabelValues("book").Inc()
}

// settleLeg moves cash and shares for one side of a fill and consumes the
// matching slice of its reservation.
func (e *Engine) settleLeg(instrumentID, orderID string, shares int64, price decimal.Decimal, now time.Time) {
	rec, ok := e.lookup(orderID)
	if !ok {
		e.logger.Error("fill for unknown order", "instrument", instrumentID, "order", orderID)
		return
	}
	o := rec.snapshot()
	acct, ok := e.accounts.Lookup(o.UserID)
	if !ok {
		e.logger.Error("fill for unknown account", "order", orderID, "user", o.UserID)
		return
	}

	var err error
	if o.Side == core.SideBuy {
		release := o.LimitPrice.Mul(decimal.NewFromInt(shares))
		err = acct.ApplyBuy(instrumentID, shares, price, release, now)
	} else {
		err = acct.ApplySell(instrumentID, shares, price, shares, now)
	}
	if err != nil {
		// reservations cover every fill; reaching this is a bug
		e.logger.Error("settlement failed", "order", orderID, "user", o.UserID, "err", err)
	}
	rec.fill(shares, price, now)
}

func (e *Engine) settleRemoval(ev core.OrderRemovedEvent) {
	rec, ok := e.lookup(string(ev.OrderID))
	if !ok {
		return
	}
	now := time.Unix(0, ev.Time)

	var status Status
	switch ev.Reason {
	case core.RemoveReasonFilled:
		rec.finish(StatusFilled, now)
		return
	case core.RemoveReasonCanceled:
		status = StatusCancelled
	case core.RemoveReasonExpired:
		status = StatusExpired
		e.metrics.OrdersExpired.Inc()
	default:
		return
	}

	o := rec.snapshot()
	if acct, ok := e.accounts.Lookup(o.UserID); ok && ev.Remaining > 0 {
		remaining := int64(ev.Remaining)
		if o.Side == core.SideBuy {
			acct.ReleaseCash(o.LimitPrice.Mul(decimal.NewFromInt(remaining)))
		} else {
			acct.ReleaseShares(o.InstrumentID, remaining)
		}
	}
	rec.finish(status, now)
}
