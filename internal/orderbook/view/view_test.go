package view

import (
	"testing"

	"github.com/zappabad/cloutmarket/internal/orderbook/core"
)

func TestBookViewTracksDepth(t *testing.T) {
	v := NewBookView(2)

	v.Apply(core.OrderRestedEvent{OrderID: "a", UserID: "u", Side: core.SideSell, Price: 950, Shares: 50, Time: 1})
	v.Apply(core.OrderRestedEvent{OrderID: "b", UserID: "u", Side: core.SideSell, Price: 940, Shares: 30, Time: 2})
	v.Apply(core.TradeEvent{TradeID: "t1", Price: 940, Shares: 30})
	v.Apply(core.OrderRemovedEvent{OrderID: "b", Reason: core.RemoveReasonFilled})
	v.Apply(core.TradeEvent{TradeID: "t2", Price: 950, Shares: 30})
	v.Apply(core.OrderReducedEvent{OrderID: "a", Delta: -30, Remaining: 20})

	levels := v.Levels(core.SideSell)
	if len(levels) != 1 {
		t.Fatalf("expected 1 ask level, got %d", len(levels))
	}
	if levels[0].Price != 950 || levels[0].Shares != 20 || levels[0].Orders != 1 {
		t.Errorf("unexpected level %+v", levels[0])
	}

	orders := v.Orders(core.SideSell)
	if len(orders) != 1 || orders[0].Remaining != 20 {
		t.Errorf("unexpected orders %+v", orders)
	}

	if v.Volume() != 60 {
		t.Errorf("expected volume 60, got %d", v.Volume())
	}
	trades := v.TradesLast(5)
	if len(trades) != 2 || trades[1].TradeID != "t2" {
		t.Errorf("unexpected tape %+v", trades)
	}
}

func TestBookViewIgnoresUnknownOrders(t *testing.T) {
	v := NewBookView(1)
	v.Apply(core.OrderReducedEvent{OrderID: "ghost", Delta: -1, Remaining: 1})
	v.Apply(core.OrderRemovedEvent{OrderID: "ghost"})
	if len(v.Levels(core.SideBuy)) != 0 || len(v.Levels(core.SideSell)) != 0 {
		t.Error("unknown orders must not create levels")
	}
}
