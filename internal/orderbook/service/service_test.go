package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/zappabad/cloutmarket/internal/orderbook/core"
)

func limitOrder(id, user string, side core.Side, price core.PriceTicks, shares core.Shares) core.Order {
	return core.Order{ID: core.OrderID(id), UserID: core.UserID(user), Side: side, Price: price, Shares: shares}
}

func TestServiceBasic(t *testing.T) {
	svc := NewService("wsb", DefaultConfig())
	defer svc.Close()

	ctx := context.Background()

	report, err := svc.SubmitLimit(ctx, limitOrder("o1", "alice", core.SideBuy, 100, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Remaining != 10 {
		t.Errorf("expected remaining 10, got %d", report.Remaining)
	}
	if !report.Rested {
		t.Error("expected order to rest")
	}

	time.Sleep(10 * time.Millisecond) // wait for event dispatcher
	levels := svc.GetLevels(core.SideBuy)
	if len(levels) != 1 {
		t.Fatalf("expected 1 level, got %d", len(levels))
	}
	if levels[0].Price != 100 {
		t.Errorf("expected price 100, got %d", levels[0].Price)
	}
	if levels[0].Shares != 10 {
		t.Errorf("expected shares 10, got %d", levels[0].Shares)
	}
}

func TestServiceConcurrent(t *testing.T) {
	svc := NewService("wsb", DefaultConfig())
	defer svc.Close()

	ctx := context.Background()
	var wg sync.WaitGroup

	numOrders := 100
	wg.Add(numOrders)
	for i := 0; i < numOrders; i++ {
		go func(i int) {
			defer wg.Done()
			price := core.PriceTicks(100 + i%10)
			_, err := svc.SubmitLimit(ctx, limitOrder(fmt.Sprintf("o%d", i), fmt.Sprintf("u%d", i), core.SideBuy, price, 1))
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	snap, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for _, l := range snap.Bids {
		total += len(l.Orders)
	}
	if total != numOrders {
		t.Errorf("expected %d orders in snapshot, got %d", numOrders, total)
	}

	time.Sleep(50 * time.Millisecond)
	if orders := svc.GetOrders(core.SideBuy); len(orders) != numOrders {
		t.Errorf("expected %d orders in view, got %d", numOrders, len(orders))
	}
}

func TestServiceCancel(t *testing.T) {
	svc := NewService("wsb", DefaultConfig())
	defer svc.Close()

	ctx := context.Background()

	report, err := svc.SubmitLimit(ctx, limitOrder("o1", "alice", core.SideBuy, 100, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.Cancel(ctx, report.OrderID, "bob"); err != core.ErrNotOwner {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	cancelReport, err := svc.Cancel(ctx, report.OrderID, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelReport.CanceledSize != 10 {
		t.Errorf("expected canceled size 10, got %d", cancelReport.CanceledSize)
	}

	time.Sleep(10 * time.Millisecond)
	if orders := svc.GetOrders(core.SideBuy); len(orders) != 0 {
		t.Errorf("expected 0 orders, got %d", len(orders))
	}
}

func TestServiceHookRunsBeforeReply(t *testing.T) {
	var (
		mu     sync.Mutex
		trades []core.TradeEvent
	)
	hook := func(ev core.Event) {
		if tr, ok := ev.(core.TradeEvent); ok {
			mu.Lock()
			trades = append(trades, tr)
			mu.Unlock()
		}
	}
	svc := NewService("wsb", DefaultConfig(), WithEventHook(hook))
	defer svc.Close()

	ctx := context.Background()
	if _, err := svc.SubmitLimit(ctx, limitOrder("s1", "maker", core.SideSell, 950, 50)); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SubmitLimit(ctx, limitOrder("b1", "taker", core.SideBuy, 950, 20)); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(trades) != 1 {
		t.Fatalf("expected hook to see 1 trade by the time SubmitLimit returned, got %d", len(trades))
	}
	if trades[0].TradeID == "" || trades[0].Shares != 20 || trades[0].MakerUserID != "maker" {
		t.Errorf("unexpected trade %+v", trades[0])
	}
}

func TestServiceSweepAndRecord(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	svc := NewService("wsb", DefaultConfig(), WithClock(func() time.Time { return now }))
	defer svc.Close()

	ctx := context.Background()
	o := limitOrder("s1", "maker", core.SideSell, 950, 50)
	o.ExpiresAt = now.Add(time.Minute).UnixNano()
	if _, err := svc.SubmitLimit(ctx, o); err != nil {
		t.Fatal(err)
	}

	swept, err := svc.SweepExpired(ctx, now.Add(2*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if swept != 1 {
		t.Errorf("expected 1 swept, got %d", swept)
	}

	tr, err := svc.RecordTrade(ctx, core.TradeEvent{TakerOrderID: "m1", TakerUserID: "alice", Price: 1010, Shares: 100, TakerSide: core.SideBuy})
	if err != nil {
		t.Fatal(err)
	}
	if tr.TradeID == "" || tr.Time != now.UnixNano() {
		t.Errorf("unexpected recorded trade %+v", tr)
	}

	snap, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Asks) != 0 {
		t.Errorf("expected empty asks, got %+v", snap.Asks)
	}
	if snap.LastTrade == nil || snap.LastTrade.TradeID != tr.TradeID {
		t.Errorf("expected last trade %s, got %+v", tr.TradeID, snap.LastTrade)
	}

	time.Sleep(10 * time.Millisecond)
	if got := svc.GetTradesLast(1); len(got) != 1 || got[0].Shares != 100 {
		t.Errorf("expected recorded trade on tape, got %+v", got)
	}
}

func TestServiceEvents(t *testing.T) {
	svc := NewService("wsb", DefaultConfig())
	defer svc.Close()

	events := svc.Events()

	if _, err := svc.SubmitLimit(context.Background(), limitOrder("o1", "alice", core.SideBuy, 100, 10)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case ev := <-events:
		if _, ok := ev.(core.OrderRestedEvent); !ok {
			t.Errorf("expected OrderRestedEvent, got %T", ev)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestServiceClosed(t *testing.T) {
	svc := NewService("wsb", DefaultConfig())
	svc.Close()
	if _, err := svc.Snapshot(context.Background()); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
