package core

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

func limit(id OrderID, user UserID, side Side, price PriceTicks, shares Shares, t int64) Order {
	return Order{ID: id, UserID: user, Side: side, Kind: OrderKindLimit, Price: price, Shares: shares, Time: t}
}

func TestSubmitLimit(t *testing.T) {
	c := NewCore()

	report, events, err := c.SubmitLimit(limit("o1", "alice", SideBuy, 100, 10, 1000000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.OrderID != "o1" {
		t.Errorf("expected OrderID o1, got %s", report.OrderID)
	}
	if report.Remaining != 10 {
		t.Errorf("expected remaining 10, got %d", report.Remaining)
	}
	if !report.Rested {
		t.Error("expected order to rest on book")
	}
	if len(report.Fills) != 0 {
		t.Errorf("expected no fills, got %d", len(report.Fills))
	}

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if _, ok := events[0].(OrderRestedEvent); !ok {
		t.Errorf("expected OrderRestedEvent, got %T", events[0])
	}
}

func TestBestPriceBeatsArrivalTime(t *testing.T) {
	c := NewCore()

	// $9.50 arrives first, $9.40 later
	if _, _, err := c.SubmitLimit(limit("s1", "maker1", SideSell, 950, 50, 1)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.SubmitLimit(limit("s2", "maker2", SideSell, 940, 30, 2)); err != nil {
		t.Fatal(err)
	}

	report, _, err := c.SubmitLimit(limit("b1", "taker", SideBuy, 1000, 60, 3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Fills) != 2 {
		t.Fatalf("expected 2 fills, got %d", len(report.Fills))
	}
	if f := report.Fills[0]; f.Price != 940 || f.Shares != 30 || f.MakerOrderID != "s2" {
		t.Errorf("first fill = %+v, want 30@940 from s2", f)
	}
	if f := report.Fills[1]; f.Price != 950 || f.Shares != 30 || f.MakerOrderID != "s1" {
		t.Errorf("second fill = %+v, want 30@950 from s1", f)
	}
	if report.Remaining != 0 || report.Rested {
		t.Errorf("expected taker fully filled, remaining=%d rested=%v", report.Remaining, report.Rested)
	}

	entry, ok := c.Order("s1")
	if !ok {
		t.Fatal("expected s1 to keep resting")
	}
	if entry.Remaining != 20 {
		t.Errorf("expected s1 remaining 20, got %d", entry.Remaining)
	}
}

func TestArrivalOrderBreaksTies(t *testing.T) {
	c := NewCore()
	for i, id := range []OrderID{"a", "b", "c"} {
		if _, _, err := c.SubmitLimit(limit(id, "maker", SideSell, 500, 10, int64(i+1))); err != nil {
			t.Fatal(err)
		}
	}

	report, _, err := c.SubmitLimit(limit("t", "taker", SideBuy, 500, 15, 10))
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Fills) != 2 {
		t.Fatalf("expected 2 fills, got %d", len(report.Fills))
	}
	if report.Fills[0].MakerOrderID != "a" || report.Fills[1].MakerOrderID != "b" {
		t.Errorf("expected fills from a then b, got %s then %s", report.Fills[0].MakerOrderID, report.Fills[1].MakerOrderID)
	}
}

func TestLimitBelowBestAskRestsSorted(t *testing.T) {
	c := NewCore()
	mustSubmit := func(o Order) {
		t.Helper()
		if _, _, err := c.SubmitLimit(o); err != nil {
			t.Fatal(err)
		}
	}
	mustSubmit(limit("ask1", "m", SideSell, 1010, 5, 1))
	mustSubmit(limit("ask2", "m", SideSell, 1005, 5, 2))
	mustSubmit(limit("bid1", "u", SideBuy, 990, 5, 3))
	mustSubmit(limit("bid2", "u", SideBuy, 995, 5, 4))
	mustSubmit(limit("bid3", "u", SideBuy, 990, 5, 5))

	report, _, err := c.SubmitLimit(limit("bid4", "u", SideBuy, 1000, 7, 6))
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Fills) != 0 || !report.Rested {
		t.Fatalf("limit below best ask must rest untouched, got %+v", report)
	}

	snap := c.Snapshot()
	wantBids := []PriceTicks{1000, 995, 990}
	if len(snap.Bids) != len(wantBids) {
		t.Fatalf("expected %d bid levels, got %d", len(wantBids), len(snap.Bids))
	}
	for i, p := range wantBids {
		if snap.Bids[i].Price != p {
			t.Errorf("bid level %d = %d, want %d", i, snap.Bids[i].Price, p)
		}
	}
	if got := snap.Bids[2].Orders; len(got) != 2 || got[0].OrderID != "bid1" || got[1].OrderID != "bid3" {
		t.Errorf("expected bid1 then bid3 at 990, got %+v", got)
	}
	if snap.Asks[0].Price != 1005 || snap.Asks[1].Price != 1010 {
		t.Errorf("asks not ascending: %+v", snap.Asks)
	}
	if snap.LastTrade != nil {
		t.Errorf("expected no last trade, got %+v", snap.LastTrade)
	}
}

func TestCancel(t *testing.T) {
	c := NewCore()

	if _, _, err := c.SubmitLimit(limit("o1", "alice", SideBuy, 100, 10, 1000000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, _, err := c.Cancel("o1", "mallory", 2000000); err != ErrNotOwner {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	report, events, err := c.Cancel("o1", "alice", 2000000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.CanceledSize != 10 {
		t.Errorf("expected canceled size 10, got %d", report.CanceledSize)
	}

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	removed, ok := events[0].(OrderRemovedEvent)
	if !ok {
		t.Fatalf("expected OrderRemovedEvent, got %T", events[0])
	}
	if removed.Reason != RemoveReasonCanceled {
		t.Errorf("expected reason Canceled, got %v", removed.Reason)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty book, got %d orders", c.Len())
	}

	if _, _, err := c.Cancel("o1", "alice", 3000000); err != ErrNotFound {
		t.Errorf("expected ErrNotFound on second cancel, got %v", err)
	}
}

func TestCancelPartiallyFilled(t *testing.T) {
	c := NewCore()
	if _, _, err := c.SubmitLimit(limit("s1", "maker", SideSell, 100, 10, 1)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.SubmitLimit(limit("b1", "taker", SideBuy, 100, 4, 2)); err != nil {
		t.Fatal(err)
	}

	if _, _, err := c.Cancel("s1", "maker", 3); err != ErrPartiallyFilled {
		t.Fatalf("expected ErrPartiallyFilled, got %v", err)
	}
	if entry, ok := c.Order("s1"); !ok || entry.Remaining != 6 {
		t.Errorf("expected s1 to keep 6 resting, got %+v ok=%v", entry, ok)
	}
}

func TestSweepExpired(t *testing.T) {
	c := NewCore()
	o := limit("s1", "maker", SideSell, 100, 10, 1)
	o.ExpiresAt = 50
	if _, _, err := c.SubmitLimit(o); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.SubmitLimit(limit("s2", "maker", SideSell, 101, 10, 2)); err != nil {
		t.Fatal(err)
	}

	if evs := c.SweepExpired(49); len(evs) != 0 {
		t.Fatalf("expected nothing swept before expiry, got %d", len(evs))
	}
	evs := c.SweepExpired(50)
	if len(evs) != 1 {
		t.Fatalf("expected 1 swept order, got %d", len(evs))
	}
	removed := evs[0].(OrderRemovedEvent)
	if removed.OrderID != "s1" || removed.Reason != RemoveReasonExpired || removed.Remaining != 10 {
		t.Errorf("unexpected removal: %+v", removed)
	}
	if _, ok := c.Order("s2"); !ok {
		t.Error("s2 has no expiry and must stay")
	}
}

func TestExpiredMakerNeverFills(t *testing.T) {
	c := NewCore()
	o := limit("s1", "maker", SideSell, 100, 10, 1)
	o.ExpiresAt = 5
	if _, _, err := c.SubmitLimit(o); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.SubmitLimit(limit("s2", "maker", SideSell, 100, 10, 2)); err != nil {
		t.Fatal(err)
	}

	report, events, err := c.SubmitLimit(limit("b1", "taker", SideBuy, 100, 5, 10))
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Fills) != 1 || report.Fills[0].MakerOrderID != "s2" {
		t.Fatalf("expected single fill from s2, got %+v", report.Fills)
	}
	removed, ok := events[0].(OrderRemovedEvent)
	if !ok || removed.Reason != RemoveReasonExpired {
		t.Errorf("expected expiry event first, got %T %+v", events[0], events[0])
	}
}

func TestRecordTrade(t *testing.T) {
	c := NewCore()
	if _, err := c.RecordTrade(TradeEvent{TakerOrderID: "m1", MakerOrderID: "x", Price: 10, Shares: 1}); err != ErrInvalidLiquidity {
		t.Fatalf("expected ErrInvalidLiquidity, got %v", err)
	}
	ev, err := c.RecordTrade(TradeEvent{TakerOrderID: "m1", TakerUserID: "u", Price: 1010, Shares: 100, Time: 7})
	if err != nil {
		t.Fatal(err)
	}
	if ev.TradeID == "" || !ev.Liquidity() {
		t.Errorf("expected liquidity trade with id, got %+v", ev)
	}
	if last := c.Snapshot().LastTrade; last == nil || last.Price != 1010 {
		t.Errorf("expected last trade at 1010, got %+v", last)
	}
}

func TestValidation(t *testing.T) {
	c := NewCore()

	tests := []struct {
		name  string
		order Order
	}{
		{"empty ID", Order{ID: "", UserID: "u", Side: SideBuy, Kind: OrderKindLimit, Price: 100, Shares: 10, Time: 1000}},
		{"empty UserID", Order{ID: "o", UserID: "", Side: SideBuy, Kind: OrderKindLimit, Price: 100, Shares: 10, Time: 1000}},
		{"zero Shares", Order{ID: "o", UserID: "u", Side: SideBuy, Kind: OrderKindLimit, Price: 100, Shares: 0, Time: 1000}},
		{"zero Price for limit", Order{ID: "o", UserID: "u", Side: SideBuy, Kind: OrderKindLimit, Price: 0, Shares: 10, Time: 1000}},
		{"zero Time", Order{ID: "o", UserID: "u", Side: SideBuy, Kind: OrderKindLimit, Price: 100, Shares: 10, Time: 0}},
		{"market kind", Order{ID: "o", UserID: "u", Side: SideBuy, Kind: OrderKindMarket, Price: 100, Shares: 10, Time: 1000}},
		{"already expired", Order{ID: "o", UserID: "u", Side: SideBuy, Kind: OrderKindLimit, Price: 100, Shares: 10, Time: 1000, ExpiresAt: 999}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := c.SubmitLimit(tt.order)
			if err != ErrInvalidOrder {
				t.Errorf("expected ErrInvalidOrder, got %v", err)
			}
		})
	}
}

func TestTicksFromDecimal(t *testing.T) {
	tests := []struct {
		in   string
		want PriceTicks
		ok   bool
	}{
		{"9.40", 940, true},
		{"10", 1000, true},
		{"0.01", 1, true},
		{"10.005", 0, false},
		{"0", 0, false},
		{"-1.50", 0, false},
		{"92233720368547758.07", PriceTicks(math.MaxInt64), true},
		{"92233720368547758.08", 0, false},
		{"184467440737095516.17", 0, false},
	}
	for _, tt := range tests {
		got, ok := TicksFromDecimal(decimal.RequireFromString(tt.in))
		if ok != tt.ok || got != tt.want {
			t.Errorf("TicksFromDecimal(%s) = %d,%v want %d,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
	if s := PriceTicks(1010).String(); s != "10.10" {
		t.Errorf("expected 10.10, got %s", s)
	}
}

// Shares are conserved and the book never ends up crossed.
func TestMatchingProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := NewCore()
		n := rapid.IntRange(1, 60).Draw(t, "n")
		for i := 0; i < n; i++ {
			side := Side(rapid.IntRange(0, 1).Draw(t, "side"))
			o := limit(
				OrderID(rapid.StringMatching(`[a-z]{6}`).Draw(t, "id")+string(rune('A'+i%26))),
				UserID(rapid.SampledFrom([]string{"u1", "u2", "u3"}).Draw(t, "user")),
				side,
				PriceTicks(rapid.Int64Range(90, 110).Draw(t, "price")),
				Shares(rapid.Int64Range(1, 50).Draw(t, "shares")),
				int64(i+1),
			)
			report, _, err := c.SubmitLimit(o)
			if err == ErrDuplicateID {
				continue
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var filled Shares
			for _, f := range report.Fills {
				if side == SideBuy && f.Price > o.Price || side == SideSell && f.Price < o.Price {
					t.Fatalf("fill %+v violates limit %d", f, o.Price)
				}
				filled += f.Shares
			}
			if filled+report.Remaining != o.Shares {
				t.Fatalf("filled %d + remaining %d != %d", filled, report.Remaining, o.Shares)
			}

			snap := c.Snapshot()
			bid, hasBid := snap.BestBid()
			ask, hasAsk := snap.BestAsk()
			if hasBid && hasAsk && bid >= ask {
				t.Fatalf("crossed book: bid %d ask %d", bid, ask)
			}
		}
	})
}
