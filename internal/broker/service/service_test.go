package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zappabad/cloutmarket/internal/orderbook/core"
	"github.com/zappabad/cloutmarket/internal/trader"
)

func TestJournalsBotEvents(t *testing.T) {
	s := New(Config{JournalCapacity: 3}, nil)

	t0 := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	intent := &trader.OrderIntent{InstrumentID: "memes", Side: core.SideSell, LimitPrice: decimal.RequireFromString("3.21"), Shares: 10}

	ch := make(chan trader.Event, 8)
	ch <- trader.Event{BotID: "bot-1", Time: t0, Type: trader.EventPlacedOrder, Intent: intent, OrderID: "o-1"}
	ch <- trader.Event{BotID: "bot-1", Time: t0.Add(time.Second), Type: trader.EventRejected, Intent: intent, Message: "insufficient shares"}
	ch <- trader.Event{BotID: "bot-2", Time: t0.Add(2 * time.Second), Type: trader.EventError, Message: "boom"}
	ch <- trader.Event{BotID: "bot-2", Time: t0.Add(3 * time.Second), Type: trader.EventPlacedOrder, Intent: intent, OrderID: "o-2"}
	close(ch)

	s.AttachBot(ch)
	require.Eventually(t, func() bool {
		st := s.Stats()
		return len(st) == 2 && st[1].Placed == 1
	}, time.Second, 5*time.Millisecond)
	s.Close()

	recent := s.Recent(10)
	require.Len(t, recent, 3)
	assert.Equal(t, "o-2", recent[0].OrderID)
	assert.Equal(t, "error", recent[1].Kind)
	assert.Equal(t, "rejected", recent[2].Kind)
	assert.Equal(t, "memes", recent[2].InstrumentID)
	require.NotNil(t, recent[2].Side)
	assert.Equal(t, core.SideSell, *recent[2].Side)

	stats := s.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, trader.BotID("bot-1"), stats[0].BotID)
	assert.EqualValues(t, 1, stats[0].Placed)
	assert.EqualValues(t, 1, stats[0].Rejected)
	assert.EqualValues(t, 1, stats[1].Errors)
	assert.EqualValues(t, 1, stats[1].Placed)
	assert.True(t, stats[1].LastActivity.Equal(t0.Add(3*time.Second)))
}

func TestCloseStopsOpenListeners(t *testing.T) {
	s := New(DefaultConfig(), nil)
	ch := make(chan trader.Event)
	s.AttachBot(ch)

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on an open channel")
	}
	assert.Empty(t, s.Recent(5))
}
