package view

import (
	"slices"
	"sort"
	"sync"

	"github.com/zappabad/cloutmarket/internal/broker"
	"github.com/zappabad/cloutmarket/internal/ring"
	"github.com/zappabad/cloutmarket/internal/trader"
)

// Journal keeps the most recent bot entries and running per-bot counts.
type Journal struct {
	mu      sync.RWMutex
	entries *ring.Buffer[broker.Entry]
	stats   map[trader.BotID]*broker.BotStats
}

// NewJournal creates a Journal holding at most capacity entries.
func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = 200
	}
	return &Journal{
		entries: ring.New[broker.Entry](capacity),
		stats:   make(map[trader.BotID]*broker.BotStats),
	}
}

// Add records e.
func (j *Journal) Add(e broker.Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries.Append(e)

	st, ok := j.stats[e.BotID]
	if !ok {
		st = &broker.BotStats{BotID: e.BotID}
		j.stats[e.BotID] = st
	}
	switch e.Kind {
	case trader.EventPlacedOrder.String():
		st.Placed++
	case trader.EventRejected.String():
		st.Rejected++
	case trader.EventError.String():
		st.Errors++
	}
	if e.Time.After(st.LastActivity) {
		st.LastActivity = e.Time
	}
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(n int) []broker.Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := j.entries.Last(n)
	slices.Reverse(out)
	return out
}

// Stats returns every bot's counters sorted by bot id.
func (j *Journal) Stats() []broker.BotStats {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]broker.BotStats, 0, len(j.stats))
	for _, st := range j.stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].BotID < out[b].BotID })
	return out
}
