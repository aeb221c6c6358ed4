// Package view keeps the bounded log of recent events.
package view

import (
	"sync"

	"github.com/zappabad/cloutmarket/internal/events"
)

// Log is a bounded ring buffer of events; the oldest is evicted first.
type Log struct {
	mu    sync.RWMutex
	buf   []events.Event
	size  int
	start int
	count int
}

// NewLog creates a Log with the given capacity.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = 50
	}
	return &Log{
		buf:  make([]events.Event, capacity),
		size: capacity,
	}
}

// Append adds ev to the log.
func (l *Log) Append(ev events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count < l.size {
		l.buf[(l.start+l.count)%l.size] = ev
		l.count++
		return
	}
	// overwrite oldest
	l.buf[l.start] = ev
	l.start = (l.start + 1) % l.size
}

// Latest returns the last n events, newest first.
func (l *Log) Latest(n int) []events.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || l.count == 0 {
		return nil
	}
	if n > l.count {
		n = l.count
	}

	out := make([]events.Event, n)
	last := l.start + l.count - 1
	for i := 0; i < n; i++ {
		out[i] = l.buf[(last-i)%l.size]
	}
	return out
}

// Count returns the number of events held.
func (l *Log) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}
