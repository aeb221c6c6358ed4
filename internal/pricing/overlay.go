package pricing

import (
	"sync"
	"time"
)

// Impact is a transient, signed price overlay on one instrument.
type Impact struct {
	ID           string
	InstrumentID string
	Percent      float64
	ExpiresAt    time.Time
}

// Overlay holds active impacts per instrument. Expired entries are dropped
// whenever their instrument is read.
type Overlay struct {
	mu           sync.Mutex
	byInstrument map[string][]Impact
}

// NewOverlay creates an empty Overlay.
func NewOverlay() *Overlay {
	return &Overlay{byInstrument: make(map[string][]Impact)}
}

// Add records imp.
func (o *Overlay) Add(imp Impact) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.byInstrument[imp.InstrumentID] = append(o.byInstrument[imp.InstrumentID], imp)
}

// Impact returns the summed fractional impact (percent/100) active for id at now.
func (o *Overlay) Impact(id string, now time.Time) float64 {
	var total float64
	for _, imp := range o.Active(id, now) {
		total += imp.Percent / 100
	}
	return total
}

// Active returns the impacts on id that have not expired at now.
func (o *Overlay) Active(id string, now time.Time) []Impact {
	o.mu.Lock()
	defer o.mu.Unlock()

	list := o.byInstrument[id]
	live := list[:0]
	for _, imp := range list {
		if now.Before(imp.ExpiresAt) {
			live = append(live, imp)
		}
	}
	if len(live) == 0 {
		delete(o.byInstrument, id)
		return nil
	}
	o.byInstrument[id] = live

	out := make([]Impact, len(live))
	copy(out, live)
	return out
}
