package pricing

import (
	"sync"
)

// Pressure is the buy and sell volume accumulated for one instrument.
type Pressure struct {
	Buy  float64
	Sell float64
}

// Volume returns total traded shares.
func (p Pressure) Volume() float64 { return p.Buy + p.Sell }

// PressureBook accumulates realized trading volume between refresh cycles.
type PressureBook struct {
	mu sync.Mutex
	m  map[string]Pressure
}

// NewPressureBook creates an empty PressureBook.
func NewPressureBook() *PressureBook {
	return &PressureBook{m: make(map[string]Pressure)}
}

// Record adds shares on the given side. buy is the aggressor side.
func (b *PressureBook) Record(id string, buy bool, shares int64) {
	if shares <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.m[id]
	if buy {
		p.Buy += float64(shares)
	} else {
		p.Sell += float64(shares)
	}
	b.m[id] = p
}

// Get returns the pressure accumulated for id.
func (b *PressureBook) Get(id string) Pressure {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.m[id]
}

// Snapshot returns a copy of every instrument's pressure.
func (b *PressureBook) Snapshot() map[string]Pressure {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]Pressure, len(b.m))
	for id, p := range b.m {
		out[id] = p
	}
	return out
}

// Decay multiplies all pressure by factor; 0 resets. Entries that fall
// below one share are dropped.
func (b *PressureBook) Decay(factor float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if factor <= 0 {
		clear(b.m)
		return
	}
	for id, p := range b.m {
		p.Buy *= factor
		p.Sell *= factor
		if p.Volume() < 1 {
			delete(b.m, id)
			continue
		}
		b.m[id] = p
	}
}
