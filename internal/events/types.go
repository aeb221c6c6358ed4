// Package events defines administrative market events: transient, signed
// price overlays on one instrument.
package events

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrInvalidEvent      = errors.New("invalid event")
)

// Type is the kind of community event.
type Type uint8

const (
	TypeDrama Type = iota
	TypeAMA
	TypeAdminAction
	TypeViral
	TypeNews
)

// Types lists every event type in declaration order.
var Types = []Type{TypeDrama, TypeAMA, TypeAdminAction, TypeViral, TypeNews}

func (t Type) String() string {
	switch t {
	case TypeDrama:
		return "drama"
	case TypeAMA:
		return "ama"
	case TypeAdminAction:
		return "admin_action"
	case TypeViral:
		return "viral"
	case TypeNews:
		return "news"
	default:
		return "unknown"
	}
}

// ParseType parses an event type name.
func ParseType(s string) (Type, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, t := range Types {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Limits on a single event.
const (
	MaxImpactPercent   = 50
	MinDurationMinutes = 1
	MaxDurationMinutes = 1440
)

// Request asks for a new event.
type Request struct {
	InstrumentID    string  `json:"instrument_id" binding:"required"`
	Type            Type    `json:"type"`
	ImpactPercent   float64 `json:"impact_percent"`
	DurationMinutes int     `json:"duration_minutes"`
	Title           string  `json:"title"`
}

// Validate checks everything but the instrument, which needs the registry.
func (r Request) Validate() error {
	switch {
	case r.Type > TypeNews:
		return fmt.Errorf("%w: unknown type", ErrInvalidEvent)
	case r.ImpactPercent < -MaxImpactPercent || r.ImpactPercent > MaxImpactPercent:
		return fmt.Errorf("%w: impact must be within ±%d%%", ErrInvalidEvent, MaxImpactPercent)
	case r.DurationMinutes < MinDurationMinutes || r.DurationMinutes > MaxDurationMinutes:
		return fmt.Errorf("%w: duration must be %d-%d minutes", ErrInvalidEvent, MinDurationMinutes, MaxDurationMinutes)
	case strings.TrimSpace(r.Title) == "":
		return fmt.Errorf("%w: empty title", ErrInvalidEvent)
	}
	return nil
}

// Event is a triggered market event.
type Event struct {
	ID              string    `json:"id"`
	InstrumentID    string    `json:"instrument_id"`
	Type            Type      `json:"type"`
	Title           string    `json:"title"`
	ImpactPercent   float64   `json:"impact_percent"`
	DurationMinutes int       `json:"duration_minutes"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Active reports whether the event still moves the price at now.
func (e Event) Active(now time.Time) bool { return now.Before(e.ExpiresAt) }
