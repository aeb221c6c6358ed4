package pricing

import (
	"math"
	"time"

	"github.com/scmhub/calendar"

	"github.com/zappabad/cloutmarket/internal/instrument"
)

// ClampChange limits change to [-limit, +limit]. tripped reports whether it
// had to clamp. NaN clamps to 0.
func ClampChange(change, limit float64) (clamped float64, tripped bool) {
	if math.IsNaN(change) {
		return 0, true
	}
	if limit <= 0 {
		return change, false
	}
	switch {
	case change > limit:
		return limit, true
	case change < -limit:
		return -limit, true
	}
	return change, false
}

// HourMultiplier scales moves by time of day: quiet overnight, busiest in
// the evening.
func HourMultiplier(hour int) float64 {
	switch {
	case hour < 0 || hour > 23:
		return 1.0
	case hour < 6:
		return 0.3
	case hour < 9:
		return 0.6
	case hour < 12:
		return 0.9
	case hour < 14:
		return 1.0
	case hour < 17:
		return 0.9
	case hour < 23:
		return 1.2
	default:
		return 0.6
	}
}

// WeekdayMultiplier scales moves by day of week. Holidays trade like weekends.
func WeekdayMultiplier(day time.Weekday, holiday bool) float64 {
	if holiday {
		return 0.7
	}
	switch day {
	case time.Saturday, time.Sunday:
		return 0.7
	case time.Monday:
		return 0.9
	case time.Friday:
		return 1.1
	default:
		return 1.0
	}
}

// TimeProfile evaluates the time multipliers in one location, optionally
// treating exchange holidays from a market calendar as weekends.
type TimeProfile struct {
	loc *time.Location
	cal *calendar.Calendar
}

// NewTimeProfile builds a profile for loc. mic selects the holiday calendar
// (ISO 10383, e.g. "xnys"); an empty or unknown mic disables holidays.
func NewTimeProfile(loc *time.Location, mic string) *TimeProfile {
	if loc == nil {
		loc = time.Local
	}
	p := &TimeProfile{loc: loc}
	if mic != "" {
		p.cal = calendar.GetCalendar(mic)
	}
	return p
}

// Location returns the profile's time zone.
func (p *TimeProfile) Location() *time.Location { return p.loc }

// Holiday reports whether t falls on a weekday the calendar closes.
func (p *TimeProfile) Holiday(t time.Time) bool {
	if p.cal == nil {
		return false
	}
	local := t.In(p.cal.Loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !p.cal.IsBusinessDay(local)
}

// Multiplier returns the combined hour and weekday multiplier at t.
func (p *TimeProfile) Multiplier(t time.Time) float64 {
	local := t.In(p.loc)
	return HourMultiplier(local.Hour()) * WeekdayMultiplier(local.Weekday(), p.Holiday(t))
}

// Move is one instrument's change within a refresh batch.
type Move struct {
	ID       string
	Category instrument.Category
	Previous float64
	Change   float64
	Price    float64
}

// ApplySectorCorrelation nudges each move toward its category's mean
// change by factor*mean and rescales the price from Previous to match.
func ApplySectorCorrelation(moves []Move, factor float64) {
	type acc struct {
		sum float64
		n   int
	}
	means := make(map[instrument.Category]*acc)
	for _, m := range moves {
		a, ok := means[m.Category]
		if !ok {
			a = &acc{}
			means[m.Category] = a
		}
		a.sum += m.Change
		a.n++
	}
	for i := range moves {
		a := means[moves[i].Category]
		moves[i].Change += factor * a.sum / float64(a.n)
		moves[i].Price = PriceFromChange(moves[i].Previous, moves[i].Change)
	}
}

// PriceFromChange applies a percent change to prev, floored at MinPrice.
func PriceFromChange(prev, change float64) float64 {
	next := prev * (1 + change/100)
	if !isFinite(next) {
		if !validPrice(prev) {
			return MinPrice
		}
		return prev
	}
	return math.Max(MinPrice, next)
}
