package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Side represents the order side: buy or sell.
type Side uint8

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the opposite side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// MarshalText implements encoding.TextMarshaler.
func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid side %d", s)
	}
	return []byte(strings.ToLower(s.String())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Side) UnmarshalText(b []byte) error {
	v, ok := ParseSide(string(b))
	if !ok {
		return fmt.Errorf("invalid side %q", b)
	}
	*s = v
	return nil
}

// ParseSide parses "buy"/"sell" in any case.
func ParseSide(s string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return SideBuy, true
	case "sell":
		return SideSell, true
	default:
		return 0, false
	}
}

// OrderKind represents the order type: limit or market.
type OrderKind uint8

const (
	OrderKindLimit OrderKind = iota
	OrderKindMarket
)

func (k OrderKind) String() string {
	switch k {
	case OrderKindLimit:
		return "LIMIT"
	case OrderKindMarket:
		return "MARKET"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether k is one of the known kinds.
func (k OrderKind) Valid() bool { return k == OrderKindLimit || k == OrderKindMarket }

// MarshalText implements encoding.TextMarshaler.
func (k OrderKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid order kind %d", k)
	}
	return []byte(strings.ToLower(k.String())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *OrderKind) UnmarshalText(b []byte) error {
	v, ok := ParseOrderKind(string(b))
	if !ok {
		return fmt.Errorf("invalid order kind %q", b)
	}
	*k = v
	return nil
}

// ParseOrderKind parses "limit"/"market" in any case.
func ParseOrderKind(s string) (OrderKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "limit":
		return OrderKindLimit, true
	case "market":
		return OrderKindMarket, true
	default:
		return 0, false
	}
}

// TickDecimals is the number of decimal places one tick represents ($0.01).
const TickDecimals = 2

// PriceTicks represents price in integer ticks.
type PriceTicks int64

func (p PriceTicks) String() string { return p.Decimal().StringFixed(TickDecimals) }

// Decimal converts ticks to a dollar amount.
func (p PriceTicks) Decimal() decimal.Decimal { return decimal.New(int64(p), -TickDecimals) }

var maxTicks = decimal.NewFromInt(math.MaxInt64)

// TicksFromDecimal converts a dollar amount to ticks. ok is false when the
// amount does not fall exactly on a tick or is not a positive PriceTicks.
func TicksFromDecimal(d decimal.Decimal) (PriceTicks, bool) {
	scaled := d.Shift(TickDecimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, false
	}
	if !scaled.IsPositive() || scaled.GreaterThan(maxTicks) {
		return 0, false
	}
	return PriceTicks(scaled.IntPart()), true
}

// Shares represents order quantity.
type Shares int64

func (s Shares) String() string { return strconv.FormatInt(int64(s), 10) }

// OrderID uniquely identifies an order.
type OrderID string

// UserID identifies the owner of an order.
type UserID string

// Order is an input/value object (safe to pass around).
// Core mutates its own internal resting orders, not this.
type Order struct {
	ID        OrderID
	UserID    UserID
	Side      Side
	Kind      OrderKind
	Price     PriceTicks // limit only
	Shares    Shares     // requested shares (for submits); remaining (in reports)
	Time      int64      // unix nanos set by service layer
	ExpiresAt int64      // unix nanos; 0 means good till cancelled
}

// IsFilled returns true if the order has no remaining shares.
func (o Order) IsFilled() bool { return o.Shares <= 0 }

// Expired reports whether the order has an expiry at or before now.
func (o Order) Expired(now int64) bool { return o.ExpiresAt > 0 && o.ExpiresAt <= now }
