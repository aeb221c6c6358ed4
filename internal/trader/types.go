// Package trader defines the liquidity bots that quote the books.
package trader

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zappabad/cloutmarket/internal/orderbook/core"
)

// BotID identifies a bot. It doubles as the bot's portfolio user id.
type BotID string

// OrderIntent represents a bot's intention to place an order.
type OrderIntent struct {
	InstrumentID string
	Kind         core.OrderKind
	Side         core.Side
	LimitPrice   decimal.Decimal // limit orders only
	Shares       int64
	ExpiresIn    time.Duration
}

// EventType indicates the type of bot event.
type EventType int

const (
	EventPlacedOrder EventType = iota
	EventRejected
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventPlacedOrder:
		return "placed"
	case EventRejected:
		return "rejected"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event represents an action or event from a bot.
type Event struct {
	BotID   BotID
	Time    time.Time
	Type    EventType
	Intent  *OrderIntent // optional, for PlacedOrder and Rejected
	OrderID string       // set when the order was accepted
	Message string       // optional, for errors or info
}
