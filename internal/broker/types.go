// Package broker supervises the liquidity bots: it journals what each bot
// did and keeps per-bot counters for operators.
package broker

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zappabad/cloutmarket/internal/orderbook/core"
	"github.com/zappabad/cloutmarket/internal/trader"
)

// Entry is one journaled bot action.
type Entry struct {
	BotID        trader.BotID    `json:"bot_id"`
	Time         time.Time       `json:"time"`
	Kind         string          `json:"kind"`
	InstrumentID string          `json:"instrument_id,omitempty"`
	Side         *core.Side      `json:"side,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Shares       int64           `json:"shares,omitempty"`
	OrderID      string          `json:"order_id,omitempty"`
	Message      string          `json:"message,omitempty"`
}

// EntryFromEvent converts a bot event.
func EntryFromEvent(ev trader.Event) Entry {
	e := Entry{
		BotID:   ev.BotID,
		Time:    ev.Time,
		Kind:    ev.Type.String(),
		OrderID: ev.OrderID,
		Message: ev.Message,
	}
	if in := ev.Intent; in != nil {
		side := in.Side
		e.InstrumentID = in.InstrumentID
		e.Side = &side
		e.Price = in.LimitPrice
		e.Shares = in.Shares
	}
	return e
}

// BotStats counts one bot's outcomes.
type BotStats struct {
	BotID        trader.BotID `json:"bot_id"`
	Placed       int64        `json:"placed"`
	Rejected     int64        `json:"rejected"`
	Errors       int64        `json:"errors"`
	LastActivity time.Time    `json:"last_activity"`
}
