// Package trading accepts orders for the published instruments, matches
// them against each other or against simulated liquidity, and settles the
// fills into user portfolios.
package trading

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zappabad/cloutmarket/internal/instrument"
	"github.com/zappabad/cloutmarket/internal/orderbook/core"
	"github.com/zappabad/cloutmarket/internal/portfolio"
)

var (
	ErrValidation         = errors.New("invalid order request")
	ErrInstrumentNotFound = errors.New("instrument not found")
	ErrInsufficientFunds  = portfolio.ErrInsufficientFunds
	ErrInsufficientShares = portfolio.ErrInsufficientShares
	ErrNoPrice            = errors.New("no published price")
	ErrOrderNotFound      = errors.New("order not found")
	ErrNotOwner           = errors.New("order owned by another user")
	ErrNotCancellable     = errors.New("order not cancellable")
)

// ValidationError describes a malformed request. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Status is an order's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPartial   Status = "partial"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// canMove reports whether from -> to is a legal transition.
func canMove(from, to Status) bool {
	switch from {
	case StatusPending:
		return to != StatusPending
	case StatusPartial:
		return to == StatusPartial || to == StatusFilled || to == StatusExpired
	default:
		return false
	}
}

// OrderRequest is a submission from a user.
type OrderRequest struct {
	InstrumentID string          `json:"instrument_id"`
	Side         core.Side       `json:"side"`
	Kind         core.OrderKind  `json:"kind"`
	Shares       int64           `json:"shares"`
	LimitPrice   decimal.Decimal `json:"limit_price"`
	// ExpiresIn bounds how long a limit order may rest; zero rests until
	// filled or cancelled.
	ExpiresIn time.Duration `json:"expires_in"`
}

// Order is a copy of an order's current state.
type Order struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	InstrumentID string          `json:"instrument_id"`
	Side         core.Side       `json:"side"`
	Kind         core.OrderKind  `json:"kind"`
	Shares       int64           `json:"shares"`
	FilledShares int64           `json:"filled_shares"`
	LimitPrice   decimal.Decimal `json:"limit_price"`
	AvgFillPrice decimal.Decimal `json:"avg_fill_price"`
	Status       Status          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	ExpiresAt    time.Time       `json:"expires_at,omitzero"`
}

// Remaining returns the unfilled shares.
func (o Order) Remaining() int64 { return o.Shares - o.FilledShares }

// Fill is one execution slice of an order.
type Fill struct {
	TradeID string          `json:"trade_id"`
	Price   decimal.Decimal `json:"price"`
	Shares  int64           `json:"shares"`
	// Simulated is true for fills against simulated liquidity.
	Simulated bool `json:"simulated"`
}

// Result is returned for an accepted order.
type Result struct {
	Order     Order               `json:"order"`
	Fills     []Fill              `json:"fills"`
	Portfolio portfolio.Portfolio `json:"portfolio"`
}

// Trade is an execution as shown on an instrument's tape.
type Trade struct {
	ID           string          `json:"id"`
	InstrumentID string          `json:"instrument_id"`
	Price        decimal.Decimal `json:"price"`
	Shares       int64           `json:"shares"`
	TakerSide    core.Side       `json:"taker_side"`
	Time         time.Time       `json:"time"`
	Simulated    bool            `json:"simulated"`
}

// BookEntry is one resting order in a book snapshot.
type BookEntry struct {
	OrderID string    `json:"order_id"`
	UserID  string    `json:"user_id"`
	Shares  int64     `json:"shares"`
	Time    time.Time `json:"time"`
}

// BookLevel is one price level, orders in arrival order.
type BookLevel struct {
	Price  decimal.Decimal `json:"price"`
	Shares int64           `json:"shares"`
	Orders []BookEntry     `json:"orders"`
}

// BookSnapshot is a sorted copy of one instrument's book: bids descending,
// asks ascending.
type BookSnapshot struct {
	InstrumentID string      `json:"instrument_id"`
	Bids         []BookLevel `json:"bids"`
	Asks         []BookLevel `json:"asks"`
	LastTrade    *Trade      `json:"last_trade,omitempty"`
}

// Quote is the published market data trading reads.
type Quote struct {
	Price       decimal.Decimal
	DailyVolume float64
	Category    instrument.Category
}

// QuoteFunc returns the latest published quote for an instrument.
type QuoteFunc func(instrumentID string) (Quote, bool)

func tradeFromEvent(instrumentID string, ev core.TradeEvent) Trade {
	return Trade{
		ID:           ev.TradeID,
		InstrumentID: instrumentID,
		Price:        ev.Price.Decimal(),
		Shares:       int64(ev.Shares),
		TakerSide:    ev.TakerSide,
		Time:         time.Unix(0, ev.Time),
		Simulated:    ev.Liquidity(),
	}
}

func snapshotFromCore(instrumentID string, s core.BookSnapshot) BookSnapshot {
	out := BookSnapshot{
		InstrumentID: instrumentID,
		Bids:         levelsFromCore(s.Bids),
		Asks:         levelsFromCore(s.Asks),
	}
	if s.LastTrade != nil {
		t := tradeFromEvent(instrumentID, *s.LastTrade)
		out.LastTrade = &t
	}
	return out
}

func levelsFromCore(levels []core.LevelSnapshot) []BookLevel {
	out := make([]BookLevel, 0, len(levels))
	for _, l := range levels {
		bl := BookLevel{Price: l.Price.Decimal(), Shares: int64(l.Total)}
		for _, e := range l.Orders {
			bl.Orders = append(bl.Orders, BookEntry{
				OrderID: string(e.OrderID),
				UserID:  string(e.UserID),
				Shares:  int64(e.Remaining),
				Time:    time.Unix(0, e.Time),
			})
		}
		out = append(out, bl)
	}
	return out
}
