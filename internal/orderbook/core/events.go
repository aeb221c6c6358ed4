package core

// Event is the interface for all orderbook events.
type Event interface {
	isEvent()
}

// RemoveReason indicates why an order was removed from the book.
type RemoveReason uint8

const (
	RemoveReasonFilled RemoveReason = iota
	RemoveReasonCanceled
	RemoveReasonExpired
)

func (r RemoveReason) String() string {
	switch r {
	case RemoveReasonFilled:
		return "FILLED"
	case RemoveReasonCanceled:
		return "CANCELED"
	case RemoveReasonExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// TradeEvent is emitted when a trade occurs. MakerOrderID and MakerUserID are
// empty for fills against simulated liquidity.
type TradeEvent struct {
	TradeID   string
	Price     PriceTicks
	Shares    Shares
	TakerSide Side
	Time      int64

	TakerOrderID OrderID
	TakerUserID  UserID
	MakerOrderID OrderID
	MakerUserID  UserID
}

func (TradeEvent) isEvent() {}

// Liquidity reports whether the trade filled against simulated liquidity
// rather than a resting order.
func (e TradeEvent) Liquidity() bool { return e.MakerOrderID == "" }

// OrderRestedEvent is emitted when an order rests on the book.
type OrderRestedEvent struct {
	OrderID   OrderID
	UserID    UserID
	Side      Side
	Price     PriceTicks
	Shares    Shares
	Time      int64
	ExpiresAt int64
}

func (OrderRestedEvent) isEvent() {}

// OrderReducedEvent is emitted when a resting order is partially filled.
type OrderReducedEvent struct {
	OrderID   OrderID
	Delta     Shares // negative number (e.g. -5)
	Remaining Shares
	Price     PriceTicks
	Side      Side
	UserID    UserID
	MatchTime int64
}

func (OrderReducedEvent) isEvent() {}

// OrderRemovedEvent is emitted when an order is fully removed from the book.
type OrderRemovedEvent struct {
	OrderID   OrderID
	Reason    RemoveReason
	Remaining Shares // 0 for filled; >0 for cancel and expiry
	Price     PriceTicks
	Side      Side
	UserID    UserID
	Time      int64
}

func (OrderRemovedEvent) isEvent() {}
