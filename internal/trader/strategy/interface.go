package strategy

import (
	"context"
	"time"

	"github.com/zappabad/cloutmarket/internal/events"
	"github.com/zappabad/cloutmarket/internal/market"
	"github.com/zappabad/cloutmarket/internal/trader"
	"github.com/zappabad/cloutmarket/internal/trading"
)

// MarketReader provides read-only access to prices and books.
type MarketReader interface {
	Snapshot() *market.Snapshot
	TopOfBook(instrumentID string) (trading.TopOfBook, error)
}

// EventReader provides read-only access to recent market events.
type EventReader interface {
	Active(instrumentID string) []events.Event
}

// OrderSender submits orders on behalf of a user.
type OrderSender interface {
	Submit(ctx context.Context, userID string, req trading.OrderRequest) (trading.Result, error)
}

// Strategy is the interface for bot strategies.
type Strategy interface {
	// Step is called on each tick. Returns order intents and any events to publish.
	Step(ctx context.Context, now time.Time, mr MarketReader, er EventReader) ([]trader.OrderIntent, []trader.Event)
}
