// Package portfolio keeps per-user cash, holdings and reservations, and
// values them against published prices.
package portfolio

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zappabad/cloutmarket/internal/instrument"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrInvalidAmount      = errors.New("invalid amount")
)

// DefaultStartingCash is the endowment of a user without a checkpoint.
var DefaultStartingCash = decimal.NewFromInt(10_000)

// Holding is one instrument position.
type Holding struct {
	InstrumentID string              `json:"instrument_id"`
	Category     instrument.Category `json:"category"`
	Shares       int64               `json:"shares"`
	// Reserved shares back resting sell orders and cannot be sold again.
	Reserved      int64           `json:"reserved"`
	AvgCost       decimal.Decimal `json:"avg_cost"`
	Price         decimal.Decimal `json:"price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	// UnrealizedPnLPercent is UnrealizedPnL relative to the position's cost.
	UnrealizedPnLPercent decimal.Decimal `json:"unrealized_pnl_percent"`
}

// Valuation holds the aggregates derived from cash, holdings and prices.
type Valuation struct {
	TotalValue  decimal.Decimal `json:"total_value"`
	MarketValue decimal.Decimal `json:"market_value"`
	CostBasis   decimal.Decimal `json:"cost_basis"`
	// Capital is everything paid into the account: starting cash plus
	// endowments. Return is measured against it, so it includes realized P&L.
	Capital       decimal.Decimal `json:"capital"`
	Return        decimal.Decimal `json:"return"`
	ReturnPercent decimal.Decimal `json:"return_percent"`
	// SectorAllocation is each category's share of MarketValue, in percent.
	SectorAllocation map[string]decimal.Decimal `json:"sector_allocation"`
}

// Portfolio is a read-only copy of one user's account.
type Portfolio struct {
	UserID       string          `json:"user_id"`
	Cash         decimal.Decimal `json:"cash"`
	ReservedCash decimal.Decimal `json:"reserved_cash"`
	Holdings     []Holding       `json:"holdings"`
	Valuation    Valuation       `json:"valuation"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// AvailableCash is cash not backing resting buy orders.
func (p Portfolio) AvailableCash() decimal.Decimal { return p.Cash.Sub(p.ReservedCash) }

// Holding returns the position in id, if any.
func (p Portfolio) Holding(id string) (Holding, bool) {
	for _, h := range p.Holdings {
		if h.InstrumentID == id {
			return h, true
		}
	}
	return Holding{}, false
}

// Quote is the pricing input for valuation.
type Quote struct {
	Price    decimal.Decimal
	Category instrument.Category
}

// QuoteFunc returns the latest published quote for an instrument.
type QuoteFunc func(instrumentID string) (Quote, bool)

// HoldingCheckpoint is the persisted form of a position.
type HoldingCheckpoint struct {
	InstrumentID string          `json:"instrument_id"`
	Shares       int64           `json:"shares"`
	AvgCost      decimal.Decimal `json:"avg_cost"`
}

// Checkpoint is the persisted form of an account. Reservations are not
// included; resting orders do not survive a restart.
type Checkpoint struct {
	UserID    string              `json:"user_id"`
	Cash      decimal.Decimal     `json:"cash"`
	Capital   decimal.Decimal     `json:"capital"`
	Holdings  []HoldingCheckpoint `json:"holdings"`
	UpdatedAt time.Time           `json:"updated_at"`
}
