package portfolio

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type position struct {
	shares   int64
	reserved int64
	avgCost  decimal.Decimal
}

// Account is one user's mutable state. Every method takes the account's own
// lock, so accounts never contend with each other.
type Account struct {
	mu           sync.Mutex
	userID       string
	cash         decimal.Decimal
	capital      decimal.Decimal
	reservedCash decimal.Decimal
	positions    map[string]*position
	updatedAt    time.Time
	dirty        bool
}

func newAccount(userID string, cash decimal.Decimal) *Account {
	return &Account{
		userID:    userID,
		cash:      cash,
		capital:   cash,
		positions: make(map[string]*position),
	}
}

func fromCheckpoint(cp Checkpoint) *Account {
	a := newAccount(cp.UserID, cp.Cash)
	invested := decimal.Zero
	for _, h := range cp.Holdings {
		if h.Shares <= 0 {
			continue
		}
		a.positions[h.InstrumentID] = &position{shares: h.Shares, avgCost: h.AvgCost}
		invested = invested.Add(h.AvgCost.Mul(decimal.NewFromInt(h.Shares)))
	}
	a.capital = cp.Capital
	if a.capital.IsZero() {
		// checkpoints written without capital count open positions at cost
		a.capital = cp.Cash.Add(invested)
	}
	a.updatedAt = cp.UpdatedAt
	return a
}

// UserID returns the owner of the account.
func (a *Account) UserID() string { return a.userID }

// AvailableCash returns cash minus reservations.
func (a *Account) AvailableCash() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash.Sub(a.reservedCash)
}

// AvailableShares returns held minus reserved shares of id.
func (a *Account) AvailableShares(id string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.positions[id]
	if !ok {
		return 0
	}
	return p.shares - p.reserved
}

// ReserveCash sets aside amount for a resting buy.
func (a *Account) ReserveCash(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cash.Sub(a.reservedCash).LessThan(amount) {
		return ErrInsufficientFunds
	}
	a.reservedCash = a.reservedCash.Add(amount)
	return nil
}

// ReleaseCash returns a reservation to available cash.
func (a *Account) ReleaseCash(amount decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reservedCash = decimal.Max(decimal.Zero, a.reservedCash.Sub(amount))
}

// ReserveShares sets aside shares of id for a resting sell.
func (a *Account) ReserveShares(id string, shares int64) error {
	if shares <= 0 {
		return ErrInvalidAmount
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.positions[id]
	if !ok || p.shares-p.reserved < shares {
		return ErrInsufficientShares
	}
	p.reserved += shares
	return nil
}

// ReleaseShares returns reserved shares of id.
func (a *Account) ReleaseShares(id string, shares int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.positions[id]; ok {
		p.reserved = max(0, p.reserved-shares)
	}
}

// ApplyBuy settles a buy of shares at price. release is the part of the
// cash reservation this fill consumes; it is zero for market orders. The
// fill is rejected without mutation when it would overdraw available cash.
func (a *Account) ApplyBuy(id string, shares int64, price, release decimal.Decimal, now time.Time) error {
	if shares <= 0 || !price.IsPositive() {
		return ErrInvalidAmount
	}
	cost := price.Mul(decimal.NewFromInt(shares))

	a.mu.Lock()
	defer a.mu.Unlock()

	release = decimal.Min(release, a.reservedCash)
	if a.cash.Sub(cost).LessThan(a.reservedCash.Sub(release)) {
		return ErrInsufficientFunds
	}
	a.cash = a.cash.Sub(cost)
	a.reservedCash = a.reservedCash.Sub(release)

	p, ok := a.positions[id]
	if !ok {
		p = &position{}
		a.positions[id] = p
	}
	held := decimal.NewFromInt(p.shares)
	n := decimal.NewFromInt(shares)
	p.avgCost = held.Mul(p.avgCost).Add(n.Mul(price)).Div(held.Add(n))
	p.shares += shares

	a.touch(now)
	return nil
}

// ApplySell settles a sell of shares at price. release is the number of
// reserved shares this fill consumes; it is zero for market orders. A
// position that reaches zero shares is removed.
func (a *Account) ApplySell(id string, shares int64, price decimal.Decimal, release int64, now time.Time) error {
	if shares <= 0 || !price.IsPositive() {
		return ErrInvalidAmount
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.positions[id]
	if !ok {
		return ErrInsufficientShares
	}
	release = min(release, p.reserved)
	if p.shares-shares < p.reserved-release {
		return ErrInsufficientShares
	}
	a.cash = a.cash.Add(price.Mul(decimal.NewFromInt(shares)))
	p.shares -= shares
	p.reserved -= release
	if p.shares == 0 {
		delete(a.positions, id)
	}

	a.touch(now)
	return nil
}

// Endow adds cash and, optionally, shares of id at cost. It is an
// administrative operation used to seed liquidity providers.
func (a *Account) Endow(cash decimal.Decimal, id string, shares int64, cost decimal.Decimal, now time.Time) error {
	if cash.IsNegative() || shares < 0 || (shares > 0 && (id == "" || cost.IsNegative())) {
		return ErrInvalidAmount
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cash = a.cash.Add(cash)
	a.capital = a.capital.Add(cash)
	if shares > 0 {
		a.capital = a.capital.Add(cost.Mul(decimal.NewFromInt(shares)))
		p, ok := a.positions[id]
		if !ok {
			p = &position{}
			a.positions[id] = p
		}
		held := decimal.NewFromInt(p.shares)
		n := decimal.NewFromInt(shares)
		p.avgCost = held.Mul(p.avgCost).Add(n.Mul(cost)).Div(held.Add(n))
		p.shares += shares
	}
	a.touch(now)
	return nil
}

func (a *Account) touch(now time.Time) {
	a.updatedAt = now
	a.dirty = true
}

// Checkpoint returns the persisted form of the account.
func (a *Account) Checkpoint() Checkpoint {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.checkpointLocked()
}

func (a *Account) checkpointLocked() Checkpoint {
	cp := Checkpoint{UserID: a.userID, Cash: a.cash, Capital: a.capital, UpdatedAt: a.updatedAt}
	for _, id := range a.sortedIDs() {
		p := a.positions[id]
		cp.Holdings = append(cp.Holdings, HoldingCheckpoint{InstrumentID: id, Shares: p.shares, AvgCost: p.avgCost})
	}
	return cp
}

// takeDirty returns the checkpoint and clears the dirty flag if the account
// changed since the last call.
func (a *Account) takeDirty() (Checkpoint, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.dirty {
		return Checkpoint{}, false
	}
	a.dirty = false
	return a.checkpointLocked(), true
}

func (a *Account) markDirty() {
	a.mu.Lock()
	a.dirty = true
	a.mu.Unlock()
}

func (a *Account) sortedIDs() []string {
	ids := make([]string, 0, len(a.positions))
	for id := range a.positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Portfolio returns a valued copy of the account. Positions without a quote
// are valued at cost.
func (a *Account) Portfolio(quotes QuoteFunc) Portfolio {
	a.mu.Lock()
	p := Portfolio{
		UserID:       a.userID,
		Cash:         a.cash,
		ReservedCash: a.reservedCash,
		UpdatedAt:    a.updatedAt,
	}
	capital := a.capital
	for _, id := range a.sortedIDs() {
		pos := a.positions[id]
		p.Holdings = append(p.Holdings, Holding{
			InstrumentID: id,
			Shares:       pos.shares,
			Reserved:     pos.reserved,
			AvgCost:      pos.avgCost,
		})
	}
	a.mu.Unlock()

	p.Valuation = Value(p.Cash, capital, p.Holdings, quotes)
	return p
}
