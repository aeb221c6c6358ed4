package portfolio

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Loader reads a saved checkpoint. found is false when the user has none.
type Loader interface {
	LoadPortfolio(ctx context.Context, userID string) (cp Checkpoint, found bool, err error)
}

// Book is the registry of accounts. The map lock only guards lookup and
// insert; all account state is behind each account's own lock.
type Book struct {
	mu           sync.RWMutex
	accounts     map[string]*Account
	startingCash decimal.Decimal
	loader       Loader
}

// NewBook creates a Book. Users without a checkpoint in loader (which may be
// nil) start with startingCash.
func NewBook(startingCash decimal.Decimal, loader Loader) *Book {
	if !startingCash.IsPositive() {
		startingCash = DefaultStartingCash
	}
	return &Book{
		accounts:     make(map[string]*Account),
		startingCash: startingCash,
		loader:       loader,
	}
}

// StartingCash returns the default endowment.
func (b *Book) StartingCash() decimal.Decimal { return b.startingCash }

// Lookup returns the account for userID without creating it.
func (b *Book) Lookup(userID string) (*Account, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.accounts[userID]
	return a, ok
}

// Account returns the account for userID, loading its checkpoint or creating
// a default one on first use.
func (b *Book) Account(ctx context.Context, userID string) (*Account, error) {
	if a, ok := b.Lookup(userID); ok {
		return a, nil
	}

	var a *Account
	if b.loader != nil {
		cp, found, err := b.loader.LoadPortfolio(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load portfolio %s: %w", userID, err)
		}
		if found {
			cp.UserID = userID
			a = fromCheckpoint(cp)
		}
	}
	if a == nil {
		a = newAccount(userID, b.startingCash)
		a.markDirty()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.accounts[userID]; ok {
		return existing, nil
	}
	b.accounts[userID] = a
	return a, nil
}

// Users returns every known user id, sorted.
func (b *Book) Users() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.accounts))
	for id := range b.accounts {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Dirty returns checkpoints for accounts changed since the last call.
func (b *Book) Dirty() []Checkpoint {
	b.mu.RLock()
	accounts := make([]*Account, 0, len(b.accounts))
	for _, a := range b.accounts {
		accounts = append(accounts, a)
	}
	b.mu.RUnlock()

	var out []Checkpoint
	for _, a := range accounts {
		if cp, ok := a.takeDirty(); ok {
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// MarkDirty flags accounts whose checkpoint failed to save so the next
// flush retries them.
func (b *Book) MarkDirty(userIDs ...string) {
	for _, id := range userIDs {
		if a, ok := b.Lookup(id); ok {
			a.markDirty()
		}
	}
}
