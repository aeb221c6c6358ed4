package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zappabad/cloutmarket/internal/portfolio"
	"github.com/zappabad/cloutmarket/internal/pricing"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreWithClient(client, RedisConfig{Prefix: "test:", TTL: time.Hour})
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func checkpoint() portfolio.Checkpoint {
	return portfolio.Checkpoint{
		UserID: "alice",
		Cash:   decimal.RequireFromString("8990.00"),
		Holdings: []portfolio.HoldingCheckpoint{
			{InstrumentID: "programming", Shares: 100, AvgCost: decimal.RequireFromString("10.10")},
		},
		UpdatedAt: time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC),
	}
}

func testStore(t *testing.T, s Store) {
	ctx := context.Background()

	_, found, err := s.LoadPortfolio(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SavePortfolio(ctx, checkpoint()))
	got, found, err := s.LoadPortfolio(ctx, "alice")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "alice", got.UserID)
	assert.True(t, got.Cash.Equal(decimal.RequireFromString("8990")))
	require.Len(t, got.Holdings, 1)
	assert.Equal(t, int64(100), got.Holdings[0].Shares)
	assert.True(t, got.Holdings[0].AvgCost.Equal(decimal.RequireFromString("10.1")))
	assert.True(t, got.UpdatedAt.Equal(checkpoint().UpdatedAt))

	_, found, err = s.LoadPricingMemory(ctx, "programming")
	require.NoError(t, err)
	assert.False(t, found)

	mem := pricing.Memory{PreviousPrice: 2050.5, LastTradingImpact: 0.3}
	require.NoError(t, s.SavePricingMemory(ctx, "programming", mem))
	gotMem, found, err := s.LoadPricingMemory(ctx, "programming")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, mem, gotMem)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestMemoryStoreCopiesHoldings(t *testing.T) {
	s := NewMemoryStore()
	cp := checkpoint()
	require.NoError(t, s.SavePortfolio(context.Background(), cp))
	cp.Holdings[0].Shares = 1

	got, _, err := s.LoadPortfolio(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Holdings[0].Shares)
}

func TestRedisStore(t *testing.T) {
	s, _ := newRedisStore(t)
	testStore(t, s)
}

func TestRedisStoreKeysAndTTL(t *testing.T) {
	s, mr := newRedisStore(t)
	require.NoError(t, s.SavePortfolio(context.Background(), checkpoint()))

	assert.True(t, mr.Exists("test:portfolio:alice"))
	assert.Equal(t, time.Hour, mr.TTL("test:portfolio:alice"))

	mr.FastForward(2 * time.Hour)
	_, found, err := s.LoadPortfolio(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStoreCorruptValue(t *testing.T) {
	s, mr := newRedisStore(t)
	require.NoError(t, mr.Set("test:pricing:programming", "{not json"))

	_, _, err := s.LoadPricingMemory(context.Background(), "programming")
	assert.Error(t, err)
}

func TestRedisStoreUnavailable(t *testing.T) {
	s, mr := newRedisStore(t)
	mr.Close()

	err := s.SavePortfolio(context.Background(), checkpoint())
	assert.Error(t, err)
}
