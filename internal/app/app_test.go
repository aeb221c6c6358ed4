package app

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zappabad/cloutmarket/internal/config"
	"github.com/zappabad/cloutmarket/internal/orderbook/core"
	"github.com/zappabad/cloutmarket/internal/store"
	"github.com/zappabad/cloutmarket/internal/trading"
)

var noon = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func newTestApp(t *testing.T) (*App, *store.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Pricing.Location = "UTC"
	cfg.Trading.StartingCash = 1e9
	cfg.Bots.Count = 1
	cfg.Bots.Runner.TickInterval = time.Hour

	st := store.NewMemoryStore()
	a, err := New(context.Background(), &cfg, slog.New(slog.DiscardHandler),
		WithStore(st),
		WithClock(func() time.Time { return noon }),
	)
	require.NoError(t, err)
	return a, st
}

func TestStartPublishesAndEndowsBots(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	defer a.Close(ctx)

	snap := a.Market.Snapshot()
	require.NotNil(t, snap)
	assert.Len(t, snap.Instruments, a.Registry.Len())
	assert.EqualValues(t, 1, snap.Cycle)

	pf, err := a.Trading.Portfolio(ctx, "bot-1")
	require.NoError(t, err)
	assert.Len(t, pf.Holdings, a.Registry.Len())
	assert.True(t, pf.Cash.Equal(decimal.NewFromInt(1_000_000)), pf.Cash.String())
	for _, h := range pf.Holdings {
		assert.EqualValues(t, 1000, h.Shares, h.InstrumentID)
	}

	require.Error(t, a.Start(ctx))
}

func TestOrderIsCheckpointedOnClose(t *testing.T) {
	a, st := newTestApp(t)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx))

	res, err := a.Trading.Submit(ctx, "alice", trading.OrderRequest{
		InstrumentID: "programming",
		Side:         core.SideBuy,
		Kind:         core.OrderKindMarket,
		Shares:       3,
	})
	require.NoError(t, err)
	assert.Equal(t, trading.StatusFilled, res.Order.Status)

	require.NoError(t, a.Close(ctx))
	require.NoError(t, a.Close(ctx))

	cp, found, err := st.LoadPortfolio(ctx, "alice")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, cp.Holdings, 1)
	assert.Equal(t, "programming", cp.Holdings[0].InstrumentID)
	assert.EqualValues(t, 3, cp.Holdings[0].Shares)

	_, found, err = st.LoadPricingMemory(ctx, "programming")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestAPIServesPublishedMarket(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	defer a.Close(ctx)

	srv := httptest.NewServer(a.API.Handler())
	defer srv.Close()

	for _, path := range []string{"/healthz", "/api/v1/market", "/api/v1/instruments/programming", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestCloseWithoutStart(t *testing.T) {
	a, _ := newTestApp(t)
	assert.NoError(t, a.Close(context.Background()))
}
