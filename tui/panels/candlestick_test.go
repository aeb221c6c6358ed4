package panels

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zappabad/cloutmarket/internal/trading"
)

func TestBuildCandles(t *testing.T) {
	t0 := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	trade := func(offset time.Duration, price string, shares int64) trading.Trade {
		return trading.Trade{Price: decimal.RequireFromString(price), Shares: shares, Time: t0.Add(offset)}
	}

	candles := BuildCandles([]trading.Trade{
		trade(0, "10.00", 1),
		trade(5*time.Second, "10.50", 2),
		trade(10*time.Second, "9.80", 3),
		trade(20*time.Second, "10.10", 4),
		trade(31*time.Second, "10.20", 5),
	}, 30*time.Second)

	require.Len(t, candles, 2)
	assert.Equal(t, Candle{Open: 10, High: 10.5, Low: 9.8, Close: 10.1, Shares: 10, Start: t0}, candles[0])
	assert.Equal(t, Candle{Open: 10.2, High: 10.2, Low: 10.2, Close: 10.2, Shares: 5, Start: t0.Add(30 * time.Second)}, candles[1])

	assert.Empty(t, BuildCandles(nil, time.Minute))
}

func TestCandleChar(t *testing.T) {
	c := Candle{Open: 10, Close: 12, High: 14, Low: 8}
	assert.Equal(t, '┃', candleChar(c, 11, 0.1))
	assert.Equal(t, '│', candleChar(c, 13, 0.1))
	assert.Equal(t, '│', candleChar(c, 9, 0.1))
	assert.Equal(t, ' ', candleChar(c, 20, 0.1))
}
