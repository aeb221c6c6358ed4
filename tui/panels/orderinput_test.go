package panels

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zappabad/cloutmarket/internal/instrument"
	"github.com/zappabad/cloutmarket/internal/orderbook/core"
)

func press(p *OrderInputPanel, keys ...tea.KeyType) tea.Cmd {
	var cmd tea.Cmd
	for _, k := range keys {
		p, cmd = p.Update(tea.KeyMsg{Type: k})
	}
	return cmd
}

func typeText(p *OrderInputPanel, s string) {
	p.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func submitted(t *testing.T, cmd tea.Cmd) OrderSubmitMsg {
	t.Helper()
	require.NotNil(t, cmd)
	msg, ok := cmd().(OrderSubmitMsg)
	require.True(t, ok)
	return msg
}

func TestOrderInputMarketSellByName(t *testing.T) {
	p := NewOrderInputPanel(instrument.DefaultCatalog())
	p.SetFocus(true)

	typeText(p, "program")
	require.Len(t, p.matches, 1)
	assert.Equal(t, "programming", p.matches[0].ID)

	press(p, tea.KeyEnter)
	require.NotNil(t, p.selected)
	assert.Equal(t, "CODE", p.symbol.Value())
	assert.Equal(t, FieldSide, p.field)

	press(p, tea.KeyRight, tea.KeyDown, tea.KeyDown)
	assert.Equal(t, FieldShares, p.field, "market orders skip the price row")
	typeText(p, "5")
	press(p, tea.KeyDown)

	msg := submitted(t, press(p, tea.KeyEnter))
	assert.Equal(t, OrderSubmitMsg{InstrumentID: "programming", Side: core.SideSell, Kind: core.OrderKindMarket, Shares: 5}, msg)
}

func TestOrderInputLimitBuy(t *testing.T) {
	p := NewOrderInputPanel(instrument.DefaultCatalog())
	p.SetFocus(true)
	p.SetSize(100, 40)
	p.SetInstrument("gaming")

	press(p, tea.KeyDown, tea.KeyDown, tea.KeyRight, tea.KeyDown)
	assert.Equal(t, FieldPrice, p.field)
	typeText(p, "9.50")
	press(p, tea.KeyDown)
	typeText(p, "3")
	assert.Contains(t, p.View(), "= $28.50")

	press(p, tea.KeyDown)
	msg := submitted(t, press(p, tea.KeyEnter))
	assert.Equal(t, "gaming", msg.InstrumentID)
	assert.Equal(t, core.SideBuy, msg.Side)
	assert.Equal(t, core.OrderKindLimit, msg.Kind)
	assert.Equal(t, "9.5", msg.LimitPrice.String())
	assert.Equal(t, int64(3), msg.Shares)
}

func TestOrderInputRejectsIncompleteOrder(t *testing.T) {
	p := NewOrderInputPanel(instrument.DefaultCatalog())
	p.SetFocus(true)

	press(p, tea.KeyUp)
	assert.Equal(t, FieldSubmit, p.field)
	assert.Nil(t, press(p, tea.KeyEnter))
	assert.Equal(t, "pick a symbol", p.errMsg)

	p.SetInstrument("memes")
	assert.Nil(t, press(p, tea.KeyEnter))
	assert.Equal(t, "shares must be a positive integer", p.errMsg)

	p.Reset()
	assert.Equal(t, FieldInstrument, p.field)
	assert.Nil(t, p.selected)
	assert.Equal(t, core.OrderKindMarket, p.kind)
}
