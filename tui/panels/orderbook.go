package panels

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zappabad/cloutmarket/internal/orderbook/core"
	"github.com/zappabad/cloutmarket/internal/trading"
	"github.com/zappabad/cloutmarket/tui/styles"
)

// OrderbookPanel displays the book and tape of the selected instrument.
type OrderbookPanel struct {
	instrumentID string
	symbol       string
	book         trading.BookSnapshot
	trades       []trading.Trade
	scrollOffset int
	focused      bool
	width        int
	height       int
	maxLevels    int
}

// NewOrderbookPanel creates a new orderbook panel.
func NewOrderbookPanel() *OrderbookPanel {
	return &OrderbookPanel{
		maxLevels: 10,
	}
}

// Init initializes the panel.
func (p *OrderbookPanel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the panel.
func (p *OrderbookPanel) Update(msg tea.Msg) (*OrderbookPanel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !p.focused {
			return p, nil
		}
		switch {
		case key.Matches(msg, key.NewBinding(key.WithKeys("up", "k"))):
			if p.scrollOffset > 0 {
				p.scrollOffset--
			}
		case key.Matches(msg, key.NewBinding(key.WithKeys("down", "j"))):
			if p.scrollOffset < max(len(p.book.Bids), len(p.book.Asks))-1 {
				p.scrollOffset++
			}
		}
	}
	return p, nil
}

// View renders the panel.
func (p *OrderbookPanel) View() string {
	var content strings.Builder

	name := "No instrument selected"
	if p.symbol != "" {
		name = p.symbol
	}

	levelsToShow := (p.height - 6) / 2
	levelsToShow = max(3, min(levelsToShow, p.maxLevels))

	header := fmt.Sprintf("%8s %9s │ %-9s %-8s", "BidSz", "Bid", "Ask", "AskSz")
	content.WriteString(styles.HeaderStyle.Render(header))
	content.WriteString("\n")

	bids := window(p.book.Bids, p.scrollOffset, levelsToShow)
	asks := window(p.book.Asks, p.scrollOffset, levelsToShow)

	for i := range max(len(bids), len(asks)) {
		var bidPart, askPart string
		if i < len(bids) {
			bidPart = fmt.Sprintf("%8d %9s", bids[i].Shares, bids[i].Price.StringFixed(core.TickDecimals))
		} else {
			bidPart = fmt.Sprintf("%8s %9s", "", "")
		}
		if i < len(asks) {
			askPart = fmt.Sprintf("%-9s %-8d", asks[i].Price.StringFixed(core.TickDecimals), asks[i].Shares)
		}
		content.WriteString(fmt.Sprintf("%s │ %s\n", styles.BuyStyle.Render(bidPart), styles.SellStyle.Render(askPart)))
	}

	content.WriteString("\n")
	content.WriteString(styles.HeaderStyle.Render("Recent Trades"))
	content.WriteString("\n")

	for _, tr := range p.trades[max(0, len(p.trades)-5):] {
		sideStyle := styles.SellStyle
		if tr.TakerSide == core.SideBuy {
			sideStyle = styles.BuyStyle
		}
		line := fmt.Sprintf("%8d @ %9s", tr.Shares, tr.Price.StringFixed(core.TickDecimals))
		if tr.Simulated {
			line += " sim"
		}
		content.WriteString(sideStyle.Render(line))
		content.WriteString("\n")
	}

	panelStyle := styles.PanelStyle
	if p.focused {
		panelStyle = styles.FocusedPanelStyle
	}

	title := styles.RenderTitle(fmt.Sprintf("📊 Orderbook - %s", name), p.focused)
	panel := lipgloss.JoinVertical(lipgloss.Left, title, content.String())

	return panelStyle.Width(p.width - 2).Height(p.height - 2).Render(panel)
}

func window(levels []trading.BookLevel, offset, n int) []trading.BookLevel {
	if offset >= len(levels) {
		return nil
	}
	return levels[offset:min(len(levels), offset+n)]
}

// SetFocus sets the focus state of the panel.
func (p *OrderbookPanel) SetFocus(focused bool) {
	p.focused = focused
}

// SetSize sets the panel dimensions.
func (p *OrderbookPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// SetInstrument switches the displayed instrument and clears its data.
func (p *OrderbookPanel) SetInstrument(id, symbol string) {
	p.instrumentID = id
	p.symbol = symbol
	p.book = trading.BookSnapshot{}
	p.trades = nil
	p.scrollOffset = 0
}

// SetBook replaces the displayed book.
func (p *OrderbookPanel) SetBook(book trading.BookSnapshot) {
	p.book = book
}

// SetTrades replaces the displayed trades, oldest first.
func (p *OrderbookPanel) SetTrades(trades []trading.Trade) {
	p.trades = trades
}

// InstrumentID returns the displayed instrument.
func (p *OrderbookPanel) InstrumentID() string {
	return p.instrumentID
}
