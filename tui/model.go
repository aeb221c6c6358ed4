// Package tui is the terminal dashboard: market overview, order book,
// chart, events, order entry and the player's portfolio.
package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zappabad/cloutmarket/internal/events"
	"github.com/zappabad/cloutmarket/internal/instrument"
	"github.com/zappabad/cloutmarket/internal/market"
	"github.com/zappabad/cloutmarket/internal/portfolio"
	"github.com/zappabad/cloutmarket/internal/trading"
	"github.com/zappabad/cloutmarket/tui/panels"
	"github.com/zappabad/cloutmarket/tui/styles"
)

// Market is the published instrument set.
type Market interface {
	Snapshot() *market.Snapshot
}

// Trading is what the dashboard reads from and sends to the trading engine.
type Trading interface {
	Submit(ctx context.Context, userID string, req trading.OrderRequest) (trading.Result, error)
	OrderBook(ctx context.Context, instrumentID string) (trading.BookSnapshot, error)
	RecentTrades(instrumentID string, n int) ([]trading.Trade, error)
	Portfolio(ctx context.Context, userID string) (portfolio.Portfolio, error)
}

// Events lists recent events.
type Events interface {
	Recent(n int) []events.Event
}

// PanelFocus represents which panel is currently focused.
type PanelFocus int

const (
	FocusMarket PanelFocus = iota
	FocusOrderbook
	FocusChart
	FocusEvents
	FocusOrderInput
	FocusPortfolio

	panelCount = 6
)

const (
	refreshInterval = 500 * time.Millisecond
	tapeLength      = 200
)

// Model is the main TUI application model.
type Model struct {
	market  Market
	trading Trading
	events  Events

	userID string

	marketPanel     *panels.MarketOverviewPanel
	orderbookPanel  *panels.OrderbookPanel
	chartPanel      *panels.CandlestickPanel
	eventsPanel     *panels.EventsPanel
	orderInputPanel *panels.OrderInputPanel
	portfolioPanel  *panels.PortfolioPanel

	focusedPanel PanelFocus

	width  int
	height int

	statusMsg string
	ready     bool
}

// NewModel creates a dashboard trading as userID.
func NewModel(m Market, t Trading, ev Events, defs []instrument.Definition, userID string) *Model {
	model := &Model{
		market:          m,
		trading:         t,
		events:          ev,
		userID:          userID,
		marketPanel:     panels.NewMarketOverviewPanel(),
		orderbookPanel:  panels.NewOrderbookPanel(),
		chartPanel:      panels.NewCandlestickPanel(),
		eventsPanel:     panels.NewEventsPanel(),
		orderInputPanel: panels.NewOrderInputPanel(defs),
		portfolioPanel:  panels.NewPortfolioPanel(),
		focusedPanel:    FocusMarket,
	}
	if len(defs) > 0 {
		model.selectInstrument(defs[0].ID, defs[0].Symbol)
	}
	return model
}

// Init initializes the model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.marketPanel.Init(),
		m.orderbookPanel.Init(),
		m.chartPanel.Init(),
		m.eventsPanel.Init(),
		m.orderInputPanel.Init(),
		m.portfolioPanel.Init(),
		func() tea.Msg { return tickMsg{} },
	)
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if m.focusedPanel != FocusOrderInput {
				return m, tea.Quit
			}
		case "tab":
			m.focusedPanel = (m.focusedPanel + 1) % panelCount
		case "shift+tab":
			m.focusedPanel = (m.focusedPanel + panelCount - 1) % panelCount
		case "f1":
			m.focusedPanel = FocusMarket
		case "f2":
			m.focusedPanel = FocusOrderbook
		case "f3":
			m.focusedPanel = FocusChart
		case "f4":
			m.focusedPanel = FocusEvents
		case "f5":
			m.focusedPanel = FocusOrderInput
		case "f6":
			m.focusedPanel = FocusPortfolio
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case panels.OrderSubmitMsg:
		cmds = append(cmds, m.submitOrder(msg))

	case orderResultMsg:
		m.statusMsg = msg.message
		m.refresh()

	case tickMsg:
		m.refresh()
		cmds = append(cmds, tea.Tick(refreshInterval, func(time.Time) tea.Msg { return tickMsg{} }))
	}

	m.updateFocusedPanel(msg, &cmds)

	return m, tea.Batch(cmds...)
}

func (m *Model) updateFocusedPanel(msg tea.Msg, cmds *[]tea.Cmd) {
	var cmd tea.Cmd

	switch m.focusedPanel {
	case FocusMarket:
		m.marketPanel, cmd = m.marketPanel.Update(msg)
		if sel, ok := m.marketPanel.Selected(); ok && sel.ID != m.orderbookPanel.InstrumentID() {
			m.selectInstrument(sel.ID, sel.Symbol)
			m.refreshBook()
		}
	case FocusOrderbook:
		m.orderbookPanel, cmd = m.orderbookPanel.Update(msg)
	case FocusChart:
		m.chartPanel, cmd = m.chartPanel.Update(msg)
	case FocusEvents:
		m.eventsPanel, cmd = m.eventsPanel.Update(msg)
	case FocusOrderInput:
		m.orderInputPanel, cmd = m.orderInputPanel.Update(msg)
	case FocusPortfolio:
		m.portfolioPanel, cmd = m.portfolioPanel.Update(msg)
	}

	if cmd != nil {
		*cmds = append(*cmds, cmd)
	}
}

// View renders the UI.
func (m *Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	m.marketPanel.SetFocus(m.focusedPanel == FocusMarket)
	m.orderbookPanel.SetFocus(m.focusedPanel == FocusOrderbook)
	m.chartPanel.SetFocus(m.focusedPanel == FocusChart)
	m.eventsPanel.SetFocus(m.focusedPanel == FocusEvents)
	m.orderInputPanel.SetFocus(m.focusedPanel == FocusOrderInput)
	m.portfolioPanel.SetFocus(m.focusedPanel == FocusPortfolio)

	// ┌──────────┬───────────┬─────────┐
	// │ Market   │ Orderbook │ Chart   │
	// ├──────────┼───────────┼─────────┤
	// │ Events   │ Order     │ Holdings│
	// └──────────┴───────────┴─────────┘
	leftWidth := m.width / 3
	middleWidth := m.width / 3
	rightWidth := m.width - leftWidth - middleWidth

	topHeight := (m.height - 3) * 3 / 5
	bottomHeight := m.height - topHeight - 3

	m.marketPanel.SetSize(leftWidth, topHeight)
	m.orderbookPanel.SetSize(middleWidth, topHeight)
	m.chartPanel.SetSize(rightWidth, topHeight)
	topRow := lipgloss.JoinHorizontal(lipgloss.Top,
		m.marketPanel.View(),
		m.orderbookPanel.View(),
		m.chartPanel.View(),
	)

	m.eventsPanel.SetSize(leftWidth, bottomHeight)
	m.orderInputPanel.SetSize(middleWidth, bottomHeight)
	m.portfolioPanel.SetSize(rightWidth, bottomHeight)
	bottomRow := lipgloss.JoinHorizontal(lipgloss.Top,
		m.eventsPanel.View(),
		m.orderInputPanel.View(),
		m.portfolioPanel.View(),
	)

	return lipgloss.JoinVertical(lipgloss.Left, topRow, bottomRow, m.renderStatusBar())
}

func (m *Model) renderStatusBar() string {
	help := lipgloss.JoinHorizontal(lipgloss.Center,
		styles.StatusBarKeyStyle.Render("F1-F6")+styles.StatusBarDescStyle.Render(" panels"), " │ ",
		styles.StatusBarKeyStyle.Render("Tab/Enter")+styles.StatusBarDescStyle.Render(" navigate"), " │ ",
		styles.StatusBarKeyStyle.Render("↑↓")+styles.StatusBarDescStyle.Render(" select"), " │ ",
		styles.StatusBarKeyStyle.Render("q")+styles.StatusBarDescStyle.Render(" quit"),
	)

	status := " │ " + m.userID
	if m.statusMsg != "" {
		status += " │ " + m.statusMsg
	}
	return styles.StatusBarStyle.Width(m.width).Render(help + status)
}

func (m *Model) selectInstrument(id, symbol string) {
	m.orderbookPanel.SetInstrument(id, symbol)
	m.chartPanel.SetInstrument(symbol)
	m.orderInputPanel.SetInstrument(id)
}

func (m *Model) refresh() {
	m.marketPanel.SetSnapshot(m.market.Snapshot())
	m.eventsPanel.SetEvents(m.events.Recent(50))
	m.refreshBook()

	ctx, cancel := context.WithTimeout(context.Background(), refreshInterval)
	defer cancel()
	if pf, err := m.trading.Portfolio(ctx, m.userID); err == nil {
		m.portfolioPanel.SetPortfolio(pf)
	}
}

func (m *Model) refreshBook() {
	id := m.orderbookPanel.InstrumentID()
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), refreshInterval)
	defer cancel()
	if book, err := m.trading.OrderBook(ctx, id); err == nil {
		m.orderbookPanel.SetBook(book)
	}
	if trades, err := m.trading.RecentTrades(id, tapeLength); err == nil {
		m.orderbookPanel.SetTrades(trades)
		m.chartPanel.SetTrades(trades)
	}
}

func (m *Model) submitOrder(order panels.OrderSubmitMsg) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		res, err := m.trading.Submit(ctx, m.userID, trading.OrderRequest{
			InstrumentID: order.InstrumentID,
			Side:         order.Side,
			Kind:         order.Kind,
			Shares:       order.Shares,
			LimitPrice:   order.LimitPrice,
		})
		return orderResultMsg{message: describeResult(res, err)}
	}
}

func describeResult(res trading.Result, err error) string {
	if err != nil {
		return "❌ Order failed: " + err.Error()
	}
	o := res.Order
	if o.FilledShares > 0 {
		return fmt.Sprintf("✓ %s %d/%d @ %s", o.Status, o.FilledShares, o.Shares, o.AvgFillPrice.StringFixed(2))
	}
	return fmt.Sprintf("✓ Order resting (ID: %s)", o.ID)
}

// tickMsg is sent periodically to refresh data.
type tickMsg struct{}

// orderResultMsg is sent after an order is processed.
type orderResultMsg struct {
	message string
}
