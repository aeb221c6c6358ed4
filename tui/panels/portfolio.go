package panels

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zappabad/cloutmarket/internal/portfolio"
	"github.com/zappabad/cloutmarket/tui/styles"
)

// PortfolioPanel shows the player's cash, holdings and returns.
type PortfolioPanel struct {
	pf      portfolio.Portfolio
	loaded  bool
	focused bool
	width   int
	height  int
}

// NewPortfolioPanel creates an empty portfolio panel.
func NewPortfolioPanel() *PortfolioPanel {
	return &PortfolioPanel{}
}

// Init initializes the panel.
func (p *PortfolioPanel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the panel.
func (p *PortfolioPanel) Update(msg tea.Msg) (*PortfolioPanel, tea.Cmd) {
	return p, nil
}

// View renders the panel.
func (p *PortfolioPanel) View() string {
	var content strings.Builder

	if !p.loaded {
		content.WriteString(styles.MutedStyle.Render("loading..."))
	} else {
		v := p.pf.Valuation
		ret, _ := v.ReturnPercent.Float64()
		content.WriteString(fmt.Sprintf("Cash   %12s\n", p.pf.Cash.StringFixed(2)))
		if p.pf.ReservedCash.IsPositive() {
			content.WriteString(styles.MutedStyle.Render(fmt.Sprintf("  held %12s", p.pf.ReservedCash.StringFixed(2))))
			content.WriteString("\n")
		}
		content.WriteString(fmt.Sprintf("Value  %12s  ", v.TotalValue.StringFixed(2)))
		content.WriteString(styles.ChangeStyle(ret).Render(fmt.Sprintf("%+.2f%%", ret)))
		content.WriteString("\n\n")

		content.WriteString(styles.HeaderStyle.Render(fmt.Sprintf("%-14s %6s %9s %10s %8s", "Holding", "Shares", "AvgCost", "P&L", "%")))
		content.WriteString("\n")
		for _, h := range p.pf.Holdings {
			pnl, _ := h.UnrealizedPnL.Float64()
			line := fmt.Sprintf("%-14s %6d %9s %10s %7s%%", h.InstrumentID, h.Shares, h.AvgCost.StringFixed(2), h.UnrealizedPnL.StringFixed(2), h.UnrealizedPnLPercent.StringFixed(2))
			content.WriteString(styles.ChangeStyle(pnl).Render(line))
			content.WriteString("\n")
		}
	}

	panelStyle := styles.PanelStyle
	if p.focused {
		panelStyle = styles.FocusedPanelStyle
	}

	title := styles.RenderTitle("💼 Portfolio", p.focused)
	panel := lipgloss.JoinVertical(lipgloss.Left, title, content.String())

	return panelStyle.Width(p.width - 2).Height(p.height - 2).Render(panel)
}

// SetFocus sets the focus state of the panel.
func (p *PortfolioPanel) SetFocus(focused bool) {
	p.focused = focused
}

// SetSize sets the panel dimensions.
func (p *PortfolioPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// SetPortfolio replaces the displayed portfolio.
func (p *PortfolioPanel) SetPortfolio(pf portfolio.Portfolio) {
	p.pf = pf
	p.loaded = true
}
