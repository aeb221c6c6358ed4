package panels

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zappabad/cloutmarket/internal/market"
	"github.com/zappabad/cloutmarket/tui/styles"
)

// MarketOverviewPanel lists every published instrument.
type MarketOverviewPanel struct {
	snap          *market.Snapshot
	selectedIndex int
	focused       bool
	width         int
	height        int
}

// NewMarketOverviewPanel creates a new market overview panel.
func NewMarketOverviewPanel() *MarketOverviewPanel {
	return &MarketOverviewPanel{}
}

// Init initializes the panel.
func (p *MarketOverviewPanel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the panel.
func (p *MarketOverviewPanel) Update(msg tea.Msg) (*MarketOverviewPanel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !p.focused {
			return p, nil
		}
		switch {
		case key.Matches(msg, key.NewBinding(key.WithKeys("up", "k"))):
			if p.selectedIndex > 0 {
				p.selectedIndex--
			}
		case key.Matches(msg, key.NewBinding(key.WithKeys("down", "j"))):
			if p.snap != nil && p.selectedIndex < len(p.snap.Instruments)-1 {
				p.selectedIndex++
			}
		}
	}
	return p, nil
}

// View renders the panel.
func (p *MarketOverviewPanel) View() string {
	var content strings.Builder

	header := fmt.Sprintf("%-6s %10s %8s %10s", "Symbol", "Price", "Chg%", "Volume")
	content.WriteString(styles.HeaderStyle.Render(header))
	content.WriteString("\n")

	if p.snap != nil {
		for i, inst := range p.snap.Instruments {
			row := fmt.Sprintf("%-6s %10.2f %+7.2f%% %10.0f",
				inst.Symbol, inst.Price, inst.PercentChange, inst.Volume)

			style := styles.ChangeStyle(inst.PercentChange)
			if i == p.selectedIndex && p.focused {
				style = styles.SelectedRowStyle
			}
			content.WriteString(style.Render(row))
			content.WriteString("\n")
		}

		content.WriteString("\n")
		content.WriteString(styles.SentimentStyle(string(p.snap.Sentiment)).Render(
			fmt.Sprintf("%s  avg %+.2f%%  cycle %d", p.snap.Sentiment, p.snap.AvgChange, p.snap.Cycle)))
		content.WriteString("\n")
		for _, s := range p.snap.Sectors {
			line := fmt.Sprintf("%-14s %+6.2f%%  ▲%s ▼%s", s.Category, s.AvgChange, s.TopGainer, s.TopLoser)
			content.WriteString(styles.ChangeStyle(s.AvgChange).Render(line))
			content.WriteString("\n")
		}
	} else {
		content.WriteString(styles.MutedStyle.Render("waiting for the first cycle"))
	}

	panelStyle := styles.PanelStyle
	if p.focused {
		panelStyle = styles.FocusedPanelStyle
	}

	title := styles.RenderTitle("📈 Market", p.focused)
	panel := lipgloss.JoinVertical(lipgloss.Left, title, content.String())

	return panelStyle.Width(p.width - 2).Height(p.height - 2).Render(panel)
}

// SetFocus sets the focus state of the panel.
func (p *MarketOverviewPanel) SetFocus(focused bool) {
	p.focused = focused
}

// SetSize sets the panel dimensions.
func (p *MarketOverviewPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// SetSnapshot replaces the displayed set.
func (p *MarketOverviewPanel) SetSnapshot(snap *market.Snapshot) {
	p.snap = snap
	if snap != nil && p.selectedIndex >= len(snap.Instruments) {
		p.selectedIndex = max(0, len(snap.Instruments)-1)
	}
}

// Selected returns the highlighted instrument.
func (p *MarketOverviewPanel) Selected() (market.PricedInstrument, bool) {
	if p.snap == nil || p.selectedIndex >= len(p.snap.Instruments) {
		return market.PricedInstrument{}, false
	}
	return p.snap.Instruments[p.selectedIndex], true
}
