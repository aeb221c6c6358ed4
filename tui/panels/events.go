package panels

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zappabad/cloutmarket/internal/events"
	"github.com/zappabad/cloutmarket/tui/styles"
)

// EventsPanel lists recent community events, newest first.
type EventsPanel struct {
	events        []events.Event
	now           func() time.Time
	selectedIndex int
	scrollOffset  int
	focused       bool
	width         int
	height        int
}

// NewEventsPanel creates a new events panel.
func NewEventsPanel() *EventsPanel {
	return &EventsPanel{now: time.Now}
}

// Init initializes the panel.
func (p *EventsPanel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the panel.
func (p *EventsPanel) Update(msg tea.Msg) (*EventsPanel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !p.focused {
			return p, nil
		}
		switch {
		case key.Matches(msg, key.NewBinding(key.WithKeys("up", "k"))):
			if p.selectedIndex > 0 {
				p.selectedIndex--
				if p.selectedIndex < p.scrollOffset {
					p.scrollOffset = p.selectedIndex
				}
			}
		case key.Matches(msg, key.NewBinding(key.WithKeys("down", "j"))):
			if p.selectedIndex < len(p.events)-1 {
				p.selectedIndex++
				visibleItems := p.height - 4
				if p.selectedIndex >= p.scrollOffset+visibleItems {
					p.scrollOffset = p.selectedIndex - visibleItems + 1
				}
			}
		}
	}
	return p, nil
}

// View renders the panel.
func (p *EventsPanel) View() string {
	var content strings.Builder

	if len(p.events) == 0 {
		content.WriteString(styles.MutedStyle.Render("No events yet"))
	} else {
		visibleItems := max(1, p.height-4)
		start := min(p.scrollOffset, len(p.events)-1)
		end := min(start+visibleItems, len(p.events))
		now := p.now()

		for i := start; i < end; i++ {
			ev := p.events[i]

			style := styles.EventStyle
			switch {
			case !ev.Active(now):
				style = styles.MutedStyle
			case ev.ImpactPercent < 0:
				style = styles.EventNegativeStyle
			case ev.ImpactPercent > 0:
				style = styles.EventPositiveStyle
			}

			text := fmt.Sprintf("%-12s %-14s %+5.1f%% %s", ev.Type, ev.InstrumentID, ev.ImpactPercent, ev.Title)
			if limit := p.width - 15; limit > 3 && len(text) > limit {
				text = text[:limit-3] + "..."
			}
			line := fmt.Sprintf("%s %s", styles.TimeStyle.Render(ev.CreatedAt.Format("15:04:05")), style.Render(text))
			if i == p.selectedIndex && p.focused {
				line = styles.SelectedRowStyle.Render(line)
			}

			content.WriteString(line)
			if i < end-1 {
				content.WriteString("\n")
			}
		}

		if len(p.events) > visibleItems {
			content.WriteString("\n")
			content.WriteString(styles.MutedStyle.Render(fmt.Sprintf(" (%d/%d)", p.selectedIndex+1, len(p.events))))
		}
	}

	panelStyle := styles.PanelStyle
	if p.focused {
		panelStyle = styles.FocusedPanelStyle
	}

	title := styles.RenderTitle("📰 Events", p.focused)
	panel := lipgloss.JoinVertical(lipgloss.Left, title, content.String())

	return panelStyle.Width(p.width - 2).Height(p.height - 2).Render(panel)
}

// SetFocus sets the focus state of the panel.
func (p *EventsPanel) SetFocus(focused bool) {
	p.focused = focused
}

// SetSize sets the panel dimensions.
func (p *EventsPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// SetEvents replaces the listed events.
func (p *EventsPanel) SetEvents(list []events.Event) {
	p.events = list
	if p.selectedIndex >= len(p.events) {
		p.selectedIndex = max(0, len(p.events)-1)
	}
}
