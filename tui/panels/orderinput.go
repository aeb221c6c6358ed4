package panels

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/zappabad/cloutmarket/internal/instrument"
	"github.com/zappabad/cloutmarket/internal/orderbook/core"
	"github.com/zappabad/cloutmarket/tui/styles"
)

// OrderInputField identifies a row of the order form.
type OrderInputField int

const (
	FieldInstrument OrderInputField = iota
	FieldSide
	FieldType
	FieldPrice
	FieldShares
	FieldSubmit
)

const maxMatches = 5

var orderKeys = struct {
	next, prev, submit, cancel, left, right key.Binding
}{
	next:   key.NewBinding(key.WithKeys("down")),
	prev:   key.NewBinding(key.WithKeys("up")),
	submit: key.NewBinding(key.WithKeys("enter")),
	cancel: key.NewBinding(key.WithKeys("esc")),
	left:   key.NewBinding(key.WithKeys("left")),
	right:  key.NewBinding(key.WithKeys("right")),
}

// OrderInputPanel is the order entry form. The symbol field completes
// against instrument symbols and community names.
type OrderInputPanel struct {
	instruments []instrument.Definition
	symbol      textinput.Model
	price       textinput.Model
	shares      textinput.Model

	matches  []instrument.Definition
	matchIdx int
	picking  bool

	side  core.Side
	kind  core.OrderKind
	field OrderInputField

	selected *instrument.Definition
	errMsg   string

	focused       bool
	width, height int
}

func newInput(placeholder string, width, limit int) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	in.Width = width
	in.CharLimit = limit
	return in
}

// NewOrderInputPanel creates an order form over defs.
func NewOrderInputPanel(defs []instrument.Definition) *OrderInputPanel {
	return &OrderInputPanel{
		instruments: defs,
		symbol:      newInput("Search symbol...", 15, 24),
		price:       newInput("Limit", 10, 15),
		shares:      newInput("Shares", 10, 12),
		matches:     defs,
		side:        core.SideBuy,
		kind:        core.OrderKindMarket,
		field:       FieldInstrument,
	}
}

// Init starts the cursor blink.
func (p *OrderInputPanel) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles key input while the panel is focused.
func (p *OrderInputPanel) Update(msg tea.Msg) (*OrderInputPanel, tea.Cmd) {
	if !p.focused {
		return p, nil
	}

	if km, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(km, orderKeys.next):
			p.move(1)
			return p, nil
		case key.Matches(km, orderKeys.prev):
			p.move(-1)
			return p, nil
		case key.Matches(km, orderKeys.submit):
			if p.field == FieldSubmit {
				return p, p.submitOrder()
			}
			p.move(1)
			return p, nil
		case key.Matches(km, orderKeys.cancel):
			p.picking = false
			return p, nil
		case key.Matches(km, orderKeys.left, orderKeys.right):
			if p.toggle(key.Matches(km, orderKeys.right)) {
				return p, nil
			}
		}
	}

	var cmd tea.Cmd
	switch p.field {
	case FieldInstrument:
		p.symbol, cmd = p.symbol.Update(msg)
		p.filter(p.symbol.Value())
		p.picking = p.symbol.Value() != ""
	case FieldPrice:
		p.price, cmd = p.price.Update(msg)
	case FieldShares:
		p.shares, cmd = p.shares.Update(msg)
	}
	return p, cmd
}

// toggle handles left/right on the choice rows and the match list. It
// reports whether the key was consumed.
func (p *OrderInputPanel) toggle(forward bool) bool {
	switch {
	case p.picking && p.field == FieldInstrument:
		if forward {
			p.matchIdx = min(p.matchIdx+1, len(p.matches)-1)
		} else {
			p.matchIdx = max(p.matchIdx-1, 0)
		}
	case p.field == FieldSide:
		p.side = p.side.Opposite()
	case p.field == FieldType:
		if p.kind == core.OrderKindMarket {
			p.kind = core.OrderKindLimit
		} else {
			p.kind = core.OrderKindMarket
		}
	default:
		return false
	}
	return true
}

// fields lists the rows in display order; the price row exists only for
// limit orders.
func (p *OrderInputPanel) fields() []OrderInputField {
	if p.kind == core.OrderKindLimit {
		return []OrderInputField{FieldInstrument, FieldSide, FieldType, FieldPrice, FieldShares, FieldSubmit}
	}
	return []OrderInputField{FieldInstrument, FieldSide, FieldType, FieldShares, FieldSubmit}
}

func (p *OrderInputPanel) move(step int) {
	if p.field == FieldInstrument {
		p.pick()
	}
	p.picking = false

	rows := p.fields()
	i := slices.Index(rows, p.field)
	if i < 0 {
		i = 0
	}
	p.field = rows[(i+step+len(rows))%len(rows)]
	p.syncFocus()
}

func (p *OrderInputPanel) syncFocus() {
	inputs := map[OrderInputField]*textinput.Model{
		FieldInstrument: &p.symbol,
		FieldPrice:      &p.price,
		FieldShares:     &p.shares,
	}
	for f, in := range inputs {
		if p.focused && f == p.field {
			in.Focus()
		} else {
			in.Blur()
		}
	}
}

func (p *OrderInputPanel) filter(query string) {
	query = strings.ToUpper(strings.TrimSpace(query))
	p.matchIdx = 0
	p.matches = p.matches[:0:0]
	for _, d := range p.instruments {
		if strings.Contains(strings.ToUpper(d.Symbol), query) || strings.Contains(strings.ToUpper(d.Name), query) {
			p.matches = append(p.matches, d)
		}
	}
}

// pick selects the highlighted match, or an exact symbol typed in full.
func (p *OrderInputPanel) pick() {
	typed := strings.ToUpper(strings.TrimSpace(p.symbol.Value()))
	for i, d := range p.instruments {
		if d.Symbol == typed {
			p.selected = &p.instruments[i]
			return
		}
	}
	if !p.picking || p.matchIdx >= len(p.matches) {
		return
	}
	want := p.matches[p.matchIdx].ID
	for i, d := range p.instruments {
		if d.ID == want {
			p.selected = &p.instruments[i]
			p.symbol.SetValue(d.Symbol)
			return
		}
	}
}

// View renders the panel.
func (p *OrderInputPanel) View() string {
	var b strings.Builder

	for _, f := range p.fields() {
		switch f {
		case FieldInstrument:
			b.WriteString(p.row("Symbol", f, p.renderSymbol()))
		case FieldSide:
			b.WriteString(p.row("Side", f, p.choice([]string{"BUY", "SELL"}, p.side.String(), f)))
		case FieldType:
			b.WriteString(p.row("Type", f, p.choice([]string{"MARKET", "LIMIT"}, p.kind.String(), f)))
		case FieldPrice:
			b.WriteString(p.row("Limit", f, p.price.View()))
		case FieldShares:
			b.WriteString(p.row("Shares", f, p.shares.View()))
		case FieldSubmit:
			style := styles.InputStyle
			if p.field == FieldSubmit && p.focused {
				style = styles.FocusedInputStyle.Bold(true).Foreground(styles.PrimaryColor)
			}
			b.WriteString("\n" + style.Render("  [Submit Order]  ") + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(p.summary())
	if p.errMsg != "" {
		b.WriteString("\n" + styles.SellStyle.Render(p.errMsg))
	}

	panelStyle := styles.PanelStyle
	if p.focused {
		panelStyle = styles.FocusedPanelStyle
	}
	body := lipgloss.JoinVertical(lipgloss.Left, styles.RenderTitle("📝 Order Entry", p.focused), b.String())
	return panelStyle.Width(p.width - 2).Height(p.height - 2).Render(body)
}

func (p *OrderInputPanel) row(label string, f OrderInputField, value string) string {
	style := styles.LabelStyle
	if p.field == f && p.focused {
		style = style.Foreground(styles.PrimaryColor)
	}
	return style.Render(fmt.Sprintf("%-8s", label)) + value
}

func (p *OrderInputPanel) choice(options []string, current string, f OrderInputField) string {
	out := make([]string, len(options))
	for i, opt := range options {
		style := styles.DropdownItemStyle
		if opt == current {
			style = style.Bold(true)
			if p.field == f && p.focused {
				style = styles.DropdownSelectedStyle
			}
			switch opt {
			case "BUY":
				style = style.Foreground(styles.BuyColor)
			case "SELL":
				style = style.Foreground(styles.SellColor)
			}
		}
		out[i] = style.Render(opt)
	}
	return strings.Join(out, " | ")
}

func (p *OrderInputPanel) renderSymbol() string {
	style := styles.InputStyle
	if p.field == FieldInstrument && p.focused {
		style = styles.FocusedInputStyle
	}
	out := style.Render(p.symbol.View())
	if !p.picking {
		return out
	}
	for i, d := range p.matches[:min(maxMatches, len(p.matches))] {
		item := styles.DropdownItemStyle
		if i == p.matchIdx {
			item = styles.DropdownSelectedStyle
		}
		out += "\n         " + item.Render(fmt.Sprintf("%-5s", d.Symbol)) + " " + styles.MutedStyle.Render(d.Name)
	}
	return out
}

func (p *OrderInputPanel) summary() string {
	symbol := "---"
	if p.selected != nil {
		symbol = p.selected.Symbol
	}
	sideStyle := styles.BuyStyle
	if p.side == core.SideSell {
		sideStyle = styles.SellStyle
	}
	line := fmt.Sprintf("%s %s %s x%s", symbol, sideStyle.Render(p.side.String()), p.kind, orZero(p.shares.Value()))
	if p.kind == core.OrderKindLimit {
		line += " @" + orZero(p.price.Value())
		if notional, ok := p.notional(); ok {
			line += " = $" + notional.StringFixed(2)
		}
	}
	return styles.HeaderStyle.Render("Order: ") + line
}

func (p *OrderInputPanel) notional() (decimal.Decimal, bool) {
	price, err := decimal.NewFromString(p.price.Value())
	if err != nil {
		return decimal.Zero, false
	}
	n, err := strconv.ParseInt(p.shares.Value(), 10, 64)
	if err != nil {
		return decimal.Zero, false
	}
	return price.Mul(decimal.NewFromInt(n)), true
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func (p *OrderInputPanel) submitOrder() tea.Cmd {
	p.errMsg = ""
	if p.selected == nil {
		p.errMsg = "pick a symbol"
		return nil
	}
	shares, err := strconv.ParseInt(p.shares.Value(), 10, 64)
	if err != nil || shares <= 0 {
		p.errMsg = "shares must be a positive integer"
		return nil
	}

	msg := OrderSubmitMsg{
		InstrumentID: p.selected.ID,
		Side:         p.side,
		Kind:         p.kind,
		Shares:       shares,
	}
	if p.kind == core.OrderKindLimit {
		msg.LimitPrice, err = decimal.NewFromString(p.price.Value())
		if err != nil || !msg.LimitPrice.IsPositive() {
			p.errMsg = "limit price must be positive"
			return nil
		}
	}
	return func() tea.Msg { return msg }
}

// SetFocus sets the focus state of the panel.
func (p *OrderInputPanel) SetFocus(focused bool) {
	p.focused = focused
	p.syncFocus()
}

// SetSize sets the panel dimensions.
func (p *OrderInputPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// SetInstrument pre-fills the symbol field.
func (p *OrderInputPanel) SetInstrument(id string) {
	for i, d := range p.instruments {
		if d.ID == id {
			p.symbol.SetValue(d.Symbol)
			p.selected = &p.instruments[i]
			return
		}
	}
}

// Reset clears the form.
func (p *OrderInputPanel) Reset() {
	p.symbol.SetValue("")
	p.price.SetValue("")
	p.shares.SetValue("")
	p.selected = nil
	p.errMsg = ""
	p.side = core.SideBuy
	p.kind = core.OrderKindMarket
	p.field = FieldInstrument
	p.picking = false
	p.syncFocus()
}

// OrderSubmitMsg is sent when an order is submitted.
type OrderSubmitMsg struct {
	InstrumentID string
	Side         core.Side
	Kind         core.OrderKind
	LimitPrice   decimal.Decimal
	Shares       int64
}
