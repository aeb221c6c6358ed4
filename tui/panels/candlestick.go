package panels

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zappabad/cloutmarket/internal/trading"
	"github.com/zappabad/cloutmarket/tui/styles"
)

// Candle is one period of the trade tape.
type Candle struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Shares int64
	Start  time.Time
}

// BuildCandles buckets trades, oldest first, into candles of period.
func BuildCandles(trades []trading.Trade, period time.Duration) []Candle {
	var out []Candle
	for _, tr := range trades {
		price := tr.Price.InexactFloat64()
		start := tr.Time.Truncate(period)
		if n := len(out); n > 0 && out[n-1].Start.Equal(start) {
			c := &out[n-1]
			c.High = max(c.High, price)
			c.Low = min(c.Low, price)
			c.Close = price
			c.Shares += tr.Shares
			continue
		}
		out = append(out, Candle{Open: price, High: price, Low: price, Close: price, Shares: tr.Shares, Start: start})
	}
	return out
}

// CandlestickPanel charts the selected instrument's recent trades.
type CandlestickPanel struct {
	symbol  string
	candles []Candle
	period  time.Duration

	focused bool
	width   int
	height  int
}

// NewCandlestickPanel creates a chart with 30 second candles.
func NewCandlestickPanel() *CandlestickPanel {
	return &CandlestickPanel{period: 30 * time.Second}
}

// Init initializes the panel.
func (p *CandlestickPanel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the panel.
func (p *CandlestickPanel) Update(msg tea.Msg) (*CandlestickPanel, tea.Cmd) {
	return p, nil
}

// View renders the panel.
func (p *CandlestickPanel) View() string {
	name := "No instrument"
	if p.symbol != "" {
		name = p.symbol
	}

	var content strings.Builder
	chartHeight := max(5, p.height-6)

	if len(p.candles) == 0 {
		content.WriteString(styles.MutedStyle.Render("No trades yet..."))
	} else {
		content.WriteString(p.renderChart(p.width-12, chartHeight))
	}

	panelStyle := styles.PanelStyle
	if p.focused {
		panelStyle = styles.FocusedPanelStyle
	}

	title := styles.RenderTitle(fmt.Sprintf("📉 Chart - %s", name), p.focused)
	panel := lipgloss.JoinVertical(lipgloss.Left, title, content.String())

	return panelStyle.Width(p.width - 2).Height(p.height - 2).Render(panel)
}

func (p *CandlestickPanel) renderChart(width, height int) string {
	// 9 chars of price axis, 2 per candle
	show := max(1, (max(10, width-10))/2)
	show = min(show, len(p.candles))
	display := p.candles[len(p.candles)-show:]

	lo, hi := display[0].Low, display[0].High
	for _, c := range display {
		lo = min(lo, c.Low)
		hi = max(hi, c.High)
	}
	pad := (hi - lo) * 0.1
	if pad == 0 {
		pad = max(hi*0.01, 0.01)
	}
	lo -= pad
	hi += pad

	rows := max(5, height-3)
	var result strings.Builder
	for row := range rows {
		rowPrice := yToPrice(row, lo, hi, rows)
		result.WriteString(styles.ChartAxisStyle.Render(fmt.Sprintf("%8.2f │", rowPrice)))
		tolerance := (hi - lo) / float64(rows*2)
		for _, c := range display {
			style := styles.CandleUpStyle
			if c.Close < c.Open {
				style = styles.CandleDownStyle
			}
			result.WriteString(style.Render(string(candleChar(c, rowPrice, tolerance))))
			result.WriteString(" ")
		}
		result.WriteString("\n")
	}

	result.WriteString(styles.ChartAxisStyle.Render("─────────┴"))
	result.WriteString(styles.ChartAxisStyle.Render(strings.Repeat("──", len(display))))
	result.WriteString("\n")

	result.WriteString("          ")
	for i, c := range display {
		if i == 0 || i == len(display)-1 || i%5 == 0 {
			result.WriteString(styles.ChartLabelStyle.Render(c.Start.Format("04")))
		} else {
			result.WriteString("  ")
		}
	}
	return result.String()
}

func candleChar(c Candle, price, tolerance float64) rune {
	top, bottom := max(c.Open, c.Close), min(c.Open, c.Close)
	switch {
	case price <= top+tolerance && price >= bottom-tolerance:
		return '┃'
	case price <= c.High+tolerance && price > top:
		return '│'
	case price >= c.Low-tolerance && price < bottom:
		return '│'
	default:
		return ' '
	}
}

func yToPrice(y int, lo, hi float64, height int) float64 {
	if height <= 1 {
		return lo
	}
	return hi - float64(y)/float64(height-1)*(hi-lo)
}

// SetFocus sets the focus state of the panel.
func (p *CandlestickPanel) SetFocus(focused bool) {
	p.focused = focused
}

// SetSize sets the panel dimensions.
func (p *CandlestickPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// SetInstrument switches the charted instrument.
func (p *CandlestickPanel) SetInstrument(symbol string) {
	p.symbol = symbol
	p.candles = nil
}

// SetTrades rebuilds the candles from the tape, oldest first.
func (p *CandlestickPanel) SetTrades(trades []trading.Trade) {
	p.candles = BuildCandles(trades, p.period)
}
