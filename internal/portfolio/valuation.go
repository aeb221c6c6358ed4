package portfolio

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Value recomputes every aggregate from cash and holdings, filling in each
// holding's price, market value and unrealized P&L in place. Return is total
// value less capital.
func Value(cash, capital decimal.Decimal, holdings []Holding, quotes QuoteFunc) Valuation {
	v := Valuation{Capital: capital, SectorAllocation: make(map[string]decimal.Decimal)}
	bySector := make(map[string]decimal.Decimal)

	for i := range holdings {
		h := &holdings[i]
		price := h.AvgCost
		if quotes != nil {
			if q, ok := quotes(h.InstrumentID); ok {
				h.Category = q.Category
				if q.Price.IsPositive() {
					price = q.Price
				}
			}
		}
		n := decimal.NewFromInt(h.Shares)
		cost := n.Mul(h.AvgCost)
		h.Price = price
		h.MarketValue = n.Mul(price)
		h.UnrealizedPnL = h.MarketValue.Sub(cost)
		if cost.IsPositive() {
			h.UnrealizedPnLPercent = h.UnrealizedPnL.Div(cost).Mul(hundred).Round(4)
		}

		v.MarketValue = v.MarketValue.Add(h.MarketValue)
		v.CostBasis = v.CostBasis.Add(cost)
		sector := h.Category.String()
		bySector[sector] = bySector[sector].Add(h.MarketValue)
	}

	v.TotalValue = cash.Add(v.MarketValue)
	v.Return = v.TotalValue.Sub(capital)
	if capital.IsPositive() {
		v.ReturnPercent = v.Return.Div(capital).Mul(hundred).Round(4)
	}
	if v.MarketValue.IsPositive() {
		for sector, mv := range bySector {
			v.SectorAllocation[sector] = mv.Div(v.MarketValue).Mul(hundred).Round(4)
		}
	}
	return v
}
