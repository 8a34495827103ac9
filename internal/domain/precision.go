package domain

import "github.com/shopspring/decimal"

// SymbolPrecision holds the exchange filters for one symbol: the
// minimum quantity increment and the price tick size.
type SymbolPrecision struct {
	QtyStep   float64 `yaml:"qty_step"`
	PriceStep float64 `yaml:"price_step"`
}

// DefaultPrecision is used for symbols missing from the configured
// precision table.
var DefaultPrecision = SymbolPrecision{QtyStep: 0.001, PriceStep: 0.01}

// RoundStep floors value to the nearest multiple of step. Decimal
// arithmetic keeps already-aligned values unchanged instead of picking
// up binary float noise.
func RoundStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	v := decimal.NewFromFloat(value)
	s := decimal.NewFromFloat(step)
	out, _ := v.Div(s).Floor().Mul(s).Float64()
	return out
}

// RoundQty floors a quantity to the symbol's quantity step.
func (p SymbolPrecision) RoundQty(qty float64) float64 {
	return RoundStep(qty, p.QtyStep)
}

// RoundPrice floors a price to the symbol's tick size.
func (p SymbolPrecision) RoundPrice(price float64) float64 {
	return RoundStep(price, p.PriceStep)
}
