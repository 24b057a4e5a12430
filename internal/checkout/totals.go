package checkout

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultTaxRate is the flat display tax rate applied when none is
// configured.
const DefaultTaxRate = "0.08"

// Totals is the client-side breakdown shown on the review step. All
// fields are integer cents. The server recomputes the authoritative
// total at submission; this value rides along for cross-checking only.
type Totals struct {
	Subtotal int `json:"subtotal"`
	Shipping int `json:"shipping"`
	Tax      int `json:"tax"`
	Total    int `json:"total"`
}

// ParseTaxRate parses the configured flat tax rate. Empty input falls
// back to the default; negative rates are rejected.
func ParseTaxRate(raw string) (decimal.Decimal, error) {
	if raw == "" {
		raw = DefaultTaxRate
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing tax rate %q: %w", raw, err)
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("tax rate must not be negative, got %s", rate)
	}
	return rate, nil
}

// ComputeTotals derives the display breakdown from the cart subtotal,
// the selected shipping method's price, and the flat tax rate. Tax is
// applied to goods plus shipping and rounded to the nearest cent.
func ComputeTotals(subtotal, shipping int, taxRate decimal.Decimal) Totals {
	taxable := decimal.NewFromInt(int64(subtotal)).Add(decimal.NewFromInt(int64(shipping)))
	tax := taxable.Mul(taxRate).Round(0)

	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      int(tax.IntPart()),
		Total:    subtotal + shipping + int(tax.IntPart()),
	}
}
