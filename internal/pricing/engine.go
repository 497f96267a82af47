package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PriceMode says whether an entered price already contains tax
type PriceMode string

const (
	TaxExclusive PriceMode = "exclusive"
	TaxInclusive PriceMode = "inclusive"
)

// DiscountType selects how Discount.Value is applied
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Line is one unpersisted cart line
type Line struct {
	ProductID *uint           `json:"productId,omitempty"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`   // as entered by the operator
	TaxRate   decimal.Decimal `json:"taxRate"` // percentage
	Mode      PriceMode       `json:"priceMode"`
	// UnitProfit is the margin per unit; nil contributes nothing to profit.
	UnitProfit *decimal.Decimal `json:"unitProfit,omitempty"`
}

// Discount is applied once to the cart subtotal
type Discount struct {
	Type  DiscountType    `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// PricedLine carries the per-unit breakdown of a line
type PricedLine struct {
	Line
	BasePrice decimal.Decimal `json:"basePrice"`
	TaxAmount decimal.Decimal `json:"taxAmount"`
	LineTotal decimal.Decimal `json:"lineTotal"` // per unit, tax included
	Extended  decimal.Decimal `json:"extended"`  // LineTotal x Quantity
}

// Quote is the priced cart. Every amount is rounded to 2 places.
type Quote struct {
	Lines       []PricedLine    `json:"lines"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxTotal    decimal.Decimal `json:"taxTotal"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
	AmountGiven decimal.Decimal `json:"amountGiven"`
	Balance     decimal.Decimal `json:"balance"`
	Profit      decimal.Decimal `json:"profit"`
}

// ValidationError reports a malformed cart or discount
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Price computes the quote for a cart. It has no side effects and the same input
// always yields the same output.
func Price(lines []Line, discount Discount, amountGiven decimal.Decimal) (*Quote, error) {
	if len(lines) == 0 {
		return nil, invalid("lines", "cart is empty")
	}
	if err := validateDiscount(discount); err != nil {
		return nil, err
	}

	q := &Quote{Lines: make([]PricedLine, 0, len(lines))}
	grossProfit := decimal.Zero
	for i, l := range lines {
		pl, err := priceLine(i, l)
		if err != nil {
			return nil, err
		}
		qty := decimal.NewFromInt(int64(l.Quantity))
		q.Subtotal = q.Subtotal.Add(pl.Extended)
		q.TaxTotal = q.TaxTotal.Add(pl.TaxAmount.Mul(qty))
		if l.UnitProfit != nil {
			grossProfit = grossProfit.Add(l.UnitProfit.Mul(qty))
		}
		q.Lines = append(q.Lines, pl)
	}

	q.Subtotal = q.Subtotal.Round(2)
	q.TaxTotal = q.TaxTotal.Round(2)
	q.Discount = discountAmount(q.Subtotal, discount)
	q.Total = decimal.Max(decimal.Zero, q.Subtotal.Sub(q.Discount))
	q.Profit = grossProfit.Sub(q.Discount).Round(2)

	if amountGiven.IsPositive() {
		q.AmountGiven = amountGiven.Round(2)
		q.Balance = q.AmountGiven.Sub(q.Total)
	}
	return q, nil
}

func priceLine(i int, l Line) (PricedLine, error) {
	field := fmt.Sprintf("lines[%d]", i)
	if strings.TrimSpace(l.Name) == "" {
		return PricedLine{}, invalid(field+".name", "is required")
	}
	if l.Quantity < 1 {
		return PricedLine{}, invalid(field+".quantity", "must be at least 1")
	}
	if l.Price.IsNegative() {
		return PricedLine{}, invalid(field+".price", "must not be negative")
	}

	rate := l.TaxRate
	if rate.IsNegative() {
		rate = decimal.Zero
	}
	factor := one.Add(rate.Div(hundred))

	pl := PricedLine{Line: l}
	pl.TaxRate = rate
	switch l.Mode {
	case TaxInclusive:
		pl.LineTotal = l.Price
		pl.BasePrice = l.Price.Div(factor)
		pl.TaxAmount = l.Price.Sub(pl.BasePrice)
	case TaxExclusive, "":
		pl.Mode = TaxExclusive
		pl.BasePrice = l.Price
		pl.TaxAmount = l.Price.Mul(rate).Div(hundred)
		pl.LineTotal = pl.BasePrice.Add(pl.TaxAmount)
	default:
		return PricedLine{}, invalid(field+".priceMode", "unknown mode %q", l.Mode)
	}
	pl.Extended = pl.LineTotal.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2)

	pl.BasePrice = pl.BasePrice.Round(2)
	pl.TaxAmount = pl.TaxAmount.Round(2)
	pl.LineTotal = pl.LineTotal.Round(2)
	return pl, nil
}

func validateDiscount(d Discount) error {
	if d.Value.IsNegative() {
		return invalid("discount.value", "must not be negative")
	}
	switch d.Type {
	case DiscountPercentage:
		if d.Value.GreaterThan(hundred) {
			return invalid("discount.value", "percentage cannot exceed 100")
		}
	case DiscountFixed:
	case "":
		if !d.Value.IsZero() {
			return invalid("discount.type", "is required when a value is given")
		}
	default:
		return invalid("discount.type", "unknown type %q", d.Type)
	}
	return nil
}

func discountAmount(subtotal decimal.Decimal, d Discount) decimal.Decimal {
	switch d.Type {
	case DiscountPercentage:
		return subtotal.Mul(d.Value).Div(hundred).Round(2)
	case DiscountFixed:
		return decimal.Min(d.Value, subtotal).Round(2)
	}
	return decimal.Zero
}
