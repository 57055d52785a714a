// Package pricing turns raw line items into a priced order.
// The engine is pure: no I/O, no state, decimal arithmetic only.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"venuepos/internal/core/apperror"
	"venuepos/internal/core/id"
	"venuepos/internal/core/types"
)

// TaxMode declares whether a listed unit price already contains tax.
type TaxMode string

const (
	// TaxInclusive: the listed price embeds tax; tax is extracted for
	// display and reporting, never added on top.
	TaxInclusive TaxMode = "inclusive"

	// TaxExclusive: tax is added on top of the discounted price.
	TaxExclusive TaxMode = "exclusive"
)

// Valid reports whether m is a known tax mode.
func (m TaxMode) Valid() bool {
	return m == TaxInclusive || m == TaxExclusive
}

// LineItem is the raw input to pricing. Immutable once priced.
type LineItem struct {
	ProductID       id.ID       `json:"productId"`
	Name            string      `json:"name"`
	Quantity        int64       `json:"quantity"`
	UnitPrice       types.Money `json:"unitPrice"`
	TaxRatePercent  types.Money `json:"taxRatePercent"`
	TaxMode         TaxMode     `json:"taxMode"`
	DiscountPercent types.Money `json:"discountPercent"`
}

// PricedLine is a line item with its computed amounts, each rounded to
// 2 decimal places before aggregation.
type PricedLine struct {
	LineItem

	LineTotal      types.Money `json:"lineTotal"`      // unit price × quantity, pre-discount
	DiscountAmount types.Money `json:"discountAmount"` // lineTotal × discount%
	TaxAmount      types.Money `json:"taxAmount"`      // extracted (inclusive) or added (exclusive)
	Total          types.Money `json:"total"`          // what this line contributes to the grand total
}

// PricedOrder aggregates priced lines.
//
// Invariant: grandTotal = subtotal − totalDiscount + totalTax when any
// line is tax-exclusive; when every tax-bearing line is inclusive,
// grandTotal = subtotal − totalDiscount and totalTax is display-only.
type PricedOrder struct {
	Lines         []PricedLine `json:"lines"`
	Subtotal      types.Money  `json:"subtotal"`
	TotalDiscount types.Money  `json:"totalDiscount"`
	TotalTax      types.Money  `json:"totalTax"`
	GrandTotal    types.Money  `json:"grandTotal"`
	Currency      string       `json:"currency"`
}

// Price computes a PricedOrder from the given line items.
//
// Each line's contribution (line total, discount, tax) is rounded half-up
// to 2 decimals independently before summing, so cross-line rounding
// drift cannot be attributed to the wrong line in audits.
func Price(items []LineItem, currency string) (*PricedOrder, error) {
	if len(items) == 0 {
		return nil, apperror.NewNoProducts()
	}

	order := &PricedOrder{
		Lines:         make([]PricedLine, 0, len(items)),
		Subtotal:      types.Zero(),
		TotalDiscount: types.Zero(),
		TotalTax:      types.Zero(),
		Currency:      currency,
	}

	anyExclusive := false
	for i, item := range items {
		if err := validateLine(i, item); err != nil {
			return nil, err
		}

		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity))
		discount := types.PercentOf(lineTotal, item.DiscountPercent)
		afterDiscount := lineTotal.Sub(discount)

		var tax types.Money
		switch item.TaxMode {
		case TaxInclusive:
			// Extract tax from the discounted, tax-included price.
			tax = afterDiscount.Mul(item.TaxRatePercent).
				Div(types.Hundred().Add(item.TaxRatePercent))
		case TaxExclusive:
			tax = types.PercentOf(afterDiscount, item.TaxRatePercent)
			anyExclusive = true
		}

		line := PricedLine{
			LineItem:       item,
			LineTotal:      types.Round2(lineTotal),
			DiscountAmount: types.Round2(discount),
			TaxAmount:      types.Round2(tax),
		}
		if item.TaxMode == TaxExclusive {
			line.Total = types.Round2(afterDiscount.Add(tax))
		} else {
			line.Total = types.Round2(afterDiscount)
		}

		order.Lines = append(order.Lines, line)
		order.Subtotal = order.Subtotal.Add(line.LineTotal)
		order.TotalDiscount = order.TotalDiscount.Add(line.DiscountAmount)
		order.TotalTax = order.TotalTax.Add(line.TaxAmount)
	}

	if anyExclusive {
		order.GrandTotal = types.Round2(order.Subtotal.Sub(order.TotalDiscount).Add(order.TotalTax))
	} else {
		// Tax already embedded in the listed prices.
		order.GrandTotal = types.Round2(order.Subtotal.Sub(order.TotalDiscount))
	}

	return order, nil
}

func validateLine(i int, item LineItem) error {
	lineNo := i + 1
	if item.Quantity <= 0 {
		return invalidLine(lineNo, "quantity", fmt.Sprintf("quantity must be positive, got %d", item.Quantity))
	}
	if item.UnitPrice.IsNegative() {
		return invalidLine(lineNo, "unitPrice", "unit price must not be negative")
	}
	if !item.TaxMode.Valid() {
		return invalidLine(lineNo, "taxMode", fmt.Sprintf("unknown tax mode %q", item.TaxMode))
	}
	if !types.Percent(item.TaxRatePercent) {
		return invalidLine(lineNo, "taxRatePercent", "tax rate must be between 0 and 100")
	}
	if !types.Percent(item.DiscountPercent) {
		return invalidLine(lineNo, "discountPercent", "discount must be between 0 and 100")
	}
	return nil
}

func invalidLine(lineNo int, field, msg string) error {
	return apperror.NewValidation(msg).
		WithDetail("field", field).
		WithDetail("lineNo", lineNo)
}
