// Package catalog defines the read-only product catalog the settlement
// engine consumes. The catalog itself is maintained elsewhere.
package catalog

import (
	"context"

	"venuepos/internal/core/id"
	"venuepos/internal/core/types"
	"venuepos/internal/domain/pricing"
)

// Product is a point-in-time snapshot of a sellable product.
type Product struct {
	ID              id.ID           `json:"id" db:"id"`
	VenueID         id.ID           `json:"venueId" db:"venue_id"`
	Name            string          `json:"name" db:"name"`
	Price           types.Money     `json:"price" db:"price"`
	TaxRatePercent  types.Money     `json:"taxRatePercent" db:"tax_rate_percent"`
	TaxMode         pricing.TaxMode `json:"taxMode" db:"tax_mode"`
	DiscountPercent types.Money     `json:"discountPercent" db:"discount_percent"`
	IsActive        bool            `json:"isActive" db:"is_active"`
	IsAvailable     bool            `json:"isAvailable" db:"is_available"`
	StockTracked    bool            `json:"stockTracked" db:"stock_tracked"`
}

// Sellable reports whether the product can be added to an order.
func (p *Product) Sellable() bool {
	return p.IsActive && p.IsAvailable
}

// Catalog resolves product snapshots for settlement.
type Catalog interface {
	// Lookup returns the product snapshot, or a NOT_FOUND error.
	Lookup(ctx context.Context, venueID, productID id.ID) (*Product, error)
}
