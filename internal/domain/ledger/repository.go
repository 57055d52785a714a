package ledger

import (
	"context"

	"venuepos/internal/core/id"
)

// Repository defines persistence for monthly stock ledgers.
//
// Save is a compare-and-swap on the ledger's version: implementations
// must fail with a CONCURRENT_MODIFICATION error when the stored version
// moved, and bump the in-memory version on success.
type Repository interface {
	// ListByProduct returns all ledgers for (venue, product) ordered
	// ascending by (year, month). Empty slice when none exist.
	ListByProduct(ctx context.Context, venueID, productID id.ID) ([]*MonthlyStockLedger, error)

	// Get returns the ledger for one period, or a NOT_FOUND error.
	Get(ctx context.Context, venueID, productID id.ID, year, month int) (*MonthlyStockLedger, error)

	// Create inserts a new period ledger. A concurrent creation of the
	// same period fails with CONCURRENT_MODIFICATION.
	Create(ctx context.Context, l *MonthlyStockLedger) error

	// Save persists a mutated ledger via compare-and-swap on Version.
	Save(ctx context.Context, l *MonthlyStockLedger) error
}
