package journal

import (
	"context"
	"time"

	"venuepos/internal/core/id"
)

// ListFilter narrows order queries for reporting and search.
type ListFilter struct {
	From   *time.Time
	To     *time.Time
	Status *Status
	Search string // matches order number or customer name

	Limit  int
	Offset int
}

// Repository defines persistence for the order journal.
//
// Append and UpdateStatus must be atomic against the underlying store:
// the order mutation and the aggregate counter changes happen in one
// unit, so concurrent operations on the same venue can never lose an
// increment or an appended order.
type Repository interface {
	// Append inserts the order and bumps the venue aggregate
	// (totalOrders, totalRevenue, the order's initial status count)
	// atomically.
	Append(ctx context.Context, o *Order) error

	// UpdateStatus moves the order from → to, stamps the status
	// timestamp, and shifts the aggregate status counts, all atomically.
	// Fails with NOT_FOUND when the order is absent from the venue's
	// journal, and with CONCURRENT_MODIFICATION when the order's status
	// is no longer from.
	UpdateStatus(ctx context.Context, venueID, orderID id.ID, from, to Status, at time.Time) error

	// UpdatePayment sets the order's payment status, touching nothing
	// else. Fails with NOT_FOUND when the order is absent.
	UpdatePayment(ctx context.Context, venueID, orderID id.ID, to PaymentStatus) error

	// Get returns one order, or a NOT_FOUND error.
	Get(ctx context.Context, venueID, orderID id.ID) (*Order, error)

	// List returns orders matching the filter, newest first, with the
	// total match count for pagination.
	List(ctx context.Context, venueID id.ID, f ListFilter) ([]*Order, int64, error)

	// Aggregate returns the venue's counters (zero-valued when the venue
	// has no orders yet).
	Aggregate(ctx context.Context, venueID id.ID) (*Aggregate, error)
}
