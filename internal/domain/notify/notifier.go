// Package notify defines the outbound customer-notification hook.
// Delivery is someone else's problem; the engine only fires events.
package notify

import (
	"context"

	"venuepos/pkg/logger"
)

// Event describes an order status change worth telling the customer about.
type Event struct {
	OrderID     string
	OrderNumber string
	VenueID     string
	Status      string
}

// Notifier delivers order events. Implementations must be fast and must
// not block settlement; failures are swallowed and logged by callers.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// LogNotifier is the default no-op delivery: it just logs the event.
type LogNotifier struct{}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, e Event) error {
	logger.Info(ctx, "order notification",
		"order_id", e.OrderID,
		"order_number", e.OrderNumber,
		"venue_id", e.VenueID,
		"status", e.Status,
	)
	return nil
}
