// Package journal provides the append-only, per-venue record of settled
// orders and its derived aggregate counters.
package journal

import (
	"context"
	"time"

	"venuepos/internal/core/apperror"
	"venuepos/internal/core/id"
	"venuepos/internal/core/types"
	"venuepos/internal/domain/pricing"
)

// Status is an order's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusServed    Status = "served"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady,
		StatusServed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// transitions is the legal-transition table, enforced server-side.
// cancelled is reachable only early in the lifecycle.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady},
	StatusReady:     {StatusServed},
	StatusServed:    {StatusCompleted},
}

// CanTransition reports whether from → to is a legal status change.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Channel identifies where an order originated.
type Channel string

const (
	// ChannelCounter orders are taken by staff and start confirmed.
	ChannelCounter Channel = "counter"

	// ChannelQR self-service orders skip confirmation and start preparing.
	ChannelQR Channel = "qr"
)

// InitialStatus returns the lifecycle entry point for a channel.
func InitialStatus(ch Channel) Status {
	if ch == ChannelQR {
		return StatusPreparing
	}
	return StatusConfirmed
}

// PaymentStatus tracks payment settlement separately from the lifecycle.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentRefused PaymentStatus = "refused"
)

// Valid reports whether p is a known payment status.
func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentPaid, PaymentRefused:
		return true
	}
	return false
}

// CustomerInfo is the optional customer snapshot on an order.
type CustomerInfo struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Order is one settled order. Items and pricing never change after
// creation; only Status, PaymentStatus and the status timestamps mutate.
type Order struct {
	ID      id.ID  `json:"id"`
	VenueID id.ID  `json:"venueId"`
	Number  string `json:"number"` // ORD-YYYYMMDD-NNNN, venue/day scoped

	Channel Channel              `json:"channel"`
	Items   []pricing.PricedLine `json:"items"` // product name snapshots for historical fidelity
	Pricing *pricing.PricedOrder `json:"pricing"`

	PaymentMethod string        `json:"paymentMethod"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	Status        Status        `json:"status"`

	// StatusTimes records when each status was entered.
	StatusTimes map[Status]time.Time `json:"statusTimes"`

	Customer *CustomerInfo `json:"customer,omitempty"`
	Notes    string        `json:"notes,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// NewOrder builds an order in its channel's initial status.
func NewOrder(venueID id.ID, number string, channel Channel, priced *pricing.PricedOrder, paymentMethod string) *Order {
	now := time.Now().UTC()
	status := InitialStatus(channel)
	return &Order{
		ID:            id.New(),
		VenueID:       venueID,
		Number:        number,
		Channel:       channel,
		Items:         priced.Lines,
		Pricing:       priced,
		PaymentMethod: paymentMethod,
		PaymentStatus: PaymentPending,
		Status:        status,
		StatusTimes:   map[Status]time.Time{status: now},
		CreatedAt:     now,
	}
}

// Validate checks the order is fit for appending.
func (o *Order) Validate(ctx context.Context) error {
	if id.IsNil(o.VenueID) {
		return apperror.NewValidation("venue is required").WithDetail("field", "venueId")
	}
	if o.Number == "" {
		return apperror.NewValidation("order number is required").WithDetail("field", "number")
	}
	if len(o.Items) == 0 {
		return apperror.NewNoProducts()
	}
	if o.Pricing == nil {
		return apperror.NewValidation("pricing is required").WithDetail("field", "pricing")
	}
	if !o.Status.Valid() {
		return apperror.NewValidation("unknown status").WithDetail("field", "status")
	}
	return nil
}

// GrandTotal is the amount this order contributes to venue revenue.
func (o *Order) GrandTotal() types.Money {
	return o.Pricing.GrandTotal
}

// Aggregate holds the per-venue derived counters. It must always equal
// the sum/count over the venue's order list; Recompute rebuilds it from
// scratch as a consistency check.
type Aggregate struct {
	VenueID      id.ID            `json:"venueId"`
	TotalOrders  int64            `json:"totalOrders"`
	TotalRevenue types.Money      `json:"totalRevenue"`
	StatusCounts map[Status]int64 `json:"statusCounts"`
}

// NewAggregate returns an empty aggregate for a venue.
func NewAggregate(venueID id.ID) *Aggregate {
	return &Aggregate{
		VenueID:      venueID,
		TotalRevenue: types.Zero(),
		StatusCounts: make(map[Status]int64),
	}
}

// Recompute rebuilds the aggregate from an order list.
func Recompute(venueID id.ID, orders []*Order) *Aggregate {
	agg := NewAggregate(venueID)
	for _, o := range orders {
		agg.TotalOrders++
		agg.TotalRevenue = agg.TotalRevenue.Add(o.GrandTotal())
		agg.StatusCounts[o.Status]++
	}
	return agg
}

// Equal compares two aggregates field by field.
func (a *Aggregate) Equal(b *Aggregate) bool {
	if a.TotalOrders != b.TotalOrders || !a.TotalRevenue.Equal(b.TotalRevenue) {
		return false
	}
	for s, n := range a.StatusCounts {
		if n != 0 && b.StatusCounts[s] != n {
			return false
		}
	}
	for s, n := range b.StatusCounts {
		if n != 0 && a.StatusCounts[s] != n {
			return false
		}
	}
	return true
}
