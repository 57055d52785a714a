package dto

import (
	"time"

	"venuepos/internal/domain/journal"
	"venuepos/internal/domain/pricing"
	"venuepos/internal/domain/settlement"
)

// OrderItemRequest is one requested line item. Only the product and
// quantity come from the client; prices are resolved server-side.
type OrderItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int64  `json:"quantity" binding:"required,min=1"`
}

// CustomerRequest is the optional customer block on an order.
type CustomerRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// CreateOrderRequest creates one order.
type CreateOrderRequest struct {
	Channel       string             `json:"channel" binding:"required,oneof=counter qr"`
	Items         []OrderItemRequest `json:"items"`
	Customer      *CustomerRequest   `json:"customer"`
	PaymentMethod string             `json:"paymentMethod"`
	Notes         string             `json:"notes"`
	Currency      string             `json:"currency"`
	OrderDate     *time.Time         `json:"orderDate"`
}

// CreateOrderResponse reports a settled order. Stock warnings keep
// their stable codes so clients can badge discrepancies.
type CreateOrderResponse struct {
	OrderID       string                    `json:"orderId"`
	Number        string                    `json:"orderNumber"`
	Status        string                    `json:"status"`
	Pricing       *pricing.PricedOrder      `json:"pricing"`
	StockWarnings []settlement.StockWarning `json:"stockWarnings,omitempty"`
}

// FromCreateOrderResult maps a settlement result.
func FromCreateOrderResult(r *settlement.CreateOrderResult) CreateOrderResponse {
	return CreateOrderResponse{
		OrderID:       r.OrderID.String(),
		Number:        r.Number,
		Status:        string(r.Status),
		Pricing:       r.Pricing,
		StockWarnings: r.StockWarnings,
	}
}

// OrderResponse is the full order view.
type OrderResponse struct {
	ID            string                            `json:"id"`
	VenueID       string                            `json:"venueId"`
	Number        string                            `json:"number"`
	Channel       string                            `json:"channel"`
	Items         []pricing.PricedLine              `json:"items"`
	Pricing       *pricing.PricedOrder              `json:"pricing"`
	PaymentMethod string                            `json:"paymentMethod"`
	PaymentStatus string                            `json:"paymentStatus"`
	Status        string                            `json:"status"`
	StatusTimes   map[journal.Status]time.Time      `json:"statusTimes"`
	Customer      *journal.CustomerInfo             `json:"customer,omitempty"`
	Notes         string                            `json:"notes,omitempty"`
	CreatedAt     time.Time                         `json:"createdAt"`
}

// FromOrder maps a journal order.
func FromOrder(o *journal.Order) OrderResponse {
	return OrderResponse{
		ID:            o.ID.String(),
		VenueID:       o.VenueID.String(),
		Number:        o.Number,
		Channel:       string(o.Channel),
		Items:         o.Items,
		Pricing:       o.Pricing,
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: string(o.PaymentStatus),
		Status:        string(o.Status),
		StatusTimes:   o.StatusTimes,
		Customer:      o.Customer,
		Notes:         o.Notes,
		CreatedAt:     o.CreatedAt,
	}
}

// TransitionRequest moves an order to a new status.
type TransitionRequest struct {
	Status string `json:"status" binding:"required"`
}

// TransitionResponse reports the applied status change.
type TransitionResponse struct {
	OrderID   string    `json:"orderId"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PaymentRequest sets an order's payment status.
type PaymentRequest struct {
	Status string `json:"status" binding:"required,oneof=pending paid refused"`
}

// ListOrdersQuery filters the order list.
type ListOrdersQuery struct {
	From   *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To     *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Status string     `form:"status"`
	Search string     `form:"search"`
	Limit  int        `form:"limit"`
	Offset int        `form:"offset"`
}

// AggregateResponse is the venue's derived counters.
type AggregateResponse struct {
	VenueID      string           `json:"venueId"`
	TotalOrders  int64            `json:"totalOrders"`
	TotalRevenue string           `json:"totalRevenue"`
	StatusCounts map[string]int64 `json:"statusCounts"`
}

// FromAggregate maps the venue aggregate.
func FromAggregate(a *journal.Aggregate) AggregateResponse {
	counts := make(map[string]int64, len(a.StatusCounts))
	for s, n := range a.StatusCounts {
		counts[string(s)] = n
	}
	return AggregateResponse{
		VenueID:      a.VenueID.String(),
		TotalOrders:  a.TotalOrders,
		TotalRevenue: a.TotalRevenue.StringFixed(2),
		StatusCounts: counts,
	}
}
