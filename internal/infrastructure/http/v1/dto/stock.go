package dto

import (
	"time"

	"venuepos/internal/domain/ledger"
)

// AddStockRequest records a received lot.
type AddStockRequest struct {
	Quantity   int64      `json:"quantity" binding:"required,min=1"`
	Date       *time.Time `json:"date"`
	ExpiryDate *time.Time `json:"expiryDate"`
}

// WastageRequest writes off stock as expired or damaged.
type WastageRequest struct {
	Quantity int64      `json:"quantity" binding:"required,min=1"`
	Kind     string     `json:"kind" binding:"required,oneof=expired damaged"`
	Date     *time.Time `json:"date"`
	Reason   string     `json:"reason"`
}

// AvailabilityResponse reports drawable stock for a product.
type AvailabilityResponse struct {
	ProductID string `json:"productId"`
	Available int64  `json:"available"`
}

// LedgerResponse is one monthly ledger view.
type LedgerResponse struct {
	Period           string                 `json:"period"`
	CarryForward     int64                  `json:"carryForward"`
	UsedCarryForward int64                  `json:"usedCarryForward"`
	Balance          int64                  `json:"balance"`
	Movements        []ledger.StockMovement `json:"movements"`
}

// FromLedger maps a monthly ledger.
func FromLedger(l *ledger.MonthlyStockLedger) LedgerResponse {
	return LedgerResponse{
		Period:           l.Period(),
		CarryForward:     l.CarryForward,
		UsedCarryForward: l.UsedCarryForward,
		Balance:          l.CurrentBalance(),
		Movements:        l.Movements,
	}
}

// HistoryResponse is the full per-product ledger history, oldest first.
type HistoryResponse struct {
	ProductID string           `json:"productId"`
	Ledgers   []LedgerResponse `json:"ledgers"`
}

// ExpireRequest triggers an expiry sweep. AsOf defaults to now.
type ExpireRequest struct {
	AsOf *time.Time `json:"asOf"`
}

// ExpireResponse reports an expiry sweep outcome.
type ExpireResponse struct {
	ProductID string          `json:"productId"`
	Expired   int64           `json:"expired"`
	Ledger    *LedgerResponse `json:"ledger,omitempty"`
}
