// Package ledger provides monthly stock ledgers with FIFO lot accounting.
// Each ledger holds one calendar month of stock movements for a
// (venue, product) pair, with an opening balance carried forward from the
// preceding period.
package ledger

import (
	"fmt"
	"sort"
	"time"

	"venuepos/internal/core/id"
)

// MovementKind classifies a stock movement.
type MovementKind string

const (
	MovementAdded   MovementKind = "added"
	MovementSold    MovementKind = "sold"
	MovementExpired MovementKind = "expired"
	MovementDamaged MovementKind = "damaged"
)

// UsageRecord traces a consumption event back to the lot it drew from.
// Year/Month identify the period of the consuming order, so audits can
// answer "which sale emptied this lot".
type UsageRecord struct {
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Quantity  int64     `json:"quantity"`
	OrderDate time.Time `json:"orderDate"`
}

// StockMovement is one entry in a monthly ledger.
//
// ADDED entries are lots: they carry the received quantity, an optional
// expiry date, and running counters of how much later sales, expiries and
// damage consumed from them. SOLD/EXPIRED/DAMAGED entries record the
// consumption event itself in the period it happened.
//
// Invariant: Consumed() never exceeds QuantityAdded on a lot.
type StockMovement struct {
	Date time.Time    `json:"date"`
	Kind MovementKind `json:"kind"`

	// Lot fields (ADDED only)
	QuantityAdded int64         `json:"quantityAdded,omitempty"`
	SoldQty       int64         `json:"soldQty,omitempty"`
	ExpiredQty    int64         `json:"expiredQty,omitempty"`
	DamagedQty    int64         `json:"damagedQty,omitempty"`
	ExpiryDate    *time.Time    `json:"expiryDate,omitempty"`
	Usage         []UsageRecord `json:"usage,omitempty"`

	// Consumption fields (SOLD/EXPIRED/DAMAGED)
	Quantity int64  `json:"quantity,omitempty"`
	Note     string `json:"note,omitempty"`

	// Balance is the ledger's running balance after this movement.
	// It is a derived check value, not a source of truth.
	Balance int64 `json:"balance"`
}

// Consumed returns the total quantity drawn from this lot by sales,
// expiry and damage.
func (m *StockMovement) Consumed() int64 {
	return m.SoldQty + m.ExpiredQty + m.DamagedQty
}

// Available returns the quantity still drawable from this lot.
func (m *StockMovement) Available() int64 {
	return m.QuantityAdded - m.Consumed()
}

// Expired reports whether the lot is past its expiry grace period.
// A lot expires at the start of the day after its listed expiry date.
func (m *StockMovement) Expired(now time.Time) bool {
	if m.ExpiryDate == nil {
		return false
	}
	cutoff := m.ExpiryDate.AddDate(0, 0, 1)
	return !now.Before(cutoff)
}

// MonthlyStockLedger is the per-(venue, product, year, month) record of
// stock movements. Ledgers are created lazily on first movement in a
// period and never deleted, only appended to.
type MonthlyStockLedger struct {
	ID        id.ID `json:"id"`
	VenueID   id.ID `json:"venueId"`
	ProductID id.ID `json:"productId"`
	Year      int   `json:"year"`
	Month     int   `json:"month"` // 1..12

	// CarryForward is the closing balance inherited from the immediately
	// preceding period with data (0 for the first ever period).
	CarryForward int64 `json:"carryForward"`

	// UsedCarryForward counts units sold this period that were drawn from
	// lots of earlier periods.
	UsedCarryForward int64 `json:"usedCarryForward"`

	Movements []StockMovement `json:"movements"`

	// Version supports optimistic concurrency on save.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewMonthlyStockLedger creates an empty ledger for the given period.
func NewMonthlyStockLedger(venueID, productID id.ID, year, month int, carryForward int64) *MonthlyStockLedger {
	now := time.Now().UTC()
	return &MonthlyStockLedger{
		ID:           id.New(),
		VenueID:      venueID,
		ProductID:    productID,
		Year:         year,
		Month:        month,
		CarryForward: carryForward,
		Movements:    make([]StockMovement, 0),
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Period returns the ledger's (year, month) key as a printable string.
func (l *MonthlyStockLedger) Period() string {
	return fmt.Sprintf("%04d-%02d", l.Year, l.Month)
}

// PeriodBefore reports whether this ledger's period precedes (year, month).
func (l *MonthlyStockLedger) PeriodBefore(year, month int) bool {
	if l.Year != year {
		return l.Year < year
	}
	return l.Month < month
}

// CurrentBalance returns the balance field of the last movement, or the
// carry-forward balance for a ledger with no movements yet.
func (l *MonthlyStockLedger) CurrentBalance() int64 {
	if len(l.Movements) == 0 {
		return l.CarryForward
	}
	return l.Movements[len(l.Movements)-1].Balance
}

// ClosingBalance is the value the next period inherits as carry-forward.
func (l *MonthlyStockLedger) ClosingBalance() int64 {
	return l.CurrentBalance()
}

// AvailableStock sums what is still drawable from this ledger's lots,
// excluding expired lots.
func (l *MonthlyStockLedger) AvailableStock(now time.Time) int64 {
	var total int64
	for i := range l.Movements {
		m := &l.Movements[i]
		if m.Kind != MovementAdded || m.Expired(now) {
			continue
		}
		if a := m.Available(); a > 0 {
			total += a
		}
	}
	return total
}

// Append adds a movement with its running balance computed from the
// current balance. delta is positive for receipts, negative for
// consumption; the balance never goes below zero (a shortfall is a
// logged discrepancy, not a negative balance).
func (l *MonthlyStockLedger) Append(m StockMovement, delta int64) {
	balance := l.CurrentBalance() + delta
	if balance < 0 {
		balance = 0
	}
	m.Balance = balance
	l.Movements = append(l.Movements, m)
	l.UpdatedAt = time.Now().UTC()
}

// CheckConservation verifies that movements neither fabricate nor destroy
// stock: Σ added − Σ consumed must equal currentBalance − carryForward.
// Returns an error describing the discrepancy, or nil.
func (l *MonthlyStockLedger) CheckConservation() error {
	var added, consumed int64
	for i := range l.Movements {
		m := &l.Movements[i]
		if m.Kind == MovementAdded {
			added += m.QuantityAdded
		} else {
			consumed += m.Quantity
		}
	}
	got := l.CurrentBalance() - l.CarryForward
	want := added - consumed
	if got != want {
		return fmt.Errorf("ledger %s conservation violated: movements net %d, balance net %d", l.Period(), want, got)
	}
	return nil
}

// SortLedgers orders ledgers ascending by (year, month).
func SortLedgers(ledgers []*MonthlyStockLedger) {
	sort.SliceStable(ledgers, func(i, j int) bool {
		if ledgers[i].Year != ledgers[j].Year {
			return ledgers[i].Year < ledgers[j].Year
		}
		return ledgers[i].Month < ledgers[j].Month
	})
}

// PeriodOf returns the (year, month) key for a point in time.
func PeriodOf(t time.Time) (int, int) {
	return t.Year(), int(t.Month())
}
