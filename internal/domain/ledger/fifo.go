package ledger

import (
	"fmt"
	"strings"
	"time"

	"venuepos/internal/core/apperror"
)

// DrawnLot records one lot a deduction drew from.
type DrawnLot struct {
	Year     int
	Month    int
	LotDate  time.Time
	Quantity int64
}

// DeductionPlan is the in-memory result of a FIFO walk. The touched
// ledgers have already been mutated; persisting them is the caller's job.
type DeductionPlan struct {
	Requested int64
	Drawn     []DrawnLot

	// Remaining is the shortfall the walk could not satisfy. A positive
	// value means quantity sold exceeds quantity ever added plus carried:
	// a bookkeeping discrepancy, never a reason to block the sale.
	Remaining int64

	// UsedFromCarryForward is the portion drawn from lots belonging to
	// periods earlier than the requesting order's period.
	UsedFromCarryForward int64

	Touched []*MonthlyStockLedger
}

// Note renders a human-readable audit note listing the lots drawn from.
func (p *DeductionPlan) Note() string {
	if len(p.Drawn) == 0 {
		return "no stock drawn (ledger shortfall)"
	}
	parts := make([]string, 0, len(p.Drawn))
	for _, d := range p.Drawn {
		parts = append(parts, fmt.Sprintf("%d from lot %s", d.Quantity, d.LotDate.Format("2006-01-02")))
	}
	return "drawn " + strings.Join(parts, ", ")
}

// deductFIFO walks the ledgers oldest-period-first and consumes quantity
// from the oldest available non-expired lots, spanning as many periods
// and lots as needed. orderDate determines the requesting period for
// carry-forward accounting; now determines lot expiry.
//
// kind selects which per-lot counter is incremented. Usage-history
// records are appended for sales only.
func deductFIFO(ledgers []*MonthlyStockLedger, quantity int64, orderDate, now time.Time, kind MovementKind) (*DeductionPlan, error) {
	if quantity <= 0 {
		return nil, apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity")
	}

	SortLedgers(ledgers)
	orderYear, orderMonth := PeriodOf(orderDate)

	plan := &DeductionPlan{
		Requested: quantity,
		Remaining: quantity,
	}

	for _, l := range ledgers {
		if plan.Remaining == 0 {
			break
		}
		touched := false
		for i := range l.Movements {
			if plan.Remaining == 0 {
				break
			}
			m := &l.Movements[i]
			if m.Kind != MovementAdded || m.Expired(now) {
				continue
			}
			available := m.Available()
			if available <= 0 {
				continue
			}

			drawn := plan.Remaining
			if available < drawn {
				drawn = available
			}

			switch kind {
			case MovementSold:
				m.SoldQty += drawn
				m.Usage = append(m.Usage, UsageRecord{
					Year:      orderYear,
					Month:     orderMonth,
					Quantity:  drawn,
					OrderDate: orderDate,
				})
			case MovementExpired:
				m.ExpiredQty += drawn
			case MovementDamaged:
				m.DamagedQty += drawn
			default:
				return nil, apperror.NewValidation(fmt.Sprintf("cannot consume stock as %q", kind))
			}

			if l.PeriodBefore(orderYear, orderMonth) {
				plan.UsedFromCarryForward += drawn
			}

			plan.Drawn = append(plan.Drawn, DrawnLot{
				Year:     l.Year,
				Month:    l.Month,
				LotDate:  m.Date,
				Quantity: drawn,
			})
			plan.Remaining -= drawn
			touched = true
		}
		if touched {
			l.UpdatedAt = time.Now().UTC()
			plan.Touched = append(plan.Touched, l)
		}
	}

	return plan, nil
}

// DeductForSale runs the FIFO walk for a sale.
func DeductForSale(ledgers []*MonthlyStockLedger, quantity int64, orderDate, now time.Time) (*DeductionPlan, error) {
	return deductFIFO(ledgers, quantity, orderDate, now, MovementSold)
}
