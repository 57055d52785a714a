package ledger

import (
	"context"
	"fmt"
	"time"

	"venuepos/internal/core/apperror"
	"venuepos/internal/core/id"
	"venuepos/pkg/logger"
)

// DeductionMode controls how ledger persistence failures during a sale
// are handled.
type DeductionMode int

const (
	// BestEffort logs per-ledger save failures and lets the sale proceed.
	// The sale already happened physically; the ledger is a best-effort
	// record and bookkeeping must never block a completed sale.
	BestEffort DeductionMode = iota

	// Strict fails the deduction when any touched ledger cannot be saved.
	Strict
)

// Config holds ledger service settings.
type Config struct {
	Mode DeductionMode

	// MaxRetries bounds full-operation retries on optimistic-lock
	// conflicts before they are surfaced.
	MaxRetries int
}

// DefaultConfig returns the production policy: best-effort persistence,
// three retries on version conflicts.
func DefaultConfig() Config {
	return Config{
		Mode:       BestEffort,
		MaxRetries: 3,
	}
}

// Service owns FIFO deduction and the rest of the stock-movement
// operations over monthly ledgers.
type Service struct {
	repo Repository
	cfg  Config
	now  func() time.Time
}

// NewService creates a ledger service.
func NewService(repo Repository, cfg Config) *Service {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	return &Service{
		repo: repo,
		cfg:  cfg,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// DeductionResult reports the outcome of a sale deduction.
type DeductionResult struct {
	// Plan describes which lots were drawn from.
	Plan *DeductionPlan

	// Ledger is the order-period ledger that received the SOLD movement.
	Ledger *MonthlyStockLedger

	// Shortfall is the quantity FIFO accounting could not cover.
	// Non-zero means the sale outran the recorded stock; it is logged,
	// never fatal.
	Shortfall int64

	// SaveErrors collects per-ledger persistence failures tolerated in
	// best-effort mode.
	SaveErrors []error
}

// DeductForSale deducts quantity from the oldest available non-expired
// lots of (venue, product) and records a SOLD movement in the ledger for
// orderDate's period.
//
// The whole walk is retried from a fresh load on version conflicts, but
// only while nothing has been persisted yet; once any ledger is saved the
// configured DeductionMode decides whether later failures abort. A
// shortfall is never an error in either mode, and during settlement the
// coordinator downgrades even a Strict failure to a stock warning, so
// Strict effectively binds only the standalone stock operations.
func (s *Service) DeductForSale(ctx context.Context, venueID, productID id.ID, quantity int64, orderDate time.Time) (*DeductionResult, error) {
	if quantity <= 0 {
		return nil, apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity")
	}

	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		result, savedAny, err := s.deductOnce(ctx, venueID, productID, quantity, orderDate)
		if err == nil {
			return result, nil
		}
		if apperror.IsConcurrentModification(err) && !savedAny {
			lastErr = err
			logger.Debug(ctx, "deduction hit version conflict, retrying",
				"venue_id", venueID, "product_id", productID, "attempt", attempt+1)
			continue
		}
		return nil, err
	}

	return nil, apperror.NewConcurrentModification("stock_ledger", productID).WithCause(lastErr)
}

func (s *Service) deductOnce(ctx context.Context, venueID, productID id.ID, quantity int64, orderDate time.Time) (*DeductionResult, bool, error) {
	ledgers, err := s.repo.ListByProduct(ctx, venueID, productID)
	if err != nil {
		return nil, false, fmt.Errorf("load ledgers: %w", err)
	}

	now := s.now()
	plan, err := DeductForSale(ledgers, quantity, orderDate, now)
	if err != nil {
		return nil, false, err
	}

	if plan.Remaining > 0 {
		// Quantity sold exceeds quantity ever added plus carried. The sale
		// proceeds; the discrepancy is logged for reconciliation.
		logger.Warn(ctx, "insufficient stock for FIFO accounting",
			"venue_id", venueID,
			"product_id", productID,
			"requested", quantity,
			"shortfall", plan.Remaining,
		)
	}

	year, month := PeriodOf(orderDate)
	target, created, err := s.getOrCreatePeriod(ctx, venueID, productID, year, month, ledgers)
	if err != nil {
		return nil, false, err
	}

	target.Append(StockMovement{
		Date:     orderDate,
		Kind:     MovementSold,
		Quantity: quantity,
		Note:     plan.Note(),
	}, -quantity)
	if plan.UsedFromCarryForward > 0 {
		target.UsedCarryForward += plan.UsedFromCarryForward
	}

	result := &DeductionResult{
		Plan:      plan,
		Ledger:    target,
		Shortfall: plan.Remaining,
	}

	// Persist every modified ledger independently. A freshly created
	// target was already inserted with its SOLD movement pending, so it
	// still needs a save like the rest.
	toSave := plan.Touched
	if !containsLedger(toSave, target) {
		toSave = append(toSave, target)
	}

	savedAny := created
	for _, l := range toSave {
		if err := s.repo.Save(ctx, l); err != nil {
			if apperror.IsConcurrentModification(err) && !savedAny {
				return nil, false, err
			}
			if s.cfg.Mode == Strict {
				return nil, savedAny, fmt.Errorf("save ledger %s: %w", l.Period(), err)
			}
			logger.Warn(ctx, "ledger save failed, continuing per best-effort policy",
				"venue_id", venueID,
				"product_id", productID,
				"period", l.Period(),
				"error", err,
			)
			result.SaveErrors = append(result.SaveErrors, err)
			continue
		}
		savedAny = true
	}

	return result, savedAny, nil
}

// AddStock records an ADDED lot in the period of date.
func (s *Service) AddStock(ctx context.Context, venueID, productID id.ID, quantity int64, date time.Time, expiry *time.Time) (*MonthlyStockLedger, error) {
	if quantity <= 0 {
		return nil, apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity")
	}

	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		ledgers, err := s.repo.ListByProduct(ctx, venueID, productID)
		if err != nil {
			return nil, fmt.Errorf("load ledgers: %w", err)
		}

		year, month := PeriodOf(date)
		target, _, err := s.getOrCreatePeriod(ctx, venueID, productID, year, month, ledgers)
		if err != nil {
			if apperror.IsConcurrentModification(err) {
				lastErr = err
				continue
			}
			return nil, err
		}

		target.Append(StockMovement{
			Date:          date,
			Kind:          MovementAdded,
			QuantityAdded: quantity,
			ExpiryDate:    expiry,
		}, quantity)

		if err := s.repo.Save(ctx, target); err != nil {
			if apperror.IsConcurrentModification(err) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("save ledger %s: %w", target.Period(), err)
		}

		logger.Info(ctx, "stock added",
			"venue_id", venueID,
			"product_id", productID,
			"period", target.Period(),
			"quantity", quantity,
		)
		return target, nil
	}

	return nil, apperror.NewConcurrentModification("stock_ledger", productID).WithCause(lastErr)
}

// RecordWastage consumes quantity from the oldest lots as expiry or
// damage and records the matching movement in date's period.
func (s *Service) RecordWastage(ctx context.Context, venueID, productID id.ID, quantity int64, date time.Time, kind MovementKind, reason string) (*DeductionResult, error) {
	if kind != MovementExpired && kind != MovementDamaged {
		return nil, apperror.NewValidation(fmt.Sprintf("wastage kind must be %q or %q", MovementExpired, MovementDamaged)).
			WithDetail("field", "kind")
	}
	if quantity <= 0 {
		return nil, apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity")
	}

	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		ledgers, err := s.repo.ListByProduct(ctx, venueID, productID)
		if err != nil {
			return nil, fmt.Errorf("load ledgers: %w", err)
		}

		plan, err := deductFIFO(ledgers, quantity, date, s.now(), kind)
		if err != nil {
			return nil, err
		}

		year, month := PeriodOf(date)
		target, created, err := s.getOrCreatePeriod(ctx, venueID, productID, year, month, ledgers)
		if err != nil {
			if apperror.IsConcurrentModification(err) {
				lastErr = err
				continue
			}
			return nil, err
		}

		note := reason
		if note == "" {
			note = plan.Note()
		}
		target.Append(StockMovement{
			Date:     date,
			Kind:     kind,
			Quantity: quantity,
			Note:     note,
		}, -quantity)

		toSave := plan.Touched
		if !containsLedger(toSave, target) {
			toSave = append(toSave, target)
		}

		savedAny := created
		conflict := false
		for _, l := range toSave {
			if err := s.repo.Save(ctx, l); err != nil {
				if apperror.IsConcurrentModification(err) && !savedAny {
					lastErr = err
					conflict = true
					break
				}
				return nil, fmt.Errorf("save ledger %s: %w", l.Period(), err)
			}
			savedAny = true
		}
		if conflict {
			continue
		}

		logger.Info(ctx, "wastage recorded",
			"venue_id", venueID,
			"product_id", productID,
			"kind", kind,
			"quantity", quantity,
		)
		return &DeductionResult{Plan: plan, Ledger: target, Shortfall: plan.Remaining}, nil
	}

	return nil, apperror.NewConcurrentModification("stock_ledger", productID).WithCause(lastErr)
}

// ExpireLotsResult reports an expiry sweep.
type ExpireLotsResult struct {
	// Expired is the total quantity written off.
	Expired int64

	// Ledger holds the EXPIRED movement, nil when nothing was written off.
	Ledger *MonthlyStockLedger
}

// ExpireLots writes off the remaining quantity of every lot past its
// expiry grace as of asOf, recording one EXPIRED movement in asOf's
// period. Meant to run from a periodic sweep; a no-op when no lot has
// lapsed.
func (s *Service) ExpireLots(ctx context.Context, venueID, productID id.ID, asOf time.Time) (*ExpireLotsResult, error) {
	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		ledgers, err := s.repo.ListByProduct(ctx, venueID, productID)
		if err != nil {
			return nil, fmt.Errorf("load ledgers: %w", err)
		}

		var total int64
		var touched []*MonthlyStockLedger
		for _, l := range ledgers {
			var drawn int64
			for i := range l.Movements {
				m := &l.Movements[i]
				if m.Kind != MovementAdded || !m.Expired(asOf) {
					continue
				}
				avail := m.Available()
				if avail <= 0 {
					continue
				}
				m.ExpiredQty += avail
				drawn += avail
			}
			if drawn > 0 {
				touched = append(touched, l)
				total += drawn
			}
		}

		if total == 0 {
			return &ExpireLotsResult{}, nil
		}

		year, month := PeriodOf(asOf)
		target, created, err := s.getOrCreatePeriod(ctx, venueID, productID, year, month, ledgers)
		if err != nil {
			if apperror.IsConcurrentModification(err) {
				lastErr = err
				continue
			}
			return nil, err
		}

		target.Append(StockMovement{
			Date:     asOf,
			Kind:     MovementExpired,
			Quantity: total,
			Note:     "expiry sweep",
		}, -total)

		toSave := touched
		if !containsLedger(toSave, target) {
			toSave = append(toSave, target)
		}

		savedAny := created
		conflict := false
		for _, l := range toSave {
			if err := s.repo.Save(ctx, l); err != nil {
				if apperror.IsConcurrentModification(err) && !savedAny {
					lastErr = err
					conflict = true
					break
				}
				return nil, fmt.Errorf("save ledger %s: %w", l.Period(), err)
			}
			savedAny = true
		}
		if conflict {
			continue
		}

		logger.Info(ctx, "expired lots written off",
			"venue_id", venueID,
			"product_id", productID,
			"quantity", total,
		)
		return &ExpireLotsResult{Expired: total, Ledger: target}, nil
	}

	return nil, apperror.NewConcurrentModification("stock_ledger", productID).WithCause(lastErr)
}

// Availability returns the total drawable stock across all periods,
// excluding expired lots.
func (s *Service) Availability(ctx context.Context, venueID, productID id.ID) (int64, error) {
	ledgers, err := s.repo.ListByProduct(ctx, venueID, productID)
	if err != nil {
		return 0, fmt.Errorf("load ledgers: %w", err)
	}

	now := s.now()
	var total int64
	for _, l := range ledgers {
		total += l.AvailableStock(now)
	}
	return total, nil
}

// History returns all ledgers for (venue, product), oldest first.
func (s *Service) History(ctx context.Context, venueID, productID id.ID) ([]*MonthlyStockLedger, error) {
	return s.repo.ListByProduct(ctx, venueID, productID)
}

// getOrCreatePeriod finds the ledger for (year, month) among the loaded
// ledgers, or creates it seeded with the closing balance of the latest
// preceding period (0 if none). Returns created=true when a new ledger
// was inserted.
func (s *Service) getOrCreatePeriod(ctx context.Context, venueID, productID id.ID, year, month int, ledgers []*MonthlyStockLedger) (*MonthlyStockLedger, bool, error) {
	var prior *MonthlyStockLedger
	for _, l := range ledgers {
		if l.Year == year && l.Month == month {
			return l, false, nil
		}
		if l.PeriodBefore(year, month) {
			prior = l // list is sorted ascending, last match wins
		}
	}

	var carryForward int64
	if prior != nil {
		carryForward = prior.ClosingBalance()
	}

	created := NewMonthlyStockLedger(venueID, productID, year, month, carryForward)
	if err := s.repo.Create(ctx, created); err != nil {
		if apperror.IsConcurrentModification(err) {
			// Lost the creation race; the ledger exists now.
			existing, getErr := s.repo.Get(ctx, venueID, productID, year, month)
			if getErr != nil {
				return nil, false, err
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("create ledger %04d-%02d: %w", year, month, err)
	}

	logger.Info(ctx, "stock ledger period created",
		"venue_id", venueID,
		"product_id", productID,
		"period", created.Period(),
		"carry_forward", carryForward,
	)
	return created, true, nil
}

func containsLedger(list []*MonthlyStockLedger, l *MonthlyStockLedger) bool {
	for _, x := range list {
		if x == l {
			return true
		}
	}
	return false
}
