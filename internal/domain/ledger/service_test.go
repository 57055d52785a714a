package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"venuepos/internal/core/apperror"
	"venuepos/internal/core/id"
)

// memRepo is an in-memory Repository with real version-CAS semantics:
// loaded ledgers are deep copies, and Save fails unless the caller's
// version matches the stored one.
type memRepo struct {
	ledgers map[string]*MonthlyStockLedger

	// saveHook, when set, runs before each Save and may inject failures.
	saveHook func(l *MonthlyStockLedger) error

	saveCalls int
}

func newMemRepo() *memRepo {
	return &memRepo{ledgers: make(map[string]*MonthlyStockLedger)}
}

func key(venueID, productID id.ID, year, month int) string {
	return fmt.Sprintf("%s|%s|%04d-%02d", venueID, productID, year, month)
}

func cloneLedger(l *MonthlyStockLedger) *MonthlyStockLedger {
	c := *l
	c.Movements = make([]StockMovement, len(l.Movements))
	copy(c.Movements, l.Movements)
	for i := range c.Movements {
		if u := c.Movements[i].Usage; u != nil {
			c.Movements[i].Usage = append([]UsageRecord(nil), u...)
		}
	}
	return &c
}

func (r *memRepo) ListByProduct(ctx context.Context, venueID, productID id.ID) ([]*MonthlyStockLedger, error) {
	var out []*MonthlyStockLedger
	for _, l := range r.ledgers {
		if l.VenueID == venueID && l.ProductID == productID {
			out = append(out, cloneLedger(l))
		}
	}
	SortLedgers(out)
	return out, nil
}

func (r *memRepo) Get(ctx context.Context, venueID, productID id.ID, year, month int) (*MonthlyStockLedger, error) {
	l, ok := r.ledgers[key(venueID, productID, year, month)]
	if !ok {
		return nil, apperror.NewNotFound("stock ledger", fmt.Sprintf("%04d-%02d", year, month))
	}
	return cloneLedger(l), nil
}

func (r *memRepo) Create(ctx context.Context, l *MonthlyStockLedger) error {
	k := key(l.VenueID, l.ProductID, l.Year, l.Month)
	if _, exists := r.ledgers[k]; exists {
		return apperror.NewConcurrentModification("stock ledger", l.ID)
	}
	r.ledgers[k] = cloneLedger(l)
	return nil
}

func (r *memRepo) Save(ctx context.Context, l *MonthlyStockLedger) error {
	r.saveCalls++
	if r.saveHook != nil {
		if err := r.saveHook(l); err != nil {
			return err
		}
	}
	k := key(l.VenueID, l.ProductID, l.Year, l.Month)
	stored, ok := r.ledgers[k]
	if !ok || stored.Version != l.Version {
		return apperror.NewConcurrentModification("stock ledger", l.ID)
	}
	saved := cloneLedger(l)
	saved.Version++
	r.ledgers[k] = saved
	l.Version++
	return nil
}

func (r *memRepo) stored(venueID, productID id.ID, year, month int) *MonthlyStockLedger {
	return r.ledgers[key(venueID, productID, year, month)]
}

func TestService_AddStockCreatesPeriod(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, DefaultConfig())
	ctx := context.Background()
	venueID, productID := id.New(), id.New()

	l, err := svc.AddStock(ctx, venueID, productID, 100, date(2025, time.January, 5), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if l.Period() != "2025-01" {
		t.Errorf("expected period 2025-01, got %s", l.Period())
	}
	if l.CurrentBalance() != 100 {
		t.Errorf("expected balance 100, got %d", l.CurrentBalance())
	}
	if repo.stored(venueID, productID, 2025, 1) == nil {
		t.Fatal("ledger not persisted")
	}
}

func TestService_DeductForSaleSamePeriod(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, DefaultConfig())
	ctx := context.Background()
	venueID, productID := id.New(), id.New()

	_, err := svc.AddStock(ctx, venueID, productID, 100, date(2025, time.January, 5), nil)
	if err != nil {
		t.Fatalf("add stock: %v", err)
	}

	res, err := svc.DeductForSale(ctx, venueID, productID, 30, date(2025, time.January, 15))
	if err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if res.Shortfall != 0 {
		t.Errorf("expected no shortfall, got %d", res.Shortfall)
	}

	stored := repo.stored(venueID, productID, 2025, 1)
	if stored.CurrentBalance() != 70 {
		t.Errorf("expected balance 70, got %d", stored.CurrentBalance())
	}

	last := stored.Movements[len(stored.Movements)-1]
	if last.Kind != MovementSold || last.Quantity != 30 {
		t.Errorf("expected SOLD 30 movement, got %+v", last)
	}
	if stored.Movements[0].SoldQty != 30 {
		t.Errorf("expected lot counter 30, got %d", stored.Movements[0].SoldQty)
	}
	if err := stored.CheckConservation(); err != nil {
		t.Errorf("conservation violated: %v", err)
	}
}

func TestService_DeductForSaleSeedsCarryForward(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, DefaultConfig())
	ctx := context.Background()
	venueID, productID := id.New(), id.New()

	if _, err := svc.AddStock(ctx, venueID, productID, 100, date(2025, time.January, 5), nil); err != nil {
		t.Fatalf("add stock: %v", err)
	}
	if _, err := svc.DeductForSale(ctx, venueID, productID, 30, date(2025, time.January, 20)); err != nil {
		t.Fatalf("january sale: %v", err)
	}

	// First movement in March opens the period with January's closing
	// balance carried forward.
	res, err := svc.DeductForSale(ctx, venueID, productID, 15, date(2025, time.March, 3))
	if err != nil {
		t.Fatalf("march sale: %v", err)
	}

	march := repo.stored(venueID, productID, 2025, 3)
	if march == nil {
		t.Fatal("march ledger not created")
	}
	if march.CarryForward != 70 {
		t.Errorf("expected carry-forward 70, got %d", march.CarryForward)
	}
	if march.UsedCarryForward != 15 {
		t.Errorf("expected usedCarryForward 15, got %d", march.UsedCarryForward)
	}
	if march.CurrentBalance() != 55 {
		t.Errorf("expected balance 55, got %d", march.CurrentBalance())
	}
	if res.Plan.UsedFromCarryForward != 15 {
		t.Errorf("expected plan carry-forward draw 15, got %d", res.Plan.UsedFromCarryForward)
	}

	// January's lot counters took the draw.
	jan := repo.stored(venueID, productID, 2025, 1)
	if jan.Movements[0].SoldQty != 45 {
		t.Errorf("expected january lot soldQty 45, got %d", jan.Movements[0].SoldQty)
	}
}

func TestService_DeductRetriesOnVersionConflict(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, DefaultConfig())
	ctx := context.Background()
	venueID, productID := id.New(), id.New()

	if _, err := svc.AddStock(ctx, venueID, productID, 50, date(2025, time.January, 5), nil); err != nil {
		t.Fatalf("add stock: %v", err)
	}

	// First save attempt loses the race; the retry must succeed from a
	// fresh load.
	failures := 1
	repo.saveHook = func(l *MonthlyStockLedger) error {
		if failures > 0 {
			failures--
			return apperror.NewConcurrentModification("stock ledger", l.ID)
		}
		return nil
	}

	res, err := svc.DeductForSale(ctx, venueID, productID, 10, date(2025, time.January, 15))
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if res.Shortfall != 0 {
		t.Errorf("expected no shortfall, got %d", res.Shortfall)
	}
	if repo.stored(venueID, productID, 2025, 1).CurrentBalance() != 40 {
		t.Errorf("expected balance 40 after retried sale")
	}
}

func TestService_DeductExhaustsRetries(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, Config{Mode: BestEffort, MaxRetries: 2})
	ctx := context.Background()
	venueID, productID := id.New(), id.New()

	if _, err := svc.AddStock(ctx, venueID, productID, 50, date(2025, time.January, 5), nil); err != nil {
		t.Fatalf("add stock: %v", err)
	}

	repo.saveHook = func(l *MonthlyStockLedger) error {
		return apperror.NewConcurrentModification("stock ledger", l.ID)
	}

	_, err := svc.DeductForSale(ctx, venueID, productID, 10, date(2025, time.January, 15))
	if !apperror.IsConcurrentModification(err) {
		t.Fatalf("expected concurrent modification after exhausted retries, got %v", err)
	}
}

func TestService_BestEffortToleratesSaveFailure(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, DefaultConfig())
	ctx := context.Background()
	venueID, productID := id.New(), id.New()

	if _, err := svc.AddStock(ctx, venueID, productID, 50, date(2025, time.January, 5), nil); err != nil {
		t.Fatalf("add stock: %v", err)
	}

	// A sale in February creates the target period (persisted), then the
	// January source ledger save fails with a non-retryable error.
	repo.saveHook = func(l *MonthlyStockLedger) error {
		if l.Month == 1 {
			return fmt.Errorf("connection reset")
		}
		return nil
	}

	res, err := svc.DeductForSale(ctx, venueID, productID, 10, date(2025, time.February, 2))
	if err != nil {
		t.Fatalf("best-effort mode must tolerate save failure, got %v", err)
	}
	if len(res.SaveErrors) != 1 {
		t.Errorf("expected 1 tolerated save error, got %d", len(res.SaveErrors))
	}
}

func TestService_StrictFailsOnSaveFailure(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, Config{Mode: Strict, MaxRetries: 3})
	ctx := context.Background()
	venueID, productID := id.New(), id.New()

	if _, err := svc.AddStock(ctx, venueID, productID, 50, date(2025, time.January, 5), nil); err != nil {
		t.Fatalf("add stock: %v", err)
	}

	repo.saveHook = func(l *MonthlyStockLedger) error {
		if l.Month == 1 {
			return fmt.Errorf("connection reset")
		}
		return nil
	}

	if _, err := svc.DeductForSale(ctx, venueID, productID, 10, date(2025, time.February, 2)); err == nil {
		t.Fatal("strict mode must surface save failures")
	}
}

func TestService_StrictModeToleratesShortfall(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, Config{Mode: Strict, MaxRetries: 3})
	ctx := context.Background()
	venueID, productID := id.New(), id.New()

	if _, err := svc.AddStock(ctx, venueID, productID, 5, date(2025, time.January, 5), nil); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	res, err := svc.DeductForSale(ctx, venueID, productID, 8, date(2025, time.January, 10))
	if err != nil {
		t.Fatalf("strict mode must not reject a shortfall: %v", err)
	}
	if res.Shortfall != 3 {
		t.Errorf("expected shortfall 3, got %d", res.Shortfall)
	}
}

func TestService_RecordWastage(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, DefaultConfig())
	ctx := context.Background()
	venueID, productID := id.New(), id.New()

	if _, err := svc.AddStock(ctx, venueID, productID, 40, date(2025, time.January, 5), nil); err != nil {
		t.Fatalf("add stock: %v", err)
	}

	res, err := svc.RecordWastage(ctx, venueID, productID, 6, date(2025, time.January, 12), MovementDamaged, "dropped crate")
	if err != nil {
		t.Fatalf("wastage: %v", err)
	}
	if res.Shortfall != 0 {
		t.Errorf("expected no shortfall, got %d", res.Shortfall)
	}

	stored := repo.stored(venueID, productID, 2025, 1)
	if stored.Movements[0].DamagedQty != 6 {
		t.Errorf("expected damagedQty 6, got %d", stored.Movements[0].DamagedQty)
	}
	last := stored.Movements[len(stored.Movements)-1]
	if last.Kind != MovementDamaged || last.Note != "dropped crate" {
		t.Errorf("unexpected wastage movement: %+v", last)
	}
	if stored.CurrentBalance() != 34 {
		t.Errorf("expected balance 34, got %d", stored.CurrentBalance())
	}
}

func TestService_RecordWastageRejectsKind(t *testing.T) {
	svc := NewService(newMemRepo(), DefaultConfig())
	_, err := svc.RecordWastage(context.Background(), id.New(), id.New(), 5, date(2025, time.January, 12), MovementSold, "")
	if !apperror.IsCode(err, apperror.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_ExpireLots(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, DefaultConfig())
	svc.now = func() time.Time { return date(2025, time.January, 8) }
	ctx := context.Background()
	venueID, productID := id.New(), id.New()

	expiry := date(2025, time.January, 10)
	if _, err := svc.AddStock(ctx, venueID, productID, 30, date(2025, time.January, 2), &expiry); err != nil {
		t.Fatalf("add expiring stock: %v", err)
	}
	if _, err := svc.AddStock(ctx, venueID, productID, 20, date(2025, time.January, 5), nil); err != nil {
		t.Fatalf("add stock: %v", err)
	}
	// 12 units of the expiring lot were sold before it lapsed.
	if _, err := svc.DeductForSale(ctx, venueID, productID, 12, date(2025, time.January, 8)); err != nil {
		t.Fatalf("sale: %v", err)
	}

	res, err := svc.ExpireLots(ctx, venueID, productID, date(2025, time.February, 1))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if res.Expired != 18 {
		t.Errorf("expected 18 written off, got %d", res.Expired)
	}

	// The EXPIRED movement lands in February; the lot counter in January.
	feb := repo.stored(venueID, productID, 2025, 2)
	if feb == nil {
		t.Fatal("february ledger not created")
	}
	last := feb.Movements[len(feb.Movements)-1]
	if last.Kind != MovementExpired || last.Quantity != 18 {
		t.Errorf("unexpected sweep movement: %+v", last)
	}

	jan := repo.stored(venueID, productID, 2025, 1)
	if jan.Movements[0].ExpiredQty != 18 {
		t.Errorf("expected lot expiredQty 18, got %d", jan.Movements[0].ExpiredQty)
	}
	if jan.Movements[0].Available() != 0 {
		t.Errorf("lapsed lot must be fully consumed, available = %d", jan.Movements[0].Available())
	}

	// A second sweep finds nothing.
	res, err = svc.ExpireLots(ctx, venueID, productID, date(2025, time.February, 2))
	if err != nil {
		t.Fatalf("second expire: %v", err)
	}
	if res.Expired != 0 || res.Ledger != nil {
		t.Errorf("expected no-op sweep, got %+v", res)
	}
}

func TestService_AvailabilityExcludesExpired(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, DefaultConfig())
	svc.now = func() time.Time { return date(2025, time.February, 1) }
	ctx := context.Background()
	venueID, productID := id.New(), id.New()

	expiry := date(2025, time.January, 10)
	if _, err := svc.AddStock(ctx, venueID, productID, 30, date(2025, time.January, 2), &expiry); err != nil {
		t.Fatalf("add expiring stock: %v", err)
	}
	if _, err := svc.AddStock(ctx, venueID, productID, 20, date(2025, time.January, 5), nil); err != nil {
		t.Fatalf("add stock: %v", err)
	}

	available, err := svc.Availability(ctx, venueID, productID)
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if available != 20 {
		t.Errorf("expected availability 20 (expired lot excluded), got %d", available)
	}
}
