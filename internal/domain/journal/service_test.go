package journal

import (
	"context"
	"sync"
	"testing"
	"time"

	"venuepos/internal/core/apperror"
	"venuepos/internal/core/id"
	"venuepos/internal/core/types"
)

// memJournal is an in-memory Repository that keeps the order mutation
// and the aggregate bump atomic under one lock, mirroring the
// transactional contract of the real store.
type memJournal struct {
	mu     sync.Mutex
	orders map[id.ID]*Order
	aggs   map[id.ID]*Aggregate

	// updateHook, when set, runs before each UpdateStatus and may inject
	// failures.
	updateHook func() error
}

func newMemJournal() *memJournal {
	return &memJournal{
		orders: make(map[id.ID]*Order),
		aggs:   make(map[id.ID]*Aggregate),
	}
}

func (r *memJournal) Append(ctx context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.orders[o.ID] = cloneOrder(o)

	agg, ok := r.aggs[o.VenueID]
	if !ok {
		agg = NewAggregate(o.VenueID)
		r.aggs[o.VenueID] = agg
	}
	agg.TotalOrders++
	agg.TotalRevenue = agg.TotalRevenue.Add(o.GrandTotal())
	agg.StatusCounts[o.Status]++
	return nil
}

func (r *memJournal) UpdateStatus(ctx context.Context, venueID, orderID id.ID, from, to Status, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.updateHook != nil {
		if err := r.updateHook(); err != nil {
			return err
		}
	}

	o, ok := r.orders[orderID]
	if !ok || o.VenueID != venueID {
		return apperror.NewNotFound("order", orderID.String())
	}
	if o.Status != from {
		return apperror.NewConcurrentModification("order", orderID)
	}

	o.Status = to
	o.StatusTimes[to] = at

	agg := r.aggs[venueID]
	agg.StatusCounts[from]--
	agg.StatusCounts[to]++
	return nil
}

func (r *memJournal) UpdatePayment(ctx context.Context, venueID, orderID id.ID, to PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok || o.VenueID != venueID {
		return apperror.NewNotFound("order", orderID.String())
	}
	o.PaymentStatus = to
	return nil
}

func (r *memJournal) Get(ctx context.Context, venueID, orderID id.ID) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok || o.VenueID != venueID {
		return nil, apperror.NewNotFound("order", orderID.String())
	}
	return cloneOrder(o), nil
}

func (r *memJournal) List(ctx context.Context, venueID id.ID, f ListFilter) ([]*Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []*Order
	for _, o := range r.orders {
		if o.VenueID == venueID {
			all = append(all, cloneOrder(o))
		}
	}
	total := int64(len(all))

	if f.Offset >= len(all) {
		return nil, total, nil
	}
	end := f.Offset + f.Limit
	if f.Limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[f.Offset:end], total, nil
}

func (r *memJournal) Aggregate(ctx context.Context, venueID id.ID) (*Aggregate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agg, ok := r.aggs[venueID]
	if !ok {
		return NewAggregate(venueID), nil
	}
	out := NewAggregate(venueID)
	out.TotalOrders = agg.TotalOrders
	out.TotalRevenue = agg.TotalRevenue
	for s, n := range agg.StatusCounts {
		out.StatusCounts[s] = n
	}
	return out, nil
}

func cloneOrder(o *Order) *Order {
	c := *o
	c.StatusTimes = make(map[Status]time.Time, len(o.StatusTimes))
	for s, ts := range o.StatusTimes {
		c.StatusTimes[s] = ts
	}
	return &c
}

func TestServiceAppendAndSummary(t *testing.T) {
	repo := newMemJournal()
	svc := NewService(repo, nil)
	ctx := context.Background()
	venueID := id.New()

	for i, total := range []string{"10.00", "25.50"} {
		o := NewOrder(venueID, "ORD-20250115-000"+string(rune('1'+i)), ChannelCounter, pricedOrder(total), "cash")
		if err := svc.Append(ctx, o); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	agg, err := svc.Summary(ctx, venueID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if agg.TotalOrders != 2 {
		t.Errorf("expected 2 orders, got %d", agg.TotalOrders)
	}
	if !agg.TotalRevenue.Equal(types.MustMoney("35.50")) {
		t.Errorf("expected revenue 35.50, got %s", agg.TotalRevenue)
	}
	if agg.StatusCounts[StatusConfirmed] != 2 {
		t.Errorf("expected 2 confirmed, got %d", agg.StatusCounts[StatusConfirmed])
	}
}

func TestServiceAppendRejectsInvalid(t *testing.T) {
	svc := NewService(newMemJournal(), nil)
	o := NewOrder(id.New(), "", ChannelCounter, pricedOrder("5.00"), "cash")
	if err := svc.Append(context.Background(), o); err == nil {
		t.Fatal("expected validation error for empty number")
	}
}

func TestServiceConcurrentAppends(t *testing.T) {
	repo := newMemJournal()
	svc := NewService(repo, nil)
	ctx := context.Background()
	venueID := id.New()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o := NewOrder(venueID, "ORD-20250115-9999", ChannelCounter, pricedOrder("2.50"), "cash")
			if err := svc.Append(ctx, o); err != nil {
				t.Errorf("append: %v", err)
			}
		}()
	}
	wg.Wait()

	agg, err := svc.Summary(ctx, venueID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if agg.TotalOrders != n {
		t.Errorf("expected %d orders, got %d", n, agg.TotalOrders)
	}
	if !agg.TotalRevenue.Equal(types.MustMoney("125.00")) {
		t.Errorf("expected revenue 125.00, got %s", agg.TotalRevenue)
	}
	if err := svc.VerifyAggregate(ctx, venueID); err != nil {
		t.Errorf("aggregate drifted from journal: %v", err)
	}
}

func TestServiceTransitionHappyPath(t *testing.T) {
	repo := newMemJournal()
	svc := NewService(repo, nil)
	ctx := context.Background()
	venueID := id.New()

	o := NewOrder(venueID, "ORD-20250115-0001", ChannelCounter, pricedOrder("5.00"), "cash")
	if err := svc.Append(ctx, o); err != nil {
		t.Fatalf("append: %v", err)
	}

	for _, next := range []Status{StatusPreparing, StatusReady, StatusServed, StatusCompleted} {
		res, err := svc.Transition(ctx, venueID, o.ID, next)
		if err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
		if res.Status != next {
			t.Errorf("expected status %s, got %s", next, res.Status)
		}
	}

	stored, _ := svc.Get(ctx, venueID, o.ID)
	if stored.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", stored.Status)
	}
	// Every visited status is stamped.
	for _, s := range []Status{StatusConfirmed, StatusPreparing, StatusReady, StatusServed, StatusCompleted} {
		if stored.StatusTimes[s].IsZero() {
			t.Errorf("status %s not stamped", s)
		}
	}

	agg, _ := svc.Summary(ctx, venueID)
	if agg.StatusCounts[StatusCompleted] != 1 || agg.StatusCounts[StatusConfirmed] != 0 {
		t.Errorf("status counts not shifted: %+v", agg.StatusCounts)
	}
}

func TestServiceTransitionRejectsIllegal(t *testing.T) {
	repo := newMemJournal()
	svc := NewService(repo, nil)
	ctx := context.Background()
	venueID := id.New()

	o := NewOrder(venueID, "ORD-20250115-0001", ChannelCounter, pricedOrder("5.00"), "cash")
	if err := svc.Append(ctx, o); err != nil {
		t.Fatalf("append: %v", err)
	}

	// confirmed -> served skips preparing/ready.
	if _, err := svc.Transition(ctx, venueID, o.ID, StatusServed); !apperror.IsCode(err, apperror.CodeInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION, got %v", err)
	}

	// Unknown status is a validation error.
	if _, err := svc.Transition(ctx, venueID, o.ID, Status("shipped")); !apperror.IsCode(err, apperror.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestServiceCancelIdempotent(t *testing.T) {
	repo := newMemJournal()
	svc := NewService(repo, nil)
	ctx := context.Background()
	venueID := id.New()

	o := NewOrder(venueID, "ORD-20250115-0001", ChannelCounter, pricedOrder("5.00"), "cash")
	if err := svc.Append(ctx, o); err != nil {
		t.Fatalf("append: %v", err)
	}

	first, err := svc.Transition(ctx, venueID, o.ID, StatusCancelled)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Re-cancelling is a no-op returning the original cancellation time.
	second, err := svc.Transition(ctx, venueID, o.ID, StatusCancelled)
	if err != nil {
		t.Fatalf("re-cancel must be idempotent, got %v", err)
	}
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Errorf("re-cancel must return original timestamp: %v vs %v", second.UpdatedAt, first.UpdatedAt)
	}

	// Counters must not double-count the cancellation.
	agg, _ := svc.Summary(ctx, venueID)
	if agg.StatusCounts[StatusCancelled] != 1 {
		t.Errorf("expected 1 cancelled, got %d", agg.StatusCounts[StatusCancelled])
	}

	// Any other change out of cancelled stays rejected.
	if _, err := svc.Transition(ctx, venueID, o.ID, StatusConfirmed); !apperror.IsCode(err, apperror.CodeInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION out of cancelled, got %v", err)
	}
}

func TestServiceTransitionRetriesLostRace(t *testing.T) {
	repo := newMemJournal()
	svc := NewService(repo, nil)
	ctx := context.Background()
	venueID := id.New()

	o := NewOrder(venueID, "ORD-20250115-0001", ChannelCounter, pricedOrder("5.00"), "cash")
	if err := svc.Append(ctx, o); err != nil {
		t.Fatalf("append: %v", err)
	}

	failures := 1
	repo.updateHook = func() error {
		if failures > 0 {
			failures--
			return apperror.NewConcurrentModification("order", o.ID)
		}
		return nil
	}

	res, err := svc.Transition(ctx, venueID, o.ID, StatusPreparing)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if res.Status != StatusPreparing {
		t.Errorf("expected preparing, got %s", res.Status)
	}
}

func TestServiceConcurrentAppendPair(t *testing.T) {
	repo := newMemJournal()
	svc := NewService(repo, nil)
	ctx := context.Background()
	venueID := id.New()

	var wg sync.WaitGroup
	for _, total := range []string{"100.00", "150.00"} {
		wg.Add(1)
		go func(total string) {
			defer wg.Done()
			o := NewOrder(venueID, "ORD-20250115-0001", ChannelCounter, pricedOrder(total), "cash")
			if err := svc.Append(ctx, o); err != nil {
				t.Errorf("append: %v", err)
			}
		}(total)
	}
	wg.Wait()

	agg, err := svc.Summary(ctx, venueID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if agg.TotalOrders != 2 {
		t.Errorf("expected exactly 2 orders, got %d", agg.TotalOrders)
	}
	if !agg.TotalRevenue.Equal(types.MustMoney("250.00")) {
		t.Errorf("expected revenue 250.00, got %s", agg.TotalRevenue)
	}
}

func TestServiceMarkPayment(t *testing.T) {
	repo := newMemJournal()
	svc := NewService(repo, nil)
	ctx := context.Background()
	venueID := id.New()

	o := NewOrder(venueID, "ORD-20250115-0001", ChannelCounter, pricedOrder("5.00"), "card")
	if err := svc.Append(ctx, o); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := svc.MarkPayment(ctx, venueID, o.ID, PaymentPaid); err != nil {
		t.Fatalf("mark payment: %v", err)
	}
	stored, _ := svc.Get(ctx, venueID, o.ID)
	if stored.PaymentStatus != PaymentPaid {
		t.Errorf("expected paid, got %s", stored.PaymentStatus)
	}
	if stored.Status != StatusConfirmed {
		t.Errorf("payment must not touch lifecycle status, got %s", stored.Status)
	}

	if err := svc.MarkPayment(ctx, venueID, o.ID, PaymentStatus("wired")); !apperror.IsCode(err, apperror.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := svc.MarkPayment(ctx, venueID, id.New(), PaymentRefused); !apperror.IsNotFound(err) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestServiceTransitionNotFound(t *testing.T) {
	svc := NewService(newMemJournal(), nil)
	_, err := svc.Transition(context.Background(), id.New(), id.New(), StatusConfirmed)
	if !apperror.IsNotFound(err) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
