package journal

import (
	"context"
	"fmt"
	"time"

	"venuepos/internal/core/apperror"
	"venuepos/internal/core/id"
	"venuepos/internal/domain/notify"
	"venuepos/pkg/logger"
)

// Service provides business operations over the order journal.
type Service struct {
	repo       Repository
	notifier   notify.Notifier
	maxRetries int
}

// NewService creates a journal service.
func NewService(repo Repository, notifier notify.Notifier) *Service {
	return &Service{
		repo:       repo,
		notifier:   notifier,
		maxRetries: 3,
	}
}

// Append records a settled order. A failure here is fatal to the
// settlement: the caller must be told the order was not recorded.
func (s *Service) Append(ctx context.Context, o *Order) error {
	if err := o.Validate(ctx); err != nil {
		return err
	}

	if err := s.repo.Append(ctx, o); err != nil {
		return fmt.Errorf("append order %s: %w", o.Number, err)
	}

	logger.Info(ctx, "order appended",
		"order_id", o.ID,
		"number", o.Number,
		"venue_id", o.VenueID,
		"status", o.Status,
		"grand_total", o.GrandTotal(),
	)
	return nil
}

// TransitionResult reports a status change.
type TransitionResult struct {
	OrderID   id.ID     `json:"orderId"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Transition moves an order to a new lifecycle status.
//
// The legal-transition table is enforced. Cancelling an already-cancelled
// order is an idempotent no-op so client retries stay cheap; any other
// change out of a terminal state is rejected. Lost optimistic races are
// retried a bounded number of times.
func (s *Service) Transition(ctx context.Context, venueID, orderID id.ID, to Status) (*TransitionResult, error) {
	if !to.Valid() {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown status %q", to)).
			WithDetail("field", "status")
	}

	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		o, err := s.repo.Get(ctx, venueID, orderID)
		if err != nil {
			return nil, err
		}

		if to == StatusCancelled && o.Status == StatusCancelled {
			// Idempotent re-cancel: same terminal state, counters untouched.
			return &TransitionResult{
				OrderID:   o.ID,
				Status:    o.Status,
				UpdatedAt: o.StatusTimes[StatusCancelled],
			}, nil
		}
		if o.Status.Terminal() {
			return nil, apperror.NewInvalidTransition(string(o.Status), string(to))
		}
		if !CanTransition(o.Status, to) {
			return nil, apperror.NewInvalidTransition(string(o.Status), string(to))
		}

		at := time.Now().UTC()
		if err := s.repo.UpdateStatus(ctx, venueID, orderID, o.Status, to, at); err != nil {
			if apperror.IsConcurrentModification(err) {
				lastErr = err
				continue
			}
			return nil, err
		}

		logger.Info(ctx, "order status changed",
			"order_id", orderID,
			"venue_id", venueID,
			"from", o.Status,
			"to", to,
		)
		s.fireNotification(ctx, o, to)

		return &TransitionResult{OrderID: orderID, Status: to, UpdatedAt: at}, nil
	}

	return nil, apperror.NewConcurrentModification("order", orderID).WithCause(lastErr)
}

// MarkPayment sets the order's payment status. Payment settlement is
// tracked independently of the lifecycle, so no transition table applies.
func (s *Service) MarkPayment(ctx context.Context, venueID, orderID id.ID, to PaymentStatus) error {
	if !to.Valid() {
		return apperror.NewValidation(fmt.Sprintf("unknown payment status %q", to)).
			WithDetail("field", "paymentStatus")
	}
	if err := s.repo.UpdatePayment(ctx, venueID, orderID, to); err != nil {
		return err
	}
	logger.Info(ctx, "order payment status changed",
		"order_id", orderID,
		"venue_id", venueID,
		"payment_status", to,
	)
	return nil
}

// Get returns one order from the venue's journal.
func (s *Service) Get(ctx context.Context, venueID, orderID id.ID) (*Order, error) {
	return s.repo.Get(ctx, venueID, orderID)
}

// List returns orders matching the filter plus the total match count.
func (s *Service) List(ctx context.Context, venueID id.ID, f ListFilter) ([]*Order, int64, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	return s.repo.List(ctx, venueID, f)
}

// Summary returns the venue's aggregate counters.
func (s *Service) Summary(ctx context.Context, venueID id.ID) (*Aggregate, error) {
	return s.repo.Aggregate(ctx, venueID)
}

// VerifyAggregate recomputes the aggregate from the order list and
// compares it with the stored counters. Used as a consistency check by
// reconciliation jobs.
func (s *Service) VerifyAggregate(ctx context.Context, venueID id.ID) error {
	stored, err := s.repo.Aggregate(ctx, venueID)
	if err != nil {
		return err
	}

	var all []*Order
	f := ListFilter{Limit: 500}
	for {
		page, total, err := s.repo.List(ctx, venueID, f)
		if err != nil {
			return err
		}
		all = append(all, page...)
		if int64(len(all)) >= total || len(page) == 0 {
			break
		}
		f.Offset += len(page)
	}

	recomputed := Recompute(venueID, all)
	if !stored.Equal(recomputed) {
		return fmt.Errorf("aggregate drift for venue %s: stored %d orders / %s revenue, recomputed %d / %s",
			venueID, stored.TotalOrders, stored.TotalRevenue, recomputed.TotalOrders, recomputed.TotalRevenue)
	}
	return nil
}

func (s *Service) fireNotification(ctx context.Context, o *Order, status Status) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Notify(ctx, notify.Event{
		OrderID:     o.ID.String(),
		OrderNumber: o.Number,
		VenueID:     o.VenueID.String(),
		Status:      string(status),
	})
	if err != nil {
		// Fire-and-forget: never block settlement on notification failure.
		logger.Warn(ctx, "notification failed", "order_id", o.ID, "error", err)
	}
}
