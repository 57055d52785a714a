// Package settlement orchestrates one order end to end: catalog
// validation, pricing, FIFO stock deduction, order numbering, and the
// journal append.
package settlement

import (
	"context"
	"fmt"
	"time"

	"venuepos/internal/core/apperror"
	"venuepos/internal/core/id"
	"venuepos/internal/domain/catalog"
	"venuepos/internal/domain/journal"
	"venuepos/internal/domain/ledger"
	"venuepos/internal/domain/notify"
	"venuepos/internal/domain/pricing"
	"venuepos/pkg/logger"
)

// OrderNumberer allocates venue-and-day scoped order numbers.
type OrderNumberer interface {
	NextOrderNumber(ctx context.Context, venueID id.ID, day time.Time) (string, error)
}

// RequestedItem is one line of an incoming order request.
type RequestedItem struct {
	ProductID id.ID `json:"productId"`
	Quantity  int64 `json:"quantity"`
}

// CreateOrderRequest is the inbound settlement request. Line items are
// resolved against the catalog; prices, tax and discounts come from the
// product snapshot, never from the client.
type CreateOrderRequest struct {
	VenueID       id.ID
	Channel       journal.Channel
	Items         []RequestedItem
	Customer      *journal.CustomerInfo
	PaymentMethod string
	Notes         string
	Currency      string

	// OrderDate defaults to now; it should carry the venue-local time so
	// numbering and ledger periods land on the right calendar day.
	OrderDate time.Time
}

// CreateOrderResult is returned on successful settlement.
type CreateOrderResult struct {
	OrderID id.ID                `json:"orderId"`
	Number  string               `json:"orderNumber"`
	Status  journal.Status       `json:"status"`
	Pricing *pricing.PricedOrder `json:"pricing"`

	// StockWarnings lists non-fatal ledger discrepancies (shortfalls,
	// tolerated save failures) observed during deduction.
	StockWarnings []StockWarning `json:"stockWarnings,omitempty"`
}

// StockWarning is one non-fatal ledger discrepancy observed while
// deducting stock for a settled order. Code is a stable apperror code
// so clients can badge the order without parsing Message.
type StockWarning struct {
	Code      string `json:"code"`
	ProductID string `json:"productId"`
	Message   string `json:"message"`
}

// newStockWarning flattens a coded error into the warning shape carried
// on the settlement result.
func newStockWarning(err *apperror.AppError, productID id.ID, message string) StockWarning {
	return StockWarning{
		Code:      err.Code,
		ProductID: productID.String(),
		Message:   message,
	}
}

// Coordinator wires the settlement collaborators. Everything is injected
// at construction time; the coordinator holds no mutable state of its own.
type Coordinator struct {
	catalog  catalog.Catalog
	ledgers  *ledger.Service
	journal  *journal.Service
	numbers  OrderNumberer
	notifier notify.Notifier
}

// NewCoordinator creates a settlement coordinator.
func NewCoordinator(
	cat catalog.Catalog,
	ledgers *ledger.Service,
	jrnl *journal.Service,
	numbers OrderNumberer,
	notifier notify.Notifier,
) *Coordinator {
	return &Coordinator{
		catalog:  cat,
		ledgers:  ledgers,
		journal:  jrnl,
		numbers:  numbers,
		notifier: notifier,
	}
}

// CreateOrder settles one order.
//
// Catalog validation and pricing happen before any mutation; a failure
// there leaves no side effects. Ledger deductions are best-effort and
// never block the sale. The journal append is the commit point: if it
// fails, the caller is told the order was not recorded.
func (c *Coordinator) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if len(req.Items) == 0 {
		return nil, apperror.NewNoProducts()
	}

	orderDate := req.OrderDate
	if orderDate.IsZero() {
		orderDate = time.Now().UTC()
	}

	// Phase 1: resolve products. No mutation yet.
	products := make([]*catalog.Product, 0, len(req.Items))
	lines := make([]pricing.LineItem, 0, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, apperror.NewValidation("quantity must be positive").
				WithDetail("field", "quantity").
				WithDetail("lineNo", i+1)
		}

		p, err := c.catalog.Lookup(ctx, req.VenueID, item.ProductID)
		if err != nil {
			return nil, err
		}
		if !p.IsActive {
			return nil, apperror.NewProductUnavailable(p.ID.String(), "inactive")
		}
		if !p.IsAvailable {
			return nil, apperror.NewProductUnavailable(p.ID.String(), "out_of_stock")
		}

		products = append(products, p)
		lines = append(lines, pricing.LineItem{
			ProductID:       p.ID,
			Name:            p.Name,
			Quantity:        item.Quantity,
			UnitPrice:       p.Price,
			TaxRatePercent:  p.TaxRatePercent,
			TaxMode:         p.TaxMode,
			DiscountPercent: p.DiscountPercent,
		})
	}

	// Phase 2: price. Still no mutation.
	priced, err := pricing.Price(lines, req.Currency)
	if err != nil {
		return nil, err
	}

	// Phase 3: FIFO deduction per stock-tracked line. Failures here are
	// recorded as warnings, never surfaced as settlement errors: stock
	// bookkeeping must not block a sale that already happened.
	var warnings []StockWarning
	for i, p := range products {
		if !p.StockTracked {
			continue
		}
		qty := req.Items[i].Quantity
		res, err := c.ledgers.DeductForSale(ctx, req.VenueID, p.ID, qty, orderDate)
		if err != nil {
			logger.Warn(ctx, "stock deduction failed, sale proceeds",
				"venue_id", req.VenueID,
				"product_id", p.ID,
				"quantity", qty,
				"error", err,
			)
			appErr, ok := apperror.AsAppError(err)
			if !ok {
				appErr = apperror.NewDatabase(err)
			}
			warnings = append(warnings, newStockWarning(appErr, p.ID,
				fmt.Sprintf("stock deduction failed for %s", p.Name)))
			continue
		}
		if res.Shortfall > 0 {
			short := apperror.NewInsufficientStock(p.ID.String(), qty, qty-res.Shortfall)
			warnings = append(warnings, newStockWarning(short, p.ID,
				fmt.Sprintf("stock shortfall of %d for %s", res.Shortfall, p.Name)))
		}
		for _, saveErr := range res.SaveErrors {
			warnings = append(warnings, newStockWarning(apperror.NewDatabase(saveErr), p.ID,
				fmt.Sprintf("ledger save deferred for %s", p.Name)))
		}
	}

	// Phase 4: number and append. The append is fatal on failure.
	number, err := c.numbers.NextOrderNumber(ctx, req.VenueID, orderDate)
	if err != nil {
		return nil, fmt.Errorf("assign order number: %w", err)
	}

	order := journal.NewOrder(req.VenueID, number, req.Channel, priced, req.PaymentMethod)
	order.Customer = req.Customer
	order.Notes = req.Notes

	if err := c.journal.Append(ctx, order); err != nil {
		return nil, err
	}

	c.fireNotification(ctx, order)

	return &CreateOrderResult{
		OrderID:       order.ID,
		Number:        order.Number,
		Status:        order.Status,
		Pricing:       priced,
		StockWarnings: warnings,
	}, nil
}

func (c *Coordinator) fireNotification(ctx context.Context, o *journal.Order) {
	if c.notifier == nil {
		return
	}
	err := c.notifier.Notify(ctx, notify.Event{
		OrderID:     o.ID.String(),
		OrderNumber: o.Number,
		VenueID:     o.VenueID.String(),
		Status:      string(o.Status),
	})
	if err != nil {
		logger.Warn(ctx, "order notification failed", "order_id", o.ID, "error", err)
	}
}
