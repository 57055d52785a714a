package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"venuepos/internal/core/apperror"
	"venuepos/internal/core/id"
	"venuepos/internal/domain/ledger"
	"venuepos/internal/infrastructure/http/v1/dto"
	"venuepos/internal/infrastructure/storage/postgres"
	"venuepos/pkg/logger"
)

// parseProductID validates a product ID carried in a request body.
func parseProductID(s string) (id.ID, error) {
	productID, err := id.Parse(s)
	if err != nil {
		return id.Nil(), apperror.NewValidation("invalid product id").
			WithDetail("field", "productId").
			WithDetail("value", s)
	}
	return productID, nil
}

// StockHandler serves stock ledger endpoints.
type StockHandler struct {
	*BaseHandler
	ledgers *ledger.Service
	audit   *postgres.AuditService
}

// NewStockHandler creates a stock handler. audit may be nil.
func NewStockHandler(base *BaseHandler, ledgers *ledger.Service, audit *postgres.AuditService) *StockHandler {
	return &StockHandler{
		BaseHandler: base,
		ledgers:     ledgers,
		audit:       audit,
	}
}

// logAudit records a stock trail entry. Trail failures here never fail
// the request: the movement itself is already committed in the ledger.
func (h *StockHandler) logAudit(c *gin.Context, venueID, productID id.ID, action postgres.AuditAction, changes map[string]any) {
	if h.audit == nil {
		return
	}
	ctx := c.Request.Context()
	if err := h.audit.LogChange(ctx, venueID, "stock_ledger", productID, action, changes); err != nil {
		logger.Warn(ctx, "stock audit write failed", "product_id", productID, "error", err)
	}
}

// AddStock records a received lot.
// POST /venues/:venueId/products/:productId/stock
func (h *StockHandler) AddStock(c *gin.Context) {
	venueID, ok := h.ParseID(c, "venueId")
	if !ok {
		return
	}
	productID, ok := h.ParseID(c, "productId")
	if !ok {
		return
	}

	var req dto.AddStockRequest
	if !h.BindJSON(c, &req) {
		return
	}

	date := time.Now().UTC()
	if req.Date != nil {
		date = *req.Date
	}

	l, err := h.ledgers.AddStock(c.Request.Context(), venueID, productID, req.Quantity, date, req.ExpiryDate)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.logAudit(c, venueID, productID, postgres.AuditActionStockAdded, map[string]any{
		"quantity":    req.Quantity,
		"date":        date,
		"expiry_date": req.ExpiryDate,
		"period":      l.Period(),
	})

	h.Created(c, dto.FromLedger(l))
}

// Wastage writes off stock as expired or damaged.
// POST /venues/:venueId/products/:productId/stock/wastage
func (h *StockHandler) Wastage(c *gin.Context) {
	venueID, ok := h.ParseID(c, "venueId")
	if !ok {
		return
	}
	productID, ok := h.ParseID(c, "productId")
	if !ok {
		return
	}

	var req dto.WastageRequest
	if !h.BindJSON(c, &req) {
		return
	}

	date := time.Now().UTC()
	if req.Date != nil {
		date = *req.Date
	}

	result, err := h.ledgers.RecordWastage(c.Request.Context(), venueID, productID,
		req.Quantity, date, ledger.MovementKind(req.Kind), req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.logAudit(c, venueID, productID, postgres.AuditActionWastage, map[string]any{
		"quantity": req.Quantity,
		"kind":     req.Kind,
		"date":     date,
		"reason":   req.Reason,
	})

	h.OK(c, dto.FromLedger(result.Ledger))
}

// Expire writes off the remainder of every lapsed lot.
// POST /venues/:venueId/products/:productId/stock/expire
func (h *StockHandler) Expire(c *gin.Context) {
	venueID, ok := h.ParseID(c, "venueId")
	if !ok {
		return
	}
	productID, ok := h.ParseID(c, "productId")
	if !ok {
		return
	}

	var req dto.ExpireRequest
	if c.Request.ContentLength > 0 && !h.BindJSON(c, &req) {
		return
	}

	asOf := time.Now().UTC()
	if req.AsOf != nil {
		asOf = *req.AsOf
	}

	result, err := h.ledgers.ExpireLots(c.Request.Context(), venueID, productID, asOf)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := dto.ExpireResponse{
		ProductID: productID.String(),
		Expired:   result.Expired,
	}
	if result.Ledger != nil {
		l := dto.FromLedger(result.Ledger)
		resp.Ledger = &l

		h.logAudit(c, venueID, productID, postgres.AuditActionWastage, map[string]any{
			"quantity": result.Expired,
			"kind":     string(ledger.MovementExpired),
			"date":     asOf,
			"reason":   "expiry sweep",
		})
	}

	h.OK(c, resp)
}

// Availability reports drawable stock across all periods.
// GET /venues/:venueId/products/:productId/stock/availability
func (h *StockHandler) Availability(c *gin.Context) {
	venueID, ok := h.ParseID(c, "venueId")
	if !ok {
		return
	}
	productID, ok := h.ParseID(c, "productId")
	if !ok {
		return
	}

	available, err := h.ledgers.Availability(c.Request.Context(), venueID, productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.AvailabilityResponse{
		ProductID: productID.String(),
		Available: available,
	})
}

// History returns the full monthly ledger history, oldest first.
// GET /venues/:venueId/products/:productId/stock/history
func (h *StockHandler) History(c *gin.Context) {
	venueID, ok := h.ParseID(c, "venueId")
	if !ok {
		return
	}
	productID, ok := h.ParseID(c, "productId")
	if !ok {
		return
	}

	ledgers, err := h.ledgers.History(c.Request.Context(), venueID, productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := dto.HistoryResponse{
		ProductID: productID.String(),
		Ledgers:   make([]dto.LedgerResponse, 0, len(ledgers)),
	}
	for _, l := range ledgers {
		resp.Ledgers = append(resp.Ledgers, dto.FromLedger(l))
	}

	h.OK(c, resp)
}
