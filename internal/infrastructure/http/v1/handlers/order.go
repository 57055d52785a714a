package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"venuepos/internal/domain/journal"
	"venuepos/internal/domain/settlement"
	"venuepos/internal/infrastructure/http/v1/dto"
	"venuepos/internal/infrastructure/storage/postgres"
)

// OrderHandler serves order settlement and journal endpoints.
type OrderHandler struct {
	*BaseHandler
	coordinator *settlement.Coordinator
	journal     *journal.Service
	audit       *postgres.AuditService
}

// NewOrderHandler creates an order handler. audit may be nil, which
// disables the trail endpoint.
func NewOrderHandler(base *BaseHandler, coordinator *settlement.Coordinator, jrnl *journal.Service, audit *postgres.AuditService) *OrderHandler {
	return &OrderHandler{
		BaseHandler: base,
		coordinator: coordinator,
		journal:     jrnl,
		audit:       audit,
	}
}

// Create settles a new order.
// POST /venues/:venueId/orders
func (h *OrderHandler) Create(c *gin.Context) {
	venueID, ok := h.ParseID(c, "venueId")
	if !ok {
		return
	}

	var req dto.CreateOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}

	items := make([]settlement.RequestedItem, 0, len(req.Items))
	for _, item := range req.Items {
		productID, err := parseProductID(item.ProductID)
		if err != nil {
			h.Error(c, err)
			return
		}
		items = append(items, settlement.RequestedItem{
			ProductID: productID,
			Quantity:  item.Quantity,
		})
	}

	var customer *journal.CustomerInfo
	if req.Customer != nil {
		customer = &journal.CustomerInfo{Name: req.Customer.Name, Phone: req.Customer.Phone}
	}

	var orderDate time.Time
	if req.OrderDate != nil {
		orderDate = *req.OrderDate
	}

	result, err := h.coordinator.CreateOrder(c.Request.Context(), settlement.CreateOrderRequest{
		VenueID:       venueID,
		Channel:       journal.Channel(req.Channel),
		Items:         items,
		Customer:      customer,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
		Currency:      req.Currency,
		OrderDate:     orderDate,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, dto.FromCreateOrderResult(result))
}

// Get returns one order.
// GET /venues/:venueId/orders/:orderId
func (h *OrderHandler) Get(c *gin.Context) {
	venueID, ok := h.ParseID(c, "venueId")
	if !ok {
		return
	}
	orderID, ok := h.ParseID(c, "orderId")
	if !ok {
		return
	}

	order, err := h.journal.Get(c.Request.Context(), venueID, orderID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromOrder(order))
}

// List returns orders matching the filter, newest first.
// GET /venues/:venueId/orders
func (h *OrderHandler) List(c *gin.Context) {
	venueID, ok := h.ParseID(c, "venueId")
	if !ok {
		return
	}

	var q dto.ListOrdersQuery
	if !h.BindQuery(c, &q) {
		return
	}

	filter := journal.ListFilter{
		From:   q.From,
		To:     q.To,
		Search: q.Search,
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	if q.Status != "" {
		status := journal.Status(q.Status)
		filter.Status = &status
	}

	orders, total, err := h.journal.List(c.Request.Context(), venueID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.OrderResponse, 0, len(orders))
	for _, o := range orders {
		items = append(items, dto.FromOrder(o))
	}

	h.OK(c, dto.ListResponse{
		Items:      items,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// Transition moves an order to a new lifecycle status.
// POST /venues/:venueId/orders/:orderId/status
func (h *OrderHandler) Transition(c *gin.Context) {
	venueID, ok := h.ParseID(c, "venueId")
	if !ok {
		return
	}
	orderID, ok := h.ParseID(c, "orderId")
	if !ok {
		return
	}

	var req dto.TransitionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.journal.Transition(c.Request.Context(), venueID, orderID, journal.Status(req.Status))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.TransitionResponse{
		OrderID:   result.OrderID.String(),
		Status:    string(result.Status),
		UpdatedAt: result.UpdatedAt,
	})
}

// MarkPayment sets the order's payment status.
// POST /venues/:venueId/orders/:orderId/payment
func (h *OrderHandler) MarkPayment(c *gin.Context) {
	venueID, ok := h.ParseID(c, "venueId")
	if !ok {
		return
	}
	orderID, ok := h.ParseID(c, "orderId")
	if !ok {
		return
	}

	var req dto.PaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	err := h.journal.MarkPayment(c.Request.Context(), venueID, orderID, journal.PaymentStatus(req.Status))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.SuccessResponse{Success: true})
}

// Summary returns the venue's aggregate counters.
// GET /venues/:venueId/summary
func (h *OrderHandler) Summary(c *gin.Context) {
	venueID, ok := h.ParseID(c, "venueId")
	if !ok {
		return
	}

	agg, err := h.journal.Summary(c.Request.Context(), venueID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromAggregate(agg))
}

// VerifyAggregate recomputes the aggregate from the journal and compares
// it to the stored counters.
// POST /venues/:venueId/summary/verify
func (h *OrderHandler) VerifyAggregate(c *gin.Context) {
	venueID, ok := h.ParseID(c, "venueId")
	if !ok {
		return
	}

	if err := h.journal.VerifyAggregate(c.Request.Context(), venueID); err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.SuccessResponse{Success: true, Message: "aggregate matches journal"})
}

// AuditTrail returns the order's settlement trail, newest first.
// GET /venues/:venueId/orders/:orderId/audit
func (h *OrderHandler) AuditTrail(c *gin.Context) {
	venueID, ok := h.ParseID(c, "venueId")
	if !ok {
		return
	}
	orderID, ok := h.ParseID(c, "orderId")
	if !ok {
		return
	}

	// Resolve through the journal first so an unknown order is a clean 404
	// instead of an empty trail.
	if _, err := h.journal.Get(c.Request.Context(), venueID, orderID); err != nil {
		h.Error(c, err)
		return
	}

	limit := h.ParseIntQuery(c, "limit", 50)
	entries, err := h.audit.GetEntityHistory(c.Request.Context(), "order", orderID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, dto.FromAuditEntry(e))
	}
	h.OK(c, dto.ListResponse{Items: items, TotalCount: int64(len(items)), Limit: limit})
}
