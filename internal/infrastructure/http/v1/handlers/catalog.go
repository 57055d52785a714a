package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"venuepos/internal/core/id"
	"venuepos/internal/domain/catalog"
)

// ProductLister lists a venue's active products for menu rendering.
type ProductLister interface {
	ListByVenue(ctx context.Context, venueID id.ID) ([]*catalog.Product, error)
}

// CatalogHandler serves product catalog endpoints.
type CatalogHandler struct {
	*BaseHandler
	catalog catalog.Catalog
	lister  ProductLister
}

// NewCatalogHandler creates a catalog handler.
func NewCatalogHandler(base *BaseHandler, cat catalog.Catalog, lister ProductLister) *CatalogHandler {
	return &CatalogHandler{
		BaseHandler: base,
		catalog:     cat,
		lister:      lister,
	}
}

// List returns the venue's active products.
// GET /venues/:venueId/products
func (h *CatalogHandler) List(c *gin.Context) {
	venueID, ok := h.ParseID(c, "venueId")
	if !ok {
		return
	}

	products, err := h.lister.ListByVenue(c.Request.Context(), venueID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, products)
}

// Get returns one product.
// GET /venues/:venueId/products/:productId
func (h *CatalogHandler) Get(c *gin.Context) {
	venueID, ok := h.ParseID(c, "venueId")
	if !ok {
		return
	}
	productID, ok := h.ParseID(c, "productId")
	if !ok {
		return
	}

	p, err := h.catalog.Lookup(c.Request.Context(), venueID, productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, p)
}
