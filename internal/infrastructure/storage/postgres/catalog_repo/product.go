// Package catalog_repo provides the PostgreSQL implementation of the
// product catalog.
package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"venuepos/internal/core/apperror"
	"venuepos/internal/core/id"
	"venuepos/internal/domain/catalog"
	"venuepos/internal/infrastructure/storage/postgres"
)

const productsTable = "products"

// ProductRepo implements catalog.Catalog over PostgreSQL.
type ProductRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewProductRepo creates a new product repository.
func NewProductRepo(txManager *postgres.TxManager) *ProductRepo {
	return &ProductRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var productColumns = []string{
	"id", "venue_id", "name", "price", "tax_rate_percent", "tax_mode",
	"discount_percent", "is_active", "is_available", "stock_tracked",
}

// Lookup returns one product scoped to a venue.
func (r *ProductRepo) Lookup(ctx context.Context, venueID, productID id.ID) (*catalog.Product, error) {
	q := r.builder.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{
			"id":       productID,
			"venue_id": venueID,
		}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var p catalog.Product
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("product", productID.String())
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return &p, nil
}

// ListByVenue returns the venue's active products, for menu rendering.
func (r *ProductRepo) ListByVenue(ctx context.Context, venueID id.ID) ([]*catalog.Product, error) {
	q := r.builder.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{
			"venue_id":  venueID,
			"is_active": true,
		}).
		OrderBy("name")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var products []*catalog.Product
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &products, sql, args...); err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}

	return products, nil
}

// Ensure interface compliance.
var _ catalog.Catalog = (*ProductRepo)(nil)
