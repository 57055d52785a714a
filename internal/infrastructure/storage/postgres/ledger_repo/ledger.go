// Package ledger_repo provides the PostgreSQL implementation of the
// monthly stock ledger repository. Movements are stored as a jsonb
// document per period row; concurrency is optimistic via the version
// column.
package ledger_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"venuepos/internal/core/apperror"
	"venuepos/internal/core/id"
	"venuepos/internal/domain/ledger"
	"venuepos/internal/infrastructure/storage/postgres"
)

const stockLedgersTable = "stock_ledgers"

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewLedgerRepo creates a new stock ledger repository.
func NewLedgerRepo(txManager *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// ledgerRow is the database projection of a monthly ledger. Movements
// land in a jsonb column and round-trip through pgx's JSON codec.
type ledgerRow struct {
	ID               id.ID                  `db:"id"`
	VenueID          id.ID                  `db:"venue_id"`
	ProductID        id.ID                  `db:"product_id"`
	Year             int                    `db:"year"`
	Month            int                    `db:"month"`
	CarryForward     int64                  `db:"carry_forward"`
	UsedCarryForward int64                  `db:"used_carry_forward"`
	Movements        []ledger.StockMovement `db:"movements"`
	Version          int                    `db:"version"`
	CreatedAt        time.Time              `db:"created_at"`
	UpdatedAt        time.Time              `db:"updated_at"`
}

func (r ledgerRow) toModel() *ledger.MonthlyStockLedger {
	movements := r.Movements
	if movements == nil {
		movements = make([]ledger.StockMovement, 0)
	}
	return &ledger.MonthlyStockLedger{
		ID:               r.ID,
		VenueID:          r.VenueID,
		ProductID:        r.ProductID,
		Year:             r.Year,
		Month:            r.Month,
		CarryForward:     r.CarryForward,
		UsedCarryForward: r.UsedCarryForward,
		Movements:        movements,
		Version:          r.Version,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

var ledgerColumns = []string{
	"id", "venue_id", "product_id", "year", "month",
	"carry_forward", "used_carry_forward", "movements",
	"version", "created_at", "updated_at",
}

// ListByProduct returns all period ledgers for (venue, product), oldest
// period first.
func (r *LedgerRepo) ListByProduct(ctx context.Context, venueID, productID id.ID) ([]*ledger.MonthlyStockLedger, error) {
	q := r.builder.Select(ledgerColumns...).
		From(stockLedgersTable).
		Where(squirrel.Eq{
			"venue_id":   venueID,
			"product_id": productID,
		}).
		OrderBy("year", "month")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []ledgerRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select ledgers: %w", err)
	}

	ledgers := make([]*ledger.MonthlyStockLedger, 0, len(rows))
	for _, row := range rows {
		ledgers = append(ledgers, row.toModel())
	}
	return ledgers, nil
}

// Get returns the ledger for one period.
func (r *LedgerRepo) Get(ctx context.Context, venueID, productID id.ID, year, month int) (*ledger.MonthlyStockLedger, error) {
	q := r.builder.Select(ledgerColumns...).
		From(stockLedgersTable).
		Where(squirrel.Eq{
			"venue_id":   venueID,
			"product_id": productID,
			"year":       year,
			"month":      month,
		}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row ledgerRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("stock ledger", fmt.Sprintf("%s/%04d-%02d", productID, year, month))
		}
		return nil, fmt.Errorf("get ledger: %w", err)
	}

	return row.toModel(), nil
}

// Create inserts a new period ledger. The unique constraint on
// (venue_id, product_id, year, month) turns a concurrent creation race
// into a CONCURRENT_MODIFICATION error the caller can retry with a Get.
func (r *LedgerRepo) Create(ctx context.Context, l *ledger.MonthlyStockLedger) error {
	q := r.builder.Insert(stockLedgersTable).
		Columns(ledgerColumns...).
		Values(
			l.ID, l.VenueID, l.ProductID, l.Year, l.Month,
			l.CarryForward, l.UsedCarryForward, l.Movements,
			l.Version, l.CreatedAt, l.UpdatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperror.NewConcurrentModification("stock ledger", l.ID)
		}
		return fmt.Errorf("insert ledger: %w", err)
	}

	return nil
}

// Save persists a mutated ledger via compare-and-swap on the version
// column. On success the in-memory version is advanced to match.
func (r *LedgerRepo) Save(ctx context.Context, l *ledger.MonthlyStockLedger) error {
	q := r.builder.Update(stockLedgersTable).
		Set("carry_forward", l.CarryForward).
		Set("used_carry_forward", l.UsedCarryForward).
		Set("movements", l.Movements).
		Set("version", l.Version+1).
		Set("updated_at", l.UpdatedAt).
		Where(squirrel.Eq{
			"id":      l.ID,
			"version": l.Version,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update ledger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("stock ledger", l.ID)
	}

	l.Version++
	return nil
}

// Ensure interface compliance.
var _ ledger.Repository = (*LedgerRepo)(nil)
