// Package journal_repo provides the PostgreSQL implementation of the
// order journal. Order writes and the venue aggregate counters move in
// one transaction, so the derived totals can never drift from the
// journal under concurrency.
package journal_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"venuepos/internal/core/apperror"
	"venuepos/internal/core/id"
	"venuepos/internal/core/types"
	"venuepos/internal/domain/journal"
	"venuepos/internal/domain/pricing"
	"venuepos/internal/infrastructure/storage/postgres"
)

const (
	ordersTable = "orders"
	totalsTable = "venue_order_totals"
)

// JournalRepo implements journal.Repository.
type JournalRepo struct {
	txManager *postgres.TxManager
	audit     *postgres.AuditService
	builder   squirrel.StatementBuilderType
}

// NewJournalRepo creates a new order journal repository. When audit is
// non-nil, every append and status change writes a trail entry inside
// the same transaction.
func NewJournalRepo(txManager *postgres.TxManager, audit *postgres.AuditService) *JournalRepo {
	return &JournalRepo{
		txManager: txManager,
		audit:     audit,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// orderRow is the database projection of an order. Item snapshots,
// pricing, status timestamps and the customer block are jsonb columns.
type orderRow struct {
	ID            id.ID                        `db:"id"`
	VenueID       id.ID                        `db:"venue_id"`
	Number        string                       `db:"number"`
	Channel       journal.Channel              `db:"channel"`
	Items         []pricing.PricedLine         `db:"items"`
	Pricing       *pricing.PricedOrder         `db:"pricing"`
	PaymentMethod string                       `db:"payment_method"`
	PaymentStatus journal.PaymentStatus        `db:"payment_status"`
	Status        journal.Status               `db:"status"`
	StatusTimes   map[journal.Status]time.Time `db:"status_times"`
	Customer      *journal.CustomerInfo        `db:"customer"`
	Notes         string                       `db:"notes"`
	CreatedAt     time.Time                    `db:"created_at"`
}

func (r orderRow) toModel() *journal.Order {
	return &journal.Order{
		ID:            r.ID,
		VenueID:       r.VenueID,
		Number:        r.Number,
		Channel:       r.Channel,
		Items:         r.Items,
		Pricing:       r.Pricing,
		PaymentMethod: r.PaymentMethod,
		PaymentStatus: r.PaymentStatus,
		Status:        r.Status,
		StatusTimes:   r.StatusTimes,
		Customer:      r.Customer,
		Notes:         r.Notes,
		CreatedAt:     r.CreatedAt,
	}
}

var orderColumns = []string{
	"id", "venue_id", "number", "channel", "items", "pricing",
	"payment_method", "payment_status", "status", "status_times",
	"customer", "notes", "created_at",
}

// Append inserts the order and bumps the venue aggregate in one
// transaction.
func (r *JournalRepo) Append(ctx context.Context, o *journal.Order) error {
	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		q := r.builder.Insert(ordersTable).
			Columns(orderColumns...).
			Values(
				o.ID, o.VenueID, o.Number, o.Channel, o.Items, o.Pricing,
				o.PaymentMethod, o.PaymentStatus, o.Status, o.StatusTimes,
				o.Customer, o.Notes, o.CreatedAt,
			)

		sql, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}

		querier := r.txManager.GetQuerier(ctx)
		if _, err := querier.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		if err := r.bumpAggregate(ctx, o); err != nil {
			return err
		}

		if r.audit != nil {
			err := r.audit.LogChange(ctx, o.VenueID, "order", o.ID, postgres.AuditActionOrderCreated, map[string]any{
				"number":      o.Number,
				"channel":     o.Channel,
				"status":      o.Status,
				"grand_total": o.GrandTotal(),
			})
			if err != nil {
				return fmt.Errorf("audit order: %w", err)
			}
		}
		return nil
	})
}

// bumpAggregate upserts the venue totals row for a freshly appended order.
func (r *JournalRepo) bumpAggregate(ctx context.Context, o *journal.Order) error {
	sql := `
		INSERT INTO venue_order_totals (venue_id, total_orders, total_revenue, status_counts, updated_at)
		VALUES ($1, 1, $2, jsonb_build_object($3::text, 1), now())
		ON CONFLICT (venue_id) DO UPDATE SET
			total_orders  = venue_order_totals.total_orders + 1,
			total_revenue = venue_order_totals.total_revenue + EXCLUDED.total_revenue,
			status_counts = jsonb_set(
				venue_order_totals.status_counts,
				ARRAY[$3::text],
				(COALESCE(venue_order_totals.status_counts->>$3, '0')::bigint + 1)::text::jsonb
			),
			updated_at = now()
	`

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, o.VenueID, o.GrandTotal(), string(o.Status)); err != nil {
		return fmt.Errorf("bump aggregate: %w", err)
	}
	return nil
}

// UpdateStatus moves the order from → to and shifts the aggregate status
// counts atomically. The WHERE status = from clause is the optimistic
// guard: zero affected rows means either the order is gone or someone
// else moved it first.
func (r *JournalRepo) UpdateStatus(ctx context.Context, venueID, orderID id.ID, from, to journal.Status, at time.Time) error {
	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		sql := `
			UPDATE orders
			SET status = $1,
			    status_times = jsonb_set(status_times, ARRAY[$1::text], to_jsonb($2::timestamptz))
			WHERE id = $3 AND venue_id = $4 AND status = $5
		`

		querier := r.txManager.GetQuerier(ctx)
		tag, err := querier.Exec(ctx, sql, string(to), at, orderID, venueID, string(from))
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Disambiguate: missing order vs lost race.
			if _, err := r.Get(ctx, venueID, orderID); err != nil {
				return err
			}
			return apperror.NewConcurrentModification("order", orderID)
		}

		if err := r.shiftStatusCounts(ctx, venueID, from, to); err != nil {
			return err
		}

		if r.audit != nil {
			err := r.audit.LogChange(ctx, venueID, "order", orderID, postgres.AuditActionStatusChanged, map[string]any{
				"from": from,
				"to":   to,
				"at":   at,
			})
			if err != nil {
				return fmt.Errorf("audit status change: %w", err)
			}
		}
		return nil
	})
}

// shiftStatusCounts decrements the old status counter and increments the
// new one on the venue totals row.
func (r *JournalRepo) shiftStatusCounts(ctx context.Context, venueID id.ID, from, to journal.Status) error {
	sql := `
		UPDATE venue_order_totals
		SET status_counts = jsonb_set(
				jsonb_set(
					status_counts,
					ARRAY[$2::text],
					GREATEST(COALESCE(status_counts->>$2, '0')::bigint - 1, 0)::text::jsonb
				),
				ARRAY[$3::text],
				(COALESCE(status_counts->>$3, '0')::bigint + 1)::text::jsonb
			),
			updated_at = now()
		WHERE venue_id = $1
	`

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, venueID, string(from), string(to)); err != nil {
		return fmt.Errorf("shift status counts: %w", err)
	}
	return nil
}

// UpdatePayment sets the order's payment status. No aggregate is keyed
// on payment, so this is a single-row update.
func (r *JournalRepo) UpdatePayment(ctx context.Context, venueID, orderID id.ID, to journal.PaymentStatus) error {
	q := r.builder.Update(ordersTable).
		Set("payment_status", string(to)).
		Where(squirrel.Eq{
			"id":       orderID,
			"venue_id": venueID,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("order", orderID.String())
	}
	return nil
}

// Get returns one order from the venue's journal.
func (r *JournalRepo) Get(ctx context.Context, venueID, orderID id.ID) (*journal.Order, error) {
	q := r.builder.Select(orderColumns...).
		From(ordersTable).
		Where(squirrel.Eq{
			"id":       orderID,
			"venue_id": venueID,
		}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row orderRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("order", orderID.String())
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	return row.toModel(), nil
}

// List returns orders matching the filter, newest first, plus the total
// match count for pagination.
func (r *JournalRepo) List(ctx context.Context, venueID id.ID, f journal.ListFilter) ([]*journal.Order, int64, error) {
	where := r.filterConditions(venueID, f)

	countQ := r.builder.Select("COUNT(*)").From(ordersTable)
	for _, cond := range where {
		countQ = countQ.Where(cond)
	}

	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)

	var total int64
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	q := r.builder.Select(orderColumns...).From(ordersTable)
	for _, cond := range where {
		q = q.Where(cond)
	}
	q = q.OrderBy("created_at DESC", "number DESC")

	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query: %w", err)
	}

	var rows []orderRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("select orders: %w", err)
	}

	orders := make([]*journal.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, row.toModel())
	}
	return orders, total, nil
}

// filterConditions translates a ListFilter into squirrel predicates,
// shared between the page query and the count query.
func (r *JournalRepo) filterConditions(venueID id.ID, f journal.ListFilter) []squirrel.Sqlizer {
	conds := []squirrel.Sqlizer{squirrel.Eq{"venue_id": venueID}}

	if f.From != nil {
		conds = append(conds, squirrel.GtOrEq{"created_at": *f.From})
	}
	if f.To != nil {
		conds = append(conds, squirrel.Lt{"created_at": *f.To})
	}
	if f.Status != nil {
		conds = append(conds, squirrel.Eq{"status": string(*f.Status)})
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		conds = append(conds, squirrel.Or{
			squirrel.ILike{"number": pattern},
			squirrel.ILike{"customer->>'name'": pattern},
		})
	}

	return conds
}

// totalsRow is the database projection of a venue's aggregate counters.
type totalsRow struct {
	VenueID      id.ID                    `db:"venue_id"`
	TotalOrders  int64                    `db:"total_orders"`
	TotalRevenue types.Money              `db:"total_revenue"`
	StatusCounts map[journal.Status]int64 `db:"status_counts"`
}

// Aggregate returns the venue's counters, zero-valued when the venue has
// no orders yet.
func (r *JournalRepo) Aggregate(ctx context.Context, venueID id.ID) (*journal.Aggregate, error) {
	q := r.builder.Select("venue_id", "total_orders", "total_revenue", "status_counts").
		From(totalsTable).
		Where(squirrel.Eq{"venue_id": venueID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row totalsRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return journal.NewAggregate(venueID), nil
		}
		return nil, fmt.Errorf("get aggregate: %w", err)
	}

	counts := row.StatusCounts
	if counts == nil {
		counts = make(map[journal.Status]int64)
	}
	return &journal.Aggregate{
		VenueID:      row.VenueID,
		TotalOrders:  row.TotalOrders,
		TotalRevenue: row.TotalRevenue,
		StatusCounts: counts,
	}, nil
}

// Ensure interface compliance.
var _ journal.Repository = (*JournalRepo)(nil)
