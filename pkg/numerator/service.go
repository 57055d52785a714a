// Package numerator provides order auto-numbering.
//
// Numbers are venue-and-day scoped: ORD-YYYYMMDD-NNNN. The sequence is a
// reserved atomic counter per (venue, day), advanced by a single
// UPSERT + RETURNING round trip, so concurrent order creation can never
// mint the same number, unlike counting existing same-day orders at
// creation time.
package numerator

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"venuepos/internal/core/id"
)

// Querier interface for database operations.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Service provides order numbering functionality.
type Service struct {
	querier Querier

	// prefix defaults to "ORD".
	prefix string
}

// New creates a numerator service.
func New(querier Querier) *Service {
	return &Service{
		querier: querier,
		prefix:  "ORD",
	}
}

// NextOrderNumber allocates the next number for a venue on the given day.
// day should already be in venue-local time; the sequence resets at the
// venue's midnight because the key embeds the local calendar date.
func (s *Service) NextOrderNumber(ctx context.Context, venueID id.ID, day time.Time) (string, error) {
	if s == nil || s.querier == nil {
		return "", fmt.Errorf("numerator service is not initialized")
	}

	key := s.buildKey(venueID, day)

	var num int64
	err := s.querier.QueryRow(ctx, `
		INSERT INTO order_sequences (key, current_val)
		VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET current_val = order_sequences.current_val + 1
		RETURNING current_val
	`, key).Scan(&num)
	if err != nil {
		return "", fmt.Errorf("next order number: %w", err)
	}

	return s.formatNumber(day, num), nil
}

// buildKey creates the sequence key for a venue's calendar day.
func (s *Service) buildKey(venueID id.ID, day time.Time) string {
	return fmt.Sprintf("%s_%s_%s", s.prefix, venueID, day.Format("20060102"))
}

// formatNumber creates the final number string.
func (s *Service) formatNumber(day time.Time, num int64) string {
	return fmt.Sprintf("%s-%s-%04d", s.prefix, day.Format("20060102"), num)
}

// ParseSequence extracts the numeric suffix from a formatted order number.
// Returns -1 if parsing fails.
func ParseSequence(formatted string) int64 {
	var num int64
	if _, err := fmt.Sscanf(formatted, "%*[^-]-%*d-%d", &num); err == nil {
		return num
	}
	return -1
}
