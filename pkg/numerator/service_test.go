package numerator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"venuepos/internal/core/id"
)

// Mock objects
type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates the per-key UPSERT counter: every QueryRow on a
// key increments that key's sequence and returns the new value.
type mockQuerier struct {
	mu   sync.Mutex
	seqs map[string]int64
	err  error
}

func newMockQuerier() *mockQuerier {
	return &mockQuerier{seqs: make(map[string]int64)}
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return &mockRow{err: m.err}
	}

	key, _ := args[0].(string)
	m.seqs[key]++
	return &mockRow{val: m.seqs[key]}
}

func TestNextOrderNumber_Sequential(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	ctx := context.Background()
	venueID := id.New()
	day := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

	num, err := svc.NextOrderNumber(ctx, venueID, day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "ORD-20250115-0001" {
		t.Errorf("expected ORD-20250115-0001, got %s", num)
	}

	num, err = svc.NextOrderNumber(ctx, venueID, day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "ORD-20250115-0002" {
		t.Errorf("expected ORD-20250115-0002, got %s", num)
	}
}

func TestNextOrderNumber_KeyIsolation(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	ctx := context.Background()
	venueA, venueB := id.New(), id.New()
	day := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

	// Each venue counts independently.
	_, _ = svc.NextOrderNumber(ctx, venueA, day)
	_, _ = svc.NextOrderNumber(ctx, venueA, day)
	num, err := svc.NextOrderNumber(ctx, venueB, day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "ORD-20250115-0001" {
		t.Errorf("venue B must start at 0001, got %s", num)
	}

	// A new calendar day resets the sequence.
	nextDay := day.AddDate(0, 0, 1)
	num, err = svc.NextOrderNumber(ctx, venueA, nextDay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "ORD-20250116-0001" {
		t.Errorf("new day must start at 0001, got %s", num)
	}
}

func TestNextOrderNumber_Concurrent(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	ctx := context.Background()
	venueID := id.New()
	day := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

	const n = 30
	seen := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := svc.NextOrderNumber(ctx, venueID, day)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			seen <- num
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[string]bool)
	for num := range seen {
		if unique[num] {
			t.Errorf("duplicate number minted: %s", num)
		}
		unique[num] = true
	}
	if len(unique) != n {
		t.Errorf("expected %d unique numbers, got %d", n, len(unique))
	}
}

func TestNextOrderNumber_Uninitialized(t *testing.T) {
	var svc *Service
	if _, err := svc.NextOrderNumber(context.Background(), id.New(), time.Now()); err == nil {
		t.Error("nil service must error")
	}

	svc = New(nil)
	if _, err := svc.NextOrderNumber(context.Background(), id.New(), time.Now()); err == nil {
		t.Error("service without querier must error")
	}
}

func TestParseSequence(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"ORD-20250115-0001", 1},
		{"ORD-20250115-0042", 42},
		{"ORD-20250115-9999", 9999},
		{"garbage", -1},
		{"", -1},
	}
	for _, tt := range tests {
		if got := ParseSequence(tt.in); got != tt.want {
			t.Errorf("ParseSequence(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
