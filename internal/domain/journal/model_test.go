package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"venuepos/internal/core/id"
	"venuepos/internal/core/types"
	"venuepos/internal/domain/pricing"
)

func pricedOrder(total string) *pricing.PricedOrder {
	money := types.MustMoney(total)
	return &pricing.PricedOrder{
		Lines: []pricing.PricedLine{{
			LineItem: pricing.LineItem{
				ProductID: id.New(),
				Name:      "espresso",
				Quantity:  1,
				UnitPrice: money,
				TaxMode:   pricing.TaxInclusive,
			},
			LineTotal: money,
			Total:     money,
		}},
		Subtotal:   money,
		GrandTotal: money,
		Currency:   "USD",
	}
}

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusConfirmed},
		{StatusPending, StatusCancelled},
		{StatusConfirmed, StatusPreparing},
		{StatusConfirmed, StatusCancelled},
		{StatusPreparing, StatusReady},
		{StatusReady, StatusServed},
		{StatusServed, StatusCompleted},
	}
	for _, tt := range allowed {
		assert.True(t, CanTransition(tt.from, tt.to), "%s -> %s must be legal", tt.from, tt.to)
	}

	forbidden := []struct{ from, to Status }{
		{StatusPending, StatusReady},
		{StatusPending, StatusServed},
		{StatusPreparing, StatusCancelled}, // too late to cancel
		{StatusReady, StatusCancelled},
		{StatusServed, StatusCancelled},
		{StatusCompleted, StatusCancelled},
		{StatusCancelled, StatusConfirmed},
		{StatusCompleted, StatusPending},
		{StatusServed, StatusReady}, // no going back
	}
	for _, tt := range forbidden {
		assert.False(t, CanTransition(tt.from, tt.to), "%s -> %s must be illegal", tt.from, tt.to)
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusServed.Terminal())
	assert.False(t, StatusPending.Terminal())
}

func TestInitialStatusPerChannel(t *testing.T) {
	assert.Equal(t, StatusConfirmed, InitialStatus(ChannelCounter))
	assert.Equal(t, StatusPreparing, InitialStatus(ChannelQR))
}

func TestNewOrder(t *testing.T) {
	venueID := id.New()
	o := NewOrder(venueID, "ORD-20250115-0001", ChannelQR, pricedOrder("9.50"), "card")

	assert.Equal(t, StatusPreparing, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.False(t, o.StatusTimes[StatusPreparing].IsZero(), "initial status must be stamped")
	assert.True(t, o.GrandTotal().Equal(types.MustMoney("9.50")))
	assert.NoError(t, o.Validate(nil))
}

func TestOrderValidate(t *testing.T) {
	o := NewOrder(id.New(), "ORD-20250115-0001", ChannelCounter, pricedOrder("5.00"), "cash")

	o.Number = ""
	assert.Error(t, o.Validate(nil), "missing number")

	o = NewOrder(id.Nil(), "ORD-20250115-0001", ChannelCounter, pricedOrder("5.00"), "cash")
	assert.Error(t, o.Validate(nil), "missing venue")

	o = NewOrder(id.New(), "ORD-20250115-0001", ChannelCounter, pricedOrder("5.00"), "cash")
	o.Items = nil
	assert.Error(t, o.Validate(nil), "no items")
}

func TestRecompute(t *testing.T) {
	venueID := id.New()
	orders := []*Order{
		NewOrder(venueID, "ORD-20250115-0001", ChannelCounter, pricedOrder("10.00"), "cash"),
		NewOrder(venueID, "ORD-20250115-0002", ChannelCounter, pricedOrder("15.50"), "card"),
		NewOrder(venueID, "ORD-20250115-0003", ChannelQR, pricedOrder("4.50"), "card"),
	}

	agg := Recompute(venueID, orders)
	assert.Equal(t, int64(3), agg.TotalOrders)
	assert.True(t, agg.TotalRevenue.Equal(types.MustMoney("30.00")), "revenue = %s", agg.TotalRevenue)
	assert.Equal(t, int64(2), agg.StatusCounts[StatusConfirmed])
	assert.Equal(t, int64(1), agg.StatusCounts[StatusPreparing])
}

func TestAggregateEqual(t *testing.T) {
	venueID := id.New()
	a := Recompute(venueID, []*Order{
		NewOrder(venueID, "ORD-20250115-0001", ChannelCounter, pricedOrder("10.00"), "cash"),
	})
	b := Recompute(venueID, []*Order{
		NewOrder(venueID, "ORD-20250115-0002", ChannelCounter, pricedOrder("10.00"), "cash"),
	})
	assert.True(t, a.Equal(b))

	b.TotalRevenue = types.MustMoney("11.00")
	assert.False(t, a.Equal(b))

	// Zero-valued counts are equivalent to absent keys.
	c := Recompute(venueID, nil)
	c.StatusCounts[StatusServed] = 0
	assert.True(t, c.Equal(NewAggregate(venueID)))
}
