package calendar

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func order(id, date string, typ DeliveryType, status Status, amount int64) Order {
	return Order{
		ID:            id,
		ScheduledDate: date,
		DeliveryType:  typ,
		Status:        status,
		ProviderType:  Vendor,
		Amount:        decimal.NewFromInt(amount),
	}
}

func sampleOrders() []Order {
	return []Order{
		order("#1234", "2024-01-15", Delivery, StatusPreparing, 180),
		order("#1235", "2024-01-15", Pickup, StatusReady, 120),
		order("#1236", "2024-01-16", Delivery, StatusDelivered, 60),
		order("#1237", "2024-01-16", Delivery, StatusPreparing, 240),
		order("#1238", "2024-01-17", Pickup, StatusCancelled, 140),
	}
}

func sampleAggregator(t *testing.T) *Aggregator {
	t.Helper()
	ix, err := NewIndex(sampleOrders())
	require.NoError(t, err)
	return NewAggregator(ix)
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func ids(orders []Order) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}

func TestOrdersOnDate_MissingDate(t *testing.T) {
	agg := sampleAggregator(t)

	for _, d := range []string{"2024-01-14", "2024-02-15", "1999-12-31"} {
		day := mustDate(t, d)
		assert.Empty(t, agg.OrdersOnDate(day, FilterAll), d)
		assert.False(t, agg.HasOrders(day), d)
		assert.Empty(t, agg.StatusCounts(day), d)
	}
}

func TestOrdersOnDate_EveryOrderInItsBucket(t *testing.T) {
	agg := sampleAggregator(t)

	for _, o := range sampleOrders() {
		day := mustDate(t, o.ScheduledDate)

		all := agg.OrdersOnDate(day, FilterAll)
		count := 0
		for _, got := range all {
			if got.ID == o.ID {
				count++
			}
		}
		assert.Equal(t, 1, count, "order %s should appear once", o.ID)

		assert.Contains(t, ids(agg.OrdersOnDate(day, Filter(o.DeliveryType))), o.ID)

		other := FilterPickup
		if o.DeliveryType == Pickup {
			other = FilterDelivery
		}
		assert.NotContains(t, ids(agg.OrdersOnDate(day, other)), o.ID)
	}
}

func TestOrdersOnDate_KeepsInsertionOrder(t *testing.T) {
	ix, err := NewIndex([]Order{
		order("c", "2024-03-01", Delivery, StatusReady, 10),
		order("a", "2024-03-01", Delivery, StatusReady, 10),
		order("b", "2024-03-01", Pickup, StatusReady, 10),
	})
	require.NoError(t, err)

	agg := NewAggregator(ix)
	day := mustDate(t, "2024-03-01")
	assert.Equal(t, []string{"c", "a", "b"}, ids(agg.OrdersOnDate(day, FilterAll)))
	assert.Equal(t, []string{"c", "a"}, ids(agg.OrdersOnDate(day, FilterDelivery)))
}

func TestScenario_TwoOrdersOnJan15(t *testing.T) {
	agg := sampleAggregator(t)
	day := mustDate(t, "2024-01-15")

	all := agg.OrdersOnDate(day, FilterAll)
	require.Len(t, all, 2)
	totals := TotalAndRevenue(all)
	assert.Equal(t, 2, totals.Count)
	assert.True(t, totals.SumAmount.Equal(decimal.NewFromInt(300)), totals.SumAmount.String())

	delivery := agg.OrdersOnDate(day, FilterDelivery)
	require.Len(t, delivery, 1)
	assert.True(t, delivery[0].Amount.Equal(decimal.NewFromInt(180)))
}

func TestScenario_PickupFilterOnDeliveryOnlyDate(t *testing.T) {
	agg := sampleAggregator(t)
	sel := NewSelector(func() time.Time { return time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC) })
	sel.SetFilter(FilterPickup)

	day := mustDate(t, "2024-01-16")
	assert.Empty(t, agg.OrdersOnDate(day, sel.Filter()))
	assert.True(t, agg.HasOrders(day))
}

func TestStatusCounts_IgnoresFilter(t *testing.T) {
	agg := sampleAggregator(t)

	counts := agg.StatusCounts(mustDate(t, "2024-01-16"))
	assert.Equal(t, map[Status]int{StatusDelivered: 1, StatusPreparing: 1}, counts)
}

func TestTotalAndRevenue(t *testing.T) {
	empty := TotalAndRevenue(nil)
	assert.Equal(t, 0, empty.Count)
	assert.True(t, empty.SumAmount.IsZero())

	fractional := TotalAndRevenue([]Order{
		{Amount: decimal.RequireFromString("0.10")},
		{Amount: decimal.RequireFromString("0.20")},
	})
	assert.Equal(t, "0.3", fractional.SumAmount.String())
}

func TestNewIndex_DuplicateID(t *testing.T) {
	_, err := NewIndex([]Order{
		order("#1", "2024-01-01", Pickup, StatusReady, 1),
		order("#1", "2024-01-02", Pickup, StatusReady, 1),
	})
	require.ErrorIs(t, err, ErrDuplicateOrder)
}

func TestIndex_BucketIsACopy(t *testing.T) {
	ix, err := NewIndex(sampleOrders())
	require.NoError(t, err)

	bucket := ix.Bucket("2024-01-15")
	bucket[0].ID = "mutated"
	assert.Equal(t, "#1234", ix.Bucket("2024-01-15")[0].ID)
	assert.Equal(t, []string{"2024-01-15", "2024-01-16", "2024-01-17"}, ix.Dates())
	assert.Equal(t, 5, ix.Len())
}

func TestQuery_MatchAndPage(t *testing.T) {
	q := Query{From: "2024-01-16", To: "2024-01-17", Filter: FilterDelivery}
	var matched []Order
	for _, o := range sampleOrders() {
		if q.Match(o) {
			matched = append(matched, o)
		}
	}
	assert.Equal(t, []string{"#1236", "#1237"}, ids(matched))

	assert.Equal(t, []string{"#1237"}, ids(Query{Offset: 1, Limit: 1}.Page(matched)))
	assert.Empty(t, Query{Offset: 5}.Page(matched))
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    Filter
		wantErr bool
	}{
		{"", FilterAll, false},
		{"all", FilterAll, false},
		{"Pickup", FilterPickup, false},
		{"DELIVERY", FilterDelivery, false},
		{"drone", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFilter(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidInput, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestOrderValidate(t *testing.T) {
	ok := order("#1", "2024-01-01", Pickup, StatusReady, 10)
	assert.NoError(t, ok.Validate())

	bad := ok
	bad.Amount = decimal.NewFromInt(-1)
	assert.ErrorIs(t, bad.Validate(), ErrInvalidInput)

	bad = ok
	bad.ScheduledDate = "2024-13-01"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidInput)

	bad = ok
	bad.Status = "Lost"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidInput)
}
