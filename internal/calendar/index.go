package calendar

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"
)

// ErrDuplicateOrder is returned when two orders share an ID.
var ErrDuplicateOrder = errors.New("duplicate order id")

// Reader is the read side of the order index the aggregator depends on.
type Reader interface {
	// Bucket returns the orders scheduled on date (YYYY-MM-DD) in insertion order.
	Bucket(date string) []Order
}

// Query selects orders by date range and delivery type. From and To are inclusive
// YYYY-MM-DD dates; an empty bound is open. Limit 0 means no limit.
type Query struct {
	From   string
	To     string
	Filter Filter
	Offset int
	Limit  int
}

// Match reports whether o falls inside the query's range and filter.
func (q Query) Match(o Order) bool {
	if q.From != "" && o.ScheduledDate < q.From {
		return false
	}
	if q.To != "" && o.ScheduledDate > q.To {
		return false
	}
	return o.Matches(q.Filter)
}

// Page applies Offset and Limit to an already matched slice.
func (q Query) Page(orders []Order) []Order {
	if q.Offset >= len(orders) {
		return []Order{}
	}
	if q.Offset > 0 {
		orders = orders[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(orders) {
		orders = orders[:q.Limit]
	}
	return orders
}

// Source is an order index provider, such as a file or database store.
type Source interface {
	Range(ctx context.Context, q Query) ([]Order, error)
}

// Index is an immutable date-keyed snapshot of orders.
type Index struct {
	buckets map[string][]Order
	byID    map[string]Order
}

// NewIndex groups orders by scheduled date, keeping their relative order.
func NewIndex(orders []Order) (*Index, error) {
	ix := &Index{
		buckets: make(map[string][]Order),
		byID:    make(map[string]Order, len(orders)),
	}
	for _, o := range orders {
		if _, ok := ix.byID[o.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateOrder, o.ID)
		}
		ix.byID[o.ID] = o
		ix.buckets[o.ScheduledDate] = append(ix.buckets[o.ScheduledDate], o)
	}
	return ix, nil
}

// Bucket implements Reader. The returned slice is a copy.
func (ix *Index) Bucket(date string) []Order {
	if ix == nil {
		return nil
	}
	return slices.Clone(ix.buckets[date])
}

// Order looks an order up by ID.
func (ix *Index) Order(id string) (Order, bool) {
	if ix == nil {
		return Order{}, false
	}
	o, ok := ix.byID[id]
	return o, ok
}

// Len is the number of orders in the index.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.byID)
}

// Dates returns the dates with a non-empty bucket, ascending.
func (ix *Index) Dates() []string {
	if ix == nil {
		return nil
	}
	dates := make([]string, 0, len(ix.buckets))
	for d, orders := range ix.buckets {
		if len(orders) > 0 {
			dates = append(dates, d)
		}
	}
	sort.Strings(dates)
	return dates
}

// LoadIndex reads every order between from and to (inclusive) from src into an Index.
func LoadIndex(ctx context.Context, src Source, from, to time.Time) (*Index, error) {
	orders, err := src.Range(ctx, Query{From: FormatDate(from), To: FormatDate(to), Filter: FilterAll})
	if err != nil {
		return nil, fmt.Errorf("load orders %s..%s: %w", FormatDate(from), FormatDate(to), err)
	}
	return NewIndex(orders)
}

// GridRange is the date span a month grid touches, padding included.
func GridRange(month time.Time) (time.Time, time.Time) {
	first := FirstOfMonth(month)
	last := first.AddDate(0, 1, -1)
	return first.AddDate(0, 0, -int(first.Weekday())), last
}
