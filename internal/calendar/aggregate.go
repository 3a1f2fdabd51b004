package calendar

import (
	"time"

	"github.com/shopspring/decimal"
)

// Totals is the order count and revenue of an order list.
type Totals struct {
	Count     int             `json:"count"`
	SumAmount decimal.Decimal `json:"sumAmount"`
}

// Aggregator derives per-date views over an order index. All methods are total:
// a date without a bucket behaves like a date with an empty one.
type Aggregator struct {
	index Reader
}

// NewAggregator reads buckets from index.
func NewAggregator(index Reader) *Aggregator {
	return &Aggregator{index: index}
}

// OrdersOnDate returns the orders on date that pass filter, in index order.
func (a *Aggregator) OrdersOnDate(date time.Time, filter Filter) []Order {
	bucket := a.index.Bucket(FormatDate(date))
	out := make([]Order, 0, len(bucket))
	for _, o := range bucket {
		if o.Matches(filter) {
			out = append(out, o)
		}
	}
	return out
}

// HasOrders ignores the active filter: day indicators show every order.
func (a *Aggregator) HasOrders(date time.Time) bool {
	return len(a.index.Bucket(FormatDate(date))) > 0
}

// StatusCounts tallies the unfiltered orders on date by status.
func (a *Aggregator) StatusCounts(date time.Time) map[Status]int {
	counts := make(map[Status]int)
	for _, o := range a.index.Bucket(FormatDate(date)) {
		counts[o.Status]++
	}
	return counts
}

// OrderCount is the unfiltered number of orders on date.
func (a *Aggregator) OrderCount(date time.Time) int {
	return len(a.index.Bucket(FormatDate(date)))
}

// TotalAndRevenue folds orders into a count and an exact amount sum.
func TotalAndRevenue(orders []Order) Totals {
	sum := decimal.Zero
	for _, o := range orders {
		sum = sum.Add(o.Amount)
	}
	return Totals{Count: len(orders), SumAmount: sum}
}
