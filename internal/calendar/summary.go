package calendar

import (
	"time"

	"github.com/shopspring/decimal"
)

// DayTotals is the per-day line of a month summary.
type DayTotals struct {
	Date string `json:"date"`
	Totals
}

// Summary aggregates one month of orders for the dashboard overview.
type Summary struct {
	Month          string                  `json:"month"`
	Filter         Filter                  `json:"filter"`
	Totals         Totals                  `json:"totals"`
	Billable       int                     `json:"billable"`
	AverageOrder   decimal.Decimal         `json:"averageOrder"`
	ByStatus       map[Status]int          `json:"byStatus"`
	ByDeliveryType map[DeliveryType]Totals `json:"byDeliveryType"`
	ByProviderType map[ProviderType]Totals `json:"byProviderType"`
	Days           []DayTotals             `json:"days"`
	BusiestDay     *DayTotals              `json:"busiestDay,omitempty"`
}

// Summarize walks every day of month and totals the orders that pass filter.
// Cancelled orders are counted but do not contribute revenue, and
// AverageOrder is revenue over the billable (non-cancelled) orders only.
func Summarize(month time.Time, agg *Aggregator, filter Filter) Summary {
	first := FirstOfMonth(month)
	last := first.AddDate(0, 1, -1)

	s := Summary{
		Month:          first.Format(MonthLayout),
		Filter:         filter,
		Totals:         Totals{SumAmount: decimal.Zero},
		AverageOrder:   decimal.Zero,
		ByStatus:       make(map[Status]int),
		ByDeliveryType: make(map[DeliveryType]Totals),
		ByProviderType: make(map[ProviderType]Totals),
		Days:           []DayTotals{},
	}

	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		orders := agg.OrdersOnDate(d, filter)
		if len(orders) == 0 {
			continue
		}
		billable := make([]Order, 0, len(orders))
		for _, o := range orders {
			s.ByStatus[o.Status]++
			s.ByDeliveryType[o.DeliveryType] = addOrder(s.ByDeliveryType[o.DeliveryType], o)
			s.ByProviderType[o.ProviderType] = addOrder(s.ByProviderType[o.ProviderType], o)
			if o.Status != StatusCancelled {
				billable = append(billable, o)
			}
		}
		day := DayTotals{Date: FormatDate(d), Totals: TotalAndRevenue(billable)}
		day.Count = len(orders)
		s.Days = append(s.Days, day)

		s.Totals.Count += day.Count
		s.Billable += len(billable)
		s.Totals.SumAmount = s.Totals.SumAmount.Add(day.SumAmount)
		if s.BusiestDay == nil || day.Count > s.BusiestDay.Count {
			busiest := day
			s.BusiestDay = &busiest
		}
	}
	if s.Billable > 0 {
		s.AverageOrder = s.Totals.SumAmount.Div(decimal.NewFromInt(int64(s.Billable))).Round(2)
	}
	return s
}

func addOrder(t Totals, o Order) Totals {
	t.Count++
	if o.Status != StatusCancelled {
		t.SumAmount = t.SumAmount.Add(o.Amount)
	}
	return t
}
