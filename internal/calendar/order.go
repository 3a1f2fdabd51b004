package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Date layouts used for index keys and month paging.
const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

// ErrInvalidInput marks caller contract violations (malformed dates, unknown enum values).
var ErrInvalidInput = errors.New("invalid input")

// DeliveryType is how an order reaches the customer.
type DeliveryType string

const (
	Pickup   DeliveryType = "Pickup"
	Delivery DeliveryType = "Delivery"
)

// Status is the current fulfilment state of an order. Delivered and Cancelled are terminal.
type Status string

const (
	StatusPreparing Status = "Preparing"
	StatusReady     Status = "Ready"
	StatusPickedUp  Status = "PickedUp"
	StatusDelivered Status = "Delivered"
	StatusCancelled Status = "Cancelled"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusPreparing, StatusReady, StatusPickedUp, StatusDelivered, StatusCancelled}

// Terminal reports whether no further status change is expected.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// ProviderType is who cooks the meal.
type ProviderType string

const (
	Vendor   ProviderType = "Vendor"
	HomeChef ProviderType = "HomeChef"
)

// Filter restricts order lists by delivery type.
type Filter string

const (
	FilterAll      Filter = "All"
	FilterPickup   Filter = "Pickup"
	FilterDelivery Filter = "Delivery"
)

// Filters lists the selectable filters.
var Filters = []Filter{FilterAll, FilterPickup, FilterDelivery}

// Point is a geographic position.
type Point struct {
	Lng float64 `json:"lng" yaml:"lng"`
	Lat float64 `json:"lat" yaml:"lat"`
}

// Order is a read-only record of a scheduled meal order.
type Order struct {
	ID            string          `json:"id" yaml:"id"`
	ScheduledDate string          `json:"scheduledDate" yaml:"date"`
	TimeLabel     string          `json:"time" yaml:"time"`
	Customer      string          `json:"customer" yaml:"customer"`
	Items         int             `json:"items" yaml:"items"`
	DeliveryType  DeliveryType    `json:"type" yaml:"type"`
	Status        Status          `json:"status" yaml:"status"`
	ProviderType  ProviderType    `json:"providerType" yaml:"provider"`
	Amount        decimal.Decimal `json:"amount" yaml:"amount"`
	Coordinates   *Point          `json:"coordinates,omitempty" yaml:"coordinates,omitempty"`
}

// Matches reports whether the order passes the delivery-type filter.
func (o Order) Matches(f Filter) bool {
	return f == FilterAll || f == "" || string(o.DeliveryType) == string(f)
}

// Validate checks the enum fields and the amount of an order.
func (o Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("%w: order id is empty", ErrInvalidInput)
	}
	if _, err := ParseDate(o.ScheduledDate); err != nil {
		return err
	}
	if _, err := ParseDeliveryType(string(o.DeliveryType)); err != nil {
		return err
	}
	if _, err := ParseStatus(string(o.Status)); err != nil {
		return err
	}
	if _, err := ParseProviderType(string(o.ProviderType)); err != nil {
		return err
	}
	if o.Amount.IsNegative() {
		return fmt.Errorf("%w: negative amount %s for order %s", ErrInvalidInput, o.Amount, o.ID)
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD date into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidInput, s)
	}
	return t, nil
}

// ParseMonth parses YYYY-MM into the first day of that month.
func ParseMonth(s string) (time.Time, error) {
	t, err := time.Parse(MonthLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: month %q", ErrInvalidInput, s)
	}
	return t, nil
}

// FormatDate renders the index key of a day.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Day truncates t to its calendar day in UTC, keeping the wall-clock date of t's location.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FirstOfMonth returns day 1 of t's month.
func FirstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ParseFilter accepts "all", "pickup" or "delivery" in any case. Empty means All.
func ParseFilter(s string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return FilterAll, nil
	case "pickup":
		return FilterPickup, nil
	case "delivery":
		return FilterDelivery, nil
	}
	return "", fmt.Errorf("%w: filter %q", ErrInvalidInput, s)
}

// ParseDeliveryType accepts "pickup" or "delivery" in any case.
func ParseDeliveryType(s string) (DeliveryType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pickup":
		return Pickup, nil
	case "delivery":
		return Delivery, nil
	}
	return "", fmt.Errorf("%w: delivery type %q", ErrInvalidInput, s)
}

// ParseStatus matches s against Statuses loosely, so "picked up" and
// "PICKED_UP" are both StatusPickedUp.
func ParseStatus(s string) (Status, error) {
	key := strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s))
	for _, st := range Statuses {
		if strings.ToLower(string(st)) == key {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: status %q", ErrInvalidInput, s)
}

// ParseProviderType accepts "vendor", "home chef" or the short "chef".
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)) {
	case "vendor":
		return Vendor, nil
	case "homechef", "chef":
		return HomeChef, nil
	}
	return "", fmt.Errorf("%w: provider type %q", ErrInvalidInput, s)
}
