package app

import (
	"github.com/tiffix/order-calendar/internal/calendar"
	"github.com/tiffix/order-calendar/internal/mapview"
)

// Constants
const (
	// Error messages
	ErrInvalidDateFormat = "Invalid date format"
	ErrInvalidMonth      = "Invalid month"
	ErrInvalidFilter     = "Invalid filter"
	ErrInvalidFormat     = "Invalid format"
	ErrInternalServer    = "Internal server error"
	ErrMapDisabled       = "Map disabled"

	// ICS constants
	ICSProductID = "-//Tiffix//Vendor Order Calendar//EN"
	ICSDomain    = "calendar.tiffix.in"
)

// View is everything a calendar screen renders for one session.
type View struct {
	SessionID   string           `json:"sessionId,omitempty"`
	State       calendar.State   `json:"state"`
	Today       string           `json:"today"`
	Grid        calendar.Grid    `json:"grid"`
	Orders      []calendar.Order `json:"orders"`
	Totals      calendar.Totals  `json:"totals"`
	Highlighted *calendar.Order  `json:"highlighted,omitempty"`
	MapEnabled  bool             `json:"mapEnabled"`
	Markers     []mapview.Marker `json:"markers,omitempty"`
}

// DayOrders is the stateless order list of one date.
type DayOrders struct {
	Date    string           `json:"date"`
	Filter  calendar.Filter  `json:"filter"`
	Holiday string           `json:"holiday,omitempty"`
	Orders  []calendar.Order `json:"orders"`
	Totals  calendar.Totals  `json:"totals"`
}

type selectRequest struct {
	Date string `json:"date"`
}

type filterRequest struct {
	Filter string `json:"filter"`
}

type highlightRequest struct {
	OrderID string `json:"orderId"`
}

// Edit mode payloads
type addOrderRequest struct {
	ID          string          `json:"id" validate:"omitempty,max=32"`
	Date        string          `json:"date" validate:"required,datetime=2006-01-02"`
	Time        string          `json:"time" validate:"max=16"`
	Customer    string          `json:"customer" validate:"required,max=120"`
	Items       int             `json:"items" validate:"gte=1,lte=100"`
	Type        string          `json:"type" validate:"required,oneof=Pickup Delivery"`
	Status      string          `json:"status" validate:"omitempty,oneof=Preparing Ready PickedUp Delivered Cancelled"`
	Provider    string          `json:"providerType" validate:"omitempty,oneof=Vendor HomeChef"`
	Amount      string          `json:"amount" validate:"required,numeric"`
	Coordinates *calendar.Point `json:"coordinates" validate:"omitempty"`
}

type deleteOrderRequest struct {
	ID string `json:"id" validate:"required"`
}

type moveOrderRequest struct {
	ID      string `json:"id" validate:"required"`
	NewDate string `json:"new_date" validate:"required,datetime=2006-01-02"`
}

type statusRequest struct {
	ID     string `json:"id" validate:"required"`
	Status string `json:"status" validate:"required,oneof=Preparing Ready PickedUp Delivered Cancelled"`
}
