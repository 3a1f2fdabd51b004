package mapview

import (
	"sync"

	"github.com/tiffix/order-calendar/internal/calendar"
)

// Marker is one order pin on the map.
type Marker struct {
	OrderID     string          `json:"orderId"`
	Position    calendar.Point  `json:"position"`
	Status      calendar.Status `json:"status"`
	Label       string          `json:"label"`
	Highlighted bool            `json:"highlighted,omitempty"`
}

// Surface is a map renderer. Calls are fire-and-forget; a newer marker set
// replaces an older one that has not been drawn yet.
type Surface interface {
	ShowMarkers(markers []Marker)
	OnMarkerClick(fn func(orderID string))
	FlyTo(p calendar.Point)
}

// Markers builds pins for the orders that carry coordinates.
func Markers(orders []calendar.Order, highlighted string) []Marker {
	markers := make([]Marker, 0, len(orders))
	for _, o := range orders {
		if o.Coordinates == nil {
			continue
		}
		label := o.ID
		if o.Customer != "" {
			label += " " + o.Customer
		}
		markers = append(markers, Marker{
			OrderID:     o.ID,
			Position:    *o.Coordinates,
			Status:      o.Status,
			Label:       label,
			Highlighted: highlighted != "" && o.ID == highlighted,
		})
	}
	return markers
}

// Sync pushes the filtered order list to s and centres on the highlighted order.
func Sync(s Surface, orders []calendar.Order, highlighted string) {
	if s == nil {
		return
	}
	s.ShowMarkers(Markers(orders, highlighted))
	if highlighted == "" {
		return
	}
	for _, o := range orders {
		if o.ID == highlighted && o.Coordinates != nil {
			s.FlyTo(*o.Coordinates)
			return
		}
	}
}

// Noop is the surface used when no map is configured.
type Noop struct{}

func (Noop) ShowMarkers([]Marker)       {}
func (Noop) OnMarkerClick(func(string)) {}
func (Noop) FlyTo(calendar.Point)       {}

// Recorder keeps what was pushed to it, for headless use and tests.
type Recorder struct {
	mu      sync.Mutex
	markers []Marker
	flights []calendar.Point
	onClick func(string)
}

func (r *Recorder) ShowMarkers(markers []Marker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markers = append([]Marker(nil), markers...)
}

func (r *Recorder) OnMarkerClick(fn func(string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onClick = fn
}

func (r *Recorder) FlyTo(p calendar.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flights = append(r.flights, p)
}

// Click simulates a marker click.
func (r *Recorder) Click(orderID string) {
	r.mu.Lock()
	fn := r.onClick
	r.mu.Unlock()
	if fn != nil {
		fn(orderID)
	}
}

// Markers returns the last marker set shown.
func (r *Recorder) Markers() []Marker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Marker(nil), r.markers...)
}

// Flights returns every FlyTo target in call order.
func (r *Recorder) Flights() []calendar.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]calendar.Point(nil), r.flights...)
}
