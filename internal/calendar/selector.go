package calendar

import (
	"time"
)

// State is the selection state of one calendar view. It is plain data so session
// stores can persist it between requests.
type State struct {
	CurrentMonth       string `json:"currentMonth"`
	SelectedDate       string `json:"selectedDate"`
	ActiveFilter       Filter `json:"activeFilter"`
	HighlightedOrderID string `json:"highlightedOrderId,omitempty"`
}

// Selector applies navigation and selection transitions to a State.
// It is not safe for concurrent use; one view owns one Selector.
type Selector struct {
	state State
	now   func() time.Time
}

// NewSelector starts on today's month with today selected and no filter.
func NewSelector(now func() time.Time) *Selector {
	if now == nil {
		now = time.Now
	}
	today := Day(now())
	return &Selector{
		state: State{
			CurrentMonth: FirstOfMonth(today).Format(MonthLayout),
			SelectedDate: FormatDate(today),
			ActiveFilter: FilterAll,
		},
		now: now,
	}
}

// RestoreSelector resumes a previously saved state.
func RestoreSelector(state State, now func() time.Time) *Selector {
	if now == nil {
		now = time.Now
	}
	if state.ActiveFilter == "" {
		state.ActiveFilter = FilterAll
	}
	return &Selector{state: state, now: now}
}

// State returns a copy of the current state.
func (s *Selector) State() State {
	return s.state
}

// Month is the first day of the displayed month.
func (s *Selector) Month() time.Time {
	m, err := ParseMonth(s.state.CurrentMonth)
	if err != nil {
		return FirstOfMonth(Day(s.now()))
	}
	return m
}

// SelectedDate returns the selected day, if any.
func (s *Selector) SelectedDate() (time.Time, bool) {
	if s.state.SelectedDate == "" {
		return time.Time{}, false
	}
	d, err := ParseDate(s.state.SelectedDate)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// Filter is the active delivery-type filter.
func (s *Selector) Filter() Filter {
	return s.state.ActiveFilter
}

// Today is the current day according to the selector's clock.
func (s *Selector) Today() time.Time {
	return Day(s.now())
}

// GoToPreviousMonth pages the grid back one month. The selection is kept.
func (s *Selector) GoToPreviousMonth() {
	s.setMonth(s.Month().AddDate(0, -1, 0))
}

// GoToNextMonth pages the grid forward one month.
func (s *Selector) GoToNextMonth() {
	s.setMonth(s.Month().AddDate(0, 1, 0))
}

// GoToToday pages to the current month. The selected date is left alone.
func (s *Selector) GoToToday() {
	s.setMonth(FirstOfMonth(s.Today()))
}

// SelectDate never re-pages the grid, even for a padding day of the previous month.
func (s *Selector) SelectDate(d time.Time) {
	s.state.SelectedDate = FormatDate(Day(d))
}

// ClearSelection drops the selected date.
func (s *Selector) ClearSelection() {
	s.state.SelectedDate = ""
}

// SetFilter sets the delivery type filter. An empty filter means FilterAll.
func (s *Selector) SetFilter(f Filter) {
	if f == "" {
		f = FilterAll
	}
	s.state.ActiveFilter = f
}

// HighlightOrder moves the list/map cursor. An empty id clears it.
func (s *Selector) HighlightOrder(id string) {
	s.state.HighlightedOrderID = id
}

func (s *Selector) setMonth(t time.Time) {
	s.state.CurrentMonth = FirstOfMonth(t).Format(MonthLayout)
}
