package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(y int, m time.Month, d int) func() time.Time {
	return func() time.Time { return time.Date(y, m, d, 15, 30, 0, 0, time.UTC) }
}

func TestNewSelector_Defaults(t *testing.T) {
	sel := NewSelector(fixedClock(2024, time.January, 15))

	st := sel.State()
	assert.Equal(t, "2024-01", st.CurrentMonth)
	assert.Equal(t, "2024-01-15", st.SelectedDate)
	assert.Equal(t, FilterAll, st.ActiveFilter)
	assert.Empty(t, st.HighlightedOrderID)
}

func TestSelector_MonthRoundTrip(t *testing.T) {
	for _, start := range []time.Time{
		time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC),
	} {
		sel := NewSelector(func() time.Time { return start })
		before := sel.State()

		sel.GoToNextMonth()
		sel.GoToPreviousMonth()
		assert.Equal(t, before, sel.State())
	}
}

func TestSelector_MonthPagingFromLongMonth(t *testing.T) {
	sel := NewSelector(fixedClock(2024, time.January, 31))

	sel.GoToNextMonth()
	assert.Equal(t, "2024-02", sel.State().CurrentMonth)
	sel.GoToNextMonth()
	assert.Equal(t, "2024-03", sel.State().CurrentMonth)

	sel.GoToPreviousMonth()
	sel.GoToPreviousMonth()
	sel.GoToPreviousMonth()
	assert.Equal(t, "2023-12", sel.State().CurrentMonth)
	assert.Equal(t, "2024-01-31", sel.State().SelectedDate, "paging keeps the selection")
}

func TestSelector_GoToToday(t *testing.T) {
	sel := NewSelector(fixedClock(2024, time.May, 2))
	sel.SelectDate(time.Date(2023, time.August, 9, 0, 0, 0, 0, time.UTC))
	sel.GoToPreviousMonth()
	sel.GoToPreviousMonth()

	sel.GoToToday()
	assert.Equal(t, "2024-05", sel.State().CurrentMonth)
	assert.Equal(t, "2023-08-09", sel.State().SelectedDate)
}

func TestSelector_SelectPaddingDayKeepsMonth(t *testing.T) {
	sel := NewSelector(fixedClock(2024, time.February, 10))

	sel.SelectDate(time.Date(2024, time.January, 29, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "2024-02", sel.State().CurrentMonth)
	d, ok := sel.SelectedDate()
	require.True(t, ok)
	assert.Equal(t, "2024-01-29", FormatDate(d))
}

func TestSelector_FilterAndHighlightAreIndependent(t *testing.T) {
	sel := NewSelector(fixedClock(2024, time.January, 15))
	before := sel.State()

	sel.SetFilter(FilterDelivery)
	sel.HighlightOrder("#1234")

	after := sel.State()
	assert.Equal(t, before.CurrentMonth, after.CurrentMonth)
	assert.Equal(t, before.SelectedDate, after.SelectedDate)
	assert.Equal(t, FilterDelivery, after.ActiveFilter)
	assert.Equal(t, "#1234", after.HighlightedOrderID)

	sel.SetFilter("")
	assert.Equal(t, FilterAll, sel.Filter())
}

func TestRestoreSelector(t *testing.T) {
	sel := RestoreSelector(State{CurrentMonth: "2024-07"}, fixedClock(2024, time.January, 1))
	assert.Equal(t, FilterAll, sel.Filter())
	_, ok := sel.SelectedDate()
	assert.False(t, ok)

	sel.GoToNextMonth()
	assert.Equal(t, "2024-08", sel.State().CurrentMonth)
}
