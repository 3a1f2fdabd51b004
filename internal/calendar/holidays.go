package calendar

import (
	"time"
)

// Holidays returns the national public holidays of year keyed by YYYY-MM-DD.
// Kitchens usually run reduced menus on these days.
func Holidays(year int) map[string]string {
	holidays := make(map[string]string)

	holidays[formatDate(year, 1, 1)] = "New Year's Day"
	holidays[formatDate(year, 1, 26)] = "Republic Day"
	holidays[formatDate(year, 5, 1)] = "Labour Day"
	holidays[formatDate(year, 8, 15)] = "Independence Day"
	holidays[formatDate(year, 10, 2)] = "Gandhi Jayanti"
	holidays[formatDate(year, 12, 25)] = "Christmas Day"

	// Good Friday: Easter - 2 days
	holidays[calculateEaster(year).AddDate(0, 0, -2).Format(DateLayout)] = "Good Friday"

	return holidays
}

// HolidayOn returns the holiday name for date, or "".
func HolidayOn(date time.Time) string {
	return Holidays(date.Year())[FormatDate(date)]
}

// formatDate formats a date as YYYY-MM-DD
func formatDate(year, month, day int) string {
	// Use noon to avoid timezone issues when formatting to YYYY-MM-DD
	return time.Date(year, time.Month(month), day, 12, 0, 0, 0, time.UTC).Format(DateLayout)
}

// calculateEaster calculates Easter Sunday using the Meeus/Jones/Butcher algorithm
func calculateEaster(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := ((h + l - 7*m + 114) % 31) + 1

	return time.Date(year, time.Month(month), day, 12, 0, 0, 0, time.UTC)
}
