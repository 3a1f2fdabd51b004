package calendar

import (
	"time"
)

// Columns is the number of cells per grid row, Sunday first.
const Columns = 7

// Cell is one day of a month grid.
type Cell struct {
	Date       string         `json:"date"`
	Day        int            `json:"day"`
	Padding    bool           `json:"padding"`
	HasOrders  bool           `json:"hasOrders"`
	OrderCount int            `json:"orderCount"`
	Statuses   map[Status]int `json:"statuses,omitempty"`
	Holiday    string         `json:"holiday,omitempty"`
	Today      bool           `json:"today,omitempty"`
	Selected   bool           `json:"selected,omitempty"`
}

// Grid is a month laid out left-to-right, top-to-bottom.
type Grid struct {
	Month string `json:"month"`
	Cells []Cell `json:"cells"`
}

// BuildGrid lays out month with the leading padding days of the previous month.
// Indicators are read from agg on every call.
func BuildGrid(month time.Time, agg *Aggregator) Grid {
	first := FirstOfMonth(month)
	last := first.AddDate(0, 1, -1)
	start, _ := GridRange(first)

	grid := Grid{
		Month: first.Format(MonthLayout),
		Cells: make([]Cell, 0, int(first.Weekday())+last.Day()),
	}
	for d := start; !d.After(last); d = d.AddDate(0, 0, 1) {
		cell := Cell{
			Date:    FormatDate(d),
			Day:     d.Day(),
			Padding: d.Before(first),
			Holiday: HolidayOn(d),
		}
		if agg != nil {
			cell.OrderCount = agg.OrderCount(d)
			cell.HasOrders = cell.OrderCount > 0
			if cell.HasOrders {
				cell.Statuses = agg.StatusCounts(d)
			}
		}
		grid.Cells = append(grid.Cells, cell)
	}
	return grid
}

// PaddingCount is the number of leading cells outside the month.
func (g Grid) PaddingCount() int {
	n := 0
	for _, c := range g.Cells {
		if !c.Padding {
			break
		}
		n++
	}
	return n
}

// Rows splits the cells into weeks. The last row may be short.
func (g Grid) Rows() [][]Cell {
	rows := make([][]Cell, 0, (len(g.Cells)+Columns-1)/Columns)
	for i := 0; i < len(g.Cells); i += Columns {
		end := min(i+Columns, len(g.Cells))
		rows = append(rows, g.Cells[i:end])
	}
	return rows
}

// Mark flags today and the selected date. Either may be "".
func (g Grid) Mark(today, selected string) Grid {
	for i := range g.Cells {
		g.Cells[i].Today = today != "" && g.Cells[i].Date == today
		g.Cells[i].Selected = selected != "" && g.Cells[i].Date == selected
	}
	return g
}
