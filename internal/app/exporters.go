package app

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/tiffix/order-calendar/internal/calendar"
)

// eventDuration is the slot length of a timed order in ICS exports.
const eventDuration = 30 * time.Minute

const icsUTCLayout = "20060102T150405Z"

// Reminder is an optional VALARM on downloaded calendars.
type Reminder struct {
	DaysBefore int
	Time       string // HH:MM
}

// icsWriter writes CRLF-terminated content lines and keeps the first error.
type icsWriter struct {
	w   io.Writer
	err error
}

func (iw *icsWriter) line(format string, args ...interface{}) {
	if iw.err != nil {
		return
	}
	_, iw.err = fmt.Fprintf(iw.w, format+"\r\n", args...)
}

// escapeText escapes a TEXT property value.
func escapeText(s string) string {
	r := strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\n", `\n`)
	return r.Replace(s)
}

// orderStart resolves the start of an order in loc. Orders whose time label
// does not parse are all-day events.
func orderStart(o calendar.Order, loc *time.Location) (time.Time, bool, error) {
	day, err := calendar.ParseDate(o.ScheduledDate)
	if err != nil {
		return time.Time{}, false, err
	}
	label := strings.ToUpper(strings.TrimSpace(o.TimeLabel))
	for _, layout := range []string{"3:04 PM", "03:04 PM", "15:04"} {
		if t, err := time.Parse(layout, label); err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc), true, nil
		}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc), false, nil
}

func orderSummary(o calendar.Order) string {
	return fmt.Sprintf("%s %s: %s", o.DeliveryType, o.ID, o.Customer)
}

func orderDescription(o calendar.Order) string {
	return fmt.Sprintf("%d item(s), %s, %s, Rs %s", o.Items, o.Status, o.ProviderType, o.Amount.StringFixed(2))
}

// orderUID is stable across exports so subscribed calendars update in place.
func orderUID(o calendar.Order) string {
	id := strings.TrimPrefix(o.ID, "#")
	return fmt.Sprintf("order-%s@%s", id, ICSDomain)
}

func writeEvent(iw *icsWriter, o calendar.Order, loc *time.Location, stamp string, rem *Reminder) {
	start, timed, err := orderStart(o, loc)
	if err != nil {
		return
	}

	iw.line("BEGIN:VEVENT")
	iw.line("UID:%s", orderUID(o))
	iw.line("DTSTAMP:%s", stamp)
	if timed {
		// UTC form needs no VTIMEZONE component
		iw.line("DTSTART:%s", start.UTC().Format(icsUTCLayout))
		iw.line("DTEND:%s", start.Add(eventDuration).UTC().Format(icsUTCLayout))
	} else {
		iw.line("DTSTART;VALUE=DATE:%s", start.Format("20060102"))
		iw.line("DTEND;VALUE=DATE:%s", start.AddDate(0, 0, 1).Format("20060102"))
	}
	iw.line("SUMMARY:%s", escapeText(orderSummary(o)))
	iw.line("DESCRIPTION:%s", escapeText(orderDescription(o)))
	if o.Coordinates != nil {
		iw.line("GEO:%f;%f", o.Coordinates.Lat, o.Coordinates.Lng)
	}
	if o.Status == calendar.StatusCancelled {
		iw.line("STATUS:CANCELLED")
	} else {
		iw.line("STATUS:CONFIRMED")
	}
	if rem != nil && rem.Time != "" {
		AddAlarm(iw.w, start, rem.DaysBefore, rem.Time, orderSummary(o))
	}
	iw.line("END:VEVENT")
}

// GenerateICS writes a downloadable calendar of orders with an optional reminder.
func GenerateICS(w http.ResponseWriter, name string, orders []calendar.Order, loc *time.Location, rem *Reminder) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=tiffix_orders_%s.ics", name))

	iw := &icsWriter{w: w}
	iw.line("BEGIN:VCALENDAR")
	iw.line("VERSION:2.0")
	iw.line("PRODID:%s", ICSProductID)
	iw.line("X-WR-CALNAME:Tiffix Orders %s", name)
	iw.line("X-WR-TIMEZONE:%s", loc.String())
	iw.line("CALSCALE:GREGORIAN")

	stamp := time.Now().UTC().Format(icsUTCLayout)
	for _, o := range orders {
		writeEvent(iw, o, loc, stamp, rem)
	}
	iw.line("END:VCALENDAR")
}

// AddAlarm adds a display alarm at alarmTime (HH:MM) daysBefore the event's day.
// The trigger is relative to eventStart.
func AddAlarm(w io.Writer, eventStart time.Time, daysBefore int, alarmTime string, description string) {
	parts := strings.Split(alarmTime, ":")
	if len(parts) != 2 {
		return
	}
	hour, err1 := strconv.Atoi(parts[0])
	minute, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return
	}

	alarmDate := eventStart.AddDate(0, 0, -daysBefore)
	alarmDateTime := time.Date(alarmDate.Year(), alarmDate.Month(), alarmDate.Day(), hour, minute, 0, 0, eventStart.Location())
	duration := alarmDateTime.Sub(eventStart)

	// ISO 8601 duration, negative for alarms before the event
	totalMinutes := int(duration.Minutes())
	isNegative := totalMinutes < 0
	if isNegative {
		totalMinutes = -totalMinutes
	}

	days := totalMinutes / (24 * 60)
	remainingMinutes := totalMinutes % (24 * 60)
	hours := remainingMinutes / 60
	minutes := remainingMinutes % 60

	sign := ""
	if isNegative {
		sign = "-"
	}
	trigger := fmt.Sprintf("%sP%dDT%dH%dM", sign, days, hours, minutes)

	iw := &icsWriter{w: w}
	iw.line("BEGIN:VALARM")
	iw.line("ACTION:DISPLAY")
	iw.line("DESCRIPTION:Reminder: %s", escapeText(description))
	iw.line("TRIGGER:%s", trigger)
	iw.line("END:VALARM")
}

// GenerateSubscriptionICS writes an inline subscription feed: METHOD:PUBLISH,
// a refresh hint and no alarms.
func GenerateSubscriptionICS(w http.ResponseWriter, name string, orders []calendar.Order, loc *time.Location) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")

	iw := &icsWriter{w: w}
	iw.line("BEGIN:VCALENDAR")
	iw.line("VERSION:2.0")
	iw.line("PRODID:%s", ICSProductID)
	iw.line("METHOD:PUBLISH")
	iw.line("X-WR-CALNAME:Tiffix Orders %s", name)
	iw.line("X-WR-TIMEZONE:%s", loc.String())
	iw.line("CALSCALE:GREGORIAN")
	iw.line("X-PUBLISHED-TTL:PT1H")

	stamp := time.Now().UTC().Format(icsUTCLayout)
	for _, o := range orders {
		writeEvent(iw, o, loc, stamp, nil)
	}
	iw.line("END:VCALENDAR")
}

// GenerateCSV writes one row per order.
func GenerateCSV(w http.ResponseWriter, name string, orders []calendar.Order) error {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=tiffix_orders_%s.csv", name))

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "Time", "Order", "Customer", "Items", "Type", "Status", "Provider", "Amount"}); err != nil {
		return err
	}
	for _, o := range orders {
		row := []string{
			o.ScheduledDate, o.TimeLabel, o.ID, o.Customer, strconv.Itoa(o.Items),
			string(o.DeliveryType), string(o.Status), string(o.ProviderType), o.Amount.StringFixed(2),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// GenerateJSON writes the orders of a month with their totals.
func GenerateJSON(w http.ResponseWriter, month string, filter calendar.Filter, orders []calendar.Order) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=tiffix_orders_%s.json", month))

	data := map[string]interface{}{
		"month":  month,
		"filter": filter,
		"totals": calendar.TotalAndRevenue(orders),
		"orders": orders,
	}
	return json.NewEncoder(w).Encode(data)
}

// GeneratePDF renders a printable order sheet for a month. When feedURL is set
// a QR code pointing at the subscription feed is printed in the header.
func GeneratePDF(w http.ResponseWriter, summary calendar.Summary, orders []calendar.Order, feedURL string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Tiffix Orders "+summary.Month, true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, fmt.Sprintf("Tiffix Orders %s (%s)", summary.Month, summary.Filter))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 11)
	pdf.Cell(0, 8, fmt.Sprintf("Orders: %d   Revenue: Rs %s   Average: Rs %s",
		summary.Totals.Count, summary.Totals.SumAmount.StringFixed(2), summary.AverageOrder.StringFixed(2)))
	pdf.Ln(8)
	if summary.BusiestDay != nil {
		pdf.Cell(0, 8, fmt.Sprintf("Busiest day: %s (%d orders)", summary.BusiestDay.Date, summary.BusiestDay.Count))
		pdf.Ln(8)
	}

	if feedURL != "" {
		png, err := qrcode.Encode(feedURL, qrcode.Medium, 256)
		if err != nil {
			return fmt.Errorf("qr code: %w", err)
		}
		opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
		pdf.RegisterImageOptionsReader("feed", opts, bytes.NewReader(png))
		pdf.ImageOptions("feed", 170, 8, 28, 28, false, opts, 0, "")
	}
	pdf.Ln(6)

	widths := []float64{24, 20, 18, 46, 12, 22, 24, 24}
	header := []string{"Date", "Time", "Order", "Customer", "Items", "Type", "Status", "Amount"}
	pdf.SetFont("Arial", "B", 10)
	for i, h := range header {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, o := range orders {
		row := []string{
			o.ScheduledDate, o.TimeLabel, o.ID, o.Customer, strconv.Itoa(o.Items),
			string(o.DeliveryType), string(o.Status), o.Amount.StringFixed(2),
		}
		for i, v := range row {
			align := "L"
			if i == len(row)-1 || i == 4 {
				align = "R"
			}
			pdf.CellFormat(widths[i], 6, v, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=tiffix_orders_%s.pdf", summary.Month))
	_, err := w.Write(buf.Bytes())
	return err
}

// FeedQRCode renders feedURL as a PNG QR code.
func FeedQRCode(feedURL string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(feedURL, qrcode.Medium, size)
}
