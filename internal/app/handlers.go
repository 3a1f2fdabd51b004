package app

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/tiffix/order-calendar/internal/calendar"
)

// loadAggregator snapshots the orders a month grid touches. Dates in extra that
// fall outside the grid, such as a selection kept from another month, are
// loaded as well.
func (s *Server) loadAggregator(ctx context.Context, month time.Time, extra ...time.Time) (*calendar.Aggregator, error) {
	from, to := calendar.GridRange(month)
	orders, err := s.source.Range(ctx, calendar.Query{
		From:   calendar.FormatDate(from),
		To:     calendar.FormatDate(to),
		Filter: calendar.FilterAll,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, d := range extra {
		key := calendar.FormatDate(d)
		if d.Before(from) || d.After(to) {
			if seen[key] {
				continue
			}
			seen[key] = true
			more, err := s.source.Range(ctx, calendar.Query{From: key, To: key, Filter: calendar.FilterAll})
			if err != nil {
				return nil, err
			}
			orders = append(orders, more...)
		}
	}

	ix, err := calendar.NewIndex(orders)
	if err != nil {
		return nil, err
	}
	return calendar.NewAggregator(ix), nil
}

func (s *Server) today() time.Time {
	return calendar.Day(s.now())
}

// monthParam reads a YYYY-MM value, defaulting to the current month.
func (s *Server) monthParam(v string) (time.Time, error) {
	if v == "" {
		return calendar.FirstOfMonth(s.today()), nil
	}
	return calendar.ParseMonth(v)
}

// GetConfig returns the enums, today and feature switches the dashboard needs.
func (s *Server) GetConfig(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	today := s.today()
	config := map[string]interface{}{
		"deliveryTypes": []calendar.DeliveryType{calendar.Pickup, calendar.Delivery},
		"statuses":      calendar.Statuses,
		"providerTypes": []calendar.ProviderType{calendar.Vendor, calendar.HomeChef},
		"filters":       calendar.Filters,
		"today":         calendar.FormatDate(today),
		"currentMonth":  today.Format(calendar.MonthLayout),
		"timezone":      s.loc.String(),
		"mapEnabled":    s.mapCfg.Enabled(),
		"mapProvider":   s.mapCfg.Provider,
		"editMode":      s.EditMode(),
		"holidays":      calendar.Holidays(today.Year()),
	}
	s.respondJSON(w, http.StatusOK, config)
}

// HandleOrders returns the orders of one date.
// Query params: date (YYYY-MM-DD, default today), filter (all|pickup|delivery)
func (s *Server) HandleOrders(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	date := s.today()
	if v := q.Get("date"); v != "" {
		d, err := calendar.ParseDate(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, ErrInvalidDateFormat)
			return
		}
		date = d
	}
	filter, err := calendar.ParseFilter(q.Get("filter"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, ErrInvalidFilter)
		return
	}

	key := calendar.FormatDate(date)
	orders, err := s.source.Range(r.Context(), calendar.Query{From: key, To: key, Filter: filter})
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, DayOrders{
		Date:    key,
		Filter:  filter,
		Holiday: calendar.HolidayOn(date),
		Orders:  orders,
		Totals:  calendar.TotalAndRevenue(orders),
	})
}

// HandleCalendar returns the month grid.
// URL: /api/calendar/{YYYY-MM}?selected=YYYY-MM-DD
func (s *Server) HandleCalendar(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	month, err := s.monthParam(ps.ByName("month"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, ErrInvalidMonth)
		return
	}
	selected := r.URL.Query().Get("selected")
	if selected != "" {
		if _, err := calendar.ParseDate(selected); err != nil {
			s.respondError(w, http.StatusBadRequest, ErrInvalidDateFormat)
			return
		}
	}

	agg, err := s.loadAggregator(r.Context(), month)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	grid := calendar.BuildGrid(month, agg).Mark(calendar.FormatDate(s.today()), selected)
	s.respondJSON(w, http.StatusOK, grid)
}

// HandleSummary returns the month overview.
// URL: /api/summary/{YYYY-MM}?filter=all
func (s *Server) HandleSummary(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	month, err := s.monthParam(ps.ByName("month"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, ErrInvalidMonth)
		return
	}
	filter, err := calendar.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, ErrInvalidFilter)
		return
	}

	agg, err := s.loadAggregator(r.Context(), month)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, calendar.Summarize(month, agg, filter))
}

// monthOrders returns the orders of month that pass filter, by date.
func (s *Server) monthOrders(ctx context.Context, month time.Time, filter calendar.Filter) ([]calendar.Order, error) {
	first := calendar.FirstOfMonth(month)
	last := first.AddDate(0, 1, -1)
	return s.source.Range(ctx, calendar.Query{
		From:   calendar.FormatDate(first),
		To:     calendar.FormatDate(last),
		Filter: filter,
	})
}

// HandleDownload handles export downloads in ICS, CSV, JSON or PDF format.
// Query params: month, format, filter, reminder=true&reminderTime=HH:MM
func (s *Server) HandleDownload(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	month, err := s.monthParam(q.Get("month"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, ErrInvalidMonth)
		return
	}
	filter, err := calendar.ParseFilter(q.Get("filter"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, ErrInvalidFilter)
		return
	}
	format := strings.ToLower(q.Get("format"))
	name := month.Format(calendar.MonthLayout)

	switch format {
	case "ics", "csv", "json", "pdf":
	default:
		s.respondError(w, http.StatusBadRequest, ErrInvalidFormat)
		return
	}

	orders, err := s.monthOrders(r.Context(), month, filter)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	switch format {
	case "ics":
		var rem *Reminder
		if q.Get("reminder") == "true" && q.Get("reminderTime") != "" {
			rem = &Reminder{DaysBefore: 1, Time: q.Get("reminderTime")}
		}
		GenerateICS(w, name, orders, s.loc, rem)
	case "csv":
		err = GenerateCSV(w, name, orders)
	case "json":
		err = GenerateJSON(w, name, filter, orders)
	case "pdf":
		var agg *calendar.Aggregator
		agg, err = s.loadAggregator(r.Context(), month)
		if err == nil {
			err = GeneratePDF(w, calendar.Summarize(month, agg, filter), orders, s.feedURL(r, filter))
		}
	}
	if err != nil {
		s.log.Error("error generating export", "format", format, "month", name, "error", err)
	}
}

// HandleSubscribe returns an ICS feed with the orders from the previous month onwards.
func (s *Server) HandleSubscribe(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	filter, err := calendar.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, ErrInvalidFilter)
		return
	}
	from := calendar.FirstOfMonth(s.today()).AddDate(0, -1, 0)
	orders, err := s.source.Range(r.Context(), calendar.Query{From: calendar.FormatDate(from), Filter: filter})
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	GenerateSubscriptionICS(w, string(filter), orders, s.loc)
}

// HandleSubscribeQR returns a PNG QR code of the subscription feed URL.
func (s *Server) HandleSubscribeQR(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	filter, err := calendar.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, ErrInvalidFilter)
		return
	}
	png, err := FeedQRCode(s.feedURL(r, filter), 256)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(png); err != nil {
		s.log.Error("error writing qr code", "error", err)
	}
}

// feedURL is the absolute subscription URL as seen by the client.
func (s *Server) feedURL(r *http.Request, filter calendar.Filter) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     "/api/subscribe",
		RawQuery: url.Values{"filter": {strings.ToLower(string(filter))}}.Encode(),
	}
	return u.String()
}
