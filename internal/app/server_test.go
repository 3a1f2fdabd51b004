package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tiffix/order-calendar/internal/calendar"
	"github.com/tiffix/order-calendar/internal/logger"
	"github.com/tiffix/order-calendar/internal/mapview"
	"github.com/tiffix/order-calendar/internal/session"
	"github.com/tiffix/order-calendar/internal/store"
)

var fixedNow = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		Port:          8080,
		StoreDriver:   DriverFile,
		SessionDriver: DriverMemory,
		SessionTTL:    time.Hour,
		Timezone:      "UTC",
		CORSOrigins:   []string{"*"},
	}
}

// newTestServer serves the sample fixture from a fresh data file.
func newTestServer(t *testing.T, cfg Config, auth *Auth) (*Server, *store.File) {
	t.Helper()
	return newTestServerWithSessions(t, cfg, auth, session.NewMemory(time.Hour))
}

func newTestServerWithSessions(t *testing.T, cfg Config, auth *Auth, sessions session.Store) (*Server, *store.File) {
	t.Helper()
	seed, err := store.LoadSeed(filepath.Join("..", "..", "data", "orders.yaml"))
	if err != nil {
		t.Fatalf("LoadSeed failed: %v", err)
	}
	f := store.NewFile(filepath.Join(t.TempDir(), "orders.json"), logger.Nop())
	if err := f.LoadOrSeed(seed, "test", true); err != nil {
		t.Fatalf("LoadOrSeed failed: %v", err)
	}

	srv, err := NewServer(cfg, logger.Nop(), Deps{
		Source:   f,
		Editor:   f,
		Sessions: sessions,
		Hub:      mapview.NewHub(),
		Map:      mapview.Config{Provider: "mapbox", AccessToken: "test-token"},
		Auth:     auth,
		Now:      func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return srv, f
}

func do(t *testing.T, h http.Handler, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = httptest.NewRequest(method, target, bytes.NewReader(raw))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestGetConfig(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), nil)
	w := do(t, srv.Routes(), "GET", "/api/config", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var cfg struct {
		Today        string   `json:"today"`
		CurrentMonth string   `json:"currentMonth"`
		Filters      []string `json:"filters"`
		MapEnabled   bool     `json:"mapEnabled"`
		EditMode     bool     `json:"editMode"`
	}
	decode(t, w, &cfg)
	if cfg.Today != "2024-01-15" || cfg.CurrentMonth != "2024-01" {
		t.Errorf("Unexpected today/month: %s/%s", cfg.Today, cfg.CurrentMonth)
	}
	if strings.Join(cfg.Filters, ",") != "All,Pickup,Delivery" {
		t.Errorf("Unexpected filters: %v", cfg.Filters)
	}
	if !cfg.MapEnabled {
		t.Error("Map should be enabled with an access token")
	}
	if cfg.EditMode {
		t.Error("Edit mode should be off")
	}
}

func TestTodayUsesConfiguredTimezone(t *testing.T) {
	cfg := testConfig()
	cfg.Timezone = "Asia/Kolkata"
	srv, _ := newTestServer(t, cfg, nil)
	// 20:00 UTC is already the next day in India
	srv.clock = func() time.Time { return time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC) }

	var out DayOrders
	decode(t, do(t, srv.Routes(), "GET", "/api/orders", nil), &out)
	if out.Date != "2024-01-16" {
		t.Errorf("Expected 2024-01-16, got %s", out.Date)
	}
}

func TestHandleOrders(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), nil)
	h := srv.Routes()

	tests := []struct {
		name   string
		target string
		status int
		ids    []string
		sum    string
	}{
		{"defaults to today", "/api/orders", 200, []string{"#1234", "#1235"}, "300"},
		{"explicit date", "/api/orders?date=2024-01-16", 200, []string{"#1236", "#1237"}, "300"},
		{"filtered", "/api/orders?date=2024-01-15&filter=pickup", 200, []string{"#1235"}, "120"},
		{"empty day", "/api/orders?date=2024-01-20", 200, []string{}, "0"},
		{"bad date", "/api/orders?date=15.01.2024", 400, nil, ""},
		{"bad filter", "/api/orders?filter=drone", 400, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, "GET", tt.target, nil)
			if w.Code != tt.status {
				t.Fatalf("Expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}
			var out DayOrders
			decode(t, w, &out)
			if len(out.Orders) != len(tt.ids) {
				t.Fatalf("Expected %d orders, got %d", len(tt.ids), len(out.Orders))
			}
			for i, id := range tt.ids {
				if out.Orders[i].ID != id {
					t.Errorf("Order %d: expected %s, got %s", i, id, out.Orders[i].ID)
				}
			}
			if out.Totals.Count != len(tt.ids) || !out.Totals.SumAmount.Equal(decimal.RequireFromString(tt.sum)) {
				t.Errorf("Unexpected totals: %+v", out.Totals)
			}
		})
	}
}

func TestHandleCalendar(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), nil)
	w := do(t, srv.Routes(), "GET", "/api/calendar/2024-01?selected=2024-01-16", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var grid calendar.Grid
	decode(t, w, &grid)
	// January 2024 starts on a Monday
	if len(grid.Cells) != 32 {
		t.Fatalf("Expected 32 cells, got %d", len(grid.Cells))
	}
	if !grid.Cells[0].Padding || grid.Cells[0].Date != "2023-12-31" {
		t.Errorf("First cell should be padding 2023-12-31, got %+v", grid.Cells[0])
	}

	byDate := make(map[string]calendar.Cell)
	for _, c := range grid.Cells {
		byDate[c.Date] = c
	}
	if c := byDate["2024-01-15"]; !c.Today || c.OrderCount != 2 {
		t.Errorf("2024-01-15 should be today with 2 orders, got %+v", c)
	}
	if c := byDate["2024-01-16"]; !c.Selected || c.Statuses[calendar.StatusDelivered] != 1 || c.Statuses[calendar.StatusPreparing] != 1 {
		t.Errorf("2024-01-16 should be selected with status counts, got %+v", c)
	}
	if c := byDate["2024-01-01"]; c.Holiday == "" {
		t.Error("New Year should be a holiday")
	}
	if c := byDate["2024-01-20"]; c.HasOrders {
		t.Error("2024-01-20 has no orders")
	}

	if w := do(t, srv.Routes(), "GET", "/api/calendar/2024-13", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad month, got %d", w.Code)
	}
	if w := do(t, srv.Routes(), "GET", "/api/calendar/2024-01?selected=tomorrow", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad selected date, got %d", w.Code)
	}
}

func TestHandleSummary(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), nil)

	var all calendar.Summary
	decode(t, do(t, srv.Routes(), "GET", "/api/summary/2024-01", nil), &all)
	if all.Totals.Count != 5 {
		t.Errorf("Expected 5 orders, got %d", all.Totals.Count)
	}
	// cancelled #1238 is not revenue
	if !all.Totals.SumAmount.Equal(decimal.NewFromInt(600)) {
		t.Errorf("Expected revenue 600, got %s", all.Totals.SumAmount)
	}
	if !all.AverageOrder.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Expected average 150 over 4 billable orders, got %s", all.AverageOrder)
	}
	if all.ByStatus[calendar.StatusCancelled] != 1 {
		t.Errorf("Expected 1 cancelled order, got %d", all.ByStatus[calendar.StatusCancelled])
	}

	var pickup calendar.Summary
	decode(t, do(t, srv.Routes(), "GET", "/api/summary/2024-01?filter=pickup", nil), &pickup)
	if pickup.Totals.Count != 2 || pickup.Filter != calendar.FilterPickup {
		t.Errorf("Unexpected pickup summary: %+v", pickup.Totals)
	}

	var feb calendar.Summary
	decode(t, do(t, srv.Routes(), "GET", "/api/summary/2024-02", nil), &feb)
	if feb.Totals.Count != 0 || feb.BusiestDay != nil {
		t.Errorf("February should be empty, got %+v", feb.Totals)
	}
}

func TestHandleDownload(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), nil)
	h := srv.Routes()

	tests := []struct {
		name        string
		target      string
		status      int
		contentType string
		contains    string
	}{
		{"ics", "/api/download?month=2024-01&format=ics", 200, "text/calendar", "BEGIN:VCALENDAR"},
		{"csv", "/api/download?month=2024-01&format=CSV", 200, "text/csv", "#1234"},
		{"json", "/api/download?month=2024-01&format=json&filter=delivery", 200, "application/json", `"month":"2024-01"`},
		{"pdf", "/api/download?month=2024-01&format=pdf", 200, "application/pdf", "%PDF"},
		{"unknown format", "/api/download?month=2024-01&format=xml", 400, "application/json", ErrInvalidFormat},
		{"bad month", "/api/download?month=january&format=ics", 400, "application/json", ErrInvalidMonth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, "GET", tt.target, nil)
			if w.Code != tt.status {
				t.Fatalf("Expected %d, got %d", tt.status, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, tt.contentType) {
				t.Errorf("Expected Content-Type %s, got %s", tt.contentType, ct)
			}
			if !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("Body should contain %q", tt.contains)
			}
		})
	}
}

func TestHandleDownloadReminder(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), nil)

	body := do(t, srv.Routes(), "GET", "/api/download?month=2024-01&format=ics&reminder=true&reminderTime=19:00", nil).Body.String()
	if got := strings.Count(body, "BEGIN:VALARM"); got != 5 {
		t.Errorf("Expected 5 alarms, got %d", got)
	}

	body = do(t, srv.Routes(), "GET", "/api/download?month=2024-01&format=ics&filter=pickup", nil).Body.String()
	if got := strings.Count(body, "BEGIN:VEVENT"); got != 2 {
		t.Errorf("Expected 2 pickup events, got %d", got)
	}
	if strings.Contains(body, "BEGIN:VALARM") {
		t.Error("No alarms expected without reminder")
	}
}

func TestHandleSubscribe(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), nil)

	w := do(t, srv.Routes(), "GET", "/api/subscribe?filter=delivery", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "METHOD:PUBLISH") {
		t.Error("Feed should be published")
	}
	if got := strings.Count(body, "BEGIN:VEVENT"); got != 3 {
		t.Errorf("Expected 3 delivery events, got %d", got)
	}

	// orders before the previous month drop out of the feed
	srv.clock = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }
	body = do(t, srv.Routes(), "GET", "/api/subscribe", nil).Body.String()
	if strings.Contains(body, "BEGIN:VEVENT") {
		t.Error("January orders should not be in the March feed")
	}
}

func TestHandleSubscribeQR(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), nil)

	w := do(t, srv.Routes(), "GET", "/api/subscribe/qr?filter=pickup", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}

	r := httptest.NewRequest("GET", "/api/subscribe/qr", nil)
	r.Host = "orders.example.com"
	r.Header.Set("X-Forwarded-Proto", "https")
	if got := srv.feedURL(r, calendar.FilterPickup); got != "https://orders.example.com/api/subscribe?filter=pickup" {
		t.Errorf("Unexpected feed URL %s", got)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), nil)
	if w := do(t, srv.Routes(), "GET", "/healthz", nil); w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestHandlerMiddleware(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), nil)
	h := srv.Handler()

	w := do(t, h, "GET", "/api/config", nil)
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("Response should carry a request ID")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("Missing security headers")
	}

	r := httptest.NewRequest("GET", "/api/config", nil)
	r.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("Incoming request ID should be kept, got %s", got)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 1
	cfg.RateBurst = 2
	srv, _ := newTestServer(t, cfg, nil)
	h := srv.Routes()

	for i := 0; i < 2; i++ {
		if w := do(t, h, "GET", "/api/config", nil); w.Code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i, w.Code)
		}
	}
	w := do(t, h, "GET", "/api/config", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}

	// other clients have their own budget
	r := httptest.NewRequest("GET", "/api/config", nil)
	r.RemoteAddr = "198.51.100.7:4321"
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("Other client: expected 200, got %d", w.Code)
	}
}

func TestRateLimiterForgetsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.getLimiter("192.0.2.1")
	now = now.Add(visitorTTL + time.Second)
	rl.getLimiter("192.0.2.2")

	if _, ok := rl.visitors["192.0.2.1"]; ok {
		t.Error("Idle visitor should be swept")
	}
	if len(rl.visitors) != 1 {
		t.Errorf("Expected 1 visitor, got %d", len(rl.visitors))
	}
}

func TestRateLimiterSweepsAtMostOncePerTTL(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	start := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	now := start
	rl.now = func() time.Time { return now }

	rl.getLimiter("192.0.2.1")
	if !rl.lastSweep.Equal(start) {
		t.Fatalf("First lookup should sweep, lastSweep = %v", rl.lastSweep)
	}

	// the idle visitor outlives the TTL, but the last sweep is too recent
	rl.lastSweep = start.Add(visitorTTL)
	now = start.Add(visitorTTL + time.Second)
	rl.getLimiter("192.0.2.2")
	if _, ok := rl.visitors["192.0.2.1"]; !ok {
		t.Error("No sweep should run within a TTL of the previous one")
	}

	now = start.Add(2 * visitorTTL)
	rl.getLimiter("192.0.2.2")
	if _, ok := rl.visitors["192.0.2.1"]; ok {
		t.Error("Idle visitor should be swept once the TTL has passed")
	}
	if !rl.lastSweep.Equal(now) {
		t.Errorf("lastSweep = %v, want %v", rl.lastSweep, now)
	}
}

func TestNewServerRequiresSource(t *testing.T) {
	if _, err := NewServer(testConfig(), logger.Nop(), Deps{}); err == nil {
		t.Error("Expected error without an order source")
	}
}
