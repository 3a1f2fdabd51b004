package mapview

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tiffix/order-calendar/internal/calendar"
)

const writeWait = 10 * time.Second

// checkOrigin admits same-host pages, requests without an Origin header and
// origins listed in allowed. A "*" entry admits any origin.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(strings.TrimSuffix(a, "/"), origin) {
				return true
			}
		}
		return false
	}
}

// outbound is a server→browser map command.
type outbound struct {
	Type    string          `json:"type"`
	Markers []Marker        `json:"markers,omitempty"`
	Point   *calendar.Point `json:"point,omitempty"`
}

// inbound is a browser→server map event.
type inbound struct {
	Type    string `json:"type"`
	OrderID string `json:"orderId"`
}

// WSSurface drives a browser map over a websocket. Only the latest marker set
// and the latest fly-to target are kept; older undelivered ones are dropped.
type WSSurface struct {
	conn *websocket.Conn

	mu         sync.Mutex
	markers    []Marker
	hasMarkers bool
	fly        *calendar.Point
	onClick    func(string)

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Upgrade turns an HTTP request into a map surface. Cross-origin pages must
// be listed in allowedOrigins.
func Upgrade(w http.ResponseWriter, r *http.Request, allowedOrigins []string) (*WSSurface, error) {
	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin(allowedOrigins)}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewWSSurface(conn), nil
}

func NewWSSurface(conn *websocket.Conn) *WSSurface {
	return &WSSurface{
		conn:   conn,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (s *WSSurface) ShowMarkers(markers []Marker) {
	s.mu.Lock()
	s.markers = append([]Marker(nil), markers...)
	s.hasMarkers = true
	s.mu.Unlock()
	s.wake()
}

func (s *WSSurface) FlyTo(p calendar.Point) {
	s.mu.Lock()
	s.fly = &p
	s.mu.Unlock()
	s.wake()
}

func (s *WSSurface) OnMarkerClick(fn func(string)) {
	s.mu.Lock()
	s.onClick = fn
	s.mu.Unlock()
}

func (s *WSSurface) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Run pumps commands out and click events in until the client goes away or ctx ends.
func (s *WSSurface) Run(ctx context.Context) error {
	go s.writeLoop(ctx)
	defer s.Close()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type != "click" || msg.OrderID == "" {
			continue
		}
		s.mu.Lock()
		fn := s.onClick
		s.mu.Unlock()
		if fn != nil {
			fn(msg.OrderID)
		}
	}
}

func (s *WSSurface) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-s.done:
			return
		case <-s.notify:
		}

		s.mu.Lock()
		markers, hasMarkers, fly := s.markers, s.hasMarkers, s.fly
		s.hasMarkers, s.fly = false, nil
		s.mu.Unlock()

		if hasMarkers {
			if err := s.write(outbound{Type: "markers", Markers: markers}); err != nil {
				s.Close()
				return
			}
		}
		if fly != nil {
			if err := s.write(outbound{Type: "flyTo", Point: fly}); err != nil {
				s.Close()
				return
			}
		}
	}
}

func (s *WSSurface) write(msg outbound) error {
	if msg.Type == "markers" && msg.Markers == nil {
		msg.Markers = []Marker{}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close ends the connection. It is safe to call more than once.
func (s *WSSurface) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// Done is closed when the surface has shut down.
func (s *WSSurface) Done() <-chan struct{} {
	return s.done
}

// Hub tracks the attached map surface of each calendar session.
type Hub struct {
	mu       sync.Mutex
	surfaces map[string]*WSSurface
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{surfaces: make(map[string]*WSSurface)}
}

// Attach binds s to key, closing any surface previously attached there.
func (h *Hub) Attach(key string, s *WSSurface) {
	h.mu.Lock()
	old := h.surfaces[key]
	h.surfaces[key] = s
	h.mu.Unlock()
	if old != nil && old != s {
		old.Close()
	}
}

// Detach removes s if it is still the surface bound to key.
func (h *Hub) Detach(key string, s *WSSurface) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.surfaces[key] == s {
		delete(h.surfaces, key)
	}
}

// Surface returns the surface bound to key, or Noop.
func (h *Hub) Surface(key string) Surface {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.surfaces[key]; ok {
		return s
	}
	return Noop{}
}

// Len is the number of attached surfaces.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.surfaces)
}

// Close shuts every attached surface down.
func (h *Hub) Close() {
	h.mu.Lock()
	surfaces := h.surfaces
	h.surfaces = make(map[string]*WSSurface)
	h.mu.Unlock()
	for _, s := range surfaces {
		s.Close()
	}
}
