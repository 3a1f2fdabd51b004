package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/tiffix/order-calendar/internal/calendar"
	"github.com/tiffix/order-calendar/internal/mapview"
	"github.com/tiffix/order-calendar/internal/session"
)

// mapClickTimeout bounds the session round trip of a marker click.
const mapClickTimeout = 5 * time.Second

// buildView renders the session's calendar screen from a fresh index snapshot.
func (s *Server) buildView(ctx context.Context, id string, sel *calendar.Selector) (View, error) {
	st := sel.State()
	selected, hasSelection := sel.SelectedDate()

	var extra []time.Time
	if hasSelection {
		extra = append(extra, selected)
	}
	agg, err := s.loadAggregator(ctx, sel.Month(), extra...)
	if err != nil {
		return View{}, err
	}

	orders := []calendar.Order{}
	if hasSelection {
		orders = agg.OrdersOnDate(selected, sel.Filter())
	}

	view := View{
		SessionID:  id,
		State:      st,
		Today:      calendar.FormatDate(sel.Today()),
		Grid:       calendar.BuildGrid(sel.Month(), agg).Mark(calendar.FormatDate(sel.Today()), st.SelectedDate),
		Orders:     orders,
		Totals:     calendar.TotalAndRevenue(orders),
		MapEnabled: s.mapCfg.Enabled(),
	}
	for i := range orders {
		if orders[i].ID == st.HighlightedOrderID {
			o := orders[i]
			view.Highlighted = &o
			break
		}
	}
	if view.MapEnabled {
		view.Markers = mapview.Markers(orders, st.HighlightedOrderID)
	}
	return view, nil
}

// render builds the view, pushes it to an attached map and writes it.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, id string, sel *calendar.Selector) {
	view, err := s.buildView(r.Context(), id, sel)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.syncMap(id, view)
	s.respondJSON(w, status, view)
}

func (s *Server) syncMap(id string, view View) {
	if !view.MapEnabled {
		return
	}
	mapview.Sync(s.hub.Surface(id), view.Orders, view.State.HighlightedOrderID)
}

// sessionLocks serializes transitions on one session inside this process.
// Entries are dropped once no request holds or waits for them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// lock blocks until id is free and returns its unlock func.
func (l *sessionLocks) lock(id string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sessionLock)
	}
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// transition applies fn to a session's state and pushes the new view to its
// map. The caller must hold the session lock.
func (s *Server) transition(ctx context.Context, id string, fn func(sel *calendar.Selector) error) (View, error) {
	st, err := s.sessions.Update(ctx, id, func(st calendar.State) (calendar.State, error) {
		sel := calendar.RestoreSelector(st, s.now)
		if err := fn(sel); err != nil {
			return calendar.State{}, err
		}
		return sel.State(), nil
	})
	if err != nil {
		return View{}, err
	}
	view, err := s.buildView(ctx, id, calendar.RestoreSelector(st, s.now))
	if err != nil {
		return View{}, err
	}
	s.syncMap(id, view)
	return view, nil
}

// update runs one transition for an HTTP request and writes the new view.
func (s *Server) update(w http.ResponseWriter, r *http.Request, ps httprouter.Params, fn func(sel *calendar.Selector) error) {
	id := ps.ByName("id")
	unlock := s.locks.lock(id)
	view, err := s.transition(r.Context(), id, fn)
	unlock()
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, view)
}

// CreateSession opens a calendar view on today's month with today selected.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sel := calendar.NewSelector(s.now)
	id, err := s.sessions.Create(r.Context(), sel.State())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.log.Debug("session created", "session_id", id)
	s.render(w, r, http.StatusCreated, id, sel)
}

// GetSession re-renders a session without changing it.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	st, err := s.sessions.Load(r.Context(), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, id, calendar.RestoreSelector(st, s.now))
}

// DeleteSession discards the state and disconnects its map.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		s.respondErr(w, r, err)
		return
	}
	if ws, ok := s.hub.Surface(id).(*mapview.WSSurface); ok {
		s.hub.Detach(id, ws)
		ws.Close()
	}
	w.WriteHeader(http.StatusNoContent)
}

// PageMonth handles /month/prev, /month/next and /month/today.
func (s *Server) PageMonth(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var step func(*calendar.Selector)
	switch ps.ByName("step") {
	case "prev":
		step = (*calendar.Selector).GoToPreviousMonth
	case "next":
		step = (*calendar.Selector).GoToNextMonth
	case "today":
		step = (*calendar.Selector).GoToToday
	default:
		http.NotFound(w, r)
		return
	}
	s.update(w, r, ps, func(sel *calendar.Selector) error {
		step(sel)
		return nil
	})
}

// SelectDate selects {date}; an empty date clears the selection.
func (s *Server) SelectDate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req selectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.update(w, r, ps, func(sel *calendar.Selector) error {
		if req.Date == "" {
			sel.ClearSelection()
			return nil
		}
		d, err := calendar.ParseDate(req.Date)
		if err != nil {
			return err
		}
		sel.SelectDate(d)
		return nil
	})
}

// SetFilter switches the session between all, pickup and delivery orders.
func (s *Server) SetFilter(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req filterRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.update(w, r, ps, func(sel *calendar.Selector) error {
		f, err := calendar.ParseFilter(req.Filter)
		if err != nil {
			return err
		}
		sel.SetFilter(f)
		return nil
	})
}

// HighlightOrder moves the list/map cursor; an empty orderId clears it.
func (s *Server) HighlightOrder(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req highlightRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.update(w, r, ps, func(sel *calendar.Selector) error {
		sel.HighlightOrder(req.OrderID)
		return nil
	})
}

// MapSocket attaches a browser map to a session. Marker clicks highlight the
// order in the session and the refreshed markers are pushed back.
func (s *Server) MapSocket(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if !s.mapCfg.Enabled() {
		s.respondError(w, http.StatusNotFound, ErrMapDisabled)
		return
	}
	id := ps.ByName("id")
	st, err := s.sessions.Load(r.Context(), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	surface, err := mapview.Upgrade(w, r, s.mapCfg.AllowedOrigins)
	if err != nil {
		s.log.Warn("map upgrade failed", "session_id", id, "error", err)
		return
	}
	surface.OnMarkerClick(func(orderID string) {
		s.markerClicked(id, orderID)
	})
	s.hub.Attach(id, surface)
	defer s.hub.Detach(id, surface)

	if view, err := s.buildView(r.Context(), id, calendar.RestoreSelector(st, s.now)); err == nil {
		mapview.Sync(surface, view.Orders, view.State.HighlightedOrderID)
	} else {
		s.log.Error("initial map sync failed", "session_id", id, "error", err)
	}

	s.log.Debug("map attached", "session_id", id)
	if err := surface.Run(r.Context()); err != nil {
		s.log.Debug("map connection closed", "session_id", id, "error", err)
	}
}

func (s *Server) markerClicked(id, orderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), mapClickTimeout)
	defer cancel()

	unlock := s.locks.lock(id)
	defer unlock()
	_, err := s.transition(ctx, id, func(sel *calendar.Selector) error {
		sel.HighlightOrder(orderID)
		return nil
	})
	if errors.Is(err, session.ErrNotFound) {
		s.log.Warn("marker click on unknown session", "session_id", id)
		return
	}
	if err != nil {
		s.log.Error("applying marker click failed", "session_id", id, "error", err)
	}
}
