package app

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/shopspring/decimal"

	"github.com/tiffix/order-calendar/internal/calendar"
)

// newOrderID generates a short "#XXXXXXXX" order ID.
func newOrderID() string {
	return "#" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (req addOrderRequest) order() (calendar.Order, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return calendar.Order{}, fmt.Errorf("%w: amount %q", calendar.ErrInvalidInput, req.Amount)
	}
	o := calendar.Order{
		ID:            req.ID,
		ScheduledDate: req.Date,
		TimeLabel:     req.Time,
		Customer:      req.Customer,
		Items:         req.Items,
		DeliveryType:  calendar.DeliveryType(req.Type),
		Status:        calendar.Status(req.Status),
		ProviderType:  calendar.ProviderType(req.Provider),
		Amount:        amount,
		Coordinates:   req.Coordinates,
	}
	if o.ID == "" {
		o.ID = newOrderID()
	}
	if o.Status == "" {
		o.Status = calendar.StatusPreparing
	}
	if o.ProviderType == "" {
		o.ProviderType = calendar.Vendor
	}
	return o, o.Validate()
}

// AddOrder adds a new order (edit mode only)
func (s *Server) AddOrder(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req addOrderRequest
	if err := s.decodeValid(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	o, err := req.order()
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := s.editor.Add(o); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.log.Info("order added", "order", o.ID, "date", o.ScheduledDate, "customer", o.Customer)
	s.respondJSON(w, http.StatusCreated, o)
}

// DeleteOrder removes an order (edit mode only)
func (s *Server) DeleteOrder(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req deleteOrderRequest
	if err := s.decodeValid(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := s.editor.Delete(req.ID); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.log.Info("order deleted", "order", req.ID)
	respondOK(s, w)
}

// MoveOrder reschedules an order to another date (edit mode only)
func (s *Server) MoveOrder(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req moveOrderRequest
	if err := s.decodeValid(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := s.editor.Move(req.ID, req.NewDate); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.log.Info("order moved", "order", req.ID, "date", req.NewDate)
	respondOK(s, w)
}

// SetOrderStatus changes the status label of an order (edit mode only)
func (s *Server) SetOrderStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req statusRequest
	if err := s.decodeValid(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := s.editor.SetStatus(req.ID, calendar.Status(req.Status)); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.log.Info("order status changed", "order", req.ID, "status", req.Status)
	respondOK(s, w)
}

// HandleCommit commits temporary changes
func (s *Server) HandleCommit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := s.editor.Commit(); err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondOK(s, w)
}

// HandleRevert reverts temporary changes
func (s *Server) HandleRevert(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := s.editor.Revert(); err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondOK(s, w)
}

// HandleIndexStatus returns whether there are unsaved changes
func (s *Server) HandleIndexStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.respondJSON(w, http.StatusOK, map[string]bool{
		"has_changes": s.editor.HasPendingChanges(),
	})
}
