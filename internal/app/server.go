package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/tiffix/order-calendar/internal/calendar"
	"github.com/tiffix/order-calendar/internal/logger"
	"github.com/tiffix/order-calendar/internal/mapview"
	"github.com/tiffix/order-calendar/internal/session"
)

// Editor is the edit-mode side of an order store.
type Editor interface {
	Add(o calendar.Order) error
	Delete(id string) error
	Move(id, newDate string) error
	SetStatus(id string, status calendar.Status) error
	Commit() error
	Revert() error
	HasPendingChanges() bool
}

// Deps are the collaborators a Server is built from. Editor may be nil when
// the store is read-only.
type Deps struct {
	Source   calendar.Source
	Editor   Editor
	Sessions session.Store
	Hub      *mapview.Hub
	Map      mapview.Config
	Auth     *Auth
	// Now is the wall clock; it is converted to the configured timezone.
	Now func() time.Time
}

// Server serves the order calendar API.
type Server struct {
	cfg      Config
	log      *logger.Logger
	loc      *time.Location
	source   calendar.Source
	editor   Editor
	sessions session.Store
	locks    sessionLocks
	hub      *mapview.Hub
	mapCfg   mapview.Config
	auth     *Auth
	clock    func() time.Time
	validate *validator.Validate
	limiter  *RateLimiter
}

// NewServer wires the routes over deps. An order source is required.
func NewServer(cfg Config, log *logger.Logger, deps Deps) (*Server, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if deps.Source == nil {
		return nil, errors.New("app: nil order source")
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewMemory(cfg.SessionTTL)
	}
	if deps.Hub == nil {
		deps.Hub = mapview.NewHub()
	}
	if deps.Auth == nil {
		deps.Auth = NewAuth("", "", log)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := &Server{
		cfg:      cfg,
		log:      log,
		loc:      loc,
		source:   deps.Source,
		editor:   deps.Editor,
		sessions: deps.Sessions,
		hub:      deps.Hub,
		mapCfg:   deps.Map,
		auth:     deps.Auth,
		clock:    deps.Now,
		validate: newValidator(),
	}
	if cfg.RateLimit > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	return s, nil
}

// now is the current time in the configured timezone.
func (s *Server) now() time.Time {
	return s.clock().In(s.loc)
}

// EditMode reports whether the edit routes are mounted.
func (s *Server) EditMode() bool {
	return s.cfg.EditMode && s.editor != nil
}

// Routes registers every endpoint on a new router.
func (s *Server) Routes() *httprouter.Router {
	router := httprouter.New()

	router.GET("/api/config", s.limit(s.GetConfig))
	router.GET("/api/orders", s.limit(s.HandleOrders))
	router.GET("/api/calendar/:month", s.limit(s.HandleCalendar))
	router.GET("/api/summary/:month", s.limit(s.HandleSummary))
	router.GET("/api/download", s.limit(s.HandleDownload))
	router.GET("/api/subscribe", s.limit(s.HandleSubscribe))
	router.GET("/api/subscribe/qr", s.limit(s.HandleSubscribeQR))

	router.POST("/api/sessions", s.limit(s.CreateSession))
	router.GET("/api/sessions/:id", s.limit(s.GetSession))
	router.DELETE("/api/sessions/:id", s.limit(s.DeleteSession))
	router.POST("/api/sessions/:id/month/:step", s.limit(s.PageMonth))
	router.POST("/api/sessions/:id/select", s.limit(s.SelectDate))
	router.POST("/api/sessions/:id/filter", s.limit(s.SetFilter))
	router.POST("/api/sessions/:id/highlight", s.limit(s.HighlightOrder))
	router.GET("/ws/map/:id", s.MapSocket)

	if s.EditMode() {
		router.POST("/api/orders/add", s.auth.Require(s.AddOrder))
		router.POST("/api/orders/delete", s.auth.Require(s.DeleteOrder))
		router.POST("/api/orders/move", s.auth.Require(s.MoveOrder))
		router.POST("/api/orders/status", s.auth.Require(s.SetOrderStatus))
		router.POST("/api/index/commit", s.auth.Require(s.HandleCommit))
		router.POST("/api/index/revert", s.auth.Require(s.HandleRevert))
		router.GET("/api/index/status", s.auth.Require(s.HandleIndexStatus))
	}

	router.GET("/healthz", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}

// Handler is the full middleware chain: request ID, logging, security headers, CORS, router.
func (s *Server) Handler() http.Handler {
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(s.Routes())

	return s.requestID(s.logging(securityHeaders(corsHandler)))
}

func (s *Server) limit(next httprouter.Handle) httprouter.Handle {
	if s.limiter == nil {
		return next
	}
	return s.limiter.Limit(next)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.Handler(),
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}
	server.RegisterOnShutdown(func() {
		s.log.Info("closing map surfaces", "surfaces", s.hub.Len())
		s.hub.Close()
	})

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", server.Addr, "edit_mode", s.EditMode(), "map_enabled", s.mapCfg.Enabled())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutdown signal received, shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("server stopped cleanly")
	return nil
}
