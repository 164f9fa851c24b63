package web

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"schedulr/internal/booking"
	"schedulr/internal/calsync"
	"schedulr/internal/config"
	appLog "schedulr/internal/log"
	"schedulr/internal/scheduling"
	"schedulr/internal/store"
)

// engine bundles everything derived from config so a reload can swap it in
// one step.
type engine struct {
	cfg      *config.Config
	loc      *time.Location
	detector *scheduling.Detector
	scorer   *scheduling.Scorer
	booking  *booking.Service
}

// Server provides the HTTP API for events, conflict checks, slot
// suggestions, booking links and calendar sync.
type Server struct {
	store  *store.Store
	syncer *calsync.Syncer
	now    func() time.Time

	eng atomic.Pointer[engine]

	limitMu  sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewServer constructs a new Server. syncer may be nil, in which case
// /api/sync reports 503.
func NewServer(cfg *config.Config, st *store.Store, syncer *calsync.Syncer) *Server {
	s := &Server{
		store:    st,
		syncer:   syncer,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
	s.Apply(cfg)
	return s
}

// Apply installs a new config. In-flight requests finish with the old one.
func (s *Server) Apply(cfg *config.Config) {
	loc := resolveLocationOrLocal(cfg.Timezone)
	opts := scheduling.Options{
		Location:           loc,
		FirstPartyDuration: time.Duration(cfg.Scheduling.FirstPartyMinutes) * time.Minute,
		Defaults:           cfg.Scheduling.Defaults,
		Now:                func() time.Time { return s.now() },
	}
	detector := scheduling.NewDetector(s.store, opts)
	scorer := scheduling.NewScorer(s.store, opts)

	s.eng.Store(&engine{
		cfg:      cfg,
		loc:      loc,
		detector: detector,
		scorer:   scorer,
		booking:  booking.NewService(s.store, detector, scorer, opts),
	})

	// Rate settings may have changed; start every client fresh.
	s.limitMu.Lock()
	s.limiters = make(map[string]*rate.Limiter)
	s.limitMu.Unlock()
}

func (s *Server) current() *engine {
	return s.eng.Load()
}

// Handler returns the gin engine serving all routes.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", s.handleHealth)

	// Public booking routes: no basic auth, rate limited per client.
	book := r.Group("/api/book/:slug", s.rateLimit())
	book.GET("/slots", s.handleBookingSlots)
	book.POST("", s.handleBook)

	api := r.Group("/api", s.basicAuth())
	api.POST("/sync", s.handleSync)

	user := api.Group("/users/:user")
	user.GET("/events", s.handleListEvents)
	user.POST("/events", s.handleCreateEvent)
	user.POST("/events/:id/complete", s.handleCompleteEvent)
	user.DELETE("/events/:id", s.handleDeleteEvent)
	user.POST("/conflicts", s.handleConflicts)
	user.POST("/suggestions", s.handleSuggestions)
	user.GET("/booking-links", s.handleListLinks)
	user.POST("/booking-links", s.handleCreateLink)
	user.PUT("/booking-links/:slug/active", s.handleSetLinkActive)

	return r
}

// StartServer serves the API on cfg.Listen until ctx is canceled, then
// shuts down gracefully.
func StartServer(ctx context.Context, s *Server) error {
	srv := &http.Server{
		Addr:              s.current().cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
