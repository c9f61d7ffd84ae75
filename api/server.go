package api

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"salvage-radar/models"
	"salvage-radar/storage"
	"salvage-radar/utils"
)

// Server is the read-only HTTP API over the offer store and the last run.
type Server struct {
	router     *gin.Engine
	store      storage.OfferStore
	reportPath string
	minMargin  float64
	logger     *utils.Logger

	mu     sync.RWMutex
	latest *models.RunReport
}

// Options tune a Server.
type Options struct {
	// ReportPath is read by /api/runs/latest until a run finishes in this
	// process.
	ReportPath string
	// MinMargin is the qualified-offer threshold when the query omits one.
	MinMargin float64
	// AllowOrigins lists CORS origins; empty or "*" allows all.
	AllowOrigins []string
}

func NewServer(store storage.OfferStore, gatherer prometheus.Gatherer, opts Options, logger *utils.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), corsMiddleware(opts.AllowOrigins))

	s := &Server{
		router:     router,
		store:      store,
		reportPath: opts.ReportPath,
		minMargin:  opts.MinMargin,
		logger:     logger,
	}

	router.GET("/healthz", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	api.GET("/offers/qualified", s.qualifiedOffers)
	api.GET("/offers/unanalyzed", s.unanalyzedOffers)
	api.GET("/stats", s.stats)
	api.GET("/runs/latest", s.latestRun)

	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetLatest records the report of the run that just finished.
func (s *Server) SetLatest(r *models.RunReport) {
	s.mu.Lock()
	s.latest = r
	s.mu.Unlock()
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("[api] Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("[api] Shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) qualifiedOffers(c *gin.Context) {
	minMargin := s.minMargin
	if raw := c.Query("min_margin"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_margin must be a number"})
			return
		}
		minMargin = v
	}

	qualified, err := s.store.ListQualified(c.Request.Context(), minMargin)
	if err != nil {
		s.internalError(c, "list qualified", err)
		return
	}

	offers := make([]models.FlatOffer, 0, len(qualified))
	for _, q := range qualified {
		offers = append(offers, models.Flatten(q.Offer, q.Analysis))
	}
	c.JSON(http.StatusOK, gin.H{"min_margin": minMargin, "count": len(offers), "offers": offers})
}

func (s *Server) unanalyzedOffers(c *gin.Context) {
	offers, err := s.store.ListUnanalyzed(c.Request.Context())
	if err != nil {
		s.internalError(c, "list unanalyzed", err)
		return
	}
	if offers == nil {
		offers = []*models.Offer{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(offers), "offers": offers})
}

func (s *Server) stats(c *gin.Context) {
	st, err := s.store.Stats(c.Request.Context())
	if err != nil {
		s.internalError(c, "stats", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) latestRun(c *gin.Context) {
	s.mu.RLock()
	r := s.latest
	s.mu.RUnlock()

	if r == nil && s.reportPath != "" {
		loaded, err := storage.ReadReport(s.reportPath)
		if err != nil {
			s.logger.Debug("[api] No run report at %s: %v", s.reportPath, err)
		} else {
			r = loaded
		}
	}
	if r == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run has completed yet"})
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) internalError(c *gin.Context, op string, err error) {
	s.logger.Error("[api] %s failed: %v", op, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": op + " failed"})
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Accept", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func requestLogger(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("[api] %s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
