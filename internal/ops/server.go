// Package ops serves the operational HTTP surface of the live engine.
package ops

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gamma-omg/algo-engine/internal/accounting"
	"github.com/gamma-omg/algo-engine/internal/live"
	"github.com/gamma-omg/algo-engine/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

type StatusProvider interface {
	Status() []live.Status
}

// RunStore lists persisted backtest runs.
type RunStore interface {
	Runs(ctx context.Context) ([]store.RunSummary, error)
	Trades(ctx context.Context, runID string) ([]accounting.Trade, error)
}

type Deps struct {
	Status   StatusProvider
	Gatherer prometheus.Gatherer
	// Signals upgrades subscribers of the live signal feed. Optional.
	Signals http.Handler
	Runs    RunStore
}

type Server struct {
	log    *slog.Logger
	engine *gin.Engine
	server *http.Server
	deps   Deps
}

func NewServer(log *slog.Logger, addr string, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(loggerMiddleware(log))

	s := &Server{
		log:    log,
		engine: engine,
		deps:   deps,
		server: &http.Server{
			Addr:    addr,
			Handler: engine,
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if s.deps.Gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	if s.deps.Status != nil {
		s.engine.GET("/symbols", s.symbols)
		s.engine.GET("/symbols/:symbol", s.symbol)
	}

	if s.deps.Signals != nil {
		s.engine.GET("/ws/signals", gin.WrapH(s.deps.Signals))
	}

	if s.deps.Runs != nil {
		s.engine.GET("/runs", s.runs)
		s.engine.GET("/runs/:id/trades", s.trades)
	}
}

func (s *Server) runs(c *gin.Context) {
	runs, err := s.deps.Runs.Runs(c.Request.Context())
	if err != nil {
		s.log.Error("failed to list runs", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}

	if runs == nil {
		runs = []store.RunSummary{}
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) trades(c *gin.Context) {
	id := c.Param("id")
	trades, err := s.deps.Runs.Trades(c.Request.Context(), id)
	if err != nil {
		s.log.Error("failed to load trades", slog.String("run", id), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trades"})
		return
	}

	if trades == nil {
		trades = []accounting.Trade{}
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) symbols(c *gin.Context) {
	status := s.deps.Status.Status()
	if status == nil {
		status = []live.Status{}
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) symbol(c *gin.Context) {
	name := c.Param("symbol")
	for _, st := range s.deps.Status.Status() {
		if st.Symbol == name {
			c.JSON(http.StatusOK, st)
			return
		}
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol", "symbol": name})
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("ops server listening", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func loggerMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)))
	}
}
