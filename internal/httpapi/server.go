package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"breeder/internal/platform"
	"breeder/internal/problem"
)

type Options struct {
	Coordinator *platform.Coordinator
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
	// RunsPerSecond limits POST /v1/runs; <= 0 disables the limit.
	RunsPerSecond float64
	RunBurst      int
	// AllowedOrigins restricts websocket origins; empty allows any.
	AllowedOrigins []string
}

type Server struct {
	coordinator *platform.Coordinator
	hub         *Hub
	logger      *slog.Logger
	limiter     *rate.Limiter
	upgrader    websocket.Upgrader
	engine      *gin.Engine
}

// New builds the router and attaches its stream hub to the coordinator.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if opts.RunsPerSecond > 0 {
		limit = rate.Limit(opts.RunsPerSecond)
	}
	burst := opts.RunBurst
	if burst <= 0 {
		burst = 1
	}

	s := &Server{
		coordinator: opts.Coordinator,
		hub:         NewHub(),
		logger:      logger,
		limiter:     rate.NewLimiter(limit, burst),
	}
	origins := allowedOrigins(opts.AllowedOrigins)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(origins) == 0 {
				return true
			}
			_, ok := origins[normalizeOrigin(r.Header.Get("Origin"))]
			return ok
		},
	}
	s.coordinator.AddSink(s.hub)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.health)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	v1 := r.Group("/v1")
	v1.GET("/problems", s.listProblems)
	v1.POST("/runs", s.createRun)
	v1.GET("/runs", s.listRuns)
	v1.GET("/runs/:id", s.getRun)
	v1.DELETE("/runs/:id", s.cancelRun)
	v1.GET("/runs/:id/generations", s.getGenerations)
	v1.GET("/runs/:id/stream", s.stream)
	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Hub() *Hub {
	return s.hub
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"active_runs": len(s.coordinator.Active()),
		"streams":     s.hub.Count(),
	})
}

func (s *Server) listProblems(c *gin.Context) {
	type entry struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	names := problem.Names()
	out := make([]entry, 0, len(names))
	for _, name := range names {
		spec, err := problem.Lookup(name)
		if err != nil {
			continue
		}
		out = append(out, entry{Name: spec.Name, Description: spec.Description})
	}
	c.JSON(http.StatusOK, gin.H{"problems": out})
}

func (s *Server) createRun(c *gin.Context) {
	if !s.limiter.Allow() {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limited"})
		return
	}
	var req platform.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	run, err := s.coordinator.Start(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": run.ID, "status": run.Status})
}

func (s *Server) listRuns(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	runs, err := s.coordinator.ListRuns(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) getRun(c *gin.Context) {
	run, ok, err := s.coordinator.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) cancelRun(c *gin.Context) {
	if err := s.coordinator.Cancel(c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": c.Param("id"), "status": "cancelling"})
}

func (s *Server) getGenerations(c *gin.Context) {
	id := c.Param("id")
	generations, ok, err := s.coordinator.Generations(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !ok {
		if _, exists, _ := s.coordinator.GetRun(c.Request.Context(), id); !exists {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"run_id": id, "generations": generations})
}

func (s *Server) stream(c *gin.Context) {
	id := c.Param("id")
	if _, ok, err := s.coordinator.GetRun(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	} else if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	cl := s.hub.subscribe(id, conn)
	// The run may have finished before subscribe; the final record is
	// persisted before the hub hears about it.
	if run, ok, err := s.coordinator.GetRun(c.Request.Context(), id); err == nil && ok && run.Status.Terminal() {
		s.hub.finish(cl, run)
	}
	go cl.writePump()
	cl.readPump(s.hub)
}

func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, platform.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, platform.ErrRunNotActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, platform.ErrNotStarted):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(started),
		)
	}
}

func normalizeOrigin(v string) string {
	u, err := url.Parse(strings.TrimSpace(v))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

func allowedOrigins(raw []string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, item := range raw {
		if n := normalizeOrigin(item); n != "" {
			out[n] = struct{}{}
		}
	}
	return out
}
