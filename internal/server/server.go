// Package server exposes a canvas session over HTTP and streams its store
// events over a websocket.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/Inferara/web3-canvas-sub000/internal/config"
	"github.com/Inferara/web3-canvas-sub000/pkg/canvas"
)

// Metrics is what the server records about requests and streams
type Metrics interface {
	RequestObserved(method, route string, code int, d time.Duration)
	StreamOpened(delta int)
	Handler() http.Handler
}

type nopMetrics struct{}

func (nopMetrics) RequestObserved(string, string, int, time.Duration) {}
func (nopMetrics) StreamOpened(int)                                   {}
func (nopMetrics) Handler() http.Handler                              { return http.NotFoundHandler() }

// Option configures a Server
type Option func(*Server)

func WithLogger(logger hclog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records requests and serves /metrics
func WithMetrics(m Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
			s.exposeMetrics = true
		}
	}
}

// Server routes API calls onto one session
type Server struct {
	session       *canvas.Session
	logger        hclog.Logger
	metrics       Metrics
	exposeMetrics bool
	hub           *Hub
	router        *gin.Engine
}

// New builds the router. The caller sets the gin mode.
func New(session *canvas.Session, opts ...Option) *Server {
	s := &Server{
		session: session,
		logger:  hclog.NewNullLogger(),
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("http")
	s.hub = NewHub(session.Store(), s.logger.Named("stream"), s.metrics)
	s.router = s.routes()
	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the event stream hub
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.observe())

	r.GET("/health", s.health)
	if s.exposeMetrics {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := r.Group("/v1")
	{
		v1.GET("/palette", s.palette)
		v1.GET("/graph", s.getGraph)
		v1.PUT("/graph", s.putGraph)
		v1.GET("/export", s.export)
		v1.GET("/share", s.share)
		v1.POST("/share/load", s.loadShare)
		v1.POST("/save", s.save)
		v1.GET("/snapshots", s.snapshots)
		v1.POST("/snapshots/:id/restore", s.restore)
		v1.GET("/ws", s.hub.Handle)

		nodes := v1.Group("/nodes")
		{
			nodes.POST("", s.addNode)
			nodes.DELETE("/:id", s.removeNode)
			nodes.PATCH("/:id/fields", s.setFields)
			nodes.PATCH("/:id/position", s.moveNode)
			nodes.POST("/:id/refresh", s.refresh)
		}
		edges := v1.Group("/edges")
		{
			edges.POST("", s.connect)
			edges.DELETE("/:id", s.disconnect)
		}
	}
	return r
}

// observe records every request once the handler returns
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		d := time.Since(start)
		code := c.Writer.Status()
		s.metrics.RequestObserved(c.Request.Method, route, code, d)
		s.logger.Debug("request", "method", c.Request.Method, "route", route, "status", code, "duration", d)
	}
}

// Run serves on cfg.Addr until ctx is cancelled, then drains connections for
// at most cfg.ShutdownTimeout
func (s *Server) Run(ctx context.Context, cfg config.ServerConfig) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", cfg.Addr)
	}
	return s.Serve(ctx, ln, cfg)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener, cfg config.ServerConfig) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: cfg.ReadTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	s.hub.Close()
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

// Close disconnects stream clients
func (s *Server) Close() {
	s.hub.Close()
}
