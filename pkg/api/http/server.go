package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/aescanero/routerd/internal/application/orchestrator"
	"github.com/aescanero/routerd/internal/config"
	"github.com/aescanero/routerd/internal/graph"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ErrUnknownGraphInRoute is raised at startup when a route references a
// graph the routing document does not declare.
var ErrUnknownGraphInRoute = errors.New("unknown graph in route")

// Server is the inbound HTTP front-end: the configured route table plus
// the health, metrics and debug endpoints, served on the configured v4
// and/or v6 listeners.
type Server struct {
	router  *gin.Engine
	servers []boundServer
	logger  *zap.Logger
}

// boundServer pins an http.Server to the network its listener must use.
type boundServer struct {
	network string
	srv     *http.Server
}

// Config holds HTTP server configuration
type Config struct {
	Document     *config.Document
	Graphs       map[string]*graph.CompiledGraph
	Orchestrator *orchestrator.Orchestrator
	Logger       *zap.Logger
}

// NewServer builds the route table and listeners from the routing
// document. Fails with ErrUnknownGraphInRoute when a route names an
// undeclared graph.
func NewServer(cfg *Config) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(cfg.Logger))

	s := &Server{
		router: router,
		logger: cfg.Logger,
	}

	if err := s.setupRoutes(cfg); err != nil {
		return nil, err
	}

	port := strconv.Itoa(int(cfg.Document.Port))
	if cfg.Document.Bind4 == "" && cfg.Document.Bind6 == "" {
		s.servers = append(s.servers, boundServer{
			network: "tcp",
			srv:     &http.Server{Addr: ":" + port, Handler: router},
		})
	} else {
		if cfg.Document.Bind4 != "" {
			s.servers = append(s.servers, boundServer{
				network: "tcp4",
				srv:     &http.Server{Addr: net.JoinHostPort(cfg.Document.Bind4, port), Handler: router},
			})
		}
		if cfg.Document.Bind6 != "" {
			s.servers = append(s.servers, boundServer{
				network: "tcp6",
				srv:     &http.Server{Addr: net.JoinHostPort(cfg.Document.Bind6, port), Handler: router},
			})
		}
	}

	return s, nil
}

// setupRoutes configures the admin endpoints and the configured proxy
// routes. The URL pattern dialect of the route table is gin's.
func (s *Server) setupRoutes(cfg *Config) error {
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	for _, route := range cfg.Document.Routes {
		g, ok := cfg.Graphs[route.Graph]
		if !ok {
			return fmt.Errorf("%w: route %s references %s", ErrUnknownGraphInRoute, route.Pattern, route.Graph)
		}

		h := newProxyHandler(g, cfg.Orchestrator, cfg.Document.AllowNestedRequests, cfg.Logger)
		s.router.Any(route.Pattern, h.handle)
	}

	return nil
}

// SetupWebSocket adds the operator event stream endpoint
func (s *Server) SetupWebSocket(handler interface{ HandleEventStream(*gin.Context) }) {
	s.router.GET("/debug/events", handler.HandleEventStream)
}

// handleHealth handles liveness checks
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// Start serves on every configured listener and returns on the first
// serve error.
func (s *Server) Start() error {
	errCh := make(chan error, len(s.servers))

	for _, b := range s.servers {
		b := b
		go func() {
			s.logger.Info("starting HTTP server",
				zap.String("network", b.network),
				zap.String("addr", b.srv.Addr))

			l, err := net.Listen(b.network, b.srv.Addr)
			if err != nil {
				errCh <- fmt.Errorf("failed to listen on %s %s: %w", b.network, b.srv.Addr, err)
				return
			}
			errCh <- b.srv.Serve(l)
		}()
	}

	if err := <-errCh; err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down every listener
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	for _, b := range s.servers {
		if err := b.srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}

// requestLogger is a middleware for request logging
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		duration := time.Since(start)

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", duration),
			zap.String("client_ip", c.ClientIP()))
	}
}
