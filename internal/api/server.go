package api

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getkin/kin-openapi/routers"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/agentshub/internal/aiconnectors"
)

//go:embed web/index.html
var indexHTML []byte

// Probe checks one backing service for the deep health endpoint.
type Probe func(ctx context.Context) aiconnectors.ProbeResult

// ServerOptions configures the HTTP surface.
type ServerOptions struct {
	Port          int
	JWTSecret     string
	RateLimit     float64 // requests per second per client IP; <= 0 disables
	OllamaBaseURL string
	Probes        []Probe
	DocsDir       string // ingest requests may only name files under it
}

// Server represents the API server
type Server struct {
	echo   *echo.Echo
	port   int
	hub    *Hub
	tokens *TokenService
	probes []Probe
	docs   string
}

// NewServer creates a new API server
func NewServer(ctx context.Context, hub *Hub, opts ServerOptions) (*Server, error) {
	tokens, err := NewTokenService(opts.JWTSecret)
	if err != nil {
		return nil, err
	}
	router, err := loadRouter(ctx)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	if opts.RateLimit > 0 {
		store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(opts.RateLimit),
			Burst:     int(math.Max(1, math.Ceil(opts.RateLimit))),
			ExpiresIn: 3 * time.Minute,
		})
		e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Skipper: func(c echo.Context) bool {
				return !strings.HasPrefix(c.Request().URL.Path, "/api/")
			},
			Store: store,
		}))
	}

	server := &Server{
		echo:   e,
		port:   opts.Port,
		hub:    hub,
		tokens: tokens,
		probes: opts.Probes,
		docs:   opts.DocsDir,
	}

	// Setup routes
	server.setupRoutes(router, opts.OllamaBaseURL)

	return server, nil
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes(router routers.Router, ollamaBaseURL string) {
	s.echo.GET("/", func(c echo.Context) error {
		return c.HTMLBlob(http.StatusOK, indexHTML)
	})
	s.echo.GET("/health", s.health)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 group
	v1 := s.echo.Group("/api/v1", ValidateRequests(router))
	v1.GET("/agents", s.listAgents)
	aiconnectors.RegisterHandlers(v1, ollamaBaseURL)
	v1.POST("/sessions", s.createSession)
	v1.POST("/knowledge/ingest", s.ingestKnowledge)

	sessions := v1.Group("/sessions/:id", RequireSession(s.tokens))
	sessions.GET("", s.getSession)
	sessions.DELETE("", s.deleteSession)
	sessions.GET("/messages", s.listMessages)
	sessions.POST("/agents/:agent/init", s.initAgent)
	sessions.POST("/chat", s.chat)
	sessions.POST("/code", s.code)
	sessions.POST("/learning", s.learning)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is cancelled or the process is interrupted, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", s.port).Msg("API server listening")
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info().Msg("Shutting down API server")
	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) health(c echo.Context) error {
	deep := c.QueryParam("deep")
	if deep == "" || deep == "0" || deep == "false" || len(s.probes) == 0 {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	}

	results := make([]aiconnectors.ProbeResult, len(s.probes))
	g, ctx := errgroup.WithContext(c.Request().Context())
	for i, probe := range s.probes {
		g.Go(func() error {
			results[i] = probe(ctx)
			return nil
		})
	}
	_ = g.Wait()

	status, code := "healthy", http.StatusOK
	for _, r := range results {
		if !r.OK {
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	return c.JSON(code, map[string]any{
		"status":   status,
		"services": results,
	})
}
