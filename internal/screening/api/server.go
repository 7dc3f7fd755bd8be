package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Aidin1998/watchlist_screening/pkg/validation"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Addr         string
	ServiceName  string
	AllowOrigins []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxBodyBytes int64
	// RequestsPerSecond per client IP; zero disables the limit
	RequestsPerSecond float64
	RequestBurst      int
}

// Server is the screening HTTP server
type Server struct {
	logger     *zap.Logger
	router     *gin.Engine
	httpServer *http.Server
	checks     map[string]HealthCheck
}

// NewServer builds the router with logging, recovery, tracing, CORS, metrics
// and health endpoints, then mounts the handlers.
func NewServer(cfg ServerConfig, handlers *Handlers, gatherer prometheus.Gatherer, checks map[string]HealthCheck, logger *zap.Logger) *Server {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "screening-api"
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"*"}
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.AllowOrigins,
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Trace-ID"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}))
	if cfg.RequestsPerSecond > 0 {
		router.Use(NewIPRateLimiter(cfg.RequestsPerSecond, cfg.RequestBurst, logger.Sugar()).Middleware())
	}
	router.Use(validation.RequestGuard(cfg.MaxBodyBytes, logger.Sugar()))
	router.Use(handlers.errors.Middleware())

	s := &Server{
		logger: logger,
		router: router,
		checks: checks,
	}

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	router.GET("/health", s.healthCheck)
	handlers.RegisterRoutes(router)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Router returns the gin engine for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("Starting screening API server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	components := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{
		"status":     overall,
		"components": components,
		"timestamp":  time.Now().UTC(),
	})
}
