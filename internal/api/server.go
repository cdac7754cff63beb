package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oncology-therapy-mcp-server/internal/domain"
	"github.com/oncology-therapy-mcp-server/internal/metrics"
	"github.com/oncology-therapy-mcp-server/internal/middleware"
	"github.com/oncology-therapy-mcp-server/internal/service"
)

// Recommender is the engine surface used by the HTTP handlers.
type Recommender interface {
	Recommend(ctx context.Context, raw map[string]any, cancerType domain.CancerType, opts ...service.RecommendOption) (*domain.Recommendation, error)
	Subtypes(ctx context.Context, cancerType domain.CancerType) ([]service.SubtypeSummary, error)
	NarrativeConfigured() bool
}

const healthCheckTimeout = 2 * time.Second

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	recommender   Recommender
	metrics       *metrics.Metrics
	limiter       *middleware.RateLimiter
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
	checks        map[string]HealthCheck
}

// HealthCheck tests a dependency for /health.
type HealthCheck func(ctx context.Context) error

// Option configures a Server.
type Option func(*Server)

// WithHealthCheck adds a named dependency check to /health. A failing check
// turns the response into 503 "degraded".
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// NewServer creates a new HTTP server instance. m may be nil, which disables
// request metrics and the /metrics endpoint.
func NewServer(configManager domain.ConfigManager, recommender Recommender, m *metrics.Metrics, logger *logrus.Logger, opts ...Option) *Server {
	cfg := configManager.GetConfig()

	switch cfg.Server.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(cfg.Server.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	s := &Server{
		configManager: configManager,
		recommender:   recommender,
		metrics:       m,
		logger:        logger,
		router:        router,
		checks:        make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(s)
	}

	router.Use(gin.CustomRecovery(s.handlePanic))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger))
	if m != nil {
		router.Use(middleware.Metrics(m))
	}
	if cfg.RateLimit.Enabled {
		var onSize func(int)
		if m != nil {
			onSize = func(n int) { m.RateLimiterBucketsTotal.Set(float64(n)) }
		}
		s.limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, onSize)
		router.Use(s.limiter.Middleware())
	}
	router.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))

	s.setupRoutes()

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	stop := make(chan struct{})
	defer close(stop)
	if s.limiter != nil {
		s.limiter.StartPruning(10*time.Minute, stop)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/recommendations", s.handleRecommend)
		v1.GET("/knowledge-bases/:cancer_type/subtypes", s.handleListSubtypes)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	narrative := "configured"
	if !s.recommender.NarrativeConfigured() {
		narrative = "unconfigured"
	}

	status, code := "healthy", http.StatusOK
	checks := make(map[string]string, len(s.checks))
	if len(s.checks) > 0 {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()
		for name, check := range s.checks {
			if err := check(ctx); err != nil {
				s.logger.WithError(err).WithField("check", name).Warn("Health check failed")
				checks[name] = "unavailable"
				status, code = "degraded", http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"version":   s.configManager.GetConfig().MCP.ServerVersion,
		"narrative": narrative,
		"checks":    checks,
	})
}

// recommendRequest is the body of POST /api/v1/recommendations.
type recommendRequest struct {
	CancerType string         `json:"cancer_type"`
	Tier       *int           `json:"tier"`
	Advise     bool           `json:"advise"`
	Profile    map[string]any `json:"profile" binding:"required"`
}

// handleRecommend runs the engine for one patient profile
func (s *Server) handleRecommend(c *gin.Context) {
	requestID := c.GetString(middleware.CorrelationIDKey)

	var req recommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortWithError(c, http.StatusBadRequest,
			domain.NewAPIError(domain.ErrCodeInvalidInput, "invalid request body", err.Error(), requestID))
		return
	}

	var cancerType domain.CancerType
	if req.CancerType != "" {
		parsed, err := domain.ParseCancerType(req.CancerType)
		if err != nil {
			s.writeError(c, domain.NewProfileValidationError("cancer_type", err.Error(), req.CancerType), requestID)
			return
		}
		cancerType = parsed
	}

	opts := []service.RecommendOption{service.WithRequestID(requestID)}
	if req.Tier != nil {
		tier := domain.Tier(*req.Tier)
		if !tier.IsValid() {
			s.writeError(c, domain.NewProfileValidationError("tier",
				fmt.Sprintf("tier must be between 1 and 4, got %d", *req.Tier), *req.Tier), requestID)
			return
		}
		opts = append(opts, service.WithTier(tier))
	}
	if req.Advise {
		opts = append(opts, service.WithAdvice())
	}

	rec, err := s.recommender.Recommend(c.Request.Context(), req.Profile, cancerType, opts...)
	if err != nil {
		s.writeError(c, err, requestID)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// handleListSubtypes returns the curated subtypes of a cancer type
func (s *Server) handleListSubtypes(c *gin.Context) {
	requestID := c.GetString(middleware.CorrelationIDKey)

	cancerType, err := domain.ParseCancerType(c.Param("cancer_type"))
	if err != nil {
		s.abortWithError(c, http.StatusNotFound,
			domain.NewAPIError(domain.ErrCodeInvalidInput, "unsupported cancer type", err.Error(), requestID))
		return
	}

	subtypes, err := s.recommender.Subtypes(c.Request.Context(), cancerType)
	if err != nil {
		s.writeError(c, err, requestID)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cancer_type": cancerType,
		"subtypes":    subtypes,
	})
}

func (s *Server) writeError(c *gin.Context, err error, requestID string) {
	apiErr := domain.ToAPIError(err, requestID)
	s.abortWithError(c, statusFor(apiErr.Code), apiErr)
}

func (s *Server) abortWithError(c *gin.Context, status int, apiErr *domain.APIError) {
	_ = c.Error(apiErr)
	c.AbortWithStatusJSON(status, apiErr)
}

func (s *Server) handlePanic(c *gin.Context, recovered any) {
	requestID := c.GetString(middleware.CorrelationIDKey)
	s.logger.WithFields(logrus.Fields{
		"correlation_id": requestID,
		"panic":          recovered,
	}).Error("Recovered from panic in HTTP handler")
	c.AbortWithStatusJSON(http.StatusInternalServerError,
		domain.NewAPIError(domain.ErrCodeInternalServer, "internal error", "", requestID))
}

func statusFor(code string) int {
	switch code {
	case domain.ErrCodeInvalidProfile, domain.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case domain.ErrCodeUnknownSubtype:
		return http.StatusNotFound
	case domain.ErrCodeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
