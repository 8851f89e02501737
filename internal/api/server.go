package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"runtime/debug"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/agent-governor/agent-governor/internal/logging"
	"github.com/agent-governor/agent-governor/internal/metrics"
	"github.com/agent-governor/agent-governor/internal/service/analytics"
	"github.com/agent-governor/agent-governor/internal/service/budget"
	"github.com/agent-governor/agent-governor/internal/service/telemetry"
)

// Server is the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger

	// Services
	analytics *analytics.Service
	ledger    *budget.Ledger
	tracker   *telemetry.Tracker
	monitor   *budget.Monitor

	// Configuration
	host           string
	port           int
	adminTokenHash []byte

	// Readiness state (atomic for thread-safe access)
	ready atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHost sets the server host
func WithHost(host string) Option {
	return func(s *Server) {
		s.host = host
	}
}

// WithPort sets the server port
func WithPort(port int) Option {
	return func(s *Server) {
		s.port = port
	}
}

// WithAdminTokenHash protects budget mutations with a bcrypt-hashed bearer token
func WithAdminTokenHash(hash string) Option {
	return func(s *Server) {
		if hash != "" {
			s.adminTokenHash = []byte(hash)
		}
	}
}

// WithMonitor reports the budget monitor in health checks
func WithMonitor(monitor *budget.Monitor) Option {
	return func(s *Server) {
		s.monitor = monitor
	}
}

// New creates a new API server
func New(
	svc *analytics.Service,
	ledger *budget.Ledger,
	tracker *telemetry.Tracker,
	opts ...Option,
) *Server {
	s := &Server{
		logger:    slog.Default(),
		analytics: svc,
		ledger:    ledger,
		tracker:   tracker,
		host:      "0.0.0.0",
		port:      8080,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.adminTokenHash == nil {
		s.logger.Warn("no admin token hash configured, budget administration is unauthenticated")
	}

	s.setupRouter()
	return s
}

// SetReady sets the server readiness state
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
	s.logger.Info("server readiness changed", slog.Bool("ready", ready))
}

// IsReady returns whether the server is ready to accept traffic
func (s *Server) IsReady() bool {
	return s.ready.Load()
}

// setupRouter configures the Gin router
func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Add middleware
	router.Use(s.requestIDMiddleware())
	router.Use(s.metricsMiddleware())
	router.Use(s.bodySizeLimitMiddleware(1 << 20)) // 1MB limit
	router.Use(s.loggingMiddleware())
	router.Use(s.recoveryMiddleware())

	// Health and readiness endpoints
	router.GET("/health", s.handleHealth)
	router.GET("/ready", s.handleReady)

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Agents
		v1.GET("/agents/top-expensive", s.handleTopExpensiveAgents)
		v1.GET("/agents/:agent_id/stats", s.handleAgentStats)
		v1.GET("/agents/:agent_id/operations", s.handleOperationBreakdown)

		// Operations
		v1.GET("/operations/slowest", s.handleSlowestOperations)
		v1.POST("/operations", s.handleIngestOperation)

		// Errors and costs
		v1.GET("/errors", s.handleErrorStats)
		v1.GET("/costs/summary", s.handleCostSummary)

		// Budgets
		v1.GET("/budgets/alerts", s.handleBudgetAlerts)
		v1.GET("/budgets/:agent_id", s.handleGetBudget)
		v1.GET("/budgets/:agent_id/can-execute", s.handleCanExecute)

		admin := v1.Group("/budgets", s.adminAuthMiddleware())
		admin.POST("", s.handleInitializeBudget)
		admin.POST("/:agent_id/reset", s.handleResetBudget)
	}

	s.router = router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	s.logger.Info("starting API server", slog.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router returns the Gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Middleware

// validRequestIDRegex allows alphanumeric, dots, underscores, and hyphens up to 128 chars.
var validRequestIDRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)

func isValidRequestID(id string) bool {
	return id != "" && validRequestIDRegex.MatchString(id)
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if !isValidRequestID(requestID) {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Use the matched route pattern for consistent path labels
		// This prevents high cardinality from path parameters like /budgets/:agent_id
		path := c.FullPath()
		if path == "" {
			// Fallback for unmatched routes (404s)
			path = "unmatched"
		}

		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method

		metrics.RecordHTTPRequest(method, path, status, duration)
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		s.logger.Info("request completed",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("latency", latency),
			slog.String("request_id", c.GetString("request_id")),
			slog.String("client_ip", c.ClientIP()))
	}
}

func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				stack := string(debug.Stack())
				s.logger.Error("panic recovered",
					slog.Any("error", err),
					slog.String("stack", stack),
					slog.String("request_id", c.GetString("request_id")))

				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Error:     "internal server error",
					RequestID: c.GetString("request_id"),
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

func (s *Server) bodySizeLimitMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// adminAuthMiddleware checks "Authorization: Bearer <token>" against the
// configured bcrypt hash. Without a hash every request passes.
func (s *Server) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.adminTokenHash == nil {
			c.Next()
			return
		}

		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error:     "missing bearer token",
				RequestID: c.GetString("request_id"),
			})
			return
		}

		if err := bcrypt.CompareHashAndPassword(s.adminTokenHash, []byte(token)); err != nil {
			s.logger.Warn("rejected admin request",
				slog.String("path", c.FullPath()),
				slog.String("request_id", c.GetString("request_id")),
				slog.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Error:     "invalid admin token",
				RequestID: c.GetString("request_id"),
			})
			return
		}

		c.Next()
	}
}
