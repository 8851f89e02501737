package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/agent-governor/agent-governor/internal/service/analytics"
	"github.com/agent-governor/agent-governor/pkg/models"
)

// Request/Response types

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse is the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services,omitempty"`
}

// ReadyResponse is the readiness check response
type ReadyResponse struct {
	Ready     bool      `json:"ready"`
	Timestamp time.Time `json:"timestamp"`
}

// TopAgentsResponse lists the most expensive agents
type TopAgentsResponse struct {
	Agents []models.AgentCost `json:"agents"`
	Count  int                `json:"count"`
}

// SlowestOperationsResponse lists the longest-running operations
type SlowestOperationsResponse struct {
	Operations []*models.OperationMetric `json:"operations"`
	Count      int                       `json:"count"`
}

// ErrorStatsResponse lists failures grouped by error type
type ErrorStatsResponse struct {
	Errors []models.ErrorStat `json:"errors"`
	Count  int                `json:"count"`
}

// OperationBreakdownResponse lists per-operation totals for one agent
type OperationBreakdownResponse struct {
	AgentID    string                 `json:"agent_id"`
	Operations []models.OperationStat `json:"operations"`
	Count      int                    `json:"count"`
}

// Handlers

func (s *Server) handleHealth(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Services:  make(map[string]string),
	}

	// Check services
	if s.monitor != nil && s.monitor.IsRunning() {
		response.Services["budget_monitor"] = "running"
	} else {
		response.Services["budget_monitor"] = "stopped"
	}

	// Return 503 if not ready
	if !s.ready.Load() {
		response.Status = "unavailable"
		response.Services["ready"] = "false"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	response.Services["ready"] = "true"
	c.JSON(http.StatusOK, response)
}

func (s *Server) handleReady(c *gin.Context) {
	response := ReadyResponse{
		Ready:     s.ready.Load(),
		Timestamp: time.Now(),
	}

	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) handleAgentStats(c *gin.Context) {
	ctx := c.Request.Context()

	window, ok := s.bindWindow(c)
	if !ok {
		return
	}

	stats, err := s.analytics.StatsForAgent(ctx, c.Param("agent_id"), window)
	if err != nil {
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleOperationBreakdown(c *gin.Context) {
	ctx := c.Request.Context()
	agentID := c.Param("agent_id")

	window, ok := s.bindWindow(c)
	if !ok {
		return
	}

	ops, err := s.analytics.OperationBreakdown(ctx, agentID, window)
	if err != nil {
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, OperationBreakdownResponse{
		AgentID:    agentID,
		Operations: ops,
		Count:      len(ops),
	})
}

func (s *Server) handleTopExpensiveAgents(c *gin.Context) {
	ctx := c.Request.Context()

	limit, ok := s.bindLimit(c)
	if !ok {
		return
	}
	window, ok := s.bindWindow(c)
	if !ok {
		return
	}

	agents, err := s.analytics.TopExpensiveAgents(ctx, limit, window)
	if err != nil {
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, TopAgentsResponse{Agents: agents, Count: len(agents)})
}

func (s *Server) handleSlowestOperations(c *gin.Context) {
	ctx := c.Request.Context()

	limit, ok := s.bindLimit(c)
	if !ok {
		return
	}
	window, ok := s.bindWindow(c)
	if !ok {
		return
	}

	ops, err := s.analytics.SlowestOperations(ctx, limit, window)
	if err != nil {
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, SlowestOperationsResponse{Operations: ops, Count: len(ops)})
}

func (s *Server) handleErrorStats(c *gin.Context) {
	ctx := c.Request.Context()

	window, ok := s.bindWindow(c)
	if !ok {
		return
	}

	stats, err := s.analytics.ErrorStats(ctx, window)
	if err != nil {
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, ErrorStatsResponse{Errors: stats, Count: len(stats)})
}

func (s *Server) handleCostSummary(c *gin.Context) {
	ctx := c.Request.Context()

	var window models.TimeWindow
	if period := c.Query("period"); period != "" {
		w, err := s.analytics.PeriodWindow(period)
		if err != nil {
			s.badRequest(c, err.Error())
			return
		}
		window = w
	} else {
		w, ok := s.bindWindow(c)
		if !ok {
			return
		}
		window = w
	}

	summary, err := s.analytics.CostSummary(ctx, window)
	if err != nil {
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Query helpers

// bindLimit parses ?limit=; absent means the service default
func (s *Server) bindLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		s.badRequest(c, fmt.Sprintf("invalid limit: must be a positive integer, got %q", raw))
		return 0, false
	}
	if limit > analytics.MaxLimit {
		limit = analytics.MaxLimit
	}
	return limit, true
}

// bindWindow parses ?start= and ?end= as RFC3339 or YYYY-MM-DD
func (s *Server) bindWindow(c *gin.Context) (models.TimeWindow, bool) {
	var window models.TimeWindow

	if raw := c.Query("start"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			s.badRequest(c, fmt.Sprintf("invalid start: %v", err))
			return window, false
		}
		window.Start = t
	}
	if raw := c.Query("end"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			s.badRequest(c, fmt.Sprintf("invalid end: %v", err))
			return window, false
		}
		window.End = t
	}

	if !window.Start.IsZero() && !window.End.IsZero() && !window.Start.Before(window.End) {
		s.badRequest(c, "start must be before end")
		return window, false
	}

	return window, true
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("expected RFC3339 or YYYY-MM-DD, got %q", raw)
}

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:     msg,
		RequestID: c.GetString("request_id"),
	})
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.logger.ErrorContext(c.Request.Context(), "request failed",
		slog.String("path", c.FullPath()),
		slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:     "internal server error",
		RequestID: c.GetString("request_id"),
	})
}

// sanitizeValidationError converts validator errors to user-friendly messages
func sanitizeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err.Error()
	}

	var messages []string
	for _, fe := range validationErrs {
		// Convert field name to JSON tag name (snake_case)
		jsonFieldName := toSnakeCase(fe.Field())
		switch fe.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", jsonFieldName))
		case "min":
			messages = append(messages, fmt.Sprintf("%s must be at least %s", jsonFieldName, fe.Param()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s", jsonFieldName, fe.Param()))
		case "gt":
			messages = append(messages, fmt.Sprintf("%s must be greater than %s", jsonFieldName, fe.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s failed validation (%s)", jsonFieldName, fe.Tag()))
		}
	}
	return strings.Join(messages, "; ")
}

var snakeCaseRegex = regexp.MustCompile("([a-z0-9])([A-Z])")

// toSnakeCase converts a PascalCase or camelCase string to snake_case
func toSnakeCase(s string) string {
	// Handle names whose acronyms the regex would split badly
	fieldMappings := map[string]string{
		"AgentID":          "agent_id",
		"PageID":           "page_id",
		"DailyBudgetUSD":   "daily_budget_usd",
		"MonthlyBudgetUSD": "monthly_budget_usd",
		"APICalls":         "api_calls",
	}
	if mapped, ok := fieldMappings[s]; ok {
		return mapped
	}
	return strings.ToLower(snakeCaseRegex.ReplaceAllString(s, "${1}_${2}"))
}
