package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agent-governor/agent-governor/internal/logging"
	"github.com/agent-governor/agent-governor/internal/service/budget"
	"github.com/agent-governor/agent-governor/internal/service/telemetry"
	"github.com/agent-governor/agent-governor/pkg/models"
)

// InitializeBudgetRequest creates a budget for an agent. Omitted ceilings use
// the configured defaults; an existing budget is returned unchanged.
type InitializeBudgetRequest struct {
	AgentID          string   `json:"agent_id" binding:"required,max=128"`
	DailyBudgetUSD   *float64 `json:"daily_budget_usd,omitempty" binding:"omitempty,gt=0"`
	MonthlyBudgetUSD *float64 `json:"monthly_budget_usd,omitempty" binding:"omitempty,gt=0"`
}

// BudgetResponse wraps a budget with its derived status
type BudgetResponse struct {
	Budget *models.CostBudget  `json:"budget"`
	Status models.BudgetStatus `json:"status"`
}

// BudgetAlertsResponse lists agents over a ceiling
type BudgetAlertsResponse struct {
	Budgets []*models.CostBudget `json:"budgets"`
	Count   int                  `json:"count"`
}

// CanExecuteResponse answers whether an agent may keep running
type CanExecuteResponse struct {
	AgentID    string `json:"agent_id"`
	CanExecute bool   `json:"can_execute"`
}

// IngestOperationRequest reports an operation timed outside this process
type IngestOperationRequest struct {
	AgentID         string   `json:"agent_id" binding:"required,max=128"`
	Operation       string   `json:"operation" binding:"required,max=128"`
	PageID          string   `json:"page_id,omitempty" binding:"max=128"`
	DurationMs      int64    `json:"duration_ms" binding:"min=0"`
	TokensUsed      int64    `json:"tokens_used" binding:"min=0"`
	CacheHitRate    *float64 `json:"cache_hit_rate,omitempty" binding:"omitempty,min=0,max=1"`
	DatabaseQueries int      `json:"database_queries" binding:"min=0"`
	APICalls        int      `json:"api_calls" binding:"min=0"`
	Success         *bool    `json:"success" binding:"required"`
	ErrorType       string   `json:"error_type,omitempty" binding:"max=128"`
	ErrorMessage    string   `json:"error_message,omitempty" binding:"max=4096"`
}

func (s *Server) handleGetBudget(c *gin.Context) {
	ctx := c.Request.Context()
	agentID := c.Param("agent_id")

	b, err := s.ledger.GetBudget(ctx, agentID)
	if errors.Is(err, budget.ErrBudgetNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     "budget not found: " + agentID,
			RequestID: c.GetString("request_id"),
		})
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, BudgetResponse{Budget: b, Status: b.StatusAt(time.Now())})
}

func (s *Server) handleCanExecute(c *gin.Context) {
	ctx := c.Request.Context()
	agentID := c.Param("agent_id")

	allowed, err := s.ledger.CanExecute(ctx, agentID)
	if err != nil {
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, CanExecuteResponse{AgentID: agentID, CanExecute: allowed})
}

func (s *Server) handleBudgetAlerts(c *gin.Context) {
	budgets, err := s.ledger.ListBudgetAlerts(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, BudgetAlertsResponse{Budgets: budgets, Count: len(budgets)})
}

func (s *Server) handleInitializeBudget(c *gin.Context) {
	ctx := c.Request.Context()

	var req InitializeBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, sanitizeValidationError(err))
		return
	}

	b, err := s.ledger.InitializeBudget(ctx, req.AgentID, req.DailyBudgetUSD, req.MonthlyBudgetUSD)
	if errors.Is(err, budget.ErrInvalidBudget) {
		s.badRequest(c, err.Error())
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}

	logging.Audit(logging.WithAgentID(ctx, req.AgentID), "budget_initialized",
		"daily_budget_usd", b.DailyBudgetUSD,
		"monthly_budget_usd", b.MonthlyBudgetUSD,
		"client_ip", c.ClientIP())

	c.JSON(http.StatusOK, BudgetResponse{Budget: b, Status: b.StatusAt(time.Now())})
}

func (s *Server) handleResetBudget(c *gin.Context) {
	ctx := c.Request.Context()
	agentID := c.Param("agent_id")

	b, err := s.ledger.ResetBudget(ctx, agentID)
	if errors.Is(err, budget.ErrBudgetNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     "budget not found: " + agentID,
			RequestID: c.GetString("request_id"),
		})
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, BudgetResponse{Budget: b, Status: b.StatusAt(time.Now())})
}

func (s *Server) handleIngestOperation(c *gin.Context) {
	ctx := c.Request.Context()

	var req IngestOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, sanitizeValidationError(err))
		return
	}

	metric, err := s.tracker.Observe(ctx, telemetry.Observation{
		AgentID:         req.AgentID,
		Operation:       req.Operation,
		PageID:          req.PageID,
		Duration:        time.Duration(req.DurationMs) * time.Millisecond,
		TokensUsed:      req.TokensUsed,
		CacheHitRate:    req.CacheHitRate,
		DatabaseQueries: req.DatabaseQueries,
		APICalls:        req.APICalls,
		Success:         *req.Success,
		ErrorType:       req.ErrorType,
		ErrorMessage:    req.ErrorMessage,
	})
	if errors.Is(err, telemetry.ErrInvalidOperation) {
		s.badRequest(c, err.Error())
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}

	if metric == nil {
		// Metric not stored (disabled or failed); spend was still applied
		c.Status(http.StatusAccepted)
		return
	}
	c.JSON(http.StatusCreated, metric)
}
