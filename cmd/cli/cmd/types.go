package cmd

import "github.com/agent-governor/agent-governor/pkg/models"

// Re-export shared models for CLI use
type (
	AgentStats      = models.AgentStats
	AgentCost       = models.AgentCost
	ErrorStat       = models.ErrorStat
	OperationStat   = models.OperationStat
	OperationMetric = models.OperationMetric
	CostSummary     = models.CostSummary
	CostBudget      = models.CostBudget
)

// ErrorResponse is the server's error body
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// TopAgentsResponse is the response from /agents/top-expensive
type TopAgentsResponse struct {
	Agents []AgentCost `json:"agents"`
	Count  int         `json:"count"`
}

// SlowestOperationsResponse is the response from /operations/slowest
type SlowestOperationsResponse struct {
	Operations []OperationMetric `json:"operations"`
	Count      int               `json:"count"`
}

// ErrorStatsResponse is the response from /errors
type ErrorStatsResponse struct {
	Errors []ErrorStat `json:"errors"`
	Count  int         `json:"count"`
}

// OperationBreakdownResponse is the response from /agents/:agent_id/operations
type OperationBreakdownResponse struct {
	AgentID    string          `json:"agent_id"`
	Operations []OperationStat `json:"operations"`
	Count      int             `json:"count"`
}

// BudgetResponse wraps a budget with its derived status
type BudgetResponse struct {
	Budget CostBudget          `json:"budget"`
	Status models.BudgetStatus `json:"status"`
}

// BudgetAlertsResponse is the response from /budgets/alerts
type BudgetAlertsResponse struct {
	Budgets []CostBudget `json:"budgets"`
	Count   int          `json:"count"`
}

// CanExecuteResponse is the response from /budgets/:agent_id/can-execute
type CanExecuteResponse struct {
	AgentID    string `json:"agent_id"`
	CanExecute bool   `json:"can_execute"`
}
