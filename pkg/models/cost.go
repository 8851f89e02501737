package models

// AgentStats aggregates an agent's operations over a window
type AgentStats struct {
	AgentID         string       `json:"agent_id"`
	TotalOperations int64        `json:"total_operations"`
	SuccessRate     float64      `json:"success_rate"`
	AvgDurationMs   float64      `json:"avg_duration_ms"`
	TotalCostUSD    float64      `json:"total_cost_usd"`
	TotalTokensUsed int64        `json:"total_tokens_used"`
	BudgetStatus    BudgetStatus `json:"budget_status"`
	Window          TimeWindow   `json:"window"`
}

// AgentCost is one row of the top-spenders report
type AgentCost struct {
	AgentID        string  `json:"agent_id"`
	TotalCostUSD   float64 `json:"total_cost_usd"`
	OperationCount int64   `json:"operation_count"`
}

// ErrorStat groups failed operations by error type
type ErrorStat struct {
	ErrorType string   `json:"error_type"`
	Count     int64    `json:"count"`
	AgentIDs  []string `json:"agent_ids"`
}

// OperationStat is the per-operation breakdown for one agent
type OperationStat struct {
	Operation     string  `json:"operation"`
	Count         int64   `json:"count"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	TotalCostUSD  float64 `json:"total_cost_usd"`
}

// CostSummary provides aggregated cost information
type CostSummary struct {
	TotalCostUSD        float64    `json:"total_cost_usd"`
	TotalOperations     int64      `json:"total_operations"`
	AvgCostPerOperation float64    `json:"avg_cost_per_operation"`
	Window              TimeWindow `json:"window"`
}

// OperationAggregate is the raw aggregate row a metric store returns before
// ratios are computed
type OperationAggregate struct {
	TotalOperations int64
	SuccessCount    int64
	TotalDurationMs int64
	TotalCostUSD    float64
	TotalTokensUsed int64
}
