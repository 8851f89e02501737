package models

import "time"

// OperationMetric is the immutable record written once per tracked operation
type OperationMetric struct {
	ID              string    `json:"id"`
	AgentID         string    `json:"agent_id"`
	Operation       string    `json:"operation"`
	PageID          string    `json:"page_id,omitempty"`
	DurationMs      int64     `json:"duration_ms"`
	TokensUsed      int64     `json:"tokens_used"`
	CostUSD         float64   `json:"cost_usd"`
	CacheHitRate    *float64  `json:"cache_hit_rate,omitempty"` // Fraction in [0,1]
	DatabaseQueries int       `json:"database_queries"`
	APICalls        int       `json:"api_calls"`
	Success         bool      `json:"success"`
	ErrorType       string    `json:"error_type,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	MemoryMB        *float64  `json:"memory_mb,omitempty"`
	CPUPercent      *float64  `json:"cpu_percent,omitempty"`
	Timestamp       time.Time `json:"timestamp"` // Assigned at persistence time
}

// Normalize clamps negative counters to zero and drops error fields on
// successful operations.
func (m *OperationMetric) Normalize() {
	if m.DurationMs < 0 {
		m.DurationMs = 0
	}
	if m.TokensUsed < 0 {
		m.TokensUsed = 0
	}
	if m.CostUSD < 0 {
		m.CostUSD = 0
	}
	if m.DatabaseQueries < 0 {
		m.DatabaseQueries = 0
	}
	if m.APICalls < 0 {
		m.APICalls = 0
	}
	if m.CacheHitRate != nil {
		rate := *m.CacheHitRate
		switch {
		case rate < 0:
			rate = 0
		case rate > 1:
			rate = 1
		}
		m.CacheHitRate = &rate
	}
	if m.Success {
		m.ErrorType = ""
		m.ErrorMessage = ""
	}
}

// TimeWindow bounds an analytics query to [Start, End). A zero bound is open.
type TimeWindow struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// Contains reports whether t falls inside the window
func (w TimeWindow) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && !t.Before(w.End) {
		return false
	}
	return true
}
