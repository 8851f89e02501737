package models

import "time"

// DailyResetPeriod is the elapsed time after which today's spend rolls over
const DailyResetPeriod = 24 * time.Hour

// BudgetStatus summarizes where an agent sits relative to its ceilings
type BudgetStatus string

const (
	BudgetOK       BudgetStatus = "ok"
	BudgetWarning  BudgetStatus = "warning"
	BudgetExceeded BudgetStatus = "exceeded"
)

// CostBudget is the per-agent running spend ledger row
type CostBudget struct {
	AgentID          string    `json:"agent_id"`
	DailyBudgetUSD   float64   `json:"daily_budget_usd"`
	MonthlyBudgetUSD float64   `json:"monthly_budget_usd"`
	AlertThreshold   float64   `json:"alert_threshold"` // Fraction of a ceiling, (0,1]
	TodaySpentUSD    float64   `json:"today_spent_usd"`
	MonthSpentUSD    float64   `json:"month_spent_usd"`
	LastDailyReset   time.Time `json:"last_daily_reset"`
	LastMonthlyReset time.Time `json:"last_monthly_reset"`
	BudgetExceeded   bool      `json:"budget_exceeded"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IsOverCeiling reports whether either running total is above its ceiling
func (b *CostBudget) IsOverCeiling() bool {
	return b.TodaySpentUSD > b.DailyBudgetUSD || b.MonthSpentUSD > b.MonthlyBudgetUSD
}

// StatusAt derives ok/warning/exceeded from the row as of now. Warning is
// based on the daily ceiling only and lapses once the day has rolled over,
// even before the next spend writes the reset. The exceeded flag is reported
// as stored, matching what admission checks see.
func (b *CostBudget) StatusAt(now time.Time) BudgetStatus {
	if b == nil {
		return BudgetOK
	}
	if b.BudgetExceeded {
		return BudgetExceeded
	}
	if now.Sub(b.LastDailyReset) >= DailyResetPeriod {
		return BudgetOK
	}
	if b.TodaySpentUSD > b.DailyBudgetUSD*b.AlertThreshold {
		return BudgetWarning
	}
	return BudgetOK
}

// AlertType distinguishes early warnings from hard ceiling breaches
type AlertType string

const (
	AlertWarning  AlertType = "warning"
	AlertExceeded AlertType = "exceeded"
)

// BudgetAlert is emitted when an agent approaches or exceeds a ceiling
type BudgetAlert struct {
	AgentID        string    `json:"agent_id"`
	AlertType      AlertType `json:"alert_type"`
	Period         string    `json:"period"` // "daily" or "monthly"
	SpentUSD       float64   `json:"spent_usd"`
	BudgetUSD      float64   `json:"budget_usd"`
	Percentage     float64   `json:"percentage"`
	AlertThreshold float64   `json:"alert_threshold"`
	Timestamp      time.Time `json:"timestamp"`
}
