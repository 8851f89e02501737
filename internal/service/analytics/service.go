package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agent-governor/agent-governor/internal/service/budget"
	"github.com/agent-governor/agent-governor/pkg/models"
)

const (
	// DefaultLimit is used when a ranking query asks for no positive limit
	DefaultLimit = 10

	// MaxLimit caps ranking queries
	MaxLimit = 100
)

// MetricReader is the read side of the operation metric store
type MetricReader interface {
	Aggregate(ctx context.Context, agentID string, window models.TimeWindow) (*models.OperationAggregate, error)
	TopAgentsByCost(ctx context.Context, limit int, window models.TimeWindow) ([]models.AgentCost, error)
	Slowest(ctx context.Context, limit int, window models.TimeWindow) ([]*models.OperationMetric, error)
	ErrorBreakdown(ctx context.Context, window models.TimeWindow) ([]models.ErrorStat, error)
	OperationBreakdown(ctx context.Context, agentID string, window models.TimeWindow) ([]models.OperationStat, error)
}

// BudgetReader looks up agent budgets
type BudgetReader interface {
	GetBudget(ctx context.Context, agentID string) (*models.CostBudget, error)
}

// Service answers read-only reporting queries over recorded operations.
// Empty data yields zero values, never errors.
type Service struct {
	metrics MetricReader
	budgets BudgetReader
	now     func() time.Time
}

// Option configures the service
type Option func(*Service)

// WithTimeFunc sets a custom time function (for testing)
func WithTimeFunc(fn func() time.Time) Option {
	return func(s *Service) {
		s.now = fn
	}
}

// New creates a new analytics service
func New(metrics MetricReader, budgets BudgetReader, opts ...Option) *Service {
	s := &Service{
		metrics: metrics,
		budgets: budgets,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StatsForAgent summarizes one agent's operations and budget state
func (s *Service) StatsForAgent(ctx context.Context, agentID string, window models.TimeWindow) (*models.AgentStats, error) {
	agg, err := s.metrics.Aggregate(ctx, agentID, window)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent stats: %w", err)
	}

	stats := &models.AgentStats{
		AgentID:         agentID,
		TotalOperations: agg.TotalOperations,
		TotalCostUSD:    agg.TotalCostUSD,
		TotalTokensUsed: agg.TotalTokensUsed,
		BudgetStatus:    models.BudgetOK,
		Window:          window,
	}
	if agg.TotalOperations > 0 {
		stats.SuccessRate = float64(agg.SuccessCount) / float64(agg.TotalOperations)
		stats.AvgDurationMs = float64(agg.TotalDurationMs) / float64(agg.TotalOperations)
	}

	b, err := s.budgets.GetBudget(ctx, agentID)
	switch {
	case errors.Is(err, budget.ErrBudgetNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to get agent budget: %w", err)
	default:
		stats.BudgetStatus = b.StatusAt(s.now())
	}

	return stats, nil
}

// TopExpensiveAgents ranks agents by total cost
func (s *Service) TopExpensiveAgents(ctx context.Context, limit int, window models.TimeWindow) ([]models.AgentCost, error) {
	agents, err := s.metrics.TopAgentsByCost(ctx, clampLimit(limit), window)
	if err != nil {
		return nil, fmt.Errorf("failed to get top agents: %w", err)
	}
	return agents, nil
}

// SlowestOperations returns the longest operations first
func (s *Service) SlowestOperations(ctx context.Context, limit int, window models.TimeWindow) ([]*models.OperationMetric, error) {
	ops, err := s.metrics.Slowest(ctx, clampLimit(limit), window)
	if err != nil {
		return nil, fmt.Errorf("failed to get slowest operations: %w", err)
	}
	return ops, nil
}

// ErrorStats groups failed operations by error type
func (s *Service) ErrorStats(ctx context.Context, window models.TimeWindow) ([]models.ErrorStat, error) {
	stats, err := s.metrics.ErrorBreakdown(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("failed to get error stats: %w", err)
	}
	return stats, nil
}

// CostSummary totals cost over all agents
func (s *Service) CostSummary(ctx context.Context, window models.TimeWindow) (*models.CostSummary, error) {
	agg, err := s.metrics.Aggregate(ctx, "", window)
	if err != nil {
		return nil, fmt.Errorf("failed to get cost summary: %w", err)
	}

	summary := &models.CostSummary{
		TotalCostUSD:    agg.TotalCostUSD,
		TotalOperations: agg.TotalOperations,
		Window:          window,
	}
	if agg.TotalOperations > 0 {
		summary.AvgCostPerOperation = agg.TotalCostUSD / float64(agg.TotalOperations)
	}
	return summary, nil
}

// OperationBreakdown returns per-operation totals for one agent
func (s *Service) OperationBreakdown(ctx context.Context, agentID string, window models.TimeWindow) ([]models.OperationStat, error) {
	ops, err := s.metrics.OperationBreakdown(ctx, agentID, window)
	if err != nil {
		return nil, fmt.Errorf("failed to get operation breakdown: %w", err)
	}
	return ops, nil
}

// Period names accepted by PeriodWindow
const (
	PeriodDaily   = "daily"
	PeriodMonthly = "monthly"
)

// PeriodWindow returns the trailing window for a budget period ending now
func (s *Service) PeriodWindow(period string) (models.TimeWindow, error) {
	now := s.now()
	switch period {
	case PeriodDaily:
		return models.TimeWindow{Start: now.Add(-budget.DailyPeriod)}, nil
	case PeriodMonthly:
		return models.TimeWindow{Start: now.Add(-budget.MonthlyPeriod)}, nil
	default:
		return models.TimeWindow{}, fmt.Errorf("unknown period %q (use %s or %s)", period, PeriodDaily, PeriodMonthly)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
