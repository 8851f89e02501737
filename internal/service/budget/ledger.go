package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/agent-governor/agent-governor/internal/logging"
	"github.com/agent-governor/agent-governor/internal/metrics"
	"github.com/agent-governor/agent-governor/internal/storage"
	"github.com/agent-governor/agent-governor/pkg/models"
)

const (
	// DailyPeriod is the elapsed time after which today's spend rolls over
	DailyPeriod = models.DailyResetPeriod

	// MonthlyPeriod approximates a month as a fixed 30-day window
	MonthlyPeriod = 30 * 24 * time.Hour

	// DefaultDailyBudgetUSD is the daily ceiling for lazily created budgets
	DefaultDailyBudgetUSD = 10.0

	// DefaultMonthlyBudgetUSD is the monthly ceiling for lazily created budgets
	DefaultMonthlyBudgetUSD = 300.0

	// DefaultAlertThreshold is the fraction of a ceiling that triggers a warning (80%)
	DefaultAlertThreshold = 0.80
)

// Store defines the interface for budget persistence.
// Update must run fn and write its result atomically per agent.
type Store interface {
	Get(ctx context.Context, agentID string) (*models.CostBudget, error)
	CreateIfAbsent(ctx context.Context, budget *models.CostBudget) (*models.CostBudget, bool, error)
	Update(ctx context.Context, agentID string, fn func(*models.CostBudget) error) (*models.CostBudget, error)
	ListExceeded(ctx context.Context) ([]*models.CostBudget, error)
}

// AlertSender sends budget alerts
type AlertSender interface {
	SendBudgetAlert(ctx context.Context, alert models.BudgetAlert) error
}

// noopAlertSender is a default sender that does nothing
type noopAlertSender struct{}

func (n *noopAlertSender) SendBudgetAlert(ctx context.Context, alert models.BudgetAlert) error {
	return nil
}

// Config holds ledger defaults
type Config struct {
	DefaultDailyBudgetUSD   float64
	DefaultMonthlyBudgetUSD float64
	AlertThreshold          float64

	// ExceededAlertInterval limits exceeded alerts per agent. Zero alerts on
	// every update while the budget stays exceeded.
	ExceededAlertInterval time.Duration
}

// DefaultConfig returns the ledger defaults
func DefaultConfig() Config {
	return Config{
		DefaultDailyBudgetUSD:   DefaultDailyBudgetUSD,
		DefaultMonthlyBudgetUSD: DefaultMonthlyBudgetUSD,
		AlertThreshold:          DefaultAlertThreshold,
	}
}

func (c Config) withDefaults() Config {
	if c.DefaultDailyBudgetUSD <= 0 {
		c.DefaultDailyBudgetUSD = DefaultDailyBudgetUSD
	}
	if c.DefaultMonthlyBudgetUSD <= 0 {
		c.DefaultMonthlyBudgetUSD = DefaultMonthlyBudgetUSD
	}
	if c.AlertThreshold <= 0 || c.AlertThreshold > 1 {
		c.AlertThreshold = DefaultAlertThreshold
	}
	if c.ExceededAlertInterval < 0 {
		c.ExceededAlertInterval = 0
	}
	return c
}

// Ledger owns the per-agent spend counters, rollover and exceeded state
type Ledger struct {
	store       Store
	alertSender AlertSender
	logger      *slog.Logger
	config      Config

	// For time mocking in tests
	now func() time.Time

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

// Option configures the ledger
type Option func(*Ledger)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithAlertSender sets the alert sender
func WithAlertSender(sender AlertSender) Option {
	return func(l *Ledger) {
		l.alertSender = sender
	}
}

// WithTimeFunc sets a custom time function (for testing)
func WithTimeFunc(fn func() time.Time) Option {
	return func(l *Ledger) {
		l.now = fn
	}
}

// New creates a new budget ledger
func New(store Store, cfg Config, opts ...Option) *Ledger {
	l := &Ledger{
		store:       store,
		alertSender: &noopAlertSender{},
		logger:      slog.Default(),
		config:      cfg.withDefaults(),
		now:         time.Now,
		limiters:    make(map[string]*rate.Limiter),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Config returns the effective configuration
func (l *Ledger) Config() Config {
	return l.config
}

// InitializeBudget creates the agent's budget with the given or default
// ceilings. An existing budget is returned unchanged.
func (l *Ledger) InitializeBudget(ctx context.Context, agentID string, dailyUSD, monthlyUSD *float64) (*models.CostBudget, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent ID is required", ErrInvalidBudget)
	}

	daily := l.config.DefaultDailyBudgetUSD
	if dailyUSD != nil {
		if *dailyUSD <= 0 {
			return nil, &InvalidCeilingError{Period: "daily", Value: *dailyUSD}
		}
		daily = *dailyUSD
	}
	monthly := l.config.DefaultMonthlyBudgetUSD
	if monthlyUSD != nil {
		if *monthlyUSD <= 0 {
			return nil, &InvalidCeilingError{Period: "monthly", Value: *monthlyUSD}
		}
		monthly = *monthlyUSD
	}

	budget, created, err := l.create(ctx, agentID, daily, monthly)
	if err != nil {
		return nil, err
	}

	if created {
		l.logger.Info("budget initialized",
			slog.String("agent_id", agentID),
			slog.Float64("daily_budget_usd", budget.DailyBudgetUSD),
			slog.Float64("monthly_budget_usd", budget.MonthlyBudgetUSD),
			slog.Float64("alert_threshold", budget.AlertThreshold))
	}

	return budget, nil
}

func (l *Ledger) create(ctx context.Context, agentID string, daily, monthly float64) (*models.CostBudget, bool, error) {
	now := l.now()
	budget, created, err := l.store.CreateIfAbsent(ctx, &models.CostBudget{
		AgentID:          agentID,
		DailyBudgetUSD:   daily,
		MonthlyBudgetUSD: monthly,
		AlertThreshold:   l.config.AlertThreshold,
		LastDailyReset:   now,
		LastMonthlyReset: now,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to initialize budget: %w", err)
	}
	return budget, created, nil
}

// GetBudget returns the agent's budget or ErrBudgetNotFound
func (l *Ledger) GetBudget(ctx context.Context, agentID string) (*models.CostBudget, error) {
	budget, err := l.store.Get(ctx, agentID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrBudgetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get budget: %w", err)
	}
	return budget, nil
}

// AddSpend adds cost to the agent's running totals, creating the budget with
// defaults on first use. Rollover is applied before the cost is added.
func (l *Ledger) AddSpend(ctx context.Context, agentID string, costUSD float64) (*models.CostBudget, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent ID is required", ErrInvalidBudget)
	}
	if costUSD < 0 {
		costUSD = 0
	}

	var alerts []models.BudgetAlert
	apply := func(b *models.CostBudget) error {
		alerts = l.applySpend(b, costUSD)
		return nil
	}

	budget, err := l.store.Update(ctx, agentID, apply)
	if errors.Is(err, storage.ErrNotFound) {
		if _, _, err = l.create(ctx, agentID, l.config.DefaultDailyBudgetUSD, l.config.DefaultMonthlyBudgetUSD); err != nil {
			return nil, err
		}
		budget, err = l.store.Update(ctx, agentID, apply)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add spend: %w", err)
	}

	for _, alert := range alerts {
		l.emitAlert(ctx, alert)
	}

	return budget, nil
}

// applySpend mutates b in place and returns the alerts the update raised
func (l *Ledger) applySpend(b *models.CostBudget, costUSD float64) []models.BudgetAlert {
	now := l.now()

	if now.Sub(b.LastDailyReset) >= DailyPeriod {
		b.TodaySpentUSD = 0
		b.LastDailyReset = now
	}
	if now.Sub(b.LastMonthlyReset) >= MonthlyPeriod {
		b.MonthSpentUSD = 0
		b.LastMonthlyReset = now
	}

	prevToday := b.TodaySpentUSD
	prevMonth := b.MonthSpentUSD

	b.TodaySpentUSD += costUSD
	b.MonthSpentUSD += costUSD
	b.BudgetExceeded = b.IsOverCeiling()
	b.UpdatedAt = now

	// Warnings are per ceiling; a ceiling already over its limit gets the
	// exceeded alert instead
	var alerts []models.BudgetAlert
	if b.TodaySpentUSD <= b.DailyBudgetUSD &&
		crossed(prevToday, b.TodaySpentUSD, b.DailyBudgetUSD*b.AlertThreshold) {
		alerts = append(alerts, newAlert(b, models.AlertWarning, "daily", now))
	}
	if b.MonthSpentUSD <= b.MonthlyBudgetUSD &&
		crossed(prevMonth, b.MonthSpentUSD, b.MonthlyBudgetUSD*b.AlertThreshold) {
		alerts = append(alerts, newAlert(b, models.AlertWarning, "monthly", now))
	}
	if !b.BudgetExceeded {
		return alerts
	}

	period := "monthly"
	if b.TodaySpentUSD > b.DailyBudgetUSD {
		period = "daily"
	}
	return append(alerts, newAlert(b, models.AlertExceeded, period, now))
}

func crossed(before, after, limit float64) bool {
	return before < limit && after >= limit
}

func newAlert(b *models.CostBudget, alertType models.AlertType, period string, now time.Time) models.BudgetAlert {
	spent, ceiling := b.TodaySpentUSD, b.DailyBudgetUSD
	if period == "monthly" {
		spent, ceiling = b.MonthSpentUSD, b.MonthlyBudgetUSD
	}
	return models.BudgetAlert{
		AgentID:        b.AgentID,
		AlertType:      alertType,
		Period:         period,
		SpentUSD:       spent,
		BudgetUSD:      ceiling,
		Percentage:     spent / ceiling * 100,
		AlertThreshold: b.AlertThreshold,
		Timestamp:      now,
	}
}

func (l *Ledger) emitAlert(ctx context.Context, alert models.BudgetAlert) {
	if alert.AlertType == models.AlertExceeded && !l.allowExceeded(alert.AgentID) {
		return
	}

	attrs := []any{
		slog.String("agent_id", alert.AgentID),
		slog.String("period", alert.Period),
		slog.Float64("spent_usd", alert.SpentUSD),
		slog.Float64("budget_usd", alert.BudgetUSD),
		slog.Float64("percentage", alert.Percentage),
	}
	if alert.AlertType == models.AlertExceeded {
		l.logger.Error("budget exceeded", attrs...)
	} else {
		l.logger.Warn("budget warning threshold reached", attrs...)
	}

	metrics.RecordBudgetAlert(string(alert.AlertType))

	if err := l.alertSender.SendBudgetAlert(ctx, alert); err != nil {
		l.logger.Error("failed to send budget alert",
			slog.String("agent_id", alert.AgentID),
			slog.String("alert_type", string(alert.AlertType)),
			slog.String("error", err.Error()))
	}
}

func (l *Ledger) allowExceeded(agentID string) bool {
	if l.config.ExceededAlertInterval == 0 {
		return true
	}

	l.limitersMu.Lock()
	defer l.limitersMu.Unlock()

	limiter, ok := l.limiters[agentID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(l.config.ExceededAlertInterval), 1)
		l.limiters[agentID] = limiter
	}
	return limiter.AllowN(l.now(), 1)
}

// CanExecute reports whether the agent may run further operations. Agents
// without a budget are allowed.
func (l *Ledger) CanExecute(ctx context.Context, agentID string) (bool, error) {
	budget, err := l.GetBudget(ctx, agentID)
	if errors.Is(err, ErrBudgetNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return !budget.BudgetExceeded, nil
}

// ResetBudget zeroes both counters, restarts both periods and clears the
// exceeded flag
func (l *Ledger) ResetBudget(ctx context.Context, agentID string) (*models.CostBudget, error) {
	var before models.CostBudget
	budget, err := l.store.Update(ctx, agentID, func(b *models.CostBudget) error {
		before = *b
		now := l.now()
		b.TodaySpentUSD = 0
		b.MonthSpentUSD = 0
		b.LastDailyReset = now
		b.LastMonthlyReset = now
		b.BudgetExceeded = false
		b.UpdatedAt = now
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrBudgetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reset budget: %w", err)
	}

	l.limitersMu.Lock()
	delete(l.limiters, agentID)
	l.limitersMu.Unlock()

	logging.Audit(ctx, "budget_reset",
		"agent_id", agentID,
		"previous_today_spent_usd", before.TodaySpentUSD,
		"previous_month_spent_usd", before.MonthSpentUSD,
		"was_exceeded", before.BudgetExceeded)

	return budget, nil
}

// ListBudgetAlerts returns every budget currently in the exceeded state
func (l *Ledger) ListBudgetAlerts(ctx context.Context) ([]*models.CostBudget, error) {
	budgets, err := l.store.ListExceeded(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list budget alerts: %w", err)
	}
	return budgets, nil
}
