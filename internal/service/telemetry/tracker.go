package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/agent-governor/agent-governor/internal/logging"
	"github.com/agent-governor/agent-governor/internal/metrics"
	"github.com/agent-governor/agent-governor/pkg/models"
)

// MetricRecorder persists operation metrics
type MetricRecorder interface {
	Record(ctx context.Context, metric *models.OperationMetric) (*models.OperationMetric, error)
}

// SpendLedger accumulates per-agent spend
type SpendLedger interface {
	AddSpend(ctx context.Context, agentID string, costUSD float64) (*models.CostBudget, error)
}

// CostEstimator derives a USD cost from token usage
type CostEstimator interface {
	CostUSD(tokensUsed int64) float64
}

// Config selects which telemetry side effects are performed
type Config struct {
	EnableCostTracking        bool
	EnablePerformanceTracking bool
}

// DefaultConfig enables both cost and performance tracking
func DefaultConfig() Config {
	return Config{
		EnableCostTracking:        true,
		EnablePerformanceTracking: true,
	}
}

// Tracker runs agent operations and records one metric and one spend
// update per invocation, whatever the outcome
type Tracker struct {
	recorder  MetricRecorder
	ledger    SpendLedger
	costModel CostEstimator
	sampler   Sampler
	config    Config
	logger    *slog.Logger

	// For time mocking in tests
	now func() time.Time
}

// Option configures the tracker
type Option func(*Tracker)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithSampler attaches resource sampling to every tracked operation
func WithSampler(sampler Sampler) Option {
	return func(t *Tracker) {
		t.sampler = sampler
	}
}

// WithTimeFunc sets a custom time function (for testing)
func WithTimeFunc(fn func() time.Time) Option {
	return func(t *Tracker) {
		t.now = fn
	}
}

// NewTracker creates a new operation tracker
func NewTracker(recorder MetricRecorder, ledger SpendLedger, costModel CostEstimator, cfg Config, opts ...Option) *Tracker {
	t := &Tracker{
		recorder:  recorder,
		ledger:    ledger,
		costModel: costModel,
		config:    cfg,
		logger:    slog.Default(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// outcome is what a single invocation of work produced
type outcome struct {
	err        error
	panicValue any
	panicked   bool
}

func invoke(ctx context.Context, work func(context.Context) error) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: &PanicError{Value: r}, panicValue: r, panicked: true}
		}
	}()
	return outcome{err: work(ctx)}
}

// TrackOperation runs work and records its telemetry. The error returned by
// work is passed through unchanged; telemetry failures are logged and never
// returned. A panic in work is recorded and then re-raised.
func (t *Tracker) TrackOperation(ctx context.Context, agentID, operation string, work func(context.Context) error, opts ...TrackOption) error {
	if agentID == "" || operation == "" {
		return ErrInvalidOperation
	}

	o := &trackOptions{}
	for _, opt := range opts {
		opt(o)
	}

	usage := &Usage{}
	workCtx := logging.WithOperation(logging.WithAgentID(withUsage(ctx, usage), agentID), operation)

	start := t.now()
	out := invoke(workCtx, work)
	elapsed := t.now().Sub(start)

	obs := Observation{
		AgentID:         agentID,
		Operation:       operation,
		PageID:          o.pageID,
		Duration:        elapsed,
		TokensUsed:      o.tokensUsed + usage.Tokens(),
		CacheHitRate:    o.cacheHitRate,
		DatabaseQueries: o.databaseQueries + usage.DatabaseQueries(),
		APICalls:        o.apiCalls + usage.APICalls(),
		Success:         out.err == nil,
	}
	if out.err != nil {
		obs.ErrorType = ClassifyError(out.err)
		obs.ErrorMessage = out.err.Error()
	}

	// Bookkeeping must survive a caller that cancelled or timed out
	bookCtx := context.WithoutCancel(workCtx)
	t.observe(bookCtx, obs)

	if out.panicked {
		panic(out.panicValue)
	}
	return out.err
}

// Track runs work like TrackOperation and returns its value
func Track[T any](ctx context.Context, t *Tracker, agentID, operation string, work func(context.Context) (T, error), opts ...TrackOption) (T, error) {
	var result T
	err := t.TrackOperation(ctx, agentID, operation, func(ctx context.Context) error {
		var err error
		result, err = work(ctx)
		return err
	}, opts...)
	return result, err
}

// Observation describes an operation timed outside the tracker
type Observation struct {
	AgentID         string
	Operation       string
	PageID          string
	Duration        time.Duration
	TokensUsed      int64
	CacheHitRate    *float64
	DatabaseQueries int
	APICalls        int
	Success         bool
	ErrorType       string
	ErrorMessage    string
}

// Observe records an operation that already ran. Only invalid input is
// returned as an error; persistence failures are logged like TrackOperation.
// The returned metric is nil when it was not stored.
func (t *Tracker) Observe(ctx context.Context, obs Observation) (*models.OperationMetric, error) {
	if obs.AgentID == "" || obs.Operation == "" {
		return nil, ErrInvalidOperation
	}
	if !obs.Success && obs.ErrorType == "" {
		obs.ErrorType = "unknown"
	}

	ctx = logging.WithOperation(logging.WithAgentID(ctx, obs.AgentID), obs.Operation)
	return t.observe(ctx, obs), nil
}

// observe performs the telemetry side effects. A failed metric insert does
// not skip the spend update, so every operation is charged exactly once.
func (t *Tracker) observe(ctx context.Context, obs Observation) *models.OperationMetric {
	if obs.TokensUsed < 0 {
		obs.TokensUsed = 0
	}
	costUSD := t.costModel.CostUSD(obs.TokensUsed)

	metrics.RecordOperation(obs.Operation, obs.Success, obs.Duration)
	metrics.RecordCost(costUSD, obs.TokensUsed)

	var stored *models.OperationMetric
	if t.config.EnablePerformanceTracking {
		metric := &models.OperationMetric{
			AgentID:         obs.AgentID,
			Operation:       obs.Operation,
			PageID:          obs.PageID,
			DurationMs:      obs.Duration.Milliseconds(),
			TokensUsed:      obs.TokensUsed,
			CostUSD:         costUSD,
			CacheHitRate:    obs.CacheHitRate,
			DatabaseQueries: obs.DatabaseQueries,
			APICalls:        obs.APICalls,
			Success:         obs.Success,
			ErrorType:       obs.ErrorType,
			ErrorMessage:    obs.ErrorMessage,
		}
		t.sample(ctx, metric)

		var err error
		stored, err = t.recorder.Record(ctx, metric)
		if err != nil {
			metrics.RecordTelemetryFailure("record")
			t.logger.ErrorContext(ctx, "failed to record operation metric",
				slog.String("error", err.Error()))
		}
	}

	if t.config.EnableCostTracking {
		if _, err := t.ledger.AddSpend(ctx, obs.AgentID, costUSD); err != nil {
			metrics.RecordTelemetryFailure("budget")
			t.logger.ErrorContext(ctx, "failed to update budget",
				slog.Float64("cost_usd", costUSD),
				slog.String("error", err.Error()))
		}
	}

	t.logger.DebugContext(ctx, "operation tracked",
		slog.Bool("success", obs.Success),
		slog.Duration("duration", obs.Duration),
		slog.Int64("tokens_used", obs.TokensUsed),
		slog.Float64("cost_usd", costUSD))

	return stored
}

func (t *Tracker) sample(ctx context.Context, metric *models.OperationMetric) {
	if t.sampler == nil {
		return
	}
	s, err := t.sampler.Sample(ctx)
	if err != nil {
		t.logger.DebugContext(ctx, "resource sample failed",
			slog.String("error", err.Error()))
		return
	}
	metric.MemoryMB = &s.MemoryMB
	metric.CPUPercent = &s.CPUPercent
}
