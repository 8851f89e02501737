package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agent-governor/agent-governor/pkg/models"
)

// MetricStore appends operation metrics
type MetricStore interface {
	Insert(ctx context.Context, metric *models.OperationMetric) error
}

// Recorder persists one OperationMetric per call. It never updates or
// deletes records.
type Recorder struct {
	store MetricStore
	now   func() time.Time
}

// RecorderOption configures the recorder
type RecorderOption func(*Recorder)

// WithRecorderTimeFunc sets a custom time function (for testing)
func WithRecorderTimeFunc(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.now = fn
	}
}

// NewRecorder creates a new metrics recorder
func NewRecorder(store MetricStore, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record normalizes the metric, stamps it and stores it. The caller's value
// is not modified; the stored copy is returned.
func (r *Recorder) Record(ctx context.Context, metric *models.OperationMetric) (*models.OperationMetric, error) {
	if metric == nil {
		return nil, errors.New("metric is required")
	}
	if metric.AgentID == "" || metric.Operation == "" {
		return nil, ErrInvalidOperation
	}

	stored := *metric
	stored.Normalize()
	stored.Timestamp = r.now()

	if err := r.store.Insert(ctx, &stored); err != nil {
		return nil, fmt.Errorf("failed to record operation metric: %w", err)
	}

	return &stored, nil
}
