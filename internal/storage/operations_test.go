package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/agent-governor/agent-governor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertMetric(t *testing.T, store *MetricStore, metric *models.OperationMetric) *models.OperationMetric {
	t.Helper()
	if metric.Timestamp.IsZero() {
		metric.Timestamp = time.Now().UTC()
	}
	require.NoError(t, store.Insert(context.Background(), metric))
	return metric
}

func TestMetricStore_Insert(t *testing.T) {
	db := newTestDB(t)
	store := NewMetricStore(db)
	ctx := context.Background()

	rate := 0.75
	mem := 128.5
	metric := &models.OperationMetric{
		AgentID:         "agent-1",
		Operation:       "generate_page",
		PageID:          "page-42",
		DurationMs:      1500,
		TokensUsed:      2000,
		CostUSD:         0.004,
		CacheHitRate:    &rate,
		DatabaseQueries: 3,
		APICalls:        1,
		Success:         true,
		MemoryMB:        &mem,
		Timestamp:       time.Now().UTC(),
	}

	err := store.Insert(ctx, metric)
	require.NoError(t, err)

	// ID should be generated
	assert.NotEmpty(t, metric.ID)

	got, err := store.Get(ctx, metric.ID)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", got.AgentID)
	assert.Equal(t, "page-42", got.PageID)
	assert.Equal(t, int64(1500), got.DurationMs)
	assert.Equal(t, int64(2000), got.TokensUsed)
	assert.InDelta(t, 0.004, got.CostUSD, 1e-9)
	require.NotNil(t, got.CacheHitRate)
	assert.InDelta(t, 0.75, *got.CacheHitRate, 1e-9)
	require.NotNil(t, got.MemoryMB)
	assert.Nil(t, got.CPUPercent)
	assert.True(t, got.Success)
	assert.WithinDuration(t, metric.Timestamp, got.Timestamp, time.Millisecond)
}

func TestMetricStore_Insert_DuplicateID(t *testing.T) {
	db := newTestDB(t)
	store := NewMetricStore(db)

	insertMetric(t, store, &models.OperationMetric{ID: "dup", AgentID: "a", Operation: "op", Success: true})

	err := store.Insert(context.Background(), &models.OperationMetric{
		ID: "dup", AgentID: "a", Operation: "op", Success: true, Timestamp: time.Now(),
	})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMetricStore_Get_NotFound(t *testing.T) {
	db := newTestDB(t)
	store := NewMetricStore(db)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMetricStore_Aggregate(t *testing.T) {
	db := newTestDB(t)
	store := NewMetricStore(db)
	ctx := context.Background()

	insertMetric(t, store, &models.OperationMetric{AgentID: "a1", Operation: "op", DurationMs: 100, TokensUsed: 1000, CostUSD: 0.30, Success: true})
	insertMetric(t, store, &models.OperationMetric{AgentID: "a1", Operation: "op", DurationMs: 300, TokensUsed: 500, CostUSD: 0.20, Success: false, ErrorType: "timeout"})
	insertMetric(t, store, &models.OperationMetric{AgentID: "a2", Operation: "op", DurationMs: 50, CostUSD: 1.00, Success: true})

	agg, err := store.Aggregate(ctx, "a1", models.TimeWindow{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), agg.TotalOperations)
	assert.Equal(t, int64(1), agg.SuccessCount)
	assert.Equal(t, int64(400), agg.TotalDurationMs)
	assert.Equal(t, int64(1500), agg.TotalTokensUsed)
	assert.InDelta(t, 0.50, agg.TotalCostUSD, 1e-9)

	all, err := store.Aggregate(ctx, "", models.TimeWindow{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.TotalOperations)
	assert.InDelta(t, 1.50, all.TotalCostUSD, 1e-9)
}

func TestMetricStore_Aggregate_Empty(t *testing.T) {
	db := newTestDB(t)
	store := NewMetricStore(db)

	agg, err := store.Aggregate(context.Background(), "nobody", models.TimeWindow{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), agg.TotalOperations)
	assert.Equal(t, 0.0, agg.TotalCostUSD)
}

func TestMetricStore_Aggregate_Window(t *testing.T) {
	db := newTestDB(t)
	store := NewMetricStore(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	insertMetric(t, store, &models.OperationMetric{AgentID: "a1", Operation: "op", CostUSD: 1, Success: true, Timestamp: base.Add(-time.Hour)})
	insertMetric(t, store, &models.OperationMetric{AgentID: "a1", Operation: "op", CostUSD: 2, Success: true, Timestamp: base})
	insertMetric(t, store, &models.OperationMetric{AgentID: "a1", Operation: "op", CostUSD: 4, Success: true, Timestamp: base.Add(time.Hour)})

	// Half-open: start inclusive, end exclusive
	agg, err := store.Aggregate(ctx, "a1", models.TimeWindow{Start: base, End: base.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), agg.TotalOperations)
	assert.InDelta(t, 2.0, agg.TotalCostUSD, 1e-9)
}

func TestMetricStore_TopAgentsByCost(t *testing.T) {
	db := newTestDB(t)
	store := NewMetricStore(db)
	ctx := context.Background()

	insertMetric(t, store, &models.OperationMetric{AgentID: "cheap", Operation: "op", CostUSD: 0.10, Success: true})
	insertMetric(t, store, &models.OperationMetric{AgentID: "pricey", Operation: "op", CostUSD: 2.00, Success: true})
	insertMetric(t, store, &models.OperationMetric{AgentID: "pricey", Operation: "op", CostUSD: 1.00, Success: true})
	insertMetric(t, store, &models.OperationMetric{AgentID: "b-tie", Operation: "op", CostUSD: 0.50, Success: true})
	insertMetric(t, store, &models.OperationMetric{AgentID: "a-tie", Operation: "op", CostUSD: 0.50, Success: true})

	top, err := store.TopAgentsByCost(ctx, 3, models.TimeWindow{})
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "pricey", top[0].AgentID)
	assert.InDelta(t, 3.00, top[0].TotalCostUSD, 1e-9)
	assert.Equal(t, int64(2), top[0].OperationCount)
	// Ties ordered by agent ID
	assert.Equal(t, "a-tie", top[1].AgentID)
	assert.Equal(t, "b-tie", top[2].AgentID)
}

func TestMetricStore_Slowest(t *testing.T) {
	db := newTestDB(t)
	store := NewMetricStore(db)
	ctx := context.Background()

	for i, d := range []int64{200, 5000, 10, 900} {
		insertMetric(t, store, &models.OperationMetric{
			AgentID:    fmt.Sprintf("agent-%d", i),
			Operation:  "op",
			DurationMs: d,
			Success:    true,
		})
	}

	slowest, err := store.Slowest(ctx, 2, models.TimeWindow{})
	require.NoError(t, err)
	require.Len(t, slowest, 2)
	assert.Equal(t, int64(5000), slowest[0].DurationMs)
	assert.Equal(t, int64(900), slowest[1].DurationMs)
}

func TestMetricStore_ErrorBreakdown(t *testing.T) {
	db := newTestDB(t)
	store := NewMetricStore(db)
	ctx := context.Background()

	insertMetric(t, store, &models.OperationMetric{AgentID: "a1", Operation: "op", Success: false, ErrorType: "timeout"})
	insertMetric(t, store, &models.OperationMetric{AgentID: "a1", Operation: "op", Success: false, ErrorType: "timeout"})
	insertMetric(t, store, &models.OperationMetric{AgentID: "a2", Operation: "op", Success: false, ErrorType: "timeout"})
	insertMetric(t, store, &models.OperationMetric{AgentID: "a2", Operation: "op", Success: false, ErrorType: "rate_limit"})
	insertMetric(t, store, &models.OperationMetric{AgentID: "a3", Operation: "op", Success: true})

	stats, err := store.ErrorBreakdown(ctx, models.TimeWindow{})
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, "timeout", stats[0].ErrorType)
	assert.Equal(t, int64(3), stats[0].Count)
	assert.Equal(t, []string{"a1", "a2"}, stats[0].AgentIDs)

	assert.Equal(t, "rate_limit", stats[1].ErrorType)
	assert.Equal(t, int64(1), stats[1].Count)
	assert.Equal(t, []string{"a2"}, stats[1].AgentIDs)
}

func TestMetricStore_ErrorBreakdown_EmptyTypeFoldsIntoUnknown(t *testing.T) {
	db := newTestDB(t)
	store := NewMetricStore(db)
	ctx := context.Background()

	insertMetric(t, store, &models.OperationMetric{AgentID: "a1", Operation: "op", Success: false})
	insertMetric(t, store, &models.OperationMetric{AgentID: "a1", Operation: "op", Success: false, ErrorType: "unknown"})
	insertMetric(t, store, &models.OperationMetric{AgentID: "a2", Operation: "op", Success: false})

	stats, err := store.ErrorBreakdown(ctx, models.TimeWindow{})
	require.NoError(t, err)
	require.Len(t, stats, 1)

	assert.Equal(t, "unknown", stats[0].ErrorType)
	assert.Equal(t, int64(3), stats[0].Count)
	assert.Equal(t, []string{"a1", "a2"}, stats[0].AgentIDs)
}

func TestMetricStore_OperationBreakdown(t *testing.T) {
	db := newTestDB(t)
	store := NewMetricStore(db)
	ctx := context.Background()

	insertMetric(t, store, &models.OperationMetric{AgentID: "a1", Operation: "generate", DurationMs: 100, CostUSD: 0.5, Success: true})
	insertMetric(t, store, &models.OperationMetric{AgentID: "a1", Operation: "generate", DurationMs: 300, CostUSD: 0.5, Success: false, ErrorType: "x"})
	insertMetric(t, store, &models.OperationMetric{AgentID: "a1", Operation: "lookup", DurationMs: 10, CostUSD: 0.0, Success: true})
	insertMetric(t, store, &models.OperationMetric{AgentID: "other", Operation: "generate", DurationMs: 10, CostUSD: 9, Success: true})

	stats, err := store.OperationBreakdown(ctx, "a1", models.TimeWindow{})
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, "generate", stats[0].Operation)
	assert.Equal(t, int64(2), stats[0].Count)
	assert.InDelta(t, 0.5, stats[0].SuccessRate, 1e-9)
	assert.InDelta(t, 200.0, stats[0].AvgDurationMs, 1e-9)
	assert.InDelta(t, 1.0, stats[0].TotalCostUSD, 1e-9)
	assert.Equal(t, "lookup", stats[1].Operation)
}
