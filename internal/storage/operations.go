package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/agent-governor/agent-governor/pkg/models"
	"github.com/google/uuid"
)

// MetricStore handles operation metric persistence. Rows are append-only.
type MetricStore struct {
	db *DB
}

// NewMetricStore creates a new metric store
func NewMetricStore(db *DB) *MetricStore {
	return &MetricStore{db: db}
}

// Insert appends an operation metric
func (s *MetricStore) Insert(ctx context.Context, metric *models.OperationMetric) error {
	if metric.ID == "" {
		metric.ID = uuid.New().String()
	}

	query := `
		INSERT INTO operation_metrics (
			id, agent_id, operation, page_id,
			duration_ms, tokens_used, cost_usd, cache_hit_rate,
			database_queries, api_calls, success, error_type, error_message,
			memory_mb, cpu_percent, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		metric.ID, metric.AgentID, metric.Operation, metric.PageID,
		metric.DurationMs, metric.TokensUsed, metric.CostUSD, nullFloat(metric.CacheHitRate),
		metric.DatabaseQueries, metric.APICalls, metric.Success, metric.ErrorType, metric.ErrorMessage,
		nullFloat(metric.MemoryMB), nullFloat(metric.CPUPercent), dbTime(metric.Timestamp),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert operation metric: %w", err)
	}

	return nil
}

// Get retrieves a single metric by ID
func (s *MetricStore) Get(ctx context.Context, id string) (*models.OperationMetric, error) {
	query := `SELECT ` + metricColumns + ` FROM operation_metrics WHERE id = ?`

	metric, err := scanMetric(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation metric: %w", err)
	}
	return metric, nil
}

// Aggregate returns totals for one agent, or all agents when agentID is empty
func (s *MetricStore) Aggregate(ctx context.Context, agentID string, window models.TimeWindow) (*models.OperationAggregate, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(success), 0),
			COALESCE(SUM(duration_ms), 0),
			COALESCE(SUM(cost_usd), 0),
			COALESCE(SUM(tokens_used), 0)
		FROM operation_metrics
		WHERE 1=1
	`
	var args []interface{}

	if agentID != "" {
		query += " AND agent_id = ?"
		args = append(args, agentID)
	}
	clause, windowArgs := windowFilter(window)
	query += clause
	args = append(args, windowArgs...)

	agg := &models.OperationAggregate{}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&agg.TotalOperations,
		&agg.SuccessCount,
		&agg.TotalDurationMs,
		&agg.TotalCostUSD,
		&agg.TotalTokensUsed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate operation metrics: %w", err)
	}

	return agg, nil
}

// TopAgentsByCost returns agents ordered by total cost, ties broken by agent ID
func (s *MetricStore) TopAgentsByCost(ctx context.Context, limit int, window models.TimeWindow) ([]models.AgentCost, error) {
	clause, args := windowFilter(window)
	query := `
		SELECT agent_id, COALESCE(SUM(cost_usd), 0) AS total_cost, COUNT(*)
		FROM operation_metrics
		WHERE 1=1` + clause + `
		GROUP BY agent_id
		ORDER BY total_cost DESC, agent_id ASC
		LIMIT ?
	`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query top agents: %w", err)
	}
	defer rows.Close()

	result := make([]models.AgentCost, 0)
	for rows.Next() {
		var ac models.AgentCost
		if err := rows.Scan(&ac.AgentID, &ac.TotalCostUSD, &ac.OperationCount); err != nil {
			return nil, fmt.Errorf("failed to scan agent cost row: %w", err)
		}
		result = append(result, ac)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate agent cost rows: %w", err)
	}

	return result, nil
}

// Slowest returns the longest-running operations in the window
func (s *MetricStore) Slowest(ctx context.Context, limit int, window models.TimeWindow) ([]*models.OperationMetric, error) {
	clause, args := windowFilter(window)
	query := `SELECT ` + metricColumns + `
		FROM operation_metrics
		WHERE 1=1` + clause + `
		ORDER BY duration_ms DESC, timestamp DESC, id ASC
		LIMIT ?
	`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query slowest operations: %w", err)
	}
	defer rows.Close()

	result := make([]*models.OperationMetric, 0)
	for rows.Next() {
		metric, err := scanMetric(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation metric: %w", err)
		}
		result = append(result, metric)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate operation metrics: %w", err)
	}

	return result, nil
}

// ErrorBreakdown groups failed operations by error type with the distinct
// agents that hit each type
func (s *MetricStore) ErrorBreakdown(ctx context.Context, window models.TimeWindow) ([]models.ErrorStat, error) {
	clause, args := windowFilter(window)
	query := `
		SELECT CASE WHEN error_type = '' THEN 'unknown' ELSE error_type END AS kind,
			agent_id, COUNT(*)
		FROM operation_metrics
		WHERE success = 0` + clause + `
		GROUP BY kind, agent_id
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query error breakdown: %w", err)
	}
	defer rows.Close()

	groups := make(map[string]*models.ErrorStat)
	for rows.Next() {
		var errorType, agentID string
		var count int64
		if err := rows.Scan(&errorType, &agentID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan error row: %w", err)
		}
		stat, ok := groups[errorType]
		if !ok {
			stat = &models.ErrorStat{ErrorType: errorType, AgentIDs: make([]string, 0)}
			groups[errorType] = stat
		}
		stat.Count += count
		stat.AgentIDs = append(stat.AgentIDs, agentID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate error rows: %w", err)
	}

	return sortErrorStats(groups), nil
}

// OperationBreakdown returns per-operation aggregates for one agent
func (s *MetricStore) OperationBreakdown(ctx context.Context, agentID string, window models.TimeWindow) ([]models.OperationStat, error) {
	clause, windowArgs := windowFilter(window)
	query := `
		SELECT
			operation,
			COUNT(*),
			CAST(SUM(success) AS REAL) / COUNT(*),
			AVG(duration_ms),
			COALESCE(SUM(cost_usd), 0) AS total_cost
		FROM operation_metrics
		WHERE agent_id = ?` + clause + `
		GROUP BY operation
		ORDER BY total_cost DESC, operation ASC
	`
	args := append([]interface{}{agentID}, windowArgs...)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operation breakdown: %w", err)
	}
	defer rows.Close()

	result := make([]models.OperationStat, 0)
	for rows.Next() {
		var stat models.OperationStat
		if err := rows.Scan(&stat.Operation, &stat.Count, &stat.SuccessRate, &stat.AvgDurationMs, &stat.TotalCostUSD); err != nil {
			return nil, fmt.Errorf("failed to scan operation row: %w", err)
		}
		result = append(result, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate operation rows: %w", err)
	}

	return result, nil
}

const metricColumns = `
	id, agent_id, operation, page_id,
	duration_ms, tokens_used, cost_usd, cache_hit_rate,
	database_queries, api_calls, success, error_type, error_message,
	memory_mb, cpu_percent, timestamp
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMetric(row rowScanner) (*models.OperationMetric, error) {
	metric := &models.OperationMetric{}
	var cacheHitRate, memoryMB, cpuPercent sql.NullFloat64

	err := row.Scan(
		&metric.ID, &metric.AgentID, &metric.Operation, &metric.PageID,
		&metric.DurationMs, &metric.TokensUsed, &metric.CostUSD, &cacheHitRate,
		&metric.DatabaseQueries, &metric.APICalls, &metric.Success, &metric.ErrorType, &metric.ErrorMessage,
		&memoryMB, &cpuPercent, &metric.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	metric.CacheHitRate = floatPtr(cacheHitRate)
	metric.MemoryMB = floatPtr(memoryMB)
	metric.CPUPercent = floatPtr(cpuPercent)
	return metric, nil
}

// windowFilter builds the half-open [start, end) timestamp predicate
func windowFilter(window models.TimeWindow) (string, []interface{}) {
	var clause string
	var args []interface{}

	if !window.Start.IsZero() {
		clause += " AND timestamp >= ?"
		args = append(args, dbTime(window.Start))
	}
	if !window.End.IsZero() {
		clause += " AND timestamp < ?"
		args = append(args, dbTime(window.End))
	}

	return clause, args
}

func sortErrorStats(groups map[string]*models.ErrorStat) []models.ErrorStat {
	result := make([]models.ErrorStat, 0, len(groups))
	for _, stat := range groups {
		sort.Strings(stat.AgentIDs)
		result = append(result, *stat)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].ErrorType < result[j].ErrorType
	})
	return result
}
