package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/agent-governor/agent-governor/pkg/models"
)

// BudgetStore handles cost budget persistence. One row per agent.
type BudgetStore struct {
	db *DB
}

// NewBudgetStore creates a new budget store
func NewBudgetStore(db *DB) *BudgetStore {
	return &BudgetStore{db: db}
}

const budgetColumns = `
	agent_id, daily_budget_usd, monthly_budget_usd, alert_threshold,
	today_spent_usd, month_spent_usd, last_daily_reset, last_monthly_reset,
	budget_exceeded, created_at, updated_at
`

// Get retrieves the budget for an agent
func (s *BudgetStore) Get(ctx context.Context, agentID string) (*models.CostBudget, error) {
	query := `SELECT ` + budgetColumns + ` FROM cost_budgets WHERE agent_id = ?`

	budget, err := scanBudget(s.db.QueryRowContext(ctx, query, agentID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get budget: %w", err)
	}
	return budget, nil
}

// CreateIfAbsent inserts the budget unless a row already exists for the agent.
// It returns the stored row and whether this call created it.
func (s *BudgetStore) CreateIfAbsent(ctx context.Context, budget *models.CostBudget) (*models.CostBudget, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO cost_budgets (`+budgetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO NOTHING
	`,
		budget.AgentID, budget.DailyBudgetUSD, budget.MonthlyBudgetUSD, budget.AlertThreshold,
		budget.TodaySpentUSD, budget.MonthSpentUSD, dbTime(budget.LastDailyReset), dbTime(budget.LastMonthlyReset),
		budget.BudgetExceeded, dbTime(budget.CreatedAt), dbTime(budget.UpdatedAt),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create budget: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	stored, err := scanBudget(tx.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM cost_budgets WHERE agent_id = ?`, budget.AgentID))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read budget: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit budget: %w", err)
	}

	return stored, affected == 1, nil
}

// Update applies fn to the agent's row inside a single write transaction.
// Concurrent updates for the same agent are serialized, so fn always sees the
// latest committed totals.
func (s *BudgetStore) Update(ctx context.Context, agentID string, fn func(*models.CostBudget) error) (*models.CostBudget, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	budget, err := scanBudget(tx.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM cost_budgets WHERE agent_id = ?`, agentID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read budget: %w", err)
	}

	if err := fn(budget); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE cost_budgets SET
			today_spent_usd = ?,
			month_spent_usd = ?,
			last_daily_reset = ?,
			last_monthly_reset = ?,
			budget_exceeded = ?,
			updated_at = ?
		WHERE agent_id = ?
	`,
		budget.TodaySpentUSD,
		budget.MonthSpentUSD,
		dbTime(budget.LastDailyReset),
		dbTime(budget.LastMonthlyReset),
		budget.BudgetExceeded,
		dbTime(budget.UpdatedAt),
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update budget: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit budget: %w", err)
	}

	return budget, nil
}

// ListExceeded returns every budget currently flagged as exceeded
func (s *BudgetStore) ListExceeded(ctx context.Context) ([]*models.CostBudget, error) {
	query := `SELECT ` + budgetColumns + `
		FROM cost_budgets
		WHERE budget_exceeded = 1
		ORDER BY agent_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list exceeded budgets: %w", err)
	}
	defer rows.Close()

	result := make([]*models.CostBudget, 0)
	for rows.Next() {
		budget, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan budget: %w", err)
		}
		result = append(result, budget)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate budgets: %w", err)
	}

	return result, nil
}

func scanBudget(row rowScanner) (*models.CostBudget, error) {
	budget := &models.CostBudget{}
	err := row.Scan(
		&budget.AgentID, &budget.DailyBudgetUSD, &budget.MonthlyBudgetUSD, &budget.AlertThreshold,
		&budget.TodaySpentUSD, &budget.MonthSpentUSD, &budget.LastDailyReset, &budget.LastMonthlyReset,
		&budget.BudgetExceeded, &budget.CreatedAt, &budget.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return budget, nil
}
