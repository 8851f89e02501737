package budget

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-governor/agent-governor/internal/storage"
	"github.com/agent-governor/agent-governor/pkg/models"
)

// mockStore implements Store for testing. Update holds the lock for the
// whole read-modify-write like the SQLite transaction does.
type mockStore struct {
	mu      sync.RWMutex
	budgets map[string]*models.CostBudget
	err     error
}

func newMockStore() *mockStore {
	return &mockStore{
		budgets: make(map[string]*models.CostBudget),
	}
}

func (m *mockStore) Get(ctx context.Context, agentID string) (*models.CostBudget, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.budgets[agentID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *b
	return &copy, nil
}

func (m *mockStore) CreateIfAbsent(ctx context.Context, budget *models.CostBudget) (*models.CostBudget, bool, error) {
	if m.err != nil {
		return nil, false, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.budgets[budget.AgentID]; ok {
		copy := *existing
		return &copy, false, nil
	}
	stored := *budget
	m.budgets[budget.AgentID] = &stored
	copy := stored
	return &copy, true, nil
}

func (m *mockStore) Update(ctx context.Context, agentID string, fn func(*models.CostBudget) error) (*models.CostBudget, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.budgets[agentID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	working := *b
	if err := fn(&working); err != nil {
		return nil, err
	}
	m.budgets[agentID] = &working
	copy := working
	return &copy, nil
}

func (m *mockStore) ListExceeded(ctx context.Context) ([]*models.CostBudget, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*models.CostBudget, 0)
	for _, b := range m.budgets {
		if b.BudgetExceeded {
			copy := *b
			result = append(result, &copy)
		}
	}
	return result, nil
}

func (m *mockStore) put(b *models.CostBudget) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *b
	m.budgets[b.AgentID] = &copy
}

// mockAlertSender implements AlertSender for testing
type mockAlertSender struct {
	mu     sync.Mutex
	alerts []models.BudgetAlert
	err    error
}

func newMockAlertSender() *mockAlertSender {
	return &mockAlertSender{
		alerts: make([]models.BudgetAlert, 0),
	}
}

func (m *mockAlertSender) SendBudgetAlert(ctx context.Context, alert models.BudgetAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
	return m.err
}

func (m *mockAlertSender) getAlerts() []models.BudgetAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]models.BudgetAlert, len(m.alerts))
	copy(result, m.alerts)
	return result
}

func (m *mockAlertSender) countType(alertType models.AlertType) int {
	n := 0
	for _, a := range m.getAlerts() {
		if a.AlertType == alertType {
			n++
		}
	}
	return n
}

// testClock is a settable clock for rollover tests
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func floatp(v float64) *float64 {
	return &v
}

func TestLedger_New(t *testing.T) {
	ledger := New(newMockStore(), Config{})

	cfg := ledger.Config()
	assert.Equal(t, DefaultDailyBudgetUSD, cfg.DefaultDailyBudgetUSD)
	assert.Equal(t, DefaultMonthlyBudgetUSD, cfg.DefaultMonthlyBudgetUSD)
	assert.Equal(t, DefaultAlertThreshold, cfg.AlertThreshold)
	assert.Zero(t, cfg.ExceededAlertInterval)
}

func TestLedger_New_InvalidThresholdFallsBack(t *testing.T) {
	ledger := New(newMockStore(), Config{AlertThreshold: 1.5})
	assert.Equal(t, DefaultAlertThreshold, ledger.Config().AlertThreshold)

	ledger = New(newMockStore(), Config{AlertThreshold: 1.0})
	assert.Equal(t, 1.0, ledger.Config().AlertThreshold)
}

func TestLedger_InitializeBudget_Defaults(t *testing.T) {
	clock := newTestClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	ledger := New(newMockStore(), DefaultConfig(), WithTimeFunc(clock.Now))

	b, err := ledger.InitializeBudget(context.Background(), "a1", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "a1", b.AgentID)
	assert.Equal(t, DefaultDailyBudgetUSD, b.DailyBudgetUSD)
	assert.Equal(t, DefaultMonthlyBudgetUSD, b.MonthlyBudgetUSD)
	assert.Equal(t, DefaultAlertThreshold, b.AlertThreshold)
	assert.Zero(t, b.TodaySpentUSD)
	assert.False(t, b.BudgetExceeded)
	assert.True(t, b.LastDailyReset.Equal(clock.Now()))
	assert.True(t, b.LastMonthlyReset.Equal(clock.Now()))
}

func TestLedger_InitializeBudget_Idempotent(t *testing.T) {
	ledger := New(newMockStore(), DefaultConfig())
	ctx := context.Background()

	first, err := ledger.InitializeBudget(ctx, "a1", floatp(1.0), floatp(20.0))
	require.NoError(t, err)

	second, err := ledger.InitializeBudget(ctx, "a1", floatp(50.0), floatp(500.0))
	require.NoError(t, err)

	assert.Equal(t, 1.0, second.DailyBudgetUSD)
	assert.Equal(t, 20.0, second.MonthlyBudgetUSD)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestLedger_InitializeBudget_Invalid(t *testing.T) {
	ledger := New(newMockStore(), DefaultConfig())
	ctx := context.Background()

	_, err := ledger.InitializeBudget(ctx, "", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidBudget)

	_, err = ledger.InitializeBudget(ctx, "a1", floatp(0), nil)
	assert.ErrorIs(t, err, ErrInvalidBudget)

	_, err = ledger.InitializeBudget(ctx, "a1", nil, floatp(-5))
	var ceilingErr *InvalidCeilingError
	require.True(t, errors.As(err, &ceilingErr))
	assert.Equal(t, "monthly", ceilingErr.Period)

	_, err = ledger.GetBudget(ctx, "a1")
	assert.ErrorIs(t, err, ErrBudgetNotFound)
}

func TestLedger_GetBudget_NotFound(t *testing.T) {
	ledger := New(newMockStore(), DefaultConfig())

	_, err := ledger.GetBudget(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrBudgetNotFound)
}

func TestLedger_GetBudget_StoreError(t *testing.T) {
	store := newMockStore()
	store.err = errors.New("disk on fire")
	ledger := New(store, DefaultConfig())

	_, err := ledger.GetBudget(context.Background(), "a1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBudgetNotFound)
}

func TestLedger_AddSpend_LazyInitialization(t *testing.T) {
	ledger := New(newMockStore(), DefaultConfig())
	ctx := context.Background()

	b, err := ledger.AddSpend(ctx, "new-agent", 0.25)
	require.NoError(t, err)

	assert.Equal(t, DefaultDailyBudgetUSD, b.DailyBudgetUSD)
	assert.InDelta(t, 0.25, b.TodaySpentUSD, 1e-9)
	assert.InDelta(t, 0.25, b.MonthSpentUSD, 1e-9)
}

func TestLedger_AddSpend_SumOfCosts(t *testing.T) {
	ledger := New(newMockStore(), DefaultConfig())
	ctx := context.Background()

	costs := []float64{0.002, 0.0135, 0.4, 0, 1.25, 0.0001}
	var want float64
	for _, c := range costs {
		want += c
		_, err := ledger.AddSpend(ctx, "a1", c)
		require.NoError(t, err)
	}

	b, err := ledger.GetBudget(ctx, "a1")
	require.NoError(t, err)
	assert.InDelta(t, want, b.TodaySpentUSD, 1e-9)
	assert.InDelta(t, want, b.MonthSpentUSD, 1e-9)
}

func TestLedger_AddSpend_NegativeCostClamped(t *testing.T) {
	ledger := New(newMockStore(), DefaultConfig())
	ctx := context.Background()

	_, err := ledger.AddSpend(ctx, "a1", 0.5)
	require.NoError(t, err)
	b, err := ledger.AddSpend(ctx, "a1", -3)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, b.TodaySpentUSD, 1e-9)
}

func TestLedger_AddSpend_EmptyAgent(t *testing.T) {
	ledger := New(newMockStore(), DefaultConfig())

	_, err := ledger.AddSpend(context.Background(), "", 1)
	assert.ErrorIs(t, err, ErrInvalidBudget)
}

func TestLedger_AddSpend_DailyRollover(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := newTestClock(start)
	ledger := New(newMockStore(), DefaultConfig(), WithTimeFunc(clock.Now))
	ctx := context.Background()

	_, err := ledger.AddSpend(ctx, "a1", 2.0)
	require.NoError(t, err)

	clock.Advance(25 * time.Hour)

	b, err := ledger.AddSpend(ctx, "a1", 0.5)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, b.TodaySpentUSD, 1e-9)
	assert.InDelta(t, 2.5, b.MonthSpentUSD, 1e-9)
	assert.True(t, b.LastDailyReset.Equal(clock.Now()))
	assert.True(t, b.LastMonthlyReset.Equal(start))
}

func TestLedger_AddSpend_NoRolloverWithinDay(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := newTestClock(start)
	ledger := New(newMockStore(), DefaultConfig(), WithTimeFunc(clock.Now))
	ctx := context.Background()

	_, err := ledger.AddSpend(ctx, "a1", 2.0)
	require.NoError(t, err)

	clock.Advance(23*time.Hour + 59*time.Minute)

	b, err := ledger.AddSpend(ctx, "a1", 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, b.TodaySpentUSD, 1e-9)
	assert.True(t, b.LastDailyReset.Equal(start))
}

func TestLedger_AddSpend_MonthlyRollover(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := newTestClock(start)
	ledger := New(newMockStore(), DefaultConfig(), WithTimeFunc(clock.Now))
	ctx := context.Background()

	_, err := ledger.AddSpend(ctx, "a1", 5.0)
	require.NoError(t, err)

	clock.Advance(29 * 24 * time.Hour)
	b, err := ledger.AddSpend(ctx, "a1", 1.0)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, b.MonthSpentUSD, 1e-9)

	clock.Advance(24 * time.Hour)
	b, err = ledger.AddSpend(ctx, "a1", 1.0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, b.MonthSpentUSD, 1e-9)
	assert.InDelta(t, 1.0, b.TodaySpentUSD, 1e-9)
	assert.True(t, b.LastMonthlyReset.Equal(clock.Now()))
}

func TestLedger_AddSpend_RolloverClearsExceeded(t *testing.T) {
	clock := newTestClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	ledger := New(newMockStore(), DefaultConfig(), WithTimeFunc(clock.Now))
	ctx := context.Background()

	_, err := ledger.InitializeBudget(ctx, "a1", floatp(1.0), floatp(100.0))
	require.NoError(t, err)

	b, err := ledger.AddSpend(ctx, "a1", 1.5)
	require.NoError(t, err)
	require.True(t, b.BudgetExceeded)

	clock.Advance(DailyPeriod)

	b, err = ledger.AddSpend(ctx, "a1", 0.1)
	require.NoError(t, err)
	assert.False(t, b.BudgetExceeded)
}

func TestLedger_AddSpend_ExceededFlag(t *testing.T) {
	tests := []struct {
		name         string
		daily        float64
		monthly      float64
		todaySpent   float64
		monthSpent   float64
		cost         float64
		wantExceeded bool
	}{
		{"under both", 1.0, 10.0, 0.0, 0.0, 0.5, false},
		{"exactly at daily ceiling", 1.0, 10.0, 0.5, 0.5, 0.5, false},
		{"over daily", 1.0, 10.0, 0.9, 0.9, 0.2, true},
		{"over monthly only", 5.0, 10.0, 0.0, 9.9, 0.2, true},
		{"zero cost over ceiling", 1.0, 10.0, 1.5, 1.5, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
			store := newMockStore()
			store.put(&models.CostBudget{
				AgentID:          "a1",
				DailyBudgetUSD:   tt.daily,
				MonthlyBudgetUSD: tt.monthly,
				AlertThreshold:   0.8,
				TodaySpentUSD:    tt.todaySpent,
				MonthSpentUSD:    tt.monthSpent,
				LastDailyReset:   now,
				LastMonthlyReset: now,
			})
			ledger := New(store, DefaultConfig(), WithTimeFunc(func() time.Time { return now }))

			b, err := ledger.AddSpend(context.Background(), "a1", tt.cost)
			require.NoError(t, err)

			assert.Equal(t, tt.wantExceeded, b.BudgetExceeded)
			assert.Equal(t, b.TodaySpentUSD > b.DailyBudgetUSD || b.MonthSpentUSD > b.MonthlyBudgetUSD, b.BudgetExceeded)
		})
	}
}

func TestLedger_Scenario_WarningThenExceeded(t *testing.T) {
	alerts := newMockAlertSender()
	ledger := New(newMockStore(), DefaultConfig(), WithAlertSender(alerts))
	ctx := context.Background()

	_, err := ledger.InitializeBudget(ctx, "a1", floatp(1.0), floatp(100.0))
	require.NoError(t, err)

	b, err := ledger.AddSpend(ctx, "a1", 0.30)
	require.NoError(t, err)
	b, err = ledger.AddSpend(ctx, "a1", 0.30)
	require.NoError(t, err)
	assert.InDelta(t, 0.60, b.TodaySpentUSD, 1e-9)
	assert.Empty(t, alerts.getAlerts())

	b, err = ledger.AddSpend(ctx, "a1", 0.30)
	require.NoError(t, err)
	assert.InDelta(t, 0.90, b.TodaySpentUSD, 1e-9)
	assert.False(t, b.BudgetExceeded)
	assert.Equal(t, models.BudgetWarning, b.StatusAt(time.Now()))

	got := alerts.getAlerts()
	require.Len(t, got, 1)
	assert.Equal(t, models.AlertWarning, got[0].AlertType)
	assert.Equal(t, "daily", got[0].Period)
	assert.InDelta(t, 90.0, got[0].Percentage, 1e-6)

	b, err = ledger.AddSpend(ctx, "a1", 0.20)
	require.NoError(t, err)
	assert.InDelta(t, 1.10, b.TodaySpentUSD, 1e-9)
	assert.True(t, b.BudgetExceeded)

	got = alerts.getAlerts()
	require.Len(t, got, 2)
	assert.Equal(t, models.AlertExceeded, got[1].AlertType)
	assert.Equal(t, "daily", got[1].Period)

	canExecute, err := ledger.CanExecute(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, canExecute)

	// Reset scenario
	resetAt := time.Now()
	ledger.now = func() time.Time { return resetAt }

	b, err = ledger.ResetBudget(ctx, "a1")
	require.NoError(t, err)
	assert.Zero(t, b.TodaySpentUSD)
	assert.Zero(t, b.MonthSpentUSD)
	assert.False(t, b.BudgetExceeded)
	assert.True(t, b.LastDailyReset.Equal(resetAt))
	assert.True(t, b.LastMonthlyReset.Equal(resetAt))

	canExecute, err = ledger.CanExecute(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, canExecute)
}

func TestLedger_WarningFiresOncePerPeriod(t *testing.T) {
	clock := newTestClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	alerts := newMockAlertSender()
	ledger := New(newMockStore(), DefaultConfig(), WithAlertSender(alerts), WithTimeFunc(clock.Now))
	ctx := context.Background()

	_, err := ledger.InitializeBudget(ctx, "a1", floatp(1.0), floatp(100.0))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := ledger.AddSpend(ctx, "a1", 0.3)
		require.NoError(t, err)
	}
	_, err = ledger.AddSpend(ctx, "a1", 0.05)
	require.NoError(t, err)
	assert.Equal(t, 1, alerts.countType(models.AlertWarning))

	clock.Advance(DailyPeriod)
	_, err = ledger.AddSpend(ctx, "a1", 0.85)
	require.NoError(t, err)
	assert.Equal(t, 2, alerts.countType(models.AlertWarning))
}

func TestLedger_MonthlyWarning(t *testing.T) {
	alerts := newMockAlertSender()
	ledger := New(newMockStore(), DefaultConfig(), WithAlertSender(alerts))
	ctx := context.Background()

	_, err := ledger.InitializeBudget(ctx, "a1", floatp(100.0), floatp(10.0))
	require.NoError(t, err)

	_, err = ledger.AddSpend(ctx, "a1", 8.5)
	require.NoError(t, err)

	got := alerts.getAlerts()
	require.Len(t, got, 1)
	assert.Equal(t, models.AlertWarning, got[0].AlertType)
	assert.Equal(t, "monthly", got[0].Period)
}

func TestLedger_MonthlyWarningWhenDailyExceeded(t *testing.T) {
	clock := newTestClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	alerts := newMockAlertSender()
	ledger := New(newMockStore(), DefaultConfig(), WithAlertSender(alerts), WithTimeFunc(clock.Now))
	ctx := context.Background()

	_, err := ledger.InitializeBudget(ctx, "a1", floatp(1.0), floatp(2.0))
	require.NoError(t, err)

	// Daily goes over its ceiling while monthly crosses 80% of its own
	b, err := ledger.AddSpend(ctx, "a1", 1.7)
	require.NoError(t, err)
	assert.True(t, b.BudgetExceeded)

	got := alerts.getAlerts()
	require.Len(t, got, 2)
	assert.Equal(t, models.AlertWarning, got[0].AlertType)
	assert.Equal(t, "monthly", got[0].Period)
	assert.InDelta(t, 85.0, got[0].Percentage, 1e-6)
	assert.Equal(t, models.AlertExceeded, got[1].AlertType)
	assert.Equal(t, "daily", got[1].Period)

	// Next day: no longer exceeded, and the monthly warning is not repeated
	clock.Advance(25 * time.Hour)
	b, err = ledger.AddSpend(ctx, "a1", 0.1)
	require.NoError(t, err)
	assert.False(t, b.BudgetExceeded)
	assert.InDelta(t, 1.8, b.MonthSpentUSD, 1e-9)
	assert.Equal(t, 1, alerts.countType(models.AlertWarning))
	assert.Equal(t, 1, alerts.countType(models.AlertExceeded))
}

func TestLedger_ExceededAlertsEveryUpdateByDefault(t *testing.T) {
	alerts := newMockAlertSender()
	ledger := New(newMockStore(), DefaultConfig(), WithAlertSender(alerts))
	ctx := context.Background()

	_, err := ledger.InitializeBudget(ctx, "a1", floatp(1.0), floatp(100.0))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := ledger.AddSpend(ctx, "a1", 0.5)
		require.NoError(t, err)
	}

	// 1.0 is not over the ceiling; 1.5 and 2.0 are
	assert.Equal(t, 2, alerts.countType(models.AlertExceeded))
}

func TestLedger_ExceededAlertInterval(t *testing.T) {
	clock := newTestClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	alerts := newMockAlertSender()
	cfg := DefaultConfig()
	cfg.ExceededAlertInterval = time.Hour
	ledger := New(newMockStore(), cfg, WithAlertSender(alerts), WithTimeFunc(clock.Now))
	ctx := context.Background()

	_, err := ledger.InitializeBudget(ctx, "a1", floatp(1.0), floatp(100.0))
	require.NoError(t, err)

	_, err = ledger.AddSpend(ctx, "a1", 2.0)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		clock.Advance(time.Minute)
		_, err := ledger.AddSpend(ctx, "a1", 0.1)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, alerts.countType(models.AlertExceeded))

	clock.Advance(time.Hour)
	_, err = ledger.AddSpend(ctx, "a1", 0.1)
	require.NoError(t, err)
	assert.Equal(t, 2, alerts.countType(models.AlertExceeded))
}

func TestLedger_AlertSenderFailureIgnored(t *testing.T) {
	alerts := newMockAlertSender()
	alerts.err = errors.New("redis down")
	ledger := New(newMockStore(), DefaultConfig(), WithAlertSender(alerts))
	ctx := context.Background()

	_, err := ledger.InitializeBudget(ctx, "a1", floatp(1.0), floatp(100.0))
	require.NoError(t, err)

	b, err := ledger.AddSpend(ctx, "a1", 5.0)
	require.NoError(t, err)
	assert.True(t, b.BudgetExceeded)
	assert.Len(t, alerts.getAlerts(), 1)
}

func TestLedger_CanExecute_NoBudget(t *testing.T) {
	ledger := New(newMockStore(), DefaultConfig())

	ok, err := ledger.CanExecute(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLedger_CanExecute_StoreError(t *testing.T) {
	store := newMockStore()
	store.err = errors.New("locked")
	ledger := New(store, DefaultConfig())

	ok, err := ledger.CanExecute(context.Background(), "a1")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestLedger_ResetBudget_NotFound(t *testing.T) {
	ledger := New(newMockStore(), DefaultConfig())

	_, err := ledger.ResetBudget(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrBudgetNotFound)
}

func TestLedger_ResetBudget_KeepsCeilings(t *testing.T) {
	ledger := New(newMockStore(), DefaultConfig())
	ctx := context.Background()

	_, err := ledger.InitializeBudget(ctx, "a1", floatp(2.0), floatp(40.0))
	require.NoError(t, err)
	_, err = ledger.AddSpend(ctx, "a1", 3.0)
	require.NoError(t, err)

	b, err := ledger.ResetBudget(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2.0, b.DailyBudgetUSD)
	assert.Equal(t, 40.0, b.MonthlyBudgetUSD)
}

func TestLedger_ListBudgetAlerts(t *testing.T) {
	ledger := New(newMockStore(), DefaultConfig())
	ctx := context.Background()

	for _, id := range []string{"a1", "a2", "a3"} {
		_, err := ledger.InitializeBudget(ctx, id, floatp(1.0), floatp(100.0))
		require.NoError(t, err)
	}
	_, err := ledger.AddSpend(ctx, "a1", 1.5)
	require.NoError(t, err)
	_, err = ledger.AddSpend(ctx, "a2", 0.5)
	require.NoError(t, err)
	_, err = ledger.AddSpend(ctx, "a3", 2.5)
	require.NoError(t, err)

	exceeded, err := ledger.ListBudgetAlerts(ctx)
	require.NoError(t, err)

	ids := make([]string, 0, len(exceeded))
	for _, b := range exceeded {
		ids = append(ids, b.AgentID)
	}
	assert.ElementsMatch(t, []string{"a1", "a3"}, ids)
}

func TestLedger_ConcurrentAddSpend(t *testing.T) {
	ledger := New(newMockStore(), DefaultConfig())
	assertConcurrentAddSpend(t, ledger)
}

func TestLedger_ConcurrentAddSpend_SQLite(t *testing.T) {
	db, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	ledger := New(storage.NewBudgetStore(db), DefaultConfig())
	assertConcurrentAddSpend(t, ledger)
}

func assertConcurrentAddSpend(t *testing.T, ledger *Ledger) {
	t.Helper()

	const (
		workers = 40
		cost    = 0.125
	)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.AddSpend(ctx, "busy-agent", cost); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	b, err := ledger.GetBudget(ctx, "busy-agent")
	require.NoError(t, err)
	assert.InDelta(t, workers*cost, b.TodaySpentUSD, 1e-9)
	assert.InDelta(t, workers*cost, b.MonthSpentUSD, 1e-9)
}
