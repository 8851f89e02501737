package budget

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agent-governor/agent-governor/internal/metrics"
	"github.com/agent-governor/agent-governor/pkg/models"
)

// DefaultMonitorInterval is how often exceeded budgets are counted
const DefaultMonitorInterval = 1 * time.Minute

// ExceededLister lists budgets in the exceeded state
type ExceededLister interface {
	ListBudgetAlerts(ctx context.Context) ([]*models.CostBudget, error)
}

// Monitor periodically publishes the number of exceeded budgets
type Monitor struct {
	lister   ExceededLister
	logger   *slog.Logger
	interval time.Duration

	// Shutdown coordination
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	stats *MonitorStats
}

// MonitorStats tracks monitor statistics
type MonitorStats struct {
	mu           sync.RWMutex
	ChecksRun    int64
	Errors       int64
	LastExceeded int
}

// MonitorOption configures the monitor
type MonitorOption func(*Monitor)

// WithMonitorLogger sets a custom logger
func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithMonitorInterval sets how often budgets are checked
func WithMonitorInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// NewMonitor creates a new budget monitor
func NewMonitor(lister ExceededLister, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		lister:   lister,
		logger:   slog.Default(),
		interval: DefaultMonitorInterval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		stats:    &MonitorStats{},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start begins the monitor loop
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	m.logger.Info("budget monitor starting",
		slog.Duration("interval", m.interval))

	go m.run(ctx, stopCh, doneCh)
	return nil
}

// Stop gracefully stops the monitor
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	stopCh := m.stopCh
	doneCh := m.doneCh
	m.mu.Unlock()

	m.logger.Info("budget monitor stopping")
	close(stopCh)
	<-doneCh

	m.mu.Lock()
	if m.doneCh == doneCh {
		m.running = false
	}
	m.mu.Unlock()

	m.logger.Info("budget monitor stopped")
}

// IsRunning returns whether the monitor loop is active
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-stopCh:
			return
		case <-ctx.Done():
			m.mu.Lock()
			if m.doneCh == doneCh {
				m.running = false
			}
			m.mu.Unlock()
			m.logger.Info("budget monitor stopped: context done")
			return
		}
	}
}

// Check counts exceeded budgets once and updates the gauge
func (m *Monitor) Check(ctx context.Context) {
	budgets, err := m.lister.ListBudgetAlerts(ctx)

	m.stats.mu.Lock()
	m.stats.ChecksRun++
	if err != nil {
		m.stats.Errors++
	} else {
		m.stats.LastExceeded = len(budgets)
	}
	m.stats.mu.Unlock()

	if err != nil {
		m.logger.Error("failed to list exceeded budgets",
			slog.String("error", err.Error()))
		return
	}

	metrics.SetBudgetsExceeded(len(budgets))

	if len(budgets) == 0 {
		m.logger.Debug("no budgets exceeded")
		return
	}

	agentIDs := make([]string, 0, len(budgets))
	for _, b := range budgets {
		agentIDs = append(agentIDs, b.AgentID)
	}
	m.logger.Warn("agents over budget",
		slog.Int("count", len(budgets)),
		slog.Any("agent_ids", agentIDs))
}

// Stats returns a snapshot of monitor statistics
func (m *Monitor) Stats() (checks, errs int64, lastExceeded int) {
	m.stats.mu.RLock()
	defer m.stats.mu.RUnlock()
	return m.stats.ChecksRun, m.stats.Errors, m.stats.LastExceeded
}
