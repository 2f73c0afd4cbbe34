package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type checkerState struct {
	checker  Checker
	enabled  bool
	timeout  time.Duration
	critical bool
}

// Manager runs registered checkers on demand and in the background.
type Manager struct {
	checkers      map[string]*checkerState
	lastResults   map[string]CheckResult
	started       bool
	checkInterval time.Duration
	stopCh        chan struct{}
	logger        *zap.Logger
	mu            sync.RWMutex
}

// NewManager creates a new health manager
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		checkers:      make(map[string]*checkerState),
		lastResults:   make(map[string]CheckResult),
		checkInterval: 30 * time.Second,
		stopCh:        make(chan struct{}),
		logger:        logger,
	}
}

// RegisterChecker registers a health check
func (m *Manager) RegisterChecker(checker Checker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := checker.Name()
	if name == "" {
		return fmt.Errorf("checker name cannot be empty")
	}
	if _, exists := m.checkers[name]; exists {
		return fmt.Errorf("checker %s already registered", name)
	}
	m.checkers[name] = &checkerState{
		checker:  checker,
		enabled:  true,
		timeout:  checker.Timeout(),
		critical: checker.IsCritical(),
	}
	m.logger.Info("Health checker registered",
		zap.String("checker", name),
		zap.Bool("critical", checker.IsCritical()),
		zap.Duration("timeout", checker.Timeout()),
	)
	return nil
}

// SetEnabled toggles a checker without unregistering it.
func (m *Manager) SetEnabled(name string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.checkers[name]
	if !ok {
		return fmt.Errorf("checker %s not found", name)
	}
	state.enabled = enabled
	if !enabled {
		delete(m.lastResults, name)
	}
	return nil
}

// GetOverallHealth returns the overall health status
func (m *Manager) GetOverallHealth(ctx context.Context) OverallHealth {
	start := time.Now()
	detailed := m.GetDetailedHealth(ctx)
	overall := detailed.Overall
	overall.Timestamp = detailed.Timestamp
	overall.Duration = time.Since(start)
	return overall
}

// GetDetailedHealth runs every enabled checker concurrently.
func (m *Manager) GetDetailedHealth(ctx context.Context) DetailedHealth {
	m.mu.RLock()
	states := make([]*checkerState, 0, len(m.checkers))
	for _, state := range m.checkers {
		if state.enabled {
			states = append(states, state)
		}
	}
	m.mu.RUnlock()

	timestamp := time.Now()
	components := make(map[string]CheckResult, len(states))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, state := range states {
		wg.Add(1)
		go func(state *checkerState) {
			defer wg.Done()
			result := m.runCheck(ctx, state)
			mu.Lock()
			components[result.Component] = result
			mu.Unlock()
		}(state)
	}
	wg.Wait()

	m.mu.Lock()
	for name, result := range components {
		m.lastResults[name] = result
	}
	m.mu.Unlock()

	return buildDetailed(components, timestamp)
}

// runCheck executes a single checker under its timeout
func (m *Manager) runCheck(ctx context.Context, state *checkerState) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, state.timeout)
	defer cancel()

	start := time.Now()
	result := state.checker.Check(checkCtx)
	result.Component = state.checker.Name()
	result.Critical = state.critical
	result.Duration = time.Since(start)
	result.Timestamp = start
	return result
}

// CachedHealth summarizes the last results without running checks.
func (m *Manager) CachedHealth() DetailedHealth {
	return buildDetailed(m.GetLastResults(), time.Now())
}

func buildDetailed(components map[string]CheckResult, ts time.Time) DetailedHealth {
	summary := Summary{Total: len(components)}
	for _, result := range components {
		switch result.Status {
		case StatusHealthy:
			summary.Healthy++
		case StatusDegraded:
			summary.Degraded++
		case StatusUnhealthy:
			summary.Unhealthy++
		}
		if result.Critical {
			summary.Critical++
		} else {
			summary.NonCritical++
		}
	}
	overall := overallStatus(components, summary)
	overall.Timestamp = ts
	return DetailedHealth{
		Overall:    overall,
		Components: components,
		Summary:    summary,
		Timestamp:  ts,
	}
}

// overallStatus determines overall health from component results. The
// process is live whenever it can answer; readiness requires every
// critical component.
func overallStatus(components map[string]CheckResult, summary Summary) OverallHealth {
	if summary.Total == 0 {
		return OverallHealth{
			Status:  StatusHealthy,
			Message: "No health checks registered",
			Ready:   true,
			Live:    true,
		}
	}

	criticalFailures, nonCriticalFailures, degraded := 0, 0, 0
	for _, result := range components {
		switch {
		case result.Status == StatusDegraded:
			degraded++
		case result.Status == StatusUnhealthy && result.Critical:
			criticalFailures++
		case result.Status == StatusUnhealthy:
			nonCriticalFailures++
		}
	}

	switch {
	case criticalFailures > 0:
		return OverallHealth{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("%d critical component(s) failing", criticalFailures),
			Live:    true,
		}
	case degraded > 0:
		return OverallHealth{
			Status:   StatusDegraded,
			Message:  fmt.Sprintf("%d component(s) degraded", degraded),
			Degraded: true,
			Ready:    true,
			Live:     true,
		}
	case nonCriticalFailures > 0:
		return OverallHealth{
			Status:   StatusDegraded,
			Message:  fmt.Sprintf("%d non-critical component(s) failing", nonCriticalFailures),
			Degraded: true,
			Ready:    true,
			Live:     true,
		}
	default:
		return OverallHealth{
			Status:  StatusHealthy,
			Message: fmt.Sprintf("All %d components healthy", summary.Total),
			Ready:   true,
			Live:    true,
		}
	}
}

// IsReady returns true if the service is ready to serve requests
func (m *Manager) IsReady(ctx context.Context) bool {
	return m.GetOverallHealth(ctx).Ready
}

// Start begins background health checking
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}
	m.started = true
	go m.backgroundChecker(ctx)
	m.logger.Info("Health manager started",
		zap.Duration("check_interval", m.checkInterval),
		zap.Int("registered_checkers", len(m.checkers)),
	)
	return nil
}

// Stop stops background health checking
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}
	close(m.stopCh)
	m.started = false
	m.logger.Info("Health manager stopped")
	return nil
}

// SetCheckInterval updates the background check interval. It applies on the
// next Start.
func (m *Manager) SetCheckInterval(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if interval > 0 {
		m.checkInterval = interval
	}
}

func (m *Manager) backgroundChecker(ctx context.Context) {
	m.mu.RLock()
	interval := m.checkInterval
	m.mu.RUnlock()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			detailed := m.GetDetailedHealth(checkCtx)
			cancel()
			if detailed.Overall.Status != StatusHealthy {
				m.logger.Warn("Health degraded",
					zap.String("status", detailed.Overall.Status.String()),
					zap.String("message", detailed.Overall.Message),
				)
			}
		}
	}
}

// GetLastResults returns the most recent health check results without running new checks
func (m *Manager) GetLastResults() map[string]CheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make(map[string]CheckResult, len(m.lastResults))
	for name, result := range m.lastResults {
		results[name] = result
	}
	return results
}
