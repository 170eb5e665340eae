package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-gateway-console/types"
)

const DefaultCheckTimeout = 5 * time.Second

// Manager aggregates the status of the session's components into one
// report.
type Manager struct {
	name         string
	logger       types.Logger
	checkers     map[string]types.HealthChecker
	startTime    time.Time
	checkTimeout time.Duration
	mu           sync.RWMutex
}

func NewManager(name string, logger types.Logger, checkTimeout time.Duration) *Manager {
	if checkTimeout <= 0 {
		checkTimeout = DefaultCheckTimeout
	}

	return &Manager{
		name:         name,
		logger:       logger,
		checkers:     make(map[string]types.HealthChecker),
		startTime:    time.Now(),
		checkTimeout: checkTimeout,
	}
}

func (hm *Manager) RegisterChecker(name string, checker types.HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.checkers[name] = checker
}

// Check runs every checker concurrently. A checker that panics or outlives
// the check timeout is reported unhealthy.
func (hm *Manager) Check(ctx context.Context) types.HealthReport {
	hm.mu.RLock()
	checkers := make(map[string]types.HealthChecker, len(hm.checkers))
	for name, checker := range hm.checkers {
		checkers[name] = checker
	}
	hm.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, hm.checkTimeout)
	defer cancel()

	g := &errgroup.Group{}
	results := make(map[string]types.HealthCheck, len(checkers))
	var resultMu sync.Mutex

	for name, checker := range checkers {
		name, checker := name, checker
		g.Go(func() error {
			result := hm.executeCheck(checkCtx, name, checker)

			resultMu.Lock()
			results[name] = result
			resultMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		hm.logger.Error("Error during health checks", zap.Error(err))
	}

	return hm.buildReport(results)
}

// executeCheck stamps the checker's result with its name and timing. The
// checker runs in its own goroutine so a hung check cannot hold the report.
func (hm *Manager) executeCheck(ctx context.Context, name string, checker types.HealthChecker) types.HealthCheck {
	start := time.Now()
	done := make(chan types.HealthCheck, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- types.HealthCheck{Status: types.StatusUnhealthy, Message: fmt.Sprintf("check panicked: %v", r)}
			}
		}()
		done <- checker(ctx)
	}()

	var result types.HealthCheck
	select {
	case result = <-done:
	case <-ctx.Done():
		result = types.HealthCheck{Status: types.StatusUnhealthy, Message: "check timed out"}
		hm.logger.Warn("Health check timed out", zap.String("check", name))
	}

	result.Name = name
	result.LastCheck = time.Now()
	result.Duration = time.Since(start)
	return result
}

// severity orders statuses so the report carries the worst one.
var severity = map[types.HealthStatus]int{
	types.StatusHealthy:   0,
	types.StatusUnknown:   1,
	types.StatusUnhealthy: 2,
}

func (hm *Manager) buildReport(results map[string]types.HealthCheck) types.HealthReport {
	report := types.HealthReport{
		Status:    types.StatusHealthy,
		Name:      hm.name,
		Timestamp: time.Now(),
		Uptime:    time.Since(hm.startTime),
		Checks:    results,
		Summary:   types.HealthSummary{Total: len(results)},
	}

	for _, result := range results {
		status := result.Status
		if _, known := severity[status]; !known {
			status = types.StatusUnknown
		}

		switch status {
		case types.StatusHealthy:
			report.Summary.Healthy++
		case types.StatusUnhealthy:
			report.Summary.Unhealthy++
		default:
			report.Summary.Unknown++
		}

		if severity[status] > severity[report.Status] {
			report.Status = status
		}
	}

	return report
}
