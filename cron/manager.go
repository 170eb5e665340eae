package cron

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-gateway-console/types"
)

type State int32

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

const DefaultJobTimeout = 10 * time.Second

// Job is one periodic task. Its context is cancelled on timeout or when
// the manager stops.
type Job func(ctx context.Context) error

type JobEntry struct {
	ID       cron.EntryID
	Name     string
	Spec     string
	AddedAt  time.Time
	LastRun  time.Time
	NextRun  time.Time
	RunCount int64
	Error    error

	run func()
}

// Manager schedules the console's periodic refreshes.
type Manager struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	metrics         types.MetricsManager
	cron            *cron.Cron
	jobs            map[string]*JobEntry
	state           atomic.Value
	mu              sync.RWMutex
	shutdownTimeout time.Duration
	jobTimeout      time.Duration
}

var _ types.LifecycleManager = (*Manager)(nil)

func NewManager(ctx context.Context, logger types.Logger, metrics types.MetricsManager, timezone string, jobTimeout time.Duration) *Manager {
	location, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		location = time.UTC
	}

	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}

	cronL := safeCronLogger{logger: logger}

	managerCtx, cancel := context.WithCancel(ctx)

	manager := &Manager{
		ctx:     managerCtx,
		cancel:  cancel,
		logger:  logger,
		metrics: metrics,
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cronL), cron.SkipIfStillRunning(cronL)),
		),
		jobs:            make(map[string]*JobEntry),
		shutdownTimeout: 10 * time.Second,
		jobTimeout:      jobTimeout,
	}

	manager.state.Store(StateStopped)

	return manager
}

func (m *Manager) Add(jobName, spec string, job Job) error {
	if jobName == "" {
		return types.ErrCronJobNameIsEmpty
	}

	if spec == "" {
		return types.ErrCronExpressionInvalid
	}

	if job == nil {
		return types.ErrCronJobIsNil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[jobName]; exists {
		return types.ErrCronJobExists
	}

	run := m.wrapJob(jobName, job)

	entryID, err := m.cron.AddFunc(spec, run)
	if err != nil {
		return types.Errorf(types.ErrCronExpressionInvalid, "%s: %v", spec, err)
	}

	entry := &JobEntry{
		ID:      entryID,
		Name:    jobName,
		Spec:    spec,
		AddedAt: time.Now(),
		run:     run,
	}

	if cronEntry := m.cron.Entry(entryID); cronEntry.ID != 0 {
		entry.NextRun = cronEntry.Next
	}

	m.jobs[jobName] = entry

	m.logger.Info("Cron job added",
		zap.String("job_name", jobName),
		zap.String("spec", spec))

	return nil
}

func (m *Manager) Remove(jobName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.jobs[jobName]
	if !exists {
		return types.ErrCronJobNotFound
	}

	m.cron.Remove(entry.ID)
	delete(m.jobs, jobName)

	m.logger.Info("Cron job removed", zap.String("job_name", jobName))
	return nil
}

// Run executes a registered job immediately, outside its schedule.
func (m *Manager) Run(jobName string) error {
	m.mu.RLock()
	entry, exists := m.jobs[jobName]
	m.mu.RUnlock()

	if !exists {
		return types.ErrCronJobNotFound
	}

	entry.run()
	return nil
}

func (m *Manager) Has(jobName string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.jobs[jobName]
	return exists
}

func (m *Manager) Entry(jobName string) (JobEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.jobs[jobName]
	if !exists {
		return JobEntry{}, false
	}
	return *entry, true
}

func (m *Manager) Start() error {
	if !m.state.CompareAndSwap(StateStopped, StateRunning) {
		return types.ErrCronIsRunning
	}

	m.cron.Start()
	m.setSchedulerStatus(1)

	m.logger.Info("Cron manager started")
	return nil
}

func (m *Manager) Stop() error {
	if !m.state.CompareAndSwap(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer m.state.Store(StateStopped)

	stopCtx := m.cron.Stop()

	select {
	case <-stopCtx.Done():
		m.logger.Info("Cron scheduler stopped gracefully")
	case <-time.After(m.shutdownTimeout):
		m.logger.Warn("Cron manager stop timeout, some jobs may still be running")
	}

	m.setSchedulerStatus(0)
	return nil
}

// Close stops the scheduler and cancels running jobs.
func (m *Manager) Close() {
	m.cancel()
	if m.IsRunning() {
		_ = m.Stop()
	}
}

func (m *Manager) IsRunning() bool {
	return m.state.Load().(State) == StateRunning
}

func (m *Manager) wrapJob(jobName string, job Job) func() {
	return func() {
		if m.ctx.Err() != nil {
			m.logger.Debug("Job skipped due to shutdown", zap.String("job_name", jobName))
			return
		}

		startTime := time.Now()

		jobCtx, cancel := context.WithTimeout(m.ctx, m.jobTimeout)
		defer cancel()

		var err error
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = types.NewErrorf("job panic: %v", r)
				}
			}()
			err = job(jobCtx)
		}()

		duration := time.Since(startTime)
		m.updateJobStats(jobName, startTime, err)

		result := "success"
		if err != nil {
			result = "error"
			m.logger.Error("Cron job failed",
				zap.String("job_name", jobName),
				zap.Duration("duration", duration),
				zap.Error(err))
		} else {
			m.logger.Debug("Cron job completed",
				zap.String("job_name", jobName),
				zap.Duration("duration", duration))
		}

		m.recordExecution(jobName, result, duration)
	}
}

func (m *Manager) updateJobStats(jobName string, startTime time.Time, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.jobs[jobName]
	if !exists {
		return
	}

	entry.LastRun = startTime
	entry.RunCount++
	entry.Error = err

	if cronEntry := m.cron.Entry(entry.ID); cronEntry.ID != 0 {
		entry.NextRun = cronEntry.Next
	}
}

func (m *Manager) recordExecution(jobName, result string, duration time.Duration) {
	if m.metrics == nil {
		return
	}

	m.metrics.Counter("cron_job_executions_total", map[string]string{
		"job_name": jobName,
		"result":   result,
	}).Inc()

	m.metrics.Histogram("cron_job_duration_seconds",
		[]float64{0.01, 0.1, 1.0, 5.0, 10.0, 30.0},
		map[string]string{"job_name": jobName},
	).Observe(duration.Seconds())
}

func (m *Manager) setSchedulerStatus(value float64) {
	if m.metrics == nil {
		return
	}
	m.metrics.Gauge("cron_scheduler_running", nil).Set(value)
}

type safeCronLogger struct {
	logger types.Logger
}

func (l safeCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, toFields(keysAndValues)...)
}

func (l safeCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := append(toFields(keysAndValues), zap.Error(err))
	l.logger.Error(msg, fields...)
}

func toFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		key := fmt.Sprintf("%v", keysAndValues[i])
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
