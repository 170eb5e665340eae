package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/saiset-co/sai-gateway-console/logger"
	"github.com/saiset-co/sai-gateway-console/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(context.Background(), logger.NewNop(), nil, "UTC", time.Second)
	t.Cleanup(m.Close)
	return m
}

func TestManager_AddValidation(t *testing.T) {
	m := newTestManager(t)
	noop := func(ctx context.Context) error { return nil }

	assert.ErrorIs(t, m.Add("", "@every 30s", noop), types.ErrCronJobNameIsEmpty)
	assert.ErrorIs(t, m.Add("job", "", noop), types.ErrCronExpressionInvalid)
	assert.ErrorIs(t, m.Add("job", "@every 30s", nil), types.ErrCronJobIsNil)
	assert.ErrorIs(t, m.Add("job", "not a spec", noop), types.ErrCronExpressionInvalid)

	require.NoError(t, m.Add("job", "@every 30s", noop))
	assert.ErrorIs(t, m.Add("job", "@every 30s", noop), types.ErrCronJobExists)
	assert.True(t, m.Has("job"))

	require.NoError(t, m.Remove("job"))
	assert.ErrorIs(t, m.Remove("job"), types.ErrCronJobNotFound)
	assert.ErrorIs(t, m.Run("job"), types.ErrCronJobNotFound)
}

func TestManager_RunRecordsOutcome(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := NewManager(context.Background(), logger.NewZapWrapper(zap.New(core)), nil, "", time.Second)
	t.Cleanup(m.Close)

	failure := errors.New("backend unavailable")
	require.NoError(t, m.Add("failing", "@every 30s", func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return failure
	}))
	require.NoError(t, m.Add("panicking", "@every 30s", func(ctx context.Context) error {
		panic("boom")
	}))

	require.NoError(t, m.Run("failing"))
	require.NoError(t, m.Run("panicking"))

	entry, ok := m.Entry("failing")
	require.True(t, ok)
	assert.Equal(t, int64(1), entry.RunCount)
	assert.ErrorIs(t, entry.Error, failure)

	entry, ok = m.Entry("panicking")
	require.True(t, ok)
	assert.Error(t, entry.Error)

	assert.Equal(t, 2, logs.FilterMessage("Cron job failed").Len())
}

func TestManager_SchedulesJobs(t *testing.T) {
	m := newTestManager(t)

	var runs atomic.Int32
	require.NoError(t, m.Add("tick", "@every 1s", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	require.NoError(t, m.Start())
	assert.ErrorIs(t, m.Start(), types.ErrCronIsRunning)

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Stop())
	assert.False(t, m.IsRunning())
	assert.ErrorIs(t, m.Stop(), types.ErrServerNotRunning)
}
