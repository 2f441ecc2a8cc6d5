package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/agentmetrics/internal/clock"
	"github.com/user/agentmetrics/internal/metrics"
	"github.com/user/agentmetrics/internal/tracker"
	"github.com/user/agentmetrics/internal/types"
)

func newTestEngine(t *testing.T) (*Engine, *clock.FakeClock) {
	t.Helper()
	c := clock.Fake(time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC))
	e, err := New(Options{Dir: filepath.Join(t.TempDir(), "metrics"), Clock: c})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, c
}

func TestNewRequiresDir(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestSessionLifecycle(t *testing.T) {
	e, c := newTestEngine(t)
	ctx := context.Background()

	started, err := e.StartSession(ctx, "")
	require.NoError(t, err)
	assert.False(t, started.Resumed)

	current, ok, err := e.CurrentSession(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, started.SessionID, current)

	taskID, err := e.StartTask(ctx, tracker.StartTaskParams{Description: "Fix flaky test", TaskType: "fix"})
	require.NoError(t, err)
	require.NoError(t, e.UpdateTask(ctx, tracker.UpdateTaskParams{TaskID: taskID, Notes: "found the race"}))
	require.NoError(t, e.RecordHookExecution(ctx, HookExecutionParams{HookType: "Stop", HookName: "test", DurationMs: 900, Passed: true}))
	require.NoError(t, e.RecordHookExecution(ctx, HookExecutionParams{HookType: "Stop", HookName: "lint", ExitCode: 1}))

	c.Advance(20 * time.Minute)
	require.NoError(t, e.CompleteTask(ctx, tracker.CompleteTaskParams{TaskID: taskID, Outcome: types.OutcomeSuccess, Confidence: 0.8}))

	ended, err := e.EndSession(ctx, started.SessionID)
	require.NoError(t, err)
	assert.True(t, ended.Success)
	assert.Equal(t, 1, ended.TaskCount)
	assert.Equal(t, 1, ended.SuccessCount)
	assert.Equal(t, int64(20), ended.DurationMinutes)

	_, ok, err = e.CurrentSession(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	res, err := e.QueryMetrics(ctx, metrics.MetricsQuery{Period: types.PeriodDay})
	require.NoError(t, err)
	require.Len(t, res.Tasks, 1)
	assert.Equal(t, started.SessionID, res.Tasks[0].SessionID)
	require.NotNil(t, res.Tasks[0].DurationSeconds)
	assert.Equal(t, int64(1200), *res.Tasks[0].DurationSeconds)
	assert.InDelta(t, 0.8, res.CalibrationScore, 1e-9)

	sessions, err := e.QuerySessionMetrics(ctx, types.PeriodDay, 5)
	require.NoError(t, err)
	require.Len(t, sessions.Sessions, 1)
	assert.Equal(t, 1, sessions.Sessions[0].HooksPassed)
	assert.Equal(t, 1, sessions.Sessions[0].HooksFailed)
}

func TestEnginesShareOnlyTheLog(t *testing.T) {
	c := clock.Fake(time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC))
	dir := filepath.Join(t.TempDir(), "metrics")
	ctx := context.Background()

	first, err := New(Options{Dir: dir, Clock: c})
	require.NoError(t, err)
	_, err = first.StartSession(ctx, "from-first")
	require.NoError(t, err)

	second, err := New(Options{Dir: dir, Clock: c})
	require.NoError(t, err)
	// The second engine has no cached session, so hooks stay unattributed.
	require.NoError(t, second.RecordHookExecution(ctx, HookExecutionParams{HookType: "Stop", HookName: "lint", Passed: true}))

	current, ok, err := second.CurrentSession(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.SessionID("from-first"), current)

	sessions, err := second.QuerySessionMetrics(ctx, types.PeriodDay, 0)
	require.NoError(t, err)
	require.Len(t, sessions.Sessions, 1)
	assert.Zero(t, sessions.Sessions[0].HooksPassed)
}

func TestStartTaskAttachesSessionFromAnotherEngine(t *testing.T) {
	c := clock.Fake(time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC))
	dir := filepath.Join(t.TempDir(), "metrics")
	ctx := context.Background()

	first, err := New(Options{Dir: dir, Clock: c})
	require.NoError(t, err)
	_, err = first.StartSession(ctx, "from-first")
	require.NoError(t, err)

	second, err := New(Options{Dir: dir, Clock: c})
	require.NoError(t, err)
	assert.Equal(t, dir, second.Dir())
	taskID, err := second.StartTask(ctx, tracker.StartTaskParams{Description: "x", TaskType: "fix"})
	require.NoError(t, err)

	res, err := second.QueryMetrics(ctx, metrics.MetricsQuery{Period: types.PeriodDay})
	require.NoError(t, err)
	require.Len(t, res.Tasks, 1)
	assert.Equal(t, taskID, res.Tasks[0].TaskID)
	assert.Equal(t, types.SessionID("from-first"), res.Tasks[0].SessionID)
}

func TestRecordHookExecutionValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	err := e.RecordHookExecution(ctx, HookExecutionParams{HookType: "Stop"})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	err = e.RecordHookExecution(ctx, HookExecutionParams{HookName: "lint"})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestRecordFrustration(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := e.RecordFrustration(ctx, FrustrationParams{
		Level:       types.FrustrationModerate,
		Score:       3.5,
		UserMessage: "that is not what I asked",
		Signals:     []string{"manual"},
	})
	require.NoError(t, err)
	assert.True(t, res.Recorded)
	assert.Equal(t, types.FrustrationModerate, res.Level)

	res, err = e.RecordFrustration(ctx, FrustrationParams{UserMessage: "Looks good, thanks"})
	require.NoError(t, err)
	assert.False(t, res.Recorded)

	res, err = e.RecordFrustration(ctx, FrustrationParams{UserMessage: "STOP STOP STOP!!!", Context: "after third retry"})
	require.NoError(t, err)
	assert.True(t, res.Recorded)
	assert.Equal(t, types.FrustrationHigh, res.Level)
	assert.NotEmpty(t, res.Signals)

	_, err = e.RecordFrustration(ctx, FrustrationParams{Level: "furious", UserMessage: "x"})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	m, err := e.QueryMetrics(ctx, metrics.MetricsQuery{Period: types.PeriodDay})
	require.NoError(t, err)
	assert.Equal(t, 2, m.TotalFrustrations)
	assert.Equal(t, 2, m.SignificantFrustrations)
	// No tasks: rates stay at zero.
	assert.Zero(t, m.FrustrationRate)
}

func TestDashboard(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.StartSession(ctx, "s1")
	require.NoError(t, err)
	id, err := e.StartTask(ctx, tracker.StartTaskParams{Description: "Refactor config", TaskType: "refactoring"})
	require.NoError(t, err)
	require.NoError(t, e.FailTask(ctx, tracker.FailTaskParams{TaskID: id, Reason: "scope too large"}))
	for i := 0; i < 3; i++ {
		require.NoError(t, e.RecordHookExecution(ctx, HookExecutionParams{HookType: "Stop", HookName: "vet", ExitCode: 2}))
	}

	d, err := e.Dashboard(ctx, "", 5)
	require.NoError(t, err)
	assert.Equal(t, types.PeriodWeek, d.Period)
	require.NotNil(t, d.Metrics)
	assert.Equal(t, map[string]int{"refactor": 1}, d.Metrics.TasksByType)
	require.NotNil(t, d.Hooks)
	assert.Equal(t, 3, d.Hooks.Failed)
	require.Len(t, d.HookFailures, 1)
	assert.Equal(t, "vet", d.HookFailures[0].Name)
	require.NotNil(t, d.Sessions)
	assert.Len(t, d.Sessions.Sessions, 1)
}

func TestDashboardCanceled(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.StartSession(context.Background(), "s1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Dashboard(ctx, types.PeriodDay, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCloseIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.NoError(t, e.Close())
	assert.NoError(t, e.Close())
}
