// internal/state/event_test.go
package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/user/agentmetrics/internal/clock"
	"github.com/user/agentmetrics/internal/types"
)

func newTestLog(t *testing.T, now time.Time) (*EventLog, *clock.FakeClock) {
	t.Helper()
	c := clock.Fake(now)
	return NewEventLog(filepath.Join(t.TempDir(), "metrics"), WithClock(c)), c
}

func collect(t *testing.T, log *EventLog, path string) []types.Event {
	t.Helper()
	var events []types.Event
	err := log.ForEachEvent(path, func(ev types.Event) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	return events
}

func TestEventLog(t *testing.T) {
	now := time.Date(2026, 4, 9, 10, 30, 0, 0, time.UTC)
	log, _ := newTestLog(t, now)
	ctx := context.Background()

	// Test append
	require.NoError(t, log.Append(ctx, &types.SessionStart{SessionID: "s1"}))
	require.NoError(t, log.Append(ctx, &types.TaskStart{TaskID: "t1", SessionID: "s1", Description: "fix", TaskType: "fix"}))

	path := filepath.Join(log.Dir(), "metrics-2026-04-09.jsonl")
	data, err := os.ReadFile(path)
	require.NoError(t, err, "expected partition file")
	assert.Equal(t, 2, strings.Count(string(data), "\n"))

	// Test read back
	events := collect(t, log, path)
	require.Len(t, events, 2)
	assert.Equal(t, types.EventSessionStart, events[0].Kind())
	assert.True(t, events[1].Time().Equal(now), "timestamp %v", events[1].Time())
}

func TestEventLogPartitionsByCurrentDay(t *testing.T) {
	log, c := newTestLog(t, time.Date(2026, 4, 9, 23, 59, 0, 0, time.UTC))
	ctx := context.Background()

	// An explicit logical timestamp does not pick the partition.
	ev := &types.SessionStart{SessionID: "s1"}
	ev.Timestamp = "2026-01-01T00:00:00.000Z"
	require.NoError(t, log.Append(ctx, ev))
	c.Advance(2 * time.Minute)
	require.NoError(t, log.Append(ctx, &types.SessionEnd{SessionID: "s1"}))

	parts, err := log.Partitions()
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, "metrics-2026-04-10.jsonl", filepath.Base(parts[0].Path), "newest partition first")
	assert.Equal(t, "metrics-2026-04-09.jsonl", filepath.Base(parts[1].Path))
}

func TestForEachEventSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	log := NewEventLog(dir)
	path := filepath.Join(dir, "metrics-2026-04-09.jsonl")
	content := strings.Join([]string{
		`{"type":"session_start","timestamp":"2026-04-09T10:00:00.000Z","session_id":"a"}`,
		`not json at all`,
		``,
		`{"type":"unknown_kind","timestamp":"2026-04-09T10:00:00.000Z"}`,
		`{"type":"session_start","timestamp":"2026-04-09T10:01:00.000Z","session_id":"b"}`,
		`{"type":"session_start","timestamp":"2026-04-09T10:02:00.000Z","sess`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	events := collect(t, log, path)
	require.Len(t, events, 2)
	assert.Equal(t, types.SessionID("b"), events[1].(*types.SessionStart).SessionID)
}

func TestForEachEventMissingFile(t *testing.T) {
	log := NewEventLog(t.TempDir())
	events := collect(t, log, filepath.Join(log.Dir(), "metrics-1999-01-01.jsonl"))
	assert.Empty(t, events)
}

func TestForEachEventLongLine(t *testing.T) {
	log, _ := newTestLog(t, time.Date(2026, 4, 9, 10, 0, 0, 0, time.UTC))
	notes := strings.Repeat("x", 200*1024)
	require.NoError(t, log.Append(context.Background(), &types.TaskUpdate{TaskID: "t1", Notes: notes}))

	events := collect(t, log, filepath.Join(log.Dir(), "metrics-2026-04-09.jsonl"))
	require.Len(t, events, 1)
	assert.Len(t, events[0].(*types.TaskUpdate).Notes, len(notes))
}

func TestForEachEventStopAndError(t *testing.T) {
	log, _ := newTestLog(t, time.Date(2026, 4, 9, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	for _, id := range []types.SessionID{"a", "b", "c"} {
		require.NoError(t, log.Append(ctx, &types.SessionStart{SessionID: id}))
	}
	path := filepath.Join(log.Dir(), "metrics-2026-04-09.jsonl")

	seen := 0
	err := log.ForEachEvent(path, func(types.Event) error {
		seen++
		return types.ErrStop
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, seen)

	boom := errors.New("boom")
	err = log.ForEachEvent(path, func(types.Event) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestEventLogConcurrentAppends(t *testing.T) {
	log, _ := newTestLog(t, time.Date(2026, 4, 9, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = log.Append(ctx, &types.HookExecution{HookType: "Stop", HookName: "lint", Passed: true})
			}
		}()
	}
	wg.Wait()

	events := collect(t, log, filepath.Join(log.Dir(), "metrics-2026-04-09.jsonl"))
	assert.Len(t, events, 200, "every append lands as an intact line")
}

func TestEventLogAppendUnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	log := NewEventLog(filepath.Join(blocker, "metrics"))
	err := log.Append(context.Background(), &types.SessionStart{SessionID: "s"})
	assert.Error(t, err, "append into a path under a regular file fails")
}

func TestEventLogCountsAppendsAndSkips(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	log, _ := newTestLog(t, time.Date(2026, 4, 9, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, log.Append(ctx, &types.SessionStart{SessionID: "s"}))
	}
	path := filepath.Join(log.Dir(), "metrics-2026-04-09.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{torn\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	collect(t, log, path)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	totals := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[m.Name] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(3), totals["agentmetrics.events.appended"])
	assert.Equal(t, int64(1), totals["agentmetrics.events.skipped"])
}
