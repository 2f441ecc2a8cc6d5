package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/agentmetrics/internal/types"
)

func writePartition(t *testing.T, dir, date string, lines ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	var data []byte
	for _, line := range lines {
		data = append(data, line...)
		data = append(data, '\n')
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metrics-"+date+".jsonl"), data, 0o644))
}

func baseNames(paths []string) []string {
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	return names
}

func TestFilesInRange(t *testing.T) {
	log, _ := newTestLog(t, time.Date(2026, 4, 9, 12, 0, 0, 0, time.UTC))
	for _, date := range []string{"2026-04-01", "2026-04-02", "2026-04-05", "2026-04-09", "2026-04-10"} {
		writePartition(t, log.Dir(), date)
	}
	// Not partitions.
	writePartition(t, log.Dir(), "garbage")
	require.NoError(t, os.WriteFile(filepath.Join(log.Dir(), "notes.txt"), nil, 0o644))

	files, err := log.FilesInRange(
		time.Date(2026, 4, 2, 23, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 9, 1, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"metrics-2026-04-09.jsonl", "metrics-2026-04-05.jsonl", "metrics-2026-04-02.jsonl"},
		baseNames(files))
}

func TestFilesInRangeMissingDir(t *testing.T) {
	log := NewEventLog(filepath.Join(t.TempDir(), "never-created"))
	files, err := log.FilesInRange(time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestForEachEventInPeriodFiltersByTimestamp(t *testing.T) {
	log, _ := newTestLog(t, time.Date(2026, 4, 9, 12, 0, 0, 0, time.UTC))
	// The day window starts at 2026-04-08T12:00; the 04-08 file is selected
	// but only its afternoon events survive.
	writePartition(t, log.Dir(), "2026-04-08",
		`{"type":"session_start","timestamp":"2026-04-08T11:59:59.999Z","session_id":"too-old"}`,
		`{"type":"session_start","timestamp":"2026-04-08T12:00:00.000Z","session_id":"edge"}`,
	)
	writePartition(t, log.Dir(), "2026-04-09",
		`{"type":"session_start","timestamp":"2026-04-09T09:00:00.000Z","session_id":"today"}`,
	)
	writePartition(t, log.Dir(), "2026-04-07",
		`{"type":"session_start","timestamp":"2026-04-07T18:00:00.000Z","session_id":"outside"}`,
	)

	var got []types.SessionID
	err := log.ForEachEventInPeriod(context.Background(), types.PeriodDay, func(ev types.Event) error {
		got = append(got, ev.(*types.SessionStart).SessionID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []types.SessionID{"today", "edge"}, got)
}

func TestForEachEventSinceStopsAcrossPartitions(t *testing.T) {
	log, _ := newTestLog(t, time.Date(2026, 4, 9, 12, 0, 0, 0, time.UTC))
	writePartition(t, log.Dir(), "2026-04-08",
		`{"type":"session_start","timestamp":"2026-04-08T13:00:00.000Z","session_id":"older"}`,
	)
	writePartition(t, log.Dir(), "2026-04-09",
		`{"type":"session_start","timestamp":"2026-04-09T09:00:00.000Z","session_id":"newer"}`,
	)

	calls := 0
	err := log.ForEachEventSince(context.Background(), time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), func(types.Event) error {
		calls++
		return types.ErrStop
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "scan stops after the first event")
}

func TestForEachEventSinceCanceled(t *testing.T) {
	log, _ := newTestLog(t, time.Date(2026, 4, 9, 12, 0, 0, 0, time.UTC))
	writePartition(t, log.Dir(), "2026-04-09",
		`{"type":"session_start","timestamp":"2026-04-09T09:00:00.000Z","session_id":"s"}`,
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := log.ForEachEventInPeriod(ctx, types.PeriodWeek, func(types.Event) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
