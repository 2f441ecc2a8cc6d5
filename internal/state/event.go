// internal/state/event.go
package state

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/user/agentmetrics/internal/clock"
	"github.com/user/agentmetrics/internal/telemetry"
	"github.com/user/agentmetrics/internal/types"
)

const (
	partitionPrefix = "metrics-"
	partitionSuffix = ".jsonl"
	dateLayout      = "2006-01-02"

	// AtomicAppendSize is the largest single append that concurrent writers
	// on Linux can rely on not to interleave (PIPE_BUF). Larger lines are
	// still written, with a warning.
	AtomicAppendSize = 4096
)

// EventLog is a JSONL-backed append-only event log partitioned by UTC day.
// Events are stored in <dir>/metrics-YYYY-MM-DD.jsonl. There is no file
// lock: each append is a single write of one complete line, so concurrent
// writers from other processes interleave at line granularity.
type EventLog struct {
	dir    string
	clock  clock.Clock
	logger *slog.Logger

	appended metric.Int64Counter
	skipped  metric.Int64Counter
}

// Option configures an EventLog.
type Option func(*EventLog)

// WithClock sets the clock used to stamp events and choose partitions.
func WithClock(c clock.Clock) Option {
	return func(l *EventLog) { l.clock = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *EventLog) { l.logger = logger }
}

// NewEventLog creates an EventLog rooted at dir. The directory is created
// on the first append.
func NewEventLog(dir string, opts ...Option) *EventLog {
	l := &EventLog{
		dir:    dir,
		clock:  clock.Real(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	meter := telemetry.Meter("agentmetrics/state")
	l.appended, _ = meter.Int64Counter("agentmetrics.events.appended",
		metric.WithDescription("Events appended to the log"),
	)
	l.skipped, _ = meter.Int64Counter("agentmetrics.events.skipped",
		metric.WithDescription("Log lines skipped because they did not decode"),
	)
	return l
}

// Dir returns the directory holding the partitions.
func (l *EventLog) Dir() string {
	return l.dir
}

// PartitionName returns the file name of the partition for day's UTC date.
func PartitionName(day time.Time) string {
	return partitionPrefix + day.UTC().Format(dateLayout) + partitionSuffix
}

func (l *EventLog) partitionPath(day time.Time) string {
	return filepath.Join(l.dir, PartitionName(day))
}

// Append stamps ev and appends it to today's partition. The timestamp is
// only set when ev does not already carry one; the partition is always
// chosen from the current time.
func (l *EventLog) Append(ctx context.Context, ev types.Event) error {
	now := l.clock.Now()
	types.Stamp(ev, now)

	data, err := types.EncodeEvent(ev)
	if err != nil {
		return err
	}
	if len(data) > AtomicAppendSize {
		l.logger.Warn("event exceeds atomic append size",
			"type", ev.Kind(),
			"bytes", len(data),
			"limit", AtomicAppendSize,
		)
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}

	path := l.partitionPath(now)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open partition: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("append event: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close partition: %w", err)
	}

	l.appended.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(ev.Kind()))))
	return nil
}

// ForEachEvent streams the events stored in path, one line at a time.
// Lines that do not decode are skipped; a missing file yields no events.
// If fn returns types.ErrStop the scan ends and nil is returned.
func (l *EventLog) ForEachEvent(path string, fn types.EventFunc) error {
	err := l.forEach(path, fn)
	if errors.Is(err, types.ErrStop) {
		return nil
	}
	return err
}

func (l *EventLog) forEach(path string, fn types.EventFunc) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open partition: %w", err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	lineNo := 0
	for {
		line, readErr := r.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return fmt.Errorf("read partition %s: %w", filepath.Base(path), readErr)
		}
		lineNo++

		if len(bytes.TrimSpace(line)) > 0 {
			ev, err := types.DecodeEvent(line)
			if err != nil {
				l.skipped.Add(context.Background(), 1)
				l.logger.Debug("skipping log line",
					"file", filepath.Base(path),
					"line", lineNo,
					"error", err,
				)
			} else if err := fn(ev); err != nil {
				return err
			}
		}

		if readErr == io.EOF {
			return nil
		}
	}
}

// Partition is one day's log file.
type Partition struct {
	Day  time.Time
	Path string
}

// Partitions lists the partition files present on disk, most recent first.
// A missing directory is an empty history.
func (l *EventLog) Partitions() ([]Partition, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list metrics dir: %w", err)
	}

	var parts []Partition
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, partitionPrefix) || !strings.HasSuffix(name, partitionSuffix) {
			continue
		}
		date := strings.TrimSuffix(strings.TrimPrefix(name, partitionPrefix), partitionSuffix)
		day, err := time.Parse(dateLayout, date)
		if err != nil {
			continue
		}
		parts = append(parts, Partition{Day: day, Path: filepath.Join(l.dir, name)})
	}

	sort.Slice(parts, func(i, j int) bool {
		return parts[i].Day.After(parts[j].Day)
	})
	return parts, nil
}
