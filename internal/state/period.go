package state

import (
	"context"
	"errors"
	"time"

	"github.com/user/agentmetrics/internal/types"
)

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FilesInRange returns the partitions whose UTC date lies within
// [dateOf(start), dateOf(end)], most recent first.
func (l *EventLog) FilesInRange(start, end time.Time) ([]string, error) {
	parts, err := l.Partitions()
	if err != nil {
		return nil, err
	}
	from, to := dateOf(start), dateOf(end)

	var files []string
	for _, p := range parts {
		if p.Day.Before(from) || p.Day.After(to) {
			continue
		}
		files = append(files, p.Path)
	}
	return files, nil
}

// ForEachEventSince streams every event stamped at or after start. Files
// are picked by date, then events are filtered by their exact timestamp.
// Partitions are visited most recent first; events within a partition
// arrive in append order.
func (l *EventLog) ForEachEventSince(ctx context.Context, start time.Time, fn types.EventFunc) error {
	files, err := l.FilesInRange(start, l.clock.Now())
	if err != nil {
		return err
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := l.forEach(path, func(ev types.Event) error {
			if ev.Time().Before(start) {
				return nil
			}
			return fn(ev)
		})
		if errors.Is(err, types.ErrStop) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ForEachEventInPeriod streams the events of the given look-back period.
func (l *EventLog) ForEachEventInPeriod(ctx context.Context, period types.Period, fn types.EventFunc) error {
	return l.ForEachEventSince(ctx, period.Start(l.clock.Now()), fn)
}
