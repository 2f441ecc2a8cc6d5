package types

import "context"

// EventFunc receives one decoded event. Returning an error stops the scan.
type EventFunc func(Event) error

// EventStore is the append-only log seen by trackers and aggregators.
type EventStore interface {
	Append(ctx context.Context, ev Event) error
	ForEachEventInPeriod(ctx context.Context, period Period, fn EventFunc) error
}
