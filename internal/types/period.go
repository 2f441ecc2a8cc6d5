package types

import (
	"strings"
	"time"
)

// Period is a coarse look-back window for queries.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ParsePeriod maps a selector to a Period. Anything unrecognized,
// including the empty string, is a week.
func ParsePeriod(s string) Period {
	switch Period(strings.ToLower(strings.TrimSpace(s))) {
	case PeriodDay:
		return PeriodDay
	case PeriodMonth:
		return PeriodMonth
	}
	return PeriodWeek
}

// Start returns the first instant covered by p when queried at now.
func (p Period) Start(now time.Time) time.Time {
	now = now.UTC()
	switch p {
	case PeriodDay:
		return now.Add(-24 * time.Hour)
	case PeriodMonth:
		return now.AddDate(0, 0, -30)
	}
	return now.AddDate(0, 0, -7)
}
