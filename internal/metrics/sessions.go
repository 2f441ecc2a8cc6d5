package metrics

import (
	"context"
	"sort"
	"time"

	"github.com/user/agentmetrics/internal/types"
)

// DefaultSessionLimit is used when QuerySessionMetrics gets a limit <= 0.
const DefaultSessionLimit = 10

// trendMargin is how far the recent success rate must move from the older
// one before a trend is reported.
const trendMargin = 0.1

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// SessionSummary is a session reconstructed from its start, optional end
// snapshot and the hook executions attributed to it.
type SessionSummary struct {
	SessionID       types.SessionID `json:"session_id"`
	StartedAt       time.Time       `json:"started_at"`
	EndedAt         *time.Time      `json:"ended_at,omitempty"`
	DurationMinutes int64           `json:"duration_minutes"`
	TaskCount       int             `json:"task_count"`
	SuccessCount    int             `json:"success_count"`
	FailureCount    int             `json:"failure_count"`
	HooksPassed     int             `json:"hooks_passed"`
	HooksFailed     int             `json:"hooks_failed"`
}

// Active reports whether no session_end was seen for the session.
func (s SessionSummary) Active() bool {
	return s.EndedAt == nil
}

type Trends struct {
	SuccessRate Trend `json:"success_rate_trend"`
	// Calibration is always stable: calibration is not tracked per session.
	Calibration Trend `json:"calibration_trend"`
}

type SessionMetrics struct {
	Sessions []SessionSummary `json:"sessions"`
	Trends   Trends           `json:"trends"`
}

type sessionState struct {
	summary  SessionSummary
	started  bool
	endedAt  time.Time
	ended    bool
	snapshot *types.SessionEnd
}

// QuerySessionMetrics returns the most recently started sessions of the
// period, newest first, and compares the success rate of the recent half
// with the older half.
func (a *Aggregator) QuerySessionMetrics(ctx context.Context, period types.Period, limit int) (*SessionMetrics, error) {
	if limit <= 0 {
		limit = DefaultSessionLimit
	}
	defer a.observe(ctx, "sessions", period, time.Now())

	sessions := make(map[types.SessionID]*sessionState)
	state := func(id types.SessionID) *sessionState {
		s, ok := sessions[id]
		if !ok {
			s = &sessionState{summary: SessionSummary{SessionID: id}}
			sessions[id] = s
		}
		return s
	}

	err := a.store.ForEachEventInPeriod(ctx, period, func(ev types.Event) error {
		switch e := ev.(type) {
		case *types.SessionStart:
			s := state(e.SessionID)
			if !s.started || e.Time().After(s.summary.StartedAt) {
				s.summary.StartedAt = e.Time()
			}
			s.started = true
		case *types.SessionEnd:
			s := state(e.SessionID)
			if !s.ended || e.Time().After(s.endedAt) {
				s.endedAt, s.snapshot = e.Time(), e
			}
			s.ended = true
		case *types.HookExecution:
			if e.SessionID == "" {
				return nil
			}
			s := state(e.SessionID)
			if e.Passed {
				s.summary.HooksPassed++
			} else {
				s.summary.HooksFailed++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	list := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		if !s.started {
			continue
		}
		sum := s.summary
		if s.ended {
			at := s.endedAt
			sum.EndedAt = &at
			sum.DurationMinutes = s.snapshot.DurationMinutes
			sum.TaskCount = s.snapshot.TaskCount
			sum.SuccessCount = s.snapshot.SuccessCount
			sum.FailureCount = s.snapshot.FailureCount
		}
		list = append(list, sum)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].StartedAt.Equal(list[j].StartedAt) {
			return list[i].StartedAt.After(list[j].StartedAt)
		}
		return list[i].SessionID > list[j].SessionID
	})
	if len(list) > limit {
		list = list[:limit]
	}

	return &SessionMetrics{
		Sessions: list,
		Trends: Trends{
			SuccessRate: successTrend(list),
			Calibration: TrendStable,
		},
	}, nil
}

// successTrend splits sessions, newest first, at the midpoint and compares
// the aggregate success rate of each half.
func successTrend(sessions []SessionSummary) Trend {
	if len(sessions) < 2 {
		return TrendStable
	}
	mid := len(sessions) / 2
	recent, older := successRate(sessions[:mid]), successRate(sessions[mid:])
	switch {
	case recent > older+trendMargin:
		return TrendImproving
	case recent < older-trendMargin:
		return TrendDeclining
	}
	return TrendStable
}

func successRate(sessions []SessionSummary) float64 {
	var tasks, successes int
	for _, s := range sessions {
		tasks += s.TaskCount
		successes += s.SuccessCount
	}
	if tasks == 0 {
		return 0
	}
	return float64(successes) / float64(tasks)
}
