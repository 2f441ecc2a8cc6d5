// Package tracker records session and task lifecycle events.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/user/agentmetrics/internal/clock"
	"github.com/user/agentmetrics/internal/types"
)

// SessionTracker appends session lifecycle events and answers "which
// session is current" by replaying recent events.
type SessionTracker struct {
	store  types.EventStore
	clock  clock.Clock
	logger *slog.Logger

	mu     sync.Mutex
	active types.SessionID
}

// NewSessionTracker creates a SessionTracker writing to store.
func NewSessionTracker(store types.EventStore, c clock.Clock, logger *slog.Logger) *SessionTracker {
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionTracker{store: store, clock: c, logger: logger}
}

// StartResult is returned by StartSession.
type StartResult struct {
	SessionID types.SessionID `json:"session_id"`
	Resumed   bool            `json:"resumed"`
}

// EndResult is returned by EndSession. Success is always true once the
// session_end event is written.
type EndResult struct {
	Success         bool            `json:"success"`
	SessionID       types.SessionID `json:"session_id"`
	DurationMinutes int64           `json:"duration_minutes"`
	TaskCount       int             `json:"task_count"`
	SuccessCount    int             `json:"success_count"`
	FailureCount    int             `json:"failure_count"`
}

// StartSession resumes id when a start or resume for it was logged within
// the last week. Otherwise it starts a new session, generating an id when
// none is given. An unknown caller-supplied id is used as is.
func (s *SessionTracker) StartSession(ctx context.Context, id types.SessionID) (StartResult, error) {
	if id != "" {
		seen, err := s.seenSince(ctx, id, types.PeriodWeek)
		if err != nil {
			return StartResult{}, err
		}
		if seen {
			if err := s.store.Append(ctx, &types.SessionResume{SessionID: id}); err != nil {
				return StartResult{}, fmt.Errorf("resume session: %w", err)
			}
			s.setActive(id)
			s.logger.Debug("session resumed", "session_id", id)
			return StartResult{SessionID: id, Resumed: true}, nil
		}
	} else {
		id = types.NewSessionID(s.clock.Now())
	}

	if err := s.store.Append(ctx, &types.SessionStart{SessionID: id}); err != nil {
		return StartResult{}, fmt.Errorf("start session: %w", err)
	}
	s.setActive(id)
	s.logger.Debug("session started", "session_id", id)
	return StartResult{SessionID: id}, nil
}

func (s *SessionTracker) seenSince(ctx context.Context, id types.SessionID, period types.Period) (bool, error) {
	seen := false
	err := s.store.ForEachEventInPeriod(ctx, period, func(ev types.Event) error {
		switch e := ev.(type) {
		case *types.SessionStart:
			seen = e.SessionID == id
		case *types.SessionResume:
			seen = e.SessionID == id
		}
		if seen {
			return types.ErrStop
		}
		return nil
	})
	return seen, err
}

// EndSession summarizes the last day of the session's activity into a
// session_end event. The duration runs from the session's start; resumes
// do not reset it. Ending a session that was never started is not an
// error; its duration is reported as zero.
func (s *SessionTracker) EndSession(ctx context.Context, id types.SessionID) (EndResult, error) {
	if id == "" {
		return EndResult{}, fmt.Errorf("%w: session id is required", types.ErrInvalidArgument)
	}

	var (
		startedAt, resumedAt time.Time
		tasks                = make(map[types.TaskID]bool)
		terminals            = make(map[types.TaskID]terminal)
	)
	err := s.store.ForEachEventInPeriod(ctx, types.PeriodDay, func(ev types.Event) error {
		switch e := ev.(type) {
		case *types.SessionStart:
			if e.SessionID == id {
				startedAt = earliest(startedAt, e.Time())
			}
		case *types.SessionResume:
			if e.SessionID == id {
				resumedAt = earliest(resumedAt, e.Time())
			}
		case *types.TaskStart:
			if e.SessionID == id {
				tasks[e.TaskID] = true
			}
		case *types.TaskComplete:
			recordTerminal(terminals, e.TaskID, terminal{at: e.Time(), success: e.Outcome == types.OutcomeSuccess, failure: e.Outcome == types.OutcomeFailure})
		case *types.TaskFail:
			recordTerminal(terminals, e.TaskID, terminal{at: e.Time(), failure: true})
		}
		return nil
	})
	if err != nil {
		return EndResult{}, err
	}

	end := &types.SessionEnd{SessionID: id, TaskCount: len(tasks)}
	for taskID := range tasks {
		t, ok := terminals[taskID]
		if !ok {
			continue
		}
		if t.success {
			end.SuccessCount++
		}
		if t.failure {
			end.FailureCount++
		}
	}
	// A resume only stands in for the start when the start is older than
	// the scanned day.
	if startedAt.IsZero() {
		startedAt = resumedAt
	}
	if !startedAt.IsZero() {
		minutes := math.Round(s.clock.Now().Sub(startedAt).Minutes())
		end.DurationMinutes = int64(math.Max(0, minutes))
	} else {
		s.logger.Debug("ending session without a start in the last day", "session_id", id)
	}

	if err := s.store.Append(ctx, end); err != nil {
		return EndResult{}, fmt.Errorf("end session: %w", err)
	}

	s.mu.Lock()
	if s.active == id {
		s.active = ""
	}
	s.mu.Unlock()

	return EndResult{
		Success:         true,
		SessionID:       id,
		DurationMinutes: end.DurationMinutes,
		TaskCount:       end.TaskCount,
		SuccessCount:    end.SuccessCount,
		FailureCount:    end.FailureCount,
	}, nil
}

func earliest(cur, t time.Time) time.Time {
	if cur.IsZero() || t.Before(cur) {
		return t
	}
	return cur
}

// terminal is the last terminal event seen for a task.
type terminal struct {
	at      time.Time
	success bool
	failure bool
}

func recordTerminal(m map[types.TaskID]terminal, id types.TaskID, t terminal) {
	if prev, ok := m[id]; ok && prev.at.After(t.at) {
		return
	}
	m[id] = t
}

// CurrentSession returns the session started by this tracker, or else the
// most recently started or resumed session of the last day that has not
// ended. ok is false when there is none.
func (s *SessionTracker) CurrentSession(ctx context.Context) (id types.SessionID, ok bool, err error) {
	if active := s.Active(); active != "" {
		return active, true, nil
	}

	lastSeen := make(map[types.SessionID]time.Time)
	ended := make(map[types.SessionID]bool)
	touch := func(sid types.SessionID, at time.Time) {
		if at.After(lastSeen[sid]) {
			lastSeen[sid] = at
		}
	}
	err = s.store.ForEachEventInPeriod(ctx, types.PeriodDay, func(ev types.Event) error {
		switch e := ev.(type) {
		case *types.SessionStart:
			touch(e.SessionID, e.Time())
		case *types.SessionResume:
			touch(e.SessionID, e.Time())
		case *types.SessionEnd:
			ended[e.SessionID] = true
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}

	var latest time.Time
	for sid, at := range lastSeen {
		if ended[sid] {
			continue
		}
		if id == "" || at.After(latest) || (at.Equal(latest) && sid > id) {
			id, latest = sid, at
		}
	}
	return id, id != "", nil
}

// Active returns the session started or resumed by this tracker, if any.
func (s *SessionTracker) Active() types.SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *SessionTracker) setActive(id types.SessionID) {
	s.mu.Lock()
	s.active = id
	s.mu.Unlock()
}
