package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/user/agentmetrics/internal/clock"
	"github.com/user/agentmetrics/internal/types"
)

// DefaultStartCacheSize bounds the in-memory task start-time cache.
const DefaultStartCacheSize = 1024

// TaskTracker appends task lifecycle events. Start times are cached per
// process to compute durations cheaply; a cold cache falls back to the
// last day of the log.
type TaskTracker struct {
	store    types.EventStore
	sessions *SessionTracker
	clock    clock.Clock
	logger   *slog.Logger

	starts *lru.Cache[types.TaskID, time.Time]
}

// NewTaskTracker creates a TaskTracker. sessions resolves the current
// session for tasks started without one. cacheSize <= 0 selects
// DefaultStartCacheSize.
func NewTaskTracker(store types.EventStore, sessions *SessionTracker, c clock.Clock, logger *slog.Logger, cacheSize int) (*TaskTracker, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultStartCacheSize
	}
	starts, err := lru.New[types.TaskID, time.Time](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create start cache: %w", err)
	}
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskTracker{
		store:    store,
		sessions: sessions,
		clock:    c,
		logger:   logger,
		starts:   starts,
	}, nil
}

type StartTaskParams struct {
	Description string
	TaskType    string
	Complexity  string
	SessionID   types.SessionID
}

type UpdateTaskParams struct {
	TaskID types.TaskID
	Status string
	Notes  string
}

type CompleteTaskParams struct {
	TaskID        types.TaskID
	Outcome       types.Outcome
	Confidence    float64
	FilesModified []string
	TestsAdded    *int
	Notes         string
}

type FailTaskParams struct {
	TaskID             types.TaskID
	Reason             string
	Confidence         *float64
	AttemptedSolutions []string
	Notes              string
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{types.ErrInvalidArgument}, args...)...)
}

// StartTask logs a task_start and returns the new task id.
func (t *TaskTracker) StartTask(ctx context.Context, p StartTaskParams) (types.TaskID, error) {
	if p.Description == "" {
		return "", invalid("description is required")
	}
	if p.TaskType == "" {
		return "", invalid("task type is required")
	}

	sessionID := p.SessionID
	if sessionID == "" && t.sessions != nil {
		current, ok, err := t.sessions.CurrentSession(ctx)
		if err != nil {
			return "", fmt.Errorf("resolve current session: %w", err)
		}
		if ok {
			sessionID = current
		}
	}

	now := t.clock.Now()
	id := types.NewTaskID(now)
	t.starts.Add(id, now)

	err := t.store.Append(ctx, &types.TaskStart{
		TaskID:      id,
		SessionID:   sessionID,
		Description: p.Description,
		TaskType:    p.TaskType,
		Complexity:  p.Complexity,
	})
	if err != nil {
		t.starts.Remove(id)
		return "", fmt.Errorf("start task: %w", err)
	}
	t.logger.Debug("task started", "task_id", id, "session_id", sessionID, "task_type", p.TaskType)
	return id, nil
}

// UpdateTask logs a task_update. It never changes the task's status.
func (t *TaskTracker) UpdateTask(ctx context.Context, p UpdateTaskParams) error {
	if p.TaskID == "" {
		return invalid("task id is required")
	}
	if err := t.store.Append(ctx, &types.TaskUpdate{TaskID: p.TaskID, Status: p.Status, Notes: p.Notes}); err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// CompleteTask logs a task_complete with the elapsed duration.
func (t *TaskTracker) CompleteTask(ctx context.Context, p CompleteTaskParams) error {
	if p.TaskID == "" {
		return invalid("task id is required")
	}
	if !p.Outcome.Valid() {
		return invalid("unknown outcome %q", p.Outcome)
	}

	duration, err := t.durationSeconds(ctx, p.TaskID)
	if err != nil {
		return err
	}
	err = t.store.Append(ctx, &types.TaskComplete{
		TaskID:          p.TaskID,
		Outcome:         p.Outcome,
		Confidence:      clampConfidence(p.Confidence),
		DurationSeconds: duration,
		FilesModified:   p.FilesModified,
		TestsAdded:      p.TestsAdded,
		Notes:           p.Notes,
	})
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	t.starts.Remove(p.TaskID)
	return nil
}

// FailTask logs a task_fail with the elapsed duration.
func (t *TaskTracker) FailTask(ctx context.Context, p FailTaskParams) error {
	if p.TaskID == "" {
		return invalid("task id is required")
	}
	if p.Reason == "" {
		return invalid("reason is required")
	}

	duration, err := t.durationSeconds(ctx, p.TaskID)
	if err != nil {
		return err
	}
	ev := &types.TaskFail{
		TaskID:             p.TaskID,
		Reason:             p.Reason,
		DurationSeconds:    duration,
		AttemptedSolutions: p.AttemptedSolutions,
		Notes:              p.Notes,
	}
	if p.Confidence != nil {
		c := clampConfidence(*p.Confidence)
		ev.Confidence = &c
	}
	if err := t.store.Append(ctx, ev); err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	t.starts.Remove(p.TaskID)
	return nil
}

// durationSeconds measures from the task's start to now. Only the last day
// of the log is searched when the cache misses, so a task started on an
// earlier UTC day by another process reports 0.
func (t *TaskTracker) durationSeconds(ctx context.Context, id types.TaskID) (int64, error) {
	start, ok := t.starts.Get(id)
	if !ok {
		err := t.store.ForEachEventInPeriod(ctx, types.PeriodDay, func(ev types.Event) error {
			if e, isStart := ev.(*types.TaskStart); isStart && e.TaskID == id {
				start, ok = e.Time(), true
				return types.ErrStop
			}
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("find task start: %w", err)
		}
	}
	if !ok {
		t.logger.Debug("no task start found in the last day", "task_id", id)
		return 0, nil
	}

	elapsed := t.clock.Now().Sub(start).Round(time.Second)
	if elapsed < 0 {
		return 0, nil
	}
	return int64(elapsed / time.Second), nil
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
