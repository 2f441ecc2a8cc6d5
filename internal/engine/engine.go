// Package engine is the facade over the event log: one Engine owns the
// log, the trackers and their caches, and the aggregators.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/user/agentmetrics/internal/clock"
	"github.com/user/agentmetrics/internal/frustration"
	"github.com/user/agentmetrics/internal/metrics"
	"github.com/user/agentmetrics/internal/state"
	"github.com/user/agentmetrics/internal/tracker"
	"github.com/user/agentmetrics/internal/types"
)

// Options configures New. Dir is required.
type Options struct {
	Dir            string
	Clock          clock.Clock
	Logger         *slog.Logger
	StartCacheSize int
}

// Engine records and queries telemetry for one call site. Separate Engines
// over the same directory share nothing but the log.
type Engine struct {
	log      *state.EventLog
	sessions *tracker.SessionTracker
	tasks    *tracker.TaskTracker
	agg      *metrics.Aggregator
	logger   *slog.Logger

	closeOnce sync.Once
}

// New wires an Engine over the log in opts.Dir.
func New(opts Options) (*Engine, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: metrics dir is required", types.ErrInvalidArgument)
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	log := state.NewEventLog(opts.Dir, state.WithClock(opts.Clock), state.WithLogger(opts.Logger))
	sessions := tracker.NewSessionTracker(log, opts.Clock, opts.Logger)
	tasks, err := tracker.NewTaskTracker(log, sessions, opts.Clock, opts.Logger, opts.StartCacheSize)
	if err != nil {
		return nil, err
	}
	return &Engine{
		log:      log,
		sessions: sessions,
		tasks:    tasks,
		agg:      metrics.NewAggregator(log, opts.Logger),
		logger:   opts.Logger,
	}, nil
}

// Dir returns the directory holding the log partitions.
func (e *Engine) Dir() string {
	return e.log.Dir()
}

func (e *Engine) StartSession(ctx context.Context, id types.SessionID) (tracker.StartResult, error) {
	return e.sessions.StartSession(ctx, id)
}

func (e *Engine) EndSession(ctx context.Context, id types.SessionID) (tracker.EndResult, error) {
	return e.sessions.EndSession(ctx, id)
}

// CurrentSession returns the active session; ok is false when there is none.
func (e *Engine) CurrentSession(ctx context.Context) (id types.SessionID, ok bool, err error) {
	return e.sessions.CurrentSession(ctx)
}

func (e *Engine) StartTask(ctx context.Context, p tracker.StartTaskParams) (types.TaskID, error) {
	return e.tasks.StartTask(ctx, p)
}

func (e *Engine) UpdateTask(ctx context.Context, p tracker.UpdateTaskParams) error {
	return e.tasks.UpdateTask(ctx, p)
}

func (e *Engine) CompleteTask(ctx context.Context, p tracker.CompleteTaskParams) error {
	return e.tasks.CompleteTask(ctx, p)
}

func (e *Engine) FailTask(ctx context.Context, p tracker.FailTaskParams) error {
	return e.tasks.FailTask(ctx, p)
}

// HookExecutionParams describes one hook run.
type HookExecutionParams struct {
	SessionID  types.SessionID
	TaskID     types.TaskID
	HookType   string
	HookName   string
	HookSource string
	DurationMs int64
	ExitCode   int
	Passed     bool
	Output     string
	Error      string
}

// RecordHookExecution logs a hook run. Without an explicit session id the
// session started by this Engine, if any, is used.
func (e *Engine) RecordHookExecution(ctx context.Context, p HookExecutionParams) error {
	if p.HookName == "" {
		return fmt.Errorf("%w: hook name is required", types.ErrInvalidArgument)
	}
	if p.HookType == "" {
		return fmt.Errorf("%w: hook type is required", types.ErrInvalidArgument)
	}
	if p.SessionID == "" {
		p.SessionID = e.sessions.Active()
	}
	err := e.log.Append(ctx, &types.HookExecution{
		SessionID:  p.SessionID,
		TaskID:     p.TaskID,
		HookType:   p.HookType,
		HookName:   p.HookName,
		HookSource: p.HookSource,
		DurationMs: p.DurationMs,
		ExitCode:   p.ExitCode,
		Passed:     p.Passed,
		Output:     p.Output,
		Error:      p.Error,
	})
	if err != nil {
		return fmt.Errorf("record hook execution: %w", err)
	}
	return nil
}

// FrustrationParams describes a frustration signal. When Level is empty
// the message is scored by frustration.Detect and Score and Signals are
// taken from the detector.
type FrustrationParams struct {
	TaskID      types.TaskID
	Level       types.FrustrationLevel
	Score       float64
	UserMessage string
	Signals     []string
	Context     string
}

// FrustrationResult reports whether an event was written and with which
// level. Recorded is false when detection found no frustration.
type FrustrationResult struct {
	Recorded bool                   `json:"recorded"`
	Level    types.FrustrationLevel `json:"frustration_level,omitempty"`
	Score    float64                `json:"frustration_score"`
	Signals  []string               `json:"detected_signals"`
}

func (e *Engine) RecordFrustration(ctx context.Context, p FrustrationParams) (FrustrationResult, error) {
	if p.Level == "" {
		det := frustration.Detect(p.UserMessage)
		if !det.Detected {
			e.logger.Debug("no frustration detected", "signals", len(det.Signals))
			return FrustrationResult{Score: det.Score, Signals: det.Signals}, nil
		}
		p.Level, p.Score, p.Signals = det.Level, det.Score, det.Signals
	} else if !p.Level.Valid() {
		return FrustrationResult{}, fmt.Errorf("%w: unknown frustration level %q", types.ErrInvalidArgument, p.Level)
	}
	if p.Signals == nil {
		p.Signals = []string{}
	}

	err := e.log.Append(ctx, &types.Frustration{
		TaskID:           p.TaskID,
		FrustrationLevel: p.Level,
		FrustrationScore: p.Score,
		UserMessage:      p.UserMessage,
		DetectedSignals:  p.Signals,
		Context:          p.Context,
	})
	if err != nil {
		return FrustrationResult{}, fmt.Errorf("record frustration: %w", err)
	}
	return FrustrationResult{Recorded: true, Level: p.Level, Score: p.Score, Signals: p.Signals}, nil
}

func (e *Engine) QueryMetrics(ctx context.Context, q metrics.MetricsQuery) (*metrics.MetricsResult, error) {
	return e.agg.QueryMetrics(ctx, q)
}

func (e *Engine) HookFailureStats(ctx context.Context, period types.Period) ([]metrics.HookFailure, error) {
	return e.agg.HookFailureStats(ctx, period)
}

func (e *Engine) AllHookStats(ctx context.Context, period types.Period) (*metrics.HookSummary, error) {
	return e.agg.AllHookStats(ctx, period)
}

func (e *Engine) QuerySessionMetrics(ctx context.Context, period types.Period, limit int) (*metrics.SessionMetrics, error) {
	return e.agg.QuerySessionMetrics(ctx, period, limit)
}

// Dashboard bundles every query the feedback dashboard shows.
type Dashboard struct {
	Period       types.Period            `json:"period"`
	Metrics      *metrics.MetricsResult  `json:"metrics"`
	Hooks        *metrics.HookSummary    `json:"hooks"`
	HookFailures []metrics.HookFailure   `json:"hook_failures"`
	Sessions     *metrics.SessionMetrics `json:"sessions"`
}

// Dashboard runs the dashboard queries concurrently. Each query is its own
// pass over the log.
func (e *Engine) Dashboard(ctx context.Context, period types.Period, sessionLimit int) (*Dashboard, error) {
	if period == "" {
		period = types.PeriodWeek
	}
	d := &Dashboard{Period: period}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res, err := e.agg.QueryMetrics(ctx, metrics.MetricsQuery{Period: period})
		d.Metrics = res
		return err
	})
	g.Go(func() error {
		res, err := e.agg.AllHookStats(ctx, period)
		d.Hooks = res
		return err
	})
	g.Go(func() error {
		res, err := e.agg.HookFailureStats(ctx, period)
		d.HookFailures = res
		return err
	})
	g.Go(func() error {
		res, err := e.agg.QuerySessionMetrics(ctx, period, sessionLimit)
		d.Sessions = res
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	return d, nil
}

// Close releases nothing; it exists so callers can treat the Engine like
// other resources. Calling it more than once is safe.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.logger.Debug("engine closed", "dir", e.log.Dir())
	})
	return nil
}
