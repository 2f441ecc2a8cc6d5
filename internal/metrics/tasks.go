// Package metrics reconstructs tasks, sessions and hook tallies from the
// event log in a single streaming pass per query.
package metrics

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/user/agentmetrics/internal/telemetry"
	"github.com/user/agentmetrics/internal/types"
)

// Aggregator answers read-side queries. It holds no state between calls.
type Aggregator struct {
	store  types.EventStore
	logger *slog.Logger

	queryDuration metric.Float64Histogram
}

// NewAggregator creates an Aggregator reading from store.
func NewAggregator(store types.EventStore, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{store: store, logger: logger}
	a.queryDuration, _ = telemetry.Meter("agentmetrics/metrics").Float64Histogram(
		"agentmetrics.query.duration",
		metric.WithDescription("Time spent streaming the log for one query"),
		metric.WithUnit("s"),
	)
	return a
}

func (a *Aggregator) observe(ctx context.Context, query string, period types.Period, started time.Time) {
	a.queryDuration.Record(ctx, time.Since(started).Seconds(), metric.WithAttributes(
		attribute.String("query", query),
		attribute.String("period", string(period)),
	))
}

// Task is a task reconstructed from its lifecycle events.
type Task struct {
	TaskID             types.TaskID     `json:"task_id"`
	SessionID          types.SessionID  `json:"session_id,omitempty"`
	Description        string           `json:"description"`
	TaskType           string           `json:"task_type"`
	Complexity         string           `json:"complexity,omitempty"`
	Status             types.TaskStatus `json:"status"`
	Outcome            types.Outcome    `json:"outcome,omitempty"`
	Confidence         *float64         `json:"confidence,omitempty"`
	DurationSeconds    *int64           `json:"duration_seconds,omitempty"`
	FilesModified      []string         `json:"files_modified,omitempty"`
	TestsAdded         *int             `json:"tests_added,omitempty"`
	FailureReason      string           `json:"failure_reason,omitempty"`
	AttemptedSolutions []string         `json:"attempted_solutions,omitempty"`
	Notes              string           `json:"notes,omitempty"`
	StartedAt          time.Time        `json:"started_at"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
}

// FrustrationRecord is one frustration event, numbered in scan order.
type FrustrationRecord struct {
	Index           int                    `json:"index"`
	TaskID          types.TaskID           `json:"task_id,omitempty"`
	Level           types.FrustrationLevel `json:"frustration_level"`
	Score           float64                `json:"frustration_score"`
	UserMessage     string                 `json:"user_message"`
	DetectedSignals []string               `json:"detected_signals"`
	Context         string                 `json:"context,omitempty"`
	RecordedAt      time.Time              `json:"recorded_at"`
}

// MetricsQuery selects the period and optional filters for QueryMetrics.
type MetricsQuery struct {
	Period   types.Period
	TaskType string
	Outcome  types.Outcome
}

// MetricsResult holds task statistics over the filtered task set and
// frustration statistics over every task in the period.
type MetricsResult struct {
	Period                 types.Period   `json:"period"`
	TotalTasks             int            `json:"total_tasks"`
	CompletedTasks         int            `json:"completed_tasks"`
	SuccessRate            float64        `json:"success_rate"`
	AverageConfidence      float64        `json:"average_confidence"`
	AverageDurationSeconds float64        `json:"average_duration_seconds"`
	CalibrationScore       float64        `json:"calibration_score"`
	TasksByType            map[string]int `json:"tasks_by_type"`
	TasksByOutcome         map[string]int `json:"tasks_by_outcome"`
	Tasks                  []Task         `json:"tasks"`

	TotalFrustrations          int                            `json:"total_frustrations"`
	FrustrationRate            float64                        `json:"frustration_rate"`
	FrustrationByLevel         map[types.FrustrationLevel]int `json:"frustration_by_level"`
	SignificantFrustrations    int                            `json:"significant_frustrations"`
	SignificantFrustrationRate float64                        `json:"significant_frustration_rate"`
	WeightedFrustrationScore   float64                        `json:"weighted_frustration_score"`
	Frustrations               []FrustrationRecord            `json:"frustrations"`
}

// taskState collects a task's start and latest terminal event. Partitions
// are read newest first, so a terminal event may arrive before its start.
type taskState struct {
	start    *types.TaskStart
	terminal types.Event
}

func (s *taskState) offerTerminal(ev types.Event) {
	if s.terminal == nil || !s.terminal.Time().After(ev.Time()) {
		s.terminal = ev
	}
}

func (s *taskState) materialize() Task {
	st := s.start
	t := Task{
		TaskID:      st.TaskID,
		SessionID:   st.SessionID,
		Description: st.Description,
		TaskType:    st.TaskType,
		Complexity:  st.Complexity,
		Status:      types.TaskActive,
		StartedAt:   st.Time(),
	}
	switch e := s.terminal.(type) {
	case *types.TaskComplete:
		conf, dur, at := e.Confidence, e.DurationSeconds, e.Time()
		t.Status = types.TaskCompleted
		t.Outcome = e.Outcome
		t.Confidence = &conf
		t.DurationSeconds = &dur
		t.FilesModified = e.FilesModified
		t.TestsAdded = e.TestsAdded
		t.Notes = e.Notes
		t.CompletedAt = &at
	case *types.TaskFail:
		dur, at := e.DurationSeconds, e.Time()
		t.Status = types.TaskFailed
		t.Outcome = types.OutcomeFailure
		if e.Confidence != nil {
			conf := *e.Confidence
			t.Confidence = &conf
		}
		t.DurationSeconds = &dur
		t.FailureReason = e.Reason
		t.AttemptedSolutions = e.AttemptedSolutions
		t.Notes = e.Notes
		t.CompletedAt = &at
	}
	return t
}

func (q MetricsQuery) matches(t Task) bool {
	if q.TaskType != "" && types.NormalizeTaskType(t.TaskType) != types.NormalizeTaskType(q.TaskType) {
		return false
	}
	if q.Outcome != "" && t.Outcome != q.Outcome {
		return false
	}
	return true
}

// QueryMetrics reconstructs every task started in the period and computes
// success, confidence, duration and calibration statistics. Completions
// whose task_start lies outside the period are dropped.
func (a *Aggregator) QueryMetrics(ctx context.Context, q MetricsQuery) (*MetricsResult, error) {
	if q.Period == "" {
		q.Period = types.PeriodWeek
	}
	defer a.observe(ctx, "metrics", q.Period, time.Now())

	tasks := make(map[types.TaskID]*taskState)
	state := func(id types.TaskID) *taskState {
		s, ok := tasks[id]
		if !ok {
			s = &taskState{}
			tasks[id] = s
		}
		return s
	}
	var frustrations []FrustrationRecord

	err := a.store.ForEachEventInPeriod(ctx, q.Period, func(ev types.Event) error {
		switch e := ev.(type) {
		case *types.TaskStart:
			state(e.TaskID).start = e
		case *types.TaskComplete:
			state(e.TaskID).offerTerminal(e)
		case *types.TaskFail:
			state(e.TaskID).offerTerminal(e)
		case *types.Frustration:
			frustrations = append(frustrations, FrustrationRecord{
				Index:           len(frustrations),
				TaskID:          e.TaskID,
				Level:           e.FrustrationLevel,
				Score:           e.FrustrationScore,
				UserMessage:     e.UserMessage,
				DetectedSignals: e.DetectedSignals,
				Context:         e.Context,
				RecordedAt:      e.Time(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	all := make([]Task, 0, len(tasks))
	for _, s := range tasks {
		if s.start == nil {
			continue
		}
		all = append(all, s.materialize())
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].StartedAt.After(all[j].StartedAt)
		}
		return all[i].TaskID > all[j].TaskID
	})

	res := &MetricsResult{
		Period:             q.Period,
		TasksByType:        make(map[string]int),
		TasksByOutcome:     make(map[string]int),
		Tasks:              make([]Task, 0, len(all)),
		FrustrationByLevel: make(map[types.FrustrationLevel]int),
		Frustrations:       frustrations,
	}
	if res.Frustrations == nil {
		res.Frustrations = []FrustrationRecord{}
	}
	for _, t := range all {
		if q.matches(t) {
			res.Tasks = append(res.Tasks, t)
		}
	}
	summarizeTasks(res)
	summarizeFrustrations(res, len(all))

	a.logger.Debug("metrics query",
		"period", q.Period,
		"tasks", len(all),
		"filtered", res.TotalTasks,
		"frustrations", res.TotalFrustrations,
	)
	return res, nil
}

func summarizeTasks(res *MetricsResult) {
	var (
		successes                 int
		confSum, durSum, errSum   float64
		confN, durN, calibrationN int
	)
	for _, t := range res.Tasks {
		res.TotalTasks++
		res.TasksByType[types.NormalizeTaskType(t.TaskType)]++
		if t.Outcome != "" {
			res.TasksByOutcome[string(t.Outcome)]++
		}
		if t.Status != types.TaskActive {
			res.CompletedTasks++
		}
		if t.Outcome == types.OutcomeSuccess {
			successes++
		}
		if t.Confidence != nil {
			confSum += *t.Confidence
			confN++
		}
		if t.DurationSeconds != nil {
			durSum += float64(*t.DurationSeconds)
			durN++
		}
		if t.Outcome != "" && t.Confidence != nil {
			actual := 0.0
			if t.Outcome == types.OutcomeSuccess {
				actual = 1
			}
			errSum += math.Abs(*t.Confidence - actual)
			calibrationN++
		}
	}

	if res.CompletedTasks > 0 {
		res.SuccessRate = float64(successes) / float64(res.CompletedTasks)
	}
	if confN > 0 {
		res.AverageConfidence = confSum / float64(confN)
	}
	if durN > 0 {
		res.AverageDurationSeconds = durSum / float64(durN)
	}
	if calibrationN > 0 {
		res.CalibrationScore = math.Max(0, 1-errSum/float64(calibrationN))
	}
}

// summarizeFrustrations rates frustration against totalTasks, the task
// count before filters are applied.
func summarizeFrustrations(res *MetricsResult, totalTasks int) {
	res.TotalFrustrations = len(res.Frustrations)
	for _, f := range res.Frustrations {
		res.FrustrationByLevel[f.Level]++
		if f.Level.Significant() {
			res.SignificantFrustrations++
			res.WeightedFrustrationScore += f.Score
		}
	}
	if totalTasks > 0 {
		res.FrustrationRate = float64(res.TotalFrustrations) / float64(totalTasks)
		res.SignificantFrustrationRate = float64(res.SignificantFrustrations) / float64(totalTasks)
	}
}
