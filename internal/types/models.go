package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the discriminant stored in every log line.
type EventType string

const (
	EventSessionStart  EventType = "session_start"
	EventSessionResume EventType = "session_resume"
	EventSessionEnd    EventType = "session_end"
	EventTaskStart     EventType = "task_start"
	EventTaskUpdate    EventType = "task_update"
	EventTaskComplete  EventType = "task_complete"
	EventTaskFail      EventType = "task_fail"
	EventHookExecution EventType = "hook_execution"
	EventFrustration   EventType = "frustration"
)

// TimestampLayout is the on-disk timestamp format: ISO-8601, UTC,
// millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts any RFC 3339 timestamp, with or without
// fractional seconds.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Header carries the fields shared by every event.
type Header struct {
	Type      EventType `json:"type"`
	Timestamp string    `json:"timestamp"`

	at time.Time
}

func (h *Header) header() *Header { return h }

// Time returns the parsed timestamp, or the zero time if it does not parse.
func (h *Header) Time() time.Time {
	if h.at.IsZero() && h.Timestamp != "" {
		h.at, _ = ParseTimestamp(h.Timestamp)
	}
	return h.at
}

// Event is one of the nine record kinds below. The set is closed: the
// unexported methods keep other packages from adding variants.
type Event interface {
	Kind() EventType
	Time() time.Time

	header() *Header
	validate() error
}

// Stamp sets the discriminant from the variant and, when empty, the
// timestamp from now.
func Stamp(ev Event, now time.Time) {
	h := ev.header()
	h.Type = ev.Kind()
	if h.Timestamp == "" {
		h.Timestamp = FormatTimestamp(now)
		h.at = now.UTC().Truncate(time.Millisecond)
	}
}

type SessionStart struct {
	Header
	SessionID SessionID `json:"session_id"`
}

type SessionResume struct {
	Header
	SessionID SessionID `json:"session_id"`
}

type SessionEnd struct {
	Header
	SessionID       SessionID `json:"session_id"`
	DurationMinutes int64     `json:"duration_minutes"`
	TaskCount       int       `json:"task_count"`
	SuccessCount    int       `json:"success_count"`
	FailureCount    int       `json:"failure_count"`
}

type TaskStart struct {
	Header
	TaskID      TaskID    `json:"task_id"`
	SessionID   SessionID `json:"session_id,omitempty"`
	Description string    `json:"description"`
	TaskType    string    `json:"task_type"`
	Complexity  string    `json:"complexity,omitempty"`
}

type TaskUpdate struct {
	Header
	TaskID TaskID `json:"task_id"`
	Status string `json:"status,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

type TaskComplete struct {
	Header
	TaskID          TaskID   `json:"task_id"`
	Outcome         Outcome  `json:"outcome"`
	Confidence      float64  `json:"confidence"`
	DurationSeconds int64    `json:"duration_seconds"`
	FilesModified   []string `json:"files_modified,omitempty"`
	TestsAdded      *int     `json:"tests_added,omitempty"`
	Notes           string   `json:"notes,omitempty"`
}

type TaskFail struct {
	Header
	TaskID             TaskID   `json:"task_id"`
	Reason             string   `json:"reason"`
	Confidence         *float64 `json:"confidence,omitempty"`
	DurationSeconds    int64    `json:"duration_seconds"`
	AttemptedSolutions []string `json:"attempted_solutions,omitempty"`
	Notes              string   `json:"notes,omitempty"`
}

type HookExecution struct {
	Header
	SessionID  SessionID `json:"session_id,omitempty"`
	TaskID     TaskID    `json:"task_id,omitempty"`
	HookType   string    `json:"hook_type"`
	HookName   string    `json:"hook_name"`
	HookSource string    `json:"hook_source,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	ExitCode   int       `json:"exit_code"`
	Passed     bool      `json:"passed"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
}

type Frustration struct {
	Header
	TaskID           TaskID           `json:"task_id,omitempty"`
	FrustrationLevel FrustrationLevel `json:"frustration_level"`
	FrustrationScore float64          `json:"frustration_score"`
	UserMessage      string           `json:"user_message"`
	DetectedSignals  []string         `json:"detected_signals"`
	Context          string           `json:"context,omitempty"`
}

func (*SessionStart) Kind() EventType  { return EventSessionStart }
func (*SessionResume) Kind() EventType { return EventSessionResume }
func (*SessionEnd) Kind() EventType    { return EventSessionEnd }
func (*TaskStart) Kind() EventType     { return EventTaskStart }
func (*TaskUpdate) Kind() EventType    { return EventTaskUpdate }
func (*TaskComplete) Kind() EventType  { return EventTaskComplete }
func (*TaskFail) Kind() EventType      { return EventTaskFail }
func (*HookExecution) Kind() EventType { return EventHookExecution }
func (*Frustration) Kind() EventType   { return EventFrustration }

func requireField(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: missing %s", ErrMalformedEvent, name)
	}
	return nil
}

func (e *SessionStart) validate() error  { return requireField("session_id", string(e.SessionID)) }
func (e *SessionResume) validate() error { return requireField("session_id", string(e.SessionID)) }
func (e *SessionEnd) validate() error    { return requireField("session_id", string(e.SessionID)) }
func (e *TaskStart) validate() error     { return requireField("task_id", string(e.TaskID)) }
func (e *TaskUpdate) validate() error    { return requireField("task_id", string(e.TaskID)) }
func (e *TaskComplete) validate() error  { return requireField("task_id", string(e.TaskID)) }
func (e *TaskFail) validate() error      { return requireField("task_id", string(e.TaskID)) }
func (e *HookExecution) validate() error { return requireField("hook_name", e.HookName) }

func (e *Frustration) validate() error {
	if !e.FrustrationLevel.Valid() {
		return fmt.Errorf("%w: frustration_level %q", ErrMalformedEvent, e.FrustrationLevel)
	}
	return nil
}

func newEvent(t EventType) Event {
	switch t {
	case EventSessionStart:
		return &SessionStart{}
	case EventSessionResume:
		return &SessionResume{}
	case EventSessionEnd:
		return &SessionEnd{}
	case EventTaskStart:
		return &TaskStart{}
	case EventTaskUpdate:
		return &TaskUpdate{}
	case EventTaskComplete:
		return &TaskComplete{}
	case EventTaskFail:
		return &TaskFail{}
	case EventHookExecution:
		return &HookExecution{}
	case EventFrustration:
		return &Frustration{}
	}
	return nil
}

// DecodeEvent parses one log line. Lines with an unknown discriminant,
// invalid JSON, an unparseable timestamp or a missing identity field are
// rejected.
func DecodeEvent(data []byte) (Event, error) {
	var h Header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	ev := newEvent(h.Type)
	if ev == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, h.Type)
	}
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	hdr := ev.header()
	at, err := ParseTimestamp(hdr.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp %q", ErrMalformedEvent, hdr.Timestamp)
	}
	hdr.at = at
	if err := ev.validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// EncodeEvent renders ev as a single JSON line terminated by '\n'.
func EncodeEvent(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", ev.Kind(), err)
	}
	return append(data, '\n'), nil
}
