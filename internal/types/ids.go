package types

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SessionID string
type TaskID string

// shortRandom returns a short random token. Collisions are possible but
// require two ids minted in the same millisecond with the same token.
func shortRandom() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:7]
}

func newID(prefix string, now time.Time) string {
	return prefix + "-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + shortRandom()
}

// NewSessionID returns an id of the form session-{epochMillis}-{random}.
func NewSessionID(now time.Time) SessionID {
	return SessionID(newID("session", now))
}

// NewTaskID returns an id of the form task-{epochMillis}-{random}.
func NewTaskID(now time.Time) TaskID {
	return TaskID(newID("task", now))
}
