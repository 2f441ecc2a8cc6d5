package types

import "strings"

// Outcome is the result reported when a task completes.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

// Valid reports whether o is one of the known outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomePartial, OutcomeFailure:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskActive    TaskStatus = "active"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

type FrustrationLevel string

const (
	FrustrationLow      FrustrationLevel = "low"
	FrustrationModerate FrustrationLevel = "moderate"
	FrustrationHigh     FrustrationLevel = "high"
)

// Significant reports whether the level counts toward significant
// frustration. Low is excluded.
func (l FrustrationLevel) Significant() bool {
	return l == FrustrationModerate || l == FrustrationHigh
}

// Valid reports whether l is one of the known severity levels.
func (l FrustrationLevel) Valid() bool {
	return l == FrustrationLow || l.Significant()
}

// NormalizeTaskType folds common aliases onto the canonical task types
// (fix, implementation, refactor, research). Unknown types are returned
// lowercased and otherwise unchanged.
func NormalizeTaskType(t string) string {
	lower := strings.ToLower(strings.TrimSpace(t))
	switch lower {
	case "fix", "bugfix", "bug":
		return "fix"
	case "implementation", "feature", "implement":
		return "implementation"
	case "refactor", "refactoring":
		return "refactor"
	case "research", "investigate":
		return "research"
	}
	return lower
}
