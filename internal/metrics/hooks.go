package metrics

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/user/agentmetrics/internal/types"
)

const (
	// HookFailureThreshold is the failure rate, in percent, a hook must
	// exceed to be reported by HookFailureStats.
	HookFailureThreshold = 20.0
	// MaxHookFailures caps the HookFailureStats result.
	MaxHookFailures = 5
)

type HookTypeStats struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
}

// HookSummary tallies every hook execution in a period.
type HookSummary struct {
	TotalExecutions int                      `json:"total_executions"`
	Passed          int                      `json:"passed"`
	Failed          int                      `json:"failed"`
	PassRate        float64                  `json:"pass_rate"`
	TotalDurationMs int64                    `json:"total_duration_ms"`
	UniqueHooks     int                      `json:"unique_hooks"`
	ByType          map[string]HookTypeStats `json:"by_hook_type"`
}

// HookFailure is one hook's failure ranking entry. FailureRate is a
// percentage rounded to one decimal.
type HookFailure struct {
	Name        string  `json:"name"`
	Source      string  `json:"source,omitempty"`
	Total       int     `json:"total"`
	Failures    int     `json:"failures"`
	FailureRate float64 `json:"failure_rate"`
}

// AllHookStats tallies pass and fail counts for every hook execution in the
// period, overall and per hook type.
func (a *Aggregator) AllHookStats(ctx context.Context, period types.Period) (*HookSummary, error) {
	defer a.observe(ctx, "hooks", period, time.Now())

	sum := &HookSummary{ByType: make(map[string]HookTypeStats)}
	names := make(map[string]struct{})
	err := a.store.ForEachEventInPeriod(ctx, period, func(ev types.Event) error {
		h, ok := ev.(*types.HookExecution)
		if !ok {
			return nil
		}
		sum.TotalExecutions++
		sum.TotalDurationMs += h.DurationMs
		names[h.HookName] = struct{}{}

		byType := sum.ByType[h.HookType]
		byType.Total++
		if h.Passed {
			sum.Passed++
			byType.Passed++
		} else {
			sum.Failed++
		}
		sum.ByType[h.HookType] = byType
		return nil
	})
	if err != nil {
		return nil, err
	}

	sum.UniqueHooks = len(names)
	if sum.TotalExecutions > 0 {
		sum.PassRate = float64(sum.Passed) / float64(sum.TotalExecutions)
	}
	return sum, nil
}

type hookKey struct {
	name   string
	source string
}

// HookFailureStats ranks hooks by failure rate. Only hooks failing more
// than HookFailureThreshold percent of the time are kept, highest rate
// first, at most MaxHookFailures of them.
func (a *Aggregator) HookFailureStats(ctx context.Context, period types.Period) ([]HookFailure, error) {
	defer a.observe(ctx, "hook_failures", period, time.Now())

	groups := make(map[hookKey]*HookFailure)
	err := a.store.ForEachEventInPeriod(ctx, period, func(ev types.Event) error {
		h, ok := ev.(*types.HookExecution)
		if !ok {
			return nil
		}
		key := hookKey{name: h.HookName, source: h.HookSource}
		g, ok := groups[key]
		if !ok {
			g = &HookFailure{Name: h.HookName, Source: h.HookSource}
			groups[key] = g
		}
		g.Total++
		if !h.Passed {
			g.Failures++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := []HookFailure{}
	for _, g := range groups {
		g.FailureRate = math.Round(1000*float64(g.Failures)/float64(g.Total)) / 10
		if g.FailureRate > HookFailureThreshold {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FailureRate != out[j].FailureRate {
			return out[i].FailureRate > out[j].FailureRate
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Source < out[j].Source
	})
	if len(out) > MaxHookFailures {
		out = out[:MaxHookFailures]
	}
	return out, nil
}
