// Package frustration scores a user message for signs of frustration using
// surface signals: shouting, punctuation runs, terseness, repetition and
// negative commands.
package frustration

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/user/agentmetrics/internal/types"
)

const (
	detectThreshold   = 2.0
	moderateThreshold = 3.0
	highThreshold     = 6.0

	terseLength = 15
)

var (
	capsWordRe   = regexp.MustCompile(`\b[A-Z]{5,}\b`)
	envVarRe     = regexp.MustCompile(`\b[A-Z][A-Z0-9]*(?:_[A-Z0-9]+)+\b`)
	punctRe      = regexp.MustCompile(`[!?]{2,}`)
	negCommandRe = regexp.MustCompile(`(?i)\b(stop|quit|never mind|forget it|give up)\b`)
)

// Shouting enthusiasm is not frustration.
var positiveWords = map[string]bool{
	"amazing":   true,
	"awesome":   true,
	"excellent": true,
	"great":     true,
	"love":      true,
	"nice":      true,
	"perfect":   true,
	"thanks":    true,
	"thank":     true,
	"wonderful": true,
}

// Result is the outcome of Detect. Level and Score are only meaningful when
// Detected is true.
type Result struct {
	Detected bool                   `json:"detected"`
	Level    types.FrustrationLevel `json:"frustration_level,omitempty"`
	Score    float64                `json:"frustration_score"`
	Signals  []string               `json:"detected_signals"`
}

// Detect scores message. A score of 2 or more is reported as frustration;
// 3 or more is moderate and 6 or more is high.
func Detect(message string) Result {
	trimmed := strings.TrimSpace(message)
	res := Result{Signals: []string{}}
	if trimmed == "" {
		return res
	}

	words := cleanWords(trimmed)
	positive := false
	for _, w := range words {
		if positiveWords[strings.ToLower(w)] {
			positive = true
			break
		}
	}

	withoutEnv := envVarRe.ReplaceAllString(trimmed, "")
	if !positive {
		switch run := maxCapsRun(cleanWords(withoutEnv)); {
		case run >= 3:
			res.signal(3+float64(run-3)*0.5, "%d consecutive ALL CAPS words", run)
		case run == 2:
			res.signal(2.5, "2 consecutive ALL CAPS words")
		case capsWordRe.MatchString(withoutEnv):
			res.signal(2, "ALL CAPS word detected")
		}
	}

	if punctRe.MatchString(trimmed) {
		res.signal(1, "Multiple punctuation marks (!!!/???)")
	}
	if len(trimmed) < terseLength && !strings.Contains(trimmed, " ") {
		res.signal(1, "Very terse message")
	}

	repeated := 0
	for i := 1; i < len(words); i++ {
		if strings.EqualFold(words[i-1], words[i]) {
			repeated++
		}
	}
	if repeated > 0 {
		res.signal(float64(repeated), "%d repeated word(s)", repeated)
	}

	if n := len(negCommandRe.FindAllStringIndex(trimmed, -1)); n > 0 {
		res.signal(float64(n)*2, "%d negative command(s)", n)
	}

	if res.Score >= detectThreshold {
		res.Detected = true
		res.Level = levelFor(res.Score)
	}
	return res
}

func (r *Result) signal(score float64, format string, args ...any) {
	r.Score += score
	r.Signals = append(r.Signals, fmt.Sprintf(format, args...))
}

func levelFor(score float64) types.FrustrationLevel {
	switch {
	case score >= highThreshold:
		return types.FrustrationHigh
	case score >= moderateThreshold:
		return types.FrustrationModerate
	}
	return types.FrustrationLow
}

// cleanWords splits on whitespace and trims punctuation from both ends of
// each word, dropping words that end up empty.
func cleanWords(s string) []string {
	var out []string
	for _, f := range strings.Fields(s) {
		w := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// maxCapsRun returns the longest run of adjacent shouted words: at least
// two characters, at least one letter, and no lowercase letters.
func maxCapsRun(words []string) int {
	best, run := 0, 0
	for _, w := range words {
		if isShouted(w) {
			run++
			best = max(best, run)
		} else {
			run = 0
		}
	}
	return best
}

func isShouted(w string) bool {
	if len(w) < 2 {
		return false
	}
	letters := 0
	for _, r := range w {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters > 0
}
