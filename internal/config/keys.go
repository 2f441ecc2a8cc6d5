package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/user/agentmetrics/internal/types"
)

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindBool
	kindPeriod
	kindLevel
)

type keySpec struct {
	kind   valueKind
	secret bool
}

// knownKeys covers every key Config serializes. Keys outside it are still
// accepted by SetValue and stored untyped.
var knownKeys = map[string]keySpec{
	"data_dir":                 {kind: kindString},
	"log_level":                {kind: kindLevel},
	"metrics.dir":              {kind: kindString},
	"metrics.default_period":   {kind: kindPeriod},
	"metrics.session_limit":    {kind: kindInt},
	"metrics.start_cache_size": {kind: kindInt},
	"telemetry.otlp_endpoint":  {kind: kindString},
	"telemetry.insecure":       {kind: kindBool},
	"telemetry.auth_token":     {kind: kindString, secret: true},
	"telemetry.service_name":   {kind: kindString},
}

// IsSecretKey reports whether the value under key is masked when listed.
func IsSecretKey(key string) bool {
	return knownKeys[key].secret
}

// ParseValue converts a command-line value for key into what gets stored.
// Known keys are checked against their type; other keys hold a JSON scalar
// when raw parses as one and the raw string otherwise.
func ParseValue(key, raw string) (any, error) {
	spec, ok := knownKeys[key]
	if !ok {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return raw, nil
		}
		return v, nil
	}

	switch spec.kind {
	case kindInt:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%s: want a non-negative integer, got %q", key, raw)
		}
		return n, nil
	case kindBool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%s: want true or false, got %q", key, raw)
		}
		return b, nil
	case kindPeriod:
		p := types.Period(strings.ToLower(strings.TrimSpace(raw)))
		if p != types.ParsePeriod(string(p)) {
			return nil, fmt.Errorf("%s: want day, week or month, got %q", key, raw)
		}
		return string(p), nil
	case kindLevel:
		level := strings.ToLower(strings.TrimSpace(raw))
		switch level {
		case "debug", "info", "warn", "error":
			return level, nil
		}
		return nil, fmt.Errorf("%s: want debug, info, warn or error, got %q", key, raw)
	}
	return raw, nil
}

// Flatten walks a decoded config document and returns its leaves keyed by
// dotted path, so {"metrics": {"dir": "/tmp"}} yields "metrics.dir".
// Empty sections produce no keys.
func Flatten(doc map[string]any) map[string]any {
	leaves := make(map[string]any)
	var walk func(path string, node map[string]any)
	walk = func(path string, node map[string]any) {
		for name, v := range node {
			key := name
			if path != "" {
				key = path + "." + name
			}
			if section, ok := v.(map[string]any); ok {
				walk(key, section)
				continue
			}
			leaves[key] = v
		}
	}
	walk("", doc)
	return leaves
}

// Unflatten is the inverse of Flatten. A leaf sitting where a section is
// needed is replaced by the section.
func Unflatten(leaves map[string]any) map[string]any {
	doc := make(map[string]any)
	for key, v := range leaves {
		node := doc
		rest := key
		for {
			name, tail, nested := strings.Cut(rest, ".")
			if !nested {
				node[name] = v
				break
			}
			section, ok := node[name].(map[string]any)
			if !ok {
				section = make(map[string]any)
				node[name] = section
			}
			node, rest = section, tail
		}
	}
	return doc
}

// MaskSecrets returns a copy of leaves where non-empty secret strings keep
// only their last four characters behind "***".
func MaskSecrets(leaves map[string]any) map[string]any {
	out := make(map[string]any, len(leaves))
	for key, v := range leaves {
		if s, ok := v.(string); ok && s != "" && IsSecretKey(key) {
			v = "***" + s[max(0, len(s)-4):]
		}
		out[key] = v
	}
	return out
}
