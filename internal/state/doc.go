// Package state provides the filesystem-backed event log.
package state

import "github.com/user/agentmetrics/internal/types"

// Compile-time interface compliance check.
var _ types.EventStore = (*EventLog)(nil)
