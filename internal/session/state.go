// Package session provides the session registry and lifecycle management.
package session

import (
	"errors"
	"fmt"
)

// State represents the lifecycle state of a recording session.
type State int

const (
	// StateActive - Session is accepting chunk uploads.
	StateActive State = iota
	// StateFinalizing - End requested, awaiting outstanding transcription jobs.
	StateFinalizing
	// StateFinalized - Artifact written, session eligible for eviction.
	StateFinalized
	// StateFinalizationFailed - Finalization attempt failed. The session is
	// retained for inspection and may be retried.
	StateFinalizationFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateFinalizing:
		return "FINALIZING"
	case StateFinalized:
		return "FINALIZED"
	case StateFinalizationFailed:
		return "FINALIZATION_FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if no further chunk uploads will ever be accepted.
func (s State) IsTerminal() bool {
	return s != StateActive
}

// Errors for invalid operations and state transitions.
var (
	ErrNotFound          = errors.New("session not found")
	ErrEmptyTitle        = errors.New("session title required")
	ErrSessionClosed     = errors.New("session no longer accepts uploads")
	ErrAlreadyFinalizing = errors.New("finalization already in progress")
)
