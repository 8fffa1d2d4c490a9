package actor

import (
	"fmt"
)

// Code identifies the class of failure raised by the actor core.
type Code string

const (
	// CodeStateIsOver is returned when raise, reset or delete is attempted
	// on a terminal aggregate.
	CodeStateIsOver Code = "STATE_IS_OVER"
	// CodeStateInsecurity is returned when Version == DoingVersion is
	// found broken at a checkpoint.
	CodeStateInsecurity Code = "STATE_INSECURITY"
	// CodeEventIsCleared is returned when a retro-dated event falls
	// inside a cleared archive window.
	CodeEventIsCleared Code = "EVENT_IS_CLEARED"
	// CodeObserverNotCompleted is returned when Over is requested before
	// observers caught up to the current version.
	CodeObserverNotCompleted Code = "OBSERVER_NOT_COMPLETED"
	// CodeSyncAllObserversFailed is returned when activation-time
	// observer sync returned false for at least one observer.
	CodeSyncAllObserversFailed Code = "SYNC_ALL_OBSERVERS_FAILED"
	// CodeUnfindSnapshotHandler is returned by New when no event applier
	// was wired for this actor.
	CodeUnfindSnapshotHandler Code = "UNFIND_SNAPSHOT_HANDLER"
	// CodeStorageError wraps any gateway (event log/snapshot/archive
	// store) failure.
	CodeStorageError Code = "STORAGE_ERROR"
	// CodeSerializationError wraps a payload encode/decode failure.
	CodeSerializationError Code = "SERIALIZATION_ERROR"
)

// Error is the typed error returned by the actor core. It always carries a
// Code so callers can branch with errors.As without string matching, and an
// optional Cause for the underlying gateway/serializer failure.
type Error struct {
	Code    Code
	Message string
	StateID string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("actor[%s]: [%s] %s: %v", e.StateID, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("actor[%s]: [%s] %s", e.StateID, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(stateID string, code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, StateID: stateID, Cause: cause}
}

func (a *Actor) errStateIsOver() error {
	return newError(a.id.String(), CodeStateIsOver, "aggregate is over, no further events accepted", nil)
}

func (a *Actor) errStateInsecurity(msg string) error {
	return newError(a.id.String(), CodeStateInsecurity, msg, nil)
}

func (a *Actor) errEventIsCleared() error {
	return newError(a.id.String(), CodeEventIsCleared, "event timestamp falls inside a cleared archive window", nil)
}

func (a *Actor) errObserverNotCompleted() error {
	return newError(a.id.String(), CodeObserverNotCompleted, "at least one observer has not caught up", nil)
}

func (a *Actor) errSyncAllObserversFailed() error {
	return newError(a.id.String(), CodeSyncAllObserversFailed, "observer sync returned false during activation", nil)
}

func (a *Actor) errStorage(msg string, cause error) error {
	return newError(a.id.String(), CodeStorageError, msg, cause)
}

func (a *Actor) errSerialization(msg string, cause error) error {
	return newError(a.id.String(), CodeSerializationError, msg, cause)
}
