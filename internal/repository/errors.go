// Package repository holds the error kinds shared by every Job Record Store
// implementation.
package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrAlreadyInState is returned when a transition is re-delivered for a
	// job that is already in the target state. Nothing was written.
	ErrAlreadyInState = errors.New("job already in requested state")

	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTranscriptExists  = errors.New("transcript already attached")
	ErrTranscriptMissing = errors.New("cannot complete job without transcript")
)

// ReconcileResult reports what a stale-job sweep changed.
type ReconcileResult struct {
	Completed int64
	Failed    int64
}
