// Package manifest implements durable, corruption-resistant tracking of
// completed artifact transfers.
//
// The manifest is a single JSON document with a strict schema
// (types.Manifest). Stores persist it atomically: readers never observe a
// partially written document, and commits are conditional on the version
// observed at load so concurrent runs racing on the same manifest are
// detected rather than silently merged.
package manifest

import (
	"errors"
	"fmt"
)

// Sentinel errors for manifest failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrNotFound indicates no manifest document exists yet (first run).
	ErrNotFound = errors.New("manifest not found")

	// ErrConcurrentModification indicates another run committed the
	// manifest after this run loaded it. Fatal; the run aborts without
	// retrying so the next scheduled trigger resolves the race.
	ErrConcurrentModification = errors.New("manifest modified concurrently")
)

// CorruptError indicates the manifest failed structural validation at
// load. The caller decides whether to rebuild from scratch or abort.
type CorruptError struct {
	// Location is the store location of the bad document.
	Location string
	// Token is the version token of the corrupt bytes. A rebuild commits
	// against this token so it cannot clobber a concurrent repair.
	Token VersionToken
	// Err is the parse or validation failure.
	Err error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("manifest corrupt at %s: %v", e.Location, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// WriteError indicates the atomic commit could not be completed within
// the configured retry budget.
type WriteError struct {
	// Attempts is the number of commit attempts made.
	Attempts int
	// Err is the last underlying failure.
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("manifest commit failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsCorrupt reports whether err is a manifest corruption error.
func IsCorrupt(err error) bool {
	var ce *CorruptError
	return errors.As(err, &ce)
}
