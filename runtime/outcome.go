package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/bottlesync/store"
	"github.com/pithecene-io/bottlesync/types"
)

// Outcome is the terminal state of one artifact's processing. Exactly one
// is produced per delta artifact that reached a worker.
type Outcome struct {
	// Artifact is the processed artifact.
	Artifact types.Artifact
	// Entry is the manifest entry to record. Valid only when Failure is nil.
	Entry types.ManifestEntry
	// Failure describes why the artifact failed. Nil on success.
	Failure *types.ArtifactFailure
	// Quarantined is true when the downloaded bytes were moved to the
	// quarantine prefix after a digest mismatch.
	Quarantined bool
	// Attempts is the number of download attempts made.
	Attempts int
}

// Succeeded reports whether the artifact was verified and stored.
func (o *Outcome) Succeeded() bool { return o.Failure == nil }

// checksumError indicates a complete download whose digest did not match
// the catalog digest.
type checksumError struct {
	Want string
	Got  string
}

func (e *checksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: want %s, got %s", e.Want, e.Got)
}

// httpError indicates a non-2xx response from the artifact origin.
type httpError struct {
	Status int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Status)
}

// isChecksumMismatch reports whether err is a digest mismatch.
func isChecksumMismatch(err error) bool {
	var ce *checksumError
	return errors.As(err, &ce)
}

// retriable reports whether a download error class is worth another
// attempt. Digest mismatches are handled separately (a single
// re-download, never the transient budget). 4xx origin responses and
// terminal storage errors never retry.
func retriable(err error) bool {
	if isChecksumMismatch(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var he *httpError
	if errors.As(err, &he) {
		return he.Status >= 500 || he.Status == 429
	}

	var se *store.StorageError
	if errors.As(err, &se) {
		return store.IsTransient(err)
	}

	// Transport-level failures (connection reset, DNS, timeouts) retry.
	return true
}

// failReasonFor classifies a terminal download error.
func failReasonFor(err error) types.FailReason {
	switch {
	case isChecksumMismatch(err):
		return types.FailChecksum
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, store.ErrTimeout):
		return types.FailTimeout
	default:
		var se *store.StorageError
		if errors.As(err, &se) {
			return types.FailStorage
		}
		return types.FailNetwork
	}
}
