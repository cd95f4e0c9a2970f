package types

import (
	"fmt"
	"time"
)

// FailReason classifies a per-artifact failure.
type FailReason string

const (
	// FailNetwork is a transient network failure that exhausted retries.
	FailNetwork FailReason = "network_error"
	// FailTimeout is a per-download timeout that exhausted retries.
	FailTimeout FailReason = "timeout"
	// FailChecksum is a digest mismatch after a complete download.
	FailChecksum FailReason = "checksum_mismatch"
	// FailStorage is a content-store write failure that exhausted retries.
	FailStorage FailReason = "storage_error"
)

// ArtifactFailure records one failed artifact with its reason.
type ArtifactFailure struct {
	Key    string     `json:"key"`
	Reason FailReason `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}

func (f ArtifactFailure) String() string {
	return fmt.Sprintf("%s: %s (%s)", f.Key, f.Reason, f.Detail)
}

// Trigger is the payload an external scheduler hands to the orchestrator.
type Trigger struct {
	// RunID identifies this run. Assigned by the orchestrator if empty.
	RunID string `json:"run_id,omitempty"`
	// Force ignores the loaded manifest and resyncs the full catalog.
	Force bool `json:"force,omitempty"`
}

// RunMeta is the identity context bound into every log line of a run.
type RunMeta struct {
	// RunID is the unique run identifier.
	RunID string
	// SyncDate is the YYYY-MM-DD date keying this run's storage folder.
	SyncDate string
}

// Validate checks run metadata.
func (m *RunMeta) Validate() error {
	if m == nil {
		return fmt.Errorf("run metadata is nil")
	}
	if m.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if _, err := time.Parse("2006-01-02", m.SyncDate); err != nil {
		return fmt.Errorf("sync_date must be YYYY-MM-DD: %w", err)
	}
	return nil
}

// SyncResult is the outcome of one orchestration run. Exactly one is
// produced per run — success, partial, or fatal — and it is never mutated
// after finalization.
type SyncResult struct {
	RunID    string   `json:"run_id"`
	SyncDate string   `json:"sync_date"`
	Path     PathKind `json:"path_used"`

	ArtifactsAttempted int               `json:"artifacts_attempted"`
	ArtifactsSucceeded int               `json:"artifacts_succeeded"`
	ArtifactsSkipped   int               `json:"artifacts_skipped"`
	ArtifactsFailed    []ArtifactFailure `json:"artifacts_failed"`

	BytesTransferred int64         `json:"bytes_transferred"`
	Duration         time.Duration `json:"duration_ns"`

	ManifestRevisionBefore int64 `json:"manifest_revision_before"`
	ManifestRevisionAfter  int64 `json:"manifest_revision_after"`

	// Incomplete is true when the run stopped before exhausting its delta
	// (deadline or cancellation). The committed manifest reflects true
	// progress, so the next scheduled run picks up the remainder.
	Incomplete bool `json:"incomplete"`

	// FatalError carries the systemic failure reason for aborted runs
	// (catalog fetch, manifest I/O, concurrency conflict). Empty on
	// success and partial runs.
	FatalError string `json:"fatal_error,omitempty"`
}

// Failed reports whether the run aborted on a systemic error.
func (r *SyncResult) Failed() bool {
	return r.FatalError != ""
}

// FullySucceeded reports a complete run with zero artifact failures.
func (r *SyncResult) FullySucceeded() bool {
	return !r.Failed() && !r.Incomplete && len(r.ArtifactsFailed) == 0
}
