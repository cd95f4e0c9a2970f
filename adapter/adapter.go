// Package adapter defines the notification sink boundary.
//
// Adapters publish sync lifecycle events to downstream systems. Delivery
// is fire-and-forget: a failed publish is logged by the caller and never
// fails the run.
package adapter

import (
	"context"
	"time"

	"github.com/pithecene-io/bottlesync/types"
)

// Event types published over the adapter boundary.
const (
	EventSyncStarted   = "sync_started"
	EventSyncProgress  = "sync_progress"
	EventSyncCompleted = "sync_completed"
	EventSyncFailed    = "sync_failed"
)

// SyncEvent is the payload published at run lifecycle points.
type SyncEvent struct {
	SchemaVersion string `json:"schema_version"`
	EventType     string `json:"event_type"`
	RunID         string `json:"run_id"`
	SyncDate      string `json:"sync_date"`
	Path          string `json:"path,omitempty"`
	Timestamp     string `json:"timestamp"` // ISO 8601

	ArtifactsPlanned   int   `json:"artifacts_planned,omitempty"`
	ArtifactsSucceeded int   `json:"artifacts_succeeded,omitempty"`
	ArtifactsFailed    int   `json:"artifacts_failed,omitempty"`
	ArtifactsSkipped   int   `json:"artifacts_skipped,omitempty"`
	EstimatedBytes     int64 `json:"estimated_bytes,omitempty"`
	BytesTransferred   int64 `json:"bytes_transferred,omitempty"`
	DurationMs         int64 `json:"duration_ms,omitempty"`
	Incomplete         bool  `json:"incomplete,omitempty"`

	Message string `json:"message,omitempty"`
}

// Adapter publishes sync lifecycle events to a downstream system.
// Implementations must respect context cancellation and deadlines.
type Adapter interface {
	// Publish sends a sync event to the downstream system.
	Publish(ctx context.Context, event *SyncEvent) error

	// Close releases adapter resources.
	Close() error
}

// StartedEvent builds the run-start event for a plan.
func StartedEvent(meta *types.RunMeta, plan *types.SyncPlan) *SyncEvent {
	return &SyncEvent{
		SchemaVersion:    types.Version,
		EventType:        EventSyncStarted,
		RunID:            meta.RunID,
		SyncDate:         meta.SyncDate,
		Path:             string(plan.Path),
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		ArtifactsPlanned: len(plan.Delta),
		ArtifactsSkipped: plan.SkippedUpToDate,
		EstimatedBytes:   plan.EstimatedBytes,
	}
}

// ResultEvent builds the terminal event for a finalized result.
func ResultEvent(result *types.SyncResult) *SyncEvent {
	eventType := EventSyncCompleted
	if result.Failed() {
		eventType = EventSyncFailed
	}
	return &SyncEvent{
		SchemaVersion:      types.Version,
		EventType:          eventType,
		RunID:              result.RunID,
		SyncDate:           result.SyncDate,
		Path:               string(result.Path),
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		ArtifactsPlanned:   result.ArtifactsAttempted,
		ArtifactsSucceeded: result.ArtifactsSucceeded,
		ArtifactsFailed:    len(result.ArtifactsFailed),
		ArtifactsSkipped:   result.ArtifactsSkipped,
		BytesTransferred:   result.BytesTransferred,
		DurationMs:         result.Duration.Milliseconds(),
		Incomplete:         result.Incomplete,
		Message:            result.FatalError,
	}
}
