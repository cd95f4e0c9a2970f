package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/pithecene-io/bottlesync/adapter"
	"github.com/pithecene-io/bottlesync/types"
)

// DefaultProgressInterval is the minimum spacing between emitted
// progress events.
const DefaultProgressInterval = 30 * time.Second

// Progress is a point-in-time view of a run's transfer counts.
type Progress struct {
	Done   int
	Failed int
	Total  int
	Bytes  int64
	Path   types.PathKind
}

// PublishFunc delivers one event to the configured notification sinks.
// Delivery failures are the publisher's problem; Report never blocks the
// engine on them.
type PublishFunc func(ctx context.Context, event *adapter.SyncEvent)

// ProgressReporter throttles per-outcome progress into periodic
// sync_progress events. Long heavy-duty runs stay observable without an
// event per artifact.
type ProgressReporter struct {
	meta     *types.RunMeta
	publish  PublishFunc
	interval time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewProgressReporter creates a reporter. A non-positive interval uses
// DefaultProgressInterval.
func NewProgressReporter(meta *types.RunMeta, interval time.Duration, publish PublishFunc) *ProgressReporter {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &ProgressReporter{meta: meta, publish: publish, interval: interval}
}

// Report emits a progress event if the throttle interval has elapsed.
func (r *ProgressReporter) Report(ctx context.Context, p Progress) {
	r.mu.Lock()
	now := time.Now()
	if now.Sub(r.last) < r.interval {
		r.mu.Unlock()
		return
	}
	r.last = now
	r.mu.Unlock()

	r.publish(ctx, &adapter.SyncEvent{
		SchemaVersion:      types.Version,
		EventType:          adapter.EventSyncProgress,
		RunID:              r.meta.RunID,
		SyncDate:           r.meta.SyncDate,
		Path:               string(p.Path),
		Timestamp:          now.UTC().Format(time.RFC3339),
		ArtifactsPlanned:   p.Total,
		ArtifactsSucceeded: p.Done,
		ArtifactsFailed:    p.Failed,
		BytesTransferred:   p.Bytes,
	})
}
