package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/bottlesync/adapter"
	"github.com/pithecene-io/bottlesync/types"
)

func TestProgressReporter_Throttles(t *testing.T) {
	var mu sync.Mutex
	var events []*adapter.SyncEvent
	publish := func(_ context.Context, e *adapter.SyncEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}

	meta := &types.RunMeta{RunID: "run-001", SyncDate: testSyncDate}
	r := NewProgressReporter(meta, time.Hour, publish)

	for i := 0; i < 10; i++ {
		r.Report(context.Background(), Progress{Done: i + 1, Total: 10, Path: types.PathHeavyDuty})
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1 (throttled)", len(events))
	}
	e := events[0]
	if e.EventType != adapter.EventSyncProgress {
		t.Errorf("event type = %s, want %s", e.EventType, adapter.EventSyncProgress)
	}
	if e.ArtifactsSucceeded != 1 {
		t.Errorf("succeeded = %d, want first report's 1", e.ArtifactsSucceeded)
	}
	if e.RunID != "run-001" {
		t.Errorf("run id = %s", e.RunID)
	}
}

func TestProgressReporter_EmitsAfterInterval(t *testing.T) {
	var mu sync.Mutex
	count := 0
	publish := func(context.Context, *adapter.SyncEvent) {
		mu.Lock()
		count++
		mu.Unlock()
	}

	meta := &types.RunMeta{RunID: "run-001", SyncDate: testSyncDate}
	r := NewProgressReporter(meta, 10*time.Millisecond, publish)

	r.Report(context.Background(), Progress{Done: 1, Total: 2})
	time.Sleep(20 * time.Millisecond)
	r.Report(context.Background(), Progress{Done: 2, Total: 2})

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Fatalf("events = %d, want 2", count)
	}
}
