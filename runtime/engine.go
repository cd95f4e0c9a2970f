package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pithecene-io/bottlesync/journal"
	"github.com/pithecene-io/bottlesync/log"
	"github.com/pithecene-io/bottlesync/manifest"
	"github.com/pithecene-io/bottlesync/metrics"
	"github.com/pithecene-io/bottlesync/types"
)

// DefaultCommitRetries is the retry budget for transient commit failures.
const DefaultCommitRetries = 3

// DefaultCommitBaseDelay seeds the commit retry backoff.
const DefaultCommitBaseDelay = 500 * time.Millisecond

// commitGraceTimeout bounds checkpoint commits made after the run context
// is already done. Progress must still persist on deadline and SIGTERM.
const commitGraceTimeout = 30 * time.Second

// ArtifactProcessor processes one artifact to a terminal outcome.
// *Downloader satisfies it; tests substitute a stub.
type ArtifactProcessor interface {
	Process(ctx context.Context, artifact types.Artifact) Outcome
}

// Executor runs a sync plan to completion within its limits.
type Executor interface {
	// Execute processes every artifact in the plan's delta, committing
	// manifest checkpoints as it goes. The returned result reflects true
	// durable progress even when the run stops early.
	Execute(ctx context.Context, plan *types.SyncPlan, m *types.Manifest, token manifest.VersionToken) (*types.SyncResult, error)
}

// EngineConfig wires an engine's collaborators.
type EngineConfig struct {
	// Meta is the run identity. Required.
	Meta *types.RunMeta
	// Limits bound concurrency, checkpoint cadence, and run time.
	Limits Limits
	// Downloader processes individual artifacts. Required.
	Downloader ArtifactProcessor
	// Manifests persists checkpoint commits. Required.
	Manifests manifest.Store
	// Logger receives engine diagnostics. Required.
	Logger *log.Logger
	// Collector records run metrics. Nil-safe.
	Collector *metrics.Collector
	// Journal receives per-artifact outcome records. Optional.
	Journal *journal.Writer
	// Progress receives periodic progress callbacks. Optional.
	Progress *ProgressReporter
	// CommitRetries is the transient retry budget per commit (default 3).
	CommitRetries int
	// CommitBaseDelay seeds the commit retry backoff (default 500ms).
	CommitBaseDelay time.Duration
}

// Engine executes a sync plan with a bounded worker pool. A single
// aggregator goroutine owns the manifest: workers never touch it, so
// commits are serialized by construction.
type Engine struct {
	config EngineConfig
}

// NewEngine creates an engine.
func NewEngine(cfg EngineConfig) *Engine {
	cfg.Limits = cfg.Limits.normalize()
	if cfg.CommitRetries < 1 {
		cfg.CommitRetries = DefaultCommitRetries
	}
	if cfg.CommitBaseDelay <= 0 {
		cfg.CommitBaseDelay = DefaultCommitBaseDelay
	}
	return &Engine{config: cfg}
}

// Execute implements Executor.
//
// Failure isolation: each artifact's outcome is independent. A failed
// download is recorded and the run continues; only manifest commit
// failures are fatal, because without durable checkpoints completed work
// cannot be trusted. A fatal checkpoint cancels dispatch immediately:
// downloading a delta whose successes can never be committed only wastes
// bandwidth, and under a concurrency conflict it races the other writer
// against the content store.
func (e *Engine) Execute(ctx context.Context, plan *types.SyncPlan, m *types.Manifest, token manifest.VersionToken) (*types.SyncResult, error) {
	if plan == nil {
		return nil, errors.New("nil plan")
	}

	start := time.Now()
	result := &types.SyncResult{
		RunID:                  e.config.Meta.RunID,
		SyncDate:               e.config.Meta.SyncDate,
		Path:                   plan.Path,
		ArtifactsSkipped:       plan.SkippedUpToDate,
		ManifestRevisionBefore: m.Revision,
		ManifestRevisionAfter:  m.Revision,
	}
	if plan.Empty() {
		result.Duration = time.Since(start)
		return result, nil
	}

	e.journalRecord(&journal.Record{
		Type:      journal.RecordRunStarted,
		RunID:     e.config.Meta.RunID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Planned:   len(plan.Delta),
	})

	// abort stops dispatch on a fatal checkpoint failure; in-flight work
	// drains through the same path a deadline uses.
	runCtx, abort := context.WithCancel(ctx)
	defer abort()
	if e.config.Limits.MaxRunTime > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, e.config.Limits.MaxRunTime)
		defer cancel()
	}

	e.config.Logger.Info("executing plan", map[string]any{
		"path":            string(plan.Path),
		"delta":           len(plan.Delta),
		"estimated_bytes": plan.EstimatedBytes,
		"max_concurrent":  e.config.Limits.MaxConcurrent,
	})

	outcomes := make(chan Outcome)
	var undispatched int

	// Dispatcher: feeds workers until the delta is exhausted or the run
	// context ends. Closes outcomes once every started worker is done.
	go func() {
		defer close(outcomes)
		sem := make(chan struct{}, e.config.Limits.MaxConcurrent)
		var wg sync.WaitGroup
		for i, artifact := range plan.Delta {
			select {
			case sem <- struct{}{}:
			case <-runCtx.Done():
				undispatched = len(plan.Delta) - i
				wg.Wait()
				return
			}
			wg.Add(1)
			go func(a types.Artifact) {
				defer wg.Done()
				defer func() { <-sem }()
				outcomes <- e.config.Downloader.Process(runCtx, a)
			}(artifact)
		}
		wg.Wait()
	}()

	// Aggregator: single owner of the manifest and the commit token.
	current := m
	pending := 0
	fatal := false
	for outcome := range outcomes {
		result.ArtifactsAttempted++
		e.journalOutcome(&outcome)

		if !outcome.Succeeded() {
			result.ArtifactsFailed = append(result.ArtifactsFailed, *outcome.Failure)
			e.reportProgress(ctx, result, len(plan.Delta))
			continue
		}

		entry := outcome.Entry
		if prev, ok := current.Bottles[outcome.Artifact.Key()]; ok && !prev.FirstSyncedAt.IsZero() {
			entry.FirstSyncedAt = prev.FirstSyncedAt
		}
		current = current.WithEntry(outcome.Artifact.Key(), entry, time.Now().UTC())
		result.ArtifactsSucceeded++
		result.BytesTransferred += entry.SizeBytes
		e.config.Collector.IncDownloadSucceeded(entry.SizeBytes)
		pending++
		e.reportProgress(ctx, result, len(plan.Delta))

		if !fatal && pending >= e.config.Limits.CheckpointEvery {
			newToken, err := e.checkpoint(ctx, current, token, pending)
			if err != nil {
				result.FatalError = err.Error()
				fatal = true
				abort()
				continue
			}
			token = newToken
			result.ManifestRevisionAfter = current.Revision
			pending = 0
		}
	}

	if undispatched > 0 {
		if fatal {
			e.config.Logger.Warn("run aborted, remaining delta not dispatched", map[string]any{
				"undispatched": undispatched,
			})
		} else {
			result.Incomplete = true
			e.config.Logger.Warn("run stopped before exhausting delta", map[string]any{
				"undispatched": undispatched,
				"cause":        runCtx.Err().Error(),
			})
		}
	}

	if !fatal && pending > 0 {
		newToken, err := e.checkpoint(ctx, current, token, pending)
		if err != nil {
			result.FatalError = err.Error()
		} else {
			token = newToken
			result.ManifestRevisionAfter = current.Revision
		}
	}
	_ = token

	result.Duration = time.Since(start)
	e.journalRecord(&journal.Record{
		Type:       journal.RecordRunFinished,
		RunID:      e.config.Meta.RunID,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Succeeded:  result.ArtifactsSucceeded,
		Failed:     len(result.ArtifactsFailed),
		Incomplete: result.Incomplete,
	})
	return result, nil
}

// checkpoint durably commits the manifest with the entries applied since
// the previous checkpoint. The commit is conditional on the token from
// the previous commit (or load), so a concurrent writer surfaces as
// ErrConcurrentModification — fatal, never retried.
//
// The commit context survives run cancellation: a deadline must not
// discard verified work that is already in the store.
func (e *Engine) checkpoint(ctx context.Context, m *types.Manifest, expect manifest.VersionToken, entries int) (manifest.VersionToken, error) {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitGraceTimeout)
	defer cancel()

	m.Revision++
	newToken, err := manifest.CommitWithRetry(commitCtx, e.config.Manifests, m, expect, e.config.CommitRetries, e.config.CommitBaseDelay)
	if err != nil {
		e.config.Collector.IncCommitFailure()
		if errors.Is(err, manifest.ErrConcurrentModification) {
			e.config.Logger.Error("concurrent manifest writer detected", map[string]any{
				"location": e.config.Manifests.Location(),
			})
			return expect, fmt.Errorf("manifest checkpoint: %w", err)
		}
		return expect, fmt.Errorf("manifest checkpoint: %w", err)
	}

	e.config.Collector.IncCheckpointCommit()
	e.config.Logger.Info("manifest checkpoint committed", map[string]any{
		"revision": m.Revision,
		"entries":  entries,
	})
	e.journalRecord(&journal.Record{
		Type:             journal.RecordCheckpoint,
		RunID:            e.config.Meta.RunID,
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		ManifestRevision: m.Revision,
		EntriesCommitted: entries,
	})
	return newToken, nil
}

func (e *Engine) reportProgress(ctx context.Context, result *types.SyncResult, total int) {
	if e.config.Progress == nil {
		return
	}
	e.config.Progress.Report(ctx, Progress{
		Done:   result.ArtifactsSucceeded,
		Failed: len(result.ArtifactsFailed),
		Total:  total,
		Bytes:  result.BytesTransferred,
		Path:   result.Path,
	})
}

// journalOutcome appends an artifact outcome record.
func (e *Engine) journalOutcome(outcome *Outcome) {
	rec := &journal.Record{
		Type:        journal.RecordOutcome,
		RunID:       e.config.Meta.RunID,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		ArtifactKey: outcome.Artifact.Key(),
		Attempts:    outcome.Attempts,
	}
	switch {
	case outcome.Succeeded():
		rec.Status = journal.StatusSucceeded
		rec.Bytes = outcome.Entry.SizeBytes
	case outcome.Quarantined:
		rec.Status = journal.StatusQuarantined
		rec.Reason = string(outcome.Failure.Reason)
		rec.Detail = outcome.Failure.Detail
	default:
		rec.Status = journal.StatusFailed
		rec.Reason = string(outcome.Failure.Reason)
		rec.Detail = outcome.Failure.Detail
	}
	e.journalRecord(rec)
}

// journalRecord appends a record, dropping the journal on write failure.
// Journaling is diagnostics; it never fails a run.
func (e *Engine) journalRecord(rec *journal.Record) {
	if e.config.Journal == nil {
		return
	}
	if err := e.config.Journal.Append(rec); err != nil {
		e.config.Logger.Warn("journal write failed, disabling journal", map[string]any{
			"error": err.Error(),
		})
		e.config.Journal = nil
	}
}

// Verify Engine implements the executor interface.
var _ Executor = (*Engine)(nil)
