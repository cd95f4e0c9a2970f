package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/bottlesync/adapter"
	"github.com/pithecene-io/bottlesync/log"
	"github.com/pithecene-io/bottlesync/manifest"
	"github.com/pithecene-io/bottlesync/metrics"
	"github.com/pithecene-io/bottlesync/router"
	"github.com/pithecene-io/bottlesync/types"
)

// DefaultSizeThresholdBytes routes estimated transfers of 20 GiB or more
// to the heavy-duty path.
const DefaultSizeThresholdBytes = 20 << 30

// notifyTimeout bounds each adapter publish.
const notifyTimeout = 10 * time.Second

// CatalogFetcher fetches the full upstream catalog. *catalog.Client
// satisfies it; tests substitute a stub.
type CatalogFetcher interface {
	Fetch(ctx context.Context) ([]types.Artifact, error)
}

// ExecutorFactory builds the executor for the selected path, bound to
// this run's identity. The progress reporter is nil on the lightweight
// path.
type ExecutorFactory func(path types.PathKind, meta *types.RunMeta, logger *log.Logger, progress *ProgressReporter) (Executor, error)

// OrchestratorConfig wires a sync orchestrator.
type OrchestratorConfig struct {
	// Catalog fetches the upstream index. Required.
	Catalog CatalogFetcher
	// Manifests is the manifest store. Required.
	Manifests manifest.Store
	// Executors builds the per-run executor. Required.
	Executors ExecutorFactory
	// Seeder and SeedLocator bootstrap a first run from an external
	// manifest. Optional; a seed failure falls back to an empty manifest.
	Seeder      *manifest.Seeder
	SeedLocator manifest.SeedLocator
	// Rebuilder enables corrupt-manifest recovery from a store listing.
	// Nil means a corrupt manifest aborts the run.
	Rebuilder manifest.ObjectLister
	// Adapters receive lifecycle notifications. Delivery is best effort.
	Adapters []adapter.Adapter
	// PlatformAllowList filters the catalog. Required non-empty.
	PlatformAllowList []string
	// SizeThresholdBytes selects the heavy-duty path at or above this
	// estimate (default 20 GiB).
	SizeThresholdBytes int64
	// ProgressInterval throttles heavy-duty progress events.
	ProgressInterval time.Duration
	// Collector records run metrics. Nil-safe.
	Collector *metrics.Collector
}

// Orchestrator drives one sync run end to end: fetch catalog, load
// manifest, plan, execute, notify.
type Orchestrator struct {
	config OrchestratorConfig
}

// NewOrchestrator validates the wiring and creates an orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("orchestrator requires a catalog fetcher")
	}
	if cfg.Manifests == nil {
		return nil, errors.New("orchestrator requires a manifest store")
	}
	if cfg.Executors == nil {
		return nil, errors.New("orchestrator requires an executor factory")
	}
	if len(cfg.PlatformAllowList) == 0 {
		return nil, errors.New("orchestrator requires a platform allow list")
	}
	if cfg.SizeThresholdBytes <= 0 {
		cfg.SizeThresholdBytes = DefaultSizeThresholdBytes
	}
	return &Orchestrator{config: cfg}, nil
}

// Run executes a single sync run. Exactly one SyncResult is produced:
// systemic failures surface in result.FatalError, never as a Go error.
// The returned error covers only invalid trigger input.
//
// Force planning ignores the manifest (the full filtered catalog becomes
// the delta) but commits still merge into and condition on the loaded
// document, so history and concurrency detection survive a force run.
func (o *Orchestrator) Run(ctx context.Context, trigger types.Trigger) (*types.SyncResult, error) {
	start := time.Now()

	runID := trigger.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	meta := &types.RunMeta{
		RunID:    runID,
		SyncDate: time.Now().UTC().Format("2006-01-02"),
	}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run metadata: %w", err)
	}
	logger := log.NewLogger(meta)

	logger.Info("starting sync run", map[string]any{
		"force":    trigger.Force,
		"manifest": o.config.Manifests.Location(),
	})

	// Catalog fetch is fail-fast: a partial catalog would make the delta
	// wrong in both directions.
	artifacts, err := o.config.Catalog.Fetch(ctx)
	if err != nil {
		o.config.Collector.IncCatalogFetchFailure()
		logger.Error("catalog fetch failed", map[string]any{"error": err.Error()})
		return o.fatal(ctx, meta, start, fmt.Errorf("catalog fetch: %w", err)), nil
	}
	o.config.Collector.IncCatalogFetch()
	logger.Info("catalog fetched", map[string]any{"artifacts": len(artifacts)})

	m, token, err := o.loadManifest(ctx, logger)
	if err != nil {
		return o.fatal(ctx, meta, start, err), nil
	}
	m = o.seedIfFirstRun(ctx, logger, m, token)

	planManifest := m
	if trigger.Force {
		planManifest = types.NewManifest()
		logger.Warn("force sync: planning against empty manifest", nil)
	}

	plan := router.Plan(artifacts, planManifest, o.config.PlatformAllowList, o.config.SizeThresholdBytes)
	logger.Info("plan computed", map[string]any{
		"path":            string(plan.Path),
		"delta":           len(plan.Delta),
		"skipped":         plan.SkippedUpToDate,
		"estimated_bytes": plan.EstimatedBytes,
	})

	o.notify(ctx, logger, adapter.StartedEvent(meta, plan))

	if plan.Empty() {
		result := &types.SyncResult{
			RunID:                  meta.RunID,
			SyncDate:               meta.SyncDate,
			Path:                   plan.Path,
			ArtifactsSkipped:       plan.SkippedUpToDate,
			ManifestRevisionBefore: m.Revision,
			ManifestRevisionAfter:  m.Revision,
			Duration:               time.Since(start),
		}
		logger.Info("nothing to sync", nil)
		o.notify(ctx, logger, adapter.ResultEvent(result))
		return result, nil
	}

	var progress *ProgressReporter
	if plan.Path == types.PathHeavyDuty && len(o.config.Adapters) > 0 {
		progress = NewProgressReporter(meta, o.config.ProgressInterval, func(ctx context.Context, event *adapter.SyncEvent) {
			o.notify(ctx, logger, event)
		})
	}

	executor, err := o.config.Executors(plan.Path, meta, logger, progress)
	if err != nil {
		return o.fatal(ctx, meta, start, fmt.Errorf("build executor: %w", err)), nil
	}

	result, err := executor.Execute(ctx, plan, m, token)
	if err != nil {
		return o.fatal(ctx, meta, start, fmt.Errorf("execute: %w", err)), nil
	}
	// Run identity is the orchestrator's, whatever the executor reported.
	result.RunID = meta.RunID
	result.SyncDate = meta.SyncDate
	result.Duration = time.Since(start)

	logger.Info("sync run finished", map[string]any{
		"succeeded":  result.ArtifactsSucceeded,
		"failed":     len(result.ArtifactsFailed),
		"skipped":    result.ArtifactsSkipped,
		"bytes":      result.BytesTransferred,
		"incomplete": result.Incomplete,
		"fatal":      result.FatalError,
		"revision":   result.ManifestRevisionAfter,
		"duration":   result.Duration.String(),
	})

	o.notify(ctx, logger, adapter.ResultEvent(result))
	return result, nil
}

// loadManifest loads the manifest, recovering a corrupt document by
// backup and rebuild when a rebuilder is wired. The repaired manifest is
// committed immediately, conditional on the corrupt bytes' token, so a
// concurrent repair cannot be clobbered.
func (o *Orchestrator) loadManifest(ctx context.Context, logger *log.Logger) (*types.Manifest, manifest.VersionToken, error) {
	m, token, err := o.config.Manifests.Load(ctx)
	if err == nil {
		return m, token, nil
	}

	var corrupt *manifest.CorruptError
	if !errors.As(err, &corrupt) {
		return nil, manifest.TokenAbsent, fmt.Errorf("manifest load: %w", err)
	}

	logger.Error("manifest corrupt", map[string]any{
		"location": corrupt.Location,
		"error":    corrupt.Err.Error(),
	})
	if o.config.Rebuilder == nil {
		return nil, manifest.TokenAbsent, fmt.Errorf("manifest load: %w", err)
	}

	if err := o.config.Manifests.Backup(ctx); err != nil {
		return nil, manifest.TokenAbsent, fmt.Errorf("manifest backup before rebuild: %w", err)
	}
	rebuilt, err := manifest.Rebuild(ctx, o.config.Rebuilder, time.Now().UTC())
	if err != nil {
		return nil, manifest.TokenAbsent, fmt.Errorf("manifest rebuild: %w", err)
	}

	rebuilt.Revision = 1
	newToken, err := manifest.CommitWithRetry(ctx, o.config.Manifests, rebuilt, corrupt.Token, DefaultCommitRetries, DefaultCommitBaseDelay)
	if err != nil {
		return nil, manifest.TokenAbsent, fmt.Errorf("manifest rebuild commit: %w", err)
	}

	logger.Warn("manifest rebuilt from store listing", map[string]any{
		"entries": len(rebuilt.Bottles),
	})
	return rebuilt, newToken, nil
}

// seedIfFirstRun replaces an absent manifest with an external seed. Best
// effort: any failure logs and falls back to the empty manifest.
func (o *Orchestrator) seedIfFirstRun(ctx context.Context, logger *log.Logger, m *types.Manifest, token manifest.VersionToken) *types.Manifest {
	if token != manifest.TokenAbsent || len(m.Bottles) > 0 {
		return m
	}
	if o.config.Seeder == nil || o.config.SeedLocator.Empty() {
		return m
	}

	seeded, err := o.config.Seeder.LoadExternal(ctx, o.config.SeedLocator)
	if err != nil {
		logger.Warn("external seed failed, starting empty", map[string]any{
			"error": err.Error(),
		})
		return m
	}
	logger.Info("manifest seeded from external source", map[string]any{
		"entries": len(seeded.Bottles),
	})
	return seeded
}

// fatal finalizes an aborted run and emits the failure notification.
func (o *Orchestrator) fatal(ctx context.Context, meta *types.RunMeta, start time.Time, err error) *types.SyncResult {
	result := &types.SyncResult{
		RunID:      meta.RunID,
		SyncDate:   meta.SyncDate,
		Duration:   time.Since(start),
		FatalError: err.Error(),
	}
	o.notify(ctx, log.NewLogger(meta), adapter.ResultEvent(result))
	return result
}

// notify delivers an event to every adapter, each within its own timeout.
// Failures are logged and swallowed: notifications never fail a run.
func (o *Orchestrator) notify(ctx context.Context, logger *log.Logger, event *adapter.SyncEvent) {
	for _, a := range o.config.Adapters {
		publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		if err := a.Publish(publishCtx, event); err != nil {
			logger.Warn("notification publish failed", map[string]any{
				"event_type": event.EventType,
				"error":      err.Error(),
			})
		}
		cancel()
	}
}
