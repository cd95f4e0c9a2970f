package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pithecene-io/bottlesync/adapter"
	"github.com/pithecene-io/bottlesync/adapter/redis"
	"github.com/pithecene-io/bottlesync/adapter/webhook"
	"github.com/pithecene-io/bottlesync/catalog"
	"github.com/pithecene-io/bottlesync/cli/config"
	"github.com/pithecene-io/bottlesync/journal"
	"github.com/pithecene-io/bottlesync/log"
	"github.com/pithecene-io/bottlesync/manifest"
	"github.com/pithecene-io/bottlesync/metrics"
	"github.com/pithecene-io/bottlesync/runtime"
	"github.com/pithecene-io/bottlesync/store"
	"github.com/pithecene-io/bottlesync/types"
)

// s3Client is the combined S3 surface shared by the content store, the
// manifest store, and the seeder. *s3.Client satisfies it.
type s3Client interface {
	store.S3API
	manifest.S3API
}

// wiring holds everything assembled from a validated config. Close
// releases per-run resources (journal files, adapter connections).
type wiring struct {
	catalog   *catalog.Client
	manifests manifest.Store
	contents  store.Store
	adapters  []adapter.Adapter
	s3        s3Client
	config    *config.Config

	closers []io.Closer
}

// Close releases adapters and any journal files opened during the run.
func (w *wiring) Close() {
	for _, c := range w.closers {
		_ = c.Close()
	}
	for _, a := range w.adapters {
		_ = a.Close()
	}
}

// buildWiring assembles the store, manifest, catalog, and adapter layers
// from a validated config.
func buildWiring(ctx context.Context, cfg *config.Config) (*wiring, error) {
	w := &wiring{config: cfg}

	w.catalog = catalog.New(catalog.Config{
		URL:     cfg.Catalog.URL,
		Timeout: cfg.Catalog.Timeout.Duration,
		Retries: retriesOrDefault(cfg.Catalog.Retries, catalog.DefaultRetries),
	})

	// One S3 client serves content, manifest, and seed when any of them
	// use the s3 backend.
	needS3 := cfg.Storage.Backend == "s3" || cfg.Manifest.Backend == "s3" || cfg.Manifest.Seed.Bucket != ""
	if needS3 {
		client, err := store.NewS3Client(ctx, store.S3Config{
			Bucket:       cfg.Storage.Bucket,
			Region:       cfg.Storage.Region,
			Endpoint:     cfg.Storage.Endpoint,
			UsePathStyle: cfg.Storage.S3PathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 client: %w", err)
		}
		w.s3 = client
	}

	switch cfg.Storage.Backend {
	case "fs":
		w.contents = store.NewFSStore(cfg.Storage.Path)
	case "s3":
		w.contents = store.NewS3Store(w.s3, cfg.Storage.Bucket, cfg.Storage.Prefix)
	}

	switch cfg.Manifest.Backend {
	case "fs":
		w.manifests = manifest.NewFSStore(cfg.Manifest.Path)
	case "s3":
		w.manifests = manifest.NewS3Store(w.s3, cfg.Manifest.Bucket, cfg.Manifest.Key)
	}

	for i, ac := range cfg.Adapters {
		a, err := buildAdapter(ac)
		if err != nil {
			return nil, fmt.Errorf("adapters[%d]: %w", i, err)
		}
		w.adapters = append(w.adapters, a)
	}

	return w, nil
}

func buildAdapter(ac config.AdapterConfig) (adapter.Adapter, error) {
	switch ac.Type {
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Timeout: ac.Timeout.Duration,
			Retries: retriesOrDefault(ac.Retries, webhook.DefaultRetries),
		})
	case "redis":
		return redis.New(redis.Config{
			URL:     ac.URL,
			Channel: ac.Channel,
			Timeout: ac.Timeout.Duration,
			Retries: retriesOrDefault(ac.Retries, redis.DefaultRetries),
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", ac.Type)
	}
}

// buildOrchestrator wires the full run pipeline on top of the base layers.
func (w *wiring) buildOrchestrator() (*runtime.Orchestrator, error) {
	cfg := w.config

	var seeder *manifest.Seeder
	var locator manifest.SeedLocator
	seed := cfg.Manifest.Seed
	if seed.URL != "" || seed.Bucket != "" {
		locator = manifest.SeedLocator{URL: seed.URL, Bucket: seed.Bucket, Key: seed.Key}
		seeder = manifest.NewSeeder(http.DefaultClient, w.s3)
	}

	var rebuilder manifest.ObjectLister
	if cfg.Manifest.RebuildOnCorruption {
		rebuilder = store.ManifestLister{Store: w.contents}
	}

	return runtime.NewOrchestrator(runtime.OrchestratorConfig{
		Catalog:            w.catalog,
		Manifests:          w.manifests,
		Executors:          w.executorFactory(),
		Seeder:             seeder,
		SeedLocator:        locator,
		Rebuilder:          rebuilder,
		Adapters:           w.adapters,
		PlatformAllowList:  cfg.Sync.Platforms,
		SizeThresholdBytes: cfg.SizeThresholdBytes(),
		ProgressInterval:   cfg.Sync.ProgressInterval.Duration,
	})
}

// executorFactory binds per-run executors: a fresh downloader, collector,
// and journal per run identity.
func (w *wiring) executorFactory() runtime.ExecutorFactory {
	cfg := w.config
	return func(path types.PathKind, meta *types.RunMeta, logger *log.Logger, progress *runtime.ProgressReporter) (runtime.Executor, error) {
		collector := metrics.NewCollector(string(path), meta.RunID)

		downloader := runtime.NewDownloader(runtime.DownloaderConfig{
			Store:             w.contents,
			Logger:            logger,
			Collector:         collector,
			SyncDate:          meta.SyncDate,
			Retries:           retriesOrDefault(cfg.Sync.Retries, runtime.DefaultDownloadRetries),
			RetryChecksumOnce: cfg.Sync.RetryChecksumOnce == nil || *cfg.Sync.RetryChecksumOnce,
		})

		var jw *journal.Writer
		if cfg.Journal.Dir != "" {
			f, err := openJournal(cfg.Journal.Dir, meta.RunID)
			if err != nil {
				return nil, err
			}
			w.closers = append(w.closers, f)
			jw = journal.NewWriter(f)
		}

		ecfg := runtime.EngineConfig{
			Meta:       meta,
			Downloader: downloader,
			Manifests:  w.manifests,
			Logger:     logger,
			Collector:  collector,
			Journal:    jw,
			Progress:   progress,
		}

		switch path {
		case types.PathHeavyDuty:
			ecfg.Limits = limitsFromConfig(cfg.Sync.HeavyDuty)
			return runtime.NewHeavyDutyExecutor(ecfg), nil
		default:
			ecfg.Limits = limitsFromConfig(cfg.Sync.Lightweight)
			return runtime.NewLightweightExecutor(ecfg), nil
		}
	}
}

// openJournal creates the per-run journal file under dir.
func openJournal(dir, runID string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	path := filepath.Join(dir, runID+".journal")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal file: %w", err)
	}
	return f, nil
}

// limitsFromConfig converts config overrides; zero fields keep the
// built-in limits for the path.
func limitsFromConfig(lc config.LimitsConfig) runtime.Limits {
	return runtime.Limits{
		MaxConcurrent:   lc.MaxConcurrent,
		CheckpointEvery: lc.CheckpointEvery,
		MaxRunTime:      lc.MaxRunTime.Duration,
	}
}

func retriesOrDefault(r *int, def int) int {
	if r == nil {
		return def
	}
	return *r
}

// loadConfig loads and validates the config named by the --config flag.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
