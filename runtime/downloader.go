package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/pithecene-io/bottlesync/iox"
	"github.com/pithecene-io/bottlesync/log"
	"github.com/pithecene-io/bottlesync/metrics"
	"github.com/pithecene-io/bottlesync/store"
	"github.com/pithecene-io/bottlesync/types"
)

// DefaultDownloadTimeout is the per-artifact request timeout.
const DefaultDownloadTimeout = 15 * time.Minute

// DefaultDownloadRetries is the default transient retry budget per artifact.
const DefaultDownloadRetries = 3

// downloadUserAgent identifies this mirror to artifact origins.
const downloadUserAgent = "bottlesync/" + types.Version

// DownloaderConfig configures per-artifact download processing.
type DownloaderConfig struct {
	// Store is the content store artifacts are written to.
	Store store.Store
	// Client is the HTTP client for artifact downloads. Nil gets a client
	// with DefaultDownloadTimeout.
	Client *http.Client
	// Logger receives per-artifact diagnostics.
	Logger *log.Logger
	// Collector records download metrics. Nil-safe.
	Collector *metrics.Collector
	// SyncDate keys the storage folder for this run (YYYY-MM-DD).
	SyncDate string
	// Retries is the transient retry budget per artifact (default 3).
	Retries int
	// RetryBaseDelay seeds the retry backoff (default 1s).
	RetryBaseDelay time.Duration
	// RetryChecksumOnce re-downloads exactly once after a digest mismatch
	// before quarantining for good.
	RetryChecksumOnce bool
	// SpoolDir is where in-flight downloads are spooled. Empty uses the
	// system temp directory.
	SpoolDir string
}

// Downloader downloads, verifies, and stores one artifact at a time.
// Safe for concurrent use by multiple workers.
type Downloader struct {
	config DownloaderConfig
	client *http.Client
}

// NewDownloader creates a downloader.
func NewDownloader(cfg DownloaderConfig) *Downloader {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: DefaultDownloadTimeout}
	}
	if cfg.Retries < 0 {
		cfg.Retries = DefaultDownloadRetries
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	return &Downloader{config: cfg, client: cfg.Client}
}

// Process downloads the artifact, verifies its SHA-256 against the
// catalog digest, and stores it under the dated key. The digest is
// verified before the object becomes visible under its final key; a
// mismatched download lands under the quarantine prefix instead.
//
// Transient failures (network, timeout, throttling, 5xx) retry with
// exponential backoff up to the configured budget. A digest mismatch is
// re-downloaded at most once, then fails as checksum_mismatch.
func (d *Downloader) Process(ctx context.Context, artifact types.Artifact) Outcome {
	d.config.Collector.IncDownloadAttempted()

	var (
		lastErr         error
		transientLeft   = d.config.Retries
		checksumRetried bool
		attempt         int
		quarantined     bool
	)

	for {
		attempt++
		if attempt > 1 {
			backoff := time.Duration(1<<uint(attempt-2)) * d.config.RetryBaseDelay
			select {
			case <-ctx.Done():
				return d.failed(artifact, attempt-1, quarantined, ctx.Err())
			case <-time.After(backoff):
			}
		}
		if err := ctx.Err(); err != nil {
			return d.failed(artifact, attempt-1, quarantined, err)
		}

		entry, err := d.attempt(ctx, &artifact)
		if err == nil {
			d.config.Logger.Debug("artifact stored", map[string]any{
				"key":      artifact.Key(),
				"bytes":    entry.SizeBytes,
				"attempts": attempt,
			})
			return Outcome{Artifact: artifact, Entry: entry, Attempts: attempt}
		}
		lastErr = err

		if isChecksumMismatch(err) {
			quarantined = true
			if d.config.RetryChecksumOnce && !checksumRetried {
				checksumRetried = true
				d.config.Collector.IncDownloadRetry()
				d.config.Logger.Warn("checksum mismatch, re-downloading once", map[string]any{
					"key":   artifact.Key(),
					"error": err.Error(),
				})
				continue
			}
			return d.failed(artifact, attempt, quarantined, err)
		}

		if transientLeft > 0 && retriable(err) {
			transientLeft--
			d.config.Collector.IncDownloadRetry()
			d.config.Logger.Warn("download attempt failed, retrying", map[string]any{
				"key":     artifact.Key(),
				"error":   err.Error(),
				"attempt": attempt,
			})
			continue
		}

		return d.failed(artifact, attempt, quarantined, lastErr)
	}
}

// attempt performs one download-verify-store cycle.
func (d *Downloader) attempt(ctx context.Context, artifact *types.Artifact) (types.ManifestEntry, error) {
	var entry types.ManifestEntry

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifact.DownloadURL, nil)
	if err != nil {
		return entry, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", downloadUserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return entry, err
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return entry, &httpError{Status: resp.StatusCode}
	}

	// Spool to a temp file while hashing, so verification completes
	// before anything touches the content store.
	tmp, err := os.CreateTemp(d.config.SpoolDir, "bottlesync-dl-*")
	if err != nil {
		return entry, fmt.Errorf("spool: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		iox.DiscardClose(tmp)
		_ = os.Remove(tmpName)
	}()

	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body)
	if err != nil {
		return entry, err
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	if digest != artifact.ContentHash {
		d.quarantine(ctx, artifact, tmp, n)
		return entry, &checksumError{Want: artifact.ContentHash, Got: digest}
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return entry, fmt.Errorf("spool rewind: %w", err)
	}
	key := store.ArtifactKey(d.config.SyncDate, artifact)
	if err := d.config.Store.Put(ctx, key, tmp, n); err != nil {
		return entry, err
	}

	return types.ManifestEntry{
		ContentHash:   digest,
		SizeBytes:     n,
		StoredAt:      d.config.SyncDate,
		FirstSyncedAt: time.Now().UTC(),
	}, nil
}

// quarantine moves mismatched bytes under the quarantine prefix for
// offline inspection. Best effort: a quarantine failure never masks the
// checksum failure itself.
func (d *Downloader) quarantine(ctx context.Context, artifact *types.Artifact, spool *os.File, size int64) {
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return
	}
	key := store.QuarantineKey(d.config.SyncDate, artifact)
	if err := d.config.Store.Put(ctx, key, spool, size); err != nil {
		d.config.Logger.Warn("quarantine write failed", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
		return
	}
	d.config.Logger.Warn("artifact quarantined", map[string]any{
		"key": key,
	})
}

// Verify Downloader implements the processor interface.
var _ ArtifactProcessor = (*Downloader)(nil)

func (d *Downloader) failed(artifact types.Artifact, attempts int, quarantined bool, err error) Outcome {
	d.config.Collector.IncDownloadFailed()
	failure := &types.ArtifactFailure{
		Key:    artifact.Key(),
		Reason: failReasonFor(err),
		Detail: err.Error(),
	}
	d.config.Logger.Error("artifact failed", map[string]any{
		"key":      artifact.Key(),
		"reason":   string(failure.Reason),
		"detail":   failure.Detail,
		"attempts": attempts,
	})
	return Outcome{Artifact: artifact, Failure: failure, Quarantined: quarantined, Attempts: attempts}
}
