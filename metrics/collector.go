// Package metrics provides per-run metrics collection.
//
// The Collector accumulates counters during a single sync run. It is a
// leaf package with no internal dependencies. A Snapshot is folded into
// the final result log line at run completion.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all run metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Downloads
	DownloadsAttempted int64
	DownloadsSucceeded int64
	DownloadsFailed    int64
	DownloadRetries    int64
	BytesTransferred   int64

	// Manifest
	CheckpointCommits int64
	CommitFailures    int64

	// Catalog
	CatalogFetches       int64
	CatalogFetchFailures int64

	// Dimensions (informational, set at construction)
	Path  string
	RunID string
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe,
// so wiring a collector is always optional.
type Collector struct {
	mu sync.Mutex

	downloadsAttempted int64
	downloadsSucceeded int64
	downloadsFailed    int64
	downloadRetries    int64
	bytesTransferred   int64

	checkpointCommits int64
	commitFailures    int64

	catalogFetches       int64
	catalogFetchFailures int64

	path  string
	runID string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(path, runID string) *Collector {
	return &Collector{path: path, runID: runID}
}

// IncDownloadAttempted records a download dispatch.
func (c *Collector) IncDownloadAttempted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.downloadsAttempted++
	c.mu.Unlock()
}

// IncDownloadSucceeded records a verified, stored transfer of n bytes.
func (c *Collector) IncDownloadSucceeded(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.downloadsSucceeded++
	c.bytesTransferred += n
	c.mu.Unlock()
}

// IncDownloadFailed records a per-artifact failure after retries.
func (c *Collector) IncDownloadFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.downloadsFailed++
	c.mu.Unlock()
}

// IncDownloadRetry records one retry attempt.
func (c *Collector) IncDownloadRetry() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.downloadRetries++
	c.mu.Unlock()
}

// IncCheckpointCommit records a durable manifest checkpoint.
func (c *Collector) IncCheckpointCommit() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.checkpointCommits++
	c.mu.Unlock()
}

// IncCommitFailure records a failed manifest commit attempt.
func (c *Collector) IncCommitFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.commitFailures++
	c.mu.Unlock()
}

// IncCatalogFetch records a successful catalog fetch.
func (c *Collector) IncCatalogFetch() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.catalogFetches++
	c.mu.Unlock()
}

// IncCatalogFetchFailure records a failed catalog fetch.
func (c *Collector) IncCatalogFetchFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.catalogFetchFailures++
	c.mu.Unlock()
}

// Snapshot returns an immutable point-in-time view of all metrics.
// The Collector can continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		DownloadsAttempted: c.downloadsAttempted,
		DownloadsSucceeded: c.downloadsSucceeded,
		DownloadsFailed:    c.downloadsFailed,
		DownloadRetries:    c.downloadRetries,
		BytesTransferred:   c.bytesTransferred,

		CheckpointCommits: c.checkpointCommits,
		CommitFailures:    c.commitFailures,

		CatalogFetches:       c.catalogFetches,
		CatalogFetchFailures: c.catalogFetchFailures,

		Path:  c.path,
		RunID: c.runID,
	}
}
