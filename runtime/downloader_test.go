package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pithecene-io/bottlesync/log"
	"github.com/pithecene-io/bottlesync/store"
	"github.com/pithecene-io/bottlesync/types"
)

const testSyncDate = "2026-08-24"

func testLogger() *log.Logger {
	return log.NewLogger(&types.RunMeta{RunID: "run-test", SyncDate: testSyncDate}).WithOutput(io.Discard)
}

func testArtifact(url string, body []byte) types.Artifact {
	sum := sha256.Sum256(body)
	return types.Artifact{
		Name:        "wget",
		Version:     "1.24.5",
		Platform:    "arm64_sonoma",
		DownloadURL: url,
		ContentHash: hex.EncodeToString(sum[:]),
		SizeBytes:   int64(len(body)),
	}
}

func newTestDownloader(t *testing.T, cfg DownloaderConfig) (*Downloader, string) {
	t.Helper()
	root := t.TempDir()
	if cfg.Store == nil {
		cfg.Store = store.NewFSStore(root)
	}
	if cfg.Logger == nil {
		cfg.Logger = testLogger()
	}
	if cfg.SyncDate == "" {
		cfg.SyncDate = testSyncDate
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Millisecond
	}
	return NewDownloader(cfg), root
}

func TestProcess_StoresVerifiedArtifact(t *testing.T) {
	body := []byte("bottle bytes")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	}))
	defer ts.Close()

	d, root := newTestDownloader(t, DownloaderConfig{Retries: 0})
	artifact := testArtifact(ts.URL, body)

	outcome := d.Process(context.Background(), artifact)
	if !outcome.Succeeded() {
		t.Fatalf("expected success, got %v", outcome.Failure)
	}
	if outcome.Entry.ContentHash != artifact.ContentHash {
		t.Errorf("entry hash = %s, want %s", outcome.Entry.ContentHash, artifact.ContentHash)
	}
	if outcome.Entry.SizeBytes != int64(len(body)) {
		t.Errorf("entry size = %d, want %d", outcome.Entry.SizeBytes, len(body))
	}
	if outcome.Entry.StoredAt != testSyncDate {
		t.Errorf("entry stored_at = %s, want %s", outcome.Entry.StoredAt, testSyncDate)
	}

	stored, err := os.ReadFile(filepath.Join(root, testSyncDate, artifact.Filename()))
	if err != nil {
		t.Fatalf("stored object: %v", err)
	}
	if string(stored) != string(body) {
		t.Errorf("stored bytes differ from origin bytes")
	}
}

func TestProcess_ChecksumMismatchQuarantines(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("corrupted bytes"))
	}))
	defer ts.Close()

	d, root := newTestDownloader(t, DownloaderConfig{Retries: 3})
	artifact := testArtifact(ts.URL, []byte("expected bytes"))

	outcome := d.Process(context.Background(), artifact)
	if outcome.Succeeded() {
		t.Fatal("expected failure")
	}
	if outcome.Failure.Reason != types.FailChecksum {
		t.Errorf("reason = %s, want %s", outcome.Failure.Reason, types.FailChecksum)
	}
	if !outcome.Quarantined {
		t.Error("expected quarantined outcome")
	}
	if outcome.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no re-download without retry_checksum_once)", outcome.Attempts)
	}

	// Mismatched bytes must land in quarantine, never under the final key
	if _, err := os.Stat(filepath.Join(root, testSyncDate, artifact.Filename())); !os.IsNotExist(err) {
		t.Error("mismatched artifact must not exist under final key")
	}
	quarantined, err := os.ReadFile(filepath.Join(root, "quarantine", testSyncDate, artifact.Filename()))
	if err != nil {
		t.Fatalf("quarantined object: %v", err)
	}
	if string(quarantined) != "corrupted bytes" {
		t.Errorf("quarantine holds wrong bytes")
	}
}

func TestProcess_ChecksumRetriedOnce(t *testing.T) {
	var requests atomic.Int32
	body := []byte("good bytes")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if requests.Add(1) == 1 {
			_, _ = w.Write([]byte("flipped bits"))
			return
		}
		_, _ = w.Write(body)
	}))
	defer ts.Close()

	d, _ := newTestDownloader(t, DownloaderConfig{Retries: 0, RetryChecksumOnce: true})
	artifact := testArtifact(ts.URL, body)

	outcome := d.Process(context.Background(), artifact)
	if !outcome.Succeeded() {
		t.Fatalf("expected success on re-download, got %v", outcome.Failure)
	}
	if outcome.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", outcome.Attempts)
	}
}

func TestProcess_ChecksumNeverRetriedTwice(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte("always wrong"))
	}))
	defer ts.Close()

	d, _ := newTestDownloader(t, DownloaderConfig{Retries: 5, RetryChecksumOnce: true})
	artifact := testArtifact(ts.URL, []byte("expected"))

	outcome := d.Process(context.Background(), artifact)
	if outcome.Succeeded() {
		t.Fatal("expected failure")
	}
	if outcome.Failure.Reason != types.FailChecksum {
		t.Errorf("reason = %s, want %s", outcome.Failure.Reason, types.FailChecksum)
	}
	// One original + exactly one re-download, transient budget not consumed
	if got := requests.Load(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestProcess_RetriesTransientThenSucceeds(t *testing.T) {
	var requests atomic.Int32
	body := []byte("eventually served")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if requests.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(body)
	}))
	defer ts.Close()

	d, _ := newTestDownloader(t, DownloaderConfig{Retries: 3})
	artifact := testArtifact(ts.URL, body)

	outcome := d.Process(context.Background(), artifact)
	if !outcome.Succeeded() {
		t.Fatalf("expected success after retries, got %v", outcome.Failure)
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestProcess_ExhaustsTransientBudget(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	d, _ := newTestDownloader(t, DownloaderConfig{Retries: 2})
	artifact := testArtifact(ts.URL, []byte("never served"))

	outcome := d.Process(context.Background(), artifact)
	if outcome.Succeeded() {
		t.Fatal("expected failure")
	}
	if outcome.Failure.Reason != types.FailNetwork {
		t.Errorf("reason = %s, want %s", outcome.Failure.Reason, types.FailNetwork)
	}
	// 1 initial + 2 retries
	if got := requests.Load(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestProcess_NotFoundDoesNotRetry(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	d, _ := newTestDownloader(t, DownloaderConfig{Retries: 3})
	artifact := testArtifact(ts.URL, []byte("gone"))

	outcome := d.Process(context.Background(), artifact)
	if outcome.Succeeded() {
		t.Fatal("expected failure")
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1 (4xx must not retry)", got)
	}
}

func TestFailReasonClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.FailReason
	}{
		{"checksum", &checksumError{Want: "aa", Got: "bb"}, types.FailChecksum},
		{"http 404", &httpError{Status: 404}, types.FailNetwork},
		{"storage", &store.StorageError{Kind: store.ErrDiskFull, Op: "put"}, types.FailStorage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := failReasonFor(tt.err); got != tt.want {
				t.Errorf("failReasonFor = %s, want %s", got, tt.want)
			}
		})
	}
}
