package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const indexDoc = `[
  {
    "name": "wget",
    "versions": {"stable": "1.24.5"},
    "bottle": {"stable": {"files": {
      "arm64_sonoma": {
        "url": "https://example.com/wget-arm64_sonoma.tar.gz",
        "sha256": "0000000000000000000000000000000000000000000000000000000000000001",
        "size": 100
      },
      "monterey": {
        "url": "https://example.com/wget-monterey.tar.gz",
        "sha256": "0000000000000000000000000000000000000000000000000000000000000002",
        "size": 90
      }
    }}}
  },
  {
    "name": "headonly",
    "versions": {"stable": ""},
    "bottle": {"stable": {"files": {}}}
  },
  {
    "name": "badbottle",
    "versions": {"stable": "2.0"},
    "bottle": {"stable": {"files": {
      "arm64_sonoma": {"url": "", "sha256": "short", "size": -1}
    }}}
  }
]`

func newTestClient(url string, retries int) *Client {
	return New(Config{URL: url, Timeout: time.Second, Retries: retries})
}

func TestFetch_FlattensIndex(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("accept header = %q", got)
		}
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "bottlesync/") {
			t.Errorf("user agent = %q", ua)
		}
		_, _ = w.Write([]byte(indexDoc))
	}))
	defer ts.Close()

	artifacts, err := newTestClient(ts.URL, 0).Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	// One artifact per (formula, platform); malformed entries dropped
	if len(artifacts) != 2 {
		t.Fatalf("artifacts = %d, want 2", len(artifacts))
	}
	for _, a := range artifacts {
		if a.Name != "wget" || a.Version != "1.24.5" {
			t.Errorf("unexpected artifact %s", a.Key())
		}
	}
}

func TestFetch_RetriesTransient(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if requests.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	start := time.Now()
	if _, err := newTestClient(ts.URL, 3).Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
	if time.Since(start) < 2*time.Second {
		t.Error("expected backoff before the retry")
	}
}

func TestFetch_ClientErrorDoesNotRetry(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL, 3).Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsFetchError(err) {
		t.Errorf("err = %v, want *FetchError", err)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1 (4xx must not retry)", got)
	}
}

func TestFetch_MalformedPayloadDoesNotRetry(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte(`{"not": "an array"}`))
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL, 3).Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error for non-array payload")
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1 (bad payload must not retry)", got)
	}
}

func TestFetch_CanceledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(ts.URL, 0).Fetch(ctx)
	if err == nil {
		t.Fatal("expected error on canceled context")
	}
}

func TestFetch_EmptyIndex(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	artifacts, err := newTestClient(ts.URL, 0).Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(artifacts) != 0 {
		t.Errorf("artifacts = %d, want 0", len(artifacts))
	}
}
