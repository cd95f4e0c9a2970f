// Package catalog fetches the upstream package index and flattens it into
// artifacts the router can plan over.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pithecene-io/bottlesync/iox"
	"github.com/pithecene-io/bottlesync/types"
)

// DefaultURL is the upstream formula index.
const DefaultURL = "https://formulae.brew.sh/api/formula.json"

// DefaultTimeout is the per-request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// userAgent identifies this mirror to the upstream index.
const userAgent = "bottlesync/" + types.Version

// FetchError indicates the upstream index was unreachable or returned a
// structurally invalid payload. Fatal to the run: delta computation needs
// the full catalog, so no partial catalog is acceptable.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("catalog fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Config configures the catalog client.
type Config struct {
	// URL is the index endpoint (default DefaultURL).
	URL string
	// Timeout is the per-request timeout (default 30s).
	Timeout time.Duration
	// Retries is the number of retry attempts on transient failure
	// (default 3). 4xx responses and malformed payloads never retry.
	Retries int
}

// Client fetches and parses the formula index.
type Client struct {
	config Config
	client *http.Client
}

// New creates a catalog client.
func New(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = DefaultRetries
	}
	return &Client{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// formula mirrors the subset of the upstream index document we consume.
type formula struct {
	Name     string `json:"name"`
	Versions struct {
		Stable string `json:"stable"`
	} `json:"versions"`
	Bottle struct {
		Stable struct {
			Files map[string]bottleFile `json:"files"`
		} `json:"stable"`
	} `json:"bottle"`
}

type bottleFile struct {
	URL    string `json:"url"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Fetch retrieves the full index and flattens it to one Artifact per
// (formula, platform) bottle descriptor. Formulas with no stable version
// or malformed bottle entries are skipped, not errors — the index always
// carries a tail of incomplete entries. Transport failures and 5xx
// responses retry with exponential backoff; a payload that is not a JSON
// array fails immediately with a *FetchError.
func (c *Client) Fetch(ctx context.Context) ([]types.Artifact, error) {
	var lastErr error
	attempts := 1 + c.config.Retries

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, &FetchError{URL: c.config.URL, Err: err}
		}

		// Exponential backoff before retries (not before first attempt)
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 2 * time.Second
			select {
			case <-ctx.Done():
				return nil, &FetchError{URL: c.config.URL, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}

		artifacts, retriable, err := c.fetchOnce(ctx)
		if err == nil {
			return artifacts, nil
		}
		if !retriable {
			return nil, &FetchError{URL: c.config.URL, Err: err}
		}
		lastErr = err
	}

	return nil, &FetchError{URL: c.config.URL, Err: fmt.Errorf("after %d attempts: %w", attempts, lastErr)}
}

// fetchOnce performs a single index request. The second return reports
// whether the failure class is retriable.
func (c *Client) fetchOnce(ctx context.Context) ([]types.Artifact, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer iox.DiscardClose(resp.Body)

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("unexpected status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var formulas []formula
	if err := json.NewDecoder(resp.Body).Decode(&formulas); err != nil {
		return nil, false, fmt.Errorf("invalid index payload: %w", err)
	}

	return flatten(formulas), true, nil
}

// flatten converts index formulas to artifacts, dropping entries that
// fail structural validation.
func flatten(formulas []formula) []types.Artifact {
	var artifacts []types.Artifact
	for _, f := range formulas {
		if f.Name == "" || f.Versions.Stable == "" {
			continue
		}
		for platform, file := range f.Bottle.Stable.Files {
			artifact := types.Artifact{
				Name:        f.Name,
				Version:     f.Versions.Stable,
				Platform:    platform,
				DownloadURL: file.URL,
				ContentHash: file.SHA256,
				SizeBytes:   file.Size,
			}
			if artifact.Validate() != nil {
				continue
			}
			artifacts = append(artifacts, artifact)
		}
	}
	return artifacts
}

// IsFetchError reports whether err is a catalog fetch failure.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
