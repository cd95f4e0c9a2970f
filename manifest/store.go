package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/bottlesync/types"
)

// VersionToken identifies the exact stored version of the manifest
// observed at load. Passing it back to Commit enforces "only if unchanged
// since load". TokenAbsent means no document existed at load; a commit
// with TokenAbsent is create-only.
type VersionToken string

// TokenAbsent is the version token for a missing manifest document.
const TokenAbsent VersionToken = ""

// Store persists the manifest document.
type Store interface {
	// Load fetches the current manifest with its version token. A missing
	// document returns an empty manifest with TokenAbsent — first run,
	// not an error. A document that fails structural validation returns
	// a *CorruptError.
	Load(ctx context.Context) (*types.Manifest, VersionToken, error)

	// Commit atomically replaces the manifest, but only if the stored
	// version still matches expect. Returns the new token on success and
	// ErrConcurrentModification if another writer got there first.
	// Readers never observe a partially written document.
	Commit(ctx context.Context, m *types.Manifest, expect VersionToken) (VersionToken, error)

	// Backup copies the current document to a timestamped backup
	// location. Used before rebuilding a corrupt manifest. A missing
	// document is not an error.
	Backup(ctx context.Context) error

	// Location describes the canonical document location for logs.
	Location() string
}

// decode parses and validates manifest bytes. Shared by all stores so the
// structural-validation rules cannot drift between backends.
func decode(data []byte, location string) (*types.Manifest, error) {
	var m types.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &CorruptError{Location: location, Err: err}
	}
	if err := m.Validate(); err != nil {
		return nil, &CorruptError{Location: location, Err: err}
	}
	return &m, nil
}

// encode serializes the manifest for storage.
func encode(m *types.Manifest) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return data, nil
}

// CommitWithRetry commits with a bounded retry budget and exponential
// backoff on transient failures. ErrConcurrentModification is never
// retried: a racing writer is a correctness signal, not a transient
// fault. Returns a *WriteError once the budget is exhausted.
func CommitWithRetry(ctx context.Context, store Store, m *types.Manifest, expect VersionToken, attempts int, baseDelay time.Duration) (VersionToken, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return TokenAbsent, &WriteError{Attempts: i, Err: err}
		}
		if i > 0 {
			backoff := baseDelay * time.Duration(1<<uint(i-1))
			select {
			case <-ctx.Done():
				return TokenAbsent, &WriteError{Attempts: i, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}

		token, err := store.Commit(ctx, m, expect)
		if err == nil {
			return token, nil
		}
		if errors.Is(err, ErrConcurrentModification) {
			return TokenAbsent, err
		}
		lastErr = err
	}

	return TokenAbsent, &WriteError{Attempts: attempts, Err: lastErr}
}
