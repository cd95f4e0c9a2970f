package manifest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pithecene-io/bottlesync/types"
)

// flakyStore fails the first failures commits with a transient error.
type flakyStore struct {
	failures int
	commits  int
}

func (s *flakyStore) Load(context.Context) (*types.Manifest, VersionToken, error) {
	return types.NewManifest(), TokenAbsent, nil
}

func (s *flakyStore) Commit(context.Context, *types.Manifest, VersionToken) (VersionToken, error) {
	s.commits++
	if s.commits <= s.failures {
		return TokenAbsent, errors.New("transient write failure")
	}
	return VersionToken("ok"), nil
}

func (s *flakyStore) Backup(context.Context) error { return nil }
func (s *flakyStore) Location() string             { return "flaky://test" }

// conflictingStore always reports a concurrent modification.
type conflictingStore struct {
	flakyStore
}

func (s *conflictingStore) Commit(context.Context, *types.Manifest, VersionToken) (VersionToken, error) {
	s.commits++
	return TokenAbsent, ErrConcurrentModification
}

func TestCommitWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	s := &flakyStore{failures: 2}

	token, err := CommitWithRetry(context.Background(), s, types.NewManifest(), TokenAbsent, 3, time.Millisecond)
	if err != nil {
		t.Fatalf("commit with retry: %v", err)
	}
	if token != VersionToken("ok") {
		t.Errorf("token = %q", token)
	}
	if s.commits != 3 {
		t.Errorf("commits = %d, want 3", s.commits)
	}
}

func TestCommitWithRetry_ExhaustsBudget(t *testing.T) {
	s := &flakyStore{failures: 10}

	_, err := CommitWithRetry(context.Background(), s, types.NewManifest(), TokenAbsent, 3, time.Millisecond)
	var we *WriteError
	if !errors.As(err, &we) {
		t.Fatalf("err = %v, want *WriteError", err)
	}
	if we.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", we.Attempts)
	}
	if s.commits != 3 {
		t.Errorf("commits = %d, want 3", s.commits)
	}
}

func TestCommitWithRetry_ConflictNeverRetried(t *testing.T) {
	s := &conflictingStore{}

	_, err := CommitWithRetry(context.Background(), s, types.NewManifest(), TokenAbsent, 5, time.Millisecond)
	if !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("err = %v, want ErrConcurrentModification", err)
	}
	if s.commits != 1 {
		t.Errorf("commits = %d, want 1 (conflicts are a correctness signal)", s.commits)
	}
}

func TestCommitWithRetry_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &flakyStore{}
	_, err := CommitWithRetry(ctx, s, types.NewManifest(), TokenAbsent, 3, time.Millisecond)
	if err == nil {
		t.Fatal("expected error on canceled context")
	}
	if s.commits != 0 {
		t.Errorf("commits = %d, want 0", s.commits)
	}
}
