package manifest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pithecene-io/bottlesync/iox"
	"github.com/pithecene-io/bottlesync/types"
)

// FSStore persists the manifest as a JSON file on a local or mounted
// filesystem. The version token is the SHA-256 of the stored bytes, so a
// conditional commit detects any intervening writer regardless of mtime
// resolution.
type FSStore struct {
	path string
}

// NewFSStore creates a filesystem-backed manifest store.
func NewFSStore(path string) *FSStore {
	return &FSStore{path: path}
}

// Location returns the canonical file path.
func (s *FSStore) Location() string { return s.path }

// Load reads and validates the manifest file.
func (s *FSStore) Load(_ context.Context) (*types.Manifest, VersionToken, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.NewManifest(), TokenAbsent, nil
		}
		return nil, TokenAbsent, fmt.Errorf("read manifest %s: %w", s.path, err)
	}

	m, err := decode(data, s.path)
	if err != nil {
		var ce *CorruptError
		if errors.As(err, &ce) {
			ce.Token = tokenFor(data)
		}
		return nil, TokenAbsent, err
	}
	return m, tokenFor(data), nil
}

// lockStaleAfter is the age past which a commit lock is treated as left
// behind by a crashed committer and broken.
const lockStaleAfter = 30 * time.Second

// acquireLock takes the commit lock via an O_EXCL sibling file. A live
// lock from another committer surfaces as ErrConcurrentModification.
func (s *FSStore) acquireLock() (release func(), err error) {
	lock := s.path + ".lock"
	for {
		f, err := os.OpenFile(lock, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			iox.DiscardClose(f)
			return func() { _ = os.Remove(lock) }, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if info, statErr := os.Stat(lock); statErr == nil && time.Since(info.ModTime()) < lockStaleAfter {
			return nil, ErrConcurrentModification
		}
		// Stale lock from a crashed committer; break it and retry
		_ = os.Remove(lock)
	}
}

// Commit writes to a temporary file in the same directory, fsyncs, and
// renames over the canonical path. The rename is the single atomic
// visibility point: a concurrent Load sees either the old bytes or the
// new bytes, never a mix. The token check and the rename are bracketed
// by a sibling .lock file, so the conditional write is atomic between
// cooperating committers; the token alone cannot order two processes
// racing the same path.
func (s *FSStore) Commit(_ context.Context, m *types.Manifest, expect VersionToken) (VersionToken, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return TokenAbsent, fmt.Errorf("commit %s: %w", s.path, err)
	}
	release, err := s.acquireLock()
	if err != nil {
		return TokenAbsent, fmt.Errorf("commit %s: %w", s.path, err)
	}
	defer release()

	current, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		if expect == TokenAbsent || tokenFor(current) != expect {
			return TokenAbsent, fmt.Errorf("commit %s: %w", s.path, ErrConcurrentModification)
		}
	case os.IsNotExist(err):
		if expect != TokenAbsent {
			return TokenAbsent, fmt.Errorf("commit %s: manifest vanished: %w", s.path, ErrConcurrentModification)
		}
	default:
		return TokenAbsent, fmt.Errorf("commit %s: %w", s.path, err)
	}

	data, err := encode(m)
	if err != nil {
		return TokenAbsent, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return TokenAbsent, fmt.Errorf("commit %s: %w", s.path, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		iox.DiscardClose(tmp)
		return TokenAbsent, fmt.Errorf("commit %s: %w", s.path, err)
	}
	if err := tmp.Sync(); err != nil {
		iox.DiscardClose(tmp)
		return TokenAbsent, fmt.Errorf("commit %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return TokenAbsent, fmt.Errorf("commit %s: %w", s.path, err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return TokenAbsent, fmt.Errorf("commit %s: %w", s.path, err)
	}

	return tokenFor(data), nil
}

// Backup copies the current manifest to a timestamped sibling file.
func (s *FSStore) Backup(_ context.Context) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("backup %s: %w", s.path, err)
	}

	stamp := time.Now().UTC().Format("20060102_150405")
	backupPath := fmt.Sprintf("%s.backup-%s", s.path, stamp)
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return fmt.Errorf("backup %s: %w", s.path, err)
	}
	return nil
}

func tokenFor(data []byte) VersionToken {
	sum := sha256.Sum256(data)
	return VersionToken(hex.EncodeToString(sum[:]))
}

// Verify FSStore implements the Store interface.
var _ Store = (*FSStore)(nil)
