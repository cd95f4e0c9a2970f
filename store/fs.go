package store

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pithecene-io/bottlesync/iox"
)

// FSStore is a filesystem-backed content store for local mirrors and
// tests. Writes go to a temporary file and are renamed into place, so a
// reader never sees a partial object under its final path.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem-backed content store rooted at root.
func NewFSStore(root string) *FSStore {
	return &FSStore{root: root}
}

func (s *FSStore) pathFor(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Put stores body under key.
func (s *FSStore) Put(_ context.Context, key string, body io.Reader, _ int64) error {
	path := s.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return wrap(err, "put", key)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return wrap(err, "put", key)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, body); err != nil {
		iox.DiscardClose(tmp)
		return wrap(err, "put", key)
	}
	if err := tmp.Close(); err != nil {
		return wrap(err, "put", key)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return wrap(err, "put", key)
	}
	return nil
}

// Exists reports whether key holds an object.
func (s *FSStore) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(s.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, wrap(err, "head", key)
	}
	return true, nil
}

// List returns all objects under prefix.
func (s *FSStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	var infos []ObjectInfo
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		infos = append(infos, ObjectInfo{Key: key, SizeBytes: info.Size()})
		return nil
	})
	if err != nil {
		return nil, wrap(err, "list", prefix)
	}
	return infos, nil
}

// Verify FSStore implements the Store interface.
var _ Store = (*FSStore)(nil)
