package store

import (
	"context"
	"fmt"
	"io"

	"github.com/pithecene-io/bottlesync/manifest"
	"github.com/pithecene-io/bottlesync/types"
)

// QuarantinePrefix is the key prefix for objects that failed validation.
// Nothing under this prefix is ever treated as a mirrored artifact.
const QuarantinePrefix = "quarantine/"

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	// Key is the full object key relative to the store root.
	Key string
	// SizeBytes is the stored object size.
	SizeBytes int64
}

// Store is the content store contract: put/list/head addressed by string
// keys. Writes must be atomic at the object level — a reader never sees a
// partial object under its final key.
type Store interface {
	// Put stores body under key, replacing any existing object.
	Put(ctx context.Context, key string, body io.Reader, size int64) error

	// Exists reports whether key holds an object.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all objects whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// ArtifactKey returns the canonical content-store key for an artifact
// synced on the given date: "{date}/{name}-{version}.{platform}.bottle.tar.gz".
// Key collisions within one run are a programming error — delta
// computation guarantees (name, version, platform) uniqueness.
func ArtifactKey(syncDate string, artifact *types.Artifact) string {
	return fmt.Sprintf("%s/%s", syncDate, artifact.Filename())
}

// QuarantineKey returns the quarantine location for a failed artifact.
func QuarantineKey(syncDate string, artifact *types.Artifact) string {
	return QuarantinePrefix + ArtifactKey(syncDate, artifact)
}

// ManifestLister adapts a Store to the manifest.ObjectLister interface
// used by manifest rebuild.
type ManifestLister struct {
	Store Store
}

// List implements manifest.ObjectLister. Quarantined objects are excluded:
// they were never valid transfers.
func (l ManifestLister) List(ctx context.Context, prefix string) ([]manifest.ObjectInfo, error) {
	objects, err := l.Store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	infos := make([]manifest.ObjectInfo, 0, len(objects))
	for _, obj := range objects {
		if len(obj.Key) >= len(QuarantinePrefix) && obj.Key[:len(QuarantinePrefix)] == QuarantinePrefix {
			continue
		}
		infos = append(infos, manifest.ObjectInfo{Key: obj.Key, SizeBytes: obj.SizeBytes})
	}
	return infos, nil
}

// Verify the adapter satisfies the lister contract.
var _ manifest.ObjectLister = ManifestLister{}
