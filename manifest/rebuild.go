package manifest

import (
	"context"
	"strings"
	"time"

	"github.com/pithecene-io/bottlesync/types"
)

// ObjectInfo describes one stored object during a rebuild listing.
type ObjectInfo struct {
	Key       string
	SizeBytes int64
}

// ObjectLister lists stored artifact objects. The content store satisfies
// this; the narrow interface keeps manifest free of a dependency on the
// store package.
type ObjectLister interface {
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

const bottleSuffix = ".bottle.tar.gz"

// Rebuild reconstructs a manifest from a content-store listing. Emergency
// recovery for a corrupt manifest: object keys of the form
// "YYYY-MM-DD/{name}-{version}.{platform}.bottle.tar.gz" become entries
// with UnknownHash, so every recovered artifact re-verifies on the next
// delta computation rather than being trusted blindly.
func Rebuild(ctx context.Context, lister ObjectLister, now time.Time) (*types.Manifest, error) {
	objects, err := lister.List(ctx, "")
	if err != nil {
		return nil, err
	}

	m := types.NewManifest()
	m.LastUpdated = now

	for _, obj := range objects {
		key, entry, ok := EntryFromObjectKey(obj)
		if !ok {
			continue
		}
		entry.FirstSyncedAt = now
		m.Bottles[key] = entry
	}
	return m, nil
}

// EntryFromObjectKey parses "YYYY-MM-DD/name-version.platform.bottle.tar.gz"
// into a manifest key and entry. Keys that do not match the layout are
// skipped, not errors: the store may hold quarantined or unrelated objects.
func EntryFromObjectKey(obj ObjectInfo) (string, types.ManifestEntry, bool) {
	parts := strings.SplitN(obj.Key, "/", 2)
	if len(parts) != 2 {
		return "", types.ManifestEntry{}, false
	}
	date, filename := parts[0], parts[1]

	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", types.ManifestEntry{}, false
	}
	if !strings.HasSuffix(filename, bottleSuffix) {
		return "", types.ManifestEntry{}, false
	}

	base := strings.TrimSuffix(filename, bottleSuffix)
	dot := strings.LastIndex(base, ".")
	if dot <= 0 || dot == len(base)-1 {
		return "", types.ManifestEntry{}, false
	}
	platform := base[dot+1:]
	nameVersion := base[:dot]

	dash := strings.LastIndex(nameVersion, "-")
	if dash <= 0 || dash == len(nameVersion)-1 {
		return "", types.ManifestEntry{}, false
	}
	name := nameVersion[:dash]
	version := nameVersion[dash+1:]

	key := name + "-" + version + "-" + platform
	entry := types.ManifestEntry{
		ContentHash: types.UnknownHash,
		SizeBytes:   obj.SizeBytes,
		StoredAt:    date,
	}
	return key, entry, true
}
