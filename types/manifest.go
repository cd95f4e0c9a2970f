package types

import (
	"fmt"
	"time"
)

// ManifestSchemaVersion is the current manifest document schema version.
// Bump only with a documented migration path.
const ManifestSchemaVersion = 1

// ManifestEntry records one completed artifact transfer.
type ManifestEntry struct {
	// ContentHash is the SHA-256 digest verified at download time.
	ContentHash string `json:"sha256"`
	// SizeBytes is the byte count actually transferred.
	SizeBytes int64 `json:"size_bytes"`
	// StoredAt is the sync date (YYYY-MM-DD) that keys the storage path.
	StoredAt string `json:"stored_at"`
	// FirstSyncedAt is the timestamp of the first successful transfer.
	FirstSyncedAt time.Time `json:"first_synced_at"`
}

// Validate checks structural validity of a manifest entry.
func (e *ManifestEntry) Validate() error {
	if !hashPattern.MatchString(e.ContentHash) && e.ContentHash != UnknownHash {
		return fmt.Errorf("entry hash must be 64 hex characters, got %q", e.ContentHash)
	}
	if e.SizeBytes < 0 {
		return fmt.Errorf("entry has negative size %d", e.SizeBytes)
	}
	if _, err := time.Parse("2006-01-02", e.StoredAt); err != nil {
		return fmt.Errorf("entry stored_at must be YYYY-MM-DD: %w", err)
	}
	return nil
}

// UnknownHash marks entries recovered from a store listing where the
// original digest is unavailable. Such entries never satisfy a delta
// check, so the artifact re-verifies on the next run.
const UnknownHash = "unknown"

// Manifest is the durable record of artifact identities already
// transferred. It is a value type: mutation goes through WithEntry, which
// returns a new manifest, so concurrent readers never observe partial
// updates.
type Manifest struct {
	// SchemaVersion is the document schema version.
	SchemaVersion int `json:"schema_version"`
	// Revision increments on every durable commit.
	Revision int64 `json:"revision"`
	// LastUpdated is the timestamp of the last mutation.
	LastUpdated time.Time `json:"last_updated"`
	// Bottles maps artifact key -> entry.
	Bottles map[string]ManifestEntry `json:"bottles"`
}

// NewManifest returns an empty manifest at the current schema version.
// A missing manifest means "first run", never an error.
func NewManifest() *Manifest {
	return &Manifest{
		SchemaVersion: ManifestSchemaVersion,
		Bottles:       make(map[string]ManifestEntry),
	}
}

// Has reports whether key is recorded with exactly the given hash.
func (m *Manifest) Has(key, contentHash string) bool {
	entry, ok := m.Bottles[key]
	return ok && entry.ContentHash == contentHash
}

// WithEntry returns a new manifest value with the entry upserted and
// LastUpdated refreshed. The receiver is not modified. No I/O.
func (m *Manifest) WithEntry(key string, entry ManifestEntry, now time.Time) *Manifest {
	next := &Manifest{
		SchemaVersion: m.SchemaVersion,
		Revision:      m.Revision,
		LastUpdated:   now,
		Bottles:       make(map[string]ManifestEntry, len(m.Bottles)+1),
	}
	for k, v := range m.Bottles {
		next.Bottles[k] = v
	}
	next.Bottles[key] = entry
	return next
}

// Validate checks the document shape: required top-level fields and
// per-entry structural validity. A manifest that fails here is corrupt.
func (m *Manifest) Validate() error {
	if m.SchemaVersion != ManifestSchemaVersion {
		return fmt.Errorf("unsupported schema_version %d (want %d)", m.SchemaVersion, ManifestSchemaVersion)
	}
	if m.Revision < 0 {
		return fmt.Errorf("negative revision %d", m.Revision)
	}
	if m.Bottles == nil {
		return fmt.Errorf("missing bottles map")
	}
	for key, entry := range m.Bottles {
		if key == "" {
			return fmt.Errorf("empty bottle key")
		}
		if err := entry.Validate(); err != nil {
			return fmt.Errorf("bottle %q: %w", key, err)
		}
	}
	return nil
}
