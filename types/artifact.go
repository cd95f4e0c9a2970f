// Package types defines core domain types for the bottlesync runtime.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"regexp"
)

// hashPattern matches a lowercase/uppercase hex SHA-256 digest.
var hashPattern = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)

// namePattern constrains artifact names to the character set the upstream
// index actually uses.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9@._+-]+$`)

// Artifact is a single downloadable bottle build for one platform/version.
type Artifact struct {
	// Name is the formula name.
	Name string `json:"name"`
	// Version is the stable version string.
	Version string `json:"version"`
	// Platform is the bottle platform tag (e.g. arm64_sonoma).
	Platform string `json:"platform"`
	// DownloadURL is the bottle download location.
	DownloadURL string `json:"download_url"`
	// ContentHash is the expected SHA-256 digest, hex encoded.
	ContentHash string `json:"content_hash"`
	// SizeBytes is the advertised bottle size.
	SizeBytes int64 `json:"size_bytes"`
}

// Key returns the stable manifest key for this artifact:
// "{name}-{version}-{platform}". The tuple is unique within one catalog
// snapshot, so the key is collision-free.
func (a *Artifact) Key() string {
	return fmt.Sprintf("%s-%s-%s", a.Name, a.Version, a.Platform)
}

// Filename returns the canonical stored filename for this artifact:
// "{name}-{version}.{platform}.bottle.tar.gz".
func (a *Artifact) Filename() string {
	return fmt.Sprintf("%s-%s.%s.bottle.tar.gz", a.Name, a.Version, a.Platform)
}

// Validate checks structural validity of the artifact.
func (a *Artifact) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("artifact name is empty")
	}
	if !namePattern.MatchString(a.Name) {
		return fmt.Errorf("artifact name %q contains invalid characters", a.Name)
	}
	if a.Version == "" {
		return fmt.Errorf("artifact %s: version is empty", a.Name)
	}
	if a.Platform == "" {
		return fmt.Errorf("artifact %s: platform is empty", a.Name)
	}
	if a.DownloadURL == "" {
		return fmt.Errorf("artifact %s: download URL is empty", a.Key())
	}
	if !hashPattern.MatchString(a.ContentHash) {
		return fmt.Errorf("artifact %s: content hash must be 64 hex characters", a.Key())
	}
	if a.SizeBytes < 0 {
		return fmt.Errorf("artifact %s: negative size %d", a.Key(), a.SizeBytes)
	}
	return nil
}
