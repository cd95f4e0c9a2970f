package types

import (
	"strings"
	"testing"
)

const goodHash = "0000000000000000000000000000000000000000000000000000000000000001"

func validArtifact() Artifact {
	return Artifact{
		Name:        "wget",
		Version:     "1.24.5",
		Platform:    "arm64_sonoma",
		DownloadURL: "https://example.com/wget.tar.gz",
		ContentHash: goodHash,
		SizeBytes:   100,
	}
}

func TestArtifact_Key(t *testing.T) {
	a := validArtifact()
	if got := a.Key(); got != "wget-1.24.5-arm64_sonoma" {
		t.Errorf("Key() = %q", got)
	}
}

func TestArtifact_Filename(t *testing.T) {
	a := validArtifact()
	if got := a.Filename(); got != "wget-1.24.5.arm64_sonoma.bottle.tar.gz" {
		t.Errorf("Filename() = %q", got)
	}
}

func TestArtifact_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Artifact)
		wantErr string
	}{
		{"valid", func(*Artifact) {}, ""},
		{"versioned name", func(a *Artifact) { a.Name = "openssl@3" }, ""},
		{"empty name", func(a *Artifact) { a.Name = "" }, "name is empty"},
		{"bad name chars", func(a *Artifact) { a.Name = "wget/../../etc" }, "invalid characters"},
		{"empty version", func(a *Artifact) { a.Version = "" }, "version is empty"},
		{"empty platform", func(a *Artifact) { a.Platform = "" }, "platform is empty"},
		{"empty url", func(a *Artifact) { a.DownloadURL = "" }, "download URL is empty"},
		{"short hash", func(a *Artifact) { a.ContentHash = "abc123" }, "64 hex characters"},
		{"non-hex hash", func(a *Artifact) { a.ContentHash = strings.Repeat("z", 64) }, "64 hex characters"},
		{"negative size", func(a *Artifact) { a.SizeBytes = -1 }, "negative size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validArtifact()
			tt.mutate(&a)
			err := a.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
