package manifest

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const seedDoc = `{
  "schema_version": 1,
  "revision": 42,
  "last_updated": "2026-08-24T00:00:00Z",
  "bottles": {
    "wget-1.24.5-arm64_sonoma": {
      "sha256": "0000000000000000000000000000000000000000000000000000000000000001",
      "size_bytes": 100,
      "stored_at": "2026-08-20",
      "first_synced_at": "2026-08-20T00:00:00Z"
    }
  }
}`

func TestSeedLocator_Validate(t *testing.T) {
	tests := []struct {
		name    string
		locator SeedLocator
		wantErr bool
	}{
		{"url only", SeedLocator{URL: "https://example.com/m.json"}, false},
		{"bucket and key", SeedLocator{Bucket: "b", Key: "k"}, false},
		{"nothing", SeedLocator{}, true},
		{"both", SeedLocator{URL: "https://example.com/m.json", Bucket: "b", Key: "k"}, true},
		{"bucket without key", SeedLocator{Bucket: "b"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.locator.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSeeder_LoadExternalFromURL(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(seedDoc))
	}))
	defer ts.Close()

	seeder := NewSeeder(ts.Client(), nil)
	m, err := seeder.LoadExternal(context.Background(), SeedLocator{URL: ts.URL})
	if err != nil {
		t.Fatalf("load external: %v", err)
	}
	if len(m.Bottles) != 1 {
		t.Errorf("entries = %d, want 1", len(m.Bottles))
	}
	// The seed bootstraps the default location; the external revision
	// history does not carry over
	if m.Revision != 0 {
		t.Errorf("revision = %d, want reset to 0", m.Revision)
	}
}

func TestSeeder_LoadExternalFromObject(t *testing.T) {
	stub := &stubS3{
		get: func(in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
			if aws.ToString(in.Bucket) != "seed-bucket" || aws.ToString(in.Key) != "seed.json" {
				t.Errorf("unexpected object request %s/%s", aws.ToString(in.Bucket), aws.ToString(in.Key))
			}
			return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte(seedDoc)))}, nil
		},
	}

	seeder := NewSeeder(nil, stub)
	m, err := seeder.LoadExternal(context.Background(), SeedLocator{Bucket: "seed-bucket", Key: "seed.json"})
	if err != nil {
		t.Fatalf("load external: %v", err)
	}
	if len(m.Bottles) != 1 {
		t.Errorf("entries = %d, want 1", len(m.Bottles))
	}
}

func TestSeeder_InvalidSeedRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"schema_version": 99}`))
	}))
	defer ts.Close()

	seeder := NewSeeder(ts.Client(), nil)
	if _, err := seeder.LoadExternal(context.Background(), SeedLocator{URL: ts.URL}); err == nil {
		t.Fatal("expected error for invalid seed document")
	}
}

func TestSeeder_HTTPErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	seeder := NewSeeder(ts.Client(), nil)
	if _, err := seeder.LoadExternal(context.Background(), SeedLocator{URL: ts.URL}); err == nil {
		t.Fatal("expected error for non-200 seed response")
	}
}

func TestSeeder_ObjectWithoutClient(t *testing.T) {
	seeder := NewSeeder(nil, nil)
	if _, err := seeder.LoadExternal(context.Background(), SeedLocator{Bucket: "b", Key: "k"}); err == nil {
		t.Fatal("expected error when no S3 client is configured")
	}
}
