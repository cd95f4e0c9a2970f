package manifest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pithecene-io/bottlesync/iox"
	"github.com/pithecene-io/bottlesync/types"
)

// maxSeedBytes bounds how much of an external seed document we will read.
const maxSeedBytes = 256 << 20

// SeedLocator names an external manifest source used to bootstrap a new
// deployment without re-downloading everything. Exactly one of URL or
// Bucket+Key must be set.
type SeedLocator struct {
	// URL is an HTTPS location serving the manifest document.
	URL string
	// Bucket and Key name an object in an alternate S3 location.
	Bucket string
	Key    string
}

// Validate checks that exactly one source is configured.
func (l *SeedLocator) Validate() error {
	hasURL := l.URL != ""
	hasObject := l.Bucket != "" && l.Key != ""
	if hasURL == hasObject {
		return errors.New("seed locator needs exactly one of url or bucket+key")
	}
	return nil
}

// Empty reports whether no external seed is configured.
func (l *SeedLocator) Empty() bool {
	return l.URL == "" && l.Bucket == "" && l.Key == ""
}

// Seeder loads a manifest from an external location. Seeding is an
// optimization, not a correctness requirement: callers fall back to an
// empty manifest on any error and log the discrepancy.
type Seeder struct {
	httpClient *http.Client
	s3Client   S3API
}

// NewSeeder creates a seeder. Either client may be nil if the
// corresponding locator kind is never used.
func NewSeeder(httpClient *http.Client, s3Client S3API) *Seeder {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Seeder{httpClient: httpClient, s3Client: s3Client}
}

// LoadExternal fetches and validates a manifest from the locator. The
// same structural validation as Store.Load applies. The returned
// manifest's revision is reset to zero: the seed bootstraps the default
// location, it does not carry the external location's commit history.
func (s *Seeder) LoadExternal(ctx context.Context, locator SeedLocator) (*types.Manifest, error) {
	if err := locator.Validate(); err != nil {
		return nil, err
	}

	var (
		data     []byte
		location string
		err      error
	)
	if locator.URL != "" {
		location = locator.URL
		data, err = s.fetchURL(ctx, locator.URL)
	} else {
		location = fmt.Sprintf("%s/%s", locator.Bucket, locator.Key)
		data, err = s.fetchObject(ctx, locator.Bucket, locator.Key)
	}
	if err != nil {
		return nil, err
	}

	m, err := decode(data, location)
	if err != nil {
		return nil, err
	}
	m.Revision = 0
	return m, nil
}

func (s *Seeder) fetchURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("seed %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("seed %s: %w", url, err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("seed %s: unexpected status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSeedBytes))
	if err != nil {
		return nil, fmt.Errorf("seed %s: %w", url, err)
	}
	return data, nil
}

func (s *Seeder) fetchObject(ctx context.Context, bucket, key string) ([]byte, error) {
	if s.s3Client == nil {
		return nil, errors.New("seed: no S3 client configured")
	}
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("seed %s/%s: %w", bucket, key, err)
	}
	defer iox.DiscardClose(out.Body)

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("seed %s/%s: %w", bucket, key, err)
	}
	return data, nil
}
