package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/pithecene-io/bottlesync/iox"
	"github.com/pithecene-io/bottlesync/types"
)

// S3API is the narrow S3 surface the store needs. *s3.Client satisfies it;
// tests substitute a stub.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
}

// S3Store persists the manifest as a single S3 object. The version token
// is the object ETag; Commit uses conditional PUT (If-Match / If-None-Match)
// so the replace is atomic and racing writers get a precondition failure
// instead of a silent overwrite. Bucket versioning gives rollback of a bad
// write; this store never deletes prior versions.
type S3Store struct {
	client S3API
	bucket string
	key    string
}

// NewS3Store creates an S3-backed manifest store.
func NewS3Store(client S3API, bucket, key string) *S3Store {
	return &S3Store{client: client, bucket: bucket, key: key}
}

// Location returns "bucket/key" for logs.
func (s *S3Store) Location() string {
	return fmt.Sprintf("%s/%s", s.bucket, s.key)
}

// Load fetches and validates the manifest object.
func (s *S3Store) Load(ctx context.Context) (*types.Manifest, VersionToken, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return types.NewManifest(), TokenAbsent, nil
		}
		return nil, TokenAbsent, fmt.Errorf("load manifest %s: %w", s.Location(), err)
	}
	defer iox.DiscardClose(out.Body)

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, TokenAbsent, fmt.Errorf("load manifest %s: %w", s.Location(), err)
	}

	m, err := decode(data, s.Location())
	if err != nil {
		var ce *CorruptError
		if errors.As(err, &ce) {
			ce.Token = VersionToken(aws.ToString(out.ETag))
		}
		return nil, TokenAbsent, err
	}
	return m, VersionToken(aws.ToString(out.ETag)), nil
}

// Commit performs a conditional PUT of the full document. TokenAbsent
// maps to If-None-Match:* (create-only); any other token maps to
// If-Match. A precondition failure means another run committed after our
// load and surfaces as ErrConcurrentModification.
func (s *S3Store) Commit(ctx context.Context, m *types.Manifest, expect VersionToken) (VersionToken, error) {
	data, err := encode(m)
	if err != nil {
		return TokenAbsent, err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}
	if expect == TokenAbsent {
		input.IfNoneMatch = aws.String("*")
	} else {
		input.IfMatch = aws.String(string(expect))
	}

	out, err := s.client.PutObject(ctx, input)
	if err != nil {
		if isPreconditionFailed(err) {
			return TokenAbsent, fmt.Errorf("commit %s: %w", s.Location(), ErrConcurrentModification)
		}
		return TokenAbsent, fmt.Errorf("commit %s: %w", s.Location(), err)
	}

	return VersionToken(aws.ToString(out.ETag)), nil
}

// Backup copies the current manifest object to a timestamped key under
// backups/. A missing source object is not an error.
func (s *S3Store) Backup(ctx context.Context) error {
	stamp := time.Now().UTC().Format("20060102_150405")
	backupKey := fmt.Sprintf("backups/%s.%s", s.key, stamp)

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(backupKey),
		CopySource: aws.String(fmt.Sprintf("%s/%s", s.bucket, s.key)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil
		}
		return fmt.Errorf("backup %s: %w", s.Location(), err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	var noKey *s3types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey"
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}

// Verify S3Store implements the Store interface.
var _ Store = (*S3Store)(nil)
