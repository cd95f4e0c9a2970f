package manifest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/pithecene-io/bottlesync/types"
)

// stubS3 implements S3API with function fields.
type stubS3 struct {
	get  func(*s3.GetObjectInput) (*s3.GetObjectOutput, error)
	put  func(*s3.PutObjectInput) (*s3.PutObjectOutput, error)
	copy func(*s3.CopyObjectInput) (*s3.CopyObjectOutput, error)
}

func (s *stubS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return s.get(in)
}

func (s *stubS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return s.put(in)
}

func (s *stubS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	return s.copy(in)
}

func TestS3Store_LoadAbsent(t *testing.T) {
	stub := &stubS3{
		get: func(*s3.GetObjectInput) (*s3.GetObjectOutput, error) {
			return nil, &s3types.NoSuchKey{}
		},
	}
	s := NewS3Store(stub, "bottles", "manifest.json")

	m, token, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load absent: %v", err)
	}
	if token != TokenAbsent {
		t.Errorf("token = %q, want TokenAbsent", token)
	}
	if len(m.Bottles) != 0 {
		t.Errorf("absent manifest not empty")
	}
}

func TestS3Store_LoadReturnsETagToken(t *testing.T) {
	doc := []byte(`{"schema_version": 1, "revision": 3, "last_updated": "2026-08-24T00:00:00Z", "bottles": {}}`)
	stub := &stubS3{
		get: func(*s3.GetObjectInput) (*s3.GetObjectOutput, error) {
			return &s3.GetObjectOutput{
				Body: io.NopCloser(bytes.NewReader(doc)),
				ETag: aws.String(`"etag-1"`),
			}, nil
		},
	}
	s := NewS3Store(stub, "bottles", "manifest.json")

	m, token, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if token != VersionToken(`"etag-1"`) {
		t.Errorf("token = %q, want ETag", token)
	}
	if m.Revision != 3 {
		t.Errorf("revision = %d, want 3", m.Revision)
	}
}

func TestS3Store_LoadCorruptCarriesETag(t *testing.T) {
	stub := &stubS3{
		get: func(*s3.GetObjectInput) (*s3.GetObjectOutput, error) {
			return &s3.GetObjectOutput{
				Body: io.NopCloser(bytes.NewReader([]byte("not json"))),
				ETag: aws.String(`"etag-bad"`),
			}, nil
		},
	}
	s := NewS3Store(stub, "bottles", "manifest.json")

	_, _, err := s.Load(context.Background())
	var ce *CorruptError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *CorruptError", err)
	}
	if ce.Token != VersionToken(`"etag-bad"`) {
		t.Errorf("corrupt token = %q, want the object ETag", ce.Token)
	}
}

func TestS3Store_CommitCreateUsesIfNoneMatch(t *testing.T) {
	var captured *s3.PutObjectInput
	stub := &stubS3{
		put: func(in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
			captured = in
			return &s3.PutObjectOutput{ETag: aws.String(`"etag-new"`)}, nil
		},
	}
	s := NewS3Store(stub, "bottles", "manifest.json")

	token, err := s.Commit(context.Background(), types.NewManifest(), TokenAbsent)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if token != VersionToken(`"etag-new"`) {
		t.Errorf("token = %q", token)
	}
	if aws.ToString(captured.IfNoneMatch) != "*" {
		t.Error("create commit must set If-None-Match: *")
	}
	if captured.IfMatch != nil {
		t.Error("create commit must not set If-Match")
	}
}

func TestS3Store_CommitReplaceUsesIfMatch(t *testing.T) {
	var captured *s3.PutObjectInput
	stub := &stubS3{
		put: func(in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
			captured = in
			return &s3.PutObjectOutput{ETag: aws.String(`"etag-2"`)}, nil
		},
	}
	s := NewS3Store(stub, "bottles", "manifest.json")

	if _, err := s.Commit(context.Background(), types.NewManifest(), VersionToken(`"etag-1"`)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if aws.ToString(captured.IfMatch) != `"etag-1"` {
		t.Errorf("If-Match = %q, want the expected token", aws.ToString(captured.IfMatch))
	}
}

func TestS3Store_PreconditionFailureIsConflict(t *testing.T) {
	stub := &stubS3{
		put: func(*s3.PutObjectInput) (*s3.PutObjectOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "PreconditionFailed"}
		},
	}
	s := NewS3Store(stub, "bottles", "manifest.json")

	_, err := s.Commit(context.Background(), types.NewManifest(), VersionToken(`"etag-1"`))
	if !errors.Is(err, ErrConcurrentModification) {
		t.Errorf("err = %v, want ErrConcurrentModification", err)
	}
}

func TestS3Store_BackupCopiesToTimestampedKey(t *testing.T) {
	var captured *s3.CopyObjectInput
	stub := &stubS3{
		copy: func(in *s3.CopyObjectInput) (*s3.CopyObjectOutput, error) {
			captured = in
			return &s3.CopyObjectOutput{}, nil
		},
	}
	s := NewS3Store(stub, "bottles", "manifest.json")

	if err := s.Backup(context.Background()); err != nil {
		t.Fatalf("backup: %v", err)
	}
	key := aws.ToString(captured.Key)
	if len(key) == 0 || key[:8] != "backups/" {
		t.Errorf("backup key = %q, want backups/ prefix", key)
	}
	if aws.ToString(captured.CopySource) != "bottles/manifest.json" {
		t.Errorf("copy source = %q", aws.ToString(captured.CopySource))
	}
}

func TestS3Store_BackupMissingIsNoOp(t *testing.T) {
	stub := &stubS3{
		copy: func(*s3.CopyObjectInput) (*s3.CopyObjectOutput, error) {
			return nil, &s3types.NoSuchKey{}
		},
	}
	s := NewS3Store(stub, "bottles", "manifest.json")

	if err := s.Backup(context.Background()); err != nil {
		t.Errorf("backup of missing object must not fail: %v", err)
	}
}
