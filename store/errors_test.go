package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"enoent", errors.New("open /x: no such file or directory"), ErrNotFound},
		{"s3 404", errors.New("NoSuchKey: the specified key does not exist"), ErrNotFound},
		{"enospc", errors.New("write /x: no space left on device"), ErrDiskFull},
		{"timeout message", errors.New("context deadline exceeded"), ErrTimeout},
		{"slowdown", errors.New("SlowDown: please reduce request rate"), ErrThrottled},
		{"creds", errors.New("NoCredentialProviders: no valid providers"), ErrAuth},
		{"denied", errors.New("AccessDenied: not authorized"), ErrAccessDenied},
		{"refused", errors.New("dial tcp 10.0.0.1:443: connection refused"), ErrNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := wrap(tt.err, "put", "some/key")
			if !errors.Is(wrapped, tt.want) {
				t.Errorf("classify(%v) != %v", tt.err, tt.want)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	transient := []error{ErrTimeout, ErrThrottled, ErrNetwork}
	for _, kind := range transient {
		err := &StorageError{Kind: kind, Op: "put"}
		if !IsTransient(err) {
			t.Errorf("%v should be transient", kind)
		}
	}

	terminal := []error{ErrNotFound, ErrAuth, ErrAccessDenied, ErrDiskFull}
	for _, kind := range terminal {
		err := &StorageError{Kind: kind, Op: "put"}
		if IsTransient(err) {
			t.Errorf("%v should be terminal", kind)
		}
	}
}

func TestStorageError_PreservesChain(t *testing.T) {
	inner := errors.New("write /x: no space left on device")
	wrapped := wrap(fmt.Errorf("store artifact: %w", inner), "put", "2026-08-24/a.bottle.tar.gz")

	if !errors.Is(wrapped, ErrDiskFull) {
		t.Error("classification lost")
	}
	if !errors.Is(wrapped, inner) {
		t.Error("underlying error lost from chain")
	}

	var se *StorageError
	if !errors.As(wrapped, &se) {
		t.Fatal("not a *StorageError")
	}
	if se.Op != "put" || se.Key != "2026-08-24/a.bottle.tar.gz" {
		t.Errorf("op/key = %s/%s", se.Op, se.Key)
	}
}

func TestWrap_NilIsNil(t *testing.T) {
	if wrap(nil, "put", "k") != nil {
		t.Error("wrap(nil) must be nil")
	}
}
