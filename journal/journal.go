// Package journal implements the append-only run journal.
//
// During a sync run the engine appends one record per artifact outcome
// plus checkpoint and lifecycle marks. Records are length-prefixed
// msgpack frames, so a journal truncated by a crash decodes cleanly up
// to the last complete record. The inspect command replays journals to
// reconstruct what a run did.
package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame size constants.
const (
	// MaxRecordSize is the maximum encoded record size (1 MiB),
	// including the length prefix.
	MaxRecordSize = 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxRecordSize - 4 bytes).
	MaxPayloadSize = MaxRecordSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// Record type discriminants.
const (
	// RecordRunStarted marks the start of a run.
	RecordRunStarted = "run_started"
	// RecordOutcome records a single artifact outcome.
	RecordOutcome = "artifact_outcome"
	// RecordCheckpoint marks a durable manifest commit.
	RecordCheckpoint = "checkpoint"
	// RecordRunFinished marks the end of a run.
	RecordRunFinished = "run_finished"
)

// Outcome statuses carried by RecordOutcome records.
const (
	StatusSucceeded   = "succeeded"
	StatusFailed      = "failed"
	StatusQuarantined = "quarantined"
)

// Record is a single journal entry. Field presence depends on Type:
// outcome records carry the artifact fields, checkpoint records carry
// the manifest revision, lifecycle records carry counts.
type Record struct {
	Type      string `msgpack:"type"`
	RunID     string `msgpack:"run_id"`
	Timestamp string `msgpack:"timestamp"` // ISO 8601

	// Outcome fields
	ArtifactKey string `msgpack:"artifact_key,omitempty"`
	Status      string `msgpack:"status,omitempty"`
	Reason      string `msgpack:"reason,omitempty"`
	Detail      string `msgpack:"detail,omitempty"`
	Bytes       int64  `msgpack:"bytes,omitempty"`
	Attempts    int    `msgpack:"attempts,omitempty"`

	// Checkpoint fields
	ManifestRevision int64 `msgpack:"manifest_revision,omitempty"`
	EntriesCommitted int   `msgpack:"entries_committed,omitempty"`

	// Lifecycle fields
	Planned    int  `msgpack:"planned,omitempty"`
	Succeeded  int  `msgpack:"succeeded,omitempty"`
	Failed     int  `msgpack:"failed,omitempty"`
	Incomplete bool `msgpack:"incomplete,omitempty"`
}

// RecordErrorKind classifies record decoding errors.
type RecordErrorKind int

const (
	// RecordErrorPartial indicates a truncated record (crash tail).
	RecordErrorPartial RecordErrorKind = iota
	// RecordErrorTooLarge indicates a record exceeding MaxRecordSize.
	RecordErrorTooLarge
	// RecordErrorDecode indicates a msgpack decoding error.
	RecordErrorDecode
)

// RecordError represents a record decoding error.
type RecordError struct {
	Kind RecordErrorKind
	Msg  string
	Err  error
}

func (e *RecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// IsTruncated reports whether err marks a partial record, the expected
// tail of a journal whose run crashed mid-write.
func IsTruncated(err error) bool {
	var recErr *RecordError
	if errors.As(err, &recErr) {
		return recErr.Kind == RecordErrorPartial
	}
	return false
}

// Writer appends length-prefixed msgpack records to a stream.
type Writer struct {
	w io.Writer
}

// NewWriter creates a journal writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Append encodes and writes a single record.
// The record is written atomically with respect to the stream: length
// prefix and payload in one Write call.
func (jw *Writer) Append(rec *Record) error {
	payload, err := msgpack.Marshal(rec)
	if err != nil {
		return &RecordError{Kind: RecordErrorDecode, Msg: "encode record", Err: err}
	}
	if len(payload) > MaxPayloadSize {
		return &RecordError{
			Kind: RecordErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}

	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)

	if _, err := jw.w.Write(buf); err != nil {
		return fmt.Errorf("journal write: %w", err)
	}
	return nil
}

// Reader decodes length-prefixed msgpack records from a stream.
type Reader struct {
	r io.Reader
}

// NewReader creates a journal reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next reads a single record from the stream.
//
// Errors:
//   - io.EOF: stream ended cleanly (no more records)
//   - *RecordError with Kind=RecordErrorPartial: truncated record
//   - *RecordError with Kind=RecordErrorTooLarge: record exceeds limit
//   - *RecordError with Kind=RecordErrorDecode: malformed payload
func (jr *Reader) Next() (*Record, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(jr.r, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		// Partial read of length prefix
		return nil, &RecordError{
			Kind: RecordErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &RecordError{
			Kind: RecordErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(jr.r, payload); err != nil {
		return nil, &RecordError{
			Kind: RecordErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	var rec Record
	if err := msgpack.Unmarshal(payload, &rec); err != nil {
		return nil, &RecordError{
			Kind: RecordErrorDecode,
			Msg:  "failed to decode record",
			Err:  err,
		}
	}
	return &rec, nil
}

// ReadAll replays every complete record in the stream. A truncated tail
// is not an error: the records before it are returned along with
// truncated=true.
func ReadAll(r io.Reader) (records []*Record, truncated bool, err error) {
	jr := NewReader(r)
	for {
		rec, err := jr.Next()
		if err == io.EOF {
			return records, false, nil
		}
		if IsTruncated(err) {
			return records, true, nil
		}
		if err != nil {
			return records, false, err
		}
		records = append(records, rec)
	}
}
