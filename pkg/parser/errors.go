package parser

import (
	"errors"
	"fmt"
)

// Per-file fatal errors.
var (
	ErrFormatUnrecognized = errors.New("simulation log format not recognized")
	ErrUnsupportedVersion = errors.New("unsupported simulation log version")
	ErrMalformedRecord    = errors.New("malformed record")
	ErrTruncatedStream    = errors.New("record truncated at end of input")
)

// ErrTooManyInvalidRecords aborts a binary parse once isolated corruption
// turns systemic.
var ErrTooManyInvalidRecords = fmt.Errorf("too many invalid records: %w", ErrMalformedRecord)

// VersionError names a recognized family whose version has no parser.
type VersionError struct {
	Family  Family
	Columns int
	Version string
}

func (e *VersionError) Error() string {
	if e.Family == Text {
		return fmt.Sprintf("%s: %s %d-column version %q", ErrUnsupportedVersion, e.Family, e.Columns, e.Version)
	}
	return fmt.Sprintf("%s: %s version %q", ErrUnsupportedVersion, e.Family, e.Version)
}

func (e *VersionError) Unwrap() error {
	return ErrUnsupportedVersion
}

// LineError locates a text parse failure.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// RecordError locates a binary decode failure by record type and stream
// offset of its discriminant byte.
type RecordError struct {
	Type   RecordType
	Offset int64
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s record at offset %d: %v", e.Type, e.Offset, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
