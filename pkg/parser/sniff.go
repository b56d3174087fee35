package parser

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Family is the physical encoding of a simulation log
type Family string

const (
	Text   Family = "text"
	Binary Family = "binary"
)

// Header is what the sniffer learned from the first logical record
type Header struct {
	Family  Family `json:"family"`
	Version string `json:"version"`
	Columns int    `json:"columns,omitempty"` // text only
}

// Peeker reads ahead without consuming
type Peeker interface {
	Peek(n int) ([]byte, error)
}

const (
	sniffLimit       = 4096
	maxVersionLength = 100
)

var versionPattern = regexp.MustCompile(`^\d.*\.\d.*`)

// Sniff classifies a log by its first record without consuming input.
func Sniff(p Peeker) (Header, error) {
	head, err := p.Peek(sniffLimit)
	if err != nil && !errors.Is(err, io.EOF) {
		return Header{}, fmt.Errorf("%w: %v", ErrFormatUnrecognized, err)
	}
	if len(head) == 0 {
		return Header{}, fmt.Errorf("%w: empty input", ErrFormatUnrecognized)
	}

	if h, ok := sniffText(head); ok {
		return h, nil
	}
	if h, ok := sniffBinary(head); ok {
		return h, nil
	}
	return Header{}, ErrFormatUnrecognized
}

func sniffText(head []byte) (Header, bool) {
	line := head
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		line = head[:i]
	}
	if !utf8.Valid(line) {
		return Header{}, false
	}

	fields := splitLine(string(line))
	if len(fields) < 2 {
		return Header{}, false
	}
	if fields[0] != tagRun && (len(fields) < 3 || fields[2] != tagRun) {
		return Header{}, false
	}

	h := Header{Family: Text, Columns: len(fields)}
	switch len(fields) {
	case 6:
		h.Version = fields[5]
	case 7:
		h.Version = fields[6]
	default:
		return Header{}, false
	}
	return h, true
}

// sniffBinary reads the RUN discriminant and the generator version string
// that opens every binary log, including the version's coder byte.
func sniffBinary(head []byte) (Header, bool) {
	if len(head) < 5 || head[0] != byte(RunType) {
		return Header{}, false
	}
	n := int32(binary.BigEndian.Uint32(head[1:5]))
	if n <= 0 || n > maxVersionLength || len(head) < 6+int(n) {
		return Header{}, false
	}
	version := string(head[5 : 5+n])
	if !versionPattern.MatchString(version) {
		return Header{}, false
	}
	return Header{Family: Binary, Version: version}, true
}

func splitLine(line string) []string {
	return strings.Split(strings.TrimSuffix(line, "\r"), "\t")
}
