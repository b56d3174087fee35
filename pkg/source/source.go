package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
)

// Compression identifies the encoding wrapped around a log file
type Compression string

const (
	None Compression = "none"
	Gzip Compression = "gzip"
	Zstd Compression = "zstd"
)

const s3Scheme = "s3://"

// DefaultBufferSize is the size of the peekable buffer in front of the
// decompressed stream. It bounds how much of a file can be sniffed.
const DefaultBufferSize = 64 * 1024

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

var (
	ErrNoObjectClient = errors.New("no object storage client configured")
	ErrInvalidURL     = errors.New("invalid object location")
)

// Source is an open, decompressed and buffered simulation log
type Source struct {
	Name        string
	Compression Compression

	reader  *bufio.Reader
	closers []func() error
}

// Read implements io.Reader over the decompressed content
func (s *Source) Read(p []byte) (int, error) {
	return s.reader.Read(p)
}

// Peek returns the next n decompressed bytes without consuming them
func (s *Source) Peek(n int) ([]byte, error) {
	return s.reader.Peek(n)
}

// Buffered exposes the underlying buffered reader
func (s *Source) Buffered() *bufio.Reader {
	return s.reader
}

// Close releases decompressors first, then the raw stream
func (s *Source) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Opener opens log locations: local paths or s3://bucket/key objects
type Opener struct {
	logger     zerolog.Logger
	objects    ObjectAPI
	bufferSize int
}

// NewOpener creates an Opener. objects may be nil when no s3:// location
// is ever opened.
func NewOpener(objects ObjectAPI, logger zerolog.Logger) *Opener {
	return &Opener{
		logger:     logger,
		objects:    objects,
		bufferSize: DefaultBufferSize,
	}
}

// Open opens location and transparently removes gzip or zstd compression
func (o *Opener) Open(ctx context.Context, location string) (*Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if IsObjectURL(location) {
		return o.openObject(ctx, location)
	}

	f, err := os.Open(location)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", location, err)
	}
	src, err := NewSource(location, f, o.bufferSize)
	if err != nil {
		f.Close()
		return nil, err
	}
	src.closers = append([]func() error{f.Close}, src.closers...)
	o.logger.Debug().Str("location", location).Str("compression", string(src.Compression)).Msg("opened log file")
	return src, nil
}

func (o *Opener) openObject(ctx context.Context, location string) (*Source, error) {
	if o.objects == nil {
		return nil, ErrNoObjectClient
	}
	bucket, key, err := ParseObjectURL(location)
	if err != nil {
		return nil, err
	}

	out, err := o.objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", location, err)
	}

	src, err := NewSource(location, out.Body, o.bufferSize)
	if err != nil {
		out.Body.Close()
		return nil, err
	}
	src.closers = append([]func() error{out.Body.Close}, src.closers...)
	o.logger.Debug().Str("bucket", bucket).Str("key", key).Str("compression", string(src.Compression)).Msg("opened log object")
	return src, nil
}

// IsObjectURL reports whether location names an S3 object
func IsObjectURL(location string) bool {
	return strings.HasPrefix(location, s3Scheme)
}

// ParseObjectURL splits s3://bucket/key
func ParseObjectURL(location string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(location, s3Scheme)
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidURL, location)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidURL, location)
	}
	return bucket, key, nil
}

// NewSource wraps an already open raw stream. Closing the returned Source
// does not close r.
func NewSource(name string, r io.Reader, bufferSize int) (*Source, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	raw := bufio.NewReader(r)
	head, err := raw.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	src := &Source{Name: name, Compression: Detect(head)}

	switch src.Compression {
	case Gzip:
		zr, err := gzip.NewReader(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream %s: %w", name, err)
		}
		src.reader = bufio.NewReaderSize(zr, bufferSize)
		src.closers = append(src.closers, zr.Close)
	case Zstd:
		zr, err := zstd.NewReader(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream %s: %w", name, err)
		}
		src.reader = bufio.NewReaderSize(zr, bufferSize)
		src.closers = append(src.closers, func() error {
			zr.Close()
			return nil
		})
	default:
		src.reader = bufio.NewReaderSize(raw, bufferSize)
	}

	return src, nil
}

// Detect classifies a stream by its leading magic bytes
func Detect(head []byte) Compression {
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return Gzip
	case bytes.HasPrefix(head, zstdMagic):
		return Zstd
	default:
		return None
	}
}
