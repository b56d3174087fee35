package source

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const content = "RUN\tsim\tbasic\t1000\t \t3.9.5\n"

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zstded(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestOpenLocalFiles(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		compression Compression
	}{
		{"plain", []byte(content), None},
		{"gzip", gzipped(t, []byte(content)), Gzip},
		{"zstd", zstded(t, []byte(content)), Zstd},
	}

	opener := NewOpener(nil, zerolog.Nop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "simulation.log", tt.data)

			src, err := opener.Open(context.Background(), path)
			require.NoError(t, err)
			defer src.Close()

			assert.Equal(t, tt.compression, src.Compression)

			head, err := src.Peek(3)
			require.NoError(t, err)
			assert.Equal(t, "RUN", string(head))

			all, err := io.ReadAll(src)
			require.NoError(t, err)
			assert.Equal(t, content, string(all))
		})
	}
}

func TestOpenEmptyFile(t *testing.T) {
	path := writeFile(t, "empty.log", nil)

	src, err := NewOpener(nil, zerolog.Nop()).Open(context.Background(), path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, None, src.Compression)
	_, err = src.Peek(1)
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := NewOpener(nil, zerolog.Nop()).Open(context.Background(), filepath.Join(t.TempDir(), "nope.log"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewOpener(nil, zerolog.Nop()).Open(ctx, "simulation.log")
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeObjects struct {
	objects map[string][]byte
	gets    int
}

func (f *fakeObjects) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gets++
	data, ok := f.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, os.ErrNotExist
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestOpenObject(t *testing.T) {
	objects := &fakeObjects{objects: map[string][]byte{
		"runs/2024/simulation.log.gz": gzipped(t, []byte(content)),
	}}
	opener := NewOpener(objects, zerolog.Nop())

	src, err := opener.Open(context.Background(), "s3://runs/2024/simulation.log.gz")
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, Gzip, src.Compression)
	all, err := io.ReadAll(src)
	require.NoError(t, err)
	assert.Equal(t, content, string(all))
	assert.Equal(t, 1, objects.gets)

	_, err = opener.Open(context.Background(), "s3://runs/missing.log")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpenObjectWithoutClient(t *testing.T) {
	_, err := NewOpener(nil, zerolog.Nop()).Open(context.Background(), "s3://bucket/key")
	assert.ErrorIs(t, err, ErrNoObjectClient)
}

func TestParseObjectURL(t *testing.T) {
	bucket, key, err := ParseObjectURL("s3://bucket/a/b/simulation.log")
	require.NoError(t, err)
	assert.Equal(t, "bucket", bucket)
	assert.Equal(t, "a/b/simulation.log", key)

	for _, bad := range []string{"s3://bucket", "s3:///key", "s3://bucket/", "/tmp/file"} {
		_, _, err := ParseObjectURL(bad)
		assert.ErrorIs(t, err, ErrInvalidURL, bad)
	}

	assert.True(t, IsObjectURL("s3://bucket/key"))
	assert.False(t, IsObjectURL("/data/s3://bucket/key"))
}
