package sink

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
)

func randomBytes(t *testing.T, n int) []byte {
	data := make([]byte, n)
	_, err := io.ReadFull(rand.Reader, data)
	assert.NoErrorf(t, err, "fill random data error: %v", err)
	return data
}

// writeAll writes data to w in chunks of the given sizes, cycling through sizes until data is exhausted.
func writeAll(t *testing.T, w Writer, data []byte, sizes ...int) {
	ctx := context.Background()
	assert.NoError(t, w.Init(ctx))

	for i := 0; len(data) > 0; i++ {
		n := min(sizes[i%len(sizes)], len(data))
		assert.NoError(t, w.WriteChunk(ctx, data[:n]))
		data = data[n:]
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		name     string
		encoding string
		data     []byte
		want     string
	}{
		{name: "default", data: []byte("hello, world"), want: "hello, world"},
		{name: "utf-8", encoding: "utf-8", data: []byte("héllo"), want: "héllo"},
		{name: "windows-1252", encoding: "windows-1252", data: []byte{'c', 0xe9}, want: "cé"},
		{name: "empty", data: []byte{}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewText(tt.encoding)
			writeAll(t, s, tt.data, 1, 2)

			got, err := s.Finalize(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestText_UnknownEncoding(t *testing.T) {
	s := NewText("no-such-charset")
	writeAll(t, s, []byte("abc"), 3)

	_, err := s.Finalize(context.Background())
	var we *WriteError
	assert.ErrorAs(t, err, &we)
}

func TestDataURI(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3, 4, 5, 100, 1001} {
		data := randomBytes(t, n)
		want := "data:application/zip;base64," + base64.StdEncoding.EncodeToString(data)

		for _, sizes := range [][]int{{1}, {2}, {3}, {1, 2, 4}, {7}, {n + 1}} {
			s := NewDataURI("application/zip")
			writeAll(t, s, data, sizes...)

			got, err := s.Finalize(context.Background())
			assert.NoError(t, err)
			assert.Equalf(t, want, got, "n=%d, sizes=%v", n, sizes)
		}
	}
}

func TestBlob(t *testing.T) {
	data := randomBytes(t, 4096)

	s := NewBlob("application/zip")
	writeAll(t, s, data, 1000, 1, 3)
	assert.Equal(t, len(data), s.Len())

	got, err := s.Finalize(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, "application/zip", s.ContentType)
}

type failingWriter struct {
	n int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n+len(p) > 10 {
		return 0, errors.New("disk full")
	}

	w.n += len(p)
	return len(p), nil
}

func TestStream(t *testing.T) {
	data := randomBytes(t, 1234)

	var buf bytes.Buffer
	s := NewStream(&buf)
	writeAll(t, s, data, 100)

	n, err := s.Finalize(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, data, buf.Bytes())

	s = NewStream(&failingWriter{})
	assert.NoError(t, s.WriteChunk(context.Background(), []byte("0123456789")))
	err = s.WriteChunk(context.Background(), []byte("a"))
	var we *WriteError
	assert.ErrorAs(t, err, &we)
	assert.EqualError(t, errors.Unwrap(err), "disk full")
}

// testUploadAPIClient only supports PutObject which is enough for objects smaller than manager.DefaultUploadPartSize.
type testUploadAPIClient struct {
	manager.UploadAPIClient

	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func (c *testUploadAPIClient) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if c.err != nil {
		return nil, c.err
	}

	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[aws.ToString(input.Bucket)+"/"+aws.ToString(input.Key)] = data
	c.types[aws.ToString(input.Bucket)+"/"+aws.ToString(input.Key)] = aws.ToString(input.ContentType)
	return &s3.PutObjectOutput{ETag: aws.String(`"etag"`)}, nil
}

func TestS3(t *testing.T) {
	data := randomBytes(t, 100_000)
	client := &testUploadAPIClient{objects: map[string][]byte{}, types: map[string]string{}}

	s := NewS3(client, "my-bucket", "my-key.zip", func(opts *S3Options) {
		opts.ContentType = "application/zip"
	})
	writeAll(t, s, data, 4096)

	out, err := s.Finalize(context.Background())
	assert.NoError(t, err)
	assert.NotNil(t, out)
	assert.Equal(t, data, client.objects["my-bucket/my-key.zip"])
	assert.Equal(t, "application/zip", client.types["my-bucket/my-key.zip"])
}

func TestS3_Error(t *testing.T) {
	client := &testUploadAPIClient{err: errors.New("access denied")}

	s := NewS3(client, "my-bucket", "my-key.zip")
	ctx := context.Background()
	assert.NoError(t, s.Init(ctx))
	_ = s.WriteChunk(ctx, []byte("hello"))

	_, err := s.Finalize(ctx)
	var we *WriteError
	assert.ErrorAs(t, err, &we)
	assert.ErrorContains(t, err, "access denied")
}

func TestS3_Abort(t *testing.T) {
	client := &testUploadAPIClient{objects: map[string][]byte{}, types: map[string]string{}}
	ctx := context.Background()

	s := NewS3(client, "my-bucket", "my-key.zip")
	assert.NoError(t, s.Init(ctx))
	assert.NoError(t, s.WriteChunk(ctx, []byte("partial archive")))

	s.Abort(errors.New("add file error"))
	assert.Empty(t, client.objects)

	var we *WriteError
	assert.ErrorAs(t, s.WriteChunk(ctx, []byte("more")), &we)

	// aborting before Init must not block.
	NewS3(client, "my-bucket", "other.zip").Abort(nil)
}

func TestWriteChunk_WithoutInit(t *testing.T) {
	ctx := context.Background()

	text := NewText("")
	assert.NoError(t, text.WriteChunk(ctx, []byte("hello")))
	got, err := text.Finalize(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "hello", got)

	blob := NewBlob("")
	assert.NoError(t, blob.WriteChunk(ctx, []byte("world")))
	assert.Equal(t, 5, blob.Len())
	data, err := blob.Finalize(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []byte("world"), data)
}
