package source

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
)

func randomBytes(t *testing.T, n int) []byte {
	data := make([]byte, n)
	_, err := io.ReadFull(rand.Reader, data)
	assert.NoErrorf(t, err, "fill random data error: %v", err)
	return data
}

// assertRanges reads every (offset, length) pair from src and compares against data.
func assertRanges(t *testing.T, src Source, data []byte) {
	ctx := context.Background()

	size, err := src.Init(ctx)
	assert.NoErrorf(t, err, "Init() error = %v", err)
	assert.Equal(t, int64(len(data)), size)

	n := int64(len(data))
	for _, r := range [][2]int64{{0, 0}, {0, 1}, {0, n}, {1, n - 1}, {2, 5}, {3, 3}, {n - 1, 1}, {n, 0}, {n / 2, n / 3}} {
		if r[0]+r[1] > n {
			continue
		}

		b, err := src.ReadRange(ctx, r[0], r[1])
		assert.NoErrorf(t, err, "ReadRange(%d, %d) error = %v", r[0], r[1], err)
		assert.Equalf(t, data[r[0]:r[0]+r[1]], b, "ReadRange(%d, %d) mismatched data", r[0], r[1])
	}

	for _, r := range [][2]int64{{n, 1}, {0, n + 1}, {-1, 1}, {1, -1}} {
		_, err = src.ReadRange(ctx, r[0], r[1])
		var re *ReadError
		assert.ErrorAsf(t, err, &re, "ReadRange(%d, %d) should have returned ReadError", r[0], r[1])
		assert.ErrorIs(t, err, ErrOutOfRange)
	}
}

func TestText(t *testing.T) {
	text := "hello, world! Mr. Jock, TV quiz PhD, bags few lynx."
	assertRanges(t, NewText(text), []byte(text))
}

func TestBytes(t *testing.T) {
	data := randomBytes(t, 1000)
	assertRanges(t, NewBytes(data), data)
}

func TestBlob(t *testing.T) {
	data := randomBytes(t, 4096)
	assertRanges(t, NewBlob(bytes.NewReader(data), int64(len(data))), data)
}

func TestFile(t *testing.T) {
	data := randomBytes(t, 2048)

	f, err := os.CreateTemp("", "")
	assert.NoErrorf(t, err, "os.CreateTemp() error = %v", err)
	defer os.Remove(f.Name())
	_, err = f.Write(data)
	assert.NoError(t, err)
	_ = f.Close()

	src, err := NewFile(f.Name())
	assert.NoErrorf(t, err, "NewFile() error = %v", err)
	defer src.Close()

	assertRanges(t, src, data)
}

func TestDataURI(t *testing.T) {
	// every length mod 3 exercises a different amount of padding.
	for _, n := range []int{1, 2, 3, 4, 5, 6, 100, 101, 102} {
		t.Run(strconv.Itoa(n), func(t *testing.T) {
			data := randomBytes(t, n)
			uri := "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(data)
			assertRanges(t, NewDataURI(uri), data)
		})
	}

	_, err := NewDataURI("not a data uri").Init(context.Background())
	assert.Error(t, err)
}

func TestS3(t *testing.T) {
	data := randomBytes(t, 10_000)
	tc := &testS3Client{data: data}

	assertRanges(t, NewS3(tc, "bucket", "key"), data)
	assert.Equal(t, 1, tc.heads, "Init should call HeadObject exactly once")

	// with a known size, there should be no HeadObject call.
	tc = &testS3Client{data: data}
	src := NewS3(tc, "bucket", "key", func(opts *S3Options) {
		opts.Size = int64(len(data))
	}, WithExpectedBucketOwner("owner"))
	b, err := src.ReadRange(context.Background(), 100, 200)
	assert.NoError(t, err)
	assert.Equal(t, data[100:300], b)
	assert.Equal(t, 0, tc.heads)
	assert.Equal(t, "bytes=100-299", aws.ToString(tc.calls[0].Range))
	assert.Equal(t, "owner", aws.ToString(tc.calls[0].ExpectedBucketOwner))
}

// testS3Client implements S3Client by slicing into its in-memory data.
type testS3Client struct {
	data []byte

	// mu guards calls and heads.
	mu    sync.Mutex
	calls []s3.GetObjectInput
	heads int
}

func (c *testS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	c.mu.Lock()
	c.calls = append(c.calls, *input)
	c.mu.Unlock()

	rangeBytes := aws.ToString(input.Range)
	values := strings.SplitN(strings.TrimPrefix(rangeBytes, "bytes="), "-", 2)
	if len(values) != 2 {
		return nil, fmt.Errorf("invalid range: %s", rangeBytes)
	}

	i, err := strconv.ParseInt(values[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid start byte in range `%s`: %w", rangeBytes, err)
	}

	j, err := strconv.ParseInt(values[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid end byte in range `%s`: %w", rangeBytes, err)
	}

	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(c.data[i : j+1])),
	}, nil
}

func (c *testS3Client) HeadObject(_ context.Context, _ *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	c.mu.Lock()
	c.heads++
	c.mu.Unlock()

	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(c.data))),
	}, nil
}
