package rzip

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nguyengg/rzip/sink"
	"github.com/nguyengg/rzip/source"
	"github.com/nguyengg/rzip/zip"
	"github.com/stretchr/testify/assert"
)

func newArchive(t *testing.T) []byte {
	ctx := context.Background()

	w, err := zip.NewWriter(ctx, sink.NewBlob("application/zip"))
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	assert.NoError(t, w.Add(ctx, "a.txt", source.NewText("hello")))
	assert.NoError(t, w.Add(ctx, "dir/", nil))
	assert.NoError(t, w.Add(ctx, "dir/b.txt", source.NewText("world")))

	data, err := w.Close(ctx)
	assert.NoError(t, err)
	return data
}

func TestOpen_ExtractNamed(t *testing.T) {
	ctx := context.Background()

	r, entries, err := Open(ctx, source.NewBytes(newArchive(t)))
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	defer r.Close()

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"a.txt", "dir/", "dir/b.txt"}, names)

	got, err := ExtractNamed(ctx, r, "dir/b.txt", sink.NewText(""))
	assert.NoError(t, err)
	assert.Equal(t, "world", got)

	_, err = ExtractNamed(ctx, r, "missing.txt", sink.NewText(""))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen_Delegated(t *testing.T) {
	ctx := context.Background()

	r, _, err := Open(ctx, source.NewBytes(newArchive(t)), zip.WithDelegation())
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	defer r.Close()

	got, err := ExtractNamed(ctx, r, "a.txt", sink.NewBlob("text/plain"))
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestOpen_BadFormat(t *testing.T) {
	_, _, err := Open(context.Background(), source.NewText("definitely not a zip archive"))
	assert.ErrorIs(t, err, zip.ErrBadFormat)
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a.txt":          "text/plain",
		"A.TXT":          "text/plain",
		"path/to/b.json": "application/json",
		"archive.zip":    "application/zip",
		"image.PNG":      "image/png",
		"no-extension":   "application/octet-stream",
		"weird.qqqqqq":   "application/octet-stream",
		"dir/":           "application/octet-stream",
	}
	for name, want := range tests {
		assert.Equalf(t, want, ContentType(name), "ContentType(%q)", name)
	}
}

func TestDefaultErrorHandler(t *testing.T) {
	// must not panic on nil or non-nil errors.
	DefaultErrorHandler(nil)
	DefaultErrorHandler(errors.New("test"))
}

type testS3Client struct{}

func (testS3Client) GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return nil, errors.New("unexpected GetObject")
}

func (testS3Client) HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return nil, errors.New("unexpected HeadObject")
}

func TestOpenURL(t *testing.T) {
	ctx := context.Background()

	name := filepath.Join(t.TempDir(), "test.zip")
	assert.NoError(t, os.WriteFile(name, newArchive(t), 0644))

	for _, rawURL := range []string{name, "file://" + filepath.ToSlash(name)} {
		src, err := OpenURL(ctx, rawURL)
		if !assert.NoErrorf(t, err, "OpenURL(%q) error", rawURL) {
			continue
		}

		r, entries, err := Open(ctx, src)
		assert.NoError(t, err)
		assert.Len(t, entries, 3)
		_ = r.Close()

		if c, ok := src.(io.Closer); assert.True(t, ok) {
			assert.NoError(t, c.Close())
		}
	}

	src, err := OpenURL(ctx, "s3://my-bucket/path/to/test.zip", func(opts *OpenURLOptions) {
		opts.S3Client = testS3Client{}
	})
	assert.NoError(t, err)
	if o, ok := src.(*source.S3); assert.True(t, ok) {
		assert.Equal(t, "my-bucket", o.Bucket)
		assert.Equal(t, "path/to/test.zip", o.Key)
	}

	_, err = OpenURL(ctx, "s3://my-bucket/path/to/test.zip")
	assert.Error(t, err)

	_, err = OpenURL(ctx, "s3://my-bucket")
	assert.Error(t, err)

	_, err = OpenURL(ctx, filepath.Join(t.TempDir(), "does-not-exist.zip"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
