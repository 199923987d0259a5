// Package rzip reads and writes ZIP archives over ranged byte sources such as local files and S3 objects.
//
// The heavy lifting is done by package zip; rzip adds the orchestration needed by most callers: opening an archive and
// listing its entries, extracting an entry by name, acquiring sources from URLs, and guessing content types.
package rzip

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/nguyengg/rzip/internal"
	"github.com/nguyengg/rzip/sink"
	"github.com/nguyengg/rzip/source"
	"github.com/nguyengg/rzip/zip"
)

// ErrNotFound is returned by ExtractNamed if the archive has no entry with the given name.
var ErrNotFound = errors.New("entry not found")

// Open opens the archive in src and returns its reader and entries.
//
// The reader must be closed to terminate its delegate.Unit if delegation was enabled.
func Open(ctx context.Context, src source.Source, optFns ...func(*zip.Options)) (*zip.Reader, []zip.Entry, error) {
	r, err := zip.NewReader(ctx, src, optFns...)
	if err != nil {
		return nil, nil, err
	}

	entries, err := r.Entries(ctx)
	if err != nil {
		_ = r.Close()
		return nil, nil, err
	}

	return r, entries, nil
}

// ExtractNamed extracts the entry with the given name to dst and returns the finalised value.
//
// ErrNotFound is returned if there is no such entry.
func ExtractNamed[T any](ctx context.Context, r *zip.Reader, name string, dst sink.Sink[T], optFns ...func(*zip.ExtractOptions)) (v T, err error) {
	e, ok, err := r.Find(ctx, name)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return zip.Extract(ctx, r, e, dst, optFns...)
}

// DefaultErrorHandler logs err with log.Printf and drops it.
func DefaultErrorHandler(err error) {
	if err != nil {
		log.Printf("rzip error: %v", err)
	}
}

var contentTypes = map[string]string{
	".7z":   "application/x-7z-compressed",
	".bin":  "application/octet-stream",
	".bz2":  "application/x-bzip2",
	".css":  "text/css",
	".csv":  "text/csv",
	".gif":  "image/gif",
	".gz":   "application/gzip",
	".htm":  "text/html",
	".html": "text/html",
	".jpeg": "image/jpeg",
	".jpg":  "image/jpeg",
	".js":   "text/javascript",
	".json": "application/json",
	".md":   "text/markdown",
	".mp3":  "audio/mpeg",
	".mp4":  "video/mp4",
	".pdf":  "application/pdf",
	".png":  "image/png",
	".svg":  "image/svg+xml",
	".tar":  "application/x-tar",
	".txt":  "text/plain",
	".wasm": "application/wasm",
	".webp": "image/webp",
	".xml":  "application/xml",
	".xz":   "application/x-xz",
	".zip":  "application/zip",
	".zst":  "application/zstd",
}

// ContentType returns the MIME type for name based on its extension.
//
// The lookup is case-insensitive and falls back to mime.TypeByExtension. The default is application/octet-stream.
func ContentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return "application/octet-stream"
	}

	if v, ok := contentTypes[ext]; ok {
		return v
	}

	if v := mime.TypeByExtension(ext); v != "" {
		return v
	}

	return "application/octet-stream"
}

// OpenURLOptions customises OpenURL.
type OpenURLOptions struct {
	// S3Client is required to open s3:// URLs.
	S3Client source.S3Client

	// S3Options customises the source.S3.
	S3Options []func(*source.S3Options)
}

// OpenURL returns the source.Source for the given local path, file:// URL, or s3://bucket/key URI.
//
// Local files are opened here; the returned source then implements io.Closer and must be closed by the caller.
func OpenURL(_ context.Context, rawURL string, optFns ...func(*OpenURLOptions)) (source.Source, error) {
	opts := &OpenURLOptions{}
	for _, fn := range optFns {
		fn(opts)
	}

	switch {
	case strings.HasPrefix(rawURL, "s3://"):
		if opts.S3Client == nil {
			return nil, fmt.Errorf("no S3 client to open %s", rawURL)
		}

		bucket, key, err := internal.ParseS3URI(rawURL)
		if err != nil {
			return nil, err
		}

		return source.NewS3(opts.S3Client, bucket, key, opts.S3Options...), nil

	case strings.HasPrefix(rawURL, "file://"):
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parse file URL error: %w", err)
		}

		return source.NewFile(u.Path)

	default:
		return source.NewFile(rawURL)
	}
}
