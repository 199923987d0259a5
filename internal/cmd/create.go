package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/mholt/archives"
	"github.com/nguyengg/rzip"
	"github.com/nguyengg/rzip/codec"
	"github.com/nguyengg/rzip/internal"
	"github.com/nguyengg/rzip/internal/config"
	"github.com/nguyengg/rzip/sink"
	"github.com/nguyengg/rzip/source"
	"github.com/nguyengg/rzip/transfer"
	"github.com/nguyengg/rzip/zip"
)

type Create struct {
	Level       *int   `short:"l" long:"level" description:"compression level, overriding the [writer] level setting"`
	Method      string `short:"m" long:"method" choice:"deflate" choice:"zstd" choice:"xz" description:"compression method, overriding the [writer] method setting"`
	DontDeflate bool   `long:"dont-deflate" description:"store all files without compression"`
	Overwrite   bool   `long:"overwrite" description:"overwrite the output archive if it exists"`
	Args        struct {
		Output string   `positional-arg-name:"archive" description:"the local path or S3 URI of the archive to be created" required:"yes"`
		Files  []string `positional-arg-name:"file" description:"the files/directories to be added" required:"yes"`
	} `positional-args:"yes"`

	g      *Globals
	logger *log.Logger
}

func (c *Create) Execute(args []string) error {
	if err := checkArgs(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	c.logger = log.New(os.Stderr, fmt.Sprintf(`"%s" - `, internal.TruncateRightWithSuffix(filepath.Base(c.Args.Output), 30, "...")), 0)

	if strings.HasPrefix(c.Args.Output, "s3://") {
		return c.createS3(ctx)
	}

	return c.createLocal(ctx)
}

func (c *Create) createLocal(ctx context.Context) (err error) {
	flag := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if c.Overwrite {
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}

	f, err := os.OpenFile(c.Args.Output, flag, 0644)
	if err != nil {
		return fmt.Errorf("create archive error: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("close archive error: %w", closeErr)
		}
		if err != nil {
			_ = os.Remove(c.Args.Output)
		}
	}()

	n, err := create(ctx, c, sink.NewStream(f))
	if err != nil {
		return err
	}

	c.logger.Printf("wrote %s", humanize.IBytes(uint64(n)))
	return nil
}

func (c *Create) createS3(ctx context.Context) error {
	bucket, key, err := internal.ParseS3URI(c.Args.Output)
	if err != nil {
		return err
	}

	client, err := config.NewS3Client(ctx)
	if err != nil {
		return fmt.Errorf("create S3 client error: %w", err)
	}

	output, err := create(ctx, c, sink.NewS3(client, bucket, key, sink.WithUploadPartLogger(c.logger), func(opts *sink.S3Options) {
		opts.ContentType = rzip.ContentType(key)
		if owner := config.ForS3().ExpectedBucketOwner; owner != "" {
			opts.ModifyPutObjectInput = func(input *s3.PutObjectInput) {
				input.ExpectedBucketOwner = aws.String(owner)
			}
		}
	}))
	if err != nil {
		return err
	}

	c.logger.Printf("uploaded to %s", output.Location)
	return nil
}

func (c *Create) writerOptions() []func(*zip.Options) {
	cfg := config.ForWriter()

	return append(c.g.zipOptions(c.logger), func(opts *zip.Options) {
		method := cfg.Method
		if m, ok := config.ParseMethod(c.Method); ok {
			method = m
		}

		opts.DontDeflate = cfg.DontDeflate || c.DontDeflate
		if method == codec.MethodStore {
			opts.DontDeflate = true
		} else {
			opts.Method = method
		}
	})
}

func (c *Create) level() int {
	if c.Level != nil {
		return *c.Level
	}

	return config.ForWriter().Level
}

func create[T any](ctx context.Context, c *Create, dst sink.Sink[T]) (v T, err error) {
	w, err := zip.NewWriter(ctx, dst, c.writerOptions()...)
	if err != nil {
		return v, err
	}

	success := 0
	for _, file := range c.Args.Files {
		err = walk(ctx, file, func(path, name string, d fs.DirEntry) error {
			var err error
			if d.IsDir() {
				err = w.Add(ctx, name, nil, func(opts *zip.AddOptions) {
					opts.Directory = true
					opts.Modified = modTime(d)
				})
			} else {
				err = addFile(ctx, c, w, path, name, d)
			}

			switch {
			case err == nil:
				if !d.IsDir() {
					success++
				}
			case errors.Is(err, zip.ErrDuplicatedName):
				c.logger.Printf("skip %v", err)
			default:
				return fmt.Errorf(`add "%s" error: %w`, path, err)
			}

			return nil
		})
		if err != nil {
			w.Abort(err)
			return v, err
		}
	}

	c.logger.Printf("added %d files", success)
	return w.Close(ctx)
}

func addFile[T any](ctx context.Context, c *Create, w *zip.Writer[T], path, name string, d fs.DirEntry) error {
	src, err := source.NewFile(path)
	if err != nil {
		return err
	}
	defer src.Close()

	size, err := src.Init(ctx)
	if err != nil {
		return err
	}

	level := c.level()
	if size > 0 {
		compressed, err := isCompressed(ctx, path)
		if err != nil {
			return err
		}
		if compressed {
			level = 0
		}
	}

	bar := internal.NewEntryBar(size, "add", name)
	defer bar.Close()

	return w.Add(ctx, name, src, func(opts *zip.AddOptions) {
		opts.Level = level
		opts.Modified = modTime(d)
		opts.Transfer = append(opts.Transfer, transfer.WithProgressBar(bar))
	})
}

// isCompressed returns true if the file is an archive or compressed stream that would not benefit from compression.
func isCompressed(ctx context.Context, path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	switch _, _, err = archives.Identify(ctx, filepath.Base(path), f); {
	case err == nil:
		return true, nil
	case errors.Is(err, archives.NoMatch):
		return false, nil
	default:
		return false, fmt.Errorf("identify format error: %w", err)
	}
}

// walk calls fn for every directory and regular file under root, including root itself.
//
// The name passed to fn is the ZIP entry name: the slash-separated path relative to root's parent directory.
func walk(ctx context.Context, root string, fn func(path, name string, d fs.DirEntry) error) error {
	root = filepath.Clean(root)
	parent := filepath.Dir(root)

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err = ctx.Err(); err != nil {
			return err
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return err
		}

		return fn(path, filepath.ToSlash(rel), d)
	})
}

func modTime(d fs.DirEntry) time.Time {
	if fi, err := d.Info(); err == nil {
		return fi.ModTime()
	}

	return time.Now()
}
