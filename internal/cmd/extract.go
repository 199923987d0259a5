package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/nguyengg/rzip"
	"github.com/nguyengg/rzip/internal"
	"github.com/nguyengg/rzip/sink"
	"github.com/nguyengg/rzip/transfer"
	"github.com/nguyengg/rzip/zip"
)

type Extract struct {
	Output    string `short:"o" long:"output" description:"the directory to extract to" default:"."`
	StripRoot bool   `long:"strip-root" description:"if all entries share a common root directory, extract its contents directly into the output directory"`
	SkipCRC   bool   `long:"skip-crc" description:"do not verify the CRC-32 of extracted entries"`
	Overwrite bool   `long:"overwrite" description:"overwrite existing files instead of failing"`
	Args      struct {
		Files []string `positional-arg-name:"archive" description:"the local archives or S3 URIs to be extracted" required:"yes"`
	} `positional-args:"yes"`

	g      *Globals
	logger *log.Logger
}

func (c *Extract) Execute(args []string) error {
	if err := checkArgs(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	success := 0
	n := len(c.Args.Files)
	for i, file := range c.Args.Files {
		c.logger = internal.NewLogger(i, n, file)
		c.logger.Printf("start extracting")

		err := c.extract(ctx, file)
		if err == nil {
			c.logger.Printf("done extracting")
			success++
			continue
		}

		if errors.Is(err, context.Canceled) {
			break
		}

		c.logger.Printf("extract error: %v", err)
	}

	log.Printf("successfully extracted %d/%d files", success, n)
	return nil
}

func (c *Extract) extract(ctx context.Context, name string) error {
	src, err := c.g.openSource(ctx, name)
	if err != nil {
		return err
	}
	defer closeSource(src)

	r, entries, err := rzip.Open(ctx, src, c.g.zipOptions(c.logger)...)
	if err != nil {
		return err
	}
	defer r.Close()

	var root internal.RootDir
	if c.StripRoot {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name
		}
		root = internal.FindZipRootDir(names)
	}

	for _, e := range entries {
		rel := root.Strip(e.Name)
		if rel == "" {
			continue
		}

		path, err := safeJoin(c.Output, rel)
		if err != nil {
			return err
		}

		if e.Directory {
			if err = os.MkdirAll(path, 0755); err != nil {
				return fmt.Errorf(`create directory "%s" error: %w`, path, err)
			}
			continue
		}

		if err = c.extractFile(ctx, r, e, path); err != nil {
			return fmt.Errorf(`extract "%s" error: %w`, e.Name, err)
		}
	}

	return nil
}

func (c *Extract) extractFile(ctx context.Context, r *zip.Reader, e zip.Entry, path string) (err error) {
	if err = os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create parent directory error: %w", err)
	}

	flag := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if c.Overwrite {
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}

	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return fmt.Errorf("create file error: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("close file error: %w", closeErr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	bar := internal.NewEntryBar(int64(e.CompressedSize), "extract", e.Name)
	defer bar.Close()

	_, err = zip.Extract(ctx, r, e, sink.NewStream(f), func(opts *zip.ExtractOptions) {
		opts.SkipCRC = c.SkipCRC
		opts.Transfer = append(opts.Transfer, transfer.WithProgressBar(bar))
	})
	return err
}

// safeJoin joins the entry name to dir, rejecting names that would escape dir.
func safeJoin(dir, name string) (string, error) {
	path := filepath.Join(dir, filepath.FromSlash(strings.ReplaceAll(name, "\\", "/")))
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(name) {
		return "", fmt.Errorf(`entry "%s" is outside the output directory`, name)
	}

	return path, nil
}
