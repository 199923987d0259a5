package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/nguyengg/rzip"
	"github.com/nguyengg/rzip/codec"
)

type List struct {
	Args struct {
		Files []string `positional-arg-name:"archive" description:"the local archives or S3 URIs to be listed" required:"yes"`
	} `positional-args:"yes"`

	g *Globals
}

func (c *List) Execute(args []string) error {
	if err := checkArgs(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	success := 0
	n := len(c.Args.Files)
	for _, file := range c.Args.Files {
		err := c.list(ctx, file)
		if err == nil {
			success++
			continue
		}

		if errors.Is(err, context.Canceled) {
			break
		}

		log.Printf(`list "%s" error: %v`, file, err)
	}

	if n > 1 {
		log.Printf("successfully listed %d/%d files", success, n)
	}
	return nil
}

func (c *List) list(ctx context.Context, name string) error {
	src, err := c.g.openSource(ctx, name)
	if err != nil {
		return err
	}
	defer closeSource(src)

	r, entries, err := rzip.Open(ctx, src)
	if err != nil {
		return err
	}
	defer r.Close()

	fmt.Printf("%s:\n", name)

	var total uint64
	for _, e := range entries {
		method := methodName(e.Method)
		if e.Directory {
			method = "dir"
		}

		fmt.Printf("%10s  %10s  %-8s  %s  %s\n",
			humanize.IBytes(uint64(e.UncompressedSize)),
			humanize.IBytes(uint64(e.CompressedSize)),
			method,
			e.Modified.Format("2006-01-02 15:04"),
			e.Name)
		total += uint64(e.UncompressedSize)
	}

	fmt.Printf("%d entries, %s uncompressed, %s archive\n", len(entries), humanize.IBytes(total), humanize.IBytes(uint64(r.Size())))
	if comment := r.EOCD().Comment; comment != "" {
		fmt.Printf("comment: %s\n", comment)
	}

	return nil
}

func methodName(method uint16) string {
	switch method {
	case codec.MethodStore:
		return "store"
	case codec.MethodDeflate:
		return "deflate"
	case codec.MethodZstd:
		return "zstd"
	case codec.MethodXZ:
		return "xz"
	default:
		return fmt.Sprintf("method %d", method)
	}
}
