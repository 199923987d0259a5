package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/rzip"
	"github.com/nguyengg/rzip/delegate"
	"github.com/nguyengg/rzip/internal/config"
	"github.com/nguyengg/rzip/source"
	"github.com/nguyengg/rzip/zip"
)

// Globals are the options shared by all commands.
type Globals struct {
	Profile  string `short:"p" long:"profile" description:"override the AWS profile used for s3:// URIs"`
	Delegate bool   `long:"delegate" description:"run compression and decompression on a delegate unit"`
}

type Rzip struct {
	Globals

	List    List    `command:"list" alias:"ls" description:"list the entries of archives"`
	Extract Extract `command:"extract" alias:"x" description:"extract archives"`
	Create  Create  `command:"create" alias:"c" description:"create an archive from files and directories"`
}

func NewParser() (*flags.Parser, error) {
	opts := &Rzip{}
	opts.List.g = &opts.Globals
	opts.Extract.g = &opts.Globals
	opts.Create.g = &opts.Globals

	p := flags.NewNamedParser("rzip", flags.Default)
	if _, err := p.AddGroup("Global Options", "", opts); err != nil {
		return nil, err
	}

	p.CommandHandler = func(command flags.Commander, args []string) error {
		if command == nil {
			return nil
		}

		name, err := config.LoadProfile(context.Background(), opts.Profile)
		if err != nil {
			return fmt.Errorf(`load config "%s" error: %w`, name, err)
		}
		if name != "" {
			log.Printf(`using config "%s"`, name)
		}

		return command.Execute(args)
	}

	return p, nil
}

// zipOptions returns the zip.Options to open or create archives with.
func (g *Globals) zipOptions(logger *log.Logger) []func(*zip.Options) {
	if !g.Delegate && !config.ForDelegate().Enabled {
		return nil
	}

	return []func(*zip.Options){zip.WithDelegation(func(opts *delegate.Options) {
		opts.Logger = logger
	})}
}

// openSource acquires the source for the given local path or S3 URI.
func (g *Globals) openSource(ctx context.Context, name string) (source.Source, error) {
	if !strings.HasPrefix(name, "s3://") {
		return rzip.OpenURL(ctx, name)
	}

	client, err := config.NewS3Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("create S3 client error: %w", err)
	}

	return rzip.OpenURL(ctx, name, func(opts *rzip.OpenURLOptions) {
		opts.S3Client = client
		if owner := config.ForS3().ExpectedBucketOwner; owner != "" {
			opts.S3Options = append(opts.S3Options, source.WithExpectedBucketOwner(owner))
		}
	})
}

func closeSource(src source.Source) {
	if c, ok := src.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}

func checkArgs(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	return nil
}
