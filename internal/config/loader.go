package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/ini.v1"
)

// Name is the name of the configuration file.
const Name = ".rzip"

// Loader can be used for loading .rzip configuration as well as overridden with default settings.
type Loader struct {
	// Profile is the AWS profile to use, taking precedence over the [s3] profile setting.
	Profile string

	// Dir is the directory to start searching from.
	//
	// By default, the current working directory is used.
	Dir string

	cfg           *ini.File
	s3clientCache sync.Map
}

// Load will traverse the directory hierarchy upwards to find the first ".rzip" file available and load its contents
// into the Loader.
//
// The name of the .rzip file is returned, or an empty string if none was found.
func (l *Loader) Load(ctx context.Context) (string, error) {
	if l.cfg == nil {
		l.cfg = ini.Empty()
	}

	cur := l.Dir
	if cur == "" {
		var err error
		if cur, err = os.Getwd(); err != nil {
			return "", err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		path := filepath.Join(cur, Name)
		fi, err := os.Stat(path)
		switch {
		case err == nil && !fi.IsDir():
			if l.cfg, err = ini.Load(path); err != nil {
				l.cfg = ini.Empty()
				return path, err
			}

			return path, nil
		case err != nil && !os.IsNotExist(err):
			return "", err
		}

		parent := filepath.Dir(cur)
		if parent == cur || parent == "." {
			return "", nil
		}

		cur = parent
	}
}

// LoadProfile is a convenient method to set Loader.Profile then call Load.
func (l *Loader) LoadProfile(ctx context.Context, profile string) (string, error) {
	l.Profile = profile
	return l.Load(ctx)
}

// DefaultLoader is the default Loader instance for package-level methods.
var DefaultLoader = &Loader{cfg: ini.Empty()}

// Load calls Loader.Load on the DefaultLoader instance.
func Load(ctx context.Context) (string, error) {
	return DefaultLoader.Load(ctx)
}

// LoadProfile calls Loader.LoadProfile on the DefaultLoader instance.
func LoadProfile(ctx context.Context, profile string) (string, error) {
	return DefaultLoader.LoadProfile(ctx, profile)
}
