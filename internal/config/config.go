package config

import (
	"strings"

	"github.com/nguyengg/rzip/codec"
	"gopkg.in/ini.v1"
)

// WriterConfig contains the [writer] section.
type WriterConfig struct {
	// Level is the compression level, codec.DefaultLevel if not set.
	Level int
	// Method is the compression method, codec.MethodDeflate if not set.
	Method uint16
	// DontDeflate stores every entry without compression.
	DontDeflate bool
}

// ForWriter returns configuration for creating archives.
func (l *Loader) ForWriter() (c WriterConfig) {
	c.Level, c.Method = codec.DefaultLevel, codec.MethodDeflate

	sec, ok := l.section("writer")
	if !ok {
		return c
	}

	c.Level = sec.Key("level").MustInt(codec.DefaultLevel)
	c.DontDeflate = sec.Key("dont-deflate").MustBool(false)
	if m, ok := ParseMethod(sec.Key("method").Value()); ok {
		c.Method = m
	}

	return
}

// ForWriter calls Loader.ForWriter on the DefaultLoader instance.
func ForWriter() WriterConfig {
	return DefaultLoader.ForWriter()
}

// DelegateConfig contains the [delegate] section.
type DelegateConfig struct {
	// Enabled runs codecs on a delegate.Unit per archive.
	Enabled bool
}

// ForDelegate returns configuration for delegated execution.
func (l *Loader) ForDelegate() (c DelegateConfig) {
	sec, ok := l.section("delegate")
	if !ok {
		return c
	}

	c.Enabled = sec.Key("enabled").MustBool(false)
	return
}

// ForDelegate calls Loader.ForDelegate on the DefaultLoader instance.
func ForDelegate() DelegateConfig {
	return DefaultLoader.ForDelegate()
}

// S3Config contains the [s3] section.
type S3Config struct {
	// AWSProfile is the shared config profile used to create S3 clients.
	AWSProfile string
	// ExpectedBucketOwner is added to every S3 request if non-empty.
	ExpectedBucketOwner string
}

// ForS3 returns configuration for S3 access.
func (l *Loader) ForS3() (c S3Config) {
	sec, ok := l.section("s3")
	if !ok {
		return c
	}

	c.AWSProfile = sec.Key("profile").Value()
	c.ExpectedBucketOwner = sec.Key("expected-bucket-owner").Value()
	return
}

// ForS3 calls Loader.ForS3 on the DefaultLoader instance.
func ForS3() S3Config {
	return DefaultLoader.ForS3()
}

// ParseMethod maps a method name (deflate, zstd, xz, store) to its ZIP method identifier.
func ParseMethod(name string) (uint16, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "deflate":
		return codec.MethodDeflate, true
	case "zstd":
		return codec.MethodZstd, true
	case "xz":
		return codec.MethodXZ, true
	case "store":
		return codec.MethodStore, true
	default:
		return 0, false
	}
}

func (l *Loader) section(name string) (*ini.Section, bool) {
	if l.cfg == nil {
		return nil, false
	}

	sec, err := l.cfg.GetSection(name)
	return sec, err == nil
}
