package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nguyengg/rzip/codec"
	"github.com/stretchr/testify/assert"
)

func TestLoader_Load(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	assert.NoError(t, os.MkdirAll(nested, 0755))
	assert.NoError(t, os.WriteFile(filepath.Join(root, "a", Name), []byte(`
[writer]
level = 9
method = zstd

[delegate]
enabled = true

[s3]
profile = my-profile
expected-bucket-owner = 123456789012
`), 0644))

	l := &Loader{Dir: nested}
	name, err := l.Load(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a", Name), name)

	assert.Equal(t, WriterConfig{Level: 9, Method: codec.MethodZstd}, l.ForWriter())
	assert.Equal(t, DelegateConfig{Enabled: true}, l.ForDelegate())
	assert.Equal(t, S3Config{AWSProfile: "my-profile", ExpectedBucketOwner: "123456789012"}, l.ForS3())
}

func TestLoader_Defaults(t *testing.T) {
	l := &Loader{Dir: t.TempDir()}
	name, err := l.Load(context.Background())
	assert.NoError(t, err)

	// a .rzip in any ancestor of the temp dir would be picked up, which test machines are not expected to have.
	if name != "" {
		t.Skipf("found unexpected config file %s", name)
	}

	assert.Equal(t, WriterConfig{Level: codec.DefaultLevel, Method: codec.MethodDeflate}, l.ForWriter())
	assert.Equal(t, DelegateConfig{}, l.ForDelegate())
	assert.Equal(t, S3Config{}, l.ForS3())
}

func TestLoader_DirectoryNamedLikeConfig(t *testing.T) {
	root := t.TempDir()
	child := filepath.Join(root, "child")
	assert.NoError(t, os.MkdirAll(filepath.Join(child, Name), 0755))
	assert.NoError(t, os.WriteFile(filepath.Join(root, Name), []byte("[writer]\ndont-deflate = true\n"), 0644))

	l := &Loader{Dir: child}
	name, err := l.Load(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(root, Name), name)
	assert.True(t, l.ForWriter().DontDeflate)
}

func TestParseMethod(t *testing.T) {
	for name, want := range map[string]uint16{"deflate": 8, "ZSTD": 93, " xz ": 95, "store": 0} {
		got, ok := ParseMethod(name)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := ParseMethod("brotli")
	assert.False(t, ok)
}
