package codec

import (
	"bytes"
	"compress/flate"
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func randomBytes(t *testing.T, n int) []byte {
	data := make([]byte, n)
	_, err := io.ReadFull(rand.Reader, data)
	assert.NoErrorf(t, err, "fill random data error: %v", err)
	return data
}

// compressible returns n bytes of text that compresses well.
func compressible(n int) []byte {
	return bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), n/45+1)[:n]
}

// run pushes data through a new Transform in chunks of the given size.
func run(t *testing.T, s Spec, data []byte, chunk int) ([]byte, error) {
	tr, err := s.New()
	if !assert.NoErrorf(t, err, "New(%v) error = %v", s, err) {
		return nil, err
	}

	var out bytes.Buffer
	for len(data) > 0 {
		n := min(chunk, len(data))
		b, err := tr.Append(data[:n])
		if err != nil {
			_ = tr.Close()
			return nil, err
		}
		out.Write(b)
		data = data[n:]
	}

	// zero-length append must be harmless.
	b, err := tr.Append(nil)
	if err != nil {
		return nil, err
	}
	out.Write(b)

	if b, err = tr.Flush(); err != nil {
		return nil, err
	}
	out.Write(b)

	assert.NoError(t, tr.Close())
	return out.Bytes(), nil
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		method uint16
		level  int
	}{
		{name: "store", method: MethodStore, level: DefaultLevel},
		{name: "deflate default", method: MethodDeflate, level: DefaultLevel},
		{name: "deflate 1", method: MethodDeflate, level: 1},
		{name: "deflate 9", method: MethodDeflate, level: 9},
		{name: "zstd default", method: MethodZstd, level: DefaultLevel},
		{name: "zstd 19", method: MethodZstd, level: 19},
		{name: "xz", method: MethodXZ, level: DefaultLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, data := range [][]byte{{}, []byte("a"), compressible(100_000), randomBytes(t, 70_000)} {
				for _, chunk := range []int{1 << 10, 1 << 19} {
					compressed, err := run(t, Compressor(tt.method, tt.level), data, chunk)
					assert.NoError(t, err)

					got, err := run(t, Decompressor(tt.method), compressed, chunk)
					assert.NoError(t, err)
					assert.Equal(t, len(data), len(got))
					assert.Truef(t, bytes.Equal(data, got), "round trip mismatch for %d bytes with chunk %d", len(data), chunk)
				}
			}
		})
	}
}

func TestDeflate_StdlibInterop(t *testing.T) {
	data := compressible(300_000)

	// ours to stdlib.
	compressed, err := run(t, Deflate(6), data, 4096)
	assert.NoError(t, err)
	assert.Less(t, len(compressed), len(data))

	got, err := io.ReadAll(flate.NewReader(bytes.NewReader(compressed)))
	assert.NoError(t, err)
	assert.Equal(t, data, got)

	// stdlib to ours.
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	_, _ = w.Write(data)
	assert.NoError(t, w.Close())

	got, err = run(t, Inflate(), buf.Bytes(), 1000)
	assert.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestInflate_TrailingDataIgnored(t *testing.T) {
	data := compressible(10_000)
	compressed, err := run(t, Deflate(DefaultLevel), data, 1<<19)
	assert.NoError(t, err)

	got, err := run(t, Inflate(), append(compressed, randomBytes(t, 100)...), 37)
	assert.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestInflate_Truncated(t *testing.T) {
	compressed, err := run(t, Deflate(DefaultLevel), randomBytes(t, 10_000), 1<<19)
	assert.NoError(t, err)

	_, err = run(t, Inflate(), compressed[:len(compressed)/2], 1000)
	var ce *Error
	assert.ErrorAs(t, err, &ce)
	assert.Equal(t, Decompress, ce.Spec.Kind)
}

func TestDecompressor(t *testing.T) {
	tests := []struct {
		method uint16
		want   Spec
	}{
		{method: MethodStore, want: NoOp()},
		{method: MethodDeflate, want: Inflate()},
		{method: MethodZstd, want: Spec{Kind: Decompress, Method: MethodZstd, Level: DefaultLevel}},
		{method: MethodXZ, want: Spec{Kind: Decompress, Method: MethodXZ, Level: DefaultLevel}},
		// unknown methods fall back to inflate.
		{method: 12, want: Inflate()},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, Decompressor(tt.method), "Decompressor(%d)", tt.method)
	}
}

func TestSpec_New_UnsupportedMethod(t *testing.T) {
	_, err := Compressor(12, DefaultLevel).New()
	var ce *Error
	assert.ErrorAs(t, err, &ce)
}

func TestClose_BeforeFlush(t *testing.T) {
	for _, s := range []Spec{Inflate(), Deflate(DefaultLevel), Decompressor(MethodZstd), NoOp()} {
		tr, err := s.New()
		assert.NoError(t, err)

		_, _ = tr.Append([]byte{0x01, 0x02})
		assert.NoErrorf(t, tr.Close(), "%v Close() error", s)
	}
}

func TestSpec_Family(t *testing.T) {
	assert.Equal(t, FamilyCopy, NoOp().Family())
	assert.Equal(t, FamilyDeflate, Deflate(1).Family())
	assert.Equal(t, FamilyDeflate, Inflate().Family())
	assert.Equal(t, FamilyZstd, Compressor(MethodZstd, 3).Family())
	assert.Equal(t, FamilyXZ, Decompressor(MethodXZ).Family())
	assert.Equal(t, "deflate compress", Deflate(1).String())
}
