package codec

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// ZstdCodec implements Codec for zstd compression algorithm (ZIP method 93).
type ZstdCodec struct {
	// Level is the zstd compression level (1-22), which is mapped to the closest zstd.EncoderLevel.
	//
	// DefaultLevel or any non-positive value uses zstd.SpeedDefault.
	Level int
}

var _ Codec = ZstdCodec{}

func (c ZstdCodec) NewDecoder(src io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}

	return &zstdDecoder{dec}, nil
}

type zstdDecoder struct {
	*zstd.Decoder
}

func (d *zstdDecoder) Close() error {
	d.Decoder.Close()
	return nil
}

func (c ZstdCodec) NewEncoder(dst io.Writer) (io.WriteCloser, error) {
	level := zstd.SpeedDefault
	if c.Level > 0 {
		level = zstd.EncoderLevelFromZstd(c.Level)
	}

	return zstd.NewWriter(dst, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1), zstd.WithZeroFrames(true))
}
