// Package codec provides the compression methods that ZIP entries can be stored with.
//
// Codec creates stream encoders and decoders in the usual io.Reader and io.Writer style, while Transform adapts them to
// the push-style chunk contract used by the transfer driver: each input chunk is appended and whatever output is
// available so far is returned.
package codec

import (
	"io"

	"github.com/klauspost/compress/flate"
)

// Codec has methods to create compressor/encoder and decompressor/decoder.
type Codec interface {
	// NewDecoder creates a decoder to decompress contents from the given io.Reader.
	NewDecoder(src io.Reader) (io.ReadCloser, error)
	// NewEncoder creates an encoder to compress contents from the given io.Writer.
	NewEncoder(dst io.Writer) (io.WriteCloser, error)
}

// FlateCodec implements Codec for raw DEFLATE streams (ZIP method 8).
type FlateCodec struct {
	// Level is the compression level between 1 (flate.BestSpeed) and 9 (flate.BestCompression).
	//
	// DefaultLevel or any out-of-range value uses flate.DefaultCompression. 0 disables compression but still frames
	// the output as DEFLATE stored blocks.
	Level int
}

var _ Codec = FlateCodec{}

func (c FlateCodec) NewDecoder(src io.Reader) (io.ReadCloser, error) {
	return flate.NewReader(src), nil
}

func (c FlateCodec) NewEncoder(dst io.Writer) (io.WriteCloser, error) {
	level := c.Level
	if level < flate.NoCompression || level > flate.BestCompression {
		level = flate.DefaultCompression
	}

	return flate.NewWriter(dst, level)
}
