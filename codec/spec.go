package codec

import (
	"fmt"
)

// ZIP compression method identifiers.
const (
	MethodStore   uint16 = 0
	MethodDeflate uint16 = 8
	MethodZstd    uint16 = 93
	MethodXZ      uint16 = 95
)

// DefaultLevel selects the codec's own default compression level.
const DefaultLevel = -1

// Kind is the direction of a Spec.
type Kind uint8

const (
	// Copy passes bytes through unchanged.
	Copy Kind = iota
	// Compress encodes bytes with Spec.Method.
	Compress
	// Decompress decodes bytes with Spec.Method.
	Decompress
)

func (k Kind) String() string {
	switch k {
	case Copy:
		return "copy"
	case Compress:
		return "compress"
	case Decompress:
		return "decompress"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Spec describes which Transform to create.
//
// Spec is a plain value so that it can be sent to a delegate.Unit which then creates the Transform on its side.
type Spec struct {
	Kind   Kind
	Method uint16
	Level  int
}

// NoOp returns the Spec for a pass-through Transform.
func NoOp() Spec {
	return Spec{Kind: Copy, Method: MethodStore, Level: DefaultLevel}
}

// Deflate returns the Spec for a raw DEFLATE compressor with the given level.
func Deflate(level int) Spec {
	return Spec{Kind: Compress, Method: MethodDeflate, Level: level}
}

// Inflate returns the Spec for a raw DEFLATE decompressor.
func Inflate() Spec {
	return Spec{Kind: Decompress, Method: MethodDeflate, Level: DefaultLevel}
}

// Compressor returns the Spec that compresses with the given ZIP method.
//
// MethodStore returns NoOp.
func Compressor(method uint16, level int) Spec {
	if method == MethodStore {
		return NoOp()
	}

	return Spec{Kind: Compress, Method: method, Level: level}
}

// Decompressor returns the Spec that decompresses data stored with the given ZIP method.
//
// MethodStore returns NoOp, zstd and xz get their own decoders, and every other method is treated as DEFLATE.
func Decompressor(method uint16) Spec {
	switch method {
	case MethodStore:
		return NoOp()
	case MethodZstd, MethodXZ:
		return Spec{Kind: Decompress, Method: method, Level: DefaultLevel}
	default:
		return Inflate()
	}
}

// Family returns the name of the codec family that must be loaded to create this Spec's Transform.
func (s Spec) Family() string {
	if s.Kind == Copy {
		return FamilyCopy
	}

	switch s.Method {
	case MethodDeflate:
		return FamilyDeflate
	case MethodZstd:
		return FamilyZstd
	case MethodXZ:
		return FamilyXZ
	default:
		return fmt.Sprintf("method-%d", s.Method)
	}
}

func (s Spec) String() string {
	if s.Kind == Copy {
		return "copy"
	}

	return fmt.Sprintf("%s %s", s.Family(), s.Kind)
}

// Codec returns the Codec for this Spec's method.
func (s Spec) Codec() (Codec, error) {
	switch s.Method {
	case MethodDeflate:
		return FlateCodec{Level: s.Level}, nil
	case MethodZstd:
		return ZstdCodec{Level: s.Level}, nil
	case MethodXZ:
		return XzCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported compression method %d", s.Method)
	}
}

// Codec family names, see Spec.Family.
const (
	FamilyCopy    = "copy"
	FamilyDeflate = "deflate"
	FamilyZstd    = "zstd"
	FamilyXZ      = "xz"
)

// Families lists every codec family this package can create.
var Families = []string{FamilyCopy, FamilyDeflate, FamilyZstd, FamilyXZ}
