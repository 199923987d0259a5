// Package zip reads and writes ZIP archives over source.Source and sink.Sink.
//
// Archives are never loaded into memory as a whole: the reader fetches the end of central directory record, the
// central directory, and each entry's data with ranged reads, while the writer appends every entry to the sink as soon
// as it is added and the central directory on Close. Entry data can optionally be compressed and decompressed on a
// delegate.Unit owned by the archive.
//
// ZIP64, encryption, and multi-volume archives are detected and rejected.
package zip

import (
	"context"
	"fmt"
	"time"

	"github.com/nguyengg/rzip/codec"
	"github.com/nguyengg/rzip/delegate"
	"github.com/nguyengg/rzip/transfer"
)

// Entry is a central directory file header.
//
// Entries are produced by Reader.Entries and must be treated as read-only.
type Entry struct {
	// Name is the entry's name, decoded as UTF-8 if the UTF-8 flag is set or as CP437 otherwise.
	Name string
	// Comment is the entry's comment, decoded the same way as Name.
	Comment string
	// Extra is the raw extra field from the central directory.
	Extra []byte

	CreatorVersion uint16
	ReaderVersion  uint16
	Flags          uint16
	Method         uint16

	// ModifiedTime and ModifiedDate are the packed MS-DOS time and date.
	ModifiedTime uint16
	ModifiedDate uint16
	// Modified is ModifiedDate and ModifiedTime decoded in UTC.
	Modified time.Time

	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	ExternalAttrs    uint32

	// Offset is the offset of the entry's local file header from the start of the archive.
	Offset int64

	// Directory is true if the directory attribute is set or the name ends with "/".
	Directory bool
}

// Options customises NewReader and NewWriter.
type Options struct {
	// Delegate enables running codecs on a delegate.Unit owned by the archive.
	//
	// The unit is started by NewReader or NewWriter and terminated by Reader.Close or Writer.Close.
	Delegate bool

	// DelegateOptions customises the delegate.Unit if Delegate is true.
	DelegateOptions []func(*delegate.Options)

	// DontDeflate makes Writer.Add store every entry without compression.
	DontDeflate bool

	// Method is the compression method Writer.Add uses for compressed entries.
	//
	// By default, codec.MethodDeflate is used. codec.MethodZstd and codec.MethodXZ are also supported.
	Method uint16
}

// WithDelegation enables delegated execution with the given delegate.Options.
func WithDelegation(optFns ...func(*delegate.Options)) func(*Options) {
	return func(opts *Options) {
		opts.Delegate = true
		opts.DelegateOptions = append(opts.DelegateOptions, optFns...)
	}
}

// ExtractOptions customises Reader.Extract.
type ExtractOptions struct {
	// SkipCRC disables verifying the entry's CRC-32.
	SkipCRC bool

	// Transfer customises the transfer of the entry's data, such as adding progress reporting.
	Transfer []func(*transfer.Options)
}

// SkipCRC disables CRC-32 verification during extraction.
func SkipCRC(opts *ExtractOptions) {
	opts.SkipCRC = true
}

// AddOptions customises Writer.Add.
type AddOptions struct {
	// Directory marks the entry as a directory, appending "/" to its name if needed.
	//
	// Names ending with "/" are always directories. Directory entries are always stored.
	Directory bool

	// Comment is the entry's comment.
	Comment string

	// Modified is the entry's last modified time.
	//
	// By default, time.Now is used.
	Modified time.Time

	// Level is the compression level.
	//
	// By default, codec.DefaultLevel is used. Level 0 stores the entry without compression.
	Level int

	// Version overrides the "version needed to extract" field.
	Version uint16

	// Transfer customises the transfer of the entry's data, such as adding progress reporting.
	Transfer []func(*transfer.Options)
}

func startUnit(ctx context.Context, opts *Options) (*delegate.Unit, error) {
	if !opts.Delegate {
		return nil, nil
	}

	u, err := delegate.Start(ctx, opts.DelegateOptions...)
	if err != nil {
		return nil, fmt.Errorf("start delegate error: %w", err)
	}

	return u, nil
}

func isExtendedMethod(method uint16) bool {
	return method == codec.MethodZstd || method == codec.MethodXZ
}
