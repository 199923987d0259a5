// Package source provides random-access byte sources that ZIP archives can be read from.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// Source is a random-access byte source.
//
// Implementations are not safe for concurrent use unless documented otherwise.
type Source interface {
	// Init prepares the source for reading and returns its total size in bytes.
	//
	// Init must be called before ReadRange. Calling Init more than once is allowed and returns the same size.
	Init(ctx context.Context) (int64, error)

	// ReadRange returns exactly length bytes starting at offset.
	//
	// The returned slice is owned by the caller. A *ReadError wrapping ErrOutOfRange is returned if the range
	// exceeds the size returned by Init.
	ReadRange(ctx context.Context, offset, length int64) ([]byte, error)
}

// ErrOutOfRange is wrapped by ReadError when a requested range lies outside the source.
var ErrOutOfRange = errors.New("range out of bounds")

// ReadError is returned when reading from a Source fails (ReadFault).
type ReadError struct {
	Offset, Length int64
	Err            error
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read range (offset=%d, length=%d) error: %v", e.Offset, e.Length, e.Err)
}

// checkRange returns a *ReadError if [offset, offset+length) does not fit in size.
func checkRange(offset, length, size int64) error {
	if offset < 0 || length < 0 || offset+length > size {
		return &ReadError{Offset: offset, Length: length, Err: fmt.Errorf("%w: size is %d", ErrOutOfRange, size)}
	}

	return nil
}

// Text reads the bytes of an in-memory string.
type Text struct {
	data []byte
}

// NewText returns a Source over the UTF-8 bytes of text.
func NewText(text string) *Text {
	return &Text{data: []byte(text)}
}

func (t *Text) Init(_ context.Context) (int64, error) {
	return int64(len(t.data)), nil
}

func (t *Text) ReadRange(_ context.Context, offset, length int64) ([]byte, error) {
	if err := checkRange(offset, length, int64(len(t.data))); err != nil {
		return nil, err
	}

	b := make([]byte, length)
	copy(b, t.data[offset:offset+length])
	return b, nil
}

// Blob reads ranges from an io.ReaderAt of known size.
//
// Blob is safe for concurrent use if the underlying io.ReaderAt is.
type Blob struct {
	r    io.ReaderAt
	size int64
}

// NewBlob returns a Source over the first size bytes of r.
func NewBlob(r io.ReaderAt, size int64) *Blob {
	return &Blob{r: r, size: size}
}

// NewBytes returns a Source over an in-memory byte slice. The slice must not be modified while in use.
func NewBytes(data []byte) *Blob {
	return &Blob{r: bytesReaderAt(data), size: int64(len(data))}
}

func (b *Blob) Init(_ context.Context) (int64, error) {
	return b.size, nil
}

func (b *Blob) ReadRange(_ context.Context, offset, length int64) ([]byte, error) {
	if err := checkRange(offset, length, b.size); err != nil {
		return nil, err
	}

	data := make([]byte, length)
	if length == 0 {
		return data, nil
	}

	switch n, err := b.r.ReadAt(data, offset); {
	case int64(n) == length:
		return data, nil
	case err == nil, errors.Is(err, io.EOF):
		return nil, &ReadError{Offset: offset, Length: length, Err: io.ErrUnexpectedEOF}
	default:
		return nil, &ReadError{Offset: offset, Length: length, Err: err}
	}
}

type bytesReaderAt []byte

func (b bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(b)) {
		return 0, io.EOF
	}

	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

// File is a Blob over a local file that determines its size in Init.
type File struct {
	Blob
	f *os.File
}

// NewFile opens the named file for reading. The caller must call Close when done.
func NewFile(name string) (*File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	return &File{Blob: Blob{r: f, size: -1}, f: f}, nil
}

func (f *File) Init(_ context.Context) (int64, error) {
	if f.size >= 0 {
		return f.size, nil
	}

	fi, err := f.f.Stat()
	if err != nil {
		return 0, &ReadError{Err: fmt.Errorf("stat file error: %w", err)}
	}

	f.size = fi.Size()
	return f.size, nil
}

// Name returns the name of the file.
func (f *File) Name() string {
	return f.f.Name()
}

// Close closes the underlying file.
func (f *File) Close() error {
	return f.f.Close()
}
