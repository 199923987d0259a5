// Package sink provides append-only byte sinks that ZIP archives and extracted entries can be written to.
package sink

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/text/encoding/htmlindex"
)

// Writer is the append-only part of a sink.
type Writer interface {
	// Init prepares the sink for writing.
	Init(ctx context.Context) error

	// WriteChunk appends p to the sink.
	//
	// WriteChunk never overwrites previous writes and preserves the order of calls. The sink must not retain p after
	// returning.
	WriteChunk(ctx context.Context, p []byte) error
}

// Sink is a Writer that can materialize everything written to it as a T.
type Sink[T any] interface {
	Writer

	// Finalize materializes the written byte sequence.
	//
	// After Finalize, the sink must not be written to.
	Finalize(ctx context.Context) (T, error)
}

// Aborter is implemented by sinks that can discard what was written to them instead of materializing it.
type Aborter interface {
	// Abort releases the sink's resources without finalizing it. err is the reason, ErrAborted if nil.
	Abort(err error)
}

// ErrAborted is the default reason passed to Aborter.Abort.
var ErrAborted = errors.New("sink aborted")

// WriteError is returned when writing to a sink fails (WriteFault).
type WriteError struct {
	Err error
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write chunk error: %v", e.Err)
}

// Text accumulates bytes and materializes them as a string.
type Text struct {
	// Encoding is the name of the charset the written bytes are encoded in (e.g. "utf-8", "windows-1252").
	//
	// By default, bytes are assumed to be UTF-8 and are converted to string as is.
	Encoding string

	bb *bytebufferpool.ByteBuffer
}

var _ Sink[string] = &Text{}

// NewText returns a sink that produces a string, decoding the bytes with the named charset if non-empty.
func NewText(encoding string) *Text {
	return &Text{Encoding: encoding}
}

func (t *Text) Init(_ context.Context) error {
	if t.bb == nil {
		t.bb = bytebufferpool.Get()
	}

	t.bb.Reset()
	return nil
}

func (t *Text) WriteChunk(_ context.Context, p []byte) error {
	if t.bb == nil {
		t.bb = bytebufferpool.Get()
	}

	_, _ = t.bb.Write(p)
	return nil
}

func (t *Text) Finalize(_ context.Context) (string, error) {
	if t.bb == nil {
		return "", nil
	}

	defer func() {
		bytebufferpool.Put(t.bb)
		t.bb = nil
	}()

	switch strings.ToLower(t.Encoding) {
	case "", "utf-8", "utf8":
		return t.bb.String(), nil
	}

	enc, err := htmlindex.Get(t.Encoding)
	if err != nil {
		return "", &WriteError{Err: fmt.Errorf("unknown encoding %q: %w", t.Encoding, err)}
	}

	b, err := enc.NewDecoder().Bytes(t.bb.B)
	if err != nil {
		return "", &WriteError{Err: fmt.Errorf("decode %s text error: %w", t.Encoding, err)}
	}

	return string(b), nil
}

// DataURI encodes written bytes as a base64 data URI.
//
// Only whole groups of 3 bytes are encoded per write; up to 2 leftover bytes are kept until the next write or
// Finalize.
type DataURI struct {
	// ContentType is used as the media type of the data URI.
	ContentType string

	data    strings.Builder
	pending []byte
}

var _ Sink[string] = &DataURI{}

// NewDataURI returns a sink that produces a "data:{contentType};base64,..." string.
func NewDataURI(contentType string) *DataURI {
	return &DataURI{ContentType: contentType}
}

func (d *DataURI) Init(_ context.Context) error {
	d.data.Reset()
	d.data.WriteString("data:")
	d.data.WriteString(d.ContentType)
	d.data.WriteString(";base64,")
	d.pending = make([]byte, 0, 2)
	return nil
}

func (d *DataURI) WriteChunk(_ context.Context, p []byte) error {
	if len(d.pending)+len(p) < 3 {
		d.pending = append(d.pending, p...)
		return nil
	}

	// complete the pending group first.
	if n := len(d.pending); n > 0 {
		d.pending = append(d.pending, p[:3-n]...)
		d.data.WriteString(base64.StdEncoding.EncodeToString(d.pending))
		d.pending = d.pending[:0]
		p = p[3-n:]
	}

	m := len(p) / 3 * 3
	if m > 0 {
		d.data.WriteString(base64.StdEncoding.EncodeToString(p[:m]))
	}

	d.pending = append(d.pending, p[m:]...)
	return nil
}

func (d *DataURI) Finalize(_ context.Context) (string, error) {
	if len(d.pending) > 0 {
		d.data.WriteString(base64.StdEncoding.EncodeToString(d.pending))
		d.pending = d.pending[:0]
	}

	return d.data.String(), nil
}

// Blob accumulates written bytes in memory.
type Blob struct {
	// ContentType is the content type of the blob.
	ContentType string

	bb *bytebufferpool.ByteBuffer
}

var _ Sink[[]byte] = &Blob{}

// NewBlob returns a sink that produces the written bytes.
func NewBlob(contentType string) *Blob {
	return &Blob{ContentType: contentType}
}

func (b *Blob) Init(_ context.Context) error {
	if b.bb == nil {
		b.bb = bytebufferpool.Get()
	}

	b.bb.Reset()
	return nil
}

func (b *Blob) WriteChunk(_ context.Context, p []byte) error {
	if b.bb == nil {
		b.bb = bytebufferpool.Get()
	}

	_, _ = b.bb.Write(p)
	return nil
}

// Len returns the number of bytes written so far.
func (b *Blob) Len() int {
	if b.bb == nil {
		return 0
	}

	return b.bb.Len()
}

// Finalize returns a copy of the written bytes and releases the internal buffer.
func (b *Blob) Finalize(_ context.Context) ([]byte, error) {
	if b.bb == nil {
		return []byte{}, nil
	}

	data := make([]byte, b.bb.Len())
	copy(data, b.bb.B)

	bytebufferpool.Put(b.bb)
	b.bb = nil
	return data, nil
}

// Stream writes chunks straight through to an io.Writer such as an *os.File.
//
// Finalize returns the number of bytes written. Stream does not close the io.Writer.
type Stream struct {
	w       io.Writer
	written int64
}

var _ Sink[int64] = &Stream{}

// NewStream returns a sink that writes to w.
func NewStream(w io.Writer) *Stream {
	return &Stream{w: w}
}

func (s *Stream) Init(_ context.Context) error {
	return nil
}

func (s *Stream) WriteChunk(_ context.Context, p []byte) error {
	switch n, err := s.w.Write(p); {
	case err != nil:
		s.written += int64(n)
		return &WriteError{Err: err}
	case n != len(p):
		s.written += int64(n)
		return &WriteError{Err: io.ErrShortWrite}
	default:
		s.written += int64(n)
		return nil
	}
}

func (s *Stream) Finalize(_ context.Context) (int64, error) {
	return s.written, nil
}
