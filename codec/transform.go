package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Transform is the chunk-level contract of a codec.
//
// Append consumes the whole input chunk and returns whatever output is ready, which may be empty. Flush signals the
// end of input and returns the remaining output. Close releases resources of a Transform that is abandoned before
// Flush; it is a no-op afterwards.
//
// All errors returned by Append and Flush, including recovered panics, are *Error.
type Transform interface {
	Append(p []byte) ([]byte, error)
	Flush() ([]byte, error)
	Close() error
}

// Error is returned when a Transform fails (CodecFault).
type Error struct {
	// Op is either "append" or "flush".
	Op   string
	Spec Spec
	Err  error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s error: %v", e.Spec, e.Op, e.Err)
}

// ErrAborted is the error the decoder goroutine sees when a Transform is closed before Flush.
var ErrAborted = errors.New("transform aborted")

// New creates the Transform described by s.
func (s Spec) New() (Transform, error) {
	var (
		t   Transform
		err error
	)

	switch s.Kind {
	case Copy:
		t = &copyTransform{}
	case Compress:
		t, err = newEncoder(s)
	case Decompress:
		t, err = newDecoder(s)
	default:
		err = fmt.Errorf("unknown kind %v", s.Kind)
	}

	if err != nil {
		return nil, &Error{Op: "create", Spec: s, Err: err}
	}

	return &guard{spec: s, t: t}, nil
}

// guard converts panics into *Error and makes sure every error is *Error.
type guard struct {
	spec Spec
	t    Transform
}

func (g *guard) Append(p []byte) (out []byte, err error) {
	defer g.recover("append", &err)
	out, err = g.t.Append(p)
	return
}

func (g *guard) Flush() (out []byte, err error) {
	defer g.recover("flush", &err)
	out, err = g.t.Flush()
	return
}

func (g *guard) Close() error {
	return g.t.Close()
}

func (g *guard) recover(op string, err *error) {
	if r := recover(); r != nil {
		*err = &Error{Op: op, Spec: g.spec, Err: fmt.Errorf("panic: %v", r)}
		return
	}

	if *err != nil {
		var ce *Error
		if !errors.As(*err, &ce) {
			*err = &Error{Op: op, Spec: g.spec, Err: *err}
		}
	}
}

type copyTransform struct {
}

func (c *copyTransform) Append(p []byte) ([]byte, error) {
	return p, nil
}

func (c *copyTransform) Flush() ([]byte, error) {
	return nil, nil
}

func (c *copyTransform) Close() error {
	return nil
}

// lockedBuffer is written to by encoders and decoders, possibly from their own goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// drain returns a copy of the buffered bytes and resets the buffer.
func (b *lockedBuffer) drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.buf.Len() == 0 {
		return nil
	}

	out := bytes.Clone(b.buf.Bytes())
	b.buf.Reset()
	return out
}

type encoder struct {
	out    lockedBuffer
	enc    io.WriteCloser
	closed bool
}

func newEncoder(s Spec) (*encoder, error) {
	c, err := s.Codec()
	if err != nil {
		return nil, err
	}

	e := &encoder{}
	if e.enc, err = c.NewEncoder(&e.out); err != nil {
		return nil, err
	}

	return e, nil
}

func (e *encoder) Append(p []byte) ([]byte, error) {
	if len(p) > 0 {
		if _, err := e.enc.Write(p); err != nil {
			return nil, err
		}
	}

	return e.out.drain(), nil
}

func (e *encoder) Flush() ([]byte, error) {
	e.closed = true
	if err := e.enc.Close(); err != nil {
		return nil, err
	}

	return e.out.drain(), nil
}

func (e *encoder) Close() error {
	if e.closed {
		return nil
	}

	e.closed = true
	return e.enc.Close()
}

// decoder feeds appended chunks through an io.Pipe to a goroutine running the stream decoder.
//
// Bytes after the end of the compressed stream are read and discarded.
type decoder struct {
	out    lockedBuffer
	pw     *io.PipeWriter
	done   chan struct{}
	err    error
	closed bool
}

func newDecoder(s Spec) (*decoder, error) {
	c, err := s.Codec()
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	d := &decoder{pw: pw, done: make(chan struct{})}

	go func() {
		defer close(d.done)
		defer func() {
			if r := recover(); r != nil {
				d.err = fmt.Errorf("panic: %v", r)
				_ = pr.CloseWithError(d.err)
			}
		}()

		dec, err := c.NewDecoder(pr)
		if err != nil {
			d.err = err
			_ = pr.CloseWithError(err)
			return
		}
		defer dec.Close()

		if _, err = io.Copy(&d.out, dec); err != nil {
			d.err = err
			_ = pr.CloseWithError(err)
			return
		}

		_, _ = io.Copy(io.Discard, pr)
	}()

	return d, nil
}

func (d *decoder) Append(p []byte) ([]byte, error) {
	if len(p) > 0 {
		if _, err := d.pw.Write(p); err != nil {
			return nil, err
		}
	}

	return d.out.drain(), nil
}

func (d *decoder) Flush() ([]byte, error) {
	d.closed = true
	_ = d.pw.Close()
	<-d.done

	if d.err != nil {
		return nil, d.err
	}

	return d.out.drain(), nil
}

func (d *decoder) Close() error {
	if d.closed {
		return nil
	}

	d.closed = true
	_ = d.pw.CloseWithError(ErrAborted)
	<-d.done
	return nil
}
