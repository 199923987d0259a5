// Package transfer streams a byte range of a source.Source through a codec into a sink.Writer, chunk by chunk.
package transfer

import (
	"context"
	"fmt"

	"github.com/nguyengg/rzip/checksum"
	"github.com/nguyengg/rzip/codec"
	"github.com/nguyengg/rzip/delegate"
	"github.com/nguyengg/rzip/sink"
	"github.com/nguyengg/rzip/source"
)

// ChunkSize is the default number of bytes read from the source per iteration.
const ChunkSize int64 = 512 * 1024

// Options customises Run.
type Options struct {
	// ChunkSize is the number of bytes read from the source per iteration.
	//
	// By default, ChunkSize is used.
	ChunkSize int64

	// CRC selects which side of the codec is checksummed.
	//
	// Use checksum.Output when extracting (the decompressed bytes) and checksum.Input when compressing or storing (the
	// uncompressed bytes). By default, checksum.None does not compute any checksum and Result.CRC32 is 0.
	CRC checksum.Mode

	// Progress is called after each chunk has been consumed by the codec with the number of source bytes processed so
	// far and the total number of source bytes.
	Progress func(processed, total int64)

	// Unit runs the codec on the given execution unit instead of in-process if non-nil.
	//
	// Output, checksum, and progress are identical either way.
	Unit *delegate.Unit
}

// Result is the outcome of a successful Run.
type Result struct {
	// Size is the total number of bytes written to the sink.
	Size int64
	// CRC32 is the checksum of either the input or output bytes depending on Options.CRC.
	CRC32 uint32
}

// Run reads size bytes starting at offset from src, passes them through the Transform described by spec, and writes the
// output to dst.
//
// Every chunk index from 0 up to and including size is processed; when size is a multiple of the chunk size (including
// 0), this means one final zero-length append before the codec is flushed. The first error from src (*source.ReadError),
// dst (*sink.WriteError), the codec (*codec.Error), or the unit (*delegate.Error) aborts the transfer and is returned
// as is. dst is neither initialised nor finalised by Run.
func Run(ctx context.Context, src source.Source, dst sink.Writer, offset, size int64, spec codec.Spec, optFns ...func(*Options)) (res Result, err error) {
	opts := &Options{ChunkSize: ChunkSize}
	for _, fn := range optFns {
		fn(opts)
	}
	if opts.ChunkSize <= 0 {
		return res, fmt.Errorf("invalid chunk size %d", opts.ChunkSize)
	}

	var p processor
	if opts.Unit != nil {
		p = &delegated{task: opts.Unit.Submit(spec, opts.CRC)}
	} else if p, err = newLocal(spec, opts.CRC); err != nil {
		return res, err
	}
	defer p.close()

	report := func(processed int64) {
		if opts.Progress != nil {
			opts.Progress(processed, size)
		}
	}

	write := func(out []byte) error {
		if len(out) == 0 {
			return nil
		}

		if err := dst.WriteChunk(ctx, out); err != nil {
			return err
		}

		res.Size += int64(len(out))
		return nil
	}

	for index := int64(0); index <= size; index += opts.ChunkSize {
		if err = ctx.Err(); err != nil {
			return res, err
		}

		data := []byte{}
		if n := min(opts.ChunkSize, size-index); n > 0 {
			if data, err = src.ReadRange(ctx, offset+index, n); err != nil {
				return res, err
			}
		}

		out, err := p.append(ctx, data, index, report)
		if err != nil {
			return res, err
		}

		if err = write(out); err != nil {
			return res, err
		}
	}

	out, crc, err := p.flush(ctx)
	if err != nil {
		return res, err
	}
	if err = write(out); err != nil {
		return res, err
	}

	res.CRC32 = crc
	return res, nil
}

// processor abstracts in-process and delegated execution of the codec.
type processor interface {
	append(ctx context.Context, data []byte, index int64, report func(processed int64)) ([]byte, error)
	flush(ctx context.Context) ([]byte, uint32, error)
	close()
}

type local struct {
	t    codec.Transform
	crc  *checksum.CRC32
	mode checksum.Mode
}

func newLocal(spec codec.Spec, mode checksum.Mode) (*local, error) {
	t, err := spec.New()
	if err != nil {
		return nil, err
	}

	l := &local{t: t, mode: mode}
	if mode != checksum.None {
		l.crc = checksum.New()
	}

	return l, nil
}

func (l *local) append(_ context.Context, data []byte, index int64, report func(processed int64)) ([]byte, error) {
	out, err := l.t.Append(data)
	if err != nil {
		return nil, err
	}

	l.checksum(data, out)
	report(index + int64(len(data)))
	return out, nil
}

func (l *local) flush(_ context.Context) ([]byte, uint32, error) {
	out, err := l.t.Flush()
	if err != nil {
		return nil, 0, err
	}

	l.checksum(nil, out)
	if l.crc == nil {
		return out, 0, nil
	}

	return out, l.crc.Get(), nil
}

func (l *local) checksum(in, out []byte) {
	switch l.mode {
	case checksum.Input:
		l.crc.Append(in)
	case checksum.Output:
		l.crc.Append(out)
	}
}

func (l *local) close() {
	_ = l.t.Close()
}

type delegated struct {
	task *delegate.Task
}

func (d *delegated) append(ctx context.Context, data []byte, _ int64, report func(processed int64)) ([]byte, error) {
	return d.task.Append(ctx, data, report)
}

func (d *delegated) flush(ctx context.Context) ([]byte, uint32, error) {
	return d.task.Flush(ctx)
}

func (d *delegated) close() {
	d.task.Close()
}
