package zip

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/nguyengg/rzip/checksum"
	"github.com/nguyengg/rzip/codec"
	"github.com/nguyengg/rzip/delegate"
	"github.com/nguyengg/rzip/sink"
	"github.com/nguyengg/rzip/source"
	"github.com/nguyengg/rzip/transfer"
	"github.com/valyala/bytebufferpool"
)

// Writer writes a ZIP archive to a sink.Sink.
//
// Every entry is written with bit 3 of its flags set, so the CRC-32 and sizes follow the data in a data descriptor
// and the local file header already written to the sink is never patched. A Writer must not be used concurrently.
type Writer[T any] struct {
	dst     sink.Sink[T]
	opts    Options
	unit    *delegate.Unit
	offset  int64
	entries []*pending
	names   map[string]struct{}
	closed  bool
}

// pending is what Close needs to write one central directory file header.
type pending struct {
	// header is the in-memory copy of the local file header, patched with the CRC-32 and sizes once known.
	header    []byte
	name      []byte
	comment   []byte
	offset    int64
	directory bool
}

// NewWriter initialises dst and returns a Writer for it.
//
// If delegation is enabled, the delegate.Unit is started here and terminated by Writer.Close.
func NewWriter[T any](ctx context.Context, dst sink.Sink[T], optFns ...func(*Options)) (*Writer[T], error) {
	opts := Options{Method: codec.MethodDeflate}
	for _, fn := range optFns {
		fn(&opts)
	}

	switch opts.Method {
	case codec.MethodDeflate, codec.MethodZstd, codec.MethodXZ:
	default:
		return nil, fmt.Errorf("unsupported compression method %d", opts.Method)
	}

	if err := dst.Init(ctx); err != nil {
		return nil, fmt.Errorf("init sink error: %w", err)
	}

	unit, err := startUnit(ctx, &opts)
	if err != nil {
		if a, ok := dst.(sink.Aborter); ok {
			a.Abort(err)
		}
		return nil, err
	}

	return &Writer[T]{
		dst:   dst,
		opts:  opts,
		unit:  unit,
		names: make(map[string]struct{}),
	}, nil
}

// Add writes a new entry with the given name and content from src.
//
// src may be nil for directories and empty files; otherwise it is initialised here. The name is trimmed of surrounding
// whitespace; directories always end with "/". Adding an existing name returns ErrDuplicatedName without writing
// anything. Any other error leaves the sink in an unspecified state and the archive should be discarded.
func (w *Writer[T]) Add(ctx context.Context, name string, src source.Source, optFns ...func(*AddOptions)) error {
	if w.closed {
		return ErrClosed
	}

	opts := &AddOptions{
		Modified: time.Now(),
		Level:    codec.DefaultLevel,
	}
	for _, fn := range optFns {
		fn(opts)
	}

	var size int64
	if src != nil {
		var err error
		if size, err = src.Init(ctx); err != nil {
			return fmt.Errorf("init source error: %w", err)
		}
		if size >= uint32max {
			return fmt.Errorf("add %q: source is %d bytes: %w", name, size, ErrZip64)
		}
	}

	name = strings.TrimSpace(name)
	directory := opts.Directory || strings.HasSuffix(name, "/")
	if directory && !strings.HasSuffix(name, "/") {
		name += "/"
	}

	switch _, ok := w.names[name]; {
	case name == "" || name == "/":
		return ErrEmptyName
	case ok:
		return fmt.Errorf("add %q: %w", name, ErrDuplicatedName)
	case len(w.entries) >= uint16max:
		return fmt.Errorf("add %q: too many entries: %w", name, ErrZip64)
	case len(name) > uint16max || len(opts.Comment) > uint16max:
		return fmt.Errorf("add %q: name or comment is too long: %w", name, ErrBadFormat)
	case w.offset+localFileHeaderLen+int64(len(name)) >= uint32max:
		return fmt.Errorf("add %q: offset exceeds 32 bits: %w", name, ErrZip64)
	}

	method := w.opts.Method
	if w.opts.DontDeflate || opts.Level == 0 || directory {
		method = codec.MethodStore
	}

	version := versionDefault
	if isExtendedMethod(method) {
		version = versionExtendedMethods
	}
	if opts.Version != 0 {
		version = opts.Version
	}

	p := &pending{
		header:    make([]byte, localFileHeaderLen),
		name:      []byte(name),
		comment:   []byte(opts.Comment),
		offset:    w.offset,
		directory: directory,
	}
	dosDate, dosTime := timeToMsDosTime(opts.Modified)
	binary.LittleEndian.PutUint32(p.header[0:], sigLocalFileHeader)
	binary.LittleEndian.PutUint16(p.header[4:], version)
	binary.LittleEndian.PutUint16(p.header[6:], flagDataDescriptor|flagUTF8)
	binary.LittleEndian.PutUint16(p.header[8:], method)
	binary.LittleEndian.PutUint16(p.header[10:], dosTime)
	binary.LittleEndian.PutUint16(p.header[12:], dosDate)
	binary.LittleEndian.PutUint16(p.header[26:], uint16(len(p.name)))

	if err := w.write(ctx, append(p.header[:localFileHeaderLen:localFileHeaderLen], p.name...)); err != nil {
		return fmt.Errorf("add %q: write local file header error: %w", name, err)
	}

	// names are reserved as soon as the local file header is on the sink.
	w.names[name] = struct{}{}

	var res transfer.Result
	if src != nil {
		spec := codec.NoOp()
		if method != codec.MethodStore {
			spec = codec.Compressor(method, opts.Level)
		}

		var err error
		if res, err = transfer.Run(ctx, src, w.dst, 0, size, spec, append([]func(*transfer.Options){func(o *transfer.Options) {
			o.CRC = checksum.Input
			o.Unit = w.unit
		}}, opts.Transfer...)...); err != nil {
			return fmt.Errorf("add %q error: %w", name, err)
		}
		w.offset += res.Size

		if res.Size >= uint32max {
			return fmt.Errorf("add %q: compressed size is %d bytes: %w", name, res.Size, ErrZip64)
		}
	}

	binary.LittleEndian.PutUint32(p.header[14:], res.CRC32)
	binary.LittleEndian.PutUint32(p.header[18:], uint32(res.Size))
	binary.LittleEndian.PutUint32(p.header[22:], uint32(size))

	descriptor := make([]byte, dataDescriptorLen)
	binary.LittleEndian.PutUint32(descriptor[0:], sigDataDescriptor)
	copy(descriptor[4:], p.header[14:26])
	if err := w.write(ctx, descriptor); err != nil {
		return fmt.Errorf("add %q: write data descriptor error: %w", name, err)
	}

	w.entries = append(w.entries, p)
	return nil
}

// Close writes the central directory and the end of central directory record, then finalises the sink.
//
// The delegate.Unit, if any, is terminated first. Closing a closed Writer returns ErrClosed.
func (w *Writer[T]) Close(ctx context.Context) (v T, err error) {
	if w.closed {
		return v, ErrClosed
	}
	w.closed = true

	if w.unit != nil {
		w.unit.Terminate()
		w.unit = nil
	}

	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	cdOffset := w.offset
	for _, p := range w.entries {
		h := make([]byte, centralDirectoryLen)
		binary.LittleEndian.PutUint32(h[0:], sigCentralDirectory)
		binary.LittleEndian.PutUint16(h[4:], versionMadeBy)
		copy(h[6:32], p.header[4:30])
		binary.LittleEndian.PutUint16(h[32:], uint16(len(p.comment)))
		if p.directory {
			binary.LittleEndian.PutUint32(h[38:], attrDirectory)
		}
		binary.LittleEndian.PutUint32(h[42:], uint32(p.offset))

		_, _ = bb.Write(h)
		_, _ = bb.Write(p.name)
		_, _ = bb.Write(p.comment)
	}

	cdSize := int64(bb.Len())
	if cdOffset >= uint32max || cdSize >= uint32max {
		return v, fmt.Errorf("write central directory: %w", ErrZip64)
	}

	eocd := make([]byte, endOfCentralDirLen)
	binary.LittleEndian.PutUint32(eocd[0:], sigEndOfCentralDir)
	binary.LittleEndian.PutUint16(eocd[8:], uint16(len(w.entries)))
	binary.LittleEndian.PutUint16(eocd[10:], uint16(len(w.entries)))
	binary.LittleEndian.PutUint32(eocd[12:], uint32(cdSize))
	binary.LittleEndian.PutUint32(eocd[16:], uint32(cdOffset))
	_, _ = bb.Write(eocd)

	if err = w.write(ctx, bb.B); err != nil {
		return v, fmt.Errorf("write central directory error: %w", err)
	}

	if v, err = w.dst.Finalize(ctx); err != nil {
		return v, fmt.Errorf("finalize sink error: %w", err)
	}

	return v, nil
}

// Abort discards the archive after a failed Add.
//
// The delegate.Unit, if any, is terminated. No central directory is written and the sink is never finalised; if the
// sink implements sink.Aborter, it is aborted with err. Add and Close return ErrClosed afterwards.
func (w *Writer[T]) Abort(err error) {
	if w.closed {
		return
	}
	w.closed = true

	if w.unit != nil {
		w.unit.Terminate()
		w.unit = nil
	}

	if a, ok := w.dst.(sink.Aborter); ok {
		a.Abort(err)
	}
}

// Len returns the number of entries added so far.
func (w *Writer[T]) Len() int {
	return len(w.entries)
}

func (w *Writer[T]) write(ctx context.Context, p []byte) error {
	if err := w.dst.WriteChunk(ctx, p); err != nil {
		return err
	}

	w.offset += int64(len(p))
	return nil
}
