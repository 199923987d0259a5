package zip

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/nguyengg/rzip/checksum"
	"github.com/nguyengg/rzip/codec"
	"github.com/nguyengg/rzip/delegate"
	"github.com/nguyengg/rzip/sink"
	"github.com/nguyengg/rzip/source"
	"github.com/nguyengg/rzip/transfer"
	"golang.org/x/text/encoding/charmap"
)

// EOCDRecord models the end of central directory record of a ZIP file.
//
// See https://en.wikipedia.org/wiki/ZIP_(file_format)#End_of_central_directory_record_(EOCD).
type EOCDRecord struct {
	// DiskNumber is number of this disk.
	DiskNumber uint16
	// CDDiskNumber is disk where central directory starts.
	CDDiskNumber uint16
	// CDCountOnDisk is the number of central directory records on this disk.
	CDCountOnDisk uint16
	// CDCount is the total number of central directory records.
	CDCount uint16
	// CDSize is size of central directory (bytes).
	CDSize uint32
	// CDOffset is offset of start of central directory, relative to start of archive.
	CDOffset uint32
	// Comment is the archive comment.
	Comment string
	// Offset is where the record starts, relative to start of archive.
	Offset int64
}

// Reader reads a ZIP archive from a source.Source.
//
// A Reader must not be used concurrently.
type Reader struct {
	src     source.Source
	size    int64
	unit    *delegate.Unit
	eocd    EOCDRecord
	entries []Entry
	parsed  bool
}

// NewReader initialises src and returns a Reader for it.
//
// If delegation is enabled, the delegate.Unit is started here and Reader.Close must be called to terminate it.
func NewReader(ctx context.Context, src source.Source, optFns ...func(*Options)) (*Reader, error) {
	opts := &Options{}
	for _, fn := range optFns {
		fn(opts)
	}

	size, err := src.Init(ctx)
	if err != nil {
		return nil, fmt.Errorf("init source error: %w", err)
	}

	unit, err := startUnit(ctx, opts)
	if err != nil {
		return nil, err
	}

	return &Reader{src: src, size: size, unit: unit}, nil
}

// Size returns the size of the archive.
func (r *Reader) Size() int64 {
	return r.size
}

// EOCD returns the end of central directory record found by Entries.
func (r *Reader) EOCD() EOCDRecord {
	return r.eocd
}

// Entries locates and parses the central directory.
//
// The result is cached so subsequent calls do not read from the source again.
func (r *Reader) Entries(ctx context.Context) ([]Entry, error) {
	if r.parsed {
		return r.entries, nil
	}

	eocd, err := r.findEOCD(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := r.readCentralDirectory(ctx, eocd)
	if err != nil {
		return nil, err
	}

	r.eocd, r.entries, r.parsed = eocd, entries, true
	return entries, nil
}

// Find returns the entry with the given name.
func (r *Reader) Find(ctx context.Context, name string) (Entry, bool, error) {
	entries, err := r.Entries(ctx)
	if err != nil {
		return Entry{}, false, err
	}

	for _, e := range entries {
		if e.Name == name {
			return e, true, nil
		}
	}

	return Entry{}, false, nil
}

// findEOCD searches the last 22 bytes of the source for the EOCD record first, then up to 64 KiB of trailing comment.
func (r *Reader) findEOCD(ctx context.Context) (EOCDRecord, error) {
	if r.size < endOfCentralDirLen {
		return EOCDRecord{}, fmt.Errorf("find EOCD: archive is only %d bytes: %w", r.size, ErrBadFormat)
	}

	// 22+65535 rather than 22+65536 so that a trailer of 65536 or more bytes is never found and stays ErrBadFormat.
	for _, window := range []int64{endOfCentralDirLen, min(endOfCentralDirLen+maxCommentLen, r.size)} {
		start := r.size - window
		b, err := r.src.ReadRange(ctx, start, window)
		if err != nil {
			return EOCDRecord{}, fmt.Errorf("find EOCD: %w", err)
		}

		if eocd, ok, err := parseEOCD(b, start); err != nil || ok {
			return eocd, err
		}

		if window == r.size {
			break
		}
	}

	return EOCDRecord{}, fmt.Errorf("find EOCD: signature not found: %w", ErrBadFormat)
}

// parseEOCD scans b backwards for a valid EOCD record; start is the offset of b in the archive.
//
// A candidate is valid only if its comment fits within the rest of b.
func parseEOCD(b []byte, start int64) (EOCDRecord, bool, error) {
	sig := binary.LittleEndian.AppendUint32(nil, sigEndOfCentralDir)

	for i := len(b) - endOfCentralDirLen; i >= 0; i-- {
		if i = bytes.LastIndex(b[:i+4], sig); i == -1 {
			break
		}

		data := &endOfCentralDirectory{}
		if err := unmarshal(b[i:i+endOfCentralDirLen], data); err != nil {
			return EOCDRecord{}, false, fmt.Errorf("find EOCD: parse error: %w", err)
		}

		commentEnd := i + endOfCentralDirLen + int(data.CommentLength)
		if commentEnd > len(b) {
			continue
		}

		return EOCDRecord{
			DiskNumber:    data.DiskNumber,
			CDDiskNumber:  data.CDDiskNumber,
			CDCountOnDisk: data.CDCountOnDisk,
			CDCount:       data.CDCount,
			CDSize:        data.CDSize,
			CDOffset:      data.CDOffset,
			Comment:       string(b[i+endOfCentralDirLen : commentEnd]),
			Offset:        start + int64(i),
		}, true, nil
	}

	return EOCDRecord{}, false, nil
}

func (r *Reader) readCentralDirectory(ctx context.Context, eocd EOCDRecord) ([]Entry, error) {
	switch {
	case eocd.CDCount == uint16max || eocd.CDCountOnDisk == uint16max || eocd.CDSize == uint32max || eocd.CDOffset == uint32max:
		return nil, fmt.Errorf("read central directory: %w", ErrZip64)
	case eocd.DiskNumber != 0 || eocd.CDDiskNumber != 0 || eocd.CDCountOnDisk != eocd.CDCount:
		return nil, fmt.Errorf("read central directory: multi-volume archive: %w", ErrBadFormat)
	case int64(eocd.CDOffset) >= r.size || int64(eocd.CDOffset) > eocd.Offset:
		return nil, fmt.Errorf("read central directory: offset %d out of range: %w", eocd.CDOffset, ErrBadFormat)
	}

	b, err := r.src.ReadRange(ctx, int64(eocd.CDOffset), eocd.Offset-int64(eocd.CDOffset))
	if err != nil {
		return nil, fmt.Errorf("read central directory: %w", err)
	}

	entries := make([]Entry, 0, eocd.CDCount)
	for i, offset := 0, 0; i < int(eocd.CDCount); i++ {
		if offset+centralDirectoryLen > len(b) {
			return nil, fmt.Errorf("read central directory: header %d is truncated: %w", i, ErrBadFormat)
		}

		h := &centralDirectoryFileHeader{}
		if err = unmarshal(b[offset:offset+centralDirectoryLen], h); err != nil {
			return nil, fmt.Errorf("read central directory: parse header %d error: %w", i, err)
		}
		if h.Signature != sigCentralDirectory {
			return nil, fmt.Errorf("read central directory: header %d has mismatched signature, got 0x%x, expected 0x%x: %w", i, h.Signature, sigCentralDirectory, ErrBadFormat)
		}

		n, m, k := int(h.FileNameLength), int(h.ExtraFieldLength), int(h.FileCommentLength)
		nmk := b[offset+centralDirectoryLen:]
		if n+m+k > len(nmk) {
			return nil, fmt.Errorf("read central directory: header %d variable-size data is truncated: %w", i, ErrBadFormat)
		}

		utf8 := h.Flags&flagUTF8 != 0
		e := Entry{
			Name:             decodeString(nmk[:n], utf8),
			Extra:            bytes.Clone(nmk[n : n+m]),
			Comment:          decodeString(nmk[n+m:n+m+k], utf8),
			CreatorVersion:   h.CreatorVersion,
			ReaderVersion:    h.ReaderVersion,
			Flags:            h.Flags,
			Method:           h.Method,
			ModifiedTime:     h.ModifiedTime,
			ModifiedDate:     h.ModifiedDate,
			Modified:         msDosTimeToTime(h.ModifiedDate, h.ModifiedTime),
			CRC32:            h.CRC32,
			CompressedSize:   h.CompressedSize,
			UncompressedSize: h.UncompressedSize,
			ExternalAttrs:    h.ExternalAttrs,
			Offset:           int64(h.Offset),
		}
		e.Directory = e.ExternalAttrs&attrDirectory != 0 || strings.HasSuffix(e.Name, "/")

		switch {
		case e.Flags&flagEncrypted != 0:
			return nil, fmt.Errorf("read central directory: entry %q: %w", e.Name, ErrEncrypted)
		case e.CompressedSize == uint32max || e.UncompressedSize == uint32max || h.Offset == uint32max:
			return nil, fmt.Errorf("read central directory: entry %q: %w", e.Name, ErrZip64)
		}

		entries = append(entries, e)
		offset += centralDirectoryLen + n + m + k
	}

	return entries, nil
}

func decodeString(b []byte, utf8 bool) string {
	if utf8 {
		return string(b)
	}

	s, err := charmap.CodePage437.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}

	return string(s)
}

// Extract initialises dst and writes the decompressed data of e to it.
//
// Unless SkipCRC is given, the CRC-32 of the decompressed data is verified against the recorded value and ErrChecksum
// is returned on mismatch. dst is not finalised; see Extract for a variant that does.
func (r *Reader) Extract(ctx context.Context, e Entry, dst sink.Writer, optFns ...func(*ExtractOptions)) error {
	opts := &ExtractOptions{}
	for _, fn := range optFns {
		fn(opts)
	}

	b, err := r.src.ReadRange(ctx, e.Offset, localFileHeaderLen)
	if err != nil {
		return fmt.Errorf("read local file header error: %w", err)
	}

	h := &localFileHeader{}
	if err = unmarshal(b, h); err != nil {
		return fmt.Errorf("parse local file header error: %w", err)
	}
	if h.Signature != sigLocalFileHeader {
		return fmt.Errorf("read local file header: mismatched signature, got 0x%x, expected 0x%x: %w", h.Signature, sigLocalFileHeader, ErrBadFormat)
	}

	// the local header is authoritative unless its sizes are deferred to the data descriptor.
	crc, compressedSize := h.CRC32, h.CompressedSize
	if h.Flags&flagDataDescriptor != 0 {
		crc, compressedSize = e.CRC32, e.CompressedSize
	}

	offset := e.Offset + localFileHeaderLen + int64(h.FileNameLength) + int64(h.ExtraFieldLength)
	if offset+int64(compressedSize) > r.size {
		return fmt.Errorf("entry %q data extends beyond end of archive: %w", e.Name, ErrBadFormat)
	}

	spec := codec.Decompressor(e.Method)
	if compressedSize == 0 {
		spec = codec.NoOp()
	}

	if err = dst.Init(ctx); err != nil {
		return fmt.Errorf("init sink error: %w", err)
	}

	res, err := transfer.Run(ctx, r.src, dst, offset, int64(compressedSize), spec, append([]func(*transfer.Options){func(o *transfer.Options) {
		o.Unit = r.unit
		if !opts.SkipCRC {
			o.CRC = checksum.Output
		}
	}}, opts.Transfer...)...)
	if err != nil {
		return fmt.Errorf("extract %q error: %w", e.Name, err)
	}

	if !opts.SkipCRC && res.CRC32 != crc {
		return fmt.Errorf("extract %q: expected CRC-32 0x%08x, got 0x%08x: %w", e.Name, crc, res.CRC32, ErrChecksum)
	}

	return nil
}

// Extract extracts e to dst and finalises dst.
//
// dst is finalised only if extraction succeeds, so a checksum mismatch never hands data to the caller.
func Extract[T any](ctx context.Context, r *Reader, e Entry, dst sink.Sink[T], optFns ...func(*ExtractOptions)) (v T, err error) {
	if err = r.Extract(ctx, e, dst, optFns...); err != nil {
		return v, err
	}

	if v, err = dst.Finalize(ctx); err != nil {
		return v, fmt.Errorf("finalize sink error: %w", err)
	}

	return v, nil
}

// Close terminates the reader's delegate.Unit if there is one.
//
// The source is not closed.
func (r *Reader) Close() error {
	if r.unit != nil {
		r.unit.Terminate()
		r.unit = nil
	}

	return nil
}
