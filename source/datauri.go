package source

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
)

// DataURI reads the decoded bytes of a base64 data URI such as "data:application/zip;base64,UEsDBA...".
//
// Only the 4-character groups that cover a requested range are decoded, so reading from large URIs stays cheap.
type DataURI struct {
	uri string

	// start is the index of the first base64 character; end excludes trailing padding.
	start, end int
	size       int64
	ready      bool
}

// NewDataURI returns a Source over the given data URI.
func NewDataURI(uri string) *DataURI {
	return &DataURI{uri: uri}
}

func (d *DataURI) Init(_ context.Context) (int64, error) {
	if d.ready {
		return d.size, nil
	}

	i := strings.IndexByte(d.uri, ',')
	if i == -1 {
		return 0, &ReadError{Err: errors.New("invalid data URI: missing ','")}
	}

	d.start = i + 1
	d.end = len(d.uri)
	for d.end > d.start && d.uri[d.end-1] == '=' {
		d.end--
	}

	d.size = int64(d.end-d.start) * 3 / 4
	d.ready = true
	return d.size, nil
}

func (d *DataURI) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	if _, err := d.Init(ctx); err != nil {
		return nil, err
	}
	if err := checkRange(offset, length, d.size); err != nil {
		return nil, err
	}
	if length == 0 {
		return make([]byte, 0), nil
	}

	// groups of 4 characters decode to 3 bytes.
	first := offset / 3 * 4
	last := min((offset+length+2)/3*4, int64(d.end-d.start))

	decoded, err := base64.RawStdEncoding.DecodeString(d.uri[d.start+int(first) : d.start+int(last)])
	if err != nil {
		return nil, &ReadError{Offset: offset, Length: length, Err: err}
	}

	delta := offset - first/4*3
	if delta+length > int64(len(decoded)) {
		return nil, &ReadError{Offset: offset, Length: length, Err: errors.New("insufficient decoded data")}
	}

	b := make([]byte, length)
	copy(b, decoded[delta:delta+length])
	return b, nil
}
