package zip

import "errors"

var (
	// ErrBadFormat is returned when the source is not a well-formed ZIP archive: a signature mismatch, an end of
	// central directory record that cannot be found, or a central directory offset out of range.
	ErrBadFormat = errors.New("zip: bad format")

	// ErrEncrypted is returned for entries whose encryption flag is set.
	ErrEncrypted = errors.New("zip: encrypted entries are not supported")

	// ErrZip64 is returned when a size, offset, or count needs the ZIP64 format extension.
	ErrZip64 = errors.New("zip: ZIP64 archives are not supported")

	// ErrChecksum is returned when the CRC-32 of an extracted entry does not match its recorded value.
	ErrChecksum = errors.New("zip: checksum error")

	// ErrDuplicatedName is returned by Writer.Add if an entry with the same name has already been added.
	ErrDuplicatedName = errors.New("zip: duplicated entry name")

	// ErrEmptyName is returned by Writer.Add if the entry name is empty after trimming.
	ErrEmptyName = errors.New("zip: empty entry name")

	// ErrClosed is returned by Writer.Add and Writer.Close once the writer has been closed.
	ErrClosed = errors.New("zip: writer closed")
)
