package checksum

import (
	"hash/crc32"
)

// Mode controls which side of a codec the driver checksums.
type Mode uint8

const (
	// None disables checksum computation.
	None Mode = iota
	// Input checksums the bytes going into the codec (used when compressing or storing).
	Input
	// Output checksums the bytes coming out of the codec (used when extracting).
	Output
)

func (m Mode) String() string {
	switch m {
	case None:
		return "none"
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return "unknown"
	}
}

// CRC32 is a streaming PKZIP CRC-32 accumulator (reflected IEEE polynomial 0xEDB88320).
//
// The running state is kept inverted the same way the table-driven algorithm describes it: seeded with 0xFFFFFFFF,
// each byte folds through the 256-entry table, and Get returns the complement. The zero value is NOT ready for use;
// call New.
type CRC32 struct {
	state uint32
}

// New returns a CRC32 seeded with 0xFFFFFFFF.
func New() *CRC32 {
	return &CRC32{state: 0xFFFFFFFF}
}

// Append folds p into the running checksum.
func (c *CRC32) Append(p []byte) {
	// crc32.Update takes and returns the finalized (complemented) value.
	c.state = ^crc32.Update(^c.state, crc32.IEEETable, p)
}

// Write implements io.Writer. It never returns an error.
func (c *CRC32) Write(p []byte) (int, error) {
	c.Append(p)
	return len(p), nil
}

// Get returns the checksum of everything appended so far.
func (c *CRC32) Get() uint32 {
	return ^c.state
}

// Reset restores the seed.
func (c *CRC32) Reset() {
	c.state = 0xFFFFFFFF
}

// Checksum returns the CRC-32 of data in one call.
func Checksum(data []byte) uint32 {
	c := New()
	c.Append(data)
	return c.Get()
}
