package zip

import (
	"bytes"
	"encoding/binary"
	"time"
)

const (
	sigLocalFileHeader     uint32 = 0x04034b50
	sigCentralDirectory    uint32 = 0x02014b50
	sigEndOfCentralDir     uint32 = 0x06054b50
	sigDataDescriptor      uint32 = 0x08074b50
	localFileHeaderLen            = 30
	centralDirectoryLen           = 46
	endOfCentralDirLen            = 22
	dataDescriptorLen             = 16
	maxCommentLen                 = 0xffff
	uint16max                     = 0xffff
	uint32max                     = 0xffffffff
	flagEncrypted          uint16 = 0x1
	flagDataDescriptor     uint16 = 0x8
	flagUTF8               uint16 = 0x800
	attrDirectory          uint32 = 0x10
	versionDefault         uint16 = 20
	versionExtendedMethods uint16 = 63
	versionMadeBy          uint16 = 20
)

// localFileHeader needs to be fixed size to work with binary.Read.
//
// https://en.wikipedia.org/wiki/ZIP_(file_format)#Local_file_header
type localFileHeader struct {
	Signature        uint32
	ReaderVersion    uint16
	Flags            uint16
	Method           uint16
	ModifiedTime     uint16
	ModifiedDate     uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	FileNameLength   uint16
	ExtraFieldLength uint16
}

// centralDirectoryFileHeader needs to be fixed size to work with binary.Read.
//
// https://en.wikipedia.org/wiki/ZIP_(file_format)#Central_directory_file_header_(CDFH)
type centralDirectoryFileHeader struct {
	Signature         uint32
	CreatorVersion    uint16
	ReaderVersion     uint16
	Flags             uint16
	Method            uint16
	ModifiedTime      uint16
	ModifiedDate      uint16
	CRC32             uint32
	CompressedSize    uint32
	UncompressedSize  uint32
	FileNameLength    uint16
	ExtraFieldLength  uint16
	FileCommentLength uint16
	DiskNumber        uint16
	InternalAttrs     uint16
	ExternalAttrs     uint32
	Offset            uint32
}

// endOfCentralDirectory needs to be fixed size to work with binary.Read.
//
// https://en.wikipedia.org/wiki/ZIP_(file_format)#End_of_central_directory_record_(EOCD)
type endOfCentralDirectory struct {
	Signature     uint32
	DiskNumber    uint16
	CDDiskNumber  uint16
	CDCountOnDisk uint16
	CDCount       uint16
	CDSize        uint32
	CDOffset      uint32
	CommentLength uint16
}

// unmarshal decodes the fixed-size little-endian header v from the start of b.
func unmarshal(b []byte, v any) error {
	return binary.Read(bytes.NewReader(b), binary.LittleEndian, v)
}

// msDosTimeToTime converts an MS-DOS date and time into a time.Time.
// The resolution is 2s.
// See: https://learn.microsoft.com/en-us/windows/win32/api/winbase/nf-winbase-dosdatetimetofiletime
func msDosTimeToTime(dosDate, dosTime uint16) time.Time {
	return time.Date(
		// date bits 0-4: day of month; 5-8: month; 9-15: years since 1980
		int(dosDate>>9+1980),
		time.Month(dosDate>>5&0xf),
		int(dosDate&0x1f),

		// time bits 0-4: second/2; 5-10: minute; 11-15: hour
		int(dosTime>>11),
		int(dosTime>>5&0x3f),
		int(dosTime&0x1f*2),
		0, // nanoseconds

		time.UTC,
	)
}

// timeToMsDosTime converts t to an MS-DOS date and time using t's own location.
//
// Times before 1980 are clamped to 1980-01-01 00:00:00.
func timeToMsDosTime(t time.Time) (dosDate, dosTime uint16) {
	if t.Year() < 1980 {
		t = time.Date(1980, 1, 1, 0, 0, 0, 0, t.Location())
	}

	dosDate = uint16(t.Day() + int(t.Month())<<5 + (t.Year()-1980)<<9)
	dosTime = uint16(t.Second()/2 + t.Minute()<<5 + t.Hour()<<11)
	return
}
