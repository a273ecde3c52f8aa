package batlog

import (
	"encoding/binary"
	"hash/crc32"

	"batlog-go/errcode"
)

// Data log record: u32 ring position | u32 payload length | payload.
// Metadata: u32 last ring position | u32 record count | u32 last write time
// | u32 last payload hash. All little-endian.
const (
	RecordHeaderSize = 8
	MetadataSize     = 16

	// MaxPayload bounds one record. A header announcing more is corrupt.
	MaxPayload = 64 << 10
)

// Checksum is CRC-32/IEEE (reflected 0xEDB88320, complemented) over payload.
func Checksum(payload []byte) uint32 { return crc32.ChecksumIEEE(payload) }

type recordHeader struct {
	pos uint32
	n   uint32
}

func (h recordHeader) put(b []byte) {
	binary.LittleEndian.PutUint32(b[0:], h.pos)
	binary.LittleEndian.PutUint32(b[4:], h.n)
}

func parseRecordHeader(b []byte) recordHeader {
	return recordHeader{
		pos: binary.LittleEndian.Uint32(b[0:]),
		n:   binary.LittleEndian.Uint32(b[4:]),
	}
}

// Metadata describes the most recently appended record of a series.
type Metadata struct {
	LastRingPosition uint32
	RecordCount      uint32
	LastWriteTime    uint32 // unix seconds
	LastPayloadHash  uint32
}

// MarshalBinary encodes the fixed 16-byte record.
func (m Metadata) MarshalBinary() ([]byte, error) {
	b := make([]byte, MetadataSize)
	binary.LittleEndian.PutUint32(b[0:], m.LastRingPosition)
	binary.LittleEndian.PutUint32(b[4:], m.RecordCount)
	binary.LittleEndian.PutUint32(b[8:], m.LastWriteTime)
	binary.LittleEndian.PutUint32(b[12:], m.LastPayloadHash)
	return b, nil
}

// UnmarshalBinary decodes a 16-byte record; any other length is corrupt.
func (m *Metadata) UnmarshalBinary(b []byte) error {
	if len(b) != MetadataSize {
		return errcode.New(errcode.Corrupt, "batlog.metadata", "wrong metadata size")
	}
	m.LastRingPosition = binary.LittleEndian.Uint32(b[0:])
	m.RecordCount = binary.LittleEndian.Uint32(b[4:])
	m.LastWriteTime = binary.LittleEndian.Uint32(b[8:])
	m.LastPayloadHash = binary.LittleEndian.Uint32(b[12:])
	return nil
}
