package nandfs

import (
	"encoding/binary"
	"hash/crc32"
)

// On-flash layout.
//
// Page 0 of every owned block is a block header:
//
//	0  magic "BLFS"
//	4  version u8
//	5  mode u8 (append/replace)
//	6  name length u8
//	7  reserved
//	8  generation u32
//	12 sequence u32 (index of the block within its file)
//	16 name
//	.. crc32 over everything before it
//
// Pages 1..n carry data, each with a 12-byte header:
//
//	0  magic u16 0xDA7A
//	2  payload length u16
//	4  flags u8 (first, commit)
//	5  reserved [3]
//	8  crc32 over bytes 0..7 and the payload
//
// All integers are little-endian.

const (
	version      = 1
	blockMagic   = "BLFS"
	dataMagic    = 0xDA7A
	headerFixed  = 16
	dataHeader   = 12
	MaxNameLen   = 64
	flagFirst    = 0x01
	flagCommit   = 0x02
	modeAppend   = 1
	modeReplace  = 2
	erasedMagic  = 0xFFFF
	headerCRCLen = 4
)

type blockHeader struct {
	mode uint8
	gen  uint32
	seq  uint32
	name string
}

func (h blockHeader) encode(page []byte) {
	fill(page, 0xFF)
	copy(page[0:4], blockMagic)
	page[4] = version
	page[5] = h.mode
	page[6] = byte(len(h.name))
	page[7] = 0
	binary.LittleEndian.PutUint32(page[8:], h.gen)
	binary.LittleEndian.PutUint32(page[12:], h.seq)
	n := headerFixed + copy(page[headerFixed:], h.name)
	binary.LittleEndian.PutUint32(page[n:], crc32.ChecksumIEEE(page[:n]))
}

// decodeBlockHeader reports ok=false for erased pages and for anything that
// does not carry a valid header.
func decodeBlockHeader(page []byte) (blockHeader, bool) {
	var h blockHeader
	if len(page) < headerFixed+headerCRCLen || string(page[0:4]) != blockMagic || page[4] != version {
		return h, false
	}
	n := headerFixed + int(page[6])
	if int(page[6]) > MaxNameLen || n+headerCRCLen > len(page) {
		return h, false
	}
	if binary.LittleEndian.Uint32(page[n:]) != crc32.ChecksumIEEE(page[:n]) {
		return h, false
	}
	h.mode = page[5]
	h.gen = binary.LittleEndian.Uint32(page[8:])
	h.seq = binary.LittleEndian.Uint32(page[12:])
	h.name = string(page[headerFixed:n])
	return h, h.mode == modeAppend || h.mode == modeReplace
}

type dataPage struct {
	flags   uint8
	payload []byte // aliases the page buffer
}

func encodeDataPage(page []byte, flags uint8, payload []byte) {
	fill(page, 0xFF)
	binary.LittleEndian.PutUint16(page[0:], dataMagic)
	binary.LittleEndian.PutUint16(page[2:], uint16(len(payload)))
	page[4] = flags
	page[5], page[6], page[7] = 0, 0, 0
	copy(page[dataHeader:], payload)
	binary.LittleEndian.PutUint32(page[8:], pageCRC(page[:8], payload))
}

// pageState classifies a data page.
type pageState int

const (
	pageErased pageState = iota
	pageValid
	pageBroken
)

func decodeDataPage(page []byte) (dataPage, pageState) {
	var p dataPage
	magic := binary.LittleEndian.Uint16(page[0:])
	if magic == erasedMagic && allFF(page[:dataHeader]) {
		return p, pageErased
	}
	if magic != dataMagic {
		return p, pageBroken
	}
	n := int(binary.LittleEndian.Uint16(page[2:]))
	if dataHeader+n > len(page) {
		return p, pageBroken
	}
	p.flags = page[4]
	p.payload = page[dataHeader : dataHeader+n]
	if binary.LittleEndian.Uint32(page[8:]) != pageCRC(page[:8], p.payload) {
		return p, pageBroken
	}
	return p, pageValid
}

func pageCRC(hdr, payload []byte) uint32 {
	return crc32.Update(crc32.ChecksumIEEE(hdr), crc32.IEEETable, payload)
}

func fill(p []byte, b byte) {
	for i := range p {
		p[i] = b
	}
}

func allFF(p []byte) bool {
	for _, b := range p {
		if b != 0xFF {
			return false
		}
	}
	return true
}
