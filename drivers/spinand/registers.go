package spinand

// Command opcodes (W25N family).
const (
	opReset          = 0xFF
	opReadID         = 0x9F
	opReadStatus     = 0x05
	opWriteStatus    = 0x01
	opWriteEnable    = 0x06
	opWriteDisable   = 0x04
	opReadBBMLUT     = 0xA5
	opBlockErase     = 0xD8
	opPageDataRead   = 0x13
	opReadCache      = 0x03
	opProgramLoad    = 0x02
	opProgramExecute = 0x10
)

// Status register addresses.
const (
	RegProtection = 0xA0 // SR1
	RegConfig     = 0xB0 // SR2
	RegStatus     = 0xC0 // SR3
)

// SR1 bits.
const (
	sr1SRP1 = 1 << 0
	sr1WPE  = 1 << 1
	sr1TB   = 1 << 2
	sr1BP0  = 1 << 3
	sr1BP1  = 1 << 4
	sr1BP2  = 1 << 5
	sr1BP3  = 1 << 6
	sr1SRP0 = 1 << 7

	// Any of these set refuses writes to some region.
	sr1ProtectMask = sr1TB | sr1BP0 | sr1BP1 | sr1BP2 | sr1BP3
)

// SR2 bits.
const (
	sr2BUF  = 1 << 3
	sr2ECCE = 1 << 4
)

// SR3 bits.
const (
	sr3Busy  = 1 << 0
	sr3WEL   = 1 << 1
	sr3EFail = 1 << 2
	sr3PFail = 1 << 3
	sr3ECC0  = 1 << 4
	sr3ECC1  = 1 << 5
	sr3LUTF  = 1 << 6
)

// Header lengths on the wire.
const (
	readCacheHeader   = 4 // 03 c1 c0 dummy
	programLoadHeader = 3 // 02 c1 c0
	addrCmdLen        = 4 // op a2 a1 a0
	idLen             = 5 // 9F dummy id0 id1 id2
	lutEntries        = 20
)

// Factory bad-block marker: first spare byte of a block's first page is not 0xFF.
const badBlockMarkerOK = 0xFF

// Chip describes one supported part.
type Chip struct {
	Name     string
	ID       [3]byte
	Geometry Geometry
}

// W25N01GV is the 1 Gbit part: 2048+64 byte pages, 64 pages per block, 1024 blocks.
var W25N01GV = Geometry{PageSize: 2048, SpareSize: 64, PagesPerBlock: 64, BlockSize: 2048 * 64, Blocks: 1024}

// W25N02KV doubles the block count and the spare area.
var W25N02KV = Geometry{PageSize: 2048, SpareSize: 128, PagesPerBlock: 64, BlockSize: 2048 * 64, Blocks: 2048}

// Chips lists the identifiers Init recognises.
var Chips = []Chip{
	{Name: "W25N01GV", ID: [3]byte{0xEF, 0xAA, 0x21}, Geometry: W25N01GV},
	{Name: "W25N02KV", ID: [3]byte{0xEF, 0xAA, 0x22}, Geometry: W25N02KV},
}

// LookupChip finds a chip by JEDEC identifier.
func LookupChip(id [3]byte) (Chip, bool) {
	for _, c := range Chips {
		if c.ID == id {
			return c, true
		}
	}
	return Chip{}, false
}
