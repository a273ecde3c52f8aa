package spinand

import "batlog-go/errcode"

// Geometry holds the fixed layout of a chip. Page and block numbers are
// plain indices; the driver never bounds-checks them.
type Geometry struct {
	PageSize      int // data bytes per page
	SpareSize     int // spare (OOB) bytes per page
	PagesPerBlock int
	BlockSize     int // PageSize * PagesPerBlock
	Blocks        int
}

var errBadGeometry = errcode.New(errcode.InvalidArgument, "spinand.geometry", "inconsistent geometry")

// Validate checks page_size * pages_per_block == block_size and that
// pages per block is a power of two (erase addressing shifts by it).
func (g Geometry) Validate() error {
	if g.PageSize <= 0 || g.PagesPerBlock <= 0 || g.Blocks <= 0 {
		return errBadGeometry
	}
	if g.PageSize*g.PagesPerBlock != g.BlockSize {
		return errBadGeometry
	}
	if g.PagesPerBlock&(g.PagesPerBlock-1) != 0 {
		return errBadGeometry
	}
	return nil
}

// Pages is the total page count.
func (g Geometry) Pages() uint32 { return uint32(g.PagesPerBlock) * uint32(g.Blocks) }

// Capacity is the data capacity in bytes (spare excluded).
func (g Geometry) Capacity() int64 { return int64(g.BlockSize) * int64(g.Blocks) }

// FirstPage returns the page address of page 0 in block.
func (g Geometry) FirstPage(block uint32) uint32 { return block << g.blockShift() }

// BlockOf returns the block containing page.
func (g Geometry) BlockOf(page uint32) uint32 { return page >> g.blockShift() }

func (g Geometry) blockShift() uint {
	var s uint
	for n := g.PagesPerBlock; n > 1; n >>= 1 {
		s++
	}
	return s
}
