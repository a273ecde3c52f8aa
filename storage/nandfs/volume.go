// Package nandfs is a small append-oriented file layer placed directly on
// raw NAND through the flash driver.
//
// Each file owns a chain of blocks. Appends are written as runs of data
// pages; a run counts only once its last page, carrying the commit flag, is
// programmed, so a torn append disappears on the next mount. Replace-mode
// files (WriteFile) keep only their newest committed run and move to a fresh
// generation of blocks when their current block fills up.
//
// There is no wear levelling and no bad-block remapping: factory-marked
// blocks and blocks that fail to erase are skipped.
package nandfs

import (
	"sort"
	"sync"

	"batlog-go/drivers/spinand"
	"batlog-go/errcode"
	"batlog-go/x/conv"
)

// BlockDevice is the subset of the flash driver nandfs needs.
// *spinand.Device implements it.
type BlockDevice interface {
	Geometry() spinand.Geometry
	ReadPage(page uint32, dst []byte) error
	ProgramPage(page uint32, src []byte) error
	EraseBlock(block uint32) error
}

// badBlockChecker is optionally implemented by the device.
type badBlockChecker interface {
	MarkedBad(block uint32) (bool, error)
}

// Config is optional.
type Config struct {
	// SkipBadScan skips reading factory bad-block markers at mount.
	SkipBadScan bool
	Verbose     bool
}

type blockState uint8

const (
	blockAvailable blockState = iota // free or stale; erased before reuse
	blockOwned
	blockBad    // factory marker
	blockFailed // failed to erase or program this session
)

type pageRef struct {
	page uint32
	n    uint16
}

type file struct {
	name   string
	mode   uint8
	gen    uint32
	blocks []uint32 // index = sequence
	next   int      // next unwritten page in the last block
	refs   []pageRef
	size   int64
	open   bool // appender outstanding
}

// Volume is a mounted file system. Safe for concurrent use; every device
// access happens under one lock.
type Volume struct {
	mu     sync.Mutex
	dev    BlockDevice
	geo    spinand.Geometry
	cfg    Config
	state  []blockState
	files  map[string]*file
	gens   map[string]uint32 // next unused generation per name
	cursor uint32
	page   []byte
	cap    int // payload bytes per data page
}

func newVolume(dev BlockDevice, cfg Config) (*Volume, error) {
	geo := dev.Geometry()
	if err := geo.Validate(); err != nil {
		return nil, err
	}
	if geo.PagesPerBlock < 2 || geo.PageSize <= dataHeader || geo.PageSize < headerFixed+MaxNameLen+headerCRCLen {
		return nil, errcode.New(errcode.Unsupported, "nandfs.mount", "geometry too small")
	}
	v := &Volume{
		dev:   dev,
		geo:   geo,
		cfg:   cfg,
		state: make([]blockState, geo.Blocks),
		files: make(map[string]*file),
		gens:  make(map[string]uint32),
		page:  make([]byte, geo.PageSize),
		cap:   geo.PageSize - dataHeader,
	}
	if bc, ok := dev.(badBlockChecker); ok && !cfg.SkipBadScan {
		for b := range v.state {
			bad, err := bc.MarkedBad(uint32(b))
			if err != nil {
				return nil, err
			}
			if bad {
				v.state[b] = blockBad
				v.logf("factory bad block", uint32(b))
			}
		}
	}
	return v, nil
}

// Format erases every usable block and returns an empty volume.
func Format(dev BlockDevice, cfg Config) (*Volume, error) {
	v, err := newVolume(dev, cfg)
	if err != nil {
		return nil, err
	}
	for b := range v.state {
		if v.state[b] == blockBad {
			continue
		}
		if err := v.erase(uint32(b)); err != nil && errcode.Of(err) != errcode.DeviceFailure {
			return nil, err
		}
	}
	return v, nil
}

// Mount scans block headers and rebuilds the file catalog.
func Mount(dev BlockDevice, cfg Config) (*Volume, error) {
	v, err := newVolume(dev, cfg)
	if err != nil {
		return nil, err
	}

	type owned struct {
		block uint32
		hdr   blockHeader
	}
	byName := make(map[string][]owned)
	for b := range v.state {
		if v.state[b] == blockBad {
			continue
		}
		if err := v.dev.ReadPage(v.geo.FirstPage(uint32(b)), v.page); err != nil {
			return nil, err
		}
		if h, ok := decodeBlockHeader(v.page); ok {
			byName[h.name] = append(byName[h.name], owned{uint32(b), h})
			v.useGen(h.name, h.gen)
		}
	}

	for name, list := range byName {
		gens := make(map[uint32][]owned)
		var order []uint32
		for _, o := range list {
			if _, seen := gens[o.hdr.gen]; !seen {
				order = append(order, o.hdr.gen)
			}
			gens[o.hdr.gen] = append(gens[o.hdr.gen], o)
		}
		sort.Slice(order, func(i, j int) bool { return order[i] > order[j] })

		var chosen, newest *file
		for _, g := range order {
			blocks := gens[g]
			sort.Slice(blocks, func(i, j int) bool { return blocks[i].hdr.seq < blocks[j].hdr.seq })
			f := &file{name: name, mode: blocks[0].hdr.mode, gen: g}
			for i, o := range blocks {
				if o.hdr.seq != uint32(i) || o.hdr.mode != f.mode {
					break // gap: the rest are orphans
				}
				f.blocks = append(f.blocks, o.block)
			}
			if len(f.blocks) == 0 {
				continue
			}
			committed, err := v.scan(f)
			if err != nil {
				return nil, err
			}
			if newest == nil {
				newest = f
			}
			if chosen == nil && (committed || f.mode == modeAppend) {
				chosen = f
			}
		}
		if chosen == nil {
			chosen = newest
		}
		if chosen != nil {
			for _, b := range chosen.blocks {
				v.state[b] = blockOwned
			}
			v.files[name] = chosen
		}
	}
	return v, nil
}

// scan walks the data pages of f and rebuilds its committed page list.
// It reports whether any run was committed.
func (v *Volume) scan(f *file) (bool, error) {
	var pending []pageRef
	inRun, committed := false, false
	f.next = v.geo.PagesPerBlock
	for i, b := range f.blocks {
		first := v.geo.FirstPage(b)
		for p := 1; p < v.geo.PagesPerBlock; p++ {
			if err := v.dev.ReadPage(first+uint32(p), v.page); err != nil {
				return false, err
			}
			dp, st := decodeDataPage(v.page)
			if st == pageErased {
				if i == len(f.blocks)-1 {
					f.next = p
				}
				break
			}
			if st == pageBroken {
				pending, inRun = pending[:0], false
				continue
			}
			if dp.flags&flagFirst != 0 {
				pending, inRun = pending[:0], true
			}
			if !inRun {
				continue
			}
			pending = append(pending, pageRef{page: first + uint32(p), n: uint16(len(dp.payload))})
			if dp.flags&flagCommit != 0 {
				f.commit(pending)
				pending, inRun, committed = nil, false, true
			}
		}
	}
	return committed, nil
}

// commit makes a finished run part of the file's content.
func (f *file) commit(run []pageRef) {
	var n int64
	for _, r := range run {
		n += int64(r.n)
	}
	if f.mode == modeReplace {
		f.refs = append([]pageRef(nil), run...)
		f.size = n
		return
	}
	f.refs = append(f.refs, run...)
	f.size += n
}

// useGen records that gen of name exists on flash, so a file created later
// under the same name never adopts its leftover blocks.
func (v *Volume) useGen(name string, gen uint32) {
	if gen >= v.gens[name] {
		v.gens[name] = gen + 1
	}
}

func (v *Volume) erase(b uint32) error {
	if err := v.dev.EraseBlock(b); err != nil {
		if errcode.Of(err) == errcode.DeviceFailure {
			v.state[b] = blockFailed
			v.logf("erase failed, block set aside", b)
		}
		return err
	}
	v.state[b] = blockAvailable
	return nil
}

// alloc finds the next available block after the cursor and erases it.
func (v *Volume) alloc() (uint32, error) {
	n := uint32(len(v.state))
	for i := uint32(0); i < n; i++ {
		b := (v.cursor + i) % n
		if v.state[b] != blockAvailable {
			continue
		}
		if err := v.erase(b); err != nil {
			if errcode.Of(err) == errcode.DeviceFailure {
				continue
			}
			return 0, err
		}
		v.state[b] = blockOwned
		v.cursor = (b + 1) % n
		return b, nil
	}
	return 0, errcode.New(errcode.ResourceExhausted, "nandfs.alloc", "no free blocks")
}

// claim allocates a block and writes its header as block seq of f.
func (v *Volume) claim(f *file) error {
	for {
		b, err := v.alloc()
		if err != nil {
			return err
		}
		blockHeader{mode: f.mode, gen: f.gen, seq: uint32(len(f.blocks)), name: f.name}.encode(v.page)
		if err := v.dev.ProgramPage(v.geo.FirstPage(b), v.page); err != nil {
			if errcode.Of(err) == errcode.DeviceFailure {
				v.state[b] = blockFailed
				v.logf("header program failed, block set aside", b)
				continue
			}
			v.state[b] = blockAvailable
			return err
		}
		f.blocks = append(f.blocks, b)
		f.next = 1
		return nil
	}
}

// writePage programs one data page at the end of f's chain.
func (v *Volume) writePage(f *file, flags uint8, payload []byte) (pageRef, error) {
	if len(f.blocks) == 0 || f.next >= v.geo.PagesPerBlock {
		if err := v.claim(f); err != nil {
			return pageRef{}, err
		}
	}
	page := v.geo.FirstPage(f.blocks[len(f.blocks)-1]) + uint32(f.next)
	f.next++
	encodeDataPage(v.page, flags, payload)
	if err := v.dev.ProgramPage(page, v.page); err != nil {
		return pageRef{}, err
	}
	return pageRef{page: page, n: uint16(len(payload))}, nil
}

// release erases f's blocks, sequence 0 first so an interrupted release
// leaves an orphan chain that the next mount ignores.
func (v *Volume) release(f *file) error {
	var first error
	for _, b := range f.blocks {
		if err := v.erase(b); err != nil && first == nil {
			first = err
		}
	}
	f.blocks = nil
	return first
}

func (v *Volume) logf(msg string, block uint32) {
	if v.cfg.Verbose {
		println("[nandfs]", msg, "block", conv.U32(block))
	}
}
