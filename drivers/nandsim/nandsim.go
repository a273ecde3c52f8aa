// Package nandsim is a host-side W25N-class SPI NAND that speaks the wire
// protocol. It implements tinygo drivers.SPI so the real driver runs
// against it unchanged.
package nandsim

import (
	"errors"
	"sync"
)

var (
	ErrDisconnected = errors.New("nandsim: bus disconnected")
	ErrNotSelected  = errors.New("nandsim: transfer without chip select")
)

// Options describe the simulated part. Zero fields take W25N01GV values.
type Options struct {
	ID            [3]byte
	PageSize      int
	SpareSize     int
	PagesPerBlock int
	Blocks        int

	// BusyPolls is how many SR3 reads report BUSY after each array operation.
	BusyPolls int
	// RequireSelect makes Tx fail unless Select(false) framed it.
	RequireSelect bool
	// Absent makes the chip never drive MISO (every byte reads 0xFF).
	Absent bool
}

func (o *Options) applyDefaults() {
	if o.ID == ([3]byte{}) {
		o.ID = [3]byte{0xEF, 0xAA, 0x21}
	}
	if o.PageSize <= 0 {
		o.PageSize = 2048
	}
	if o.SpareSize <= 0 {
		o.SpareSize = 64
	}
	if o.PagesPerBlock <= 0 {
		o.PagesPerBlock = 64
	}
	if o.Blocks <= 0 {
		o.Blocks = 1024
	}
}

// Txn is one decoded transaction, recorded for assertions.
type Txn struct {
	Op      byte
	Addr    uint32 // page address or register, where the command has one
	Ignored bool   // chip was busy or the latch was clear
}

// Power-on register values: all blocks protected, buffer mode with ECC.
const (
	PowerOnSR1 = 0x7C
	PowerOnSR2 = 0x18
)

// Chip is the simulated device. Safe for concurrent use.
type Chip struct {
	mu  sync.Mutex
	opt Options

	pages map[uint32][]byte // page+spare; absent means erased
	cache []byte

	sr1, sr2 byte
	wel      bool
	pfail    bool
	efail    bool
	ecc      byte
	busy     int

	selected     bool
	stuck        bool
	disconnected bool
	lockSR1      bool

	failProgram map[uint32]bool
	failErase   map[uint32]bool
	bad         map[uint32]bool
	eccInject   map[uint32]byte
	lut         [20][2]uint16

	log []Txn
}

// New returns a powered-on chip with every block erased.
func New(opt Options) *Chip {
	opt.applyDefaults()
	c := &Chip{
		opt:         opt,
		pages:       make(map[uint32][]byte),
		sr1:         PowerOnSR1,
		sr2:         PowerOnSR2,
		failProgram: make(map[uint32]bool),
		failErase:   make(map[uint32]bool),
		bad:         make(map[uint32]bool),
		eccInject:   make(map[uint32]byte),
	}
	c.cache = c.erased()
	return c
}

func (c *Chip) erased() []byte {
	p := make([]byte, c.opt.PageSize+c.opt.SpareSize)
	for i := range p {
		p[i] = 0xFF
	}
	return p
}

// Select is a chip-select PinOutput (low = selected).
func (c *Chip) Select(level bool) {
	c.mu.Lock()
	c.selected = !level
	c.mu.Unlock()
}

// Transfer clocks a single byte. It is only meaningful inside a Tx-framed
// command, so the simulator just echoes idle MISO.
func (c *Chip) Transfer(b byte) (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disconnected {
		return 0, ErrDisconnected
	}
	return 0xFF, nil
}

// Tx executes one full command. w and r may be nil; when both are given they
// have equal length.
func (c *Chip) Tx(w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disconnected {
		return ErrDisconnected
	}
	if c.opt.RequireSelect && !c.selected {
		return ErrNotSelected
	}
	n := max(len(w), len(r))
	if w == nil {
		w = make([]byte, n)
	}
	out := r
	if out == nil {
		out = make([]byte, n)
	}
	for i := range out {
		out[i] = 0xFF
	}
	if n == 0 || c.opt.Absent {
		return nil
	}
	c.exec(w, out)
	return nil
}
