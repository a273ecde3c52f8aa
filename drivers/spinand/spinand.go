// Package spinand drives W25N-class SPI NAND flash over a tinygo
// drivers.SPI bus.
//
// Every program and erase follows the same sequence:
//
//	wait ready -> write enable -> verify latch -> load/issue -> wait ready
//	-> check fail flag -> write disable
//
// and is abandoned at the first unmet step. The driver never retries and
// never bounds-checks page or block numbers; both belong to the caller.
//
// A Device is not safe for concurrent use. Callers serialise access per chip
// since the chip's write-enable window is shared state.
package spinand

//go:generate mockgen -destination=mocks_test.go -package=spinand tinygo.org/x/drivers SPI

import (
	"time"

	"tinygo.org/x/drivers"
)

// PinOutput drives the chip-select line (true = high). A nil PinOutput means
// the bus frames each Tx itself.
type PinOutput func(level bool)

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Geometry overrides the chip table. Zero means look it up from the
	// identifier, falling back to W25N01GV.
	Geometry Geometry
	// PollInterval between status reads while busy. Default 1 ms.
	PollInterval time.Duration
	// ReadyTimeout bounds page operations. Default 5 s.
	ReadyTimeout time.Duration
	// EraseTimeout bounds block erase. Default 10 s.
	EraseTimeout time.Duration
	// ResetDelay is the settle time after the reset command. Default 100 ms.
	ResetDelay time.Duration
	// KeepProtection skips clearing the block-protect bits. The device is then
	// read-only: programs and erases fail the latch check.
	KeepProtection bool
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Millisecond
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 5 * time.Second
	}
	if c.EraseTimeout <= 0 {
		c.EraseTimeout = 10 * time.Second
	}
	if c.ResetDelay <= 0 {
		c.ResetDelay = 100 * time.Millisecond
	}
}

// Device is a handle on one physical chip.
type Device struct {
	spi drivers.SPI
	cs  PinOutput

	cfg   Config
	geo   Geometry
	chip  string
	id    [3]byte
	ready bool

	// Transfer buffers, reused across commands. Every command is a single
	// full-duplex Tx with len(w) == len(r).
	w []byte
	r []byte
}

// New creates a handle. The SPI bus must already be configured (mode 0).
// This only creates the Device object; it does not touch the chip.
func New(spi drivers.SPI, cs PinOutput) *Device {
	d := &Device{spi: spi, cs: cs}
	d.frame(8)
	return d
}

// Init resets the chip, reads its identifier, clears block protection and
// records the geometry. On failure the handle stays uninitialised.
func (d *Device) Init(cfg Config) error {
	d.ready = false
	cfg.applyDefaults()
	d.cfg = cfg
	d.deselect()

	if err := d.command(opReset); err != nil {
		return transportErr("spinand.init: reset", err)
	}
	time.Sleep(cfg.ResetDelay)

	id, err := d.readID()
	if err != nil {
		return err
	}
	if (id[0] == 0x00 && id[1] == 0x00 && id[2] == 0x00) || (id[0] == 0xFF && id[1] == 0xFF && id[2] == 0xFF) {
		return ErrNoDevice
	}

	geo, name := cfg.Geometry, "custom"
	if chip, ok := LookupChip(id); ok {
		name = chip.Name
		if geo == (Geometry{}) {
			geo = chip.Geometry
		}
	} else if geo == (Geometry{}) {
		geo, name = W25N01GV, "unknown"
	}
	if err := geo.Validate(); err != nil {
		return err
	}

	if !cfg.KeepProtection {
		if err := d.clearProtection(); err != nil {
			return err
		}
	}
	if err := d.bufferMode(); err != nil {
		return err
	}

	d.id, d.geo, d.chip = id, geo, name
	d.frame(readCacheHeader + geo.PageSize + geo.SpareSize)
	d.ready = true
	return nil
}

// Deinit releases the handle. Every later operation fails with
// ErrUninitialized until Init succeeds again.
func (d *Device) Deinit() {
	d.ready = false
	d.deselect()
}

// Ready reports whether Init has succeeded.
func (d *Device) Ready() bool { return d.ready }

// ID returns the identifier cached by Init.
func (d *Device) ID() [3]byte { return d.id }

// ChipName is the table name of the identified part ("unknown" if not listed).
func (d *Device) ChipName() string { return d.chip }

// Geometry returns the layout recorded by Init.
func (d *Device) Geometry() Geometry { return d.geo }

// clearProtection writes SR1 = 0 and reads it back.
func (d *Device) clearProtection() error {
	if err := d.writeRegister(RegProtection, 0x00); err != nil {
		return transportErr("spinand.init: write SR1", err)
	}
	v, err := d.readRegister(RegProtection)
	if err != nil {
		return transportErr("spinand.init: read SR1", err)
	}
	if DecodeProtection(v).Protected() {
		return ErrProtection
	}
	return nil
}

// bufferMode makes sure the chip is in buffer read mode with on-die ECC,
// which the read-cache column addressing relies on.
func (d *Device) bufferMode() error {
	v, err := d.readRegister(RegConfig)
	if err != nil {
		return transportErr("spinand.init: read SR2", err)
	}
	want := v | sr2BUF | sr2ECCE
	if want == v {
		return nil
	}
	if err := d.writeRegister(RegConfig, want); err != nil {
		return transportErr("spinand.init: write SR2", err)
	}
	return nil
}
