// Package periphspi exposes a Linux SPI port, opened through periph.io, as a
// tinygo drivers.SPI so the flash driver runs unchanged on a host.
package periphspi

import (
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"batlog-go/errcode"
)

// Options for Open.
type Options struct {
	Port    string // spireg name; "" opens the first registered port
	ClockHz int64
	CS      string // gpioreg pin for software chip select; "" uses the controller's CS
}

// Conn adapts spi.Conn to drivers.SPI. When a CS pin is given, Select drives
// it; pass the method value as the flash driver's chip-select callback.
type Conn struct {
	conn spi.Conn
	port spi.PortCloser
	cs   gpio.PinOut

	mu     sync.Mutex
	csErr  error
	one    [1]byte
	oneIn  [1]byte
	filler []byte
}

// New wraps an already connected spi.Conn. cs may be nil.
func New(c spi.Conn, cs gpio.PinOut) *Conn {
	return &Conn{conn: c, cs: cs}
}

// Open initialises periph host drivers, opens the port in mode 0 with 8-bit
// words and claims the CS pin (idle high).
func Open(o Options) (*Conn, error) {
	const op = "periphspi.open"
	if _, err := host.Init(); err != nil {
		return nil, errcode.Wrap(errcode.Unsupported, op, err)
	}
	p, err := spireg.Open(o.Port)
	if err != nil {
		return nil, errcode.Wrapf(errcode.NotFound, op, o.Port, err)
	}
	c, err := p.Connect(physic.Frequency(o.ClockHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, errcode.Wrap(errcode.Transport, op, err)
	}
	var cs gpio.PinOut
	if o.CS != "" {
		pin := gpioreg.ByName(o.CS)
		if pin == nil {
			p.Close()
			return nil, errcode.New(errcode.NotFound, op, "no gpio "+o.CS)
		}
		if err := pin.Out(gpio.High); err != nil {
			p.Close()
			return nil, errcode.Wrap(errcode.Transport, op, err)
		}
		cs = pin
	}
	sc := New(c, cs)
	sc.port = p
	return sc, nil
}

// Tx performs one full-duplex transfer. Either side may be nil; the missing
// buffer is replaced by scratch space of the other's length.
func (c *Conn) Tx(w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case w == nil && r == nil:
		return nil
	case w == nil:
		w = c.scratch(len(r))
	case r == nil:
		r = c.scratch(len(w))
	case len(w) != len(r):
		return errcode.New(errcode.InvalidArgument, "periphspi.tx", "buffer lengths differ")
	}
	if err := c.conn.Tx(w, r); err != nil {
		return errcode.Wrap(errcode.Transport, "periphspi.tx", err)
	}
	return nil
}

// Transfer clocks a single byte.
func (c *Conn) Transfer(b byte) (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.one[0] = b
	if err := c.conn.Tx(c.one[:], c.oneIn[:]); err != nil {
		return 0, errcode.Wrap(errcode.Transport, "periphspi.transfer", err)
	}
	return c.oneIn[0], nil
}

// Select drives the software CS pin. A failure is kept for Err.
func (c *Conn) Select(level bool) {
	if c.cs == nil {
		return
	}
	if err := c.cs.Out(gpio.Level(level)); err != nil {
		c.mu.Lock()
		if c.csErr == nil {
			c.csErr = err
		}
		c.mu.Unlock()
	}
}

// HasCS reports whether a software chip select was configured.
func (c *Conn) HasCS() bool { return c.cs != nil }

// Err returns and clears the first chip-select failure.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.csErr
	c.csErr = nil
	return errcode.Wrap(errcode.Transport, "periphspi.cs", err)
}

// Close releases the port when Open created it.
func (c *Conn) Close() error {
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	return err
}

func (c *Conn) scratch(n int) []byte {
	if cap(c.filler) < n {
		c.filler = make([]byte, n)
	}
	b := c.filler[:n]
	for i := range b {
		b[i] = 0
	}
	return b
}
