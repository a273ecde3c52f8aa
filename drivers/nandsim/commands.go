package nandsim

const (
	sr1ProtectMask = 0x7C

	sr3Busy  = 1 << 0
	sr3WEL   = 1 << 1
	sr3EFail = 1 << 2
	sr3PFail = 1 << 3
)

func addr24(w []byte) uint32 {
	if len(w) < 4 {
		return 0
	}
	return uint32(w[1])<<16 | uint32(w[2])<<8 | uint32(w[3])
}

func put(out []byte, i int, b byte) {
	if i < len(out) {
		out[i] = b
	}
}

func (c *Chip) busyNow() bool { return c.stuck || c.busy > 0 }

func (c *Chip) sr3() byte {
	var b byte
	if c.busyNow() {
		b |= sr3Busy
	}
	if c.wel {
		b |= sr3WEL
	}
	if c.efail {
		b |= sr3EFail
	}
	if c.pfail {
		b |= sr3PFail
	}
	b |= (c.ecc & 0x3) << 4
	return b
}

func (c *Chip) exec(w, out []byte) {
	op := w[0]
	t := Txn{Op: op}

	// While busy only status reads and reset are accepted.
	if c.busyNow() && op != 0x05 && op != 0xFF {
		t.Ignored = true
		c.log = append(c.log, t)
		return
	}

	switch op {
	case 0xFF: // reset
		c.wel, c.busy, c.stuck = false, 0, false
		c.pfail, c.efail = false, false
	case 0x9F: // read ID: opcode, dummy, 3 bytes
		for i := 0; i < 3; i++ {
			put(out, 2+i, c.opt.ID[i])
		}
	case 0x05:
		if len(w) < 2 {
			break
		}
		t.Addr = uint32(w[1])
		var v byte
		switch w[1] {
		case 0xA0:
			v = c.sr1
		case 0xB0:
			v = c.sr2
		case 0xC0:
			v = c.sr3()
			if c.busy > 0 {
				c.busy--
			}
		}
		put(out, 2, v)
	case 0x01:
		if len(w) < 3 {
			break
		}
		t.Addr = uint32(w[1])
		switch w[1] {
		case 0xA0:
			if c.lockSR1 {
				t.Ignored = true
			} else {
				c.sr1 = w[2]
			}
		case 0xB0:
			c.sr2 = w[2]
		}
	case 0x06:
		if c.sr1&sr1ProtectMask != 0 {
			t.Ignored = true
		} else {
			c.wel = true
		}
	case 0x04:
		c.wel = false
	case 0x13:
		t.Addr = addr24(w)
		c.loadCache(t.Addr)
	case 0x03:
		if len(w) < 4 {
			break
		}
		col := int(uint16(w[1])<<8 | uint16(w[2]))
		for i := 4; i < len(w); i++ {
			j := col + i - 4
			if j < len(c.cache) {
				put(out, i, c.cache[j])
			}
		}
	case 0x02, 0x84:
		if len(w) < 3 {
			break
		}
		if op == 0x02 {
			for i := range c.cache {
				c.cache[i] = 0xFF
			}
		}
		col := int(uint16(w[1])<<8 | uint16(w[2]))
		for i := 3; i < len(w); i++ {
			if j := col + i - 3; j < len(c.cache) {
				c.cache[j] = w[i]
			}
		}
	case 0x10:
		t.Addr = addr24(w)
		t.Ignored = !c.program(t.Addr)
	case 0xD8:
		t.Addr = addr24(w)
		t.Ignored = !c.erase(t.Addr)
	case 0xA5:
		for i, e := range c.lut {
			put(out, 2+i*4, byte(e[0]>>8))
			put(out, 3+i*4, byte(e[0]))
			put(out, 4+i*4, byte(e[1]>>8))
			put(out, 5+i*4, byte(e[1]))
		}
	default:
		t.Ignored = true
	}
	c.log = append(c.log, t)
}

func (c *Chip) pageCount() uint32 { return uint32(c.opt.PagesPerBlock * c.opt.Blocks) }

func (c *Chip) loadCache(page uint32) {
	c.busy = c.opt.BusyPolls
	c.ecc = c.eccInject[page]
	if p, ok := c.pages[page]; ok && page < c.pageCount() {
		copy(c.cache, p)
		return
	}
	for i := range c.cache {
		c.cache[i] = 0xFF
	}
	if page < c.pageCount() && c.bad[page/uint32(c.opt.PagesPerBlock)] && page%uint32(c.opt.PagesPerBlock) == 0 {
		c.cache[c.opt.PageSize] = 0x00
	}
}

// program ANDs the cache into the array. Reports false when ignored.
func (c *Chip) program(page uint32) bool {
	if !c.wel {
		return false
	}
	c.wel = false
	c.pfail = false
	c.busy = c.opt.BusyPolls
	block := page / uint32(c.opt.PagesPerBlock)
	if page >= c.pageCount() || c.failProgram[page] || c.bad[block] {
		c.pfail = true
		return true
	}
	p, ok := c.pages[page]
	if !ok {
		p = c.erased()
		c.pages[page] = p
	}
	for i := range p {
		p[i] &= c.cache[i]
	}
	return true
}

func (c *Chip) erase(page uint32) bool {
	if !c.wel {
		return false
	}
	c.wel = false
	c.efail = false
	c.busy = c.opt.BusyPolls
	ppb := uint32(c.opt.PagesPerBlock)
	block := page / ppb
	if page >= c.pageCount() || c.failErase[block] || c.bad[block] {
		c.efail = true
		return true
	}
	for i := uint32(0); i < ppb; i++ {
		delete(c.pages, block*ppb+i)
	}
	return true
}
