package spinand

// Diagnostics. None of these run on the write path; BadBlockCount and
// ScanECC touch every block and are slow on a full chip.

// LUTEntry is one bad-block-management mapping.
type LUTEntry struct {
	Logical  uint16 // LBA with the enable/invalid flags in bits 15:14
	Physical uint16
}

// Enabled reports whether the entry holds a live mapping.
func (e LUTEntry) Enabled() bool { return e.Logical&0x8000 != 0 }

// Invalid reports a mapping the chip flagged as unusable.
func (e LUTEntry) Invalid() bool { return e.Logical&0x4000 != 0 }

// ReadBBMLUT reads the chip's 20-entry bad-block lookup table.
func (d *Device) ReadBBMLUT() ([lutEntries]LUTEntry, error) {
	var lut [lutEntries]LUTEntry
	if !d.ready {
		return lut, ErrUninitialized
	}
	n := 2 + lutEntries*4
	d.w[0] = opReadBBMLUT
	clear(d.w[1:n])
	if err := d.tx(n); err != nil {
		return lut, transportErr("spinand.read_bbm_lut", err)
	}
	p := d.r[2:n]
	for i := range lut {
		lut[i] = LUTEntry{
			Logical:  uint16(p[i*4])<<8 | uint16(p[i*4+1]),
			Physical: uint16(p[i*4+2])<<8 | uint16(p[i*4+3]),
		}
	}
	return lut, nil
}

// MarkedBad reports whether block carries a factory bad-block marker
// (first spare byte of its first page not 0xFF).
func (d *Device) MarkedBad(block uint32) (bool, error) {
	var m [1]byte
	if err := d.ReadSpare(d.geo.FirstPage(block), m[:]); err != nil {
		return false, err
	}
	return m[0] != badBlockMarkerOK, nil
}

// BadBlockCount scans the marker of every block.
func (d *Device) BadBlockCount() (int, error) {
	if !d.ready {
		return 0, ErrUninitialized
	}
	n := 0
	for b := 0; b < d.geo.Blocks; b++ {
		bad, err := d.MarkedBad(uint32(b))
		if err != nil {
			return n, err
		}
		if bad {
			n++
		}
	}
	return n, nil
}

// ECCStats summarises an ECC scan.
type ECCStats struct {
	Pages         int
	Corrected     int
	Uncorrectable int
	FirstBad      uint32 // first uncorrectable page; valid when Uncorrectable > 0
}

// ScanECC loads every page of blocks [first, first+count) into the cache and
// collects the ECC result the chip reports for it. count <= 0 scans to the
// end of the chip.
func (d *Device) ScanECC(first uint32, count int) (ECCStats, error) {
	const op = "spinand.scan_ecc"
	var s ECCStats
	if !d.ready {
		return s, ErrUninitialized
	}
	if int(first) >= d.geo.Blocks {
		return s, nil
	}
	if count <= 0 || int(first)+count > d.geo.Blocks {
		count = d.geo.Blocks - int(first)
	}
	start := d.geo.FirstPage(first)
	end := start + uint32(count*d.geo.PagesPerBlock)
	for page := start; page < end; page++ {
		if _, err := d.waitReady(0); err != nil {
			return s, wrapWait(op, "page", page, err)
		}
		if err := d.addrCommand(opPageDataRead, page); err != nil {
			return s, transportErr(op, err)
		}
		st, err := d.waitReady(0)
		if err != nil {
			return s, wrapWait(op, "page", page, err)
		}
		s.Pages++
		switch st.ECC {
		case ECCCorrected:
			s.Corrected++
		case ECCUncorrectable, ECCMultiFail:
			if s.Uncorrectable == 0 {
				s.FirstBad = page
			}
			s.Uncorrectable++
		}
	}
	return s, nil
}
