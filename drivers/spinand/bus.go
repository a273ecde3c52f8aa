package spinand

// frame grows the transfer buffers to at least n bytes.
func (d *Device) frame(n int) {
	if cap(d.w) < n {
		d.w = make([]byte, n)
		d.r = make([]byte, n)
	}
}

func (d *Device) selectChip() {
	if d.cs != nil {
		d.cs(false)
	}
}

func (d *Device) deselect() {
	if d.cs != nil {
		d.cs(true)
	}
}

// tx sends d.w[:n] while receiving into d.r[:n] inside one chip-select
// window.
func (d *Device) tx(n int) error {
	d.selectChip()
	err := d.spi.Tx(d.w[:n], d.r[:n])
	d.deselect()
	return err
}

// command sends a bare opcode.
func (d *Device) command(op byte) error {
	d.w[0] = op
	return d.tx(1)
}

// addrCommand sends an opcode followed by a 24-bit big-endian page address.
func (d *Device) addrCommand(op byte, page uint32) error {
	d.w[0] = op
	d.w[1] = byte(page >> 16)
	d.w[2] = byte(page >> 8)
	d.w[3] = byte(page)
	return d.tx(addrCmdLen)
}

// Status registers: 05 reg dummy -> value in the third byte.

func (d *Device) readRegister(reg byte) (byte, error) {
	d.w[0] = opReadStatus
	d.w[1] = reg
	d.w[2] = 0
	if err := d.tx(3); err != nil {
		return 0, err
	}
	return d.r[2], nil
}

func (d *Device) writeRegister(reg, val byte) error {
	d.w[0] = opWriteStatus
	d.w[1] = reg
	d.w[2] = val
	return d.tx(3)
}

func (d *Device) readID() ([3]byte, error) {
	var id [3]byte
	d.w[0] = opReadID
	for i := 1; i < idLen; i++ {
		d.w[i] = 0
	}
	if err := d.tx(idLen); err != nil {
		return id, transportErr("spinand.read_identifier", err)
	}
	copy(id[:], d.r[2:idLen])
	return id, nil
}

// readCache reads len(dst) bytes from the cache starting at column.
func (d *Device) readCache(column uint16, dst []byte) error {
	n := readCacheHeader + len(dst)
	d.frame(n)
	d.w[0] = opReadCache
	d.w[1] = byte(column >> 8)
	d.w[2] = byte(column)
	d.w[3] = 0
	clear(d.w[readCacheHeader:n])
	if err := d.tx(n); err != nil {
		return err
	}
	copy(dst, d.r[readCacheHeader:n])
	return nil
}

// programLoad sends opcode, column and the whole payload as one transaction.
func (d *Device) programLoad(column uint16, src []byte) error {
	n := programLoadHeader + len(src)
	d.frame(n)
	d.w[0] = opProgramLoad
	d.w[1] = byte(column >> 8)
	d.w[2] = byte(column)
	copy(d.w[programLoadHeader:n], src)
	return d.tx(n)
}
