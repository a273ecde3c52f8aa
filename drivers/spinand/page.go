package spinand

import (
	"time"

	"batlog-go/errcode"
	"batlog-go/x/conv"
)

// ReadStatus reads status register 3.
func (d *Device) ReadStatus() (Status, error) {
	if !d.ready {
		return Status{}, ErrUninitialized
	}
	return d.status()
}

func (d *Device) status() (Status, error) {
	v, err := d.readRegister(RegStatus)
	if err != nil {
		return Status{}, transportErr("spinand.read_status", err)
	}
	return DecodeStatus(v), nil
}

// ReadProtection reads status register 1.
func (d *Device) ReadProtection() (Protection, error) {
	if !d.ready {
		return Protection{}, ErrUninitialized
	}
	v, err := d.readRegister(RegProtection)
	if err != nil {
		return Protection{}, transportErr("spinand.read_protection", err)
	}
	return DecodeProtection(v), nil
}

// ReadIdentifier re-reads the 3-byte JEDEC identifier from the chip.
func (d *Device) ReadIdentifier() ([3]byte, error) {
	if !d.ready {
		return [3]byte{}, ErrUninitialized
	}
	return d.readID()
}

// WaitReady polls status every PollInterval until BUSY clears or timeout
// elapses. A non-positive timeout uses ReadyTimeout.
func (d *Device) WaitReady(timeout time.Duration) error {
	if !d.ready {
		return ErrUninitialized
	}
	_, err := d.waitReady(timeout)
	return err
}

// waitReady returns the final (non-busy) status so callers can check the
// fail flags without another read.
func (d *Device) waitReady(timeout time.Duration) (Status, error) {
	if timeout <= 0 {
		timeout = d.cfg.ReadyTimeout
	}
	deadline := time.Now().Add(timeout)
	for {
		st, err := d.status()
		if err != nil {
			return st, err
		}
		if !st.Busy {
			return st, nil
		}
		if !time.Now().Before(deadline) {
			return st, ErrTimeout
		}
		time.Sleep(d.cfg.PollInterval)
	}
}

// ReadPage loads page into the chip cache and copies PageSize bytes into dst.
func (d *Device) ReadPage(page uint32, dst []byte) error {
	if !d.ready {
		return ErrUninitialized
	}
	if len(dst) < d.geo.PageSize {
		return pageErr("spinand.read_page", "page", page, ErrBufferSize)
	}
	if err := d.loadPage("spinand.read_page", page); err != nil {
		return err
	}
	if err := d.readCache(0, dst[:d.geo.PageSize]); err != nil {
		return transportErr("spinand.read_page", err)
	}
	return nil
}

// ReadSpare copies the spare area of page into dst (up to SpareSize bytes).
func (d *Device) ReadSpare(page uint32, dst []byte) error {
	if !d.ready {
		return ErrUninitialized
	}
	n := min(len(dst), d.geo.SpareSize)
	if err := d.loadPage("spinand.read_spare", page); err != nil {
		return err
	}
	if err := d.readCache(uint16(d.geo.PageSize), dst[:n]); err != nil {
		return transportErr("spinand.read_spare", err)
	}
	return nil
}

// loadPage issues page-data-read and waits for the cache load to finish.
func (d *Device) loadPage(op string, page uint32) error {
	if _, err := d.waitReady(0); err != nil {
		return wrapWait(op, "page", page, err)
	}
	if err := d.addrCommand(opPageDataRead, page); err != nil {
		return transportErr(op, err)
	}
	if _, err := d.waitReady(0); err != nil {
		return wrapWait(op, "page", page, err)
	}
	return nil
}

// ProgramPage writes exactly PageSize bytes to an erased page.
func (d *Device) ProgramPage(page uint32, src []byte) (err error) {
	const op = "spinand.program_page"
	if !d.ready {
		return ErrUninitialized
	}
	if len(src) != d.geo.PageSize {
		return pageErr(op, "page", page, ErrBufferSize)
	}
	if _, err := d.waitReady(0); err != nil {
		return wrapWait(op, "page", page, err)
	}
	if err := d.writeEnable(op, "page", page); err != nil {
		return err
	}
	defer d.writeDisable(op, &err)

	if err := d.programLoad(0, src); err != nil {
		return transportErr(op, err)
	}
	if err := d.addrCommand(opProgramExecute, page); err != nil {
		return transportErr(op, err)
	}
	st, err := d.waitReady(0)
	if err != nil {
		return wrapWait(op, "page", page, err)
	}
	if st.ProgramFail {
		return pageErr(op, "page", page, ErrProgramFailed)
	}
	return nil
}

// EraseBlock erases one block. The chip takes a page address and ignores the
// page-within-block bits.
func (d *Device) EraseBlock(block uint32) (err error) {
	const op = "spinand.erase_block"
	if !d.ready {
		return ErrUninitialized
	}
	if _, err := d.waitReady(0); err != nil {
		return wrapWait(op, "block", block, err)
	}
	if err := d.writeEnable(op, "block", block); err != nil {
		return err
	}
	defer d.writeDisable(op, &err)

	if err := d.addrCommand(opBlockErase, d.geo.FirstPage(block)); err != nil {
		return transportErr(op, err)
	}
	st, err := d.waitReady(d.cfg.EraseTimeout)
	if err != nil {
		return wrapWait(op, "block", block, err)
	}
	if st.EraseFail {
		return pageErr(op, "block", block, ErrEraseFailed)
	}
	return nil
}

// writeEnable sets WEL and confirms the chip latched it. A missing latch is
// fatal: the chip would silently ignore the following program or erase.
func (d *Device) writeEnable(op, what string, n uint32) error {
	if err := d.command(opWriteEnable); err != nil {
		return transportErr(op, err)
	}
	st, err := d.status()
	if err != nil {
		return err
	}
	if !st.WriteEnable {
		_ = d.command(opWriteDisable)
		return pageErr(op, what, n, ErrWriteLatch)
	}
	return nil
}

// writeDisable always runs on the way out of program/erase. Its own failure
// only surfaces when the operation otherwise succeeded.
func (d *Device) writeDisable(op string, errp *error) {
	if err := d.command(opWriteDisable); err != nil && *errp == nil {
		*errp = transportErr(op, err)
	}
}

func wrapWait(op, what string, n uint32, err error) error {
	if err == ErrTimeout {
		return &errcode.E{C: errcode.Timeout, Op: op, Msg: what + " " + conv.U32(n), Err: ErrTimeout}
	}
	return err
}
