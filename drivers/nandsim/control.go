package nandsim

// Fault injection and inspection. All methods are safe to call while the
// chip is in use.

// Disconnect makes every transfer fail; Reconnect undoes it.
func (c *Chip) Disconnect() { c.mu.Lock(); c.disconnected = true; c.mu.Unlock() }
func (c *Chip) Reconnect()  { c.mu.Lock(); c.disconnected = false; c.mu.Unlock() }

// SetStuckBusy keeps BUSY asserted until cleared or reset.
func (c *Chip) SetStuckBusy(on bool) { c.mu.Lock(); c.stuck = on; c.mu.Unlock() }

// LockProtection makes SR1 writes ignored, as with SRP/WP asserted.
func (c *Chip) LockProtection(on bool) { c.mu.Lock(); c.lockSR1 = on; c.mu.Unlock() }

// FailProgram makes program-execute of page report P-FAIL.
func (c *Chip) FailProgram(page uint32) { c.mu.Lock(); c.failProgram[page] = true; c.mu.Unlock() }

// FailErase makes erase of block report E-FAIL.
func (c *Chip) FailErase(block uint32) { c.mu.Lock(); c.failErase[block] = true; c.mu.Unlock() }

// MarkBad gives block a factory bad-block marker. Programs and erases to it fail.
func (c *Chip) MarkBad(block uint32) { c.mu.Lock(); c.bad[block] = true; c.mu.Unlock() }

// InjectECC sets the ECC state reported after loading page (0..3).
func (c *Chip) InjectECC(page uint32, state byte) {
	c.mu.Lock()
	c.eccInject[page] = state & 0x3
	c.mu.Unlock()
}

// SetLUT sets one bad-block-management table entry.
func (c *Chip) SetLUT(i int, logical, physical uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= 0 && i < len(c.lut) {
		c.lut[i] = [2]uint16{logical, physical}
	}
}

// SetBusyPolls changes how long array operations stay busy.
func (c *Chip) SetBusyPolls(n int) { c.mu.Lock(); c.opt.BusyPolls = n; c.mu.Unlock() }

// PowerCycle restores power-on register state; array contents survive.
func (c *Chip) PowerCycle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sr1, c.sr2 = PowerOnSR1, PowerOnSR2
	c.wel, c.pfail, c.efail, c.busy, c.stuck = false, false, false, 0, false
	c.cache = c.erased()
}

// SR1 returns the protection register.
func (c *Chip) SR1() byte { c.mu.Lock(); defer c.mu.Unlock(); return c.sr1 }

// WEL reports the write-enable latch.
func (c *Chip) WEL() bool { c.mu.Lock(); defer c.mu.Unlock(); return c.wel }

// Page returns a copy of page data and spare (nil index means erased).
func (c *Chip) Page(page uint32) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pages[page]; ok {
		return append([]byte(nil), p...)
	}
	return c.erased()
}

// ProgrammedPages counts pages holding any programmed data.
func (c *Chip) ProgrammedPages() int { c.mu.Lock(); defer c.mu.Unlock(); return len(c.pages) }

// Log returns the recorded transactions.
func (c *Chip) Log() []Txn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Txn(nil), c.log...)
}

// ResetLog clears the transaction log.
func (c *Chip) ResetLog() { c.mu.Lock(); c.log = c.log[:0]; c.mu.Unlock() }
