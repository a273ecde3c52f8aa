package nandsim

import (
	"bytes"
	"errors"
	"testing"
)

func tx(t *testing.T, c *Chip, w ...byte) []byte {
	t.Helper()
	r := make([]byte, len(w))
	if err := c.Tx(w, r); err != nil {
		t.Fatalf("Tx(% X): %v", w, err)
	}
	return r
}

func status(t *testing.T, c *Chip, reg byte) byte { return tx(t, c, 0x05, reg, 0)[2] }

func small() *Chip {
	return New(Options{PageSize: 16, SpareSize: 4, PagesPerBlock: 4, Blocks: 8})
}

func unprotect(t *testing.T, c *Chip) {
	t.Helper()
	tx(t, c, 0x01, 0xA0, 0x00)
}

func program(t *testing.T, c *Chip, page uint32, data []byte) {
	t.Helper()
	tx(t, c, 0x06)
	tx(t, c, append([]byte{0x02, 0, 0}, data...)...)
	tx(t, c, 0x10, byte(page>>16), byte(page>>8), byte(page))
}

func read(t *testing.T, c *Chip, page uint32, n int) []byte {
	t.Helper()
	tx(t, c, 0x13, byte(page>>16), byte(page>>8), byte(page))
	w := make([]byte, 4+n)
	w[0] = 0x03
	return tx(t, c, w...)[4:]
}

func TestPowerOnState(t *testing.T) {
	c := small()
	if got := status(t, c, 0xA0); got != PowerOnSR1 {
		t.Fatalf("SR1 = %#x", got)
	}
	if got := status(t, c, 0xB0); got != PowerOnSR2 {
		t.Fatalf("SR2 = %#x", got)
	}
	id := tx(t, c, 0x9F, 0, 0, 0, 0)
	if !bytes.Equal(id[2:], []byte{0xEF, 0xAA, 0x21}) {
		t.Fatalf("ID = % X", id)
	}
}

func TestWriteEnableIgnoredWhileProtected(t *testing.T) {
	c := small()
	tx(t, c, 0x06)
	if c.WEL() {
		t.Fatal("WEL set while protected")
	}
	unprotect(t, c)
	tx(t, c, 0x06)
	if !c.WEL() || status(t, c, 0xC0)&sr3WEL == 0 {
		t.Fatal("WEL not set after unprotect")
	}
	tx(t, c, 0x04)
	if c.WEL() {
		t.Fatal("WRDI did not clear WEL")
	}
}

func TestProgramANDsAndEraseRestores(t *testing.T) {
	c := small()
	unprotect(t, c)
	program(t, c, 5, []byte{0xF0, 0x0F})
	program(t, c, 5, []byte{0x3C, 0xFF})
	if got := read(t, c, 5, 3); !bytes.Equal(got, []byte{0x30, 0x0F, 0xFF}) {
		t.Fatalf("page 5 = % X", got)
	}
	if c.ProgrammedPages() != 1 {
		t.Fatalf("programmed = %d", c.ProgrammedPages())
	}

	tx(t, c, 0x06)
	tx(t, c, 0xD8, 0, 0, 4) // page 4 = block 1
	if got := read(t, c, 5, 2); !bytes.Equal(got, []byte{0xFF, 0xFF}) {
		t.Fatalf("after erase = % X", got)
	}
	if c.WEL() {
		t.Fatal("WEL survived erase")
	}
}

func TestProgramWithoutLatchIgnored(t *testing.T) {
	c := small()
	unprotect(t, c)
	tx(t, c, 0x02, 0, 0, 0x00)
	tx(t, c, 0x10, 0, 0, 1)
	log := c.Log()
	if last := log[len(log)-1]; last.Op != 0x10 || !last.Ignored {
		t.Fatalf("last txn = %+v", last)
	}
	if c.ProgrammedPages() != 0 {
		t.Fatal("program without WEL changed the array")
	}
}

func TestBusyPolls(t *testing.T) {
	c := small()
	c.SetBusyPolls(2)
	unprotect(t, c)
	program(t, c, 0, []byte{0})
	if status(t, c, 0xC0)&sr3Busy == 0 || status(t, c, 0xC0)&sr3Busy == 0 {
		t.Fatal("expected two busy polls")
	}
	if status(t, c, 0xC0)&sr3Busy != 0 {
		t.Fatal("still busy after polls")
	}
}

func TestCommandsIgnoredWhileBusy(t *testing.T) {
	c := small()
	unprotect(t, c)
	c.SetStuckBusy(true)
	tx(t, c, 0x06)
	if c.WEL() {
		t.Fatal("WREN accepted while busy")
	}
	tx(t, c, 0xFF)
	if status(t, c, 0xC0)&sr3Busy != 0 {
		t.Fatal("reset did not clear stuck busy")
	}
}

func TestFailureInjection(t *testing.T) {
	c := small()
	unprotect(t, c)
	c.FailProgram(2)
	program(t, c, 2, []byte{0})
	if status(t, c, 0xC0)&sr3PFail == 0 {
		t.Fatal("P-FAIL not reported")
	}
	c.FailErase(3)
	tx(t, c, 0x06)
	tx(t, c, 0xD8, 0, 0, 12)
	if status(t, c, 0xC0)&sr3EFail == 0 {
		t.Fatal("E-FAIL not reported")
	}

	c.MarkBad(6)
	if got := read(t, c, 24, 17); got[16] != 0x00 {
		t.Fatalf("bad marker = %#x", got[16])
	}

	c.InjectECC(1, 2)
	tx(t, c, 0x13, 0, 0, 1)
	if ecc := (status(t, c, 0xC0) >> 4) & 3; ecc != 2 {
		t.Fatalf("ecc = %d", ecc)
	}
}

func TestLockProtection(t *testing.T) {
	c := small()
	c.LockProtection(true)
	unprotect(t, c)
	if c.SR1() != PowerOnSR1 {
		t.Fatalf("SR1 changed while locked: %#x", c.SR1())
	}
}

func TestLUT(t *testing.T) {
	c := small()
	c.SetLUT(1, 0x8005, 0x0300)
	out := tx(t, c, append([]byte{0xA5, 0}, make([]byte, 80)...)...)
	if !bytes.Equal(out[6:10], []byte{0x80, 0x05, 0x03, 0x00}) {
		t.Fatalf("lut[1] = % X", out[6:10])
	}
}

func TestBusFaults(t *testing.T) {
	c := New(Options{RequireSelect: true})
	if err := c.Tx([]byte{0x9F, 0, 0, 0, 0}, make([]byte, 5)); !errors.Is(err, ErrNotSelected) {
		t.Fatalf("unselected Tx: %v", err)
	}
	c.Select(false)
	c.Disconnect()
	if err := c.Tx([]byte{0x9F}, nil); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("disconnected Tx: %v", err)
	}
	if _, err := c.Transfer(0); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("disconnected Transfer: %v", err)
	}
	c.Reconnect()
	if err := c.Tx([]byte{0x9F}, nil); err != nil {
		t.Fatal(err)
	}

	absent := New(Options{Absent: true})
	r := make([]byte, 5)
	if err := absent.Tx([]byte{0x9F, 0, 0, 0, 0}, r); err != nil || !bytes.Equal(r, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}) {
		t.Fatalf("absent chip: % X %v", r, err)
	}
}

func TestPowerCycleKeepsArray(t *testing.T) {
	c := small()
	unprotect(t, c)
	program(t, c, 3, []byte{0x12})
	c.PowerCycle()
	if c.SR1() != PowerOnSR1 {
		t.Fatal("SR1 not restored")
	}
	if got := c.Page(3); got[0] != 0x12 {
		t.Fatalf("page lost: % X", got[:2])
	}
	c.ResetLog()
	if len(c.Log()) != 0 {
		t.Fatal("log not cleared")
	}
}
