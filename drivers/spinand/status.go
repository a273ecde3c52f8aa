package spinand

// ECCState is the two-bit ECC result of the last page data read.
type ECCState uint8

const (
	ECCClean         ECCState = 0 // no errors
	ECCCorrected     ECCState = 1 // 1-4 bit errors corrected
	ECCUncorrectable ECCState = 2 // more than 4 bits in one page
	ECCMultiFail     ECCState = 3 // uncorrectable in a continuous read
)

func (e ECCState) String() string {
	switch e {
	case ECCClean:
		return "clean"
	case ECCCorrected:
		return "corrected"
	case ECCUncorrectable:
		return "uncorrectable"
	default:
		return "multi-page-uncorrectable"
	}
}

// Status is a decoded snapshot of status register 3. It is transient:
// re-read it before every decision that depends on it.
type Status struct {
	Busy        bool     // bit 0: operation in progress
	WriteEnable bool     // bit 1: write-enable latch
	EraseFail   bool     // bit 2
	ProgramFail bool     // bit 3
	ECC         ECCState // bits 5:4
	LUTFull     bool     // bit 6
}

// DecodeStatus unpacks an SR3 byte.
func DecodeStatus(b byte) Status {
	return Status{
		Busy:        b&sr3Busy != 0,
		WriteEnable: b&sr3WEL != 0,
		EraseFail:   b&sr3EFail != 0,
		ProgramFail: b&sr3PFail != 0,
		ECC:         ECCState((b >> 4) & 0x3),
		LUTFull:     b&sr3LUTF != 0,
	}
}

// Encode packs the snapshot back into an SR3 byte.
func (s Status) Encode() byte {
	var b byte
	if s.Busy {
		b |= sr3Busy
	}
	if s.WriteEnable {
		b |= sr3WEL
	}
	if s.EraseFail {
		b |= sr3EFail
	}
	if s.ProgramFail {
		b |= sr3PFail
	}
	b |= byte(s.ECC&0x3) << 4
	if s.LUTFull {
		b |= sr3LUTF
	}
	return b
}

// Protection is a decoded SR1 byte.
type Protection struct {
	BP         uint8 // BP3..BP0
	TopBottom  bool
	WPEnable   bool
	SRP0, SRP1 bool
}

// DecodeProtection unpacks an SR1 byte.
func DecodeProtection(b byte) Protection {
	return Protection{
		BP:        (b >> 3) & 0xF,
		TopBottom: b&sr1TB != 0,
		WPEnable:  b&sr1WPE != 0,
		SRP0:      b&sr1SRP0 != 0,
		SRP1:      b&sr1SRP1 != 0,
	}
}

// Encode packs the protection fields into an SR1 byte.
func (p Protection) Encode() byte {
	b := (p.BP & 0xF) << 3
	if p.TopBottom {
		b |= sr1TB
	}
	if p.WPEnable {
		b |= sr1WPE
	}
	if p.SRP0 {
		b |= sr1SRP0
	}
	if p.SRP1 {
		b |= sr1SRP1
	}
	return b
}

// Protected reports whether any block-protect bit is set.
func (p Protection) Protected() bool { return p.BP != 0 || p.TopBottom }
