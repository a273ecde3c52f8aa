package spinand

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/golang/mock/gomock"

	"batlog-go/errcode"
)

// opIs matches a Tx whose write buffer starts with the given bytes.
type opIs []byte

func (m opIs) Matches(x interface{}) bool {
	w, ok := x.([]byte)
	if !ok || len(w) < len(m) {
		return false
	}
	for i := range m {
		if w[i] != m[i] {
			return false
		}
	}
	return true
}

func (m opIs) String() string { return fmt.Sprintf("tx starting % X", []byte(m)) }

// status answers a 05 C0 read with v.
func status(v byte) func(w, r []byte) error {
	return func(w, r []byte) error {
		r[2] = v
		return nil
	}
}

func ok(w, r []byte) error { return nil }

// readyDevice builds a Device that skips Init so each test scripts only the
// operation under test.
func readyDevice(spi *MockSPI) *Device {
	d := New(spi, nil)
	d.cfg = fastConfig()
	d.cfg.applyDefaults()
	d.geo = W25N01GV
	d.frame(readCacheHeader + W25N01GV.PageSize + W25N01GV.SpareSize)
	d.ready = true
	return d
}

func TestProgramPageSequence(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	spi := NewMockSPI(ctrl)
	d := readyDevice(spi)

	gomock.InOrder(
		spi.EXPECT().Tx(opIs{0x05, 0xC0}, gomock.Any()).DoAndReturn(status(sr3Busy)),
		spi.EXPECT().Tx(opIs{0x05, 0xC0}, gomock.Any()).DoAndReturn(status(0)),
		spi.EXPECT().Tx(opIs{0x06}, gomock.Any()).DoAndReturn(ok),
		spi.EXPECT().Tx(opIs{0x05, 0xC0}, gomock.Any()).DoAndReturn(status(sr3WEL)),
		spi.EXPECT().Tx(opIs{0x02, 0x00, 0x00, 0xA5}, gomock.Any()).DoAndReturn(func(w, r []byte) error {
			if len(w) != 3+2048 || len(r) != len(w) {
				t.Fatalf("program load length %d/%d", len(w), len(r))
			}
			return nil
		}),
		spi.EXPECT().Tx(opIs{0x10, 0x01, 0x02, 0x03}, gomock.Any()).DoAndReturn(ok),
		spi.EXPECT().Tx(opIs{0x05, 0xC0}, gomock.Any()).DoAndReturn(status(sr3Busy|sr3WEL)),
		spi.EXPECT().Tx(opIs{0x05, 0xC0}, gomock.Any()).DoAndReturn(status(0)),
		spi.EXPECT().Tx(opIs{0x04}, gomock.Any()).DoAndReturn(ok),
	)

	data := make([]byte, 2048)
	for i := range data {
		data[i] = 0xA5
	}
	if err := d.ProgramPage(0x010203, data); err != nil {
		t.Fatalf("ProgramPage: %v", err)
	}
}

func TestProgramFailStillWriteDisables(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	spi := NewMockSPI(ctrl)
	d := readyDevice(spi)

	gomock.InOrder(
		spi.EXPECT().Tx(opIs{0x05, 0xC0}, gomock.Any()).DoAndReturn(status(0)),
		spi.EXPECT().Tx(opIs{0x06}, gomock.Any()).DoAndReturn(ok),
		spi.EXPECT().Tx(opIs{0x05, 0xC0}, gomock.Any()).DoAndReturn(status(sr3WEL)),
		spi.EXPECT().Tx(opIs{0x02}, gomock.Any()).DoAndReturn(ok),
		spi.EXPECT().Tx(opIs{0x10}, gomock.Any()).DoAndReturn(ok),
		spi.EXPECT().Tx(opIs{0x05, 0xC0}, gomock.Any()).DoAndReturn(status(sr3PFail)),
		spi.EXPECT().Tx(opIs{0x04}, gomock.Any()).DoAndReturn(ok),
	)

	err := d.ProgramPage(7, make([]byte, 2048))
	if !errors.Is(err, ErrProgramFailed) {
		t.Fatalf("err=%v", err)
	}
}

func TestLatchNotSetAbortsBeforeLoad(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	spi := NewMockSPI(ctrl)
	d := readyDevice(spi)

	gomock.InOrder(
		spi.EXPECT().Tx(opIs{0x05, 0xC0}, gomock.Any()).DoAndReturn(status(0)),
		spi.EXPECT().Tx(opIs{0x06}, gomock.Any()).DoAndReturn(ok),
		spi.EXPECT().Tx(opIs{0x05, 0xC0}, gomock.Any()).DoAndReturn(status(0)),
		spi.EXPECT().Tx(opIs{0x04}, gomock.Any()).DoAndReturn(ok),
	)

	err := d.EraseBlock(2)
	if errcode.Of(err) != errcode.ProtocolViolation {
		t.Fatalf("err=%v", err)
	}
}

func TestEraseUsesEraseTimeoutAndBlockShift(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	spi := NewMockSPI(ctrl)
	d := readyDevice(spi)
	d.cfg.ReadyTimeout = time.Millisecond
	d.cfg.EraseTimeout = time.Second

	polls := 0
	gomock.InOrder(
		spi.EXPECT().Tx(opIs{0x05, 0xC0}, gomock.Any()).DoAndReturn(status(0)),
		spi.EXPECT().Tx(opIs{0x06}, gomock.Any()).DoAndReturn(ok),
		spi.EXPECT().Tx(opIs{0x05, 0xC0}, gomock.Any()).DoAndReturn(status(sr3WEL)),
		// block 1023 << 6 = 0x00FFC0
		spi.EXPECT().Tx(opIs{0xD8, 0x00, 0xFF, 0xC0}, gomock.Any()).DoAndReturn(ok),
		spi.EXPECT().Tx(opIs{0x05, 0xC0}, gomock.Any()).DoAndReturn(func(w, r []byte) error {
			polls++
			if polls < 5 {
				time.Sleep(time.Millisecond)
				r[2] = sr3Busy | sr3WEL
			} else {
				r[2] = 0
			}
			return nil
		}).Times(5),
		spi.EXPECT().Tx(opIs{0x04}, gomock.Any()).DoAndReturn(ok),
	)

	if err := d.EraseBlock(1023); err != nil {
		t.Fatalf("EraseBlock: %v", err)
	}
}

func TestReadPageFraming(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	spi := NewMockSPI(ctrl)
	d := readyDevice(spi)

	gomock.InOrder(
		spi.EXPECT().Tx(opIs{0x05, 0xC0}, gomock.Any()).DoAndReturn(status(0)),
		spi.EXPECT().Tx(opIs{0x13, 0x00, 0x00, 0x2A}, gomock.Any()).DoAndReturn(ok),
		spi.EXPECT().Tx(opIs{0x05, 0xC0}, gomock.Any()).DoAndReturn(status(0)),
		spi.EXPECT().Tx(opIs{0x03, 0x00, 0x00, 0x00}, gomock.Any()).DoAndReturn(func(w, r []byte) error {
			if len(w) != 4+2048 {
				t.Fatalf("read cache length %d", len(w))
			}
			for i := 4; i < len(r); i++ {
				r[i] = byte(i - 4)
			}
			return nil
		}),
	)

	buf := make([]byte, 2048)
	if err := d.ReadPage(42, buf); err != nil {
		t.Fatal(err)
	}
	if buf[0] != 0 || buf[255] != 255 || buf[256] != 0 {
		t.Fatalf("payload offset wrong: %d %d %d", buf[0], buf[255], buf[256])
	}
}

func TestTransportErrorFromBus(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	spi := NewMockSPI(ctrl)
	d := readyDevice(spi)
	boom := errors.New("spi: fifo underrun")

	spi.EXPECT().Tx(opIs{0x05, 0xC0}, gomock.Any()).Return(boom)

	err := d.EraseBlock(0)
	if !errors.Is(err, boom) || errcode.Of(err) != errcode.Transport {
		t.Fatalf("err=%v", err)
	}
}
