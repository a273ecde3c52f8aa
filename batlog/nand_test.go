package batlog

import (
	"testing"
	"time"

	"batlog-go/drivers/nandsim"
	"batlog-go/drivers/spinand"
	"batlog-go/storage/nandfs"
)

func TestStoreOnRawNAND(t *testing.T) {
	chip := nandsim.New(nandsim.Options{Blocks: 32, BusyPolls: 1})
	dev := spinand.New(chip, chip.Select)
	err := dev.Init(spinand.Config{
		Geometry:     spinand.Geometry{PageSize: 2048, SpareSize: 64, PagesPerBlock: 64, BlockSize: 2048 * 64, Blocks: 32},
		ResetDelay:   time.Microsecond,
		PollInterval: time.Microsecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	vol, err := nandfs.Format(dev, nandfs.Config{})
	if err != nil {
		t.Fatal(err)
	}
	s, err := Open(Config{FS: vol, RingSize: 64})
	if err != nil {
		t.Fatal(err)
	}
	for i := uint32(0); i < 6; i++ {
		mustSync(t, s, "GAUGE7", batch(0, span(i*8, i*8+15)...))
	}
	if n, _ := s.Count("GAUGE7"); n != 56 {
		t.Fatalf("count %d before power cycle", n)
	}

	// Power cycle: re-init the chip and remount from flash.
	chip.PowerCycle()
	if err := dev.Init(spinand.Config{Geometry: dev.Geometry(), ResetDelay: time.Microsecond, PollInterval: time.Microsecond}); err != nil {
		t.Fatal(err)
	}
	vol2, err := nandfs.Mount(dev, nandfs.Config{})
	if err != nil {
		t.Fatal(err)
	}
	s2, _ := Open(Config{FS: vol2, RingSize: 64})
	m, err := s2.ReadMetadata("GAUGE7")
	if err != nil || m.RecordCount != 56 || m.LastRingPosition != 55 {
		t.Fatalf("metadata %+v err=%v", m, err)
	}
	res := mustSync(t, s2, "GAUGE7", batch(0, span(50, 60)...))
	if res.Appended != 5 {
		t.Fatalf("result %+v", res)
	}
	if got := positions(t, s2, "GAUGE7"); !equalU32(got, span(0, 60)) {
		t.Fatalf("positions %v", got)
	}
	u, _ := s2.Usage()
	if u.Used == 0 || u.Free >= u.Total {
		t.Fatalf("usage %+v", u)
	}
}
