//go:build !rp2040

package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"

	"batlog-go/acquisition"
	"batlog-go/batlog"
	"batlog-go/bus"
	"batlog-go/config"
	"batlog-go/errcode"
	svc "batlog-go/services/batlog"
	"batlog-go/types"
	"batlog-go/x/conv"
	"batlog-go/x/timex"
)

type app struct {
	cfg   *config.Config
	b     *backend
	store *batlog.Store
}

func (a *app) run(cmd string, args []string) error {
	serial := func(def string) (string, error) {
		if len(args) > 0 {
			return args[0], nil
		}
		if def == "" {
			return "", errcode.New(errcode.InvalidArgument, cmd, "serial number required")
		}
		return def, nil
	}

	switch cmd {
	case "info":
		return a.info()
	case "sync-demo":
		s, _ := serial("DEMO0001")
		return a.syncDemo(s)
	case "serve":
		s, _ := serial("DEMO0001")
		return a.serve(s)
	case "dump", "count", "meta", "delete":
		s, err := serial("")
		if err != nil {
			return err
		}
		switch cmd {
		case "dump":
			return a.dump(s)
		case "count":
			n, err := a.store.Count(s)
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		case "meta":
			m, err := a.store.ReadMetadata(s)
			if err != nil {
				return err
			}
			printMeta(m)
			return nil
		default:
			if err := a.store.Delete(s); err != nil {
				return err
			}
			color.Green("deleted %s", s)
			return nil
		}
	case "wipe":
		n, err := a.store.DeleteAll()
		if err != nil {
			return err
		}
		color.Green("deleted %d series", n)
		return nil
	case "diag":
		return a.diag()
	case "ecc":
		return a.ecc()
	}
	return errcode.New(errcode.InvalidArgument, "batlog", "unknown command "+cmd)
}

func (a *app) info() error {
	color.Cyan("backend: %s", a.cfg.Storage.Backend)
	if d := a.b.dev; d != nil {
		g := d.Geometry()
		fmt.Printf("chip:    %s id=%s\n", d.ChipName(), conv.HexBytes(idSlice(d.ID()), ' '))
		fmt.Printf("layout:  %d blocks x %d pages x %d+%d bytes\n", g.Blocks, g.PagesPerBlock, g.PageSize, g.SpareSize)
	}
	if v := a.b.vol; v != nil {
		st := v.Stats()
		fmt.Printf("blocks:  %d owned, %d bad, %d failed of %d\n", st.Owned, st.Bad, st.Failed, st.Blocks)
	}
	u, err := a.store.Usage()
	switch {
	case err == nil:
		fmt.Printf("usage:   %d KB used, %d KB free, %d KB total\n", u.UsedKB(), u.FreeKB(), u.TotalKB())
	case errcode.Of(err) != errcode.Unsupported:
		return err
	}

	series, err := a.store.Series()
	if err != nil {
		return err
	}
	color.Cyan("series:  %d", len(series))
	for _, s := range series {
		n, err := a.store.Count(s)
		if err != nil {
			color.Red("  %-32s %v", s, err)
			continue
		}
		m, err := a.store.ReadMetadata(s)
		if err != nil {
			fmt.Printf("  %-32s %6d records, metadata: %v\n", s, n, errcode.Of(err))
			continue
		}
		fmt.Printf("  %-32s %6d records, last pos %d at %s\n", s, n, m.LastRingPosition,
			timex.FromUnix32(m.LastWriteTime).UTC().Format(time.RFC3339))
	}
	return nil
}

func (a *app) dump(serial string) error {
	it, err := a.store.Records(serial)
	if err != nil {
		return err
	}
	defer it.Close()
	i := 0
	for it.Next() {
		r := it.Record()
		fmt.Printf("%6d pos=%-5d len=%-4d %s\n", i, r.RingPosition, len(r.Payload), conv.HexBytes(head(r.Payload, 16), ' '))
		i++
	}
	return it.Err()
}

// syncDemo walks a simulated gauge through the interesting sync cases.
func (a *app) syncDemo(serial string) error {
	ring := acquisition.NewRing(serial, 16)
	var seq uint32
	push := func(n int) {
		for i := 0; i < n; i++ {
			ring.Push(sample(seq))
			seq++
		}
	}
	step := func(label string) error {
		res, err := a.store.Sync(serial, ring.Entries())
		if err != nil {
			return err
		}
		fmt.Printf("%-22s mode=%-11s appended=%-3d skipped=%-3d records=%d\n",
			label, res.Mode, res.Appended, res.Skipped, res.Metadata.RecordCount)
		return nil
	}

	push(10)
	if err := step("initial read"); err != nil {
		return err
	}
	if err := step("repeat read"); err != nil {
		return err
	}
	push(3)
	if err := step("three new slots"); err != nil {
		return err
	}
	push(16)
	if err := step("ring wrapped"); err != nil {
		return err
	}
	color.Green("ok")
	return nil
}

// serve runs the bus service with a simulated gauge that gains one slot per
// interval, printing each sync report.
func (a *app) serve(serial string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ring := acquisition.NewRing(serial, 32)
	b := bus.NewBus(a.cfg.Service.QueueLen)
	s := svc.New(svc.Options{
		Store:    a.store,
		Flash:    flashOf(a.b),
		Sources:  []acquisition.Source{ring},
		Interval: a.cfg.Service.Interval(),
	})
	if err := s.Start(ctx, b.NewConnection("batlog")); err != nil {
		return err
	}
	mon := b.NewConnection("cli")
	sub := mon.Subscribe(bus.T("batlog", "#"))

	color.Cyan("serving %s every %s; ^C to stop", serial, a.cfg.Service.Interval())
	gauge := time.NewTicker(a.cfg.Service.Interval())
	defer gauge.Stop()
	var seq uint32
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-gauge.C:
			ring.Push(sample(seq))
			seq++
		case m := <-sub.Channel():
			switch p := m.Payload.(type) {
			case types.SyncReport:
				fmt.Printf("%s %s mode=%s +%d records=%d\n", time.UnixMilli(p.TS).Format("15:04:05"), m.Topic, p.Mode, p.Appended, p.RecordCount)
			case types.ErrorReply:
				color.Red("%s %s", m.Topic, p.Error)
			}
		}
	}
}

func (a *app) diag() error {
	d := a.b.dev
	if d == nil {
		return errcode.New(errcode.Unsupported, "diag", "backend has no flash device")
	}
	bad, err := d.BadBlockCount()
	if err != nil {
		return err
	}
	fmt.Printf("factory bad blocks: %d\n", bad)
	lut, err := d.ReadBBMLUT()
	if err != nil {
		return err
	}
	used := 0
	for i, e := range lut {
		if !e.Enabled() {
			continue
		}
		used++
		fmt.Printf("  lut[%02d] %5d -> %5d invalid=%v\n", i, e.Logical&0x3FF, e.Physical, e.Invalid())
	}
	fmt.Printf("bbm lut entries: %d/%d\n", used, len(lut))
	st, err := d.ReadStatus()
	if err != nil {
		return err
	}
	fmt.Printf("status: busy=%v wel=%v ecc=%s\n", st.Busy, st.WriteEnable, st.ECC)
	return nil
}

func (a *app) ecc() error {
	d := a.b.dev
	if d == nil {
		return errcode.New(errcode.Unsupported, "ecc", "backend has no flash device")
	}
	warnf("scanning %d pages", d.Geometry().Pages())
	st, err := d.ScanECC(0, 0)
	if err != nil {
		return err
	}
	fmt.Printf("pages %d, corrected %d, uncorrectable %d\n", st.Pages, st.Corrected, st.Uncorrectable)
	if st.Uncorrectable > 0 {
		color.Red("first uncorrectable page: %d", st.FirstBad)
	}
	return nil
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

func flashOf(b *backend) svc.Flash {
	if b.dev == nil {
		return nil
	}
	return b.dev
}

// sample fakes one gauge log slot: sequence, millivolts, milliamps.
func sample(seq uint32) []byte {
	p := make([]byte, 12)
	binary.LittleEndian.PutUint32(p[0:], seq)
	binary.LittleEndian.PutUint32(p[4:], 3600+seq%600)
	binary.LittleEndian.PutUint32(p[8:], uint32(500-int32(seq%1000)))
	return p
}

func printMeta(m batlog.Metadata) {
	fmt.Printf("last_ring_position %d\n", m.LastRingPosition)
	fmt.Printf("record_count       %d\n", m.RecordCount)
	fmt.Printf("last_write_time    %s\n", timex.FromUnix32(m.LastWriteTime).UTC().Format(time.RFC3339))
	fmt.Printf("last_payload_hash  %s\n", conv.Hex32(m.LastPayloadHash))
}

func idSlice(id [3]byte) []byte { return id[:] }

func head(p []byte, n int) []byte {
	if len(p) > n {
		return p[:n]
	}
	return p
}
