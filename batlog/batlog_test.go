package batlog

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"batlog-go/errcode"
	"batlog-go/storage"
	"batlog-go/storage/osfs"
)

var fixedNow = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

func newStore(t *testing.T) (*Store, *osfs.FS) {
	t.Helper()
	fs, err := osfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	s, err := Open(Config{FS: fs, Now: func() time.Time { return fixedNow }})
	if err != nil {
		t.Fatal(err)
	}
	return s, fs
}

// payload is deterministic per (position, generation) so a wrapped slot
// carries different bytes.
func payload(pos uint32, gen byte) []byte {
	p := make([]byte, 20+int(pos%7))
	for i := range p {
		p[i] = byte(pos) ^ gen ^ byte(i*13)
	}
	return p
}

func batch(gen byte, positions ...uint32) []Entry {
	out := make([]Entry, len(positions))
	for i, p := range positions {
		out[i] = Entry{RingPosition: p, Payload: payload(p, gen)}
	}
	return out
}

func span(from, to uint32) []uint32 {
	var out []uint32
	for p := from; p <= to; p++ {
		out = append(out, p)
	}
	return out
}

func mustSync(t *testing.T, s *Store, serial string, b []Entry) SyncResult {
	t.Helper()
	res, err := s.Sync(serial, b)
	if err != nil {
		t.Fatalf("Sync(%s): %v", serial, err)
	}
	return res
}

func positions(t *testing.T, s *Store, serial string) []uint32 {
	t.Helper()
	var out []uint32
	if err := s.ReadAll(serial, func(r Record) bool {
		out = append(out, r.RingPosition)
		return true
	}); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return out
}

func equalU32(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFirstSyncTakesMetadataFromLastInInputOrder(t *testing.T) {
	s, _ := newStore(t)
	b := batch(0, 7, 3, 5)
	res := mustSync(t, s, "BAT001", b)
	if res.Mode != ModeFirst || res.Appended != 3 {
		t.Fatalf("result %+v", res)
	}
	m, err := s.ReadMetadata("BAT001")
	if err != nil {
		t.Fatal(err)
	}
	want := Metadata{LastRingPosition: 5, RecordCount: 3, LastWriteTime: uint32(fixedNow.Unix()), LastPayloadHash: Checksum(b[2].Payload)}
	if m != want {
		t.Fatalf("metadata %+v want %+v", m, want)
	}
	if got := positions(t, s, "BAT001"); !equalU32(got, []uint32{7, 3, 5}) {
		t.Fatalf("append order %v", got)
	}
}

func TestIncreasingBatchesNeverDuplicate(t *testing.T) {
	s, _ := newStore(t)
	total := 0
	for _, w := range [][2]uint32{{0, 9}, {5, 14}, {10, 19}, {12, 19}, {18, 30}} {
		res := mustSync(t, s, "BAT002", batch(0, span(w[0], w[1])...))
		total += res.Appended
	}
	m, _ := s.ReadMetadata("BAT002")
	n, _ := s.Count("BAT002")
	if total != 31 || int(m.RecordCount) != total || n != total {
		t.Fatalf("appended=%d record_count=%d count=%d", total, m.RecordCount, n)
	}
	if got := positions(t, s, "BAT002"); !equalU32(got, span(0, 30)) {
		t.Fatalf("positions %v", got)
	}
}

func TestWrapResetAppendsWholeBatch(t *testing.T) {
	s, _ := newStore(t)
	mustSync(t, s, "BAT003", batch(0, 3, 4, 5)) // slot 5 hashes to H1

	// The ring wrapped: slot 5 now holds different data (H2).
	wrapped := []Entry{
		{RingPosition: 4, Payload: payload(4, 1)},
		{RingPosition: 5, Payload: payload(5, 1)},
		{RingPosition: 2, Payload: payload(2, 1)},
	}
	res := mustSync(t, s, "BAT003", wrapped)
	if res.Mode != ModeWrapReset || res.Appended != 3 {
		t.Fatalf("result %+v", res)
	}
	if res.Metadata.LastRingPosition != 5 || res.Metadata.LastPayloadHash != Checksum(wrapped[1].Payload) || res.Metadata.RecordCount != 6 {
		t.Fatalf("metadata %+v", res.Metadata)
	}
	if n, _ := s.Count("BAT003"); n != 6 {
		t.Fatalf("count %d", n)
	}
}

func TestAnchorMatchAppendsOnlyNewer(t *testing.T) {
	s, _ := newStore(t)
	mustSync(t, s, "BAT004", batch(0, 3, 4, 5))
	res := mustSync(t, s, "BAT004", batch(0, 3, 4, 5, 6))
	if res.Mode != ModeIncremental || res.Appended != 1 || res.Skipped != 3 {
		t.Fatalf("result %+v", res)
	}
	recs := make([]Record, 4)
	n, err := s.BulkRead("BAT004", recs)
	if err != nil || n != 4 {
		t.Fatalf("bulk read n=%d err=%v", n, err)
	}
	if recs[3].RingPosition != 6 || !bytes.Equal(recs[3].Payload, payload(6, 0)) {
		t.Fatalf("last record %+v", recs[3])
	}
	if res.Metadata.LastRingPosition != 6 || res.Metadata.RecordCount != 4 {
		t.Fatalf("metadata %+v", res.Metadata)
	}
}

func TestNothingNewIsNoop(t *testing.T) {
	s, fs := newStore(t)
	mustSync(t, s, "BAT005", batch(0, 1, 2, 3))
	before, _ := fs.Stat("BAT005.bin")
	res := mustSync(t, s, "BAT005", batch(0, 1, 2, 3))
	if res.Mode != ModeNoop || res.Appended != 0 || res.Skipped != 3 {
		t.Fatalf("result %+v", res)
	}
	after, _ := fs.Stat("BAT005.bin")
	if after.Size != before.Size {
		t.Fatal("noop sync changed the data log")
	}
}

func TestMissingAnchorUsesPositionalFilter(t *testing.T) {
	s, _ := newStore(t)
	mustSync(t, s, "BAT006", batch(0, 3, 4, 5))
	res := mustSync(t, s, "BAT006", batch(0, 1, 6, 7))
	if res.Mode != ModeIncremental || res.Appended != 2 {
		t.Fatalf("result %+v", res)
	}
	if got := positions(t, s, "BAT006"); !equalU32(got, []uint32{3, 4, 5, 6, 7}) {
		t.Fatalf("positions %v", got)
	}
}

func TestCountAndBulkRead(t *testing.T) {
	s, _ := newStore(t)
	b := batch(9, span(0, 24)...)
	mustSync(t, s, "BAT007", b)
	n, err := s.Count("BAT007")
	if err != nil || n != 25 {
		t.Fatalf("count=%d err=%v", n, err)
	}
	dst := make([]Record, n)
	got, err := s.BulkRead("BAT007", dst)
	if err != nil || got != 25 {
		t.Fatalf("bulk=%d err=%v", got, err)
	}
	for i := range b {
		if dst[i].RingPosition != b[i].RingPosition || !bytes.Equal(dst[i].Payload, b[i].Payload) {
			t.Fatalf("record %d differs", i)
		}
	}
	if _, err := s.BulkRead("BAT007", make([]Record, 10)); errcode.Of(err) != errcode.ResourceExhausted {
		t.Fatalf("short dst err=%v", err)
	}
}

func TestDeleteAndExists(t *testing.T) {
	s, _ := newStore(t)
	if err := s.Delete("NOPE"); errcode.Of(err) != errcode.NotFound {
		t.Fatalf("delete missing err=%v", err)
	}
	mustSync(t, s, "BAT008", batch(0, 1))
	if ok, _ := s.Exists("BAT008"); !ok {
		t.Fatal("series missing after sync")
	}
	if err := s.Delete("BAT008"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists("BAT008"); ok {
		t.Fatal("series still exists after delete")
	}
	if _, err := s.ReadMetadata("BAT008"); !storage.IsNotExist(err) {
		t.Fatalf("metadata err=%v", err)
	}
	if _, err := s.Records("BAT008"); !storage.IsNotExist(err) {
		t.Fatalf("records err=%v", err)
	}
}

func TestTailScanWhenMetadataLost(t *testing.T) {
	s, fs := newStore(t)
	mustSync(t, s, "BAT009", batch(0, span(0, 9)...))
	if err := fs.Remove("BAT009.met"); err != nil {
		t.Fatal(err)
	}

	// 8 and 9 unchanged, 10 new, and slot 7 rewritten with new data.
	in := append(batch(0, 8, 9, 10), Entry{RingPosition: 7, Payload: payload(7, 5)})
	res := mustSync(t, s, "BAT009", in)
	if res.Mode != ModeTailScan || res.Appended != 2 || res.Skipped != 2 {
		t.Fatalf("result %+v", res)
	}
	if res.Metadata.LastRingPosition != 10 || res.Metadata.RecordCount != 12 {
		t.Fatalf("metadata %+v", res.Metadata)
	}
	if got := positions(t, s, "BAT009"); !equalU32(got, append(span(0, 10), 7)) {
		t.Fatalf("positions %v", got)
	}
}

func TestTailScanRebuildsMetadata(t *testing.T) {
	s, fs := newStore(t)
	b := batch(0, 4, 5, 6)
	mustSync(t, s, "BAT010", b)
	fs.Remove("BAT010.met")

	res := mustSync(t, s, "BAT010", b)
	if res.Mode != ModeTailScan || res.Appended != 0 {
		t.Fatalf("result %+v", res)
	}
	m, err := s.ReadMetadata("BAT010")
	if err != nil {
		t.Fatalf("metadata not rebuilt: %v", err)
	}
	if m.LastRingPosition != 6 || m.RecordCount != 3 || m.LastPayloadHash != Checksum(b[2].Payload) {
		t.Fatalf("rebuilt %+v", m)
	}
}

func TestCorruptMetadataFallsBackToTailScan(t *testing.T) {
	s, fs := newStore(t)
	mustSync(t, s, "BAT011", batch(0, 1, 2))
	fs.WriteFile("BAT011.met", []byte{1, 2, 3})
	if _, err := s.ReadMetadata("BAT011"); errcode.Of(err) != errcode.Corrupt {
		t.Fatalf("read err=%v", err)
	}
	res := mustSync(t, s, "BAT011", batch(0, 2, 3))
	if res.Mode != ModeTailScan || res.Appended != 1 {
		t.Fatalf("result %+v", res)
	}
}

func TestPositionOutsideRingUsesTailScan(t *testing.T) {
	fs, _ := osfs.New(t.TempDir())
	s, _ := Open(Config{FS: fs, RingSize: 256, Now: func() time.Time { return fixedNow }})
	mustSync(t, s, "BAT012", batch(0, 10, 11))
	s.WriteMetadata("BAT012", Metadata{LastRingPosition: 300, RecordCount: 2})

	res := mustSync(t, s, "BAT012", batch(0, 11, 12, 13))
	if res.Mode != ModeTailScan || res.Appended != 2 {
		t.Fatalf("entries silently dropped: %+v", res)
	}
	if res.Metadata.LastRingPosition != 13 || res.Metadata.RecordCount != 4 {
		t.Fatalf("metadata %+v", res.Metadata)
	}
}

// failingFS fails appends or metadata writes on demand.
type failingFS struct {
	storage.FS
	failAppend bool
	failMeta   bool
}

type failingAppender struct{ storage.Appender }

func (a failingAppender) Close() error {
	a.Appender.Abort()
	return errors.New("flash: program failed")
}

func (f *failingFS) OpenAppend(name string) (storage.Appender, error) {
	a, err := f.FS.OpenAppend(name)
	if err != nil || !f.failAppend {
		return a, err
	}
	return failingAppender{a}, nil
}

func (f *failingFS) WriteFile(name string, data []byte) error {
	if f.failMeta {
		return errcode.New(errcode.DeviceFailure, "test", "metadata write failed")
	}
	return f.FS.WriteFile(name, data)
}

func TestAppendFailureLeavesMetadataUntouched(t *testing.T) {
	base, _ := osfs.New(t.TempDir())
	ffs := &failingFS{FS: base}
	s, _ := Open(Config{FS: ffs})
	mustSync(t, s, "BAT013", batch(0, 1, 2))
	before, _ := s.ReadMetadata("BAT013")

	ffs.failAppend = true
	_, err := s.Sync("BAT013", batch(0, 3, 4))
	if errcode.Of(err) != errcode.Transport {
		t.Fatalf("err=%v", err)
	}
	after, _ := s.ReadMetadata("BAT013")
	if after != before {
		t.Fatalf("metadata changed: %+v -> %+v", before, after)
	}
	if n, _ := s.Count("BAT013"); n != 2 {
		t.Fatalf("count %d", n)
	}

	ffs.failAppend = false
	ffs.failMeta = true
	res, err := s.Sync("BAT013", batch(0, 3))
	if errcode.Of(err) != errcode.DeviceFailure || res.Appended != 1 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestReadAllEarlyStopAndReset(t *testing.T) {
	s, _ := newStore(t)
	mustSync(t, s, "BAT014", batch(0, span(1, 5)...))

	var seen []uint32
	s.ReadAll("BAT014", func(r Record) bool {
		seen = append(seen, r.RingPosition)
		return len(seen) < 2
	})
	if !equalU32(seen, []uint32{1, 2}) {
		t.Fatalf("early stop visited %v", seen)
	}

	it, err := s.Records("BAT014")
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	var first Record
	for i := 0; it.Next(); i++ {
		if i == 0 {
			first = it.Record()
		}
	}
	first.Payload[0] ^= 0xFF // records own their payloads
	if err := it.Reset(); err != nil {
		t.Fatal(err)
	}
	if !it.Next() || !bytes.Equal(it.Record().Payload, payload(1, 0)) {
		t.Fatal("reset did not restart from the first record")
	}
	if it.Err() != nil {
		t.Fatal(it.Err())
	}
}

func TestTornTailTruncatedOnOpen(t *testing.T) {
	s, fs := newStore(t)
	mustSync(t, s, "BAT015", batch(0, 1, 2, 3))
	info, _ := fs.Stat("BAT015.bin")

	f, _ := os.OpenFile(filepath.Join(fs.Dir(), "BAT015.bin"), os.O_APPEND|os.O_WRONLY, 0)
	f.Write([]byte{4, 0, 0, 0, 50, 0, 0, 0, 1, 2}) // header claims 50 bytes, 2 present
	f.Close()

	if _, err := s.Count("BAT015"); err != nil {
		t.Fatalf("count with torn tail: %v", err)
	}
	if _, err := Open(Config{FS: fs}); err != nil {
		t.Fatal(err)
	}
	after, _ := fs.Stat("BAT015.bin")
	if after.Size != info.Size {
		t.Fatalf("size %d after repair, want %d", after.Size, info.Size)
	}
}

func TestInvalidArguments(t *testing.T) {
	s, _ := newStore(t)
	cases := map[string]error{
		"empty serial": func() error { _, err := s.Sync("", batch(0, 1)); return err }(),
		"path serial":  func() error { _, err := s.Sync("a/b", batch(0, 1)); return err }(),
		"empty batch":  func() error { _, err := s.Sync("BAT016", nil); return err }(),
		"huge payload": func() error {
			_, err := s.Sync("BAT016", []Entry{{RingPosition: 1, Payload: make([]byte, MaxPayload+1)}})
			return err
		}(),
	}
	for name, err := range cases {
		if errcode.Of(err) != errcode.InvalidArgument {
			t.Fatalf("%s: err=%v", name, err)
		}
	}
}

func TestLastRecordAndAppend(t *testing.T) {
	s, _ := newStore(t)
	if _, err := s.LastRecord("BAT017"); !storage.IsNotExist(err) {
		t.Fatalf("err=%v", err)
	}
	m, err := s.Append("BAT017", batch(0, 9, 9, 2))
	if err != nil {
		t.Fatal(err)
	}
	if m.RecordCount != 3 || m.LastRingPosition != 2 {
		t.Fatalf("metadata %+v", m)
	}
	r, err := s.LastRecord("BAT017")
	if err != nil || r.RingPosition != 2 || !bytes.Equal(r.Payload, payload(2, 0)) {
		t.Fatalf("last %+v err=%v", r, err)
	}
}

func TestSeriesAndDeleteAll(t *testing.T) {
	s, fs := newStore(t)
	mustSync(t, s, "B", batch(0, 1))
	mustSync(t, s, "A", batch(0, 1))
	fs.WriteFile("C.met", make([]byte, MetadataSize))
	fs.WriteFile("notes.txt", []byte("x"))

	list, _ := s.Series()
	if len(list) != 3 || list[0] != "A" || list[2] != "C" {
		t.Fatalf("series %v", list)
	}
	n, err := s.DeleteAll()
	if err != nil || n != 3 {
		t.Fatalf("deleted %d err=%v", n, err)
	}
	if list, _ := s.Series(); len(list) != 0 {
		t.Fatalf("left %v", list)
	}
}

// staleListFS lists a series that is already gone.
type staleListFS struct{ storage.FS }

func (f staleListFS) List() ([]storage.Info, error) {
	list, err := f.FS.List()
	return append(list, storage.Info{Name: "GONE.bin"}), err
}

func TestDeleteAllCountsOnlyRemovedSeries(t *testing.T) {
	base, _ := osfs.New(t.TempDir())
	s, _ := Open(Config{FS: staleListFS{base}})
	mustSync(t, s, "A", batch(0, 1))
	n, err := s.DeleteAll()
	if err != nil || n != 1 {
		t.Fatalf("deleted %d err=%v", n, err)
	}
}

func TestEmptyLogWithoutMetadataIsFirstSync(t *testing.T) {
	s, fs := newStore(t)
	a, err := fs.OpenAppend("G1.bin")
	if err != nil {
		t.Fatal(err)
	}
	a.Abort()

	b := batch(0, 254, 255, 0, 1)
	res := mustSync(t, s, "G1", b)
	if res.Mode != ModeFirst || res.Appended != 4 {
		t.Fatalf("result %+v", res)
	}
	if res.Metadata.LastRingPosition != 1 || res.Metadata.LastPayloadHash != Checksum(b[3].Payload) {
		t.Fatalf("metadata %+v", res.Metadata)
	}
	res = mustSync(t, s, "G1", batch(0, 0, 1, 2))
	if res.Mode != ModeIncremental || res.Appended != 1 {
		t.Fatalf("next sync %+v", res)
	}
}

func TestConcurrentSyncSameSerial(t *testing.T) {
	s, _ := newStore(t)
	b := batch(0, span(0, 49)...)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Sync("BAT018", b); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if n, _ := s.Count("BAT018"); n != 50 {
		t.Fatalf("count %d after concurrent syncs", n)
	}
}
