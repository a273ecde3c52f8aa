// Package batlog keeps one append-only log per battery, keyed by serial
// number, and decides which entries read from a fuel gauge's hardware ring
// buffer are new.
//
// Each series is two files: <serial>.bin holds framed records in append
// order, <serial>.met holds the 16-byte Metadata describing the last record
// appended. Metadata is only written after the matching append has been
// committed by the file system.
package batlog

import (
	"io"
	"strings"
	"sync"
	"time"

	"batlog-go/errcode"
	"batlog-go/storage"
)

const (
	dataSuffix = ".bin"
	metaSuffix = ".met"

	// MaxSerialLen bounds serial numbers used as file names.
	MaxSerialLen = 32
)

// Entry is one ring-buffer slot as read from the gauge. Position is the slot
// index and is reused once the hardware ring wraps.
type Entry struct {
	RingPosition uint32
	Payload      []byte
}

// Record is one persisted entry. Each Record owns its Payload.
type Record struct {
	RingPosition uint32
	Payload      []byte
}

// Config for Open. FS is required.
type Config struct {
	FS storage.FS
	// Now stamps last_write_time. Default time.Now.
	Now func() time.Time
	// RingSize is the capacity of the gauge's ring buffer. When non-zero, a
	// stored last_ring_position at or beyond it is treated as untrustworthy
	// and Sync falls back to the tail scan.
	RingSize uint32
	Verbose  bool
}

// Store is safe for concurrent use. Calls for the same serial number are
// serialised; different serials only share the file system's own locking.
type Store struct {
	fs       storage.FS
	now      func() time.Time
	ringSize uint32
	verbose  bool

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Open creates a Store and, when the file system can truncate, cuts any torn
// trailing record off every data log.
func Open(cfg Config) (*Store, error) {
	if cfg.FS == nil {
		return nil, errcode.New(errcode.InvalidArgument, "batlog.open", "no file system")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Store{
		fs:       cfg.FS,
		now:      cfg.Now,
		ringSize: cfg.RingSize,
		verbose:  cfg.Verbose,
		locks:    make(map[string]*sync.Mutex),
	}
	if t, ok := cfg.FS.(storage.Truncater); ok {
		if err := s.repair(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) repair(t storage.Truncater) error {
	serials, err := s.Series()
	if err != nil {
		return err
	}
	for _, serial := range serials {
		w, err := s.walk(serial, 0)
		if storage.IsNotExist(err) {
			continue
		}
		if err != nil {
			return err
		}
		if w.torn {
			s.logn(serial, "truncating torn tail at", w.end)
			if err := t.Truncate(dataName(serial), w.end); err != nil {
				return err
			}
		}
	}
	return nil
}

// lock serialises work on one serial number.
func (s *Store) lock(serial string) func() {
	s.mu.Lock()
	m, ok := s.locks[serial]
	if !ok {
		m = &sync.Mutex{}
		s.locks[serial] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func dataName(serial string) string { return serial + dataSuffix }
func metaName(serial string) string { return serial + metaSuffix }

// checkSerial rejects serials that cannot be used verbatim as a file name.
func checkSerial(op, serial string) error {
	if serial == "" || len(serial) > MaxSerialLen || strings.ContainsAny(serial, "/\\\x00") {
		return errcode.New(errcode.InvalidArgument, op, "bad serial number "+serial)
	}
	return nil
}

func (s *Store) log(serial, msg string) {
	if s.verbose {
		println("[batlog]", serial+":", msg)
	}
}

func (s *Store) logn(serial, msg string, n int64) {
	if s.verbose {
		println("[batlog]", serial+":", msg, n)
	}
}

// walkResult summarises a header walk over a data log.
type walkResult struct {
	count int
	end   int64   // offset just past the last whole record
	torn  bool    // bytes after end do not form a whole record
	tail  []int64 // offsets of the last N records, oldest first
	last  int64   // offset of the last record, -1 if none
}

// walk reads record headers, skipping payloads by seeking, and keeps the
// offsets of the last keep records.
func (s *Store) walk(serial string, keep int) (walkResult, error) {
	w := walkResult{last: -1}
	f, err := s.fs.Open(dataName(serial))
	if err != nil {
		return w, err
	}
	defer f.Close()
	size := f.Size()
	var hdr [RecordHeaderSize]byte
	for w.end < size {
		if size-w.end < RecordHeaderSize {
			w.torn = true
			break
		}
		if _, err := io.ReadFull(f, hdr[:]); err != nil {
			return w, errcode.Wrapf(errcode.Transport, "batlog.walk", serial, err)
		}
		h := parseRecordHeader(hdr[:])
		if h.n > MaxPayload || w.end+RecordHeaderSize+int64(h.n) > size {
			w.torn = true
			break
		}
		if _, err := f.Seek(int64(h.n), io.SeekCurrent); err != nil {
			return w, errcode.Wrapf(errcode.Transport, "batlog.walk", serial, err)
		}
		if keep > 0 {
			if len(w.tail) == keep {
				w.tail = append(w.tail[:0], w.tail[1:]...)
			}
			w.tail = append(w.tail, w.end)
		}
		w.last = w.end
		w.end += RecordHeaderSize + int64(h.n)
		w.count++
	}
	return w, nil
}

// readAt reads the whole record starting at off.
func readAt(f storage.File, off int64) (Record, error) {
	var hdr [RecordHeaderSize]byte
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return Record{}, err
	}
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return Record{}, err
	}
	h := parseRecordHeader(hdr[:])
	if h.n > MaxPayload {
		return Record{}, errcode.New(errcode.Corrupt, "batlog.read", "record too large")
	}
	r := Record{RingPosition: h.pos, Payload: make([]byte, h.n)}
	if _, err := io.ReadFull(f, r.Payload); err != nil {
		return Record{}, err
	}
	return r, nil
}
