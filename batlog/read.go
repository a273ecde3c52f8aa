package batlog

import (
	"io"

	"batlog-go/errcode"
	"batlog-go/storage"
)

// Iterator walks the records of one series in append order. It reads the
// log as it was when the iterator was created; records appended later are
// not visited. Each Record returned owns a fresh payload buffer.
//
//	it, err := store.Records(serial)
//	...
//	defer it.Close()
//	for it.Next() {
//		r := it.Record()
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator struct {
	serial string
	f      storage.File
	size   int64
	off    int64
	rec    Record
	err    error
	hdr    [RecordHeaderSize]byte
}

// Records opens an iterator over serial's data log.
func (s *Store) Records(serial string) (*Iterator, error) {
	const op = "batlog.records"
	if err := checkSerial(op, serial); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(dataName(serial))
	if err != nil {
		return nil, err
	}
	return &Iterator{serial: serial, f: f, size: f.Size()}, nil
}

// Next advances to the next record. It returns false at the end of the log
// or on error; check Err.
func (it *Iterator) Next() bool {
	if it.err != nil || it.f == nil || it.off >= it.size {
		return false
	}
	if it.size-it.off < RecordHeaderSize {
		it.err = it.corrupt("truncated record header")
		return false
	}
	if _, err := io.ReadFull(it.f, it.hdr[:]); err != nil {
		it.err = errcode.Wrapf(errcode.Transport, "batlog.read", it.serial, err)
		return false
	}
	h := parseRecordHeader(it.hdr[:])
	if h.n > MaxPayload || it.off+RecordHeaderSize+int64(h.n) > it.size {
		it.err = it.corrupt("record length past end of log")
		return false
	}
	p := make([]byte, h.n)
	if _, err := io.ReadFull(it.f, p); err != nil {
		it.err = errcode.Wrapf(errcode.Transport, "batlog.read", it.serial, err)
		return false
	}
	it.off += RecordHeaderSize + int64(h.n)
	it.rec = Record{RingPosition: h.pos, Payload: p}
	return true
}

func (it *Iterator) corrupt(msg string) error {
	return errcode.New(errcode.Corrupt, "batlog.read", it.serial+": "+msg)
}

// Record returns the record Next stopped on.
func (it *Iterator) Record() Record { return it.rec }

// Err returns the first error met, nil at a clean end of log.
func (it *Iterator) Err() error { return it.err }

// Reset rewinds to the first record.
func (it *Iterator) Reset() error {
	if it.f == nil {
		return errcode.New(errcode.InvalidArgument, "batlog.reset", "iterator closed")
	}
	if _, err := it.f.Seek(0, io.SeekStart); err != nil {
		return errcode.Wrapf(errcode.Transport, "batlog.reset", it.serial, err)
	}
	it.off, it.err, it.rec = 0, nil, Record{}
	return nil
}

// Close releases the file. Safe to call twice.
func (it *Iterator) Close() error {
	if it.f == nil {
		return nil
	}
	err := it.f.Close()
	it.f = nil
	return err
}

// ReadAll visits every record in order until visit returns false.
func (s *Store) ReadAll(serial string, visit func(Record) bool) error {
	unlock := s.lock(serial)
	it, err := s.Records(serial)
	unlock()
	if err != nil {
		return err
	}
	defer it.Close()
	for it.Next() {
		if !visit(it.Record()) {
			return nil
		}
	}
	return it.Err()
}

// BulkRead fills dst with the whole series in append order and returns the
// number of records. dst is normally sized with Count; a series with more
// records than len(dst) fails with resource_exhausted after filling dst.
func (s *Store) BulkRead(serial string, dst []Record) (int, error) {
	n := 0
	var overflow bool
	err := s.ReadAll(serial, func(r Record) bool {
		if n == len(dst) {
			overflow = true
			return false
		}
		dst[n] = r
		n++
		return true
	})
	if err != nil {
		return n, err
	}
	if overflow {
		return n, errcode.New(errcode.ResourceExhausted, "batlog.bulk_read", "destination too small for "+serial)
	}
	return n, nil
}

// Count returns the number of whole records in the data log.
func (s *Store) Count(serial string) (int, error) {
	if err := checkSerial("batlog.count", serial); err != nil {
		return 0, err
	}
	unlock := s.lock(serial)
	defer unlock()
	w, err := s.walk(serial, 0)
	return w.count, err
}

// LastRecord returns the final record of the data log.
func (s *Store) LastRecord(serial string) (Record, error) {
	const op = "batlog.last_record"
	if err := checkSerial(op, serial); err != nil {
		return Record{}, err
	}
	unlock := s.lock(serial)
	defer unlock()
	w, err := s.walk(serial, 0)
	if err != nil {
		return Record{}, err
	}
	if w.last < 0 {
		return Record{}, errcode.New(errcode.NotFound, op, "no records for "+serial)
	}
	f, err := s.fs.Open(dataName(serial))
	if err != nil {
		return Record{}, err
	}
	defer f.Close()
	r, err := readAt(f, w.last)
	return r, errcode.Keep(errcode.Transport, op, err)
}
