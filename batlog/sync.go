package batlog

import (
	"batlog-go/errcode"
	"batlog-go/storage"
	"batlog-go/x/timex"
)

// Mode says which path a Sync took.
type Mode string

const (
	ModeFirst       Mode = "first"       // no series yet; everything appended
	ModeIncremental Mode = "incremental" // positional filter after last_ring_position
	ModeWrapReset   Mode = "wrap_reset"  // anchor slot overwritten; whole batch appended
	ModeTailScan    Mode = "tail_scan"   // no usable metadata; deduplicated against the log tail
	ModeNoop        Mode = "noop"        // nothing new
	ModeAppend      Mode = "append"      // unconditional Append
)

// SyncResult reports what a Sync did.
type SyncResult struct {
	Appended int
	Skipped  int
	Mode     Mode
	Metadata Metadata // metadata after the call
}

// Sync persists the entries of batch that are not already stored.
//
// With no series, all entries are appended and metadata is taken from the
// last entry in batch order. Otherwise the entry at last_ring_position (the
// anchor) is checked against last_payload_hash: a different payload means
// the ring wrapped over it, and the whole batch is appended. Without that
// evidence only entries with ring_position > last_ring_position are
// appended. Missing or unusable metadata falls back to comparing the batch
// with the last len(batch) records of the log.
//
// Storage errors abort the call before metadata is touched.
func (s *Store) Sync(serial string, batch []Entry) (SyncResult, error) {
	const op = "batlog.sync"
	if err := checkBatch(op, serial, batch); err != nil {
		return SyncResult{}, err
	}
	unlock := s.lock(serial)
	defer unlock()

	info, err := s.fs.Stat(dataName(serial))
	if storage.IsNotExist(err) {
		return s.syncFirst(serial, batch)
	} else if err != nil {
		return SyncResult{}, err
	}

	meta, err := s.readMetadata(serial)
	switch {
	case storage.IsNotExist(err) && info.Size == 0:
		// Empty log left by a failed first append.
		return s.syncFirst(serial, batch)
	case storage.IsNotExist(err), errcode.Of(err) == errcode.Corrupt:
		s.logn(serial, "metadata unusable, scanning log tail; batch", int64(len(batch)))
		return s.syncTail(serial, batch, nil)
	case err != nil:
		return SyncResult{}, err
	case s.ringSize > 0 && meta.LastRingPosition >= s.ringSize:
		s.logn(serial, "last_ring_position outside ring, scanning log tail; position", int64(meta.LastRingPosition))
		return s.syncTail(serial, batch, &meta)
	}

	for i := range batch {
		if batch[i].RingPosition != meta.LastRingPosition {
			continue
		}
		if Checksum(batch[i].Payload) != meta.LastPayloadHash {
			s.logn(serial, "anchor slot overwritten, appending whole batch at position", int64(meta.LastRingPosition))
			return s.commit(serial, ModeWrapReset, batch, batch[highest(batch)], meta.RecordCount, len(batch))
		}
		break
	}

	var fresh []Entry
	for _, e := range batch {
		if e.RingPosition > meta.LastRingPosition {
			fresh = append(fresh, e)
		}
	}
	if len(fresh) == 0 {
		return SyncResult{Mode: ModeNoop, Skipped: len(batch), Metadata: meta}, nil
	}
	return s.commit(serial, ModeIncremental, fresh, fresh[highest(fresh)], meta.RecordCount, len(batch))
}

func (s *Store) syncFirst(serial string, batch []Entry) (SyncResult, error) {
	return s.commit(serial, ModeFirst, batch, batch[len(batch)-1], 0, len(batch))
}

// syncTail deduplicates against the last len(batch) records by
// (ring_position, checksum). stale is the untrusted metadata, if any.
func (s *Store) syncTail(serial string, batch []Entry, stale *Metadata) (SyncResult, error) {
	w, err := s.walk(serial, len(batch))
	if err != nil {
		return SyncResult{}, err
	}
	type key struct{ pos, crc uint32 }
	seen := make(map[key]bool, len(w.tail))
	var last Record
	if len(w.tail) > 0 {
		f, err := s.fs.Open(dataName(serial))
		if err != nil {
			return SyncResult{}, err
		}
		for _, off := range w.tail {
			r, err := readAt(f, off)
			if err != nil {
				f.Close()
				return SyncResult{}, errcode.Keep(errcode.Transport, "batlog.sync", err)
			}
			seen[key{r.RingPosition, Checksum(r.Payload)}] = true
			last = r
		}
		f.Close()
	}

	var fresh []Entry
	for _, e := range batch {
		if !seen[key{e.RingPosition, Checksum(e.Payload)}] {
			fresh = append(fresh, e)
		}
	}
	if len(fresh) == 0 {
		res := SyncResult{Mode: ModeTailScan, Skipped: len(batch)}
		if stale != nil {
			res.Metadata = *stale
			return res, nil
		}
		if w.count == 0 {
			return res, nil
		}
		// Rebuild the lost metadata from the log's last record.
		res.Metadata = Metadata{
			LastRingPosition: last.RingPosition,
			RecordCount:      uint32(w.count),
			LastWriteTime:    timex.Unix32(s.now()),
			LastPayloadHash:  Checksum(last.Payload),
		}
		return res, s.writeMetadata(serial, res.Metadata)
	}
	return s.commit(serial, ModeTailScan, fresh, fresh[highest(fresh)], uint32(w.count), len(batch))
}

// commit appends entries, then writes metadata describing from.
func (s *Store) commit(serial string, mode Mode, entries []Entry, from Entry, prevCount uint32, batchLen int) (SyncResult, error) {
	if err := s.appendRecords(serial, entries); err != nil {
		return SyncResult{}, err
	}
	meta := Metadata{
		LastRingPosition: from.RingPosition,
		RecordCount:      prevCount + uint32(len(entries)),
		LastWriteTime:    timex.Unix32(s.now()),
		LastPayloadHash:  Checksum(from.Payload),
	}
	res := SyncResult{Appended: len(entries), Skipped: batchLen - len(entries), Mode: mode, Metadata: meta}
	if err := s.writeMetadata(serial, meta); err != nil {
		return res, err
	}
	s.logn(serial, string(mode)+": appended", int64(len(entries)))
	return res, nil
}

// appendRecords writes entries in one open/append/close.
func (s *Store) appendRecords(serial string, entries []Entry) error {
	a, err := s.fs.OpenAppend(dataName(serial))
	if err != nil {
		return err
	}
	var hdr [RecordHeaderSize]byte
	for _, e := range entries {
		recordHeader{pos: e.RingPosition, n: uint32(len(e.Payload))}.put(hdr[:])
		if _, err := a.Write(hdr[:]); err != nil {
			a.Abort()
			return errcode.Keep(errcode.Transport, "batlog.append", err)
		}
		if _, err := a.Write(e.Payload); err != nil {
			a.Abort()
			return errcode.Keep(errcode.Transport, "batlog.append", err)
		}
	}
	return errcode.Keep(errcode.Transport, "batlog.append", a.Close())
}

// highest returns the index of the first entry with the largest position.
func highest(batch []Entry) int {
	best := 0
	for i := range batch {
		if batch[i].RingPosition > batch[best].RingPosition {
			best = i
		}
	}
	return best
}

func checkBatch(op, serial string, batch []Entry) error {
	if err := checkSerial(op, serial); err != nil {
		return err
	}
	if len(batch) == 0 {
		return errcode.New(errcode.InvalidArgument, op, "empty batch for "+serial)
	}
	for _, e := range batch {
		if len(e.Payload) > MaxPayload {
			return errcode.New(errcode.InvalidArgument, op, "payload too large for "+serial)
		}
	}
	return nil
}
