package batlog

import (
	"sort"
	"strings"

	"batlog-go/errcode"
	"batlog-go/storage"
)

// Append writes entries unconditionally, in order, and points metadata at
// the last one. It bypasses deduplication.
func (s *Store) Append(serial string, entries []Entry) (Metadata, error) {
	const op = "batlog.append"
	if err := checkBatch(op, serial, entries); err != nil {
		return Metadata{}, err
	}
	unlock := s.lock(serial)
	defer unlock()

	var prev uint32
	meta, err := s.readMetadata(serial)
	switch {
	case err == nil:
		prev = meta.RecordCount
	case storage.IsNotExist(err) || errcode.Of(err) == errcode.Corrupt:
		w, werr := s.walk(serial, 0)
		if werr != nil && !storage.IsNotExist(werr) {
			return Metadata{}, werr
		}
		prev = uint32(w.count)
	default:
		return Metadata{}, err
	}
	res, err := s.commit(serial, ModeAppend, entries, entries[len(entries)-1], prev, len(entries))
	return res.Metadata, err
}

// Exists reports whether serial has a data log or metadata.
func (s *Store) Exists(serial string) (bool, error) {
	if err := checkSerial("batlog.exists", serial); err != nil {
		return false, err
	}
	for _, name := range []string{dataName(serial), metaName(serial)} {
		_, err := s.fs.Stat(name)
		if err == nil {
			return true, nil
		}
		if !storage.IsNotExist(err) {
			return false, err
		}
	}
	return false, nil
}

// ReadMetadata returns the stored metadata; not_found when there is none.
func (s *Store) ReadMetadata(serial string) (Metadata, error) {
	if err := checkSerial("batlog.read_metadata", serial); err != nil {
		return Metadata{}, err
	}
	unlock := s.lock(serial)
	defer unlock()
	return s.readMetadata(serial)
}

func (s *Store) readMetadata(serial string) (Metadata, error) {
	var m Metadata
	b, err := storage.ReadFile(s.fs, metaName(serial))
	if err != nil {
		return m, err
	}
	if err := m.UnmarshalBinary(b); err != nil {
		return m, errcode.Wrapf(errcode.Corrupt, "batlog.read_metadata", serial, err)
	}
	return m, nil
}

// WriteMetadata overwrites the metadata record.
func (s *Store) WriteMetadata(serial string, m Metadata) error {
	if err := checkSerial("batlog.write_metadata", serial); err != nil {
		return err
	}
	unlock := s.lock(serial)
	defer unlock()
	return s.writeMetadata(serial, m)
}

func (s *Store) writeMetadata(serial string, m Metadata) error {
	b, _ := m.MarshalBinary()
	return s.fs.WriteFile(metaName(serial), b)
}

// Delete removes the data log and metadata of serial. A series with
// neither reports not_found.
func (s *Store) Delete(serial string) error {
	const op = "batlog.delete"
	if err := checkSerial(op, serial); err != nil {
		return err
	}
	unlock := s.lock(serial)
	defer unlock()

	removed := false
	for _, name := range []string{dataName(serial), metaName(serial)} {
		err := s.fs.Remove(name)
		switch {
		case err == nil:
			removed = true
		case !storage.IsNotExist(err):
			return err
		}
	}
	if !removed {
		return errcode.New(errcode.NotFound, op, "no series "+serial)
	}
	s.log(serial, "series deleted")
	return nil
}

// DeleteAll removes every series and returns how many were removed.
func (s *Store) DeleteAll() (int, error) {
	serials, err := s.Series()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, serial := range serials {
		switch err := s.Delete(serial); {
		case err == nil:
			n++
		case !storage.IsNotExist(err):
			return n, err
		}
	}
	return n, nil
}

// Series lists the serial numbers with any stored file, sorted.
func (s *Store) Series() ([]string, error) {
	list, err := s.fs.List()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, fi := range list {
		var serial string
		switch {
		case strings.HasSuffix(fi.Name, dataSuffix):
			serial = strings.TrimSuffix(fi.Name, dataSuffix)
		case strings.HasSuffix(fi.Name, metaSuffix):
			serial = strings.TrimSuffix(fi.Name, metaSuffix)
		default:
			continue
		}
		if serial == "" || seen[serial] {
			continue
		}
		seen[serial] = true
		out = append(out, serial)
	}
	sort.Strings(out)
	return out, nil
}

// Usage passes through the file system's space accounting.
func (s *Store) Usage() (storage.Usage, error) { return s.fs.Usage() }
