package nandfs

import (
	"io"
	"sort"

	"batlog-go/errcode"
	"batlog-go/storage"
	"batlog-go/x/conv"
	"batlog-go/x/mathx"
)

var _ storage.FS = (*Volume)(nil)

func checkName(op, name string) error {
	if name == "" || len(name) > MaxNameLen {
		return errcode.New(errcode.InvalidArgument, op, "bad file name")
	}
	return nil
}

// create registers a new file at a generation newer than any seen for name
// and claims its first block so it survives a remount even while empty.
func (v *Volume) create(name string, mode uint8) (*file, error) {
	f := &file{name: name, mode: mode, gen: v.gens[name]}
	v.useGen(name, f.gen)
	if err := v.claim(f); err != nil {
		return nil, err
	}
	return f, nil
}

// OpenAppend opens name for appending, creating it if needed. Only one
// appender per file may be open at a time.
func (v *Volume) OpenAppend(name string) (storage.Appender, error) {
	const op = "nandfs.open_append"
	if err := checkName(op, name); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	f, ok := v.files[name]
	switch {
	case !ok:
		var err error
		if f, err = v.create(name, modeAppend); err != nil {
			return nil, err
		}
		v.files[name] = f
	case f.mode != modeAppend:
		return nil, errcode.New(errcode.InvalidArgument, op, name+" is a replace-mode file")
	case f.open:
		return nil, errcode.New(errcode.InvalidArgument, op, name+" already open for append")
	}
	f.open = true
	return &appender{v: v, f: f, buf: make([]byte, 0, v.cap)}, nil
}

type appender struct {
	v       *Volume
	f       *file
	buf     []byte
	run     []pageRef
	started bool
	done    bool
	err     error
}

func (a *appender) Write(p []byte) (int, error) {
	a.v.mu.Lock()
	defer a.v.mu.Unlock()
	if a.done {
		return 0, errcode.New(errcode.InvalidArgument, "nandfs.append", "appender closed")
	}
	if a.err != nil {
		return 0, a.err
	}
	n := 0
	for len(p) > 0 {
		// A full page is held back until more data arrives so the commit
		// flag always lands on the run's last page.
		if len(a.buf) == cap(a.buf) {
			if err := a.flush(0); err != nil {
				a.err = err
				return n, err
			}
		}
		k := copy(a.buf[len(a.buf):cap(a.buf)], p)
		a.buf = a.buf[:len(a.buf)+k]
		p = p[k:]
		n += k
	}
	return n, nil
}

func (a *appender) flush(flags uint8) error {
	if !a.started {
		flags |= flagFirst
	}
	ref, err := a.v.writePage(a.f, flags, a.buf)
	if err != nil {
		return err
	}
	a.started = true
	a.run = append(a.run, ref)
	a.buf = a.buf[:0]
	return nil
}

// Close programs the commit page and publishes the run.
func (a *appender) Close() error {
	a.v.mu.Lock()
	defer a.v.mu.Unlock()
	if a.done {
		return nil
	}
	a.done = true
	a.f.open = false
	if a.err != nil {
		return a.err
	}
	if !a.started && len(a.buf) == 0 {
		return nil
	}
	if err := a.flush(flagCommit); err != nil {
		return err
	}
	a.f.commit(a.run)
	return nil
}

// Abort drops the run. Pages already programmed stay uncommitted.
func (a *appender) Abort() error {
	a.v.mu.Lock()
	defer a.v.mu.Unlock()
	if !a.done {
		a.done = true
		a.f.open = false
	}
	return nil
}

// WriteFile replaces the content of name with data as one run.
func (v *Volume) WriteFile(name string, data []byte) error {
	const op = "nandfs.write_file"
	if err := checkName(op, name); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	need := max(1, int(mathx.CeilDiv(uint(len(data)), uint(v.cap))))
	old := v.files[name]
	if old != nil && old.open {
		return errcode.New(errcode.InvalidArgument, op, name+" open for append")
	}
	if old != nil && old.mode == modeReplace && v.geo.PagesPerBlock-old.next >= need {
		run, err := v.writeRun(old, data)
		if err != nil {
			return err
		}
		old.commit(run)
		return nil
	}

	// New generation in fresh blocks; the old one is released afterwards.
	f, err := v.create(name, modeReplace)
	if err != nil {
		return err
	}
	run, err := v.writeRun(f, data)
	if err != nil {
		_ = v.release(f)
		return err
	}
	f.commit(run)
	v.files[name] = f
	if old != nil {
		if err := v.release(old); err != nil && v.cfg.Verbose {
			println("[nandfs] stale generation of", name, "not fully erased:", err.Error())
		}
	}
	return nil
}

func (v *Volume) writeRun(f *file, data []byte) ([]pageRef, error) {
	var run []pageRef
	for i := 0; i == 0 || len(data) > 0; i++ {
		n := min(len(data), v.cap)
		flags := uint8(0)
		if i == 0 {
			flags |= flagFirst
		}
		if n == len(data) {
			flags |= flagCommit
		}
		ref, err := v.writePage(f, flags, data[:n])
		if err != nil {
			return nil, err
		}
		run = append(run, ref)
		data = data[n:]
	}
	return run, nil
}

// Open returns a reader over the committed content of name at this moment.
func (v *Volume) Open(name string) (storage.File, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, ok := v.files[name]
	if !ok {
		return nil, storage.NotExist("nandfs.open", name)
	}
	r := &reader{v: v, name: name, size: f.size, cached: -1}
	var off int64
	for _, ref := range f.refs {
		if ref.n == 0 {
			continue
		}
		r.refs = append(r.refs, ref)
		r.offs = append(r.offs, off)
		off += int64(ref.n)
	}
	return r, nil
}

// Stat reports the committed size of name.
func (v *Volume) Stat(name string) (storage.Info, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, ok := v.files[name]
	if !ok {
		return storage.Info{}, storage.NotExist("nandfs.stat", name)
	}
	return storage.Info{Name: name, Size: f.size}, nil
}

// Remove erases every block of name.
func (v *Volume) Remove(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, ok := v.files[name]
	if !ok {
		return storage.NotExist("nandfs.remove", name)
	}
	delete(v.files, name)
	return v.release(f)
}

// List returns every file sorted by name.
func (v *Volume) List() ([]storage.Info, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]storage.Info, 0, len(v.files))
	for _, f := range v.files {
		out = append(out, storage.Info{Name: f.name, Size: f.size})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Usage counts whole blocks: a block owned by a file is used even when
// partly empty.
func (v *Volume) Usage() (storage.Usage, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	per := int64(v.geo.PagesPerBlock-1) * int64(v.cap)
	var good, owned int64
	for _, s := range v.state {
		switch s {
		case blockOwned:
			owned++
			good++
		case blockAvailable:
			good++
		}
	}
	return storage.Usage{Total: good * per, Used: owned * per, Free: (good - owned) * per}, nil
}

// Stats is a block-level summary.
type Stats struct {
	Blocks int
	Owned  int
	Bad    int // factory marked
	Failed int // failed to erase or program this session
}

func (v *Volume) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := Stats{Blocks: len(v.state)}
	for _, st := range v.state {
		switch st {
		case blockOwned:
			s.Owned++
		case blockBad:
			s.Bad++
		case blockFailed:
			s.Failed++
		}
	}
	return s
}

type reader struct {
	v      *Volume
	name   string
	refs   []pageRef
	offs   []int64
	size   int64
	pos    int64
	cached int
	page   []byte
	closed bool
}

func (r *reader) Size() int64 { return r.size }

func (r *reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, errcode.New(errcode.InvalidArgument, "nandfs.read", "file closed")
	}
	if r.pos >= r.size {
		return 0, io.EOF
	}
	i := sort.Search(len(r.offs), func(i int) bool { return r.offs[i] > r.pos }) - 1
	if err := r.load(i); err != nil {
		return 0, err
	}
	in := int(r.pos - r.offs[i])
	n := copy(p, r.page[dataHeader+in:dataHeader+int(r.refs[i].n)])
	r.pos += int64(n)
	return n, nil
}

func (r *reader) load(i int) error {
	if r.cached == i {
		return nil
	}
	if r.page == nil {
		r.page = make([]byte, r.v.geo.PageSize)
	}
	r.v.mu.Lock()
	err := r.v.dev.ReadPage(r.refs[i].page, r.page)
	r.v.mu.Unlock()
	if err != nil {
		r.cached = -1
		return err
	}
	if dp, st := decodeDataPage(r.page); st != pageValid || len(dp.payload) != int(r.refs[i].n) {
		r.cached = -1
		return errcode.New(errcode.Corrupt, "nandfs.read", r.name+" page "+conv.U32(r.refs[i].page))
	}
	r.cached = i
	return nil
}

func (r *reader) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.pos + offset
	case io.SeekEnd:
		abs = r.size + offset
	default:
		return 0, errcode.New(errcode.InvalidArgument, "nandfs.seek", "bad whence")
	}
	if abs < 0 {
		return 0, errcode.New(errcode.InvalidArgument, "nandfs.seek", "negative position")
	}
	r.pos = abs
	return abs, nil
}

func (r *reader) Close() error {
	r.closed = true
	return nil
}
