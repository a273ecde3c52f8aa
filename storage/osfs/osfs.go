// Package osfs keeps store files in a host directory. Appends are a single
// buffered write followed by fsync; replacements go through a temp file and
// rename.
package osfs

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"batlog-go/errcode"
	"batlog-go/storage"
)

const tempMarker = ".tmp-"

var (
	_ storage.FS        = (*FS)(nil)
	_ storage.Truncater = (*FS)(nil)
)

// FS is a directory of files.
type FS struct {
	dir string
}

// New creates dir if needed.
func New(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errcode.Wrapf(errcode.Transport, "osfs.new", dir, err)
	}
	return &FS{dir: dir}, nil
}

// Dir returns the backing directory.
func (f *FS) Dir() string { return f.dir }

func (f *FS) path(op, name string) (string, error) {
	if name == "" || filepath.Base(name) != name || strings.HasPrefix(name, ".") {
		return "", errcode.New(errcode.InvalidArgument, op, "bad file name "+name)
	}
	return filepath.Join(f.dir, name), nil
}

func mapErr(op, name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return storage.NotExist(op, name)
	}
	return errcode.Wrapf(errcode.Transport, op, name, err)
}

// OpenAppend opens name for appending, creating it if needed.
func (f *FS) OpenAppend(name string) (storage.Appender, error) {
	const op = "osfs.open_append"
	p, err := f.path(op, name)
	if err != nil {
		return nil, err
	}
	fh, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, mapErr(op, name, err)
	}
	st, err := fh.Stat()
	if err != nil {
		fh.Close()
		return nil, mapErr(op, name, err)
	}
	return &appender{f: fh, name: name, start: st.Size()}, nil
}

type appender struct {
	f     *os.File
	name  string
	start int64
	buf   bytes.Buffer
	done  bool
}

func (a *appender) Write(p []byte) (int, error) {
	if a.done {
		return 0, errcode.New(errcode.InvalidArgument, "osfs.append", "appender closed")
	}
	return a.buf.Write(p)
}

// Close writes everything buffered in one call and syncs. On failure the
// file is cut back to where this appender started.
func (a *appender) Close() error {
	const op = "osfs.append"
	if a.done {
		return nil
	}
	a.done = true
	if a.buf.Len() == 0 {
		return mapErr(op, a.name, a.f.Close())
	}
	_, err := a.f.Write(a.buf.Bytes())
	if err == nil {
		err = a.f.Sync()
	}
	if err != nil {
		_ = a.f.Truncate(a.start)
		_ = a.f.Close()
		return mapErr(op, a.name, err)
	}
	return mapErr(op, a.name, a.f.Close())
}

func (a *appender) Abort() error {
	if a.done {
		return nil
	}
	a.done = true
	return mapErr("osfs.abort", a.name, a.f.Close())
}

// WriteFile replaces name atomically: temp file, fsync, rename, dir fsync.
func (f *FS) WriteFile(name string, data []byte) error {
	const op = "osfs.write_file"
	p, err := f.path(op, name)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, "."+name+tempMarker+"*")
	if err != nil {
		return mapErr(op, name, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return mapErr(op, name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return mapErr(op, name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return mapErr(op, name, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		cleanup()
		return mapErr(op, name, err)
	}
	if d, err := os.Open(f.dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}

type file struct {
	*os.File
	size int64
}

func (h file) Size() int64 { return h.size }

func (f *FS) Open(name string) (storage.File, error) {
	const op = "osfs.open"
	p, err := f.path(op, name)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(p)
	if err != nil {
		return nil, mapErr(op, name, err)
	}
	st, err := fh.Stat()
	if err != nil {
		fh.Close()
		return nil, mapErr(op, name, err)
	}
	return file{File: fh, size: st.Size()}, nil
}

func (f *FS) Stat(name string) (storage.Info, error) {
	const op = "osfs.stat"
	p, err := f.path(op, name)
	if err != nil {
		return storage.Info{}, err
	}
	st, err := os.Stat(p)
	if err != nil {
		return storage.Info{}, mapErr(op, name, err)
	}
	return storage.Info{Name: name, Size: st.Size()}, nil
}

func (f *FS) Remove(name string) error {
	const op = "osfs.remove"
	p, err := f.path(op, name)
	if err != nil {
		return err
	}
	return mapErr(op, name, os.Remove(p))
}

// List skips directories, dot files and leftover temp files.
func (f *FS) List() ([]storage.Info, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, mapErr("osfs.list", f.dir, err)
	}
	var out []storage.Info
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || strings.HasPrefix(n, ".") || strings.Contains(n, tempMarker) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, storage.Info{Name: n, Size: info.Size()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Truncate cuts name back to size.
func (f *FS) Truncate(name string, size int64) error {
	const op = "osfs.truncate"
	p, err := f.path(op, name)
	if err != nil {
		return err
	}
	return mapErr(op, name, os.Truncate(p, size))
}
