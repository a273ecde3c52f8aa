// Package storage is the thin file abstraction the log store sits on.
//
// Two implementations exist: nandfs places files directly on raw NAND
// through the flash driver, osfs maps them onto a host directory.
package storage

import (
	"io"

	"batlog-go/errcode"
)

// ErrNotExist is returned (possibly wrapped) for a missing file.
var ErrNotExist = errcode.New(errcode.NotFound, "storage", "file does not exist")

// Info describes one stored file.
type Info struct {
	Name string
	Size int64
}

// Usage is space accounting in bytes.
type Usage struct {
	Total int64
	Used  int64
	Free  int64
}

func (u Usage) TotalKB() int64 { return u.Total / 1024 }
func (u Usage) UsedKB() int64  { return u.Used / 1024 }
func (u Usage) FreeKB() int64  { return u.Free / 1024 }

// File is an open, read-only view of a file.
type File interface {
	io.ReadSeeker
	io.Closer
	Size() int64
}

// Appender adds bytes to the end of a file. Nothing written becomes visible
// or durable until Close returns nil; after a crash or Abort the file holds
// only previously committed appends.
type Appender interface {
	io.Writer
	Close() error
	Abort() error
}

// FS is a flat namespace of files.
type FS interface {
	// OpenAppend opens name for appending, creating it if needed.
	OpenAppend(name string) (Appender, error)
	// WriteFile atomically replaces the content of name.
	WriteFile(name string, data []byte) error
	Open(name string) (File, error)
	Stat(name string) (Info, error)
	Remove(name string) error
	List() ([]Info, error)
	Usage() (Usage, error)
}

// Truncater is implemented by file systems that can cut a file back to size.
type Truncater interface {
	Truncate(name string, size int64) error
}

// ReadFile returns the whole content of name.
func ReadFile(fs FS, name string) ([]byte, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, f.Size())
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, errcode.Wrapf(errcode.Transport, "storage.read_file", name, err)
	}
	return buf, nil
}

// IsNotExist reports whether err means a file is missing.
func IsNotExist(err error) bool { return errcode.Of(err) == errcode.NotFound }

// NotExist returns ErrNotExist annotated with the file name.
func NotExist(op, name string) error {
	return &errcode.E{C: errcode.NotFound, Op: op, Msg: name, Err: ErrNotExist}
}
