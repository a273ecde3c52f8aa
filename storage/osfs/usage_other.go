//go:build !linux

package osfs

import (
	"batlog-go/errcode"
	"batlog-go/storage"
)

// Usage is only implemented on Linux.
func (f *FS) Usage() (storage.Usage, error) {
	return storage.Usage{}, errcode.New(errcode.Unsupported, "osfs.usage", "not supported on this platform")
}
