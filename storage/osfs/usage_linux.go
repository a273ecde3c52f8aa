//go:build linux

package osfs

import (
	"golang.org/x/sys/unix"

	"batlog-go/storage"
)

// Usage reports the file system holding the directory.
func (f *FS) Usage() (storage.Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(f.dir, &st); err != nil {
		return storage.Usage{}, mapErr("osfs.usage", f.dir, err)
	}
	bs := int64(st.Bsize)
	total := int64(st.Blocks) * bs
	free := int64(st.Bavail) * bs
	return storage.Usage{Total: total, Free: free, Used: total - int64(st.Bfree)*bs}, nil
}
