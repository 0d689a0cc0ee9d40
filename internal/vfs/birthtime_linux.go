//go:build linux

package vfs

import (
	"io/fs"
	"time"

	"golang.org/x/sys/unix"
)

// birthTime reads the creation time through statx. Filesystems that do not
// record it leave STATX_BTIME out of the returned mask.
func birthTime(systemPath string, _ fs.FileInfo) (time.Time, bool) {
	var stx unix.Statx_t
	if err := unix.Statx(unix.AT_FDCWD, systemPath, unix.AT_SYMLINK_NOFOLLOW, unix.STATX_BTIME, &stx); err != nil {
		return time.Time{}, false
	}
	if stx.Mask&unix.STATX_BTIME == 0 {
		return time.Time{}, false
	}
	return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec)), true
}
