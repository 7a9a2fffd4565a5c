//go:build !windows

package compressor

import (
	"os"
	"syscall"
)

// statDevInode extracts the (device, inode, link count) triple used for
// hardlink resolution, following the teacher's pattern of type-asserting
// os.FileInfo.Sys() to *syscall.Stat_t (pkg/filesystem/device_posix.go).
func statDevInode(info os.FileInfo) (dev, inode uint64, nlink uint32, ok bool) {
	stat, isStatT := info.Sys().(*syscall.Stat_t)
	if !isStatT {
		return 0, 0, 0, false
	}
	return uint64(stat.Dev), uint64(stat.Ino), uint32(stat.Nlink), true
}
