//go:build !windows

package extractor

import (
	"os"
	"syscall"

	"github.com/trackerminers/filesystem-miner/internal/model"
)

// applyMetadata applies an extracted entry's times/ownership/mode, per
// spec §4.12 Phase C step 5 / Phase D. Grounded on the teacher's
// SetOwnership (pkg/filesystem/ownership_posix.go: os.Lchown) and its
// times-application idiom (pkg/filesystem/syscall_times_posix.go).
func applyMetadata(path string, entry model.ArchiveEntry) error {
	if entry.Type != model.ArchiveEntrySymlink {
		if err := os.Chmod(path, os.FileMode(entry.Mode&0777)); err != nil {
			return err
		}
	}
	if entry.UID != 0 || entry.GID != 0 {
		_ = os.Lchown(path, int(entry.UID), int(entry.GID))
	}
	if !entry.Mtime.IsZero() {
		atime := entry.Atime
		if atime.IsZero() {
			atime = entry.Mtime
		}
		_ = os.Chtimes(path, atime, entry.Mtime)
	}
	return nil
}

// createSpecial creates a FIFO/socket/device node via mknod, matching
// libarchive's own use of the platform mknod facility for these entry
// types.
func createSpecial(path string, entry model.ArchiveEntry) error {
	var mode uint32
	switch entry.Type {
	case model.ArchiveEntryFIFO:
		mode = syscall.S_IFIFO
	case model.ArchiveEntrySocket:
		mode = syscall.S_IFSOCK
	case model.ArchiveEntryBlockDevice:
		mode = syscall.S_IFBLK
	case model.ArchiveEntryCharDevice:
		mode = syscall.S_IFCHR
	}
	mode |= entry.Mode & 0777
	return syscall.Mknod(path, mode, int(entry.Rdev))
}
