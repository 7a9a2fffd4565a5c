//go:build windows

package extractor

import (
	"errors"
	"os"

	"github.com/trackerminers/filesystem-miner/internal/model"
)

func applyMetadata(path string, entry model.ArchiveEntry) error {
	if entry.Type != model.ArchiveEntrySymlink && entry.Mode != 0 {
		_ = os.Chmod(path, os.FileMode(entry.Mode&0777))
	}
	if !entry.Mtime.IsZero() {
		_ = os.Chtimes(path, entry.Mtime, entry.Mtime)
	}
	return nil
}

// createSpecial has no Windows equivalent; the caller falls back to an
// empty regular-file placeholder, matching the teacher's own posix-only
// special-file handling.
func createSpecial(path string, entry model.ArchiveEntry) error {
	return errors.New("special files are not supported on this platform")
}
