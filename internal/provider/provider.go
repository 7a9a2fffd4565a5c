// Package provider implements the default Data Provider (C2): directory
// enumeration backed directly by the OS. It is grounded on the teacher's
// pkg/filesystem directory-handle idiom (directory_posix.go opens a
// directory once and reads entries from the same handle) without carrying
// that package's full cross-platform matrix forward — this is a fresh,
// POSIX-only implementation written in that idiom.
package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"

	"github.com/trackerminers/filesystem-miner/internal/api"
	"github.com/trackerminers/filesystem-miner/internal/model"
)

// OSProvider is the default api.DataProvider, backed by os.ReadDir and
// os.Lstat.
type OSProvider struct{}

// New creates a new OS-backed data provider.
func New() *OSProvider {
	return &OSProvider{}
}

// Begin opens dir and returns an enumerator over its children. Ordering is
// stable within the call (sorted by name) but not guaranteed across calls,
// matching spec §4.2's contract.
func (p *OSProvider) Begin(ctx context.Context, dir string, flags model.RootFlags, priority model.Priority) (api.Enumerator, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to read directory %q: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	return &osEnumerator{
		dir:     dir,
		entries: entries,
		noStat:  flags.Has(model.FlagNoStat),
	}, nil
}

// osEnumerator implements api.Enumerator over a pre-listed directory.
type osEnumerator struct {
	mu      sync.Mutex
	dir     string
	entries []os.DirEntry
	offset  int
	noStat  bool
	closed  bool
}

// NextBatch returns up to count entries starting from the current offset.
// It returns fewer than count entries only once the directory has been
// fully consumed.
func (e *osEnumerator) NextBatch(ctx context.Context, count int) ([]model.FileInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, fmt.Errorf("enumerator for %q already closed", e.dir)
	}
	if count <= 0 {
		count = 1
	}

	var batch []model.FileInfo
	for len(batch) < count && e.offset < len(e.entries) {
		select {
		case <-ctx.Done():
			return batch, ctx.Err()
		default:
		}

		entry := e.entries[e.offset]
		e.offset++

		info, err := statEntry(e.dir, entry, e.noStat)
		if err != nil {
			// Per spec §7, per-directory/per-entry errors are non-fatal to
			// the caller's descent; skip entries that vanished mid-listing
			// or that we lack permission to stat.
			if os.IsNotExist(err) || os.IsPermission(err) {
				continue
			}
			return batch, fmt.Errorf("unable to stat %q: %w", filepath.Join(e.dir, entry.Name()), err)
		}
		batch = append(batch, info)
	}

	return batch, nil
}

// Close releases any resources held by the enumerator.
func (e *osEnumerator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func statEntry(dir string, entry os.DirEntry, noStat bool) (model.FileInfo, error) {
	name := entry.Name()
	if noStat {
		info := model.FileInfo{Name: name, Hidden: isHidden(name)}
		if entry.IsDir() {
			info.Type = model.FileTypeDirectory
		} else {
			info.Type = model.FileTypeRegular
		}
		return info, nil
	}

	full := filepath.Join(dir, name)
	fi, err := os.Lstat(full)
	if err != nil {
		return model.FileInfo{}, err
	}

	info := model.FileInfo{
		Name:   name,
		Size:   fi.Size(),
		Mtime:  fi.ModTime(),
		Mode:   uint32(fi.Mode().Perm()),
		Hidden: isHidden(name),
	}

	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		info.Type = model.FileTypeSymlink
		if target, err := os.Readlink(full); err == nil {
			info.Symlink = target
		}
	case fi.IsDir():
		info.Type = model.FileTypeDirectory
	case fi.Mode().IsRegular():
		info.Type = model.FileTypeRegular
	default:
		info.Type = model.FileTypeSpecial
	}

	if sys, ok := fi.Sys().(*syscall.Stat_t); ok {
		info.UID = sys.Uid
		info.GID = sys.Gid
		info.Device = uint64(sys.Dev)
		info.Inode = sys.Ino
		info.Nlink = uint32(sys.Nlink)
		info.Rdev = uint64(sys.Rdev)
		info.Ctime = statTimeCtim(sys)
	}

	return info, nil
}

func isHidden(name string) bool {
	return len(name) > 0 && name[0] == '.'
}
