// Package compressor implements the Archive Compressor (C12): a one-shot
// pipeline producing a single archive from a list of source files or
// directories. Modeled on the teacher's synchronization engine (the
// deleted synchronization/core/scan.go's depth-first, stat-then-recurse
// enumeration shape is kept verbatim here for the entry walk) feeding
// the archive/codec adapters instead of a sync transport, and on the
// teacher's bundle writer idiom (pkg/agent/bundle.go) for the
// tar/gzip stacking.
package compressor

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/trackerminers/filesystem-miner/internal/archive"
	"github.com/trackerminers/filesystem-miner/internal/archive/codec"
	"github.com/trackerminers/filesystem-miner/internal/errs"
	"github.com/trackerminers/filesystem-miner/internal/model"
	"github.com/trackerminers/filesystem-miner/pkg/logging"
	"github.com/trackerminers/filesystem-miner/pkg/numeric"
	"github.com/trackerminers/filesystem-miner/pkg/parallelism"
	"github.com/trackerminers/filesystem-miner/pkg/state"
	"github.com/trackerminers/filesystem-miner/pkg/stream"
)

const (
	// chunkSize is the compressor's target write granularity (spec §4.11).
	chunkSize = 64 * 1024
	// maxChunkRetries bounds retries of a partial chunk write before
	// treating the codec as stuck.
	maxChunkRetries = 5
	// defaultNotifyInterval throttles progress callbacks.
	defaultNotifyInterval = 200 * time.Millisecond
)

// Options configures one compression run.
type Options struct {
	Format                 archive.Format
	Filter                 archive.Filter
	Passphrase             string
	Sources                []string
	OutputIsDest           bool
	OutputPath             string
	CreateTopLevelDirectory bool
	NotifyInterval         time.Duration
}

// Host supplies the decisions spec §4.11 delegates back to the caller.
type Host interface {
	// DecideDestination is called once, before any byte is written, with
	// the path the compressor computed (or OutputPath verbatim).
	DecideDestination(destination string)
	// Progress reports completedSize out of totalSize, which is computed
	// once from the sources before the first entry is written.
	Progress(completedSize, totalSize int64)
}

// Compressor runs one compression pipeline. It is single-use.
type Compressor struct {
	opts    Options
	logger  *logging.Logger
	host    Host
	tracker *state.Tracker

	// progressLock guards completedSize/totalSize so Progress can be
	// polled from a goroutine other than the one driving Run, notifying
	// tracker on every write the same way the pipeline's own advance does.
	progressLock  *state.TrackingLock
	completedSize int64
	totalSize     int64
	lastNotify    time.Time

	linked map[linkKey]string // (dev,inode) -> first archive pathname seen
}

type linkKey struct {
	dev, inode uint64
}

// New constructs a Compressor for one run.
func New(opts Options, host Host, logger *logging.Logger) *Compressor {
	if opts.NotifyInterval <= 0 {
		opts.NotifyInterval = defaultNotifyInterval
	}
	tracker := state.NewTracker()
	return &Compressor{
		opts:         opts,
		logger:       logger,
		host:         host,
		tracker:      tracker,
		progressLock: state.NewTrackingLock(tracker),
		linked:       make(map[linkKey]string),
	}
}

// Tracker exposes the compressor's progress-change tracker so a CLI
// status command can block-poll it the way mutagen's session monitor
// polls session state, instead of busy-waiting on Progress callbacks.
func (c *Compressor) Tracker() *state.Tracker { return c.tracker }

// Progress returns a snapshot of the completed/total byte counts. It is
// safe to call concurrently with Run, so a status poller can pair it with
// Tracker().WaitForChange instead of relying solely on Host.Progress.
func (c *Compressor) Progress() (completedSize, totalSize int64) {
	c.progressLock.Lock()
	defer c.progressLock.UnlockWithoutNotify()
	return c.completedSize, c.totalSize
}

// Run executes the pipeline (spec §4.11's six sequential steps).
func (c *Compressor) Run(ctx context.Context) (err error) {
	defer c.tracker.Terminate()

	if len(c.opts.Sources) == 0 {
		return &errs.IOError{Path: "", Err: fmt.Errorf("no source files given")}
	}

	// Step 1: initialize codec (format/filter validation happens inside
	// codec.NewWriter; AES-256 for zip+passphrase is rejected explicitly
	// there since the stdlib zip writer cannot honor it).
	if err := archive.ValidateFormat(c.opts.Format); err != nil {
		return err
	}
	if err := archive.ValidateFilter(c.opts.Format, c.opts.Filter); err != nil {
		return err
	}

	// Step 2: decide destination.
	dest, err := c.decideDestination()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errs.NewIOError(dest, err)
	}
	c.host.DecideDestination(dest)

	// Step 3: open archive.
	f, err := os.Create(dest)
	if err != nil {
		return errs.NewIOError(dest, err)
	}
	defer func() {
		closeErr := f.Close()
		if err == nil {
			err = closeErr
		}
	}()

	w, err := codec.NewWriter(f, c.opts.Format, c.opts.Filter, c.opts.Passphrase)
	if err != nil {
		return err
	}

	topLevel := ""
	if c.opts.CreateTopLevelDirectory {
		topLevel = basenameWithoutArchiveExt(c.opts.Sources[0])
	}

	c.progressLock.Lock()
	c.totalSize = estimateTotalSize(c.opts.Sources)
	c.progressLock.Unlock()

	// Step 4: walk each source.
	for _, src := range c.opts.Sources {
		if err := ctx.Err(); err != nil {
			return errs.ErrCancelled
		}
		if err := c.emitSource(ctx, w, src, topLevel); err != nil {
			closeCodec(w)
			return err
		}
	}

	// Step 5: flush deferred hardlink entries. The stdlib-backed adapters
	// used here (tar/zip/ar) resolve hardlinks eagerly as each entry is
	// seen rather than via a separate linkify(null) pass (libarchive's
	// resolver defers a link's *second* occurrence; these adapters simply
	// emit model.ArchiveEntryHardlink immediately once a repeat
	// (dev,inode) is seen), so there is nothing left to flush here.

	// Step 6: finalize.
	if err := w.Close(); err != nil {
		return err
	}
	return nil
}

func closeCodec(w codec.Writer) { _ = w.Close() }

func (c *Compressor) decideDestination() (string, error) {
	if c.opts.OutputIsDest {
		return c.opts.OutputPath, nil
	}

	base := basenameWithoutArchiveExt(c.opts.Sources[0])
	ext := c.opts.Format.Extension(c.opts.Filter)
	candidate := filepath.Join(c.opts.OutputPath, base+ext)

	for n := 1; ; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil && !os.IsNotExist(err) {
			return "", errs.NewIOError(candidate, err)
		}
		candidate = filepath.Join(c.opts.OutputPath, fmt.Sprintf("%s (%d)%s", base, n, ext))
	}
}

func basenameWithoutArchiveExt(src string) string {
	base := filepath.Base(strings.TrimRight(src, string(filepath.Separator)))
	for _, ext := range []string{".tar.gz", ".tar", ".zip", ".a"} {
		if strings.HasSuffix(base, ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return base
}

// emitSource emits one top-level source and, if it is a directory,
// recurses depth-first, directories before contents (spec §4.11 step 4).
func (c *Compressor) emitSource(ctx context.Context, w codec.Writer, src, topLevel string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return errs.NewIOError(src, err)
	}
	pathname := c.archivePathname(topLevel, filepath.Base(src), "")
	return c.emitPath(ctx, w, src, pathname, info)
}

// emitPath writes one entry (and, for a directory, all of its
// descendants) at the given archive pathname.
func (c *Compressor) emitPath(ctx context.Context, w codec.Writer, diskPath, archivePath string, info os.FileInfo) error {
	if err := ctx.Err(); err != nil {
		return errs.ErrCancelled
	}

	entry, skip, err := c.buildEntry(diskPath, archivePath, info)
	if err != nil {
		return err
	}
	if skip {
		// ar*/zip format constraints silently drop unsupported source
		// kinds rather than failing the whole run.
		return nil
	}

	if entry.Type == model.ArchiveEntryHardlink {
		if err := w.WriteHeader(entry); err != nil {
			return err
		}
		c.advance(entry.Size)
		return nil
	}

	if err := w.WriteHeader(entry); err != nil {
		return err
	}

	if entry.Type == model.ArchiveEntryRegular && entry.Size > 0 {
		if err := c.streamFile(ctx, w, diskPath, entry.Size); err != nil {
			return err
		}
	} else {
		c.advance(entry.Size)
	}

	if info.IsDir() {
		children, err := readDirSorted(diskPath)
		if err != nil {
			return errs.NewIOError(diskPath, err)
		}
		for _, child := range children {
			childDisk := filepath.Join(diskPath, child.Name())
			childArchive := archivePath + "/" + child.Name()
			childInfo, err := os.Lstat(childDisk)
			if err != nil {
				return errs.NewIOError(childDisk, err)
			}
			if err := c.emitPath(ctx, w, childDisk, childArchive, childInfo); err != nil {
				return err
			}
		}
	}
	return nil
}

// estimateTotalSize sums estimateSize across every source in parallel,
// sharding sources across a worker array the same way the teacher shards
// a fixed-size comparison across SIMD workers (pkg/parallelism.SIMDWork):
// each worker owns every source whose index matches its own modulo the
// array size, so the one-walk-per-worker-goroutine cost overlaps instead
// of stacking up source-by-source for a multi-source compression job.
func estimateTotalSize(sources []string) int64 {
	if len(sources) <= 1 {
		var total int64
		for _, src := range sources {
			total += estimateSize(src)
		}
		return total
	}

	workerCount := len(sources)
	partial := make([]int64, workerCount)
	array := parallelism.NewSIMDWorkerArray(workerCount)
	_ = array.Do(sizeScanWork{sources: sources, partial: partial})
	array.Terminate()

	var total int64
	for _, n := range partial {
		total += n
	}
	return total
}

type sizeScanWork struct {
	sources []string
	partial []int64
}

func (w sizeScanWork) Do(index, size int) error {
	for i := index; i < len(w.sources); i += size {
		w.partial[i] = estimateSize(w.sources[i])
	}
	return nil
}

// estimateSize walks src to compute its total byte size for progress
// reporting. The total is computed once, before the walk that writes
// entries, and is not updated as that walk proceeds.
func estimateSize(src string) int64 {
	info, err := os.Lstat(src)
	if err != nil {
		return 0
	}
	if !info.IsDir() {
		return info.Size()
	}
	var total int64
	entries, err := os.ReadDir(src)
	if err != nil {
		return 0
	}
	for _, e := range entries {
		total += estimateSize(filepath.Join(src, e.Name()))
	}
	return total
}

func readDirSorted(dir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

func (c *Compressor) archivePathname(topLevel, sourceBase, relUnderSource string) string {
	if c.opts.Format.IsAr() {
		return sourceBase
	}
	parts := []string{}
	if topLevel != "" {
		parts = append(parts, topLevel)
	}
	parts = append(parts, sourceBase)
	if relUnderSource != "" {
		parts = append(parts, relUnderSource)
	}
	return strings.Join(parts, "/")
}

// buildEntry translates an os.FileInfo into a model.ArchiveEntry,
// applying format constraints and hardlink resolution. skip is true when
// the format silently refuses this source kind.
func (c *Compressor) buildEntry(diskPath, archivePath string, info os.FileInfo) (model.ArchiveEntry, bool, error) {
	entry := model.ArchiveEntry{
		Pathname: archivePath,
		Mode:     uint32(info.Mode().Perm()),
		Mtime:    info.ModTime(),
		Size:     info.Size(),
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		if c.opts.Format.IsAr() {
			return entry, true, nil
		}
		target, err := os.Readlink(diskPath)
		if err != nil {
			return entry, false, errs.NewIOError(diskPath, err)
		}
		entry.Type = model.ArchiveEntrySymlink
		entry.SymlinkTarget = target
		entry.Size = 0
		return entry, false, nil
	case info.IsDir():
		if c.opts.Format.IsAr() {
			return entry, true, nil
		}
		entry.Type = model.ArchiveEntryDirectory
		entry.Size = 0
		return entry, false, nil
	case info.Mode()&(os.ModeNamedPipe|os.ModeSocket|os.ModeDevice|os.ModeCharDevice) != 0:
		if c.opts.Format.IsAr() || c.opts.Format == archive.FormatZip {
			return entry, true, nil
		}
		entry.Size = 0
		switch {
		case info.Mode()&os.ModeNamedPipe != 0:
			entry.Type = model.ArchiveEntryFIFO
		case info.Mode()&os.ModeSocket != 0:
			entry.Type = model.ArchiveEntrySocket
		case info.Mode()&os.ModeCharDevice != 0:
			entry.Type = model.ArchiveEntryCharDevice
		default:
			entry.Type = model.ArchiveEntryBlockDevice
		}
		return entry, false, nil
	default:
		entry.Type = model.ArchiveEntryRegular
	}

	if dev, inode, nlink, ok := statDevInode(info); ok && nlink > 1 {
		entry.Device, entry.Inode, entry.Nlink = dev, inode, nlink
		key := linkKey{dev, inode}
		if first, seen := c.linked[key]; seen {
			entry.Type = model.ArchiveEntryHardlink
			entry.HardlinkTarget = first
			entry.Size = 0
			return entry, false, nil
		}
		c.linked[key] = archivePath
	}

	return entry, false, nil
}

func (c *Compressor) streamFile(ctx context.Context, w codec.Writer, path string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.NewIOError(path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	// Wrap the digest in a preemptable writer, the same way the teacher's
	// directory scanner wraps its content hasher, so a cancelled context
	// interrupts digesting a large file promptly instead of only between
	// chunk reads.
	digest := stream.NewPreemptableWriter(stream.NewHashedWriter(io.Discard, hasher), ctx.Done(), 0)

	buf := make([]byte, chunkSize)
	var total int64
	for total < size {
		if err := ctx.Err(); err != nil {
			return errs.ErrCancelled
		}
		want := numeric.Min(int64(chunkSize), size-total)
		n, readErr := f.Read(buf[:want])
		if n > 0 {
			if err := c.writeChunkWithRetry(w, buf[:n]); err != nil {
				return err
			}
			if _, err := digest.Write(buf[:n]); err != nil {
				if errors.Is(err, stream.ErrWritePreempted) {
					return errs.ErrCancelled
				}
				return errs.NewIOError(path, err)
			}
			total += int64(n)
			c.advance(int64(n))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return errs.NewIOError(path, readErr)
		}
	}
	if c.logger != nil {
		c.logger.Debugf("streamed %s (%d bytes, sha256:%x)", path, total, hasher.Sum(nil))
	}
	return nil
}

// writeChunkWithRetry retries a partial codec write up to maxChunkRetries
// times before treating the codec as stuck (spec §4.11 step 4).
func (c *Compressor) writeChunkWithRetry(w codec.Writer, chunk []byte) error {
	for len(chunk) > 0 {
		wrote := false
		for attempt := 0; attempt < maxChunkRetries; attempt++ {
			n, err := w.Write(chunk)
			if err != nil {
				return err
			}
			if n > 0 {
				chunk = chunk[n:]
				wrote = true
				break
			}
		}
		if !wrote {
			return &errs.CodecError{Errno: -9, Message: "codec returned zero-length writes repeatedly"}
		}
	}
	return nil
}

func (c *Compressor) advance(n int64) {
	c.progressLock.Lock()
	c.completedSize += n
	c.progressLock.Unlock()

	now := time.Now()
	if now.Sub(c.lastNotify) < c.opts.NotifyInterval {
		return
	}
	c.lastNotify = now
	if c.host != nil {
		completed, total := c.Progress()
		c.host.Progress(completed, total)
	}
}
