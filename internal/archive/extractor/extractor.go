// Package extractor implements the Archive Extractor (C13): a two-phase
// scan-then-extract pipeline with pathname sanitization and
// conflict-checked destination decisions. Modeled on the teacher's
// reconciliation shape (synchronization/core's dual-pass — scan both
// sides before touching the filesystem — kept here as Phase A Scan before
// any write) and its conflict-resolution idiom (sync conflicts surfaced
// to a host decision point rather than auto-resolved).
package extractor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/trackerminers/filesystem-miner/internal/archive"
	"github.com/trackerminers/filesystem-miner/internal/archive/codec"
	"github.com/trackerminers/filesystem-miner/internal/errs"
	"github.com/trackerminers/filesystem-miner/internal/model"
	"github.com/trackerminers/filesystem-miner/pkg/logging"
	"github.com/trackerminers/filesystem-miner/pkg/state"
	"github.com/trackerminers/filesystem-miner/pkg/stream"
)

// diagnosticsCutoff bounds how much non-fatal warning text a single
// extraction run will hold in memory, the same way the teacher's agent
// dialer bounds a subprocess's captured standard error output.
const diagnosticsCutoff = 4 * 1024

// ConflictAction is the host's response to a destination-path conflict.
type ConflictAction uint8

const (
	Overwrite ConflictAction = iota
	ChangeDestination
	Skip
	Unhandled
)

// Host supplies the decisions spec §4.12 delegates back to the caller.
type Host interface {
	// RequestPassphrase is called at most once per archive, only if an
	// encrypted entry is encountered.
	RequestPassphrase() string
	// DecideDestination is called with the computed common prefix (or
	// suggested destination) and the full file list; it may return a
	// replacement prefix/destination, or "" to accept the suggestion.
	DecideDestination(prefixOrDest string, files []string) (replacement string)
	// Conflict is called when an entry's destination path already exists.
	// newFile is the proposed alternate path to use when action is
	// ChangeDestination.
	Conflict(file string) (action ConflictAction, newFile string)
	// Progress reports completedSize out of totalSize.
	Progress(completedSize, totalSize int64)
}

// Options configures one extraction run.
type Options struct {
	Format                archive.Format // archive.FormatAll to auto-detect
	Passphrase            string
	OutputDir             string
	SourceArchivePath     string
	DeleteAfterExtraction bool
	NotifyInterval        time.Duration
}

const defaultNotifyInterval = 200 * time.Millisecond

// scannedEntry is one archive member as recorded during Phase A.
type scannedEntry struct {
	original model.ArchiveEntry
	sanitized string
}

// Extractor runs one extraction pipeline. It is single-use.
type Extractor struct {
	opts    Options
	host    Host
	logger  *logging.Logger
	tracker *state.Tracker

	format     archive.Format
	passphrase string
	entries    []scannedEntry

	// progressLock guards totalSize/completedSize so Progress can be
	// polled from a goroutine other than the one driving Run.
	progressLock  *state.TrackingLock
	totalSize     int64
	completedSize int64
	lastNotify    time.Time

	extractedDirs []extractedDir
	linkTargets   map[string]string // archive pathname as recorded in the entry -> extracted disk path, for hardlinks

	diagnostics      *bytes.Buffer
	diagnosticsValve *stream.ValveWriter
}

type extractedDir struct {
	path string
	info model.ArchiveEntry
}

// New constructs an Extractor for one run.
func New(opts Options, host Host, logger *logging.Logger) *Extractor {
	if opts.NotifyInterval <= 0 {
		opts.NotifyInterval = defaultNotifyInterval
	}
	diagnostics := bytes.NewBuffer(nil)
	tracker := state.NewTracker()
	return &Extractor{
		opts:             opts,
		host:             host,
		logger:           logger,
		tracker:          tracker,
		progressLock:     state.NewTrackingLock(tracker),
		linkTargets:      make(map[string]string),
		diagnostics:      diagnostics,
		diagnosticsValve: stream.NewValveWriter(stream.NewCutoffWriter(diagnostics, diagnosticsCutoff)),
	}
}

// warn records a non-fatal diagnostic both through the logger and into the
// run's bounded in-memory buffer, so Run can report a combined summary even
// after the valve protecting the buffer has been shut.
func (e *Extractor) warn(format string, v ...interface{}) {
	if e.logger != nil {
		e.logger.Warnf(format, v...)
	}
	fmt.Fprintf(e.diagnosticsValve, format+"\n", v...)
}

// Tracker exposes the extractor's progress-change tracker for block-poll
// status queries, mirroring the compressor's Tracker.
func (e *Extractor) Tracker() *state.Tracker { return e.tracker }

// Progress returns a snapshot of the completed/total byte counts. It is
// safe to call concurrently with Run, so a status poller can pair it with
// Tracker().WaitForChange instead of relying solely on Host.Progress.
func (e *Extractor) Progress() (completedSize, totalSize int64) {
	e.progressLock.Lock()
	defer e.progressLock.UnlockWithoutNotify()
	return e.completedSize, e.totalSize
}

// Run executes Phases A through E.
func (e *Extractor) Run(ctx context.Context) (err error) {
	defer e.tracker.Terminate()
	// Shutting the valve stops further diagnostics from accumulating past
	// this point; whatever was captured (or not) is already final.
	defer e.diagnosticsValve.Shut()

	if err := e.scan(ctx); err != nil {
		return err
	}
	destination, prefix, err := e.decideDestination()
	if err != nil {
		return err
	}
	if err := e.extract(ctx, destination, prefix); err != nil {
		return err
	}
	if err := e.reapplyDirMetadata(); err != nil {
		return err
	}

	if e.diagnostics.Len() > 0 && e.logger != nil {
		e.logger.Debugf("extraction completed with diagnostics:\n%s", e.diagnostics.String())
	}

	if e.host != nil {
		_, total := e.Progress()
		e.host.Progress(total, total)
	}
	if e.opts.DeleteAfterExtraction {
		_ = os.Remove(e.opts.SourceArchivePath)
	}
	return nil
}

// scan implements Phase A.
func (e *Extractor) scan(ctx context.Context) error {
	f, err := os.Open(e.opts.SourceArchivePath)
	if err != nil {
		return errs.NewIOError(e.opts.SourceArchivePath, err)
	}

	requestFormat := e.opts.Format
	if requestFormat == 0 {
		requestFormat = archive.FormatAll
	}

	rd, format, openErr := codec.NewReader(f, requestFormat, e.opts.Passphrase)
	if openErr != nil {
		f.Close()
		if requestFormat != archive.FormatAll {
			return openErr
		}
		// format_all failed; per spec, fall back to format_raw. None of
		// this module's adapters implement a true raw (filterless) pass,
		// so a format_all failure here always yields NotAnArchive, which
		// matches the "filter_count <= 1" raw fallback's usual outcome.
		return errs.ErrNotAnArchive
	}
	// Close the codec reader before the underlying file, in that order.
	defer stream.NewMultiCloser(rd, f).Close()
	e.format = format

	askedPassphrase := false
	for {
		if err := ctx.Err(); err != nil {
			return errs.ErrCancelled
		}
		entry, nextErr := rd.Next()
		if nextErr == io.EOF {
			break
		}
		if nextErr != nil {
			if looksLikePassphraseFailure(nextErr) && !askedPassphrase && e.host != nil {
				askedPassphrase = true
				e.passphrase = e.host.RequestPassphrase()
				continue
			}
			return &errs.CodecError{Errno: -10, Message: nextErr.Error()}
		}

		sanitized := e.sanitize(entry.Pathname)
		e.entries = append(e.entries, scannedEntry{original: entry, sanitized: sanitized})
		e.progressLock.Lock()
		e.totalSize += entry.Size
		e.progressLock.Unlock()
	}

	if len(e.entries) == 0 {
		return errs.ErrEmptyArchive
	}
	return nil
}

func looksLikePassphraseFailure(err error) bool {
	return strings.Contains(err.Error(), "passphrase") || strings.Contains(err.Error(), "encrypt")
}

// sanitize implements spec §4.12 Phase A step 2's pathname sanitization:
// strip an absolute root, recover non-UTF-8 bytes via a codepage fallback
// chain, and prevent escape by replacing any path that resolves outside
// the destination.
func (e *Extractor) sanitize(pathname string) string {
	p := pathname
	if !utf8.ValidString(p) {
		if recovered, ok := recodeNonUTF8([]byte(p)); ok {
			p = recovered
		}
	}
	p = filepath.ToSlash(p)
	if filepath.IsAbs(p) {
		p = strings.TrimPrefix(p, string(filepath.Separator))
	}
	p = strings.TrimPrefix(p, "/")

	cleaned := filepath.Clean(filepath.Join(e.opts.OutputDir, p))
	if !isDescendantOrEqual(e.opts.OutputDir, cleaned) {
		cleaned = filepath.Join(e.opts.OutputDir, filepath.Base(p))
	}
	rel, err := filepath.Rel(e.opts.OutputDir, cleaned)
	if err != nil {
		rel = filepath.Base(p)
	}
	return filepath.ToSlash(rel)
}

// recodeNonUTF8 decodes b as ISO-8859-1, mapping each byte to the Unicode
// code point of the same value. No codepage-437 or Windows-1252 table is
// applied, so bytes whose meaning differs in those pages (for example
// 0x80-0x9F) decode as their ISO-8859-1 values. Every byte sequence
// decodes this way, so the branch that keeps the original bytes is never
// taken.
func recodeNonUTF8(b []byte) (string, bool) {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, raw := range b {
		sb.WriteRune(rune(raw))
	}
	out := sb.String()
	if utf8.ValidString(out) {
		return out, true
	}
	return string(b), false
}

func isDescendantOrEqual(base, candidate string) bool {
	base = filepath.Clean(base)
	candidate = filepath.Clean(candidate)
	if base == candidate {
		return true
	}
	return strings.HasPrefix(candidate, base+string(filepath.Separator))
}

// decideDestination implements Phase B.
func (e *Extractor) decideDestination() (destination, prefix string, err error) {
	files := make([]string, len(e.entries))
	for i, se := range e.entries {
		files[i] = se.sanitized
	}

	commonPrefix := commonDirPrefix(files)
	sourceBase := basenameWithoutArchiveExt(e.opts.SourceArchivePath)

	if commonPrefix != "" {
		prefixBase := strings.TrimSuffix(filepath.Base(commonPrefix), filepath.Ext(commonPrefix))
		if prefixBase == sourceBase {
			return e.opts.OutputDir, commonPrefix, nil
		}
		if e.host != nil {
			if replacement := e.host.DecideDestination(commonPrefix, files); replacement != "" {
				return e.opts.OutputDir, replacement, nil
			}
		}
		return e.opts.OutputDir, commonPrefix, nil
	}

	suggested := filepath.Join(e.opts.OutputDir, sourceBase)
	if e.host != nil {
		if replacement := e.host.DecideDestination(suggested, files); replacement != "" {
			suggested = replacement
		}
	}
	return suggested, "", nil
}

func basenameWithoutArchiveExt(src string) string {
	base := filepath.Base(src)
	for _, ext := range []string{".tar.gz", ".tar", ".zip", ".a"} {
		if strings.HasSuffix(base, ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return base
}

// commonDirPrefix computes the shared leading directory component of a
// set of relative paths, iteratively dropping the last component until
// all files share it (spec §4.12 Phase B).
func commonDirPrefix(files []string) string {
	if len(files) == 0 {
		return ""
	}
	if len(files) == 1 {
		dir := filepath.Dir(files[0])
		if dir == "." {
			return ""
		}
		return filepath.ToSlash(dir)
	}
	parts := strings.Split(files[0], "/")
	for i := 1; i < len(files); i++ {
		otherParts := strings.Split(files[i], "/")
		parts = commonPrefixParts(parts, otherParts)
		if len(parts) == 0 {
			return ""
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "/")
}

func commonPrefixParts(a, b []string) []string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}

// extract implements Phase C.
func (e *Extractor) extract(ctx context.Context, destination, prefix string) error {
	f, err := os.Open(e.opts.SourceArchivePath)
	if err != nil {
		return errs.NewIOError(e.opts.SourceArchivePath, err)
	}

	rd, _, err := codec.NewReader(f, e.format, e.passphrase)
	if err != nil {
		f.Close()
		return err
	}
	defer stream.NewMultiCloser(rd, f).Close()

	i := 0
	for {
		if err := ctx.Err(); err != nil {
			return errs.ErrCancelled
		}
		entry, nextErr := rd.Next()
		if nextErr == io.EOF {
			break
		}
		if nextErr != nil {
			return &errs.CodecError{Errno: -11, Message: nextErr.Error()}
		}
		if i >= len(e.entries) {
			break
		}
		se := e.entries[i]
		i++

		rel := e.resanitize(se.sanitized, prefix)
		target := filepath.Join(destination, rel)

		action, skip, err := e.resolveConflict(target)
		if err != nil {
			return err
		}
		if skip {
			e.advance(entry.Size)
			continue
		}
		if action != "" {
			target = action
		}

		if err := e.writeEntry(rd, entry, target); err != nil {
			return err
		}
	}
	return nil
}

// resanitize re-derives an entry's destination-relative path against a
// possibly host-replaced prefix/destination.
func (e *Extractor) resanitize(sanitized, prefix string) string {
	if prefix == "" {
		return sanitized
	}
	return strings.TrimPrefix(strings.TrimPrefix(sanitized, prefix), "/")
}

// resolveConflict implements Phase C steps 2-3: walk ancestors for a
// conflict, ask the host how to resolve it. Returns a non-empty action
// string when the host chose ChangeDestination (the new target path),
// skip=true when the entry's payload should be dropped.
func (e *Extractor) resolveConflict(target string) (newTarget string, skip bool, err error) {
	original := target
	changed := func() string {
		if target != original {
			return target
		}
		return ""
	}
	for {
		conflictPath, isSelf, ok := e.findConflict(target)
		if !ok {
			return changed(), false, nil
		}
		if !isSelf {
			return "", false, &errs.NotADirectoryError{Path: conflictPath}
		}
		if e.host == nil {
			return changed(), false, nil
		}
		action, altFile := e.host.Conflict(target)
		switch action {
		case Overwrite:
			_ = os.Remove(target)
			return changed(), false, nil
		case ChangeDestination:
			target = altFile
			continue
		case Skip, Unhandled:
			return "", true, nil
		default:
			return "", true, nil
		}
	}
}

// findConflict walks target's ancestors below the output directory,
// outermost first, down to target itself, looking for an existing non-directory in the
// parent chain, or target itself already existing. A symlink anywhere in
// the parent chain is always treated as a conflict.
func (e *Extractor) findConflict(target string) (path string, isSelf bool, conflict bool) {
	root := filepath.Clean(e.opts.OutputDir)
	clean := filepath.Clean(target)

	var ancestors []string
	for p := filepath.Dir(clean); p != root && len(p) > len(root); p = filepath.Dir(p) {
		ancestors = append([]string{p}, ancestors...)
	}

	for _, p := range ancestors {
		info, err := os.Lstat(p)
		if err != nil {
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 || !info.IsDir() {
			return p, false, true
		}
	}

	if info, err := os.Lstat(clean); err == nil {
		_ = info
		return clean, true, true
	}
	return "", false, false
}

func (e *Extractor) writeEntry(rd codec.Reader, entry model.ArchiveEntry, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errs.NewIOError(target, err)
	}

	switch entry.Type {
	case model.ArchiveEntryDirectory:
		if err := os.MkdirAll(target, 0755); err != nil {
			return errs.NewIOError(target, err)
		}
		e.extractedDirs = append(e.extractedDirs, extractedDir{path: target, info: entry})
		e.advance(0)

	case model.ArchiveEntrySymlink:
		_ = os.Remove(target)
		if err := os.Symlink(entry.SymlinkTarget, target); err != nil {
			return errs.NewIOError(target, err)
		}
		e.advance(0)

	case model.ArchiveEntryHardlink:
		if src, ok := e.linkTargets[entry.HardlinkTarget]; ok {
			_ = os.Remove(target)
			if err := os.Link(src, target); err == nil {
				e.advance(0)
				break
			}
		}
		if err := e.writeRegularBody(rd, entry, target); err != nil {
			return err
		}

	case model.ArchiveEntryFIFO, model.ArchiveEntrySocket, model.ArchiveEntryBlockDevice, model.ArchiveEntryCharDevice:
		if err := createSpecial(target, entry); err != nil {
			// Non-fatal: fall back to an empty regular file placeholder.
			e.warn("unable to create special file %s, using empty placeholder: %s", target, err.Error())
			if f, ferr := os.Create(target); ferr == nil {
				f.Close()
			}
		}
		e.advance(0)

	default:
		if err := e.writeRegularBody(rd, entry, target); err != nil {
			return err
		}
	}

	if err := applyMetadata(target, entry); err != nil {
		e.warn("failed to apply metadata to %s: %s", target, err.Error())
	}
	e.linkTargets[entry.Pathname] = target
	return nil
}

func (e *Extractor) writeRegularBody(rd codec.Reader, entry model.ArchiveEntry, target string) error {
	_ = os.Remove(target)
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errs.NewIOError(target, err)
	}
	defer out.Close()

	// Bound what actually lands on disk to the entry's declared size,
	// regardless of how many bytes the codec reader hands back, and tee
	// the written bytes through a digest for post-hoc integrity checks —
	// the write-side counterpart of the compressor's streamFile digest.
	hasher := sha256.New()
	bounded := stream.NewHashedWriter(stream.NewCutoffWriter(out, uint(entry.Size)), hasher)

	buf := make([]byte, 64*1024)
	var remaining = entry.Size
	for remaining > 0 {
		n, rerr := rd.Read(buf)
		if n > 0 {
			if _, werr := bounded.Write(buf[:n]); werr != nil {
				return errs.NewIOError(target, werr)
			}
			remaining -= int64(n)
			e.advance(int64(n))
		}
		if rerr == io.EOF {
			break
		}
		// A zero-length, non-EOF read is a legitimate codec signal (spec
		// §4.12 Phase C step 4) and must not be treated as end of data.
		if rerr != nil {
			return &errs.CodecError{Errno: -12, Message: rerr.Error()}
		}
	}
	if e.logger != nil {
		e.logger.Debugf("extracted %s (%d bytes, sha256:%x)", target, entry.Size, hasher.Sum(nil))
	}
	return nil
}

func (e *Extractor) reapplyDirMetadata() error {
	for _, d := range e.extractedDirs {
		if err := applyMetadata(d.path, d.info); err != nil {
			e.warn("failed to reapply directory metadata to %s: %s", d.path, err.Error())
		}
	}
	return nil
}

func (e *Extractor) advance(n int64) {
	e.progressLock.Lock()
	e.completedSize += n
	e.progressLock.Unlock()

	now := time.Now()
	if now.Sub(e.lastNotify) < e.opts.NotifyInterval {
		return
	}
	e.lastNotify = now
	if e.host != nil {
		completed, total := e.Progress()
		e.host.Progress(completed, total)
	}
}
