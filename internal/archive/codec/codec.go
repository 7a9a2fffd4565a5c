// Package codec defines the narrow read/write capability the compressor
// and extractor drive, and the concrete tar/zip/ar adapters implementing
// it. Modeled on the teacher's agent bundle reader
// (pkg/agent/bundle.go: archive/tar + compress/gzip for a scan-and-extract
// loop over a single entry), generalized here into a writer/reader pair
// that can drive an arbitrary sequence of entries for any supported
// format.
package codec

import (
	"fmt"
	"io"

	"github.com/trackerminers/filesystem-miner/internal/archive"
	"github.com/trackerminers/filesystem-miner/internal/errs"
	"github.com/trackerminers/filesystem-miner/internal/model"
)

// Writer emits a sequence of archive entries to an underlying stream. A
// single Writer handles exactly one archive: WriteHeader starts an entry,
// Write appends its body (for entries with a body), and Close finalizes
// the stream.
type Writer interface {
	// WriteHeader starts a new entry. It must be called before any Write
	// call for that entry's body.
	WriteHeader(entry model.ArchiveEntry) error
	// Write appends up to len(p) bytes to the current entry's body. It
	// returns the number of bytes actually written, which may be less than
	// len(p) on a partial write.
	Write(p []byte) (int, error)
	// Close finalizes the archive, flushing any trailer/filter state. It
	// does not close the underlying io.Writer.
	Close() error
}

// Reader scans a sequence of archive entries from an underlying stream.
type Reader interface {
	// Next advances to the next entry and returns its header, or io.EOF
	// once the archive is exhausted.
	Next() (model.ArchiveEntry, error)
	// Read reads from the current entry's body. Reading past the entry's
	// declared size returns io.EOF; a nil-length read before EOF is not
	// itself end-of-entry (mirrors libarchive's read_data_block semantics
	// of a zero-length block not signaling completion).
	Read(p []byte) (int, error)
	// Close releases resources held by the reader. It does not close the
	// underlying io.Reader/io.Closer.
	Close() error
}

// NewWriter constructs a Writer for format+filter writing to w.
func NewWriter(w io.Writer, format archive.Format, filter archive.Filter, passphrase string) (Writer, error) {
	if err := archive.ValidateFormat(format); err != nil {
		return nil, err
	}
	if err := archive.ValidateFilter(format, filter); err != nil {
		return nil, err
	}
	switch format {
	case archive.FormatTar:
		return newTarWriter(w, filter)
	case archive.FormatZip:
		return newZipWriter(w, passphrase)
	case archive.FormatAr, archive.FormatArBSD, archive.FormatArGNU:
		return newArWriter(w)
	default:
		return nil, fmt.Errorf("%w: format %v has no codec adapter", errs.ErrInternal, format)
	}
}

// NewReader constructs a Reader for format reading from r. format may be
// archive.FormatAll, in which case the reader probes each supported
// format in turn and returns the first that recognizes the stream's
// magic bytes.
func NewReader(r io.Reader, format archive.Format, passphrase string) (Reader, archive.Format, error) {
	if format == archive.FormatAll {
		return detectAndOpen(r, passphrase)
	}
	rd, err := openReader(r, format, passphrase)
	return rd, format, err
}

func openReader(r io.Reader, format archive.Format, passphrase string) (Reader, error) {
	switch format {
	case archive.FormatTar:
		return newTarReader(r)
	case archive.FormatZip:
		return newZipReader(r, passphrase)
	case archive.FormatAr, archive.FormatArBSD, archive.FormatArGNU:
		return newArReader(r)
	default:
		return nil, fmt.Errorf("%w: format %v has no codec adapter", errs.ErrInternal, format)
	}
}
