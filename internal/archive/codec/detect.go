package codec

import (
	"bufio"
	"bytes"
	"io"

	"github.com/trackerminers/filesystem-miner/internal/archive"
	"github.com/trackerminers/filesystem-miner/internal/errs"
)

// magic bytes used to probe a stream's format without consuming it
// irrecoverably (bufio.Reader.Peek leaves the bytes available to the
// chosen adapter).
var (
	gzipMagic = []byte{0x1f, 0x8b}
	zipMagic  = []byte("PK\x03\x04")
	arMagic   = []byte("!<arch>\n")
)

// detectAndOpen implements the scan phase's format_all probing (spec
// §4.12 Phase A): try zip, ar, then tar(optionally gzip-filtered), falling
// back to ErrNotAnArchive if nothing recognizes the container.
func detectAndOpen(r io.Reader, passphrase string) (Reader, archive.Format, error) {
	br := bufio.NewReaderSize(r, 512)
	head, _ := br.Peek(8)

	switch {
	case bytes.HasPrefix(head, zipMagic):
		rd, err := newZipReader(br, passphrase)
		return rd, archive.FormatZip, err
	case bytes.HasPrefix(head, arMagic):
		rd, err := newArReader(br)
		return rd, archive.FormatAr, err
	case bytes.HasPrefix(head, gzipMagic):
		rd, err := newTarReader(br)
		if err != nil {
			return nil, archive.FormatRaw, errs.ErrNotAnArchive
		}
		return rd, archive.FormatTar, nil
	}

	// Bare (unfiltered) tar has no magic of its own at offset 0 beyond its
	// first header's checksum field, which archive/tar validates for us:
	// attempt it and trust its own error if the stream isn't one.
	rd, err := newTarReader(br)
	if err != nil {
		return nil, archive.FormatRaw, errs.ErrNotAnArchive
	}
	return rd, archive.FormatTar, nil
}
