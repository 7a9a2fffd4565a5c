package codec

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/trackerminers/filesystem-miner/internal/errs"
	"github.com/trackerminers/filesystem-miner/internal/model"
)

// The common (SysV/GNU-compatible) ar format: an 8-byte global magic
// followed by a sequence of 60-byte fixed-field headers, each followed by
// the (even-padded) entry body. There is no directory, and no entry type
// beyond "regular file" (spec §4.11's ar* format constraint: only regular
// files are ever written, directories/symlinks/specials are refused).
const (
	arGlobalMagic = "!<arch>\n"
	arHeaderSize  = 60
	arEndMagic    = "`\n"
)

// arWriter hand-rolls the fixed-format ar header per entry; there is no
// stdlib or ecosystem package in this module's dependency surface for the
// ar format, so (per spec's pinned design) it is implemented directly
// against the format's public specification.
type arWriter struct {
	w           io.Writer
	wroteMagic  bool
	pendingSize int64
	written     int64
}

func newArWriter(w io.Writer) (Writer, error) {
	return &arWriter{w: w}, nil
}

func (a *arWriter) WriteHeader(entry model.ArchiveEntry) error {
	if entry.Type != model.ArchiveEntryRegular {
		return &errs.CodecError{Errno: -5, Message: "ar format only supports regular files"}
	}
	if a.pendingSize != a.written {
		return &errs.CodecError{Errno: -6, Message: "previous ar entry body was not fully written"}
	}
	if !a.wroteMagic {
		if _, err := io.WriteString(a.w, arGlobalMagic); err != nil {
			return err
		}
		a.wroteMagic = true
	} else if a.written%2 == 1 {
		if _, err := io.WriteString(a.w, "\n"); err != nil {
			return err
		}
	}

	name := entry.Pathname
	if len(name) > 15 {
		name = name[len(name)-15:]
	}
	hdr := fmt.Sprintf("%-16s%-12d%-6d%-6d%-8o%-10d%s",
		name+"/",
		entry.Mtime.Unix(),
		entry.UID,
		entry.GID,
		entry.Mode&0777,
		entry.Size,
		arEndMagic,
	)
	if len(hdr) != arHeaderSize {
		return &errs.CodecError{Errno: -7, Message: "ar header field overflow for entry " + entry.Pathname}
	}
	if _, err := io.WriteString(a.w, hdr); err != nil {
		return err
	}
	a.pendingSize = entry.Size
	a.written = 0
	return nil
}

func (a *arWriter) Write(p []byte) (int, error) {
	n, err := a.w.Write(p)
	a.written += int64(n)
	return n, err
}

func (a *arWriter) Close() error {
	if a.written%2 == 1 {
		_, err := io.WriteString(a.w, "\n")
		return err
	}
	return nil
}

// arReader scans the same fixed-format headers back out.
type arReader struct {
	r         *bufio.Reader
	remaining int64
	pad       bool
}

func newArReader(r io.Reader) (Reader, error) {
	br := bufio.NewReaderSize(r, 512)
	magic := make([]byte, len(arGlobalMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, &errs.CodecError{Errno: -8, Message: "not an ar archive: " + err.Error()}
	}
	if string(magic) != arGlobalMagic {
		return nil, errs.ErrNotAnArchive
	}
	return &arReader{r: br}, nil
}

func (a *arReader) Next() (model.ArchiveEntry, error) {
	if a.remaining > 0 {
		if _, err := io.CopyN(io.Discard, a.r, a.remaining); err != nil {
			return model.ArchiveEntry{}, err
		}
		a.remaining = 0
	}
	if a.pad {
		a.r.Discard(1)
		a.pad = false
	}

	hdr := make([]byte, arHeaderSize)
	if _, err := io.ReadFull(a.r, hdr); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return model.ArchiveEntry{}, io.EOF
		}
		return model.ArchiveEntry{}, err
	}

	name := strings.TrimRight(string(hdr[0:16]), " ")
	name = strings.TrimSuffix(name, "/")
	mtime, _ := strconv.ParseInt(strings.TrimSpace(string(hdr[16:28])), 10, 64)
	uid, _ := strconv.ParseInt(strings.TrimSpace(string(hdr[28:34])), 10, 64)
	gid, _ := strconv.ParseInt(strings.TrimSpace(string(hdr[34:40])), 10, 64)
	mode, _ := strconv.ParseUint(strings.TrimSpace(string(hdr[40:48])), 8, 32)
	size, _ := strconv.ParseInt(strings.TrimSpace(string(hdr[48:58])), 10, 64)

	a.remaining = size
	a.pad = size%2 == 1

	return model.ArchiveEntry{
		Pathname: name,
		Type:     model.ArchiveEntryRegular,
		Size:     size,
		Mode:     uint32(mode),
		UID:      uint32(uid),
		GID:      uint32(gid),
		Mtime:    time.Unix(mtime, 0),
	}, nil
}

func (a *arReader) Read(p []byte) (int, error) {
	if a.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > a.remaining {
		p = p[:a.remaining]
	}
	n, err := a.r.Read(p)
	a.remaining -= int64(n)
	return n, err
}

func (a *arReader) Close() error { return nil }
