package codec

import (
	"archive/tar"
	"compress/gzip"
	"io"

	"github.com/trackerminers/filesystem-miner/internal/archive"
	"github.com/trackerminers/filesystem-miner/internal/model"
)

// tarWriter adapts archive/tar (optionally layered under compress/gzip)
// to the Writer interface. Grounded on the teacher's bundle reader
// (pkg/agent/bundle.go), which pairs the same two stdlib packages for its
// own .tar.gz agent bundle.
type tarWriter struct {
	gz *gzip.Writer
	tw *tar.Writer
}

func newTarWriter(w io.Writer, filter archive.Filter) (Writer, error) {
	tv := &tarWriter{}
	underlying := w
	if filter == archive.FilterGzip {
		tv.gz = gzip.NewWriter(w)
		underlying = tv.gz
	}
	tv.tw = tar.NewWriter(underlying)
	return tv, nil
}

func (t *tarWriter) WriteHeader(entry model.ArchiveEntry) error {
	hdr := &tar.Header{
		Name:     entry.Pathname,
		Size:     entry.Size,
		Mode:     int64(entry.Mode),
		Uid:      int(entry.UID),
		Gid:      int(entry.GID),
		Uname:    entry.Uname,
		Gname:    entry.Gname,
		ModTime:  entry.Mtime,
		AccessTime: entry.Atime,
		ChangeTime: entry.Ctime,
		Linkname: entry.SymlinkTarget,
	}
	switch entry.Type {
	case model.ArchiveEntryDirectory:
		hdr.Typeflag = tar.TypeDir
		hdr.Size = 0
	case model.ArchiveEntrySymlink:
		hdr.Typeflag = tar.TypeSymlink
		hdr.Size = 0
	case model.ArchiveEntryHardlink:
		hdr.Typeflag = tar.TypeLink
		hdr.Linkname = entry.HardlinkTarget
		hdr.Size = 0
	case model.ArchiveEntryFIFO:
		hdr.Typeflag = tar.TypeFifo
		hdr.Size = 0
	case model.ArchiveEntryBlockDevice:
		hdr.Typeflag = tar.TypeBlock
		hdr.Devmajor, hdr.Devminor = splitDev(entry.Rdev)
		hdr.Size = 0
	case model.ArchiveEntryCharDevice:
		hdr.Typeflag = tar.TypeChar
		hdr.Devmajor, hdr.Devminor = splitDev(entry.Rdev)
		hdr.Size = 0
	case model.ArchiveEntrySocket:
		// tar has no socket type; skip the body, record as a regular
		// zero-length placeholder rather than silently dropping the entry.
		hdr.Typeflag = tar.TypeReg
		hdr.Size = 0
	default:
		hdr.Typeflag = tar.TypeReg
	}
	return t.tw.WriteHeader(hdr)
}

func (t *tarWriter) Write(p []byte) (int, error) { return t.tw.Write(p) }

func (t *tarWriter) Close() error {
	if err := t.tw.Close(); err != nil {
		return err
	}
	if t.gz != nil {
		return t.gz.Close()
	}
	return nil
}

func splitDev(rdev uint64) (major, minor int64) {
	return int64(rdev >> 8), int64(rdev & 0xff)
}

func joinDev(major, minor int64) uint64 {
	return uint64(major)<<8 | uint64(minor&0xff)
}

// tarReader adapts archive/tar, transparently layering a gzip
// decompressor the first time it sees gzip's magic bytes.
type tarReader struct {
	gz *gzip.Reader
	tr *tar.Reader
	hdr *tar.Header
}

func newTarReader(r io.Reader) (Reader, error) {
	br := &peekReader{r: r}
	head, _ := br.Peek(2)
	tv := &tarReader{}
	if len(head) == 2 && head[0] == 0x1f && head[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		tv.gz = gz
		tv.tr = tar.NewReader(gz)
		return tv, nil
	}
	tv.tr = tar.NewReader(br)
	// Validate the stream really is a tar by reading its first header now;
	// archive/tar otherwise defers all validation to the first Next call.
	hdr, err := tv.tr.Next()
	if err != nil && err != io.EOF {
		return nil, err
	}
	tv.hdr = hdr
	return tv, nil
}

func (t *tarReader) Next() (model.ArchiveEntry, error) {
	var hdr *tar.Header
	var err error
	if t.hdr != nil {
		hdr, t.hdr = t.hdr, nil
	} else {
		hdr, err = t.tr.Next()
	}
	if err != nil {
		return model.ArchiveEntry{}, err
	}
	if hdr == nil {
		return model.ArchiveEntry{}, io.EOF
	}
	entry := model.ArchiveEntry{
		Pathname: hdr.Name,
		Size:     hdr.Size,
		Mode:     uint32(hdr.Mode),
		UID:      uint32(hdr.Uid),
		GID:      uint32(hdr.Gid),
		Uname:    hdr.Uname,
		Gname:    hdr.Gname,
		Mtime:    hdr.ModTime,
		Atime:    hdr.AccessTime,
		Ctime:    hdr.ChangeTime,
		SymlinkTarget: hdr.Linkname,
	}
	switch hdr.Typeflag {
	case tar.TypeDir:
		entry.Type = model.ArchiveEntryDirectory
	case tar.TypeSymlink:
		entry.Type = model.ArchiveEntrySymlink
	case tar.TypeLink:
		entry.Type = model.ArchiveEntryHardlink
		entry.HardlinkTarget = hdr.Linkname
	case tar.TypeFifo:
		entry.Type = model.ArchiveEntryFIFO
	case tar.TypeBlock:
		entry.Type = model.ArchiveEntryBlockDevice
		entry.Rdev = joinDev(hdr.Devmajor, hdr.Devminor)
	case tar.TypeChar:
		entry.Type = model.ArchiveEntryCharDevice
		entry.Rdev = joinDev(hdr.Devmajor, hdr.Devminor)
	default:
		entry.Type = model.ArchiveEntryRegular
	}
	return entry, nil
}

func (t *tarReader) Read(p []byte) (int, error) { return t.tr.Read(p) }

func (t *tarReader) Close() error {
	if t.gz != nil {
		return t.gz.Close()
	}
	return nil
}

// peekReader is a tiny Peek-capable wrapper used only to sniff gzip's
// magic bytes before handing the stream to archive/tar.
type peekReader struct {
	r    io.Reader
	peek []byte
}

func (p *peekReader) Peek(n int) ([]byte, error) {
	if len(p.peek) >= n {
		return p.peek[:n], nil
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(p.r, buf)
	p.peek = buf[:read]
	return p.peek, err
}

func (p *peekReader) Read(b []byte) (int, error) {
	if len(p.peek) > 0 {
		n := copy(b, p.peek)
		p.peek = p.peek[n:]
		return n, nil
	}
	return p.r.Read(b)
}
