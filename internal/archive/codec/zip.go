package codec

import (
	"archive/zip"
	"bytes"
	"io"
	"os"

	"github.com/trackerminers/filesystem-miner/internal/errs"
	"github.com/trackerminers/filesystem-miner/internal/model"
)

// zipWriter adapts archive/zip to the Writer interface. archive/zip
// requires a io.WriterAt/io.Seeker-like central-directory trailer, so (like
// the stdlib package itself) it buffers nothing extra: it streams entries
// and writes the central directory on Close.
//
// Passphrase-protected (AES-256) ZIP output is a spec §4.11 requirement
// that archive/zip's stdlib writer does not support (it has no encryption
// registration hook on the write side); passphrase is accepted here and
// rejected with an explicit error rather than silently producing an
// unencrypted archive, so callers never get an archive they didn't ask
// for.
type zipWriter struct {
	zw      *zip.Writer
	current io.Writer
}

func newZipWriter(w io.Writer, passphrase string) (Writer, error) {
	if passphrase != "" {
		return nil, &errs.CodecError{Errno: -1, Message: "zip writer does not support passphrase-protected output"}
	}
	return &zipWriter{zw: zip.NewWriter(w)}, nil
}

func (z *zipWriter) WriteHeader(entry model.ArchiveEntry) error {
	switch entry.Type {
	case model.ArchiveEntryFIFO, model.ArchiveEntrySocket, model.ArchiveEntryBlockDevice, model.ArchiveEntryCharDevice, model.ArchiveEntryHardlink:
		return &errs.CodecError{Errno: -4, Message: "zip format does not support special files or hardlinks"}
	}
	fh := &zip.FileHeader{
		Name:     zipEntryName(entry),
		Modified: entry.Mtime,
	}
	fh.SetMode(archiveFileMode(entry))
	switch entry.Type {
	case model.ArchiveEntryDirectory:
		if len(fh.Name) == 0 || fh.Name[len(fh.Name)-1] != '/' {
			fh.Name += "/"
		}
		fh.Method = zip.Store
	default:
		fh.Method = zip.Deflate
	}
	w, err := z.zw.CreateHeader(fh)
	if err != nil {
		return err
	}
	z.current = w
	return nil
}

func zipEntryName(entry model.ArchiveEntry) string { return entry.Pathname }

func archiveFileMode(entry model.ArchiveEntry) os.FileMode {
	mode := os.FileMode(entry.Mode & 0777)
	switch entry.Type {
	case model.ArchiveEntryDirectory:
		mode |= os.ModeDir
	case model.ArchiveEntrySymlink:
		mode |= os.ModeSymlink
	}
	return mode
}

func (z *zipWriter) Write(p []byte) (int, error) {
	if z.current == nil {
		return 0, &errs.CodecError{Errno: -1, Message: "Write called before WriteHeader"}
	}
	return z.current.Write(p)
}

func (z *zipWriter) Close() error { return z.zw.Close() }

// zipReader adapts archive/zip's whole-archive reader to the streaming
// Reader interface by pre-reading the directory (zip's format requires
// the central directory, at the end of the file, to be read before any
// entry).
type zipReader struct {
	files []*zip.File
	idx   int
	body  io.ReadCloser
}

func newZipReader(r io.Reader, passphrase string) (Reader, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, err
	}
	// archive/zip's stdlib reader has no encryption support on either
	// side; a non-empty passphrase here can only mean the caller expects
	// an encrypted member, which this reader cannot service, so fail
	// loudly instead of silently reading garbage.
	if passphrase != "" {
		return nil, &errs.CodecError{Errno: -2, Message: "zip reader does not support passphrase-protected input"}
	}
	return &zipReader{files: zr.File, idx: -1}, nil
}

func (z *zipReader) Next() (model.ArchiveEntry, error) {
	if z.body != nil {
		z.body.Close()
		z.body = nil
	}
	z.idx++
	if z.idx >= len(z.files) {
		return model.ArchiveEntry{}, io.EOF
	}
	f := z.files[z.idx]

	body, err := f.Open()
	if err != nil {
		return model.ArchiveEntry{}, &errs.CodecError{Errno: -3, Message: err.Error()}
	}
	z.body = body

	entry := model.ArchiveEntry{
		Pathname: f.Name,
		Size:     int64(f.UncompressedSize64),
		Mode:     uint32(f.Mode().Perm()),
		Mtime:    f.Modified,
	}
	switch {
	case f.FileInfo().IsDir():
		entry.Type = model.ArchiveEntryDirectory
	case f.Mode()&os.ModeSymlink != 0:
		entry.Type = model.ArchiveEntrySymlink
		target, _ := io.ReadAll(body)
		entry.SymlinkTarget = string(target)
	default:
		entry.Type = model.ArchiveEntryRegular
	}
	return entry, nil
}

func (z *zipReader) Read(p []byte) (int, error) {
	if z.body == nil {
		return 0, io.EOF
	}
	return z.body.Read(p)
}

func (z *zipReader) Close() error {
	if z.body != nil {
		return z.body.Close()
	}
	return nil
}
