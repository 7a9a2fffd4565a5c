package codec

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/trackerminers/filesystem-miner/internal/archive"
	"github.com/trackerminers/filesystem-miner/internal/model"
)

func roundTrip(t *testing.T, format archive.Format, filter archive.Filter) {
	t.Helper()
	var buf bytes.Buffer

	w, err := NewWriter(&buf, format, filter, "")
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	entry := model.ArchiveEntry{
		Pathname: "hello.txt",
		Type:     model.ArchiveEntryRegular,
		Size:     5,
		Mode:     0644,
		Mtime:    time.Unix(1700000000, 0),
	}
	if err := w.WriteHeader(entry); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if _, err := w.Write([]byte("world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rd, _, err := NewReader(&buf, format, "")
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer rd.Close()

	got, err := rd.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got.Pathname != "hello.txt" {
		t.Fatalf("expected pathname hello.txt, got %q", got.Pathname)
	}
	body, err := io.ReadAll(readerAdapter{rd})
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != "world" {
		t.Fatalf("expected body %q, got %q", "world", body)
	}

	if _, err := rd.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF at archive end, got %v", err)
	}
}

type readerAdapter struct{ r Reader }

func (a readerAdapter) Read(p []byte) (int, error) { return a.r.Read(p) }

func TestTarRoundTrip(t *testing.T) {
	roundTrip(t, archive.FormatTar, archive.FilterNone)
}

func TestTarGzipRoundTrip(t *testing.T) {
	roundTrip(t, archive.FormatTar, archive.FilterGzip)
}

func TestZipRoundTrip(t *testing.T) {
	roundTrip(t, archive.FormatZip, archive.FilterNone)
}

func TestArRoundTrip(t *testing.T) {
	roundTrip(t, archive.FormatAr, archive.FilterNone)
}

func TestNewWriterRejectsBadFilterForZip(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewWriter(&buf, archive.FormatZip, archive.FilterGzip, ""); err == nil {
		t.Fatal("expected an error pairing zip with a gzip filter")
	}
}

func TestArWriterRejectsDirectories(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, archive.FormatAr, archive.FilterNone, "")
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	err = w.WriteHeader(model.ArchiveEntry{Pathname: "dir", Type: model.ArchiveEntryDirectory})
	if err == nil {
		t.Fatal("expected ar writer to reject a directory entry")
	}
}

func TestDetectAndOpenRejectsNonArchive(t *testing.T) {
	buf := bytes.NewReader([]byte("just some plain text, not an archive at all"))
	if _, _, err := NewReader(buf, archive.FormatAll, ""); err == nil {
		t.Fatal("expected plain text to be rejected as not an archive")
	}
}
