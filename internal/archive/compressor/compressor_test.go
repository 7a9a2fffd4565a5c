package compressor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/trackerminers/filesystem-miner/internal/archive"
	"github.com/trackerminers/filesystem-miner/internal/archive/codec"
)

type recordingHost struct {
	destination string
}

func (h *recordingHost) DecideDestination(dest string) { h.destination = dest }
func (h *recordingHost) Progress(completed, total int64) {}

func writeTree(t *testing.T, root string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("aaa"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("bbbbb"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCompressCreatesArchiveWithDerivedDestination(t *testing.T) {
	srcRoot := t.TempDir()
	tree := filepath.Join(srcRoot, "mytree")
	writeTree(t, tree)
	outDir := t.TempDir()

	host := &recordingHost{}
	c := New(Options{
		Format:  archive.FormatTar,
		Filter:  archive.FilterGzip,
		Sources: []string{tree},
		OutputPath: outDir,
	}, host, nil)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if host.destination == "" {
		t.Fatal("expected DecideDestination to be called")
	}
	if _, err := os.Stat(host.destination); err != nil {
		t.Fatalf("expected archive file to exist at %s: %v", host.destination, err)
	}

	f, err := os.Open(host.destination)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rd, _, err := codec.NewReader(f, archive.FormatTar, "")
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer rd.Close()

	var names []string
	for {
		entry, err := rd.Next()
		if err != nil {
			break
		}
		names = append(names, entry.Pathname)
	}
	if len(names) == 0 {
		t.Fatal("expected at least one entry in the archive")
	}
}

func TestCompressHonorsOutputIsDest(t *testing.T) {
	srcRoot := t.TempDir()
	file := filepath.Join(srcRoot, "single.txt")
	if err := os.WriteFile(file, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(t.TempDir(), "explicit.tar")

	host := &recordingHost{}
	c := New(Options{
		Format:       archive.FormatTar,
		Sources:      []string{file},
		OutputIsDest: true,
		OutputPath:   dest,
	}, host, nil)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if host.destination != dest {
		t.Fatalf("expected destination %q, got %q", dest, host.destination)
	}
}

func TestCompressRejectsInvalidFormat(t *testing.T) {
	c := New(Options{
		Format:  archive.Format(200),
		Sources: []string{"/nonexistent"},
	}, &recordingHost{}, nil)
	if err := c.Run(context.Background()); err == nil {
		t.Fatal("expected an error for an invalid format")
	}
}
