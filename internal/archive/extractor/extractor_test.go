package extractor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/trackerminers/filesystem-miner/internal/archive"
	"github.com/trackerminers/filesystem-miner/internal/archive/compressor"
)

type testHost struct {
	conflicts int
}

func (h *testHost) RequestPassphrase() string { return "" }
func (h *testHost) DecideDestination(prefixOrDest string, files []string) string { return "" }
func (h *testHost) Conflict(file string) (ConflictAction, string) {
	h.conflicts++
	return Overwrite, ""
}
func (h *testHost) Progress(completed, total int64) {}

func buildFixtureArchive(t *testing.T) string {
	t.Helper()
	srcRoot := t.TempDir()
	tree := filepath.Join(srcRoot, "payload")
	if err := os.MkdirAll(filepath.Join(tree, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tree, "top.txt"), []byte("top"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tree, "nested", "deep.txt"), []byte("deep"), 0644); err != nil {
		t.Fatal(err)
	}

	archiveDir := t.TempDir()
	c := compressor.New(compressor.Options{
		Format:     archive.FormatTar,
		Sources:    []string{tree},
		OutputPath: archiveDir,
	}, noopHost{}, nil)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("building fixture archive: %v", err)
	}
	entries, _ := os.ReadDir(archiveDir)
	if len(entries) != 1 {
		t.Fatalf("expected exactly one archive file, got %d", len(entries))
	}
	return filepath.Join(archiveDir, entries[0].Name())
}

type noopHost struct{}

func (noopHost) DecideDestination(string)      {}
func (noopHost) Progress(completed, total int64) {}

func TestExtractRoundTrip(t *testing.T) {
	archivePath := buildFixtureArchive(t)
	outDir := t.TempDir()

	host := &testHost{}
	e := New(Options{
		Format:            archive.FormatAll,
		OutputDir:         outDir,
		SourceArchivePath: archivePath,
	}, host, nil)

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The archive's single top-level directory is named after the source
	// ("payload"), matching the archive's own basename, so the redundant
	// wrapper is stripped and files land directly under outDir.
	extracted := filepath.Join(outDir, "top.txt")
	data, err := os.ReadFile(extracted)
	if err != nil {
		t.Fatalf("expected extracted file at %s: %v", extracted, err)
	}
	if string(data) != "top" {
		t.Fatalf("expected content %q, got %q", "top", data)
	}

	nested := filepath.Join(outDir, "nested", "deep.txt")
	if _, err := os.Stat(nested); err != nil {
		t.Fatalf("expected nested file to be extracted: %v", err)
	}
}

func TestExtractRejectsEmptyArchive(t *testing.T) {
	empty := filepath.Join(t.TempDir(), "empty.tar")
	if err := os.WriteFile(empty, []byte{}, 0644); err != nil {
		t.Fatal(err)
	}

	e := New(Options{
		Format:            archive.FormatAll,
		OutputDir:         t.TempDir(),
		SourceArchivePath: empty,
	}, &testHost{}, nil)

	if err := e.Run(context.Background()); err == nil {
		t.Fatal("expected an error for an archive with no recognizable content")
	}
}
