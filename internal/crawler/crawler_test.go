package crawler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/trackerminers/filesystem-miner/internal/model"
	"github.com/trackerminers/filesystem-miner/internal/provider"
)

func TestCrawlerAdmitsAndCounts(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(dir, "skip.txt"), []byte("x"), 0644)
	os.Mkdir(filepath.Join(dir, "subdir"), 0755)

	check := func(kind CheckKind, file string, info model.FileInfo, children []model.FileInfo) bool {
		if kind == CheckFile && filepath.Base(file) == "skip.txt" {
			return false
		}
		return true
	}

	c := New(provider.New(), check)
	node, err := c.Get(context.Background(), dir, model.FileInfo{Type: model.FileTypeDirectory}, model.FlagRecurse)
	if err != nil {
		t.Fatal(err)
	}

	if node.Stats.FilesFound != 1 || node.Stats.FilesIgnored != 1 {
		t.Errorf("unexpected file stats: %+v", node.Stats)
	}
	if node.Stats.DirsFound != 1 {
		t.Errorf("unexpected dir stats: %+v", node.Stats)
	}
	if len(node.Children) != 2 {
		t.Fatalf("expected 2 admitted children, got %d", len(node.Children))
	}
}

func TestCrawlerContentFilterPrunesDirectory(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, ".nomedia"), []byte(""), 0644)
	os.WriteFile(filepath.Join(dir, "photo.jpg"), []byte("x"), 0644)

	check := func(kind CheckKind, file string, info model.FileInfo, children []model.FileInfo) bool {
		if kind == CheckContent {
			for _, c := range children {
				if c.Name == ".nomedia" {
					return false
				}
			}
		}
		return true
	}

	c := New(provider.New(), check)
	node, err := c.Get(context.Background(), dir, model.FileInfo{Type: model.FileTypeDirectory}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(node.Children) != 0 {
		t.Errorf("expected directory to be pruned, got %d children", len(node.Children))
	}
	if node.Stats.DirsIgnored != 1 {
		t.Errorf("expected DirsIgnored=1, got %+v", node.Stats)
	}
}
