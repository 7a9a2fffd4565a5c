package memstore

import (
	"context"
	"testing"

	"github.com/trackerminers/filesystem-miner/internal/api"
)

func TestQueryRootContentsReturnsSeeded(t *testing.T) {
	s := New()
	s.Seed("root://a", api.StoreRow{URI: "root://a/f1", Mimetype: "text/plain"}, false)
	s.Seed("root://a", api.StoreRow{URI: "root://a/f2", Mimetype: "text/plain"}, true)

	rows, err := s.QueryRootContents(context.Background(), "root://a")
	if err != nil {
		t.Fatalf("QueryRootContents: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
}

func TestBatchExecuteNotifiesSubscribers(t *testing.T) {
	s := New()
	var got []api.ChangeEvent
	s.Subscribe(func(ev api.ChangeEvent) { got = append(got, ev) })

	b := s.CreateBatch()
	b.AddResource("graph://g", "res://r1")
	if err := b.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(got) != 1 || got[0].ID != "res://r1" {
		t.Fatalf("expected one notification for res://r1, got %+v", got)
	}
}

func TestCountAndPagePending(t *testing.T) {
	s := New()
	s.Seed("root://a", api.StoreRow{URI: "root://a/f1"}, true)
	s.Seed("root://a", api.StoreRow{URI: "root://a/f2"}, true)
	s.Seed("root://a", api.StoreRow{URI: "root://a/f3"}, false)

	count, err := s.CountPending(context.Background(), nil)
	if err != nil {
		t.Fatalf("CountPending: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 pending, got %d", count)
	}

	page, err := s.PagePending(context.Background(), nil, 1, 0)
	if err != nil {
		t.Fatalf("PagePending: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("expected a single-item page, got %d", len(page))
	}
}

func TestMarkExtractedClearsPending(t *testing.T) {
	s := New()
	s.Seed("root://a", api.StoreRow{URI: "root://a/f1"}, true)
	s.MarkExtracted("root://a/f1", "hash-v1")

	count, _ := s.CountPending(context.Background(), nil)
	if count != 0 {
		t.Fatalf("expected 0 pending after MarkExtracted, got %d", count)
	}
}
