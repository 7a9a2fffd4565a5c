package rpcstore

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/trackerminers/filesystem-miner/internal/api"
	"github.com/trackerminers/filesystem-miner/internal/store/memstore"
)

func newPipedClient(t *testing.T, backend api.StoreClient) (*Client, func()) {
	t.Helper()
	serverConn, clientConn := net.Pipe()

	server := NewServer(backend, nil)
	go server.HandleConn(serverConn)

	client := NewClient(clientConn, nil)
	return client, func() { client.Close() }
}

func TestClientQueryRootContentsRoundTrip(t *testing.T) {
	backend := memstore.New()
	backend.Seed("root://a", api.StoreRow{URI: "root://a/f1", Mimetype: "text/plain"}, false)

	client, cleanup := newPipedClient(t, backend)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rows, err := client.QueryRootContents(ctx, "root://a")
	if err != nil {
		t.Fatalf("QueryRootContents: %v", err)
	}
	if len(rows) != 1 || rows[0].URI != "root://a/f1" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestClientBatchExecuteRoundTrip(t *testing.T) {
	backend := memstore.New()
	client, cleanup := newPipedClient(t, backend)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	b := client.CreateBatch()
	b.AddResource("graph://g", "res://r1")
	if err := b.Execute(ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	count, err := backend.CountPending(ctx, nil)
	if err != nil {
		t.Fatalf("CountPending: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected backend to observe the committed resource, got count %d", count)
	}
}

func TestClientCountAndPagePendingRoundTrip(t *testing.T) {
	backend := memstore.New()
	backend.Seed("root://a", api.StoreRow{URI: "root://a/f1"}, true)
	backend.Seed("root://a", api.StoreRow{URI: "root://a/f2"}, true)

	client, cleanup := newPipedClient(t, backend)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	count, err := client.CountPending(ctx, nil)
	if err != nil {
		t.Fatalf("CountPending: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 pending, got %d", count)
	}

	page, err := client.PagePending(ctx, nil, 10, 0)
	if err != nil {
		t.Fatalf("PagePending: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page))
	}
}

func TestClientReceivesChangeNotifications(t *testing.T) {
	backend := memstore.New()
	client, cleanup := newPipedClient(t, backend)
	defer cleanup()

	received := make(chan api.ChangeEvent, 1)
	client.Subscribe(func(ev api.ChangeEvent) { received <- ev })

	// Give the client's subscription time to register before the backend
	// fires its notification from the server-side batch commit below.
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b := client.CreateBatch()
	b.AddResource("graph://g", "res://r1")
	if err := b.Execute(ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	select {
	case ev := <-received:
		if ev.ID != "res://r1" {
			t.Fatalf("expected notification for res://r1, got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}
}
