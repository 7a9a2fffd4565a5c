// Package rpcstore implements api.StoreClient over a single
// io.ReadWriteCloser connection, framing protobuf-encoded request/response
// envelopes and correlating them by sequence number. This generalizes the
// teacher's pkg/rpc method-invocation idiom (one yamux stream per call) to
// a single shared connection, since this module has no multiplexing
// transport wired in; sequence-number correlation over one connection
// carries the same "response matches its request" guarantee without it.
package rpcstore

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"

	"github.com/trackerminers/filesystem-miner/internal/api"
	"github.com/trackerminers/filesystem-miner/internal/model"
	"github.com/trackerminers/filesystem-miner/internal/store/rpcmsg"
	"github.com/trackerminers/filesystem-miner/pkg/compression"
	"github.com/trackerminers/filesystem-miner/pkg/encoding"
	"github.com/trackerminers/filesystem-miner/pkg/logging"
	"github.com/trackerminers/filesystem-miner/pkg/stream"
)

// pendingCall is a single in-flight request awaiting its response.
type pendingCall struct {
	response chan *rpcmsg.Envelope
}

// Client is an api.StoreClient backed by a remote store server reachable
// over conn.
type Client struct {
	conn   io.ReadWriteCloser
	logger *logging.Logger

	encodeMu  sync.Mutex
	encoder   *encoding.ProtobufEncoder
	sentBytes uint64

	seq int64

	pendingMu sync.Mutex
	pending   map[int64]*pendingCall

	subMu       sync.Mutex
	subscribers []func(api.ChangeEvent)

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// NewClient wraps conn as an api.StoreClient and starts its background
// read loop. The caller retains ownership of conn and should call Close to
// release it.
func NewClient(conn io.ReadWriteCloser, logger *logging.Logger) *Client {
	c := &Client{
		conn:    conn,
		logger:  logger,
		pending: make(map[int64]*pendingCall),
		done:    make(chan struct{}),
	}
	audited := stream.NewAuditWriter(compression.NewCompressingWriter(conn), c.auditSent)
	c.encoder = encoding.NewProtobufEncoder(audited)
	go c.readLoop()
	return c
}

// auditSent accumulates the number of bytes the protobuf encoder writes,
// counted before flate compression,
// mirroring the teacher's connection-forwarding byte counters.
func (c *Client) auditSent(n uint64) {
	atomic.AddUint64(&c.sentBytes, n)
}

// Close terminates the connection and unblocks every in-flight call with
// an error.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.logger != nil {
			c.logger.Debugf("store rpc client sent %d bytes over connection lifetime", atomic.LoadUint64(&c.sentBytes))
		}
		c.closeErr = c.conn.Close()
		close(c.done)

		c.pendingMu.Lock()
		for seq, call := range c.pending {
			close(call.response)
			delete(c.pending, seq)
		}
		c.pendingMu.Unlock()
	})
	return c.closeErr
}

func (c *Client) readLoop() {
	decoder := encoding.NewProtobufDecoder(compression.NewDecompressingReader(c.conn))
	for {
		envelope := &rpcmsg.Envelope{}
		if err := decoder.Decode(envelope); err != nil {
			if c.logger != nil {
				c.logger.Warnf("store rpc connection closed: %s", err.Error())
			}
			return
		}

		if rpcmsg.Kind(envelope.Kind) == rpcmsg.KindChangeNotification {
			c.dispatchNotification(envelope)
			continue
		}

		c.pendingMu.Lock()
		call, ok := c.pending[envelope.Seq]
		if ok {
			delete(c.pending, envelope.Seq)
		}
		c.pendingMu.Unlock()

		if !ok {
			continue
		}
		call.response <- envelope
	}
}

func (c *Client) dispatchNotification(envelope *rpcmsg.Envelope) {
	msg := &rpcmsg.ChangeNotification{}
	if err := proto.Unmarshal(envelope.Payload, msg); err != nil {
		return
	}
	ev := api.ChangeEvent{ID: msg.Id, Kind: api.ChangeEventKind(msg.Kind)}

	c.subMu.Lock()
	subscribers := append([]func(api.ChangeEvent){}, c.subscribers...)
	c.subMu.Unlock()
	for _, cb := range subscribers {
		cb(ev)
	}
}

// call sends request (marshaled as payload under kind) and blocks until
// either its correlated response arrives, ctx is cancelled, or the
// connection closes.
func (c *Client) call(ctx context.Context, kind rpcmsg.Kind, request proto.Message) (*rpcmsg.Envelope, error) {
	payload, err := proto.Marshal(request)
	if err != nil {
		return nil, errors.Wrap(err, "unable to marshal request")
	}

	seq := atomic.AddInt64(&c.seq, 1)
	call := &pendingCall{response: make(chan *rpcmsg.Envelope, 1)}

	c.pendingMu.Lock()
	c.pending[seq] = call
	c.pendingMu.Unlock()

	envelope := &rpcmsg.Envelope{Kind: int32(kind), Seq: seq, Payload: payload}

	c.encodeMu.Lock()
	err = c.encoder.Encode(envelope)
	c.encodeMu.Unlock()
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, seq)
		c.pendingMu.Unlock()
		return nil, errors.Wrap(err, "unable to send request")
	}

	select {
	case response, ok := <-call.response:
		if !ok {
			return nil, errors.New("store rpc connection closed while awaiting response")
		}
		return response, nil
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, seq)
		c.pendingMu.Unlock()
		return nil, ctx.Err()
	case <-c.done:
		return nil, errors.New("store rpc connection closed while awaiting response")
	}
}

// QueryRootContents implements api.StoreClient.
func (c *Client) QueryRootContents(ctx context.Context, rootURI string) ([]api.StoreRow, error) {
	envelope, err := c.call(ctx, rpcmsg.KindQueryRootContentsRequest, &rpcmsg.QueryRootContentsRequest{RootUri: rootURI})
	if err != nil {
		return nil, err
	}
	response := &rpcmsg.QueryRootContentsResponse{}
	if err := proto.Unmarshal(envelope.Payload, response); err != nil {
		return nil, errors.Wrap(err, "unable to unmarshal response")
	}
	if response.Error != "" {
		return nil, errors.New(response.Error)
	}

	rows := make([]api.StoreRow, 0, len(response.Rows))
	for _, r := range response.Rows {
		rows = append(rows, api.StoreRow{
			URI:           r.Uri,
			FolderURN:     r.FolderUrn,
			IsDir:         r.IsDir,
			StoreMtime:    r.StoreMtime,
			ExtractorHash: r.ExtractorHash,
			Mimetype:      r.Mimetype,
		})
	}
	return rows, nil
}

// Update implements api.StoreClient.
func (c *Client) Update(ctx context.Context, sparql string) error {
	envelope, err := c.call(ctx, rpcmsg.KindUpdateRequest, &rpcmsg.UpdateRequest{Sparql: sparql})
	if err != nil {
		return err
	}
	response := &rpcmsg.UpdateResponse{}
	if err := proto.Unmarshal(envelope.Payload, response); err != nil {
		return errors.Wrap(err, "unable to unmarshal response")
	}
	if response.Error != "" {
		return errors.New(response.Error)
	}
	return nil
}

// CreateBatch implements api.StoreClient.
func (c *Client) CreateBatch() api.Batch {
	return &batch{client: c}
}

// CountPending implements api.StoreClient.
func (c *Client) CountPending(ctx context.Context, priorityGraphs []string) (int, error) {
	envelope, err := c.call(ctx, rpcmsg.KindCountPendingRequest, &rpcmsg.CountPendingRequest{PriorityGraphs: priorityGraphs})
	if err != nil {
		return 0, err
	}
	response := &rpcmsg.CountPendingResponse{}
	if err := proto.Unmarshal(envelope.Payload, response); err != nil {
		return 0, errors.Wrap(err, "unable to unmarshal response")
	}
	if response.Error != "" {
		return 0, errors.New(response.Error)
	}
	return int(response.Count), nil
}

// PagePending implements api.StoreClient.
func (c *Client) PagePending(ctx context.Context, priorityGraphs []string, limit, offset int) ([]model.DecoratorInfo, error) {
	envelope, err := c.call(ctx, rpcmsg.KindPagePendingRequest, &rpcmsg.PagePendingRequest{
		PriorityGraphs: priorityGraphs,
		Limit:          int64(limit),
		Offset:         int64(offset),
	})
	if err != nil {
		return nil, err
	}
	response := &rpcmsg.PagePendingResponse{}
	if err := proto.Unmarshal(envelope.Payload, response); err != nil {
		return nil, errors.Wrap(err, "unable to unmarshal response")
	}
	if response.Error != "" {
		return nil, errors.New(response.Error)
	}

	items := make([]model.DecoratorInfo, 0, len(response.Items))
	for _, it := range response.Items {
		items = append(items, model.DecoratorInfo{
			URN:        it.Urn,
			URL:        it.Url,
			Mimetype:   it.Mimetype,
			ID:         it.Id,
			TaskHandle: it.TaskHandle,
		})
	}
	return items, nil
}

// Subscribe implements api.StoreClient.
func (c *Client) Subscribe(callback func(api.ChangeEvent)) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subscribers = append(c.subscribers, callback)
}

// batch accumulates updates client-side and ships them as a single
// BatchExecuteRequest on Execute, so the server still commits atomically.
type batch struct {
	client    *Client
	resources []*rpcmsg.ResourceUpdate
	sparql    []string
}

func (b *batch) AddResource(graph, resource string) {
	b.resources = append(b.resources, &rpcmsg.ResourceUpdate{Graph: graph, Resource: resource})
}

func (b *batch) AddSparql(sparql string) {
	b.sparql = append(b.sparql, sparql)
}

func (b *batch) Execute(ctx context.Context) error {
	envelope, err := b.client.call(ctx, rpcmsg.KindBatchExecuteRequest, &rpcmsg.BatchExecuteRequest{
		Resources:        b.resources,
		SparqlStatements: b.sparql,
	})
	if err != nil {
		return err
	}
	response := &rpcmsg.BatchExecuteResponse{}
	if err := proto.Unmarshal(envelope.Payload, response); err != nil {
		return errors.Wrap(err, "unable to unmarshal response")
	}
	if response.Error != "" {
		return errors.New(response.Error)
	}
	return nil
}

// errUnhandledKind is returned by Server.handle for an envelope kind that
// names no request type.
func errUnhandledKind(kind rpcmsg.Kind) error {
	return fmt.Errorf("unhandled request kind %d", kind)
}
