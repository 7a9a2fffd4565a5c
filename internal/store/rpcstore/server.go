package rpcstore

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/golang/protobuf/proto"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trackerminers/filesystem-miner/internal/api"
	"github.com/trackerminers/filesystem-miner/internal/store/rpcmsg"
	"github.com/trackerminers/filesystem-miner/pkg/compression"
	"github.com/trackerminers/filesystem-miner/pkg/encoding"
	"github.com/trackerminers/filesystem-miner/pkg/logging"
	"github.com/trackerminers/filesystem-miner/pkg/must"
	"github.com/trackerminers/filesystem-miner/pkg/stream"
)

// Server exposes an existing api.StoreClient implementation (typically an
// in-process memstore.Store) to remote rpcstore.Client connections. This
// mirrors the teacher's pkg/rpc.Server, which accepts connections and
// dispatches each inbound call to a registered handler; here there is a
// single fixed "service" (the wrapped StoreClient) rather than a handler
// registry, since this module only ever has one store.
type Server struct {
	backend api.StoreClient
	logger  *logging.Logger
}

// NewServer wraps backend for RPC exposure.
func NewServer(backend api.StoreClient, logger *logging.Logger) *Server {
	return &Server{backend: backend, logger: logger}
}

// Serve accepts connections from listener until it errors (e.g. on Close),
// handling each on its own goroutine. It mirrors pkg/rpc.Server.Serve.
func (s *Server) Serve(listener net.Listener) error {
	defer must.Close(listener, s.logger)
	for {
		conn, err := listener.Accept()
		if err != nil {
			return errors.Wrap(err, "error accepting connection")
		}
		go s.handleConn(conn)
	}
}

// HandleConn serves a single already-accepted connection and blocks until
// it closes. Exported so callers with their own listener loop (or an
// in-process pipe, as used in tests) can drive the protocol directly.
func (s *Server) HandleConn(conn io.ReadWriteCloser) {
	s.handleConn(conn)
}

func (s *Server) handleConn(conn io.ReadWriteCloser) {
	defer must.Close(conn, s.logger)

	connID := uuid.NewString()

	var encodeMu sync.Mutex
	var sentBytes uint64
	audited := stream.NewAuditWriter(compression.NewCompressingWriter(conn), func(n uint64) {
		atomic.AddUint64(&sentBytes, n)
	})
	encoder := encoding.NewProtobufEncoder(audited)
	decoder := encoding.NewProtobufDecoder(compression.NewDecompressingReader(conn))

	unsubscribe := s.subscribeChanges(conn, &encodeMu, encoder)
	defer unsubscribe()
	defer func() {
		if s.logger != nil {
			s.logger.Debugf("store rpc connection %s sent %d bytes over connection lifetime", connID, atomic.LoadUint64(&sentBytes))
		}
	}()

	if s.logger != nil {
		s.logger.Debugf("store rpc connection %s accepted", connID)
	}

	for {
		envelope := &rpcmsg.Envelope{}
		if err := decoder.Decode(envelope); err != nil {
			if s.logger != nil {
				s.logger.Warnf("store rpc connection %s closed: %s", connID, err.Error())
			}
			return
		}

		response, err := s.handle(rpcmsg.Kind(envelope.Kind), envelope.Payload)
		if err != nil {
			if s.logger != nil {
				s.logger.Warnf("store rpc connection %s request failed: %s", connID, err.Error())
			}
			continue
		}

		reply := &rpcmsg.Envelope{Kind: int32(responseKindFor(rpcmsg.Kind(envelope.Kind))), Seq: envelope.Seq, Payload: response}
		encodeMu.Lock()
		err = encoder.Encode(reply)
		encodeMu.Unlock()
		if err != nil {
			if s.logger != nil {
				s.logger.Warnf("store rpc connection %s response send failed: %s", connID, err.Error())
			}
			return
		}
	}
}

// subscribeChanges forwards every backend change notification to conn as a
// KindChangeNotification envelope (Seq left at zero, since it is not a
// response to any particular request).
func (s *Server) subscribeChanges(conn io.ReadWriteCloser, encodeMu *sync.Mutex, encoder *encoding.ProtobufEncoder) func() {
	s.backend.Subscribe(func(ev api.ChangeEvent) {
		payload, err := proto.Marshal(&rpcmsg.ChangeNotification{Id: ev.ID, Kind: int32(ev.Kind)})
		if err != nil {
			return
		}
		encodeMu.Lock()
		defer encodeMu.Unlock()
		_ = encoder.Encode(&rpcmsg.Envelope{Kind: int32(rpcmsg.KindChangeNotification), Payload: payload})
	})
	// The backend's Subscribe contract has no Unsubscribe; in practice each
	// server-side connection lives for the process's lifetime, so this is a
	// documented no-op rather than a leak in normal operation.
	return func() {}
}

func responseKindFor(request rpcmsg.Kind) rpcmsg.Kind {
	switch request {
	case rpcmsg.KindQueryRootContentsRequest:
		return rpcmsg.KindQueryRootContentsResponse
	case rpcmsg.KindUpdateRequest:
		return rpcmsg.KindUpdateResponse
	case rpcmsg.KindBatchExecuteRequest:
		return rpcmsg.KindBatchExecuteResponse
	case rpcmsg.KindCountPendingRequest:
		return rpcmsg.KindCountPendingResponse
	case rpcmsg.KindPagePendingRequest:
		return rpcmsg.KindPagePendingResponse
	default:
		return rpcmsg.KindUnknown
	}
}

func (s *Server) handle(kind rpcmsg.Kind, payload []byte) ([]byte, error) {
	ctx := context.Background()

	switch kind {
	case rpcmsg.KindQueryRootContentsRequest:
		request := &rpcmsg.QueryRootContentsRequest{}
		if err := proto.Unmarshal(payload, request); err != nil {
			return nil, err
		}
		rows, err := s.backend.QueryRootContents(ctx, request.RootUri)
		response := &rpcmsg.QueryRootContentsResponse{}
		if err != nil {
			response.Error = err.Error()
		} else {
			for _, r := range rows {
				response.Rows = append(response.Rows, &rpcmsg.StoreRow{
					Uri:           r.URI,
					FolderUrn:     r.FolderURN,
					IsDir:         r.IsDir,
					StoreMtime:    r.StoreMtime,
					ExtractorHash: r.ExtractorHash,
					Mimetype:      r.Mimetype,
				})
			}
		}
		return proto.Marshal(response)

	case rpcmsg.KindUpdateRequest:
		request := &rpcmsg.UpdateRequest{}
		if err := proto.Unmarshal(payload, request); err != nil {
			return nil, err
		}
		response := &rpcmsg.UpdateResponse{}
		if err := s.backend.Update(ctx, request.Sparql); err != nil {
			response.Error = err.Error()
		}
		return proto.Marshal(response)

	case rpcmsg.KindBatchExecuteRequest:
		request := &rpcmsg.BatchExecuteRequest{}
		if err := proto.Unmarshal(payload, request); err != nil {
			return nil, err
		}
		b := s.backend.CreateBatch()
		for _, r := range request.Resources {
			b.AddResource(r.Graph, r.Resource)
		}
		for _, sparql := range request.SparqlStatements {
			b.AddSparql(sparql)
		}
		response := &rpcmsg.BatchExecuteResponse{}
		if err := b.Execute(ctx); err != nil {
			response.Error = err.Error()
		}
		return proto.Marshal(response)

	case rpcmsg.KindCountPendingRequest:
		request := &rpcmsg.CountPendingRequest{}
		if err := proto.Unmarshal(payload, request); err != nil {
			return nil, err
		}
		count, err := s.backend.CountPending(ctx, request.PriorityGraphs)
		response := &rpcmsg.CountPendingResponse{Count: int64(count)}
		if err != nil {
			response.Error = err.Error()
		}
		return proto.Marshal(response)

	case rpcmsg.KindPagePendingRequest:
		request := &rpcmsg.PagePendingRequest{}
		if err := proto.Unmarshal(payload, request); err != nil {
			return nil, err
		}
		items, err := s.backend.PagePending(ctx, request.PriorityGraphs, int(request.Limit), int(request.Offset))
		response := &rpcmsg.PagePendingResponse{}
		if err != nil {
			response.Error = err.Error()
		} else {
			for _, it := range items {
				response.Items = append(response.Items, &rpcmsg.DecoratorInfo{
					Urn:        it.URN,
					Url:        it.URL,
					Mimetype:   it.Mimetype,
					Id:         it.ID,
					TaskHandle: it.TaskHandle,
				})
			}
		}
		return proto.Marshal(response)

	default:
		return nil, errUnhandledKind(kind)
	}
}
