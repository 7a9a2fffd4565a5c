// Package rpcmsg defines the wire messages exchanged by internal/store/
// rpcstore. These are hand-written in the pre-protoc-gen-go-v2 message
// shape (a struct with `protobuf` field tags plus Reset/String/ProtoMessage
// methods) rather than generated from a .proto file, so that the module
// does not depend on invoking protoc at build time; see DESIGN.md for why
// this shape was chosen over committing generated code.
package rpcmsg

import (
	"github.com/golang/protobuf/proto"
)

// Kind discriminates the payload carried by an Envelope.
type Kind int32

const (
	KindUnknown Kind = iota
	KindQueryRootContentsRequest
	KindQueryRootContentsResponse
	KindUpdateRequest
	KindUpdateResponse
	KindBatchExecuteRequest
	KindBatchExecuteResponse
	KindCountPendingRequest
	KindCountPendingResponse
	KindPagePendingRequest
	KindPagePendingResponse
	KindChangeNotification
)

// Envelope is the single top-level message type sent over the wire; every
// call request, call response, and pushed notification is carried as an
// opaque, separately-marshaled Payload so that a single connection can
// multiplex arbitrary message kinds without per-kind stream negotiation.
type Envelope struct {
	Kind    int32  `protobuf:"varint,1,opt,name=kind,proto3" json:"kind,omitempty"`
	Seq     int64  `protobuf:"varint,2,opt,name=seq,proto3" json:"seq,omitempty"`
	Payload []byte `protobuf:"bytes,3,opt,name=payload,proto3" json:"payload,omitempty"`
}

func (m *Envelope) Reset()         { *m = Envelope{} }
func (m *Envelope) String() string { return proto.CompactTextString(m) }
func (*Envelope) ProtoMessage()    {}

// StoreRow mirrors api.StoreRow for wire transmission.
type StoreRow struct {
	Uri           string `protobuf:"bytes,1,opt,name=uri,proto3" json:"uri,omitempty"`
	FolderUrn     string `protobuf:"bytes,2,opt,name=folder_urn,json=folderUrn,proto3" json:"folder_urn,omitempty"`
	IsDir         bool   `protobuf:"varint,3,opt,name=is_dir,json=isDir,proto3" json:"is_dir,omitempty"`
	StoreMtime    int64  `protobuf:"varint,4,opt,name=store_mtime,json=storeMtime,proto3" json:"store_mtime,omitempty"`
	ExtractorHash string `protobuf:"bytes,5,opt,name=extractor_hash,json=extractorHash,proto3" json:"extractor_hash,omitempty"`
	Mimetype      string `protobuf:"bytes,6,opt,name=mimetype,proto3" json:"mimetype,omitempty"`
}

func (m *StoreRow) Reset()         { *m = StoreRow{} }
func (m *StoreRow) String() string { return proto.CompactTextString(m) }
func (*StoreRow) ProtoMessage()    {}

// DecoratorInfo mirrors model.DecoratorInfo for wire transmission.
type DecoratorInfo struct {
	Urn        string `protobuf:"bytes,1,opt,name=urn,proto3" json:"urn,omitempty"`
	Url        string `protobuf:"bytes,2,opt,name=url,proto3" json:"url,omitempty"`
	Mimetype   string `protobuf:"bytes,3,opt,name=mimetype,proto3" json:"mimetype,omitempty"`
	Id         string `protobuf:"bytes,4,opt,name=id,proto3" json:"id,omitempty"`
	TaskHandle string `protobuf:"bytes,5,opt,name=task_handle,json=taskHandle,proto3" json:"task_handle,omitempty"`
}

func (m *DecoratorInfo) Reset()         { *m = DecoratorInfo{} }
func (m *DecoratorInfo) String() string { return proto.CompactTextString(m) }
func (*DecoratorInfo) ProtoMessage()    {}

// QueryRootContentsRequest requests every known descendant row of RootUri.
type QueryRootContentsRequest struct {
	RootUri string `protobuf:"bytes,1,opt,name=root_uri,json=rootUri,proto3" json:"root_uri,omitempty"`
}

func (m *QueryRootContentsRequest) Reset()         { *m = QueryRootContentsRequest{} }
func (m *QueryRootContentsRequest) String() string { return proto.CompactTextString(m) }
func (*QueryRootContentsRequest) ProtoMessage()    {}

// QueryRootContentsResponse carries the rows or a non-empty Error.
type QueryRootContentsResponse struct {
	Rows  []*StoreRow `protobuf:"bytes,1,rep,name=rows,proto3" json:"rows,omitempty"`
	Error string      `protobuf:"bytes,2,opt,name=error,proto3" json:"error,omitempty"`
}

func (m *QueryRootContentsResponse) Reset()         { *m = QueryRootContentsResponse{} }
func (m *QueryRootContentsResponse) String() string { return proto.CompactTextString(m) }
func (*QueryRootContentsResponse) ProtoMessage()    {}

// UpdateRequest carries a single synchronous SPARQL update statement.
type UpdateRequest struct {
	Sparql string `protobuf:"bytes,1,opt,name=sparql,proto3" json:"sparql,omitempty"`
}

func (m *UpdateRequest) Reset()         { *m = UpdateRequest{} }
func (m *UpdateRequest) String() string { return proto.CompactTextString(m) }
func (*UpdateRequest) ProtoMessage()    {}

// UpdateResponse carries a non-empty Error on failure.
type UpdateResponse struct {
	Error string `protobuf:"bytes,1,opt,name=error,proto3" json:"error,omitempty"`
}

func (m *UpdateResponse) Reset()         { *m = UpdateResponse{} }
func (m *UpdateResponse) String() string { return proto.CompactTextString(m) }
func (*UpdateResponse) ProtoMessage()    {}

// ResourceUpdate is one Batch.AddResource call.
type ResourceUpdate struct {
	Graph    string `protobuf:"bytes,1,opt,name=graph,proto3" json:"graph,omitempty"`
	Resource string `protobuf:"bytes,2,opt,name=resource,proto3" json:"resource,omitempty"`
}

func (m *ResourceUpdate) Reset()         { *m = ResourceUpdate{} }
func (m *ResourceUpdate) String() string { return proto.CompactTextString(m) }
func (*ResourceUpdate) ProtoMessage()    {}

// BatchExecuteRequest carries every update accumulated by one Batch before
// its Execute call.
type BatchExecuteRequest struct {
	Resources        []*ResourceUpdate `protobuf:"bytes,1,rep,name=resources,proto3" json:"resources,omitempty"`
	SparqlStatements []string          `protobuf:"bytes,2,rep,name=sparql_statements,json=sparqlStatements,proto3" json:"sparql_statements,omitempty"`
}

func (m *BatchExecuteRequest) Reset()         { *m = BatchExecuteRequest{} }
func (m *BatchExecuteRequest) String() string { return proto.CompactTextString(m) }
func (*BatchExecuteRequest) ProtoMessage()    {}

// BatchExecuteResponse carries a non-empty Error on failure.
type BatchExecuteResponse struct {
	Error string `protobuf:"bytes,1,opt,name=error,proto3" json:"error,omitempty"`
}

func (m *BatchExecuteResponse) Reset()         { *m = BatchExecuteResponse{} }
func (m *BatchExecuteResponse) String() string { return proto.CompactTextString(m) }
func (*BatchExecuteResponse) ProtoMessage()    {}

// CountPendingRequest mirrors api.StoreClient.CountPending's arguments.
type CountPendingRequest struct {
	PriorityGraphs []string `protobuf:"bytes,1,rep,name=priority_graphs,json=priorityGraphs,proto3" json:"priority_graphs,omitempty"`
}

func (m *CountPendingRequest) Reset()         { *m = CountPendingRequest{} }
func (m *CountPendingRequest) String() string { return proto.CompactTextString(m) }
func (*CountPendingRequest) ProtoMessage()    {}

// CountPendingResponse carries the count or a non-empty Error.
type CountPendingResponse struct {
	Count int64  `protobuf:"varint,1,opt,name=count,proto3" json:"count,omitempty"`
	Error string `protobuf:"bytes,2,opt,name=error,proto3" json:"error,omitempty"`
}

func (m *CountPendingResponse) Reset()         { *m = CountPendingResponse{} }
func (m *CountPendingResponse) String() string { return proto.CompactTextString(m) }
func (*CountPendingResponse) ProtoMessage()    {}

// PagePendingRequest mirrors api.StoreClient.PagePending's arguments.
type PagePendingRequest struct {
	PriorityGraphs []string `protobuf:"bytes,1,rep,name=priority_graphs,json=priorityGraphs,proto3" json:"priority_graphs,omitempty"`
	Limit          int64    `protobuf:"varint,2,opt,name=limit,proto3" json:"limit,omitempty"`
	Offset         int64    `protobuf:"varint,3,opt,name=offset,proto3" json:"offset,omitempty"`
}

func (m *PagePendingRequest) Reset()         { *m = PagePendingRequest{} }
func (m *PagePendingRequest) String() string { return proto.CompactTextString(m) }
func (*PagePendingRequest) ProtoMessage()    {}

// PagePendingResponse carries the page or a non-empty Error.
type PagePendingResponse struct {
	Items []*DecoratorInfo `protobuf:"bytes,1,rep,name=items,proto3" json:"items,omitempty"`
	Error string           `protobuf:"bytes,2,opt,name=error,proto3" json:"error,omitempty"`
}

func (m *PagePendingResponse) Reset()         { *m = PagePendingResponse{} }
func (m *PagePendingResponse) String() string { return proto.CompactTextString(m) }
func (*PagePendingResponse) ProtoMessage()    {}

// ChangeNotification is pushed by the server outside of any request/
// response correlation (Envelope.Seq is left at zero).
type ChangeNotification struct {
	Id   string `protobuf:"bytes,1,opt,name=id,proto3" json:"id,omitempty"`
	Kind int32  `protobuf:"varint,2,opt,name=kind,proto3" json:"kind,omitempty"`
}

func (m *ChangeNotification) Reset()         { *m = ChangeNotification{} }
func (m *ChangeNotification) String() string { return proto.CompactTextString(m) }
func (*ChangeNotification) ProtoMessage()    {}

func init() {
	proto.RegisterType((*Envelope)(nil), "rpcmsg.Envelope")
	proto.RegisterType((*StoreRow)(nil), "rpcmsg.StoreRow")
	proto.RegisterType((*DecoratorInfo)(nil), "rpcmsg.DecoratorInfo")
	proto.RegisterType((*QueryRootContentsRequest)(nil), "rpcmsg.QueryRootContentsRequest")
	proto.RegisterType((*QueryRootContentsResponse)(nil), "rpcmsg.QueryRootContentsResponse")
	proto.RegisterType((*UpdateRequest)(nil), "rpcmsg.UpdateRequest")
	proto.RegisterType((*UpdateResponse)(nil), "rpcmsg.UpdateResponse")
	proto.RegisterType((*ResourceUpdate)(nil), "rpcmsg.ResourceUpdate")
	proto.RegisterType((*BatchExecuteRequest)(nil), "rpcmsg.BatchExecuteRequest")
	proto.RegisterType((*BatchExecuteResponse)(nil), "rpcmsg.BatchExecuteResponse")
	proto.RegisterType((*CountPendingRequest)(nil), "rpcmsg.CountPendingRequest")
	proto.RegisterType((*CountPendingResponse)(nil), "rpcmsg.CountPendingResponse")
	proto.RegisterType((*PagePendingRequest)(nil), "rpcmsg.PagePendingRequest")
	proto.RegisterType((*PagePendingResponse)(nil), "rpcmsg.PagePendingResponse")
	proto.RegisterType((*ChangeNotification)(nil), "rpcmsg.ChangeNotification")
}
