package handler

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/rl1809/allocation/internal/core/domain"
)

const (
	serviceName = "allocation.v1.AllocationService"
	codecName   = "json"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec carries the plain request types below over gRPC. Clients must
// call with grpc.CallContentSubtype(codecName).
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

type AddBatchRequest struct {
	Ref string `json:"ref"`
	SKU string `json:"sku"`
	Qty int32  `json:"qty"`
	ETA string `json:"eta,omitempty"`
}

type AddBatchResponse struct{}

type AllocateRequest struct {
	RequestID string `json:"request_id,omitempty"`
	OrderID   string `json:"orderid"`
	SKU       string `json:"sku"`
	Qty       int32  `json:"qty"`
}

type AllocateResponse struct {
	BatchRef string `json:"batchref"`
}

type ChangeBatchQuantityRequest struct {
	Ref string `json:"ref"`
	Qty int32  `json:"qty"`
}

type ChangeBatchQuantityResponse struct{}

type AllocationsRequest struct {
	OrderID string `json:"orderid"`
}

type AllocationsResponse struct {
	Allocations []domain.Allocation `json:"allocations"`
}

type AllocationServiceServer interface {
	AddBatch(context.Context, *AddBatchRequest) (*AddBatchResponse, error)
	Allocate(context.Context, *AllocateRequest) (*AllocateResponse, error)
	ChangeBatchQuantity(context.Context, *ChangeBatchQuantityRequest) (*ChangeBatchQuantityResponse, error)
	Allocations(context.Context, *AllocationsRequest) (*AllocationsResponse, error)
}

var allocationServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AllocationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AddBatch", Handler: unaryHandler("AddBatch", AllocationServiceServer.AddBatch)},
		{MethodName: "Allocate", Handler: unaryHandler("Allocate", AllocationServiceServer.Allocate)},
		{MethodName: "ChangeBatchQuantity", Handler: unaryHandler("ChangeBatchQuantity", AllocationServiceServer.ChangeBatchQuantity)},
		{MethodName: "Allocations", Handler: unaryHandler("Allocations", AllocationServiceServer.Allocations)},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterAllocationServiceServer(s grpc.ServiceRegistrar, srv AllocationServiceServer) {
	s.RegisterService(&allocationServiceDesc, srv)
}

func unaryHandler[Req, Resp any](method string, call func(AllocationServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	fullMethod := "/" + serviceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AllocationServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(AllocationServiceServer), ctx, req.(*Req))
		})
	}
}

// AllocationServiceClient calls the service over an established connection.
type AllocationServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAllocationServiceClient(cc grpc.ClientConnInterface) *AllocationServiceClient {
	return &AllocationServiceClient{cc: cc}
}

func (c *AllocationServiceClient) AddBatch(ctx context.Context, in *AddBatchRequest, opts ...grpc.CallOption) (*AddBatchResponse, error) {
	out := new(AddBatchResponse)
	return out, c.invoke(ctx, "AddBatch", in, out, opts)
}

func (c *AllocationServiceClient) Allocate(ctx context.Context, in *AllocateRequest, opts ...grpc.CallOption) (*AllocateResponse, error) {
	out := new(AllocateResponse)
	return out, c.invoke(ctx, "Allocate", in, out, opts)
}

func (c *AllocationServiceClient) ChangeBatchQuantity(ctx context.Context, in *ChangeBatchQuantityRequest, opts ...grpc.CallOption) (*ChangeBatchQuantityResponse, error) {
	out := new(ChangeBatchQuantityResponse)
	return out, c.invoke(ctx, "ChangeBatchQuantity", in, out, opts)
}

func (c *AllocationServiceClient) Allocations(ctx context.Context, in *AllocationsRequest, opts ...grpc.CallOption) (*AllocationsResponse, error) {
	out := new(AllocationsResponse)
	return out, c.invoke(ctx, "Allocations", in, out, opts)
}

func (c *AllocationServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...)
}
