package handler

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/core/service"
	"github.com/rl1809/allocation/internal/port"
)

type GRPCHandler struct {
	allocator
	view   port.AllocationsView
	logger *zap.Logger
}

var _ AllocationServiceServer = (*GRPCHandler)(nil)

// NewGRPCHandler builds the gRPC API. idempotency may be nil.
func NewGRPCHandler(bus Dispatcher, view port.AllocationsView, idempotency port.IdempotencyStore, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{
		allocator: allocator{bus: bus, idempotency: idempotency},
		view:      view,
		logger:    logger,
	}
}

func (h *GRPCHandler) AddBatch(ctx context.Context, req *AddBatchRequest) (*AddBatchResponse, error) {
	if req.Ref == "" || req.SKU == "" {
		return nil, status.Error(codes.InvalidArgument, "missing required fields")
	}
	eta, err := parseETA(req.ETA)
	if err != nil {
		return nil, h.toStatus(err)
	}
	cmd := domain.CreateBatch{Ref: req.Ref, SKU: req.SKU, Qty: int(req.Qty), ETA: eta}
	if _, err := h.bus.Handle(ctx, cmd); err != nil {
		return nil, h.toStatus(err)
	}
	return &AddBatchResponse{}, nil
}

func (h *GRPCHandler) Allocate(ctx context.Context, req *AllocateRequest) (*AllocateResponse, error) {
	if req.OrderID == "" || req.SKU == "" {
		return nil, status.Error(codes.InvalidArgument, "missing required fields")
	}
	cmd := domain.Allocate{OrderID: req.OrderID, SKU: req.SKU, Qty: int(req.Qty)}
	batchRef, err := h.allocate(ctx, req.RequestID, cmd)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &AllocateResponse{BatchRef: batchRef}, nil
}

func (h *GRPCHandler) ChangeBatchQuantity(ctx context.Context, req *ChangeBatchQuantityRequest) (*ChangeBatchQuantityResponse, error) {
	cmd := domain.ChangeBatchQuantity{Ref: req.Ref, Qty: int(req.Qty)}
	if _, err := h.bus.Handle(ctx, cmd); err != nil {
		return nil, h.toStatus(err)
	}
	return &ChangeBatchQuantityResponse{}, nil
}

func (h *GRPCHandler) Allocations(ctx context.Context, req *AllocationsRequest) (*AllocationsResponse, error) {
	rows, err := h.view.ForOrder(ctx, req.OrderID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	if len(rows) == 0 {
		return nil, h.toStatus(ErrNotFound)
	}
	return &AllocationsResponse{Allocations: rows}, nil
}

func (h *GRPCHandler) toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, service.ErrInvalidSku),
		errors.Is(err, domain.ErrSkuMismatch),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, ErrInvalidETA):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrUnknownBatch), errors.Is(err, ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, port.ErrConcurrencyConflict):
		code = codes.Aborted
	case errors.Is(err, ErrDuplicateRequest):
		code = codes.AlreadyExists
	case errors.Is(err, ErrOutOfStock):
		code = codes.FailedPrecondition
	default:
		h.logger.Error("grpc request failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}
