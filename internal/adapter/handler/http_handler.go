package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/core/service"
	"github.com/rl1809/allocation/internal/port"
)

const requestIDHeader = "X-Request-ID"

type HTTPHandler struct {
	allocator
	view   port.AllocationsView
	logger *zap.Logger
}

type AddBatchHTTPRequest struct {
	Ref string  `json:"ref"`
	SKU string  `json:"sku"`
	Qty int     `json:"qty"`
	ETA *string `json:"eta"`
}

type AllocateHTTPRequest struct {
	RequestID string `json:"request_id"`
	OrderID   string `json:"orderid"`
	SKU       string `json:"sku"`
	Qty       int    `json:"qty"`
}

type AllocateHTTPResponse struct {
	BatchRef string `json:"batchref"`
}

type ChangeQuantityHTTPRequest struct {
	Qty int `json:"qty"`
}

type ErrorHTTPResponse struct {
	Message string `json:"message"`
}

// NewHTTPHandler builds the HTTP API. idempotency may be nil.
func NewHTTPHandler(bus Dispatcher, view port.AllocationsView, idempotency port.IdempotencyStore, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		allocator: allocator{bus: bus, idempotency: idempotency},
		view:      view,
		logger:    logger,
	}
}

// Routes returns the API mux wrapped in request logging.
func (h *HTTPHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("POST /batches", h.AddBatch)
	mux.HandleFunc("POST /batches/{ref}/quantity", h.ChangeBatchQuantity)
	mux.HandleFunc("POST /allocate", h.Allocate)
	mux.HandleFunc("GET /allocations/{orderid}", h.Allocations)
	return h.logRequests(mux)
}

func (h *HTTPHandler) AddBatch(w http.ResponseWriter, r *http.Request) {
	var req AddBatchHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Message: "invalid request body"})
		return
	}
	if req.Ref == "" || req.SKU == "" {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Message: "missing required fields"})
		return
	}

	var etaValue string
	if req.ETA != nil {
		etaValue = *req.ETA
	}
	eta, err := parseETA(etaValue)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	cmd := domain.CreateBatch{Ref: req.Ref, SKU: req.SKU, Qty: req.Qty, ETA: eta}
	if _, err := h.bus.Handle(r.Context(), cmd); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"ref": req.Ref})
}

func (h *HTTPHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	var req AllocateHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Message: "invalid request body"})
		return
	}
	if req.OrderID == "" || req.SKU == "" {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Message: "missing required fields"})
		return
	}

	cmd := domain.Allocate{OrderID: req.OrderID, SKU: req.SKU, Qty: req.Qty}
	batchRef, err := h.allocate(r.Context(), req.RequestID, cmd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, AllocateHTTPResponse{BatchRef: batchRef})
}

func (h *HTTPHandler) ChangeBatchQuantity(w http.ResponseWriter, r *http.Request) {
	var req ChangeQuantityHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Message: "invalid request body"})
		return
	}

	cmd := domain.ChangeBatchQuantity{Ref: r.PathValue("ref"), Qty: req.Qty}
	if _, err := h.bus.Handle(r.Context(), cmd); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ref": cmd.Ref, "qty": cmd.Qty})
}

func (h *HTTPHandler) Allocations(w http.ResponseWriter, r *http.Request) {
	rows, err := h.view.ForOrder(r.Context(), r.PathValue("orderid"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(rows) == 0 {
		writeJSON(w, http.StatusNotFound, ErrorHTTPResponse{Message: "not found"})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", w.Header().Get(requestIDHeader)),
			zap.Error(err),
		)
		message = "internal error"
	}
	writeJSON(w, status, ErrorHTTPResponse{Message: message})
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidSku),
		errors.Is(err, domain.ErrSkuMismatch),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, ErrInvalidETA),
		errors.Is(err, ErrOutOfStock):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownBatch), errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, port.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, ErrDuplicateRequest):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *HTTPHandler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		h.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", requestID),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
