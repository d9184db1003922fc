package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/castlane/timeline/internal/errs"
	"github.com/castlane/timeline/pkg/logging"
	"github.com/castlane/timeline/pkg/telemetry"
)

// JSONRPCRequest represents a JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC error
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// MethodHandler is a function that handles a JSON-RPC method
type MethodHandler func(ctx *gin.Context, params json.RawMessage) (interface{}, error)

// Limiter throttles mutating methods per caller
type Limiter interface {
	AllowRequest(c *gin.Context) bool
	RetryAfter() string
}

// JSONRPCHandler handles JSON-RPC requests
type JSONRPCHandler struct {
	methods  map[string]MethodHandler
	mutating map[string]bool
	limiter  Limiter
	logger   *zap.Logger
	duration metric.Float64Histogram
}

// NewJSONRPCHandler creates a new JSON-RPC handler
func NewJSONRPCHandler() *JSONRPCHandler {
	h := &JSONRPCHandler{
		methods:  make(map[string]MethodHandler),
		mutating: make(map[string]bool),
		logger:   logging.WithComponent("jsonrpc"),
	}
	duration, err := telemetry.Meter().Float64Histogram(
		"timeline_rpc_duration_seconds",
		metric.WithDescription("JSON-RPC method latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		h.logger.Warn("Failed to create rpc histogram", zap.Error(err))
	}
	h.duration = duration
	return h
}

// RegisterMethod registers a method handler
func (h *JSONRPCHandler) RegisterMethod(method string, handler MethodHandler) {
	h.methods[method] = handler
}

// RegisterMutation registers a method handler subject to rate limiting
func (h *JSONRPCHandler) RegisterMutation(method string, handler MethodHandler) {
	h.methods[method] = handler
	h.mutating[method] = true
}

// SetLimiter enables rate limiting of mutating methods
func (h *JSONRPCHandler) SetLimiter(l Limiter) {
	h.limiter = l
}

// Methods returns the registered method names
func (h *JSONRPCHandler) Methods() []string {
	out := make([]string, 0, len(h.methods))
	for m := range h.methods {
		out = append(out, m)
	}
	return out
}

// Handle handles a JSON-RPC request
func (h *JSONRPCHandler) Handle(c *gin.Context) {
	var req JSONRPCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.sendError(c, nil, ErrParseError, "Parse error", err)
		return
	}

	if req.JSONRPC != "2.0" {
		h.sendError(c, req.ID, ErrInvalidRequest, "Invalid Request", fmt.Errorf("invalid jsonrpc version"))
		return
	}

	handler, ok := h.methods[req.Method]
	if !ok {
		h.sendError(c, req.ID, ErrMethodNotFound, "Method not found", fmt.Errorf("method %s not found", req.Method))
		return
	}

	if h.mutating[req.Method] && h.limiter != nil && !h.limiter.AllowRequest(c) {
		c.Header("Retry-After", h.limiter.RetryAfter())
		c.JSON(http.StatusTooManyRequests, JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &JSONRPCError{Code: ErrRateLimited, Message: "Too many requests"},
		})
		return
	}

	ctx, span := telemetry.StartSpan(c.Request.Context(), "jsonrpc."+req.Method,
		trace.WithAttributes(attribute.String("rpc.method", req.Method)))
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	start := time.Now()
	result, err := handler(c, req.Params)
	if h.duration != nil {
		h.duration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("method", req.Method), attribute.Bool("error", err != nil)))
	}
	if err != nil {
		telemetry.RecordError(span, err)
		h.sendMethodError(c, req, err)
		return
	}

	h.sendResponse(c, req.ID, result)
}

// sendResponse sends a successful JSON-RPC response
func (h *JSONRPCHandler) sendResponse(c *gin.Context, id interface{}, result interface{}) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	c.JSON(http.StatusOK, resp)
}

// sendMethodError reports a handler failure, hiding internal details from the client
func (h *JSONRPCHandler) sendMethodError(c *gin.Context, req JSONRPCRequest, err error) {
	kind := errs.KindOf(err)
	logger := logging.WithContext(c.Request.Context()).With(
		zap.String("method", req.Method),
		zap.String("kind", kind.String()),
	)
	if kind == errs.Internal {
		logger.Error("JSON-RPC method failed", zap.Error(err))
	} else {
		logger.Debug("JSON-RPC method rejected", zap.Error(err))
	}

	c.JSON(http.StatusOK, JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Error: &JSONRPCError{
			Code:    ErrorCode(err),
			Message: errs.Message(err),
			Data:    kind.String(),
		},
	})
}

// sendError sends a protocol-level JSON-RPC error
func (h *JSONRPCHandler) sendError(c *gin.Context, id interface{}, code int, message string, err error) {
	var data interface{}
	if err != nil {
		h.logger.Warn("JSON-RPC error", zap.String("message", message), zap.Error(err))
		data = err.Error()
	}

	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
	c.JSON(http.StatusOK, resp)
}
