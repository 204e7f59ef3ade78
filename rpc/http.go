package rpc

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"lendpool/observability"
	"lendpool/pool"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// Server exposes the lending engine over JSON-RPC.
type Server struct {
	engine    *pool.Engine
	logger    *slog.Logger
	authToken string
	limiter   *rate.Limiter
	metrics   *observability.PoolMetrics
}

// Options carry the optional wiring for the RPC server.
type Options struct {
	AuthToken       string
	RateLimitPerSec int
	Logger          *slog.Logger
}

func NewServer(engine *pool.Engine, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	perSec := opts.RateLimitPerSec
	if perSec <= 0 {
		perSec = 50
	}
	return &Server{
		engine:    engine,
		logger:    logger,
		authToken: strings.TrimSpace(opts.AuthToken),
		limiter:   rate.NewLimiter(rate.Limit(perSec), perSec*2),
		metrics:   observability.Pool(),
	}
}

// Router assembles the HTTP surface: the JSON-RPC endpoint plus health and
// Prometheus scrape routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/rpc", s.handle)
	return otelhttp.NewHandler(r, "lendpool.rpc")
}

// Serve runs the HTTP server until the context is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("json-rpc server listening", "addr", addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to read request body", err.Error())
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", nil)
		return
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	opID := uuid.NewString()
	start := time.Now()
	logger := s.logger.With("method", method, "op_id", opID)

	handler, ok := s.methods()[method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", method)
		return
	}
	if mutatingMethods[method] {
		if authErr := s.requireAuth(r); authErr != nil {
			s.metrics.RecordOp(method, "unauthorized", time.Since(start))
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}
	handler(w, r, &req, logger)
	s.metrics.RecordOp(method, "handled", time.Since(start))
}

type handlerFunc func(http.ResponseWriter, *http.Request, *RPCRequest, *slog.Logger)

var mutatingMethods = map[string]bool{
	"lend_accrue":               true,
	"lend_lend":                 true,
	"lend_withdraw":             true,
	"lend_borrow":               true,
	"lend_repay":                true,
	"lend_repayFull":            true,
	"lend_setCollateral":        true,
	"lend_liquidate":            true,
	"lend_withdrawProtocolFees": true,
}

func (s *Server) methods() map[string]handlerFunc {
	return map[string]handlerFunc{
		"lend_getReserve":           s.handleGetReserve,
		"lend_getPools":             s.handleGetPools,
		"lend_getPosition":          s.handleGetPosition,
		"lend_getAccountData":       s.handleGetAccountData,
		"lend_accrue":               s.handleAccrue,
		"lend_lend":                 s.handleLend,
		"lend_withdraw":             s.handleWithdraw,
		"lend_borrow":               s.handleBorrow,
		"lend_repay":                s.handleRepay,
		"lend_repayFull":            s.handleRepayFull,
		"lend_setCollateral":        s.handleSetCollateral,
		"lend_liquidate":            s.handleLiquidate,
		"lend_withdrawProtocolFees": s.handleWithdrawProtocolFees,
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

// errStatus maps engine sentinel errors to HTTP status and JSON-RPC codes.
func errStatus(err error) (int, int) {
	switch {
	case errors.Is(err, pool.ErrAssetNotInitialized),
		errors.Is(err, pool.ErrNoDebt):
		return http.StatusNotFound, codeInvalidParams
	case errors.Is(err, pool.ErrZeroAmount),
		errors.Is(err, pool.ErrAssetAlreadyInitialized):
		return http.StatusBadRequest, codeInvalidParams
	case errors.Is(err, pool.ErrPaused),
		errors.Is(err, pool.ErrAssetNotBorrowable),
		errors.Is(err, pool.ErrInsufficientLiquidity),
		errors.Is(err, pool.ErrHealthFactorTooLow),
		errors.Is(err, pool.ErrBorrowCapExceeded),
		errors.Is(err, pool.ErrNotLiquidatable):
		return http.StatusConflict, codeServerError
	case errors.Is(err, pool.ErrPriceUnavailable):
		return http.StatusServiceUnavailable, codeServerError
	default:
		return http.StatusInternalServerError, codeServerError
	}
}
