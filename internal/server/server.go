package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/copyleftdev/hyperopt/internal/config"
	"github.com/copyleftdev/hyperopt/internal/logging"
	"github.com/copyleftdev/hyperopt/internal/metrics"
	"github.com/copyleftdev/hyperopt/internal/objectives"
	"github.com/copyleftdev/hyperopt/internal/optimization"
	"github.com/copyleftdev/hyperopt/pkg/hyperopt"
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeNotFound       = -32001
	codeBusy           = -32002
	codeFinished       = -32003
)

// Server implements the HTTP and JSON-RPC server for the optimization service.
// It manages optimization jobs and provides endpoints to start, monitor, and cancel them.
type Server struct {
	cfg       *config.Config
	logger    *logging.Logger
	metrics   *metrics.Metrics
	newSearch optimization.SearchFactory

	// Optimization state management
	optimizations   map[string]*OptimizationState
	optimizationsMu sync.RWMutex // Protects optimizations, running and every state
	running         int
	wg              sync.WaitGroup
}

// NewServer creates a new server instance. m may be nil.
func NewServer(cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		metrics:       m,
		newSearch:     hyperopt.NewSearch,
		optimizations: make(map[string]*OptimizationState),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", s.handleHealth)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/optimize", s.handleOptimize)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/optimization/{id}", s.handleCancel)
		r.Get("/objectives", s.handleObjectives)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// Close cancels every running optimization and waits for them to stop.
func (s *Server) Close() error {
	s.optimizationsMu.Lock()
	for _, opt := range s.optimizations {
		if opt.CancelFunc != nil {
			opt.CancelFunc()
		}
	}
	s.optimizationsMu.Unlock()

	s.wg.Wait()
	return nil
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, &rpcError{Code: codeParseError, Message: "Parse error"}, nil)
		return
	}

	if request.JSONRPC != "2.0" || request.Method == "" {
		s.respondWithError(w, &rpcError{Code: codeInvalidRequest, Message: "Invalid Request"}, request.ID)
		return
	}

	params, err := decodeParams(request.Params)
	if err != nil {
		s.respondWithError(w, &rpcError{Code: codeInvalidParams, Message: err.Error()}, request.ID)
		return
	}

	var result interface{}
	switch request.Method {
	case "optimization.start":
		var state *OptimizationState
		state, err = s.startOptimization(fromParams(params))
		if err == nil {
			result = map[string]interface{}{"optimization_id": state.ID, "status": StatusPending}
		}
	case "optimization.status":
		result, err = s.optimizationStatus(stringParam(params, "optimization_id"))
	case "optimization.cancel":
		err = s.cancelOptimization(stringParam(params, "optimization_id"))
		if err == nil {
			result = map[string]string{"status": "cancellation requested"}
		}
	default:
		s.respondWithError(w, &rpcError{Code: codeMethodNotFound, Message: "Method not found"}, request.ID)
		return
	}

	if err != nil {
		s.respondWithError(w, toRPCError(err), request.ID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

// decodeParams accepts either a params object or a positional array whose
// first element is the params object.
func decodeParams(raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if list, ok := v.([]interface{}); ok {
		if len(list) == 0 {
			return map[string]interface{}{}, nil
		}
		v = list[0]
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, errors.New("invalid parameter format, expected object")
	}
	return m, nil
}

func stringParam(params map[string]interface{}, key string) string {
	v, _ := params[key].(string)
	return v
}

func toRPCError(err error) *rpcError {
	if oerr, ok := optimization.IsOptimizationError(err); ok {
		return &rpcError{
			Code:    codeInvalidParams,
			Message: oerr.Error(),
			Data:    map[string]string{"kind": oerr.Kind.String()},
		}
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return &rpcError{Code: codeNotFound, Message: err.Error()}
	case errors.Is(err, ErrBusy):
		return &rpcError{Code: codeBusy, Message: err.Error()}
	case errors.Is(err, ErrFinished):
		return &rpcError{Code: codeFinished, Message: err.Error()}
	default:
		return &rpcError{Code: codeServerError, Message: "Server error"}
	}
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, rerr *rpcError, id interface{}) {
	s.logger.Warn("JSON-RPC error", map[string]interface{}{
		"code":    rerr.Code,
		"message": rerr.Message,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error":   rerr,
		"id":      id,
	})
}

// httpStatus maps a service error onto an HTTP status and error body.
func httpStatus(err error) (int, map[string]interface{}) {
	body := map[string]interface{}{"error": err.Error()}
	if oerr, ok := optimization.IsOptimizationError(err); ok {
		body["kind"] = oerr.Kind.String()
		return http.StatusBadRequest, body
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, body
	case errors.Is(err, ErrBusy):
		return http.StatusTooManyRequests, body
	case errors.Is(err, ErrFinished):
		return http.StatusConflict, body
	default:
		return http.StatusInternalServerError, map[string]interface{}{"error": http.StatusText(http.StatusInternalServerError)}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, body := httpStatus(err)
	writeJSON(w, status, body)
}

// handleOptimize handles POST /api/v1/optimize.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var body startRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body: " + err.Error(),
		})
		return
	}

	state, err := s.startOptimization(body)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"optimization_id": state.ID,
		"status":          StatusPending,
	})
}

// handleStatus handles GET /api/v1/status/{id}.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.optimizationStatus(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCancel handles DELETE /api/v1/optimization/{id}.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.cancelOptimization(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "cancellation requested",
	})
}

// handleObjectives handles GET /api/v1/objectives.
func (s *Server) handleObjectives(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"objectives": objectives.List(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.optimizationsMu.RLock()
	running := s.running
	s.optimizationsMu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"active_jobs": running,
	})
}
