// Package handlers holds the gateway's HTTP surfaces: the catch-all gateway
// handler that resolves and mediates requests, and the admin API.
package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"sync"
	"time"

	"mediation-router/internal/apitable"
	"mediation-router/internal/circuitbreaker"
	"mediation-router/internal/common/errors"
	"mediation-router/internal/common/logging"
	"mediation-router/internal/connpool"
	"mediation-router/internal/deployer"
	"mediation-router/internal/routing"
)

type Handlers struct {
	engine   *routing.Engine
	deployer *deployer.Deployer
	pool     *connpool.Pool
	breakers *circuitbreaker.Manager
	mediator Mediator
	logger   logging.Logger
	started  time.Time

	checksMu sync.RWMutex
	checks   map[string]func() error
}

// New creates the handlers. pool and breakers may be nil when forwarding is
// not configured; mediator defaults to EchoMediator.
func New(engine *routing.Engine, dep *deployer.Deployer, pool *connpool.Pool, breakers *circuitbreaker.Manager, mediator Mediator, logger logging.Logger) *Handlers {
	if mediator == nil {
		mediator = EchoMediator{}
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Handlers{
		engine:   engine,
		deployer: dep,
		pool:     pool,
		breakers: breakers,
		mediator: mediator,
		logger:   logger.WithFields(logging.Field{Key: "component", Value: "handlers"}),
		started:  time.Now(),
		checks:   make(map[string]func() error),
	}
}

// AddHealthCheck registers a dependency check reported by /health
func (h *Handlers) AddHealthCheck(name string, check func() error) {
	h.checksMu.Lock()
	defer h.checksMu.Unlock()
	h.checks[name] = check
}

type errorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message,omitempty"`
	Allowed []string `json:"allowed,omitempty"`
}

func (h *Handlers) sendJSONResponse(w http.ResponseWriter, data interface{}) {
	h.sendJSONStatus(w, http.StatusOK, data)
}

func (h *Handlers) sendJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := encodeJSON(w, data); err != nil {
		h.logger.Error("Failed to encode response", err)
	}
}

// sendJSONError logs err with logMsg when err is set and answers with code
// and userMsg
func (h *Handlers) sendJSONError(w http.ResponseWriter, err error, logMsg, code, userMsg string, status int) {
	if err != nil {
		if status >= http.StatusInternalServerError {
			h.logger.Error(logMsg, err)
		} else {
			h.logger.Debug(logMsg, logging.Err(err))
		}
	}
	h.sendJSONStatus(w, status, errorResponse{Error: code, Message: userMsg})
}

// statusFor maps an error to the HTTP status and error code sent to clients
func statusFor(err error) (int, string) {
	if stderrors.Is(err, apitable.ErrAmbiguousAPI) {
		return http.StatusConflict, "conflict"
	}
	if stderrors.Is(err, connpool.ErrPoolClosed) {
		return http.StatusServiceUnavailable, "unavailable"
	}

	switch errors.GetType(err) {
	case errors.ErrTypeBadRequest:
		return http.StatusBadRequest, "bad_request"
	case errors.ErrTypeValidation, errors.ErrTypeConfig:
		return http.StatusBadRequest, "invalid_definition"
	case errors.ErrTypeNotFound:
		return http.StatusNotFound, "not_found"
	case errors.ErrTypeConflict:
		return http.StatusConflict, "conflict"
	case errors.ErrTypeExhausted:
		return http.StatusServiceUnavailable, "backend_busy"
	case errors.ErrTypeConnection:
		return http.StatusBadGateway, "backend_unavailable"
	case errors.ErrTypeTimeout:
		return http.StatusGatewayTimeout, "backend_timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func encodeJSON(w http.ResponseWriter, data interface{}) error {
	return json.NewEncoder(w).Encode(data)
}
