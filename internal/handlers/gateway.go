package handlers

import (
	"net/http"
	"sort"
	"strings"

	"mediation-router/internal/api"
	"mediation-router/internal/common/logging"
	"mediation-router/internal/routing"
)

// Mediator carries a resolved request through the mediation pipeline. It must
// write the response unless it returns an error, in which case the gateway
// answers on its behalf.
type Mediator interface {
	Mediate(w http.ResponseWriter, r *http.Request, res *routing.Resolution) error
}

// MediatorFunc adapts a function to Mediator
type MediatorFunc func(w http.ResponseWriter, r *http.Request, res *routing.Resolution) error

func (f MediatorFunc) Mediate(w http.ResponseWriter, r *http.Request, res *routing.Resolution) error {
	return f(w, r, res)
}

// Gateway resolves every inbound request against the deployed APIs and hands
// matches to the mediator.
func (h *Handlers) Gateway(w http.ResponseWriter, r *http.Request) {
	res := h.engine.Resolve(api.FromHTTP(r))

	switch res.Outcome {
	case routing.OutcomeBadRequest:
		h.sendJSONError(w, res.Err, "Malformed request", "bad_request", "request could not be decoded", http.StatusBadRequest)
		return

	case routing.OutcomeAPINotFound:
		h.sendJSONError(w, nil, "", routing.OutcomeAPINotFound.String(), "no api matches "+r.URL.Path, http.StatusNotFound)
		return

	case routing.OutcomeResourceNotFound:
		if !res.MethodNotAllowed() {
			h.sendJSONError(w, nil, "", routing.OutcomeResourceNotFound.String(),
				"api "+res.API.Name+" has no resource for "+r.Method+" "+res.SubPath, http.StatusNotFound)
			return
		}
		setAllow(w, res.Allowed)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.sendJSONStatus(w, http.StatusMethodNotAllowed, errorResponse{
			Error:   "method_not_allowed",
			Message: r.Method + " is not supported by " + res.SubPath,
			Allowed: res.Allowed,
		})
		return
	}

	if r.Method == http.MethodOptions && !res.Resource.HasMethod(http.MethodOptions) {
		setAllow(w, res.Allowed)
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx := logging.ContextWithAPI(r.Context(), res.API.Name)
	r = r.WithContext(ctx)

	if err := h.mediator.Mediate(w, r, res); err != nil {
		status, code := statusFor(err)
		h.logger.WithContext(ctx).Warn("Mediation failed",
			logging.String("resource", res.Resource.String()),
			logging.Int("status", status),
			logging.Err(err),
		)
		h.sendJSONStatus(w, status, errorResponse{Error: code, Message: http.StatusText(status)})
	}
}

func setAllow(w http.ResponseWriter, methods []string) {
	allowed := append([]string(nil), methods...)
	sort.Strings(allowed)
	w.Header().Set("Allow", strings.Join(allowed, ", "))
}

// EchoMediator answers with a JSON description of the resolution. It stands in
// for the pipeline when no resource endpoints are configured.
type EchoMediator struct{}

type echoResponse struct {
	API         string            `json:"api"`
	Context     string            `json:"context"`
	Version     string            `json:"version,omitempty"`
	Resource    string            `json:"resource"`
	Method      string            `json:"method"`
	Prefix      string            `json:"prefix"`
	SubPath     string            `json:"subPath"`
	PathParams  map[string]string `json:"pathParams,omitempty"`
	QueryParams map[string]string `json:"queryParams,omitempty"`
	Caller      string            `json:"caller,omitempty"`
	RequestID   string            `json:"requestId,omitempty"`
	DispatchUS  int64             `json:"dispatchMicros"`
}

func (EchoMediator) Mediate(w http.ResponseWriter, r *http.Request, res *routing.Resolution) error {
	body := echoResponse{
		API:         res.API.Name,
		Context:     res.API.EffectiveContext(),
		Version:     res.Version,
		Resource:    res.Resource.String(),
		Method:      r.Method,
		Prefix:      res.Prefix,
		SubPath:     res.SubPath,
		PathParams:  res.PathParams,
		QueryParams: res.QueryParams,
		Caller:      r.Header.Get(api.CallerHeader),
		RequestID:   logging.RequestIDFromContext(r.Context()),
		DispatchUS:  res.ProcessingTime.Microseconds(),
	}

	w.Header().Set("Content-Type", "application/json")
	return encodeJSON(w, body)
}
