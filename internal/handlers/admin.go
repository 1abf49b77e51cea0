package handlers

import (
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"mediation-router/internal/circuitbreaker"
	"mediation-router/internal/common/logging"
	"mediation-router/internal/connpool"
	"mediation-router/internal/deployer"
	"mediation-router/internal/routing"
)

const maxDefinitionSize = 1 << 20

// APISummary is the admin listing entry for one deployed API
type APISummary struct {
	Name             string `json:"name"`
	Context          string `json:"context"`
	EffectiveContext string `json:"effectiveContext"`
	Version          string `json:"version"`
	Host             string `json:"host,omitempty"`
	Port             int    `json:"port,omitempty"`
	Specificity      int    `json:"specificity"`
	Resources        int    `json:"resources"`
}

// PoolStatus is the admin view of the connection router
type PoolStatus struct {
	Leased      int                    `json:"leased"`
	Idle        int                    `json:"idle"`
	MaxPerRoute int                    `json:"maxPerRoute"`
	Routes      []connpool.Stats       `json:"routes"`
	Breakers    []circuitbreaker.Stats `json:"breakers"`
}

// ListAPIs returns the deployed APIs
// @Summary List deployed APIs
// @Description Returns every deployed API in dispatch order
// @Tags apis
// @Produce json
// @Success 200 {array} APISummary "Deployed APIs"
// @Router /admin/apis [get]
func (h *Handlers) ListAPIs(w http.ResponseWriter, r *http.Request) {
	apis := h.deployer.Table().Snapshot()
	summaries := make([]APISummary, 0, len(apis))
	for _, a := range apis {
		summaries = append(summaries, APISummary{
			Name:             a.Name,
			Context:          a.Context,
			EffectiveContext: a.EffectiveContext(),
			Version:          a.Version.String(),
			Host:             a.Host,
			Port:             a.Port,
			Specificity:      a.Specificity(),
			Resources:        len(a.Resources),
		})
	}
	h.sendJSONResponse(w, summaries)
}

// GetAPI returns one API definition
// @Summary Get API definition
// @Description Returns the definition the named API was deployed from
// @Tags apis
// @Produce json
// @Param name path string true "API name"
// @Success 200 {object} deployer.Definition "API definition"
// @Failure 404 {object} errorResponse "API not found"
// @Router /admin/apis/{name} [get]
func (h *Handlers) GetAPI(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	def, ok := h.deployer.Definition(name)
	if !ok {
		h.sendJSONError(w, nil, "", "not_found", "api "+name+" is not deployed", http.StatusNotFound)
		return
	}
	h.sendJSONResponse(w, def)
}

// PutAPI deploys or redeploys an API
// @Summary Deploy API
// @Description Deploys the definition in the body, in YAML or JSON, replacing an API of the same name
// @Tags apis
// @Accept json
// @Accept yaml
// @Produce json
// @Param name path string true "API name"
// @Success 200 {object} deployer.Definition "Deployed definition"
// @Failure 400 {object} errorResponse "Invalid definition"
// @Failure 409 {object} errorResponse "Context and version clash with another API"
// @Router /admin/apis/{name} [put]
func (h *Handlers) PutAPI(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	body, err := io.ReadAll(io.LimitReader(r.Body, maxDefinitionSize+1))
	if err != nil {
		h.sendJSONError(w, err, "Failed to read definition", "bad_request", "failed to read request body", http.StatusBadRequest)
		return
	}
	if len(body) > maxDefinitionSize {
		h.sendJSONError(w, nil, "", "bad_request", "definition is too large", http.StatusRequestEntityTooLarge)
		return
	}

	def, err := deployer.Parse(body)
	if err != nil {
		status, code := statusFor(err)
		h.sendJSONError(w, err, "Rejected api definition", code, err.Error(), status)
		return
	}
	if def.Name == "" {
		def.Name = name
	}
	if def.Name != name {
		h.sendJSONError(w, nil, "", "bad_request", "definition name "+def.Name+" does not match "+name, http.StatusBadRequest)
		return
	}

	if err := h.deployer.Deploy(def); err != nil {
		status, code := statusFor(err)
		h.sendJSONError(w, err, "Failed to deploy api", code, err.Error(), status)
		return
	}

	h.logger.WithContext(r.Context()).Info("API deployed through admin api", logging.String("api", name))
	deployed, _ := h.deployer.Definition(name)
	h.sendJSONResponse(w, deployed)
}

// DeleteAPI undeploys an API
// @Summary Undeploy API
// @Tags apis
// @Param name path string true "API name"
// @Success 204 "API undeployed"
// @Failure 404 {object} errorResponse "API not found"
// @Router /admin/apis/{name} [delete]
func (h *Handlers) DeleteAPI(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.deployer.Undeploy(name); err != nil {
		status, code := statusFor(err)
		h.sendJSONError(w, err, "Failed to undeploy api", code, "api "+name+" is not deployed", status)
		return
	}

	h.logger.WithContext(r.Context()).Info("API undeployed through admin api", logging.String("api", name))
	w.WriteHeader(http.StatusNoContent)
}

// ReorderAPIs re-sorts the API table
// @Summary Reorder APIs
// @Description Re-sorts the table by context specificity and returns the new dispatch order
// @Tags apis
// @Produce json
// @Success 200 {object} map[string][]string "Dispatch order"
// @Router /admin/apis/reorder [post]
func (h *Handlers) ReorderAPIs(w http.ResponseWriter, r *http.Request) {
	h.deployer.Reorder()
	h.sendJSONResponse(w, map[string][]string{"order": h.deployer.Table().Names()})
}

// GetPool returns connection router and circuit breaker state
// @Summary Connection pool status
// @Tags pool
// @Produce json
// @Success 200 {object} PoolStatus "Pool status"
// @Router /admin/pool [get]
func (h *Handlers) GetPool(w http.ResponseWriter, r *http.Request) {
	status := PoolStatus{
		Routes:   []connpool.Stats{},
		Breakers: []circuitbreaker.Stats{},
	}
	if h.pool != nil {
		status.Leased, status.Idle = h.pool.Totals()
		status.MaxPerRoute = h.pool.MaxPerRoute()
		status.Routes = h.pool.AllStats()
	}
	if h.breakers != nil {
		status.Breakers = h.breakers.AllStats()
	}
	h.sendJSONResponse(w, status)
}

// GetStats returns dispatch counters
// @Summary Dispatch statistics
// @Tags statistics
// @Produce json
// @Success 200 {object} routing.EngineMetrics "Dispatch counters"
// @Router /admin/stats [get]
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	h.sendJSONResponse(w, h.engine.GetMetrics())
}

type healthResponse struct {
	Status    string                `json:"status"`
	Timestamp time.Time             `json:"timestamp"`
	Uptime    string                `json:"uptime"`
	APIs      int                   `json:"apis"`
	Dispatch  routing.EngineMetrics `json:"dispatch"`
	Checks    map[string]string     `json:"checks,omitempty"`
}

// HealthCheck reports gateway health
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} healthResponse "Healthy"
// @Failure 503 {object} healthResponse "A dependency is unhealthy"
// @Router /health [get]
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		APIs:      h.deployer.Table().Len(),
		Dispatch:  h.engine.GetMetrics(),
	}

	h.checksMu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		health.Checks = make(map[string]string, len(names))
	}
	for _, name := range names {
		if err := h.checks[name](); err != nil {
			health.Status = "degraded"
			health.Checks[name] = err.Error()
			h.logger.Warn("Health check failed", logging.String("check", name), logging.Err(err))
			continue
		}
		health.Checks[name] = "ok"
	}
	h.checksMu.RUnlock()

	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	h.sendJSONStatus(w, status, health)
}

