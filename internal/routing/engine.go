package routing

import (
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"mediation-router/internal/api"
	"mediation-router/internal/common/logging"
)

// Engine resolves requests against the APIs supplied by its source. It is safe
// for concurrent use; all state it reads is either immutable or an atomic
// snapshot.
type Engine struct {
	source      APISource
	dispatchers []Dispatcher
	observer    Observer
	logger      logging.Logger

	total            atomic.Int64
	matched          atomic.Int64
	apiNotFound      atomic.Int64
	resourceNotFound atomic.Int64
	badRequest       atomic.Int64
}

// Option configures an Engine
type Option func(*Engine)

// WithDispatchers replaces the default dispatcher chain. The chain is copied.
func WithDispatchers(dispatchers ...Dispatcher) Option {
	return func(e *Engine) {
		e.dispatchers = slices.Clone(dispatchers)
	}
}

// WithObserver registers an observer notified after every resolution
func WithObserver(observer Observer) Option {
	return func(e *Engine) {
		e.observer = observer
	}
}

// WithLogger sets the engine logger
func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// DefaultDispatchers returns a fresh URL-mapping, URI-template, catch-all chain
func DefaultDispatchers() []Dispatcher {
	return []Dispatcher{
		NewURLMappingDispatcher(),
		NewURITemplateDispatcher(),
		NewDefaultDispatcher(),
	}
}

// NewEngine builds an engine reading APIs from source
func NewEngine(source APISource, opts ...Option) (*Engine, error) {
	if source == nil {
		return nil, ErrNilTable
	}

	e := &Engine{
		source:      source,
		dispatchers: DefaultDispatchers(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if len(e.dispatchers) == 0 {
		return nil, ErrNoDispatchers
	}
	if e.logger == nil {
		e.logger = logging.GetGlobalLogger()
	}
	e.logger = e.logger.WithFields(logging.Field{Key: "component", Value: "routing"})
	return e, nil
}

// Dispatchers returns a copy of the dispatcher chain in priority order
func (e *Engine) Dispatchers() []Dispatcher {
	return slices.Clone(e.dispatchers)
}

// SelectAPI returns the API that serves req, with the per-request match.
// When req cannot be evaluated against a candidate, e.g. its query does not
// decode for a query-versioned API, that API is returned with match.Err set.
func (e *Engine) SelectAPI(req *api.Request) (*api.API, api.Match, bool) {
	snapshot := e.source.Snapshot()

	passes := []func(a *api.API) bool{
		func(a *api.API) bool { return !a.IsRoot() && a.Version.IsVersioned() },
		func(a *api.API) bool { return !a.IsRoot() && !a.Version.IsVersioned() },
		func(a *api.API) bool { return a.IsRoot() },
	}
	for _, eligible := range passes {
		for _, a := range snapshot {
			if !eligible(a) {
				continue
			}
			if m, ok := a.Match(req); ok || m.Err != nil {
				return a, m, true
			}
		}
	}

	return nil, api.Match{}, false
}

// AcceptableResources returns the resources of a that are bound to the
// request's caller and accept it, OPTIONS capable resources first. The order
// is otherwise the declaration order, and each resource appears once.
func (e *Engine) AcceptableResources(a *api.API, req *api.Request) []*api.Resource {
	accepted := lo.Filter(a.Resources, func(r *api.Resource, _ int) bool {
		return r.IsBound(req) && r.CanProcess(req)
	})
	options := lo.Filter(accepted, func(r *api.Resource, _ int) bool {
		return r.HasMethod(http.MethodOptions)
	})
	others := lo.Filter(accepted, func(r *api.Resource, _ int) bool {
		return !r.HasMethod(http.MethodOptions)
	})
	return lo.Uniq(append(options, others...))
}

// Resolve selects the API and resource for req
func (e *Engine) Resolve(req *api.Request) *Resolution {
	start := time.Now()
	res := e.resolve(req)
	res.ProcessingTime = time.Since(start)

	e.record(res)
	if e.observer != nil {
		e.observer.ObserveDispatch(res.Outcome, res.ProcessingTime)
	}
	return res
}

func (e *Engine) resolve(req *api.Request) *Resolution {
	selected, match, ok := e.SelectAPI(req)
	if !ok {
		e.logger.Debug("No API matched request",
			logging.String("method", req.Method),
			logging.String("path", req.FullPath()),
		)
		return &Resolution{Outcome: OutcomeAPINotFound}
	}

	res := &Resolution{
		API:     selected,
		Version: match.Version,
		Prefix:  match.Prefix,
		SubPath: match.SubPath,
	}

	query, err := req.Query()
	if match.Err != nil {
		err = match.Err
	}
	if err != nil {
		e.logger.Warn("Rejected request with malformed query",
			logging.String("api", selected.Name),
			logging.Err(err),
		)
		res.Outcome = OutcomeBadRequest
		res.Err = err
		return res
	}
	res.QueryParams = query

	target := Target{
		Method:   req.Method,
		SubPath:  match.SubPath,
		RawQuery: req.RawQuery(),
		Query:    query,
	}

	if resource, vars, ok := e.dispatch(target, e.AcceptableResources(selected, req)); ok {
		res.Outcome = OutcomeMatched
		res.Resource = resource
		res.PathParams = vars
		if req.Method == http.MethodOptions {
			res.Allowed = e.allowedMethods(selected, req, target)
		}
		e.logger.Debug("Located resource",
			logging.String("api", selected.Name),
			logging.String("version", match.Version),
			logging.String("resource", resource.String()),
		)
		return res
	}

	res.Outcome = OutcomeResourceNotFound
	res.Allowed = e.allowedMethods(selected, req, target)
	e.logger.Debug("No resource matched request",
		logging.String("api", selected.Name),
		logging.String("method", req.Method),
		logging.String("sub_path", match.SubPath),
		logging.Strings("allowed", res.Allowed),
	)
	return res
}

func (e *Engine) dispatch(target Target, candidates []*api.Resource) (*api.Resource, map[string]string, bool) {
	if len(candidates) == 0 {
		return nil, nil, false
	}
	for _, d := range e.dispatchers {
		if r, vars, ok := d.Dispatch(target, candidates); ok {
			return r, vars, true
		}
	}
	return nil, nil, false
}

// allowedMethods collects the methods of every bound resource whose path
// matches the target, whatever the request method.
func (e *Engine) allowedMethods(a *api.API, req *api.Request, target Target) []string {
	var allowed []string
	for _, r := range a.Resources {
		if !r.IsBound(req) || !r.AcceptsIgnoringMethod(req) {
			continue
		}
		if _, _, ok := e.dispatch(target, []*api.Resource{r}); ok {
			allowed = append(allowed, r.Methods...)
		}
	}
	return lo.Uniq(allowed)
}

func (e *Engine) record(res *Resolution) {
	e.total.Add(1)
	switch res.Outcome {
	case OutcomeMatched:
		e.matched.Add(1)
	case OutcomeAPINotFound:
		e.apiNotFound.Add(1)
	case OutcomeResourceNotFound:
		e.resourceNotFound.Add(1)
	case OutcomeBadRequest:
		e.badRequest.Add(1)
	}
}

// GetMetrics returns the resolution counters
func (e *Engine) GetMetrics() EngineMetrics {
	return EngineMetrics{
		TotalRequests:    e.total.Load(),
		Matched:          e.matched.Load(),
		APINotFound:      e.apiNotFound.Load(),
		ResourceNotFound: e.resourceNotFound.Load(),
		BadRequest:       e.badRequest.Load(),
	}
}
