package routing

import (
	"time"

	"mediation-router/internal/api"
)

// Outcome classifies the result of resolving a request
type Outcome int

const (
	// OutcomeMatched means an API and one of its resources were selected
	OutcomeMatched Outcome = iota
	// OutcomeAPINotFound means no deployed API accepts the request
	OutcomeAPINotFound
	// OutcomeResourceNotFound means an API was selected but none of its resources accept the request
	OutcomeResourceNotFound
	// OutcomeBadRequest means the request could not be decoded
	OutcomeBadRequest
)

// String returns the label used in responses and metrics
func (o Outcome) String() string {
	switch o {
	case OutcomeMatched:
		return "matched"
	case OutcomeAPINotFound:
		return "api_not_found"
	case OutcomeResourceNotFound:
		return "resource_not_found"
	case OutcomeBadRequest:
		return "bad_request"
	default:
		return "unknown"
	}
}

// Resolution is the per-request result of dispatch. It carries everything the
// mediation pipeline needs, including the version selected for this request.
type Resolution struct {
	Outcome  Outcome
	API      *api.API
	Resource *api.Resource

	// Version is the version token the API accepted, empty for unversioned APIs
	Version string
	// Prefix is the consumed context (and version) part of the path
	Prefix string
	// SubPath is the path below Prefix
	SubPath string
	// PathParams holds URI template variables
	PathParams map[string]string
	// QueryParams holds the decoded query parameters
	QueryParams map[string]string

	// Allowed lists the methods the matched path supports. It is set when no
	// resource accepted the method and for OPTIONS requests.
	Allowed []string

	// Err is set for OutcomeBadRequest
	Err error

	ProcessingTime time.Duration
}

// Found reports whether both an API and a resource were selected
func (r *Resolution) Found() bool {
	return r.Outcome == OutcomeMatched
}

// MethodNotAllowed reports whether the path matched a resource whose methods
// exclude the request's method
func (r *Resolution) MethodNotAllowed() bool {
	return r.Outcome == OutcomeResourceNotFound && len(r.Allowed) > 0
}

// Target is what a dispatcher matches resources against
type Target struct {
	Method   string
	SubPath  string
	RawQuery string
	Query    map[string]string
}

// Dispatcher selects one resource among the acceptable candidates. A dispatcher
// only looks at the candidates of its own kind and declines by returning false;
// it never fails.
type Dispatcher interface {
	// Name identifies the dispatcher in logs
	Name() string

	// Dispatch returns the selected resource and any template variables
	Dispatch(target Target, candidates []*api.Resource) (*api.Resource, map[string]string, bool)
}

// APISource supplies the ordered APIs to select from
type APISource interface {
	Snapshot() []*api.API
}

// Observer receives one call per resolved request
type Observer interface {
	ObserveDispatch(outcome Outcome, elapsed time.Duration)
}

// EngineMetrics counts resolutions by outcome
type EngineMetrics struct {
	TotalRequests    int64 `json:"total_requests"`
	Matched          int64 `json:"matched"`
	APINotFound      int64 `json:"api_not_found"`
	ResourceNotFound int64 `json:"resource_not_found"`
	BadRequest       int64 `json:"bad_request"`
}
