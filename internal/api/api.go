package api

import (
	"fmt"
	"strings"
)

// API is a deployed unit exposing one context path and its resources.
// It is immutable after New returns.
type API struct {
	Name      string
	Context   string
	Version   VersionStrategy
	Resources []*Resource
	// Host and Port optionally restrict the API to one virtual host
	Host string
	Port int

	effectiveContext string
	specificity      int
}

// Match is the per-request outcome of matching an API's context and version
type Match struct {
	// Version is the version token selected for this request, empty for NoVersion APIs
	Version string
	// Prefix is the part of the path consumed by the API context and version
	Prefix string
	// SubPath is the path below Prefix, always starting with '/'
	SubPath string
	// Err is set when the request cannot be evaluated against the API, e.g. a
	// malformed query for a query-versioned API. The match is then false.
	Err error
}

// New validates the definition and returns a deployable API. The resources are
// owned by the returned API from this point on.
func New(name, context string, version VersionStrategy, resources ...*Resource) (*API, error) {
	a := &API{
		Name:      strings.TrimSpace(name),
		Context:   context,
		Version:   version,
		Resources: resources,
	}
	if err := a.prepare(); err != nil {
		return nil, err
	}
	return a, nil
}

// WithHost returns a copy of the API restricted to host and port. A zero port
// accepts any port.
func (a *API) WithHost(host string, port int) *API {
	clone := *a
	clone.Host = host
	clone.Port = port
	return &clone
}

func (a *API) prepare() error {
	if a.Name == "" {
		return ErrEmptyName
	}
	if a.Context == "" || !strings.HasPrefix(a.Context, "/") {
		return ErrInvalidContext
	}
	if a.Context != RootContext {
		a.Context = TrimTrailingSlashes(a.Context)
	}
	if err := a.Version.validate(); err != nil {
		return fmt.Errorf("api %s: %w", a.Name, err)
	}
	for i, r := range a.Resources {
		if r == nil {
			return fmt.Errorf("api %s: resource %d is nil", a.Name, i)
		}
		if err := r.prepare(); err != nil {
			return fmt.Errorf("api %s: resource %d: %w", a.Name, i, err)
		}
	}

	a.effectiveContext = EffectiveContext(a.Context, a.Version)
	a.specificity = SegmentCount(a.effectiveContext)
	return nil
}

// EffectiveContext returns the context requests are matched against
func (a *API) EffectiveContext() string {
	if a.effectiveContext == "" {
		return EffectiveContext(a.Context, a.Version)
	}
	return a.effectiveContext
}

// Specificity is the number of non-empty segments in the effective context
func (a *API) Specificity() int {
	return a.specificity
}

// IsRoot reports whether the API is the universal fallback, i.e. its effective
// context is "/"
func (a *API) IsRoot() bool {
	return a.EffectiveContext() == RootContext
}

// Key identifies the context and version pair that must be unique across APIs
func (a *API) Key() string {
	key := a.EffectiveContext() + "|" + a.Version.String()
	if a.Host != "" || a.Port != 0 {
		key = fmt.Sprintf("%s|%s:%d", key, strings.ToLower(a.Host), a.Port)
	}
	return key
}

// Match reports whether the API accepts req under its host filter, context and
// version strategy. The selected version is returned, never stored on the API.
func (a *API) Match(req *Request) (Match, bool) {
	if a.Host != "" && !strings.EqualFold(a.Host, req.Host) {
		return Match{}, false
	}
	if a.Port != 0 && a.Port != req.Port {
		return Match{}, false
	}

	path := req.FullPath()
	switch a.Version.Kind {
	case KindContext:
		context := a.EffectiveContext()
		if !MatchAPIPath(path, context) {
			return Match{}, false
		}
		return newMatch(req, a.Version.Version, context), true

	case KindURL:
		if !MatchAPIPath(path, a.Context) {
			return Match{}, false
		}
		token, fromPath, err := a.Version.versionToken(req, a.Context)
		if err != nil {
			return Match{Err: err}, false
		}
		if token != a.Version.Version {
			return Match{}, false
		}
		prefix := a.Context
		if fromPath {
			prefix = JoinPath(a.Context, token)
		}
		return newMatch(req, token, prefix), true

	default:
		if !MatchAPIPath(path, a.Context) {
			return Match{}, false
		}
		return newMatch(req, "", a.Context), true
	}
}

func newMatch(req *Request, version, prefix string) Match {
	sub := req.Path()
	if prefix != RootContext {
		sub = strings.TrimPrefix(sub, prefix)
	}
	if sub == "" || sub[0] != '/' {
		sub = "/" + sub
	}
	return Match{Version: version, Prefix: prefix, SubPath: sub}
}

// String identifies the API in logs
func (a *API) String() string {
	return fmt.Sprintf("%s(%s %s)", a.Name, a.Context, a.Version)
}
