package routing

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"mediation-router/internal/api"
)

// URITemplateDispatcher matches resources declaring a URI template such as
// "/orders/{id}", "/orders/{id:[0-9]+}" or "/search?q={query}". Templates are
// compiled to gorilla/mux routes once and cached.
type URITemplateDispatcher struct {
	templates sync.Map // template string -> *compiledTemplate
}

type compiledTemplate struct {
	route *mux.Route
	// query maps query parameter names to template variable names
	query map[string]string
}

// NewURITemplateDispatcher creates a URI-template dispatcher
func NewURITemplateDispatcher() *URITemplateDispatcher {
	return &URITemplateDispatcher{}
}

// Name implements Dispatcher
func (d *URITemplateDispatcher) Name() string {
	return "uri-template"
}

// Dispatch implements Dispatcher. Candidates are tried in order and the first
// template that matches wins.
func (d *URITemplateDispatcher) Dispatch(target Target, candidates []*api.Resource) (*api.Resource, map[string]string, bool) {
	var probe *http.Request
	for _, r := range candidates {
		if r.URITemplate == "" {
			continue
		}
		tpl, err := d.compiled(r.URITemplate)
		if err != nil {
			continue
		}
		// the sub path stays encoded so "%2F" never splits a segment
		if probe == nil {
			probe = &http.Request{
				Method: target.Method,
				URL:    &url.URL{Path: target.SubPath, RawQuery: target.RawQuery},
			}
		}

		var match mux.RouteMatch
		if !tpl.route.Match(probe, &match) {
			continue
		}

		vars := make(map[string]string, len(match.Vars))
		for name, value := range match.Vars {
			if decoded, err := url.PathUnescape(value); err == nil {
				value = decoded
			}
			vars[name] = value
		}
		for param, name := range tpl.query {
			if value, ok := target.Query[param]; ok {
				vars[name] = value
			}
		}
		return r, vars, true
	}
	return nil, nil, false
}

func (d *URITemplateDispatcher) compiled(template string) (*compiledTemplate, error) {
	if cached, ok := d.templates.Load(template); ok {
		return cached.(*compiledTemplate), nil
	}
	tpl, err := compileTemplate(template)
	if err != nil {
		return nil, err
	}
	actual, _ := d.templates.LoadOrStore(template, tpl)
	return actual.(*compiledTemplate), nil
}

// ValidateTemplate reports whether template compiles
func ValidateTemplate(template string) error {
	_, err := compileTemplate(template)
	return err
}

// compileTemplate turns a URI template into a mux route. The path part becomes
// a path template; "name={var}" pairs after '?' become query matchers.
func compileTemplate(template string) (*compiledTemplate, error) {
	pathPart, queryPart, _ := strings.Cut(template, "?")
	if !strings.HasPrefix(pathPart, "/") {
		return nil, fmt.Errorf("%w: %q must start with '/'", ErrInvalidTemplate, template)
	}

	route := mux.NewRouter().NewRoute().Path(pathPart)

	query := make(map[string]string)
	if queryPart != "" {
		var pairs []string
		for _, entry := range strings.Split(queryPart, "&") {
			name, value, ok := strings.Cut(entry, "=")
			if !ok || name == "" {
				return nil, fmt.Errorf("%w: query entry %q in %q", ErrInvalidTemplate, entry, template)
			}
			pairs = append(pairs, name, value)
			if v := templateVariable(value); v != "" {
				query[name] = v
			}
		}
		route = route.Queries(pairs...)
	}

	if err := route.GetError(); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTemplate, template, err)
	}
	return &compiledTemplate{route: route, query: query}, nil
}

// templateVariable returns the variable name of "{name}" or "{name:pattern}"
func templateVariable(value string) string {
	if !strings.HasPrefix(value, "{") || !strings.HasSuffix(value, "}") {
		return ""
	}
	name, _, _ := strings.Cut(value[1:len(value)-1], ":")
	return name
}
