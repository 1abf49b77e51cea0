package api

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/samber/lo"
)

var knownMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
	http.MethodDelete, http.MethodOptions, http.MethodConnect, http.MethodTrace,
}

// Resource is a method and path scoped handler unit within an API.
// At most one of URLMapping and URITemplate is set; a resource with neither
// is handled by the default dispatcher.
type Resource struct {
	Name        string   `json:"name,omitempty"`
	Methods     []string `json:"methods"`
	BindsTo     []string `json:"bindsTo,omitempty"`
	URLMapping  string   `json:"urlMapping,omitempty"`
	URITemplate string   `json:"uriTemplate,omitempty"`
	ContentType string   `json:"contentType,omitempty"`
	UserAgent   string   `json:"userAgent,omitempty"`
	Protocol    string   `json:"protocol,omitempty"`
	Endpoint    string   `json:"endpoint,omitempty"`

	contentType *regexp.Regexp
	userAgent   *regexp.Regexp
}

// HasMethod reports whether the resource lists method
func (r *Resource) HasMethod(method string) bool {
	return lo.Contains(r.Methods, strings.ToUpper(method))
}

// IsBound reports whether the resource serves the request's caller. Requests
// without a caller identity are served by resources bound to DefaultBinding.
func (r *Resource) IsBound(req *Request) bool {
	if req.Caller != "" {
		return lo.Contains(r.BindsTo, req.Caller)
	}
	return lo.Contains(r.BindsTo, DefaultBinding)
}

// CanProcess applies the resource's protocol, method, content type and user agent
// filters. OPTIONS requests pass the method check so preflight requests can be
// answered for any resource.
func (r *Resource) CanProcess(req *Request) bool {
	if !r.acceptsAttributes(req) {
		return false
	}
	if req.Method == http.MethodOptions {
		return true
	}
	return r.HasMethod(req.Method)
}

// AcceptsIgnoringMethod applies every filter except the method check
func (r *Resource) AcceptsIgnoringMethod(req *Request) bool {
	return r.acceptsAttributes(req)
}

func (r *Resource) acceptsAttributes(req *Request) bool {
	if r.Protocol != "" && !strings.EqualFold(r.Protocol, req.Scheme) {
		return false
	}
	if r.contentType != nil && !r.contentType.MatchString(req.ContentType()) {
		return false
	}
	if r.userAgent != nil && !r.userAgent.MatchString(req.UserAgent()) {
		return false
	}
	return true
}

// prepare normalises methods and bindings and compiles the filters
func (r *Resource) prepare() error {
	if len(r.Methods) == 0 {
		return ErrNoMethods
	}
	r.Methods = lo.Uniq(lo.Map(r.Methods, func(m string, _ int) string {
		return strings.ToUpper(strings.TrimSpace(m))
	}))
	for _, m := range r.Methods {
		if !lo.Contains(knownMethods, m) {
			return fmt.Errorf("%w: %s", ErrUnknownMethod, m)
		}
	}

	if len(r.BindsTo) == 0 {
		r.BindsTo = []string{DefaultBinding}
	}

	if r.URLMapping != "" && r.URITemplate != "" {
		return ErrConflictingPattern
	}

	switch strings.ToLower(r.Protocol) {
	case "", "http", "https":
		r.Protocol = strings.ToLower(r.Protocol)
	default:
		return fmt.Errorf("%w: unknown protocol %q", ErrInvalidFilter, r.Protocol)
	}

	var err error
	if r.ContentType != "" {
		if r.contentType, err = regexp.Compile(r.ContentType); err != nil {
			return fmt.Errorf("%w: content type: %v", ErrInvalidFilter, err)
		}
	}
	if r.UserAgent != "" {
		if r.userAgent, err = regexp.Compile(r.UserAgent); err != nil {
			return fmt.Errorf("%w: user agent: %v", ErrInvalidFilter, err)
		}
	}
	return nil
}

// String identifies the resource in logs
func (r *Resource) String() string {
	pattern := r.URLMapping
	if pattern == "" {
		pattern = r.URITemplate
	}
	if pattern == "" {
		pattern = "*"
	}
	if r.Name != "" {
		return fmt.Sprintf("%s[%s %s]", r.Name, strings.Join(r.Methods, ","), pattern)
	}
	return fmt.Sprintf("[%s %s]", strings.Join(r.Methods, ","), pattern)
}
