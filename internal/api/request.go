package api

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"mediation-router/internal/common/errors"
)

const (
	// CallerHeader carries the caller identity matched against resource bindings
	CallerHeader = "X-API-Caller"

	// DefaultBinding is the binding of resources serving callers without an identity
	DefaultBinding = "default"
)

// Request describes one inbound message for dispatch. It is owned by a single
// request goroutine; the full path and decoded query are computed once.
type Request struct {
	Method string
	Host   string
	Port   int
	Scheme string
	Header http.Header
	// Caller is the declared caller identity, empty for default callers
	Caller string

	fullPath string

	queryOnce sync.Once
	query     map[string]string
	queryErr  error
}

// NewRequest builds a request for method and rawPath. rawPath may carry a query
// string or be an absolute http(s)/ws(s) URL, in which case only its path and
// query are kept.
func NewRequest(method, rawPath string) *Request {
	return &Request{
		Method:   strings.ToUpper(method),
		Scheme:   "http",
		Header:   make(http.Header),
		fullPath: fullRequestPath(rawPath),
	}
}

// FromHTTP builds a request descriptor from an inbound HTTP request
func FromHTTP(r *http.Request) *Request {
	raw := r.RequestURI
	if raw == "" {
		raw = r.URL.RequestURI()
	}

	req := NewRequest(r.Method, raw)
	req.Header = r.Header
	req.Caller = r.Header.Get(CallerHeader)
	if r.TLS != nil {
		req.Scheme = "https"
	}

	host, port, err := net.SplitHostPort(r.Host)
	if err != nil {
		req.Host = r.Host
		req.Port = defaultPort(req.Scheme)
	} else {
		req.Host = host
		if p, err := strconv.Atoi(port); err == nil {
			req.Port = p
		}
	}
	return req
}

// FullPath returns the request path including its query string
func (r *Request) FullPath() string {
	return r.fullPath
}

// Path returns the request path without the query string
func (r *Request) Path() string {
	return stripQuery(r.fullPath)
}

// RawQuery returns the undecoded query string, without '?'
func (r *Request) RawQuery() string {
	if i := strings.IndexByte(r.fullPath, '?'); i >= 0 {
		return r.fullPath[i+1:]
	}
	return ""
}

// Query returns the decoded query parameters. A value that cannot be decoded
// fails the request with a bad request error.
func (r *Request) Query() (map[string]string, error) {
	r.queryOnce.Do(func() {
		params, err := ParseQuery(r.RawQuery())
		if err != nil {
			r.queryErr = errors.BadRequestError(
				fmt.Sprintf("error processing %s request for %s", r.Method, r.fullPath), err).
				WithContext("reason", "malformed query parameter")
			return
		}
		r.query = params
	})
	return r.query, r.queryErr
}

// ContentType returns the Content-Type header without parameters
func (r *Request) ContentType() string {
	if r.Header == nil {
		return ""
	}
	contentType := r.Header.Get("Content-Type")
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.TrimSpace(contentType)
}

// UserAgent returns the User-Agent header
func (r *Request) UserAgent() string {
	if r.Header == nil {
		return ""
	}
	return r.Header.Get("User-Agent")
}

func fullRequestPath(raw string) string {
	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"),
		strings.HasPrefix(lower, "ws://"), strings.HasPrefix(lower, "wss://"):
		u, err := url.Parse(raw)
		if err != nil {
			return raw
		}
		path := u.EscapedPath()
		if path == "" {
			path = "/"
		}
		if u.RawQuery != "" {
			return path + "?" + u.RawQuery
		}
		return path
	case raw == "":
		return "/"
	default:
		return raw
	}
}

func defaultPort(scheme string) int {
	if scheme == "https" {
		return 443
	}
	return 80
}
