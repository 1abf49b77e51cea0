package api

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediation-router/internal/common/errors"
)

func getResource() *Resource {
	return &Resource{Methods: []string{"GET"}}
}

func mustAPI(t *testing.T, name, context string, version VersionStrategy, resources ...*Resource) *API {
	t.Helper()
	if len(resources) == 0 {
		resources = []*Resource{getResource()}
	}
	a, err := New(name, context, version, resources...)
	require.NoError(t, err)
	return a
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name      string
		apiName   string
		context   string
		version   VersionStrategy
		resources []*Resource
		wantErr   error
	}{
		{"empty name", " ", "/a", NoVersion(), nil, ErrEmptyName},
		{"empty context", "a", "", NoVersion(), nil, ErrInvalidContext},
		{"relative context", "a", "a/b", NoVersion(), nil, ErrInvalidContext},
		{"context version without version", "a", "/a", ContextVersion(""), nil, ErrInvalidVersion},
		{"url version without version", "a", "/a", URLVersion("", SourcePath, ""), nil, ErrInvalidVersion},
		{"no methods", "a", "/a", NoVersion(), []*Resource{{}}, ErrNoMethods},
		{"unknown method", "a", "/a", NoVersion(), []*Resource{{Methods: []string{"FETCH"}}}, ErrUnknownMethod},
		{"mapping and template", "a", "/a", NoVersion(), []*Resource{{
			Methods: []string{"GET"}, URLMapping: "/x", URITemplate: "/{id}",
		}}, ErrConflictingPattern},
		{"bad content type regexp", "a", "/a", NoVersion(), []*Resource{{
			Methods: []string{"GET"}, ContentType: "(",
		}}, ErrInvalidFilter},
		{"bad protocol", "a", "/a", NoVersion(), []*Resource{{
			Methods: []string{"GET"}, Protocol: "ftp",
		}}, ErrInvalidFilter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.apiName, tt.context, tt.version, tt.resources...)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNew_Normalises(t *testing.T) {
	r := &Resource{Methods: []string{"get", " post ", "GET"}}
	a := mustAPI(t, "orders", "/orders/", NoVersion(), r)

	assert.Equal(t, "/orders", a.Context)
	assert.Equal(t, []string{"GET", "POST"}, r.Methods)
	assert.Equal(t, []string{DefaultBinding}, r.BindsTo)
	assert.Equal(t, 1, a.Specificity())
	assert.False(t, a.IsRoot())
	assert.True(t, mustAPI(t, "root", "/", NoVersion()).IsRoot())
}

func TestEffectiveContext(t *testing.T) {
	assert.Equal(t, "/svc", EffectiveContext("/svc", NoVersion()))
	assert.Equal(t, "/svc/v2/items", EffectiveContext("/svc/{version}/items", ContextVersion("v2")))
	assert.Equal(t, "/svc/v2", EffectiveContext("/svc", ContextVersion("v2")))
	assert.Equal(t, "/svc", EffectiveContext("/svc", URLVersion("v2", SourcePath, "")))

	a := mustAPI(t, "items", "/svc/{version}/items", ContextVersion("v2"))
	assert.Equal(t, 3, a.Specificity())
}

func TestMatch_NoVersion(t *testing.T) {
	a := mustAPI(t, "orders", "/orders", NoVersion())

	m, ok := a.Match(NewRequest("GET", "/orders/42?expand=true"))
	require.True(t, ok)
	assert.Equal(t, "", m.Version)
	assert.Equal(t, "/orders", m.Prefix)
	assert.Equal(t, "/42", m.SubPath)

	m, ok = a.Match(NewRequest("GET", "/orders"))
	require.True(t, ok)
	assert.Equal(t, "/", m.SubPath)

	_, ok = a.Match(NewRequest("GET", "/ordersx"))
	assert.False(t, ok)
}

func TestMatch_ContextVersion(t *testing.T) {
	a := mustAPI(t, "items", "/svc/{version}/items", ContextVersion("v2"))

	m, ok := a.Match(NewRequest("GET", "/svc/v2/items/7"))
	require.True(t, ok)
	assert.Equal(t, "v2", m.Version)
	assert.Equal(t, "/7", m.SubPath)

	_, ok = a.Match(NewRequest("GET", "/svc/v1/items/7"))
	assert.False(t, ok)
}

func TestMatch_URLVersionFromPath(t *testing.T) {
	a := mustAPI(t, "svc", "/svc", URLVersion("v1", SourcePath, ""))

	m, ok := a.Match(NewRequest("GET", "/svc/v1/users?x=1"))
	require.True(t, ok)
	assert.Equal(t, "v1", m.Version)
	assert.Equal(t, "/svc/v1", m.Prefix)
	assert.Equal(t, "/users", m.SubPath)

	_, ok = a.Match(NewRequest("GET", "/svc/v2/users"))
	assert.False(t, ok)
	_, ok = a.Match(NewRequest("GET", "/svc"))
	assert.False(t, ok)
}

func TestMatch_URLVersionFromQueryAndHeader(t *testing.T) {
	byQuery := mustAPI(t, "q", "/svc", URLVersion("2024-01", SourceQuery, "api-version"))
	byHeader := mustAPI(t, "h", "/svc", URLVersion("3", SourceHeader, ""))

	m, ok := byQuery.Match(NewRequest("GET", "/svc/users?api-version=2024-01"))
	require.True(t, ok)
	assert.Equal(t, "2024-01", m.Version)
	assert.Equal(t, "/users", m.SubPath)

	_, ok = byQuery.Match(NewRequest("GET", "/svc/users?api-version=2023-01"))
	assert.False(t, ok)

	m, ok = byQuery.Match(NewRequest("GET", "/svc/users?api-version=%zz"))
	assert.False(t, ok)
	assert.True(t, errors.IsType(m.Err, errors.ErrTypeBadRequest))

	m, ok = byQuery.Match(NewRequest("GET", "/other?api-version=%zz"))
	assert.False(t, ok)
	assert.NoError(t, m.Err, "query is not read outside the context")

	req := NewRequest("GET", "/svc/users")
	req.Header.Set("X-API-Version", "3")
	m, ok = byHeader.Match(req)
	require.True(t, ok)
	assert.Equal(t, "3", m.Version)

	_, ok = byHeader.Match(NewRequest("GET", "/svc/users"))
	assert.False(t, ok)
}

func TestMatch_HostAndPortFilters(t *testing.T) {
	a := mustAPI(t, "orders", "/orders", NoVersion()).WithHost("api.example.com", 8443)

	req := NewRequest("GET", "/orders")
	req.Host, req.Port = "API.example.com", 8443
	_, ok := a.Match(req)
	assert.True(t, ok)

	req.Port = 80
	_, ok = a.Match(req)
	assert.False(t, ok)

	req.Host, req.Port = "other.example.com", 8443
	_, ok = a.Match(req)
	assert.False(t, ok)
}

func TestKey(t *testing.T) {
	a := mustAPI(t, "a", "/svc/v1", NoVersion())
	b := mustAPI(t, "b", "/svc", ContextVersion("v1"))
	c := mustAPI(t, "c", "/svc", URLVersion("v1", SourcePath, ""))

	assert.NotEqual(t, a.Key(), b.Key())
	assert.NotEqual(t, b.Key(), c.Key())
	assert.NotEqual(t, a.Key(), a.WithHost("h", 0).Key())
}

func TestFromHTTP(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "https://gw.example.com:8443/orders/1?a=b", nil)
	r.TLS = &tls.ConnectionState{}
	r.Header.Set(CallerHeader, "partner-a")
	r.Header.Set("Content-Type", "application/json; charset=utf-8")

	req := FromHTTP(r)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "/orders/1?a=b", req.FullPath())
	assert.Equal(t, "gw.example.com", req.Host)
	assert.Equal(t, 8443, req.Port)
	assert.Equal(t, "https", req.Scheme)
	assert.Equal(t, "partner-a", req.Caller)
	assert.Equal(t, "application/json", req.ContentType())

	plain := FromHTTP(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "example.com", plain.Host)
	assert.Equal(t, 80, plain.Port)
	assert.Equal(t, "http", plain.Scheme)
}

func TestNewRequest_AbsoluteURL(t *testing.T) {
	assert.Equal(t, "/a/b?x=1", NewRequest("get", "http://host:80/a/b?x=1").FullPath())
	assert.Equal(t, "/chat", NewRequest("get", "wss://host/chat").FullPath())
	assert.Equal(t, "/", NewRequest("get", "").FullPath())
	assert.Equal(t, "GET", NewRequest("get", "/").Method)
}
