package connpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteFromURL(t *testing.T) {
	tests := []struct {
		raw  string
		want Route
	}{
		{"http://Backend.local/orders", Route{Scheme: "http", Host: "backend.local", Port: 80}},
		{"https://backend.local/x", Route{Scheme: "https", Host: "backend.local", Port: 443, TLS: true}},
		{"http://10.0.0.1:8080", Route{Scheme: "http", Host: "10.0.0.1", Port: 8080}},
		{"https://[::1]:8443/", Route{Scheme: "https", Host: "::1", Port: 8443, TLS: true}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := RouteFromURL(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRouteFromURL_Invalid(t *testing.T) {
	for _, raw := range []string{"ftp://host", "http://", "http://host:99999", "://bad"} {
		_, err := RouteFromURL(raw)
		assert.ErrorIs(t, err, ErrInvalidRoute, raw)
	}
}

func TestRouteKey_Equality(t *testing.T) {
	route := Route{Scheme: "http", Host: "backend", Port: 80}

	assert.Equal(t, NewRouteKey(route, "a"), NewRouteKey(route, "a"))
	assert.NotEqual(t, NewRouteKey(route, "a"), NewRouteKey(route, "b"))

	index := map[RouteKey]int{NewRouteKey(route, "a"): 1}
	_, ok := index[RouteKey{Route: Route{Scheme: "http", Host: "backend", Port: 80}, Identifier: "a"}]
	assert.True(t, ok)

	assert.Equal(t, "http://backend:80#a", NewRouteKey(route, "a").String())
	assert.Equal(t, "http://backend:80", NewRouteKey(route, "").String())
	assert.Equal(t, "[::1]:443", Route{Host: "::1", Port: 443}.Address())
}
