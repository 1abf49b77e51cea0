package connpool

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Route describes a physical outbound destination. It is comparable and used
// as part of a map key.
type Route struct {
	Scheme string
	Host   string
	Port   int
	// TLS is true when the connection must be wrapped in TLS
	TLS bool
	// ServerName overrides the TLS server name, defaulting to Host
	ServerName string
}

// RouteFromURL builds the route for an http(s) endpoint URL
func RouteFromURL(raw string) (Route, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Route{}, fmt.Errorf("%w: %v", ErrInvalidRoute, err)
	}

	scheme := strings.ToLower(u.Scheme)
	var defaultPort int
	switch scheme {
	case "http":
		defaultPort = 80
	case "https":
		defaultPort = 443
	default:
		return Route{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRoute, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return Route{}, fmt.Errorf("%w: missing host in %q", ErrInvalidRoute, raw)
	}

	port := defaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return Route{}, fmt.Errorf("%w: invalid port %q", ErrInvalidRoute, p)
		}
	}

	return Route{
		Scheme: scheme,
		Host:   strings.ToLower(host),
		Port:   port,
		TLS:    scheme == "https",
	}, nil
}

// Address returns host:port for dialling
func (r Route) Address() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// String renders the route as scheme://host:port
func (r Route) String() string {
	return r.Scheme + "://" + r.Address()
}

// RouteKey identifies a logical destination: a route plus an identifier.
// Two keys are equal iff both parts are equal, so distinct identifiers against
// the same route never share connections.
type RouteKey struct {
	Route      Route
	Identifier string
}

// NewRouteKey returns the key for route and identifier
func NewRouteKey(route Route, identifier string) RouteKey {
	return RouteKey{Route: route, Identifier: identifier}
}

// String renders the key for logs and breaker names
func (k RouteKey) String() string {
	if k.Identifier == "" {
		return k.Route.String()
	}
	return k.Route.String() + "#" + k.Identifier
}
