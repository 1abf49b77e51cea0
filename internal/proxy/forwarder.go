// Package proxy forwards matched requests to their resource endpoint over
// pooled connections.
package proxy

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mediation-router/internal/common/errors"
	"mediation-router/internal/common/logging"
	"mediation-router/internal/connpool"
	"mediation-router/internal/routing"
)

// hop-by-hop headers are connection-specific and never forwarded
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Forwarder sends the request to the matched resource's endpoint. Connections
// are pooled per endpoint and API, so two APIs calling the same back end never
// share a connection.
type Forwarder struct {
	connector *connpool.Connector
	timeout   time.Duration
	logger    logging.Logger
}

// NewForwarder creates a forwarder. timeout bounds one exchange with the back
// end; zero means no limit beyond the request context.
func NewForwarder(connector *connpool.Connector, timeout time.Duration, logger logging.Logger) *Forwarder {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Forwarder{
		connector: connector,
		timeout:   timeout,
		logger:    logger.WithFields(logging.Field{Key: "component", Value: "forwarder"}),
	}
}

// Mediate forwards r and streams the back end's response to w. An error is
// returned only while nothing has been written to w.
func (f *Forwarder) Mediate(w http.ResponseWriter, r *http.Request, res *routing.Resolution) error {
	if res == nil || res.Resource == nil || res.API == nil {
		return errors.InternalError("forwarder called without a matched resource", nil)
	}
	if res.Resource.Endpoint == "" {
		return errors.ConfigError("resource has no endpoint").
			WithContext("api", res.API.Name).
			WithContext("resource", res.Resource.String())
	}

	endpoint, err := url.Parse(res.Resource.Endpoint)
	if err != nil {
		return errors.ConfigError("invalid resource endpoint").WithCause(err)
	}
	route, err := connpool.RouteFromURL(res.Resource.Endpoint)
	if err != nil {
		return errors.ConfigError("invalid resource endpoint").WithCause(err)
	}
	key := connpool.NewRouteKey(route, res.API.Name)

	ctx := r.Context()
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	out, err := outboundRequest(ctx, r, endpoint, res.SubPath)
	if err != nil {
		return err
	}

	h, err := f.connector.Connect(ctx, key)
	if err != nil {
		return err
	}

	reusable := false
	defer func() {
		_ = h.Conn().SetDeadline(time.Time{})
		if err := f.connector.Release(key, h, reusable); err != nil {
			f.logger.Error("Failed to release connection", err, logging.String("route", key.String()))
		}
	}()

	if deadline, ok := ctx.Deadline(); ok {
		_ = h.Conn().SetDeadline(deadline)
	}

	if err := out.Write(h.Conn()); err != nil {
		return exchangeError("write request to", key, err)
	}

	resp, err := http.ReadResponse(h.Reader(), out)
	if err != nil {
		return exchangeError("read response from", key, err)
	}
	defer resp.Body.Close()

	header := w.Header()
	for k, values := range resp.Header {
		for _, v := range values {
			header.Add(k, v)
		}
	}
	removeHopHeaders(header)
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		f.logger.WithContext(r.Context()).Warn("Response body copy aborted",
			logging.String("route", key.String()),
			logging.Err(err),
		)
		return nil
	}

	reusable = !resp.Close && !out.Close
	return nil
}

// outboundRequest clones r for the back end: the endpoint's path is joined
// with the resolved sub path and the original query is kept. subPath is still
// percent-encoded and is sent on as received.
func outboundRequest(ctx context.Context, r *http.Request, endpoint *url.URL, subPath string) (*http.Request, error) {
	rawPath := joinPath(endpoint.EscapedPath(), subPath)
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, errors.BadRequestError("malformed request path", err).
			WithContext("path", subPath)
	}

	out := r.Clone(ctx)
	out.RequestURI = ""
	out.Close = false

	target := *endpoint
	target.Path = path
	target.RawPath = rawPath
	target.RawQuery = r.URL.RawQuery
	out.URL = &target
	out.Host = endpoint.Host

	if c := r.Header.Get("Connection"); c != "" {
		for _, name := range strings.Split(c, ",") {
			out.Header.Del(strings.TrimSpace(name))
		}
	}
	removeHopHeaders(out.Header)

	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if prior := r.Header.Get("X-Forwarded-For"); prior != "" {
			ip = prior + ", " + ip
		}
		out.Header.Set("X-Forwarded-For", ip)
	}
	out.Header.Set("X-Forwarded-Host", r.Host)
	proto := "http"
	if r.TLS != nil {
		proto = "https"
	}
	out.Header.Set("X-Forwarded-Proto", proto)
	return out, nil
}

func joinPath(base, subPath string) string {
	base = strings.TrimSuffix(base, "/")
	if subPath == "" || subPath == "/" {
		if base == "" {
			return "/"
		}
		return base
	}
	return base + "/" + strings.TrimPrefix(subPath, "/")
}

func removeHopHeaders(h http.Header) {
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

func exchangeError(op string, key connpool.RouteKey, err error) error {
	var ne net.Error
	if stderrors.As(err, &ne) && ne.Timeout() {
		return errors.TimeoutError(fmt.Sprintf("%s %s", op, key.Route)).
			WithCause(err).
			WithContext("route", key.String())
	}
	return errors.ConnectionError(fmt.Sprintf("failed to %s %s", op, key.Route), err).
		WithContext("route", key.String())
}
