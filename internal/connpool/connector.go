package connpool

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"net"
	"time"

	"mediation-router/internal/circuitbreaker"
	"mediation-router/internal/common/errors"
	"mediation-router/internal/common/logging"
)

// Dialer opens raw connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Connector turns a MustConnect lease into a connection: it dials with a
// timeout through the route's circuit breaker and reports the result to the pool.
type Connector struct {
	pool      *Pool
	dialer    Dialer
	breakers  *circuitbreaker.Manager
	timeout   time.Duration
	tlsConfig *tls.Config
	logger    logging.Logger
}

// ConnectorOption configures a Connector
type ConnectorOption func(*Connector)

// WithDialer replaces the default net.Dialer
func WithDialer(dialer Dialer) ConnectorOption {
	return func(c *Connector) {
		c.dialer = dialer
	}
}

// WithTLSConfig sets the base TLS configuration for TLS routes
func WithTLSConfig(config *tls.Config) ConnectorOption {
	return func(c *Connector) {
		c.tlsConfig = config
	}
}

// NewConnector creates a connector for pool. breakers may be nil to dial
// without circuit breaking.
func NewConnector(pool *Pool, breakers *circuitbreaker.Manager, timeout time.Duration, logger logging.Logger, opts ...ConnectorOption) *Connector {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	c := &Connector{
		pool:     pool,
		dialer:   &net.Dialer{KeepAlive: 30 * time.Second},
		breakers: breakers,
		timeout:  timeout,
		logger:   logger.WithFields(logging.Field{Key: "component", Value: "connector"}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pool returns the pool the connector feeds
func (c *Connector) Pool() *Pool {
	return c.pool
}

// Connect returns a leased handle for key, reusing an idle connection when one
// is valid and dialling otherwise. On dial failure the provisional lease is
// given back before the error is returned.
func (c *Connector) Connect(ctx context.Context, key RouteKey) (*Handle, error) {
	lease, err := c.pool.Acquire(key)
	if err != nil {
		return nil, err
	}
	if !lease.MustConnect {
		return lease.Handle, nil
	}

	conn, err := c.dial(ctx, key)
	if err != nil {
		if abortErr := c.pool.Abort(key); abortErr != nil {
			c.logger.Error("Failed to give back provisional lease", abortErr,
				logging.String("route", key.String()),
			)
		}
		return nil, err
	}

	h, err := c.pool.Connected(key, conn)
	if err != nil {
		_ = conn.Close()
		return nil, errors.InternalError("failed to register connection", err).
			WithContext("route", key.String())
	}

	c.logger.Debug("Opened connection",
		logging.String("route", key.String()),
		logging.String("handle", h.ID().String()),
	)
	return h, nil
}

// Release hands h back to the pool
func (c *Connector) Release(key RouteKey, h *Handle, reusable bool) error {
	return c.pool.Release(key, h, reusable)
}

func (c *Connector) dial(ctx context.Context, key RouteKey) (net.Conn, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var conn net.Conn
	dial := func() error {
		var err error
		conn, err = c.dialer.DialContext(ctx, "tcp", key.Route.Address())
		if err != nil {
			return err
		}
		if key.Route.TLS {
			tlsConn := tls.Client(conn, c.clientTLS(key.Route))
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				_ = conn.Close()
				conn = nil
				return err
			}
			conn = tlsConn
		}
		return nil
	}

	var err error
	if c.breakers != nil {
		err = c.breakers.Execute(key.Route.String(), dial)
	} else {
		err = dial()
	}
	if err == nil {
		return conn, nil
	}

	if errors.GetType(err) == errors.ErrTypeConnection {
		return nil, err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return nil, errors.TimeoutError(fmt.Sprintf("connect to %s", key.Route)).
			WithCause(err).
			WithContext("route", key.String())
	}
	return nil, errors.ConnectionError(fmt.Sprintf("failed to connect to %s", key.Route), err).
		WithContext("route", key.String())
}

func (c *Connector) clientTLS(route Route) *tls.Config {
	var config *tls.Config
	if c.tlsConfig != nil {
		config = c.tlsConfig.Clone()
	} else {
		config = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if config.ServerName == "" {
		config.ServerName = route.ServerName
		if config.ServerName == "" {
			config.ServerName = route.Host
		}
	}
	return config
}
