package connpool

import "errors"

var (
	// ErrPoolExhausted is wrapped by the error returned when a route is at its cap
	ErrPoolExhausted = errors.New("connection pool exhausted for route")

	// ErrPoolClosed is returned by operations on a closed pool
	ErrPoolClosed = errors.New("connection pool is closed")

	// ErrForeignHandle is returned when a handle is released under another key
	ErrForeignHandle = errors.New("handle does not belong to route key")

	// ErrHandleNotLeased is returned when a handle that is not leased is released
	ErrHandleNotLeased = errors.New("handle is not leased")

	// ErrNoProvisionalLease is returned by Connected and Abort without a prior MustConnect lease
	ErrNoProvisionalLease = errors.New("no provisional lease for route key")

	// ErrInvalidRoute is returned when an endpoint cannot be turned into a route
	ErrInvalidRoute = errors.New("invalid route")
)
