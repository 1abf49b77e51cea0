package routing

import "errors"

var (
	// ErrNilTable is returned when an engine is built without an API source
	ErrNilTable = errors.New("routing engine requires an api source")

	// ErrNoDispatchers is returned when an engine is built with an empty dispatcher chain
	ErrNoDispatchers = errors.New("routing engine requires at least one dispatcher")

	// ErrInvalidTemplate is returned when a URI template cannot be compiled
	ErrInvalidTemplate = errors.New("invalid uri template")

	// ErrInvalidMapping is returned when a URL mapping is not exact, prefix or extension form
	ErrInvalidMapping = errors.New("invalid url mapping")
)
