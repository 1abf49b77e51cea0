package api

import "errors"

var (
	// ErrEmptyName is returned when an API has no name
	ErrEmptyName = errors.New("api name cannot be empty")

	// ErrInvalidContext is returned when an API context is empty or not absolute
	ErrInvalidContext = errors.New("api context must be non-empty and start with '/'")

	// ErrNoMethods is returned when a resource accepts no HTTP methods
	ErrNoMethods = errors.New("resource must accept at least one method")

	// ErrUnknownMethod is returned when a resource lists a method that is not an HTTP verb
	ErrUnknownMethod = errors.New("unknown HTTP method")

	// ErrConflictingPattern is returned when a resource sets both a URL mapping and a URI template
	ErrConflictingPattern = errors.New("resource cannot declare both a url mapping and a uri template")

	// ErrInvalidVersion is returned when a versioned strategy has no version
	ErrInvalidVersion = errors.New("versioned strategy requires a version")

	// ErrInvalidFilter is returned when a resource filter pattern does not compile
	ErrInvalidFilter = errors.New("invalid resource filter")
)
