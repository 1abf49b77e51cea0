package routing

import (
	"fmt"
	"strings"

	"mediation-router/internal/api"
)

// URLMappingDispatcher matches resources declaring a URL mapping. Exact
// mappings ("/a/b") win over path prefixes ("/a/*", longest first), which win
// over extensions ("*.xml").
type URLMappingDispatcher struct{}

// NewURLMappingDispatcher creates a URL-mapping dispatcher
func NewURLMappingDispatcher() *URLMappingDispatcher {
	return &URLMappingDispatcher{}
}

// Name implements Dispatcher
func (d *URLMappingDispatcher) Name() string {
	return "url-mapping"
}

// Dispatch implements Dispatcher
func (d *URLMappingDispatcher) Dispatch(target Target, candidates []*api.Resource) (*api.Resource, map[string]string, bool) {
	path := target.SubPath

	var prefixMatch, extensionMatch *api.Resource
	prefixLength := -1
	for _, r := range candidates {
		if r.URLMapping == "" {
			continue
		}
		mapping := parseMapping(r.URLMapping)
		switch mapping.kind {
		case mappingExact:
			if path == mapping.value || (path != "/" && strings.TrimSuffix(path, "/") == mapping.value) {
				return r, nil, true
			}
		case mappingPrefix:
			if matchesPrefix(path, mapping.value) && len(mapping.value) > prefixLength {
				prefixMatch, prefixLength = r, len(mapping.value)
			}
		case mappingExtension:
			if extensionMatch == nil && strings.HasSuffix(path, mapping.value) {
				extensionMatch = r
			}
		}
	}

	if prefixMatch != nil {
		return prefixMatch, nil, true
	}
	if extensionMatch != nil {
		return extensionMatch, nil, true
	}
	return nil, nil, false
}

type mappingKind int

const (
	mappingExact mappingKind = iota
	mappingPrefix
	mappingExtension
)

type urlMapping struct {
	kind  mappingKind
	value string
}

func parseMapping(mapping string) urlMapping {
	switch {
	case strings.HasPrefix(mapping, "*."):
		return urlMapping{kind: mappingExtension, value: mapping[1:]}
	case strings.HasSuffix(mapping, "/*"):
		return urlMapping{kind: mappingPrefix, value: strings.TrimSuffix(mapping, "/*")}
	default:
		return urlMapping{kind: mappingExact, value: mapping}
	}
}

func matchesPrefix(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// ValidateURLMapping checks that mapping is an exact path, a "/prefix/*" pattern
// or a "*.ext" pattern
func ValidateURLMapping(mapping string) error {
	switch {
	case strings.HasPrefix(mapping, "*."):
		if len(mapping) == 2 || strings.ContainsAny(mapping[2:], "/*") {
			return fmt.Errorf("%w: %q", ErrInvalidMapping, mapping)
		}
	case !strings.HasPrefix(mapping, "/"):
		return fmt.Errorf("%w: %q must start with '/' or '*.'", ErrInvalidMapping, mapping)
	case strings.Contains(strings.TrimSuffix(mapping, "/*"), "*"):
		return fmt.Errorf("%w: %q has a wildcard outside the trailing /*", ErrInvalidMapping, mapping)
	}
	return nil
}

// DefaultDispatcher selects the first candidate that declares neither a URL
// mapping nor a URI template
type DefaultDispatcher struct{}

// NewDefaultDispatcher creates the catch-all dispatcher
func NewDefaultDispatcher() *DefaultDispatcher {
	return &DefaultDispatcher{}
}

// Name implements Dispatcher
func (d *DefaultDispatcher) Name() string {
	return "default"
}

// Dispatch implements Dispatcher
func (d *DefaultDispatcher) Dispatch(_ Target, candidates []*api.Resource) (*api.Resource, map[string]string, bool) {
	for _, r := range candidates {
		if r.URLMapping == "" && r.URITemplate == "" {
			return r, nil, true
		}
	}
	return nil, nil, false
}
