package api

import (
	"fmt"
	"strings"
)

// VersionKind tags the variant held by a VersionStrategy
type VersionKind uint8

const (
	// KindNone matches any request under the context
	KindNone VersionKind = iota
	// KindContext embeds the version in the context path
	KindContext
	// KindURL reads the version token from the path, a query parameter or a header
	KindURL
)

// String returns the name used in API definitions
func (k VersionKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindContext:
		return "context"
	case KindURL:
		return "url"
	default:
		return fmt.Sprintf("VersionKind(%d)", uint8(k))
	}
}

// VersionSource says where a URL-versioned API finds the request's version token
type VersionSource string

const (
	SourcePath   VersionSource = "path"
	SourceQuery  VersionSource = "query"
	SourceHeader VersionSource = "header"
)

const (
	// VersionPlaceholder is substituted with the version in context-versioned APIs
	VersionPlaceholder = "{version}"

	defaultVersionParam  = "version"
	defaultVersionHeader = "X-API-Version"
)

// VersionStrategy is a closed tagged variant. Build it with NoVersion,
// ContextVersion or URLVersion; the zero value is NoVersion.
type VersionStrategy struct {
	Kind    VersionKind
	Version string
	Source  VersionSource
	Param   string
}

// NoVersion returns the strategy that accepts every request under the context
func NoVersion() VersionStrategy {
	return VersionStrategy{Kind: KindNone}
}

// ContextVersion returns a strategy that embeds version in the context
func ContextVersion(version string) VersionStrategy {
	return VersionStrategy{Kind: KindContext, Version: version}
}

// URLVersion returns a strategy reading the version token from source.
// param names the query parameter or header; it defaults per source.
func URLVersion(version string, source VersionSource, param string) VersionStrategy {
	if source == "" {
		source = SourcePath
	}
	if param == "" {
		switch source {
		case SourceQuery:
			param = defaultVersionParam
		case SourceHeader:
			param = defaultVersionHeader
		}
	}
	return VersionStrategy{Kind: KindURL, Version: version, Source: source, Param: param}
}

// IsVersioned reports whether the strategy takes part in the first selection pass
func (s VersionStrategy) IsVersioned() bool {
	return s.Kind != KindNone
}

func (s VersionStrategy) validate() error {
	switch s.Kind {
	case KindNone:
		return nil
	case KindContext:
		if s.Version == "" {
			return ErrInvalidVersion
		}
		return nil
	case KindURL:
		if s.Version == "" {
			return ErrInvalidVersion
		}
		switch s.Source {
		case SourcePath, SourceQuery, SourceHeader:
			return nil
		default:
			return fmt.Errorf("unknown version source %q", s.Source)
		}
	default:
		return fmt.Errorf("unknown version strategy %s", s.Kind)
	}
}

// String renders the strategy for logs
func (s VersionStrategy) String() string {
	switch s.Kind {
	case KindContext:
		return "context:" + s.Version
	case KindURL:
		return fmt.Sprintf("url:%s(%s)", s.Version, s.Source)
	default:
		return "none"
	}
}

// EffectiveContext returns the context requests are matched against. For
// context-versioned APIs the placeholder is substituted, or the version is
// appended as a trailing segment when the context has no placeholder.
func EffectiveContext(context string, s VersionStrategy) string {
	if s.Kind != KindContext {
		return context
	}
	if strings.Contains(context, VersionPlaceholder) {
		return strings.ReplaceAll(context, VersionPlaceholder, s.Version)
	}
	return JoinPath(context, s.Version)
}

// versionToken extracts the request's version token for a URL-versioned API
// mounted at context. fromPath reports whether the token is a path segment.
// A query that cannot be decoded is returned as an error.
func (s VersionStrategy) versionToken(req *Request, context string) (token string, fromPath bool, err error) {
	switch s.Source {
	case SourceQuery:
		params, err := req.Query()
		if err != nil {
			return "", false, err
		}
		return params[s.Param], false, nil
	case SourceHeader:
		if req.Header == nil {
			return "", false, nil
		}
		return req.Header.Get(s.Param), false, nil
	default:
		rest := strings.TrimPrefix(req.Path(), strings.TrimSuffix(context, "/"))
		rest = strings.TrimPrefix(rest, "/")
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		return rest, true, nil
	}
}
