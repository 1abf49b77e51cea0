package api

import (
	"net/url"
	"strings"
)

// ParseQuery decodes a raw query string into a name to value map.
//
// An entry without '=' is not a parameter of its own: it continues the previous
// value, so "a=1&b=x&y&z=2" yields b = "x&y". The continuation text is kept
// literally. A bare entry before any named parameter is dropped, as are trailing
// empty entries. Repeated names keep the last value.
func ParseQuery(query string) (map[string]string, error) {
	params := make(map[string]string)
	query = strings.TrimRight(query, "&")
	if query == "" {
		return params, nil
	}

	name := ""
	for _, entry := range strings.Split(query, "&") {
		if i := strings.IndexByte(entry, '='); i >= 0 {
			name = entry[:i]
			value, err := url.QueryUnescape(entry[i+1:])
			if err != nil {
				return nil, err
			}
			params[name] = value
			continue
		}
		if name == "" {
			continue
		}
		params[name] += "&" + entry
	}
	return params, nil
}
