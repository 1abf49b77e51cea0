package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediation-router/internal/common/errors"
)

func TestParseQuery_BareTokenContinuesPreviousValue(t *testing.T) {
	params, err := ParseQuery("a=1&b=x&y&z=2")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"a": "1",
		"b": "x&y",
		"z": "2",
	}, params)
}

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  map[string]string
	}{
		{"empty", "", map[string]string{}},
		{"decodes values", "q=hello%20world&plus=a+b", map[string]string{"q": "hello world", "plus": "a b"}},
		{"several continuations", "b=x&y&w&c=1", map[string]string{"b": "x&y&w", "c": "1"}},
		{"leading bare token dropped", "flag&a=1", map[string]string{"a": "1"}},
		{"trailing delimiters ignored", "a=1&&", map[string]string{"a": "1"}},
		{"inner empty entry continues value", "a=1&&b=2", map[string]string{"a": "1&", "b": "2"}},
		{"last value wins", "a=1&a=2", map[string]string{"a": "2"}},
		{"empty value", "a=", map[string]string{"a": ""}},
		{"continuation kept literally", "a=x&%41", map[string]string{"a": "x&%41"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := ParseQuery(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, params)
		})
	}
}

func TestParseQuery_MalformedEncoding(t *testing.T) {
	_, err := ParseQuery("a=%zz")
	assert.Error(t, err)
}

func TestRequestQuery_MalformedIsBadRequest(t *testing.T) {
	req := NewRequest(http.MethodGet, "/orders?id=%E0%A4%A")

	params, err := req.Query()
	assert.Nil(t, params)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeBadRequest))
	assert.Contains(t, err.Error(), "GET")
	assert.Contains(t, err.Error(), "/orders")

	_, again := req.Query()
	assert.Same(t, err, again)
}

func TestRequestQuery(t *testing.T) {
	req := NewRequest(http.MethodGet, "/orders?a=1&b=x&y&z=2")

	params, err := req.Query()
	require.NoError(t, err)
	assert.Equal(t, "x&y", params["b"])
	assert.Equal(t, "a=1&b=x&y&z=2", req.RawQuery())
	assert.Equal(t, "/orders", req.Path())
}
