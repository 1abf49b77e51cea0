package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediation-router/internal/api"
)

func target(subPath, rawQuery string) Target {
	query, _ := api.ParseQuery(rawQuery)
	return Target{Method: "GET", SubPath: subPath, RawQuery: rawQuery, Query: query}
}

func mapped(mapping string) *api.Resource {
	return &api.Resource{Methods: []string{"GET"}, URLMapping: mapping}
}

func templated(template string) *api.Resource {
	return &api.Resource{Methods: []string{"GET"}, URITemplate: template}
}

func TestURLMappingDispatcher(t *testing.T) {
	exact := mapped("/status")
	files := mapped("/files/*")
	private := mapped("/files/private/*")
	xml := mapped("*.xml")
	candidates := []*api.Resource{xml, files, private, exact}
	d := NewURLMappingDispatcher()

	tests := []struct {
		path string
		want *api.Resource
	}{
		{"/status", exact},
		{"/status/", exact},
		{"/files", files},
		{"/files/a/b.xml", files},
		{"/files/private/key", private},
		{"/report.xml", xml},
		{"/statusx", nil},
		{"/other", nil},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, vars, ok := d.Dispatch(target(tt.path, ""), candidates)
			assert.Nil(t, vars)
			if tt.want == nil {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Same(t, tt.want, got)
		})
	}
}

func TestURLMappingDispatcher_IgnoresOtherKinds(t *testing.T) {
	_, _, ok := NewURLMappingDispatcher().Dispatch(target("/x", ""), []*api.Resource{templated("/x"), {Methods: []string{"GET"}}})
	assert.False(t, ok)
}

func TestValidateURLMapping(t *testing.T) {
	for _, valid := range []string{"/a", "/a/*", "/*", "*.xml"} {
		assert.NoError(t, ValidateURLMapping(valid), valid)
	}
	for _, invalid := range []string{"a", "*.", "*.x/y", "/a/*/b", "/a*"} {
		assert.ErrorIs(t, ValidateURLMapping(invalid), ErrInvalidMapping, invalid)
	}
}

func TestURITemplateDispatcher(t *testing.T) {
	byID := templated("/orders/{id:[0-9]+}")
	byName := templated("/orders/{name}")
	search := templated("/search?q={query}&page={page}")
	candidates := []*api.Resource{byID, byName, search}
	d := NewURITemplateDispatcher()

	got, vars, ok := d.Dispatch(target("/orders/42", ""), candidates)
	require.True(t, ok)
	assert.Same(t, byID, got)
	assert.Equal(t, "42", vars["id"])

	got, vars, ok = d.Dispatch(target("/orders/latest", ""), candidates)
	require.True(t, ok)
	assert.Same(t, byName, got)
	assert.Equal(t, "latest", vars["name"])

	got, vars, ok = d.Dispatch(target("/search", "q=a%20b&x&page=2"), candidates)
	require.True(t, ok)
	assert.Same(t, search, got)
	assert.Equal(t, "a b&x", vars["query"])
	assert.Equal(t, "2", vars["page"])

	_, _, ok = d.Dispatch(target("/search", "page=2"), candidates)
	assert.False(t, ok)

	_, _, ok = d.Dispatch(target("/orders/1/lines", ""), candidates)
	assert.False(t, ok)
}

func TestURITemplateDispatcher_DecodesPathVariables(t *testing.T) {
	file := templated("/files/{name}")
	nested := templated("/files/{dir}/{name}")
	d := NewURITemplateDispatcher()

	got, vars, ok := d.Dispatch(target("/files/a%20b", ""), []*api.Resource{file, nested})
	require.True(t, ok)
	assert.Same(t, file, got)
	assert.Equal(t, map[string]string{"name": "a b"}, vars)

	got, vars, ok = d.Dispatch(target("/files/a%2Fb", ""), []*api.Resource{nested, file})
	require.True(t, ok)
	assert.Same(t, file, got, "an encoded slash stays inside one segment")
	assert.Equal(t, "a/b", vars["name"])
}

func TestURITemplateDispatcher_SkipsBrokenTemplates(t *testing.T) {
	broken := templated("/orders/{id")
	good := templated("/orders/{id}")

	got, _, ok := NewURITemplateDispatcher().Dispatch(target("/orders/1", ""), []*api.Resource{broken, good})
	require.True(t, ok)
	assert.Same(t, good, got)
}

func TestValidateTemplate(t *testing.T) {
	assert.NoError(t, ValidateTemplate("/orders/{id}"))
	assert.NoError(t, ValidateTemplate("/search?q={q}"))
	assert.ErrorIs(t, ValidateTemplate("orders/{id}"), ErrInvalidTemplate)
	assert.ErrorIs(t, ValidateTemplate("/orders/{id"), ErrInvalidTemplate)
	assert.ErrorIs(t, ValidateTemplate("/search?q"), ErrInvalidTemplate)
}

func TestDefaultDispatcher(t *testing.T) {
	first := &api.Resource{Methods: []string{"GET"}}
	second := &api.Resource{Methods: []string{"POST"}}

	got, _, ok := NewDefaultDispatcher().Dispatch(target("/anything", ""), []*api.Resource{mapped("/x"), first, second})
	require.True(t, ok)
	assert.Same(t, first, got)

	_, _, ok = NewDefaultDispatcher().Dispatch(target("/anything", ""), []*api.Resource{mapped("/x")})
	assert.False(t, ok)
}
