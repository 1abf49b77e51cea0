package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchAPIPath(t *testing.T) {
	tests := []struct {
		path    string
		context string
		want    bool
	}{
		{"/orders", "/orders", true},
		{"/orders/42", "/orders", true},
		{"/orders?id=1", "/orders", true},
		{"/ordersx", "/orders", false},
		{"/order", "/orders", false},
		{"/anything/at/all", "/", true},
		{"/", "/", true},
		{"/a/b/c", "/a/b", true},
		{"/a/bc", "/a/b", false},
	}

	for _, tt := range tests {
		t.Run(tt.path+" under "+tt.context, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchAPIPath(tt.path, tt.context))
		})
	}
}

func TestSegmentCount(t *testing.T) {
	assert.Equal(t, 0, SegmentCount("/"))
	assert.Equal(t, 1, SegmentCount("/a"))
	assert.Equal(t, 3, SegmentCount("/a/b/c"))
	assert.Equal(t, 2, SegmentCount("//a//b/"))
}

func TestJoinAndTrim(t *testing.T) {
	assert.Equal(t, "/svc/v1", JoinPath("/svc", "v1"))
	assert.Equal(t, "/svc/v1", JoinPath("/svc/", "/v1/"))
	assert.Equal(t, "/v1", JoinPath("/", "v1"))
	assert.Equal(t, "a/b", TrimSlashes("//a/b//"))
	assert.Equal(t, "/a/b", TrimTrailingSlashes("/a/b///"))
}
