package transport

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinURL_SingleSeparator(t *testing.T) {
	for slashes := 0; slashes <= 3; slashes++ {
		base := "https://node.example.com/api" + strings.Repeat("/", slashes)
		for _, path := range []string{"users/1", "/users/1"} {
			c := New(base)
			got, err := joinURL(c.BaseURL(), path)
			require.NoError(t, err)
			assert.Equal(t, "https://node.example.com/api/users/1", got, "base=%q path=%q", base, path)
		}
	}
}

func TestJoinURL_Absolute(t *testing.T) {
	got, err := joinURL("https://a.example.com", "https://b.example.com/x")
	require.NoError(t, err)
	assert.Equal(t, "https://b.example.com/x", got)

	_, err = joinURL("", "/x")
	assert.ErrorIs(t, err, ErrRelativeURL)
}

func TestResolveURL_Query(t *testing.T) {
	u, err := resolveURL("https://n.example.com", "/search?q=a", url.Values{"page": {"2"}})
	require.NoError(t, err)
	assert.Equal(t, "a", u.Query().Get("q"))
	assert.Equal(t, "2", u.Query().Get("page"))
}

func TestMergeHeaders_CaseInsensitive(t *testing.T) {
	defaults := http.Header{"X-Api-Key": {"default"}, "accept": {"application/json"}}
	overrides := http.Header{"x-api-key": {"caller"}, "ACCEPT": {"text/plain"}}

	merged := mergeHeaders(defaults, overrides)

	assert.Len(t, merged, 2)
	assert.Equal(t, []string{"caller"}, merged["X-Api-Key"])
	assert.Equal(t, []string{"text/plain"}, merged["Accept"])
	assert.Equal(t, []string{"default"}, defaults["X-Api-Key"], "defaults are not mutated")
}

func TestInferMode(t *testing.T) {
	tests := map[string]ParseMode{
		"application/json":                ModeJSON,
		"application/json; charset=utf-8": ModeJSON,
		"application/problem+json":        ModeJSON,
		"text/plain":                      ModeText,
		"text/html; charset=utf-8":        ModeText,
		"application/octet-stream":        ModeBytes,
		"image/png":                       ModeBytes,
		"video/mp4":                       ModeBytes,
		"audio/ogg":                       ModeBytes,
		"application/xml":                 ModeJSON,
		"":                                ModeJSON,
	}
	for ct, want := range tests {
		assert.Equal(t, want, InferMode(ct), ct)
	}
}
