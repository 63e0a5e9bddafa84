package transport

import (
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

// joinURL resolves path against base with exactly one separating slash.
// Absolute http(s) URLs are returned unchanged.
func joinURL(base, path string) (string, error) {
	if isAbsoluteURL(path) {
		return path, nil
	}
	if base == "" {
		return "", ErrRelativeURL
	}
	return base + "/" + strings.TrimLeft(path, "/"), nil
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// resolveURL joins path to base and merges query into the result.
func resolveURL(base, path string, query url.Values) (*url.URL, error) {
	raw, err := joinURL(base, path)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}

// mergeHeaders copies defaults and overlays overrides. Keys are compared
// case-insensitively and an override replaces every value of its key.
func mergeHeaders(defaults, overrides http.Header) http.Header {
	out := make(http.Header, len(defaults)+len(overrides))
	for k, vs := range defaults {
		out[textproto.CanonicalMIMEHeaderKey(k)] = append([]string(nil), vs...)
	}
	for k, vs := range overrides {
		out[textproto.CanonicalMIMEHeaderKey(k)] = append([]string(nil), vs...)
	}
	return out
}
