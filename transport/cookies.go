package transport

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"golang.org/x/net/publicsuffix"
)

// NewCookieJar returns a cookie jar that respects public suffix boundaries.
func NewCookieJar() http.CookieJar {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return jar
}

// cookiesAllowed applies the credentials policy to u.
func (c *Client) cookiesAllowed(u *url.URL, mode CredentialsMode) bool {
	if c.cfg.CookieJar == nil {
		return false
	}
	switch mode {
	case Include:
		return true
	case SameOrigin:
		return c.base != nil && sameOrigin(c.base, u)
	default:
		return false
	}
}

func sameOrigin(a, b *url.URL) bool {
	return a.Scheme == b.Scheme && a.Host == b.Host
}
