package cachekey

import (
	"fmt"
	"net/http"
	"net/url"
)

var ErrorMalformedKey = fmt.Errorf("Malformed key")

// CacheKeyer derives cache keys from requests.
// A key identifies a stored response regardless of the request method:
// it is the absolute request URL without the fragment.
type CacheKeyer struct {
	// Origin used to complete requests that only carry a path (e.g. incoming server requests).
	// May be nil for client requests, which always have an absolute URL.
	Origin *url.URL
}

func NewCacheKeyer(origin *url.URL) CacheKeyer {
	return CacheKeyer{Origin: origin}
}

// Cacheable reports whether responses to the request can be looked up or stored.
// Only GET requests are kept in the cache.
func (c CacheKeyer) Cacheable(r *http.Request) bool {
	return r.Method == "" || r.Method == http.MethodGet
}

// GetKey returns the cache key for a request.
func (c CacheKeyer) GetKey(r *http.Request) string {
	u := *r.URL
	u.Fragment = ""
	u.RawFragment = ""
	if u.Host == "" && c.Origin != nil {
		u.Scheme = c.Origin.Scheme
		u.Host = c.Origin.Host
	}
	return u.String()
}

// GetRequestFromKey creates a GET request equal (caching-wise) to the request that
// resulted in the provided key.
func (c CacheKeyer) GetRequestFromKey(key string) (*http.Request, error) {
	u, err := url.Parse(key)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("%w: %s", ErrorMalformedKey, key)
	}
	return http.NewRequest(http.MethodGet, u.String(), nil)
}
