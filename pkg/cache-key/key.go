package cachekey

import (
	"fmt"
	"net/http"
	"strings"
)

const (
	originSeparator = ":"
	methodSeparator = ":"
	extraSeparator  = "\t"
)

type CacheKeyer struct {
	// Unique identifier for the origin.
	// Usually this should be the origin - well - origin.
	OriginId string
	// Cache key prefix for this origin
	OriginPrefix string
}

func NewCacheKeyer(originId string) CacheKeyer {
	return CacheKeyer{
		OriginId:     originId,
		OriginPrefix: originId + originSeparator,
	}
}

// Key returns the cache key for a request.
// HEAD requests share the entry of the corresponding GET.
// If the request has a `Cache-Key` header, that value is included in the key.
func (c CacheKeyer) Key(r *http.Request) string {
	method := r.Method
	if method == http.MethodHead {
		method = http.MethodGet
	}
	return c.KeyFor(method, r.URL.RequestURI(), r.Header.Get("Cache-Key"))
}

// KeyFor builds a key from its parts, e.g. for invalidating a URI that
// was not itself requested.
func (c CacheKeyer) KeyFor(method, requestURI, extra string) string {
	return c.OriginPrefix + method + methodSeparator + requestURI + extraSeparator + extra
}

// GetRequestFromKey generates a request that maps to the provided key.
// It returns an error if the request cannot for some reason be deducted.
func (c CacheKeyer) GetRequestFromKey(key string) (*http.Request, error) {
	if !strings.HasPrefix(key, c.OriginPrefix) {
		return nil, fmt.Errorf("Key and origin do not match")
	}
	keyNoOrigin := strings.TrimPrefix(key, c.OriginPrefix)
	keyNoExtra, extra, found := strings.Cut(keyNoOrigin, extraSeparator)
	if !found {
		return nil, fmt.Errorf("Malformed key: %s", key)
	}
	method, uri, found := strings.Cut(keyNoExtra, methodSeparator)
	if !found {
		return nil, fmt.Errorf("Malformed key: %s", key)
	}
	req, err := http.NewRequest(method, uri, nil)
	if err != nil {
		return req, err
	}
	if extra != "" {
		req.Header.Set("Cache-Key", extra)
	}
	return req, nil
}
