package rfc9111

import (
	"net/http"
	"net/url"
)

// UnsafeRequest reports whether the request method is not known to be safe.
func UnsafeRequest(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	return true
}

// InvalidationURIs returns the request targets whose stored responses have
// to be invalidated after the response to an unsafe request. The returned
// values are in request-target form.
//
// §  4.4. Invalidating Stored Responses
// §
// §  Because unsafe request methods (Section 9.2.1 of [HTTP]) such as PUT, POST,
// §  or DELETE have the potential for changing state on the origin server,
// §  intervening caches are required to invalidate stored responses to keep
// §  their contents up to date.
// §
// §  A cache MUST invalidate the target URI (Section 7.1 of [HTTP]) when it
// §  receives a non-error status code in response to an unsafe request method
// §  (including methods whose safety is unknown).
// §
// §  A cache MAY invalidate other URIs when it receives a non-error status code
// §  in response to an unsafe request method (including methods whose safety is
// §  unknown). In particular, the URI(s) in the Location and Content-Location
// §  response header fields (if present) are candidates for invalidation; other
// §  URIs might be discovered through mechanisms not specified in this document.
// §  However, a cache MUST NOT trigger an invalidation under these conditions if
// §  the origin (Section 4.3.1 of [HTTP]) of the URI to be invalidated differs
// §  from that of the target URI (Section 7.1 of [HTTP]). This helps prevent
// §  denial-of-service attacks.
func InvalidationURIs(req *http.Request, statusCode int, header http.Header) []string {
	if !UnsafeRequest(req) || statusCode < 200 || statusCode >= 400 {
		return nil
	}
	uris := []string{req.URL.RequestURI()}
	for _, field := range []string{"Location", "Content-Location"} {
		value := header.Get(field)
		if value == "" {
			continue
		}
		u, err := url.Parse(value)
		if err != nil {
			continue
		}
		if u.IsAbs() && u.Host != req.Host && u.Host != req.URL.Host {
			continue
		}
		resolved := req.URL.ResolveReference(u)
		uris = append(uris, resolved.RequestURI())
	}
	return uris
}
