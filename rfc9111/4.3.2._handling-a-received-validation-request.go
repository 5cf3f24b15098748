package rfc9111

import (
	"net/http"
	"strings"
)

// §  4.3.2. Handling a Received Validation Request
// §
// §  Each client in the request chain may have its own cache, so it is common for
// §  a cache at an intermediary to receive conditional requests from other
// §  (outbound) caches. Likewise, some user agents make use of conditional
// §  requests to limit data transfers to recently modified representations or to
// §  complete the transfer of a partially retrieved representation.

// IsValidationRequest reports whether the request carries If-None-Match or
// If-Modified-Since, i.e. the client validates its own stored response.
func IsValidationRequest(header http.Header) bool {
	return header.Get("If-None-Match") != "" || header.Get("If-Modified-Since") != ""
}

// HasOtherPreconditions reports preconditions a cache cannot evaluate
// against its stored response.
func HasOtherPreconditions(header http.Header) bool {
	return header.Get("If-Match") != "" ||
		header.Get("If-Unmodified-Since") != "" ||
		header.Get("If-Range") != ""
}

// ValidatorsMatch reports whether the validators in the request identify
// the stored response.
//
// §  A cache MUST NOT evaluate conditional header fields that only apply to an
// §  origin server, occur in a request with semantics that cannot be satisfied
// §  with a cached response, or occur in a request with a target resource for
// §  which it has no stored responses; such preconditions are likely intended for
// §  some other (inbound) server.
func ValidatorsMatch(reqHeader, stored http.Header) bool {
	matched := false
	if inm := reqHeader.Get("If-None-Match"); inm != "" {
		etag := stored.Get("ETag")
		if etag == "" {
			return false
		}
		// §  If-None-Match uses weak comparison
		found := false
		for _, candidate := range GetListHeader(reqHeader, "If-None-Match") {
			if weakMatch(candidate, etag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
		matched = true
	}
	if ims := reqHeader.Get("If-Modified-Since"); ims != "" {
		if ims != stored.Get("Last-Modified") {
			return false
		}
		matched = true
	}
	return matched
}

func weakMatch(a, b string) bool {
	return strings.TrimPrefix(a, "W/") == strings.TrimPrefix(b, "W/")
}
