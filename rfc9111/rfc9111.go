// Package rfc9111 implements the caching rules of RFC 9111 (HTTP Caching)
// needed by the transaction engine: storability, freshness, age, validation
// and invalidation.
//
// Files are named after the RFC section they implement. Functions that
// mirror an RFC formula keep the RFC's own names (e.g. current_age).
//
// All time calculations take the current time as an argument so that callers
// can supply their own clock.
package rfc9111

import (
	"net/http"
	"time"
)

// NeedsValidation reports whether a stored response must be validated with
// the origin before it can be reused to satisfy a request.
func NeedsValidation(statusCode int, header http.Header, requestTime, responseTime, now time.Time) bool {
	cc := ParseCacheControl(header.Values("Cache-Control"))
	// §  The no-cache response directive, in its unqualified form (without an
	// §  argument), indicates that the response MUST NOT be used to satisfy
	// §  any other request without forwarding it for validation
	if cc.HasDirective("no-cache") {
		return true
	}
	return !isFresh(statusCode, header, requestTime, responseTime, now)
}

// TimeToLive returns the remaining freshness of a stored response,
// which is negative when the response is stale.
func TimeToLive(statusCode int, header http.Header, requestTime, responseTime, now time.Time) time.Duration {
	return freshness_lifetime(statusCode, header, responseTime) - current_age(header, requestTime, responseTime, now)
}
