package rfc9111

import (
	"net/http"
	"time"
)

// §  4.2.4.  Serving Stale Responses
// §
// §     A "stale" response is one that either has explicit expiry information
// §     or is allowed to have heuristic expiry calculated, but is not fresh
// §     according to the calculations in Section 4.2.

// MayServeStale reports whether a shared cache may serve the stored
// response without validation even though it is stale, e.g. because the
// client asked it to skip validation. A fresh response is always allowed.
//
// §     A cache MUST NOT generate a stale response if it is prohibited by an
// §     explicit in-protocol directive (e.g., by a no-cache response
// §     directive, a must-revalidate response directive, or an applicable
// §     s-maxage or proxy-revalidate response directive; see Section 5.2.2).
func MayServeStale(statusCode int, header http.Header, requestTime, responseTime, now time.Time) bool {
	if isFresh(statusCode, header, requestTime, responseTime, now) {
		return true
	}
	cc := ParseCacheControl(header.Values("Cache-Control"))
	if cc.MustRevalidate() || cc.HasDirective("no-cache") {
		return false
	}
	_, sMaxAge := cc.SMaxAge()
	return !sMaxAge
}
