package rfc9111

import (
	"net/http"
	"time"
)

// §  4.2. Freshness
// §
// §  A "fresh" response is one whose age has not yet exceeded its freshness
// §  lifetime. Conversely, a "stale" response is one where it has.
// §
// §  The calculation to determine if a response is fresh is:
// §
// §     response_is_fresh = (freshness_lifetime > current_age)
func isFresh(statusCode int, header http.Header, requestTime, responseTime, now time.Time) bool {
	return freshness_lifetime(statusCode, header, responseTime) > current_age(header, requestTime, responseTime, now)
}
