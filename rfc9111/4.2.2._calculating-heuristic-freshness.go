package rfc9111

import (
	"net/http"
	"time"
)

// HeuristicFraction is the share of the time since Last-Modified that a
// response without explicit expiration is considered fresh for.
const HeuristicFraction = 10

// heuristicallyCacheable lists the status codes that are cacheable by default.
var heuristicallyCacheable = map[int]bool{
	200: true, 203: true, 204: true, 206: true,
	300: true, 301: true, 308: true,
	404: true, 405: true, 410: true, 414: true,
	501: true,
}

// §  4.2.2. Calculating Heuristic Freshness
// §
// §  If the response has a Last-Modified header field (Section 8.8.2 of [HTTP]),
// §  caches are encouraged to use a heuristic expiration value that is no more
// §  than some fraction of the interval since that time. A typical setting of
// §  this fraction might be 10%.
func heuristic_freshness(statusCode int, header http.Header, responseTime time.Time) time.Duration {
	cc := ParseCacheControl(header.Values("Cache-Control"))
	if !heuristicallyCacheable[statusCode] && !cc.HasDirective("public") {
		return 0
	}
	lastModified, err := HttpDate(header.Get("Last-Modified"))
	if err != nil {
		return 0
	}
	since := date_value(header, responseTime).Sub(lastModified)
	if since <= 0 {
		return 0
	}
	return since / HeuristicFraction
}
