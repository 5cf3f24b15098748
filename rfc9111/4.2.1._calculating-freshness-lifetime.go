package rfc9111

import (
	"net/http"
	"time"
)

// §  4.2.1. Calculating Freshness Lifetime
// §
// §  A cache can calculate the freshness lifetime (denoted as freshness_lifetime)
// §  of a response by evaluating the following rules and using the first match:
// §
// §    * If the cache is shared and the s-maxage response directive (Section
// §      5.2.2.10) is present, use its value, or
// §
// §    * If the max-age response directive (Section 5.2.2.1) is present, use its
// §      value, or
// §
// §    * If the Expires response header field (Section 5.3) is present, use its
// §      value minus the value of the Date response header field (using the time the
// §      message was received if it is not present, as per Section 6.6.1 of [HTTP]),
// §      or
// §
// §    * Otherwise, no explicit expiration time is present in the response. A
// §      heuristic freshness lifetime might be applicable; see Section 4.2.2.
func freshness_lifetime(statusCode int, header http.Header, responseTime time.Time) time.Duration {
	cc := ParseCacheControl(header.Values("Cache-Control"))
	if val, ok := cc.SMaxAge(); ok {
		return val
	}
	if val, ok := cc.MaxAge(); ok {
		return val
	}
	if expires, ok := getExpires(header); ok {
		if expires.IsZero() {
			return 0
		}
		lifetime := expires.Sub(date_value(header, responseTime))
		if lifetime < 0 {
			return 0
		}
		return lifetime
	}
	return heuristic_freshness(statusCode, header, responseTime)
}

// FreshnessLifetime returns the freshness lifetime of a stored response.
func FreshnessLifetime(statusCode int, header http.Header, responseTime time.Time) time.Duration {
	return freshness_lifetime(statusCode, header, responseTime)
}

// hasExplicitExpiration reports whether freshness comes from the response itself.
func hasExplicitExpiration(header http.Header) bool {
	cc := ParseCacheControl(header.Values("Cache-Control"))
	if _, ok := cc.SMaxAge(); ok {
		return true
	}
	if _, ok := cc.MaxAge(); ok {
		return true
	}
	_, ok := getExpires(header)
	return ok
}
