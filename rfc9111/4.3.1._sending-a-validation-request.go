package rfc9111

import (
	"net/http"
	"strings"
	"time"
)

// strongLastModifiedSlack is how much older than Date a Last-Modified value
// has to be to count as a strong validator (RFC 9110 8.8.2.2).
const strongLastModifiedSlack = 60 * time.Second

// §  4.3.1. Sending a Validation Request
// §
// §  When generating a conditional request for validation, a cache either starts
// §  with a request it is attempting to satisfy or -- if it is initiating the
// §  request independently -- synthesizes a request using a stored response by
// §  copying the method, target URI, and request header fields identified by the
// §  Vary header field (Section 4.1).
// §
// §  It then updates that request with one or more precondition header fields.
// §  These contain validator metadata sourced from a stored response(s) that has
// §  the same URI. Typically, this will include only the stored response(s) that
// §  has the same cache key, although a cache is allowed to validate a response
// §  that it cannot choose with the request header fields it is sending (see
// §  Section 4.1).

// ConditionalHeaders returns the precondition header fields that validate
// the stored response, or false when it carries no usable validator.
//
// When the Vary-nominated request fields do not match the stored response,
// only an entity tag is usable.
//
// §  When generating a conditional request for validation, a cache [...]
// §  SHOULD send both an entity tag and a Last-Modified date [...]
func ConditionalHeaders(stored http.Header, varyMatched bool) (http.Header, bool) {
	h := make(http.Header)
	if etag := stored.Get("ETag"); etag != "" {
		h.Set("If-None-Match", etag)
	}
	if lm := stored.Get("Last-Modified"); lm != "" && varyMatched {
		if _, err := HttpDate(lm); err == nil {
			h.Set("If-Modified-Since", lm)
		}
	}
	return h, len(h) > 0
}

// IfRange returns a strong validator for use in an If-Range field.
func IfRange(stored http.Header) (string, bool) {
	if etag := stored.Get("ETag"); etag != "" {
		if strings.HasPrefix(etag, "W/") {
			return "", false
		}
		return etag, true
	}
	lm := stored.Get("Last-Modified")
	if lm == "" {
		return "", false
	}
	lastModified, err := HttpDate(lm)
	if err != nil {
		return "", false
	}
	date, err := HttpDate(stored.Get("Date"))
	if err != nil || date.Sub(lastModified) < strongLastModifiedSlack {
		return "", false
	}
	return lm, true
}

// HasValidator reports whether a stored response can be conditionally requested.
func HasValidator(stored http.Header) bool {
	_, ok := ConditionalHeaders(stored, true)
	return ok
}
