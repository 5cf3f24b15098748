package rfc9111

import (
	"net/http"
	"strings"
)

// §  4.1. Calculating Cache Keys with the Vary Header Field
// §
// §  When a cache receives a request that can be satisfied by a stored response
// §  and that stored response contains a Vary header field (Section 12.5.5 of
// §  [HTTP]), the cache MUST NOT use that stored response without revalidation
// §  unless all the presented request header fields nominated by that Vary field
// §  value match those fields in the original request (i.e., the request that
// §  caused the cached response to be stored).

// VaryData records the values of the request header fields nominated by
// the response's Vary header. It returns false when the response varies on
// "*" and therefore can never be matched.
func VaryData(reqHeader, resHeader http.Header) (http.Header, bool) {
	data := make(http.Header)
	for _, field := range GetListHeader(resHeader, "Vary") {
		// §  A stored response with a Vary header field value containing a member "*"
		// §  always fails to match.
		if field == "*" {
			return nil, false
		}
		if value := normalizedFieldValue(reqHeader, field); value != "" {
			data.Set(field, value)
		}
	}
	return data, true
}

// VaryMatches reports whether the request presents the same nominated header
// values as the request that caused the response to be stored.
func VaryMatches(varyData, reqHeader, resHeader http.Header) bool {
	fields := GetListHeader(resHeader, "Vary")
	if len(fields) == 0 {
		return true
	}
	if varyData == nil {
		return false
	}
	for _, field := range fields {
		if field == "*" {
			return false
		}
		// §  The header fields from two requests are defined to match if and only if
		// §  those in the first request can be transformed to those in the second
		// §  request by applying any of the following:
		// §
		// §    * adding or removing whitespace, where allowed in the header field's
		// §      syntax
		// §
		// §    * combining multiple header field lines with the same field name (see
		// §      Section 5.2 of [HTTP])
		if normalizedFieldValue(reqHeader, field) != varyData.Get(field) {
			return false
		}
	}
	return true
}

func normalizedFieldValue(header http.Header, field string) string {
	return strings.Join(GetListHeader(header, field), ",")
}
