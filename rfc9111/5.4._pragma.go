package rfc9111

import (
	"net/http"
	"strings"
)

// PragmaNoCache reports whether a request carries "Pragma: no-cache"
// without a Cache-Control header to override it.
//
// §  When the Cache-Control header field is also present and understood in a
// §  request, Pragma is ignored.
func PragmaNoCache(header http.Header) bool {
	if len(header.Values("Cache-Control")) > 0 {
		return false
	}
	for _, directive := range GetListHeader(header, "Pragma") {
		if strings.EqualFold(directive, "no-cache") {
			return true
		}
	}
	return false
}
