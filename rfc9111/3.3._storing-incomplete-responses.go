package rfc9111

import (
	"net/http"
	"strconv"
	"strings"
)

// §  3.3. Storing Incomplete Responses
// §
// §  If the request method is GET, the response status code is 200 (OK), and the
// §  entire response header section has been received, a cache MAY store a
// §  response that is not complete (Section 6.1 of [HTTP]) provided that the
// §  stored response is recorded as being incomplete. Likewise, a 206 (Partial
// §  Content) response MAY be stored as if it were an incomplete 200 (OK)
// §  response. However, a cache MUST NOT store incomplete or partial-content
// §  responses if it does not support the Range and Content-Range header fields
// §  or if it does not understand the range units used in those fields.
// §
// §  A cache MAY complete a stored incomplete response by making a subsequent
// §  range request (Section 14.2 of [HTTP]) and combining the successful
// §  response with the stored response, as defined in Section 3.4.

// CanResume reports whether an incomplete 200 response can later be
// completed with a range request: it needs a strong validator, a known
// length and must not refuse ranges.
func CanResume(statusCode int, header http.Header) bool {
	if statusCode != http.StatusOK {
		return false
	}
	if _, ok := IfRange(header); !ok {
		return false
	}
	if ContentLength(header) <= 0 {
		return false
	}
	for _, unit := range GetListHeader(header, "Accept-Ranges") {
		if strings.EqualFold(unit, "none") {
			return false
		}
	}
	return true
}

// ContentLength returns the Content-Length value, or -1 when absent or invalid.
func ContentLength(header http.Header) int64 {
	cl := strings.TrimSpace(header.Get("Content-Length"))
	if cl == "" {
		return -1
	}
	n, err := strconv.ParseInt(cl, 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}
