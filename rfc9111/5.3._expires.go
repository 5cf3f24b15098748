package rfc9111

import (
	"net/http"
	"time"
)

// getExpires returns the Expires value and whether the header was present.
// A present but invalid value yields the zero time.
//
// §  A cache recipient MUST interpret invalid date formats, especially the value
// §  "0", as representing a time in the past (i.e., "already expired").
func getExpires(header http.Header) (time.Time, bool) {
	values := header.Values("Expires")
	if len(values) == 0 {
		return time.Time{}, false
	}
	// §  If multiple Expires field lines are present, the cache
	// §  SHOULD treat the response as already expired.
	if len(values) > 1 {
		return time.Time{}, true
	}
	expires, err := HttpDate(values[0])
	if err != nil {
		return time.Time{}, true
	}
	return expires, true
}
