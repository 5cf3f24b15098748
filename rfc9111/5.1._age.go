package rfc9111

import (
	"net/http"
	"time"
)

// §  5.1. Age
// §
// §  The "Age" response header field conveys the sender's estimate of the time
// §  since the response was generated or successfully validated at the origin
// §  server.
// §
// §    Age = delta-seconds
// §
// §  The Age field value is a non-negative integer, representing time in seconds
// §  (see Section 1.2.2).
// §
// §  Although it is defined as a singleton header field, a cache encountering a
// §  message with a list-based Age field value SHOULD use the first member of the
// §  field value, discarding subsequent ones.
func getAge(header http.Header) (time.Duration, bool) {
	values := GetListHeader(header, "Age")
	if len(values) == 0 {
		return 0, false
	}
	return deltaSeconds(values[0])
}

// SetAge sets the Age header of a response served from storage.
func SetAge(header http.Header, age time.Duration) {
	header.Set("Age", toDeltaSeconds(age))
}
