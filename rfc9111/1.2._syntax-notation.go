package rfc9111

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// §  1.2.2. Delta Seconds
// §
// §  The delta-seconds rule specifies a non-negative integer, representing time in
// §  seconds.
// §
// §    delta-seconds  = 1*DIGIT
// §
// §  A recipient parsing a delta-seconds value and converting it to binary form
// §  ought to use an arithmetic type of at least 31 bits of non-negative integer
// §  range. If a cache receives a delta-seconds value greater than the greatest
// §  integer it can represent, or if any of its subsequent calculations overflows,
// §  the cache MUST consider the value to be 2147483648 (2^31) or the greatest
// §  positive integer it can conveniently represent.
func deltaSeconds(secondsStr string) (time.Duration, bool) {
	// a parameter may follow the value, as in "Age: 7200;foo=bar"
	if i := strings.IndexByte(secondsStr, ';'); i >= 0 {
		secondsStr = secondsStr[:i]
	}
	secondsStr = strings.TrimSpace(secondsStr)
	if secondsStr == "" {
		return 0, false
	}
	for _, c := range secondsStr {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	seconds, err := strconv.ParseInt(secondsStr, 10, 64)
	if err != nil || seconds > 2147483648 {
		seconds = 2147483648
	}
	return time.Duration(seconds) * time.Second, true
}

func toDeltaSeconds(duration time.Duration) string {
	if duration < 0 {
		duration = 0
	}
	return strconv.Itoa(int(duration.Seconds()))
}

var errInvalidDate = errors.New("invalid HTTP-date")

var httpDateFormats = []string{
	// IMF-fixdate
	"Mon, 02 Jan 2006 15:04:05 GMT",
	// obsolete RFC 850 format
	"Monday, 02-Jan-06 15:04:05 GMT",
	// ANSI C's asctime() format
	"Mon Jan _2 15:04:05 2006",
}

// HttpDate parses an HTTP-date in any of the three formats a recipient
// is required to accept.
//
// §  Recipients of a timestamp value in rfc850-date format, which uses a
// §  two-digit year, MUST interpret a timestamp that appears to be more
// §  than 50 years in the future as representing the most recent year in
// §  the past that had the same last two digits.
func HttpDate(date string) (time.Time, error) {
	date = strings.TrimSpace(date)
	// the zone name is case-sensitive in the format but not on the wire
	if n := len(date); n > 3 && strings.EqualFold(date[n-3:], "GMT") {
		date = date[:n-3] + "GMT"
	}
	for _, format := range httpDateFormats {
		if t, err := time.Parse(format, date); err == nil {
			if format == httpDateFormats[1] && t.After(time.Now().AddDate(50, 0, 0)) {
				t = t.AddDate(-100, 0, 0)
			}
			return t.UTC(), nil
		}
	}
	return time.Time{}, errInvalidDate
}

// ToHttpDate formats t as an IMF-fixdate.
func ToHttpDate(t time.Time) string {
	return t.UTC().Format(httpDateFormats[0])
}
