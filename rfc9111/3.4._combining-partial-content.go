package rfc9111

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

var ErrInvalidContentRange = errors.New("invalid Content-Range")

// ContentRange is a parsed "bytes first-last/complete-length" field.
// Complete is -1 when the length is given as "*".
type ContentRange struct {
	First, Last, Complete int64
}

// Length returns the number of bytes covered by the range.
func (c ContentRange) Length() int64 {
	return c.Last - c.First + 1
}

func (c ContentRange) String() string {
	if c.Complete < 0 {
		return fmt.Sprintf("bytes %d-%d/*", c.First, c.Last)
	}
	return fmt.Sprintf("bytes %d-%d/%d", c.First, c.Last, c.Complete)
}

// ParseContentRange parses a satisfied byte Content-Range value.
func ParseContentRange(value string) (ContentRange, error) {
	unit, rest, ok := strings.Cut(strings.TrimSpace(value), " ")
	if !ok || !strings.EqualFold(unit, "bytes") {
		return ContentRange{}, ErrInvalidContentRange
	}
	span, complete, ok := strings.Cut(strings.TrimSpace(rest), "/")
	if !ok {
		return ContentRange{}, ErrInvalidContentRange
	}
	firstStr, lastStr, ok := strings.Cut(span, "-")
	if !ok {
		return ContentRange{}, ErrInvalidContentRange
	}
	first, err := strconv.ParseInt(firstStr, 10, 64)
	if err != nil || first < 0 {
		return ContentRange{}, ErrInvalidContentRange
	}
	last, err := strconv.ParseInt(lastStr, 10, 64)
	if err != nil || last < first {
		return ContentRange{}, ErrInvalidContentRange
	}
	cr := ContentRange{First: first, Last: last, Complete: -1}
	if complete != "*" {
		cr.Complete, err = strconv.ParseInt(complete, 10, 64)
		if err != nil || cr.Complete <= last {
			return ContentRange{}, ErrInvalidContentRange
		}
	}
	return cr, nil
}

// MayCombine reports whether a received partial response may be combined with
// a stored response.
//
// §  3.4. Combining Partial Content
// §
// §  When a cache receives a partial response, it MAY combine it with a stored
// §  response that has the same strong validator. When both responses have
// §  a strong validator, but they do not match, the cache MUST NOT combine them.
func MayCombine(stored, received http.Header) bool {
	storedValidator, ok := IfRange(stored)
	if !ok {
		return false
	}
	if etag := received.Get("ETag"); etag != "" {
		return etag == stored.Get("ETag")
	}
	if lm := received.Get("Last-Modified"); lm != "" {
		return lm == storedValidator
	}
	// a 206 answering If-Range without validators still matched the condition
	return true
}
