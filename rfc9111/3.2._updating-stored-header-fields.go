package rfc9111

import "net/http"

// notUpdated are fields of a stored response that a 304 must not replace;
// they describe the stored content.
var notUpdated = map[string]bool{
	"Content-Length":   true,
	"Content-Encoding": true,
	"Content-Range":    true,
	"Etag":             true,
}

// UpdateStoredHeader merges the header fields of a 304 response into the
// header of the stored response it validated.
//
// §  3.2. Updating Stored Header Fields
// §
// §  When doing so, the cache MUST add each header field in the provided response
// §  to the stored response, replacing field values that are already present,
// §  with the following exceptions:
// §
// §    * Header fields excepted from storage in Section 3.1,
// §
// §    * Header fields that the cache's stored response depends upon, as
// §      described below,
// §
// §    * Header fields that are automatically processed and removed by the
// §      recipient, as described below, and
// §
// §    * The Content-Length header field.
func UpdateStoredHeader(stored, received http.Header) {
	received = StorableHeader(received)
	for name, values := range received {
		if notUpdated[http.CanonicalHeaderKey(name)] {
			continue
		}
		stored[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
}
