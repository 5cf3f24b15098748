package rfc9111

import (
	"net/http"
	"net/textproto"
)

// hopByHop are the connection-specific fields that are never stored or forwarded.
var hopByHop = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// StorableHeader returns the part of a response header that may be stored.
//
// §  3.1. Storing Header and Trailer Fields
// §
// §  Caches MUST include all received response header fields -- including
// §  unrecognized ones -- when storing a response; this assures that new HTTP
// §  header fields can be successfully deployed. However, the following
// §  exceptions are made:
// §
// §    * The Connection header field and fields whose names are listed in it are
// §      required by Section 7.6.1 of [HTTP] to be removed before forwarding the
// §      message. This MAY be implemented by doing so before storage.
func StorableHeader(header http.Header) http.Header {
	if header == nil {
		return make(http.Header)
	}
	h := header.Clone()
	removeHopByHop(h)
	return h
}

func removeHopByHop(h http.Header) {
	for _, header := range GetListHeader(h, "Connection") {
		h.Del(header)
	}
	for _, header := range hopByHop {
		h.Del(header)
	}
}

// GetListHeader returns the members of a list-based header field.
func GetListHeader(header http.Header, field string) []string {
	list := make([]string, 0)
	for _, hdr := range header.Values(field) {
		list = append(list, splitList(hdr)...)
	}
	return list
}

// GetForwardRequest returns a copy of req without connection-specific fields.
func GetForwardRequest(req *http.Request) *http.Request {
	r := req.Clone(req.Context())
	removeHopByHop(r.Header)
	return r
}

// ListContains reports whether a list-based field contains the token,
// compared case-insensitively.
func ListContains(header http.Header, field, token string) bool {
	token = textproto.CanonicalMIMEHeaderKey(token)
	for _, item := range GetListHeader(header, field) {
		if textproto.CanonicalMIMEHeaderKey(item) == token {
			return true
		}
	}
	return false
}
