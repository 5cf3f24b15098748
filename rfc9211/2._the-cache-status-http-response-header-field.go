// Package rfc9211 models the Cache-Status response header field
// (RFC 9211) that reports how a cache handled a request.
package rfc9211

import (
	"strconv"
	"strings"
)

type Status string

const (
	StatusHit Status = "hit"
	StatusFwd Status = "fwd"
)

type FwdReason string

// §  2.2. The fwd Parameter
const (
	// The cache was configured to not handle this request.
	FwdReasonBypass FwdReason = "bypass"
	// The request method's semantics require the request to be
	// forwarded.
	FwdReasonMethod FwdReason = "method"
	// The cache did not contain any responses that matched the
	// request URI.
	FwdReasonUriMiss FwdReason = "uri-miss"
	// The cache contained a response that matched the request
	// URI, but it could not select a response based upon this request's
	// header fields and stored Vary header fields.
	FwdReasonVaryMiss FwdReason = "vary-miss"
	// The cache did not contain any responses that could be used to
	// satisfy this request.
	FwdReasonMiss FwdReason = "miss"
	// The cache was able to select a fresh response for the
	// request, but the request's semantics (e.g., Cache-Control request
	// directives) did not allow its use.
	FwdReasonRequest FwdReason = "request"
	// The cache was able to select a response for the request, but
	// it was stale.
	FwdReasonStale FwdReason = "stale"
	// The cache was able to select a partial response for the
	// request, but it did not contain all of the requested ranges (or
	// the request was for the complete response).
	FwdReasonPartial FwdReason = "partial"
)

// CacheStatus is one member of the Cache-Status list.
//
// §  Cache-Status   = #( cache-identifier *( ";" parameter ) )
// §  cache-identifier = sf-token / sf-string
type CacheStatus struct {
	Cache     string
	Status    Status
	FwdReason FwdReason
	// FwdStatus is the status code of the forwarded response, if any
	FwdStatus  int
	Stored     bool
	Collapsed  bool
	TimeToLive int
	Key        string
	Detail     string
}

func (cs *CacheStatus) Hit() {
	cs.Status = StatusHit
	cs.FwdReason = ""
}

func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.Status = StatusFwd
	cs.FwdReason = reason
}

func (cs CacheStatus) String() string {
	var b strings.Builder
	if cs.Cache == "" {
		b.WriteString("cachetx")
	} else {
		b.WriteString(cs.Cache)
	}
	// §  2.1. The hit Parameter
	if cs.Status == StatusHit {
		b.WriteString("; hit")
	} else if cs.FwdReason != "" {
		b.WriteString("; fwd=" + string(cs.FwdReason))
	}
	// §  2.3. The fwd-status Parameter
	if cs.FwdStatus != 0 {
		b.WriteString("; fwd-status=" + strconv.Itoa(cs.FwdStatus))
	}
	// §  2.4. The ttl Parameter
	if cs.Status == StatusHit || cs.Stored {
		b.WriteString("; ttl=" + strconv.Itoa(cs.TimeToLive))
	}
	// §  2.5. The stored Parameter
	if cs.Stored {
		b.WriteString("; stored")
	}
	// §  2.6. The collapsed Parameter
	if cs.Collapsed {
		b.WriteString("; collapsed")
	}
	// §  2.7. The key Parameter
	if cs.Key != "" {
		b.WriteString("; key=" + strconv.Quote(cs.Key))
	}
	// §  2.8. The detail Parameter
	if cs.Detail != "" {
		b.WriteString("; detail=" + cs.Detail)
	}
	return b.String()
}
