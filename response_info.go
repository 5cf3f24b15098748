package cachetx

import (
	"time"

	serializer "github.com/always-cache/cachetx/pkg/response-serializer"
	"github.com/always-cache/cachetx/rfc9211"
)

// ResponseInfo is the response a transaction resolved to.
type ResponseInfo struct {
	serializer.StoredResponse
	// CacheEntryStatus is final once the headers are ready.
	CacheEntryStatus CacheEntryStatus
	// WasCached is set when the headers come from a stored response.
	WasCached bool
	// NetworkAccessed is set when any request went to the network.
	NetworkAccessed bool
	// Stored is set when the response was written to the cache.
	Stored bool
	// TimeToLive is the remaining freshness of the stored response.
	TimeToLive time.Duration
}

// CacheStatus describes the response in Cache-Status terms.
func (r *ResponseInfo) CacheStatus() rfc9211.CacheStatus {
	cs := rfc9211.CacheStatus{
		Stored:     r.Stored,
		TimeToLive: int(r.TimeToLive / time.Second),
	}
	switch r.CacheEntryStatus {
	case StatusUsed:
		if r.NetworkAccessed {
			cs.Forward(rfc9211.FwdReasonPartial)
		} else {
			cs.Hit()
		}
	case StatusValidated:
		cs.Forward(rfc9211.FwdReasonStale)
		cs.FwdStatus = 304
	case StatusUpdated:
		cs.Forward(rfc9211.FwdReasonStale)
		cs.FwdStatus = r.StatusCode
	case StatusNotInCache:
		cs.Forward(rfc9211.FwdReasonUriMiss)
		cs.FwdStatus = r.StatusCode
	case StatusCantConditionalize:
		cs.Forward(rfc9211.FwdReasonMiss)
		cs.FwdStatus = r.StatusCode
		cs.Detail = "cant-conditionalize"
	default:
		cs.Forward(rfc9211.FwdReasonBypass)
		if r.NetworkAccessed {
			cs.FwdStatus = r.StatusCode
		}
	}
	return cs
}
