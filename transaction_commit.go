package cachetx

import (
	"context"
	"net/http"

	"github.com/always-cache/cachetx/cache"
	serializer "github.com/always-cache/cachetx/pkg/response-serializer"
	"github.com/always-cache/cachetx/rfc9111"
)

func (t *Transaction) doUpdateCachedResponse() (state, error) {
	res := t.network.Response()
	// §  4.3.4. Freshening Stored Responses upon Validation
	rfc9111.UpdateStoredHeader(t.stored.Header, res.Header)
	t.stored.RequestTime = t.requestTime
	t.stored.ResponseTime = t.responseTime
	if t.effectiveFlags&LoadPrefetch == 0 {
		t.stored.UnusedSincePrefetch = false
	}
	return stateCacheWriteUpdatedResponse, nil
}

func (t *Transaction) doCacheWriteUpdatedResponse(ctx context.Context) (state, error) {
	if err := t.writeStoredResponse(ctx); err != nil {
		t.log.Error().Err(err).Msg("Could not update stored response")
	}
	t.updateHint()
	if t.mode == ModeUpdateOnly {
		// the caller validated its own copy and gets the 304
		t.setNetworkResponse(t.network.Response())
		t.releaseEntry()
		return stateFinishHeaders, nil
	}
	t.closeNetwork()
	return stateSetupEntryForRead, nil
}

func (t *Transaction) doOverwriteCachedResponse(ctx context.Context) (state, error) {
	res := t.network.Response()
	t.setNetworkResponse(res)
	if !t.mayStore(res) {
		t.log.Debug().Int("status", res.StatusCode).Msg("Response may not be stored")
		if t.haveStored {
			t.cache.doomSharedEntry(t.entry)
		} else {
			t.status.set(StatusNotInCache)
		}
		t.dropEntry()
		t.partial = nil
		return stateFinishHeaders, nil
	}
	if !t.newEntry && t.entry.hasOtherUsers(t) {
		if err := t.replaceEntry(ctx); err != nil {
			t.log.Debug().Err(err).Msg("Could not replace entry in use, not storing response")
			t.dropEntry()
			t.partial = nil
			return stateFinishHeaders, nil
		}
	}
	if !t.haveStored {
		t.status.set(StatusNotInCache)
	}
	return stateCacheWriteResponse, nil
}

// mayStore decides whether the network response is written to the entry.
func (t *Transaction) mayStore(res *http.Response) bool {
	req := t.request
	if req.Method != http.MethodGet {
		return false
	}
	if t.authenticated {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Basic")
	}
	if !rfc9111.MayStore(req, res.StatusCode, res.Header) {
		return false
	}
	if _, ok := rfc9111.VaryData(req.Header, res.Header); !ok {
		return false
	}
	if res.StatusCode == http.StatusPartialContent {
		// ranges are only combined under a strong validator
		if t.partial == nil {
			return false
		}
		if _, ok := rfc9111.IfRange(res.Header); !ok || t.partial.resourceSize <= 0 {
			return false
		}
	}
	return true
}

func (t *Transaction) doCacheWriteResponse(ctx context.Context) (state, error) {
	res := t.network.Response()
	vary, _ := rfc9111.VaryData(t.request.Header, res.Header)
	t.stored = serializer.StoredResponse{
		StatusCode:          res.StatusCode,
		Header:              rfc9111.StorableHeader(res.Header),
		RequestTime:         t.requestTime,
		ResponseTime:        t.responseTime,
		Sparse:              res.StatusCode == http.StatusPartialContent,
		UnusedSincePrefetch: t.effectiveFlags&LoadPrefetch != 0,
		VaryData:            vary,
	}
	t.haveStored = true
	if err := t.writeStoredResponse(ctx); err != nil {
		t.log.Error().Err(err).Msg("Could not write response to cache")
		t.cache.doomSharedEntry(t.entry)
		t.dropEntry()
		t.partial = nil
		return stateFinishHeaders, nil
	}
	t.headersCommitted = true
	t.response.Stored = true
	t.response.TimeToLive = rfc9111.TimeToLive(t.stored.StatusCode, t.stored.Header, t.requestTime, t.responseTime, t.cache.now())
	if t.partial != nil {
		t.partial.sparse = true
	}
	t.updateHint()
	t.log.Debug().Int("status", res.StatusCode).Msg("Stored response headers")
	return stateTruncateCachedData, nil
}

// updateHint records whether the stored response can ever be reused.
func (t *Transaction) updateHint() {
	hint := cache.HintNone
	if !rfc9111.HasValidator(t.stored.Header) &&
		rfc9111.NeedsValidation(t.stored.StatusCode, t.stored.Header, t.stored.RequestTime, t.stored.ResponseTime, t.cache.now()) {
		hint = cache.HintUnusable
	}
	t.cache.backend.SetHint(t.key, hint)
}

func (t *Transaction) doTruncateCachedData(ctx context.Context) (state, error) {
	for _, stream := range []int{cache.StreamBody, cache.StreamMetadata} {
		if _, err := t.entry.disk.WriteData(ctx, stream, 0, nil, true); err != nil {
			t.log.Error().Err(err).Int("stream", stream).Msg("Could not truncate cache entry")
			t.cache.doomSharedEntry(t.entry)
			t.dropEntry()
			t.partial = nil
			t.response.Stored = false
			return stateFinishHeaders, nil
		}
	}
	if t.partial != nil {
		return stateSetupEntryForRead, nil
	}
	t.source = sourceWriters
	return stateFinishHeaders, nil
}

func (t *Transaction) doSetupEntryForRead() (state, error) {
	now := t.cache.now()
	stored := t.stored.Clone()
	t.response = ResponseInfo{
		StoredResponse:  stored,
		WasCached:       !t.newEntry,
		NetworkAccessed: t.networkAccessed,
		Stored:          t.response.Stored,
		TimeToLive:      rfc9111.TimeToLive(stored.StatusCode, stored.Header, stored.RequestTime, stored.ResponseTime, now),
	}
	rfc9111.SetAge(t.response.Header, rfc9111.CurrentAge(stored.Header, stored.RequestTime, stored.ResponseTime, now))
	switch {
	case t.partial != nil:
		t.response.StatusCode = t.partial.fixResponseHeaders(t.response.Header)
		t.partial.startReading()
		t.source = sourcePartial
	case t.request.Method == http.MethodHead:
		t.source = sourceNone
	case t.joinWriters:
		t.source = sourceWriters
	default:
		t.source = sourceCache
		t.readOffset = 0
	}
	return stateFinishHeaders, nil
}

func (t *Transaction) doFinishHeaders() (state, error) {
	if t.entry != nil && !t.authPending {
		switch {
		case t.source == sourcePartial:
			// keeps the headers to itself until done
		case t.source == sourceWriters && t.joinWriters:
			if w := t.entry.joinWriters(t); w != nil {
				t.writers = w
				t.readOffset = 0
			} else {
				t.source = sourceCache
				t.readOffset = 0
			}
		case t.source == sourceWriters:
			w := newEntryWriters(t.entry, t.network, t.cancelNetwork, t.stored, t.log)
			t.network, t.cancelNetwork = nil, nil
			t.writers = w
			t.readOffset = 0
			t.entry.startWriters(t, w)
		default:
			t.entry.doneWithHeaders(t)
		}
	}
	// a challenge answered with credentials still decides the status
	if t.status.get() == StatusUndefined && !t.authPending {
		t.status.set(StatusOther)
	}
	t.response.CacheEntryStatus = t.status.get()
	t.headersDone = true
	t.log.Debug().
		Int("status", t.response.StatusCode).
		Stringer("cacheStatus", t.response.CacheEntryStatus).
		Bool("cached", t.response.WasCached).
		Msg("Response headers ready")
	return stateNone, nil
}
