package cachetx

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/always-cache/cachetx/cache"
	serializer "github.com/always-cache/cachetx/pkg/response-serializer"
	"github.com/always-cache/cachetx/rfc9111"
)

func (t *Transaction) doCacheReadResponse(ctx context.Context) (state, error) {
	rec, err := t.readStoredResponse(ctx)
	if err != nil {
		t.log.Warn().Err(err).Msg("Could not read stored response, dooming entry")
		t.cache.doomSharedEntry(t.entry)
		return stateNone, errCacheRace
	}
	t.stored = rec
	t.haveStored = true
	return stateCacheDispatchValidation, nil
}

func (t *Transaction) readStoredResponse(ctx context.Context) (serializer.StoredResponse, error) {
	size := t.entry.disk.DataSize(cache.StreamHeaders)
	if size <= 0 {
		return serializer.StoredResponse{}, serializer.ErrCorrupt
	}
	buf := make([]byte, size)
	for read := 0; read < len(buf); {
		n, err := t.entry.disk.ReadData(ctx, cache.StreamHeaders, int64(read), buf[read:])
		read += n
		if err == io.EOF && read < len(buf) {
			return serializer.StoredResponse{}, serializer.ErrCorrupt
		}
		if err != nil && err != io.EOF {
			return serializer.StoredResponse{}, err
		}
	}
	return serializer.Unmarshal(buf)
}

func (t *Transaction) writeStoredResponse(ctx context.Context) error {
	_, err := t.entry.disk.WriteData(ctx, cache.StreamHeaders, 0, t.stored.Marshal(), true)
	return err
}

func (t *Transaction) doCacheToggleUnusedSincePrefetch(ctx context.Context) (state, error) {
	t.stored.UnusedSincePrefetch = !t.stored.UnusedSincePrefetch
	t.togglePrefetch = false
	if t.mode.writes() {
		if err := t.writeStoredResponse(ctx); err != nil {
			t.log.Error().Err(err).Msg("Could not update prefetch flag")
		}
	}
	return stateSetupEntryForRead, nil
}

func (t *Transaction) doCacheDispatchValidation(ctx context.Context) (state, error) {
	if t.partial != nil {
		return t.beginPartialValidation(ctx)
	}
	switch t.mode {
	case ModeReadOnly:
		if t.stored.Truncated || t.stored.Sparse || t.requiresValidation() {
			return stateNone, ErrCacheMiss
		}
		t.status.set(StatusUsed)
		return t.afterReuse(), nil
	case ModeUpdateOnly:
		if t.stored.Truncated || t.stored.Sparse || t.entry.activeWriters() ||
			!rfc9111.ValidatorsMatch(t.request.Header, t.stored.Header) {
			t.log.Debug().Msg("Validation request does not match stored response")
			t.dropEntry()
			t.status.set(StatusOther)
		}
		return stateSendRequest, nil
	}

	if t.entry.activeWriters() {
		if !t.varyMatches() {
			t.log.Debug().Msg("Vary mismatch with response being written, bypassing cache")
			t.dropEntry()
			t.status.set(StatusOther)
			return stateSendRequest, nil
		}
		t.joinWriters = true
		t.status.set(StatusUsed)
		return stateSetupEntryForRead, nil
	}
	if t.request.Method == http.MethodHead && (t.stored.Sparse || t.stored.Truncated) {
		t.dropEntry()
		t.status.set(StatusOther)
		return stateSendRequest, nil
	}
	if t.stored.Sparse {
		t.log.Debug().Msg("Stored response is partial, replacing it")
		if err := t.replaceEntry(ctx); err != nil {
			return stateNone, err
		}
		t.mode = ModeWriteOnly
		return stateSendRequest, nil
	}
	if t.stored.Truncated {
		return t.beginResume(ctx)
	}
	if !t.requiresValidation() {
		t.status.set(StatusUsed)
		return t.afterReuse(), nil
	}
	if t.conditionalize() {
		t.log.Debug().Msg("Validating stored response")
		return stateSendRequest, nil
	}
	t.log.Debug().Msg("Stored response cannot be validated, fetching it again")
	t.status.set(StatusCantConditionalize)
	t.mode = ModeWriteOnly
	return stateSendRequest, nil
}

// afterReuse continues with a stored response that needs no validation.
func (t *Transaction) afterReuse() state {
	if t.effectiveFlags&LoadPrefetch != 0 && !t.stored.UnusedSincePrefetch {
		t.togglePrefetch = true
	}
	if t.togglePrefetch {
		return stateCacheToggleUnusedSincePrefetch
	}
	return stateSetupEntryForRead
}

// requiresValidation decides whether the stored response has to be
// validated before it is used.
func (t *Transaction) requiresValidation() bool {
	if !t.varyMatches() {
		return true
	}
	now := t.cache.now()
	if t.effectiveFlags&LoadSkipCacheValidation != 0 {
		return !rfc9111.MayServeStale(t.stored.StatusCode, t.stored.Header, t.stored.RequestTime, t.stored.ResponseTime, now)
	}
	if t.stored.UnusedSincePrefetch && t.effectiveFlags&LoadPrefetch == 0 &&
		now.Sub(t.stored.ResponseTime) < t.cache.prefetchReuse {
		t.togglePrefetch = true
		return false
	}
	if t.effectiveFlags&LoadValidateCache != 0 {
		return true
	}
	if t.request.Method == http.MethodPut || t.request.Method == http.MethodDelete {
		return true
	}
	return rfc9111.NeedsValidation(t.stored.StatusCode, t.stored.Header, t.stored.RequestTime, t.stored.ResponseTime, now)
}

func (t *Transaction) varyMatches() bool {
	return rfc9111.VaryMatches(t.stored.VaryData, t.request.Header, t.stored.Header)
}

// conditionalize adds the validators of the stored response to the next
// network request.
func (t *Transaction) conditionalize() bool {
	if t.stored.StatusCode != http.StatusOK && t.stored.StatusCode != http.StatusPartialContent {
		return false
	}
	h, ok := rfc9111.ConditionalHeaders(t.stored.Header, t.varyMatches())
	if !ok {
		return false
	}
	t.extraHeaders = h
	return true
}

// beginResume asks for the missing tail of a truncated body.
func (t *Transaction) beginResume(ctx context.Context) (state, error) {
	stored := t.entry.disk.DataSize(cache.StreamBody)
	total := rfc9111.ContentLength(t.stored.Header)
	validator, ok := rfc9111.IfRange(t.stored.Header)
	if !ok || total <= 0 || stored <= 0 || stored >= total || !t.varyMatches() {
		t.log.Debug().Msg("Truncated entry cannot be resumed, replacing it")
		if err := t.replaceEntry(ctx); err != nil {
			return stateNone, err
		}
		t.mode = ModeWriteOnly
		return stateSendRequest, nil
	}
	t.log.Debug().Int64("stored", stored).Int64("total", total).Msg("Resuming truncated entry")
	t.partial = newResumeData(stored, total)
	t.pendingSubrange = stored
	h := make(http.Header)
	t.partial.setRangeHeader(h)
	h.Set("If-Range", validator)
	t.extraHeaders = h
	return stateSendRequest, nil
}

// beginPartialValidation checks that the stored response can serve the
// requested range.
func (t *Transaction) beginPartialValidation(ctx context.Context) (state, error) {
	if t.mode == ModeReadWrite && t.entry.activeWriters() {
		// the range is fetched as part of the full body
		t.dropEntry()
		t.partial = nil
		t.status.set(StatusOther)
		return stateSendRequest, nil
	}
	if !t.partial.updateFromStored(t.stored, t.entry.disk) {
		if t.mode == ModeReadOnly {
			return stateNone, ErrCacheMiss
		}
		t.log.Debug().Msg("Stored response cannot serve ranges, replacing it")
		if err := t.replaceEntry(ctx); err != nil {
			return stateNone, err
		}
		t.partial.resetForNewEntry()
		t.mode = ModeWriteOnly
		return stateSendRequest, nil
	}
	if !t.partial.resolve() {
		if t.mode == ModeReadOnly {
			return stateNone, ErrRangeNotSatisfiable
		}
		// forward the range as is and only cache a full response
		t.log.Debug().Msg("Range does not fit stored response")
		t.invalidRange = true
		t.partial = nil
		return stateSendRequest, nil
	}
	t.partialValidate = t.requiresValidation()
	if t.mode == ModeReadOnly {
		if t.partialValidate {
			return stateNone, ErrCacheMiss
		}
		if ok, err := t.partial.fullyStored(ctx, t.entry.disk); err != nil || !ok {
			return stateNone, ErrCacheMiss
		}
	}
	return stateStartPartialCacheValidation, nil
}

func (t *Transaction) doStartPartialCacheValidation(ctx context.Context) (state, error) {
	if err := t.partial.prepareSubrange(ctx, t.entry.disk); err != nil {
		t.log.Error().Err(err).Msg("Could not read stored ranges, dooming entry")
		t.cache.doomSharedEntry(t.entry)
		return stateNone, errCacheRace
	}
	cur := t.partial.current
	if cur.cached && !t.partialValidate {
		t.status.set(StatusUsed)
		return t.afterReuse(), nil
	}
	h, ok := t.subrangeHeaders()
	if !ok {
		t.log.Debug().Msg("Stored ranges cannot be validated, fetching the range again")
		t.status.set(StatusCantConditionalize)
		if err := t.replaceEntry(ctx); err != nil {
			return stateNone, err
		}
		t.partial.resetForNewEntry()
		t.mode = ModeWriteOnly
		return stateSendRequest, nil
	}
	t.extraHeaders = h
	return stateSendRequest, nil
}

// subrangeHeaders returns the Range and validator fields for fetching the
// current subrange. A stored subrange is validated, a missing one is
// fetched with If-Range.
func (t *Transaction) subrangeHeaders() (http.Header, bool) {
	h := make(http.Header)
	if t.partial.current.cached {
		cond, ok := rfc9111.ConditionalHeaders(t.stored.Header, t.varyMatches())
		if !ok {
			return nil, false
		}
		h = cond
	} else {
		validator, ok := rfc9111.IfRange(t.stored.Header)
		if !ok {
			return nil, false
		}
		h.Set("If-Range", validator)
	}
	t.partial.setRangeHeader(h)
	return h, true
}

// replaceEntry dooms the current entry and creates a new one for this
// transaction, without waiting on it.
func (t *Transaction) replaceEntry(ctx context.Context) error {
	old := t.entry
	t.entry = nil
	t.cache.doomSharedEntry(old)
	old.removeTransaction(t)
	t.writers = nil
	t.cache.releaseEntry(old)
	t.haveStored = false
	t.newEntry = false
	t.headersCommitted = false

	e, err := t.cache.createEntry(ctx, t.key, t)
	if err != nil {
		return err
	}
	t.entry = e
	t.newEntry = true
	return nil
}

func (t *Transaction) doSendRequest(ctx context.Context) (state, error) {
	req := t.request.Clone(t.request.Context())
	if t.partial != nil && t.extraHeaders != nil {
		req.Header.Del("Range")
	}
	for name, values := range t.extraHeaders {
		req.Header[name] = values
	}
	t.extraHeaders = nil

	// a fetch other transactions may join outlives the caller's context
	parent := ctx
	if t.entry != nil && t.mode.writes() {
		parent = context.WithoutCancel(ctx)
	}
	netCtx, cancel := context.WithCancel(parent)
	t.closeNetwork()
	t.network = t.cache.network.NewTransaction()
	t.cancelNetwork = cancel
	t.networkAccessed = true
	t.cache.stats.network.Add(1)
	t.requestTime = t.cache.now()
	t.log.Debug().
		Str("range", req.Header.Get("Range")).
		Bool("conditional", rfc9111.IsValidationRequest(req.Header) || req.Header.Get("If-Range") != "").
		Msg("Sending network request")
	if err := t.network.Start(netCtx, req); err != nil {
		t.closeNetwork()
		return stateNone, err
	}
	t.responseTime = t.cache.now()
	return stateProcessNetworkResponse, nil
}

func (t *Transaction) doProcessNetworkResponse(ctx context.Context) (state, error) {
	res := t.network.Response()
	t.log.Debug().Int("status", res.StatusCode).Msg("Received network response")

	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusProxyAuthRequired {
		t.authPending = true
		t.setNetworkResponse(res)
		return stateFinishHeaders, nil
	}
	if t.invalidateOnSuccess {
		t.cache.invalidate(ctx, t.request, res.StatusCode, res.Header)
	}
	if t.mode == ModeNoCache || t.entry == nil {
		t.setNetworkResponse(res)
		return stateFinishHeaders, nil
	}
	if t.partial != nil {
		return t.processPartialResponse(ctx, res)
	}
	if t.invalidRange && res.StatusCode != http.StatusOK {
		// the entry stays as it is
		t.dropEntry()
		t.status.set(StatusOther)
		t.setNetworkResponse(res)
		return stateFinishHeaders, nil
	}

	if res.StatusCode == http.StatusNotModified {
		if t.haveStored && (t.mode == ModeReadWrite || t.mode == ModeUpdateOnly) {
			t.status.set(StatusValidated)
			return stateUpdateCachedResponse, nil
		}
		t.dropEntry()
		t.setNetworkResponse(res)
		return stateFinishHeaders, nil
	}
	if t.mode == ModeUpdateOnly {
		// the caller's copy is outdated and so is ours
		t.cache.doomSharedEntry(t.entry)
		t.dropEntry()
		t.status.set(StatusOther)
		t.setNetworkResponse(res)
		return stateFinishHeaders, nil
	}
	if t.haveStored {
		t.status.set(StatusUpdated)
	}
	t.mode = ModeWriteOnly
	return stateOverwriteCachedResponse, nil
}

func (t *Transaction) processPartialResponse(ctx context.Context, res *http.Response) (state, error) {
	cur := t.partial.current
	switch {
	case res.StatusCode == http.StatusNotModified && t.haveStored && cur.cached:
		t.status.set(StatusValidated)
		t.partialValidate = false
		return stateUpdateCachedResponse, nil

	case res.StatusCode == http.StatusPartialContent && t.partial.responseMatches(res.Header):
		if !t.haveStored {
			t.status.set(StatusNotInCache)
			return stateOverwriteCachedResponse, nil
		}
		if !cur.cached && rfc9111.MayCombine(t.stored.Header, res.Header) {
			// the stored bytes are still valid
			t.partialValidate = false
			t.status.set(StatusValidated)
			return stateSetupEntryForRead, nil
		}
		return t.restartAsFull()

	case res.StatusCode == http.StatusOK:
		// a full response replaces whatever was stored
		t.partial = nil
		if t.haveStored {
			t.status.set(StatusUpdated)
		}
		t.mode = ModeWriteOnly
		return stateOverwriteCachedResponse, nil

	case !t.haveStored || res.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		if t.haveStored {
			t.cache.doomSharedEntry(t.entry)
		}
		t.dropEntry()
		t.partial = nil
		t.status.set(StatusOther)
		t.setNetworkResponse(res)
		return stateFinishHeaders, nil
	}
	return t.restartAsFull()
}

// restartAsFull gives up on the stored ranges and fetches the request
// again into a new entry.
func (t *Transaction) restartAsFull() (state, error) {
	t.log.Debug().Msg("Range response does not match stored entry, starting over")
	t.cache.doomSharedEntry(t.entry)
	t.loadFlags |= LoadBypassCache
	return stateNone, fmt.Errorf("%w: %w", errCacheRace, ErrPartialMismatch)
}

func (t *Transaction) setNetworkResponse(res *http.Response) {
	t.response = ResponseInfo{
		StoredResponse: serializer.StoredResponse{
			StatusCode:   res.StatusCode,
			Header:       res.Header,
			RequestTime:  t.requestTime,
			ResponseTime: t.responseTime,
		},
		NetworkAccessed: true,
	}
	t.source = sourceNetwork
	if t.request.Method == http.MethodHead {
		t.source = sourceNone
	}
}
