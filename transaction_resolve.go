package cachetx

import (
	"context"
	"errors"
	"net/http"

	"github.com/always-cache/cachetx/cache"
	"github.com/always-cache/cachetx/rfc9111"
)

func (t *Transaction) doGetBackend() (state, error) {
	if !t.cache.usable() || t.cache.network == nil {
		return stateNone, ErrUnexpected
	}
	t.effectiveFlags = t.loadFlags | requestLoadFlags(t.request.Header)
	t.mode = t.computeMode()
	t.log.Debug().Stringer("mode", t.mode).Msg("Selected cache mode")
	if t.mode == ModeNoCache {
		if t.effectiveFlags&LoadOnlyFromCache != 0 {
			return stateNone, ErrCacheMiss
		}
		t.status.set(StatusOther)
		return stateSendRequest, nil
	}
	return stateInitEntry, nil
}

// computeMode picks the access mode from the request and load flags.
func (t *Transaction) computeMode() Mode {
	req := t.request
	flags := t.effectiveFlags
	t.partial = nil
	if t.cache.backend == nil || t.forceNoCache {
		return ModeNoCache
	}
	// §  A cache MUST invalidate the target URI when it receives a non-error
	// §  status code in response to an unsafe request method
	if rfc9111.UnsafeRequest(req) {
		t.invalidateOnSuccess = true
		return ModeNoCache
	}
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return ModeNoCache
	}
	if flags&LoadDisableCache != 0 {
		return ModeNoCache
	}
	// preconditions are for the origin to evaluate
	if rfc9111.HasOtherPreconditions(req.Header) {
		return ModeNoCache
	}
	if rangeHeader := req.Header.Get("Range"); rangeHeader != "" {
		if req.Method == http.MethodHead || rfc9111.IsValidationRequest(req.Header) {
			return ModeNoCache
		}
		p, ok := newPartialData(rangeHeader)
		if !ok {
			t.log.Debug().Str("range", rangeHeader).Msg("Unsupported range, bypassing cache")
			return ModeNoCache
		}
		t.partial = p
	}
	switch {
	case flags&LoadOnlyFromCache != 0:
		return ModeReadOnly
	case rfc9111.IsValidationRequest(req.Header):
		return ModeUpdateOnly
	case flags&LoadBypassCache != 0:
		if req.Method == http.MethodHead {
			return ModeNoCache
		}
		return ModeWriteOnly
	}
	return ModeReadWrite
}

func (t *Transaction) doInitEntry() (state, error) {
	if t.mode == ModeWriteOnly {
		return stateDoomEntry, nil
	}
	return stateOpenEntry, nil
}

func (t *Transaction) doOpenEntry(ctx context.Context) (state, error) {
	if t.mode == ModeReadWrite && t.partial == nil && t.cache.backend.Hint(t.key) == cache.HintUnusable {
		t.log.Debug().Msg("Stored response is known to be unusable")
		t.status.set(StatusCantConditionalize)
		t.mode = ModeWriteOnly
		return stateDoomEntry, nil
	}
	e, err := t.cache.openEntry(ctx, t.key)
	switch {
	case err == nil:
		t.entry = e
		return stateAddToEntry, nil
	case errors.Is(err, cache.ErrNotFound):
		switch {
		case t.mode == ModeReadOnly:
			return stateNone, ErrCacheMiss
		case t.mode == ModeUpdateOnly:
			t.mode = ModeNoCache
			t.status.set(StatusOther)
			return stateSendRequest, nil
		case t.request.Method == http.MethodHead:
			t.mode = ModeNoCache
			t.status.set(StatusNotInCache)
			return stateSendRequest, nil
		}
		t.mode = ModeWriteOnly
		return stateCreateEntry, nil
	case errors.Is(err, ErrUnexpected):
		return stateNone, err
	}
	t.log.Error().Err(err).Msg("Could not open cache entry")
	if t.mode == ModeReadOnly {
		return stateNone, ErrCacheMiss
	}
	t.mode = ModeNoCache
	t.partial = nil
	t.status.set(StatusOther)
	return stateSendRequest, nil
}

func (t *Transaction) doDoomEntry(ctx context.Context) (state, error) {
	if err := t.cache.doomEntry(ctx, t.key); err != nil {
		t.log.Error().Err(err).Msg("Could not doom cache entry")
	}
	return stateCreateEntry, nil
}

func (t *Transaction) doCreateEntry(ctx context.Context) (state, error) {
	e, err := t.cache.createEntry(ctx, t.key, t)
	switch {
	case err == nil:
		t.entry = e
		t.newEntry = true
		return stateAddToEntry, nil
	case errors.Is(err, errCacheRace), errors.Is(err, ErrUnexpected):
		return stateNone, err
	}
	t.log.Error().Err(err).Msg("Could not create cache entry")
	t.mode = ModeNoCache
	t.partial = nil
	t.status.set(StatusOther)
	return stateSendRequest, nil
}

func (t *Transaction) doAddToEntry(ctx context.Context) (state, error) {
	// a created entry is handed over with its headers already held
	if t.newEntry {
		return stateSendRequest, nil
	}
	timeout := t.cache.lockTimeout
	if t.partial != nil {
		timeout = t.cache.partialLockTimeout
	}
	err := t.entry.addTransaction(ctx, t, timeout)
	if err == nil {
		return stateCacheReadResponse, nil
	}
	e := t.entry
	t.entry = nil
	t.cache.releaseEntry(e)
	if !errors.Is(err, errLockTimeout) {
		return stateNone, err
	}
	t.cache.stats.lockTimeouts.Add(1)
	t.log.Info().Dur("timeout", timeout).Msg("Timed out waiting for cache entry, bypassing cache")
	if t.mode == ModeReadOnly {
		return stateNone, ErrCacheMiss
	}
	t.mode = ModeNoCache
	t.partial = nil
	t.status.set(StatusOther)
	return stateSendRequest, nil
}
