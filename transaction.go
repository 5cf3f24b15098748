package cachetx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	serializer "github.com/always-cache/cachetx/pkg/response-serializer"

	"github.com/rs/zerolog"
)

// maxRestarts bounds how often a transaction starts over after losing a
// race for its entry.
const maxRestarts = 3

type state int

const (
	stateNone state = iota
	stateGetBackend
	stateInitEntry
	stateOpenEntry
	stateDoomEntry
	stateCreateEntry
	stateAddToEntry
	stateCacheReadResponse
	stateCacheToggleUnusedSincePrefetch
	stateCacheDispatchValidation
	stateStartPartialCacheValidation
	stateSendRequest
	stateProcessNetworkResponse
	stateUpdateCachedResponse
	stateCacheWriteUpdatedResponse
	stateOverwriteCachedResponse
	stateCacheWriteResponse
	stateTruncateCachedData
	stateSetupEntryForRead
	stateFinishHeaders
)

var stateNames = [...]string{
	"None",
	"GetBackend",
	"InitEntry",
	"OpenEntry",
	"DoomEntry",
	"CreateEntry",
	"AddToEntry",
	"CacheReadResponse",
	"CacheToggleUnusedSincePrefetch",
	"CacheDispatchValidation",
	"StartPartialCacheValidation",
	"SendRequest",
	"ProcessNetworkResponse",
	"UpdateCachedResponse",
	"CacheWriteUpdatedResponse",
	"OverwriteCachedResponse",
	"CacheWriteResponse",
	"TruncateCachedData",
	"SetupEntryForRead",
	"FinishHeaders",
}

func (s state) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// readSource is where the body of the response comes from.
type readSource int

const (
	sourceNone readSource = iota
	sourceNetwork
	sourceCache
	sourceWriters
	sourcePartial
)

// Transaction serves one request, from the cache, the network or both.
//
// A transaction is used by one goroutine at a time: Start, then Read until
// io.EOF, then Close. Calls made while another call is in progress fail
// with ErrTransactionBusy.
type Transaction struct {
	cache *Cache
	id    string
	log   zerolog.Logger

	request        *http.Request
	loadFlags      LoadFlags
	effectiveFlags LoadFlags
	mode           Mode
	key            string
	forceNoCache   bool

	entry *sharedEntry
	// newEntry is set when this transaction created the entry
	newEntry bool
	// headersCommitted is set once a response was written to a new entry
	headersCommitted bool
	writers          *entryWriters
	joinWriters      bool

	network         NetworkTransaction
	cancelNetwork   context.CancelFunc
	extraHeaders    http.Header
	requestTime     time.Time
	responseTime    time.Time
	networkAccessed bool

	stored     serializer.StoredResponse
	haveStored bool
	response   ResponseInfo

	partial         *partialData
	partialValidate bool
	// pendingSubrange is where the open network response of a resumed
	// transfer starts, -1 when there is none
	pendingSubrange     int64
	invalidRange        bool
	invalidateOnSuccess bool
	authPending         bool
	authenticated       bool
	togglePrefetch      bool

	status   statusLattice
	restarts int

	source     readSource
	readOffset int64
	bodyRead   int64

	started     time.Time
	headersDone bool
	finished    bool
	finalErr    error
	closed      bool

	busy atomic.Bool
}

// Start runs the transaction until the response headers are known.
func (t *Transaction) Start(ctx context.Context, req *http.Request, flags LoadFlags) error {
	if !t.busy.CompareAndSwap(false, true) {
		return ErrTransactionBusy
	}
	defer t.busy.Store(false)
	if t.request != nil {
		return fmt.Errorf("%w: transaction already started", ErrUnexpected)
	}
	t.request = req
	t.loadFlags = flags
	t.started = t.cache.now()
	t.key = t.cache.keyer.Key(req)
	t.log = t.log.With().
		Str("method", req.Method).
		Str("key", t.key).
		Logger()

	if err := t.run(ctx, stateGetBackend); err != nil {
		t.finish(err)
		return err
	}
	return nil
}

// Response returns the resolved response, or nil before the headers are ready.
func (t *Transaction) Response() *ResponseInfo {
	if !t.headersDone {
		return nil
	}
	return &t.response
}

// Read reads the response body. It returns io.EOF at the end of the body.
func (t *Transaction) Read(ctx context.Context, p []byte) (int, error) {
	if !t.busy.CompareAndSwap(false, true) {
		return 0, ErrTransactionBusy
	}
	defer t.busy.Store(false)
	if !t.headersDone {
		return 0, fmt.Errorf("%w: read before headers", ErrUnexpected)
	}
	if t.finished {
		if t.finalErr != nil {
			return 0, t.finalErr
		}
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := t.readBody(ctx, p)
	t.bodyRead += int64(n)
	switch {
	case err == io.EOF:
		t.finish(nil)
	case err != nil:
		t.finish(err)
	}
	return n, err
}

// Body returns a reader over the response body bound to ctx.
func (t *Transaction) Body(ctx context.Context) io.Reader {
	return &bodyReader{t: t, ctx: ctx}
}

type bodyReader struct {
	t   *Transaction
	ctx context.Context
}

func (b *bodyReader) Read(p []byte) (int, error) {
	return b.t.Read(b.ctx, p)
}

// StopCaching asks to stop writing the body to the cache and only read
// from the network. It fails when other transactions share the fetch.
func (t *Transaction) StopCaching() bool {
	if !t.busy.CompareAndSwap(false, true) {
		return false
	}
	defer t.busy.Store(false)
	if t.entry == nil || t.writers == nil {
		return false
	}
	return t.entry.stopCaching(t)
}

// RestartWithAuth resends the request with credentials after the response
// headers turned out to be a 401 or 407 challenge.
func (t *Transaction) RestartWithAuth(ctx context.Context, user, password string) error {
	if !t.busy.CompareAndSwap(false, true) {
		return ErrTransactionBusy
	}
	defer t.busy.Store(false)
	if !t.authPending || t.network == nil || t.finished {
		return fmt.Errorf("%w: no authentication challenge to answer", ErrUnexpected)
	}
	t.authPending = false
	t.authenticated = true
	t.headersDone = false
	t.requestTime = t.cache.now()
	t.log.Debug().Msg("Restarting with credentials")
	if err := t.network.RestartWithAuth(ctx, user, password); err != nil {
		t.finish(err)
		return err
	}
	t.responseTime = t.cache.now()
	if err := t.run(ctx, stateProcessNetworkResponse); err != nil {
		t.finish(err)
		return err
	}
	return nil
}

// Close releases the transaction. Closing before the end of the body
// leaves a partly written entry truncated or doomed.
func (t *Transaction) Close() {
	if t.closed {
		return
	}
	t.closed = true
	if t.request == nil || t.finished {
		return
	}
	t.log.Trace().Int64("bytes", t.bodyRead).Msg("Closed before end of body")
	t.finish(nil)
}

// run drives the state machine from s until the headers are finished.
func (t *Transaction) run(ctx context.Context, s state) error {
	for s != stateNone {
		t.log.Trace().Stringer("state", s).Msg("Next state")
		next, err := t.step(ctx, s)
		if errors.Is(err, errCacheRace) {
			t.cache.stats.races.Add(1)
			if !errors.Is(err, errEntryInvalidated) {
				t.restarts++
			}
			t.resetForRestart()
			if t.restarts > maxRestarts {
				t.log.Warn().Int("restarts", t.restarts).Msg("Giving up on cache entry, bypassing cache")
				t.forceNoCache = true
			} else {
				t.log.Debug().Int("restarts", t.restarts).Msg("Cache race, restarting")
			}
			s = stateGetBackend
			continue
		}
		if err != nil {
			return err
		}
		s = next
	}
	return nil
}

func (t *Transaction) step(ctx context.Context, s state) (state, error) {
	switch s {
	case stateGetBackend:
		return t.doGetBackend()
	case stateInitEntry:
		return t.doInitEntry()
	case stateOpenEntry:
		return t.doOpenEntry(ctx)
	case stateDoomEntry:
		return t.doDoomEntry(ctx)
	case stateCreateEntry:
		return t.doCreateEntry(ctx)
	case stateAddToEntry:
		return t.doAddToEntry(ctx)
	case stateCacheReadResponse:
		return t.doCacheReadResponse(ctx)
	case stateCacheToggleUnusedSincePrefetch:
		return t.doCacheToggleUnusedSincePrefetch(ctx)
	case stateCacheDispatchValidation:
		return t.doCacheDispatchValidation(ctx)
	case stateStartPartialCacheValidation:
		return t.doStartPartialCacheValidation(ctx)
	case stateSendRequest:
		return t.doSendRequest(ctx)
	case stateProcessNetworkResponse:
		return t.doProcessNetworkResponse(ctx)
	case stateUpdateCachedResponse:
		return t.doUpdateCachedResponse()
	case stateCacheWriteUpdatedResponse:
		return t.doCacheWriteUpdatedResponse(ctx)
	case stateOverwriteCachedResponse:
		return t.doOverwriteCachedResponse(ctx)
	case stateCacheWriteResponse:
		return t.doCacheWriteResponse(ctx)
	case stateTruncateCachedData:
		return t.doTruncateCachedData(ctx)
	case stateSetupEntryForRead:
		return t.doSetupEntryForRead()
	case stateFinishHeaders:
		return t.doFinishHeaders()
	}
	return stateNone, fmt.Errorf("%w: unknown state %v", ErrUnexpected, s)
}

// resetForRestart drops everything learned about the entry so the
// transaction can start over from the backend lookup.
func (t *Transaction) resetForRestart() {
	t.releaseEntry()
	t.closeNetwork()
	t.partial = nil
	t.partialValidate = false
	t.pendingSubrange = -1
	t.invalidRange = false
	t.stored = serializer.StoredResponse{}
	t.haveStored = false
	t.response = ResponseInfo{}
	t.extraHeaders = nil
	t.joinWriters = false
	t.togglePrefetch = false
	t.authPending = false
	t.source = sourceNone
	t.readOffset = 0
	t.status.reset()
}

// releaseEntry lets go of the entry. A created entry nothing was committed
// to is doomed.
func (t *Transaction) releaseEntry() {
	e := t.entry
	if e == nil {
		return
	}
	t.entry = nil
	if t.newEntry && !t.headersCommitted {
		t.cache.doomSharedEntry(e)
	}
	e.removeTransaction(t)
	t.writers = nil
	t.newEntry = false
	t.headersCommitted = false
	t.cache.releaseEntry(e)
}

// dropEntry continues without the cache.
func (t *Transaction) dropEntry() {
	t.releaseEntry()
	t.mode = ModeNoCache
}

func (t *Transaction) closeNetwork() {
	if t.network != nil {
		t.network.Close()
		t.network = nil
	}
	if t.cancelNetwork != nil {
		t.cancelNetwork()
		t.cancelNetwork = nil
	}
}

// finish ends the transaction and records its outcome.
func (t *Transaction) finish(err error) {
	if t.finished {
		return
	}
	t.finished = true
	t.finalErr = err
	t.releaseEntry()
	t.closeNetwork()

	if t.headersDone && t.status.get() == StatusUndefined {
		// an unanswered authentication challenge
		t.status.set(StatusOther)
	}
	status := t.status.get()
	t.cache.stats.record(status)
	event := t.log.Debug()
	if err != nil {
		event = t.log.Warn().Err(err)
	}
	event.
		Stringer("mode", t.mode).
		Stringer("status", status).
		Int("code", t.response.StatusCode).
		Int64("bytes", t.bodyRead).
		Bool("network", t.networkAccessed).
		Dur("duration", t.cache.now().Sub(t.started)).
		Msg("Transaction finished")
}
