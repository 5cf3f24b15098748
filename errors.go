package cachetx

import (
	"errors"
	"fmt"
)

var (
	// ErrCacheMiss is returned when a request that may only be served from
	// the cache has no usable stored response.
	ErrCacheMiss = errors.New("cache miss")
	// ErrUnexpected is returned when the cache itself is unusable.
	ErrUnexpected = errors.New("unexpected cache failure")
	// ErrRangeNotSatisfiable is returned when a byte range cannot be served
	// from a cache-only transaction.
	ErrRangeNotSatisfiable = errors.New("requested range not satisfiable")
	// ErrTransactionBusy is returned when a transaction is used while another
	// call on it is still in progress.
	ErrTransactionBusy = errors.New("transaction busy")
	// ErrPartialMismatch is returned when a range response cannot be
	// combined with the bytes already stored.
	ErrPartialMismatch = errors.New("range response does not match stored entry")

	// errCacheRace restarts the transaction from the backend lookup.
	errCacheRace = errors.New("cache race")
	// errEntryInvalidated restarts a transaction whose entry was doomed on
	// purpose, by an unsafe request or a replacing write. It does not count
	// towards maxRestarts.
	errEntryInvalidated = fmt.Errorf("%w: entry invalidated", errCacheRace)
	// errLockTimeout is returned by a waiter that was not granted the entry in time.
	errLockTimeout = errors.New("cache lock timeout")
)
