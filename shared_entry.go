package cachetx

import (
	"context"
	"sync"
	"time"

	"github.com/always-cache/cachetx/cache"
)

// sharedEntry is the in-memory state of a cache entry that transactions
// are working on. Only one transaction at a time works on the headers;
// the others wait in the queue. Once the headers are done a transaction
// either reads the stored body or joins the group of writers.
//
// Lock order: Cache.mu is never held while taking sharedEntry.mu, and
// sharedEntry.mu is taken before entryWriters.mu.
type sharedEntry struct {
	cache *Cache
	key   string
	disk  cache.Entry
	// guarded by cache.mu
	refs int

	mu        sync.Mutex
	headersTx *Transaction
	queue     []*entryWaiter
	writers   *entryWriters
	readers   map[*Transaction]struct{}
	doomed    bool
	// handed to waiters once doomed
	doomCause error
}

type entryWaiter struct {
	tx    *Transaction
	ready chan error
}

func newSharedEntry(c *Cache, key string, disk cache.Entry) *sharedEntry {
	return &sharedEntry{
		cache:   c,
		key:     key,
		disk:    disk,
		refs:    1,
		readers: make(map[*Transaction]struct{}),
	}
}

// admits reports whether t may work on the headers right now. A range
// request reads and writes the entry on its own, so it has to wait for
// writers to finish.
func (e *sharedEntry) admits(t *Transaction) bool {
	return t.partial == nil || e.writers == nil
}

// addTransaction makes t the transaction working on the headers, waiting up
// to timeout for the current one to finish. It returns errLockTimeout when
// the wait timed out and the doom cause when the entry was doomed meanwhile.
func (e *sharedEntry) addTransaction(ctx context.Context, t *Transaction, timeout time.Duration) error {
	e.mu.Lock()
	if e.doomed {
		err := e.doomCause
		e.mu.Unlock()
		return err
	}
	if e.headersTx == nil && len(e.queue) == 0 && e.admits(t) {
		e.headersTx = t
		e.mu.Unlock()
		return nil
	}
	w := &entryWaiter{tx: t, ready: make(chan error, 1)}
	e.queue = append(e.queue, w)
	e.mu.Unlock()

	t.log.Trace().Dur("timeout", timeout).Msg("Waiting for cache entry")
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-w.ready:
		return err
	case <-timer.C:
		if e.removeWaiter(w) {
			return errLockTimeout
		}
		return <-w.ready
	case <-ctx.Done():
		if e.removeWaiter(w) {
			return ctx.Err()
		}
		if err := <-w.ready; err != nil {
			return err
		}
		// promoted while giving up
		e.removeTransaction(t)
		return ctx.Err()
	}
}

func (e *sharedEntry) removeWaiter(w *entryWaiter) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, q := range e.queue {
		if q == w {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			return true
		}
	}
	return false
}

// promoteLocked hands the headers to the next waiter.
func (e *sharedEntry) promoteLocked() {
	if e.headersTx != nil || e.doomed || len(e.queue) == 0 {
		return
	}
	w := e.queue[0]
	if !e.admits(w.tx) {
		return
	}
	e.queue = e.queue[1:]
	e.headersTx = w.tx
	w.ready <- nil
}

// doom marks the entry as no longer reachable and fails all waiters with
// cause, which has to be errCacheRace or wrap it. Transactions already
// working on it are not affected. It reports whether the entry was doomed
// by this call.
func (e *sharedEntry) doom(cause error) bool {
	e.mu.Lock()
	if e.doomed {
		e.mu.Unlock()
		return false
	}
	e.doomed = true
	e.doomCause = cause
	queue := e.queue
	e.queue = nil
	e.mu.Unlock()

	if err := e.disk.Doom(); err != nil {
		e.cache.log.Error().Err(err).Str("key", e.key).Msg("Could not doom cache entry")
	}
	for _, w := range queue {
		w.ready <- cause
	}
	return true
}

// doneWithHeaders turns t into a reader of the stored body.
func (e *sharedEntry) doneWithHeaders(t *Transaction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.headersTx == t {
		e.headersTx = nil
	}
	e.readers[t] = struct{}{}
	e.promoteLocked()
}

// startWriters makes t the first member of a new group of writers.
func (e *sharedEntry) startWriters(t *Transaction, w *entryWriters) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.headersTx == t {
		e.headersTx = nil
	}
	w.add(t)
	e.writers = w
	e.promoteLocked()
}

// joinWriters adds t to the active writers. If the writers finished in the
// meantime, t becomes a reader and nil is returned.
func (e *sharedEntry) joinWriters(t *Transaction) *entryWriters {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.headersTx == t {
		e.headersTx = nil
	}
	defer e.promoteLocked()
	if e.writers != nil && e.writers.add(t) {
		return e.writers
	}
	e.readers[t] = struct{}{}
	return nil
}

// activeWriters reports whether a network fetch into the entry is running
// that new transactions can join.
func (e *sharedEntry) activeWriters() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writers != nil && e.writers.accepting()
}

// hasOtherUsers reports whether anyone besides t reads or writes the body.
func (e *sharedEntry) hasOtherUsers(t *Transaction) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.writers != nil {
		return true
	}
	for r := range e.readers {
		if r != t {
			return true
		}
	}
	return false
}

// writersFinished turns the members of a completed group into readers.
func (e *sharedEntry) writersFinished(w *entryWriters) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.writers == w {
		e.writers = nil
	}
	for _, t := range w.memberList() {
		e.readers[t] = struct{}{}
	}
	e.promoteLocked()
}

// writersFailed detaches a failed group and keeps or dooms what it wrote.
// The members stay attached to the group and get its error.
func (e *sharedEntry) writersFailed(w *entryWriters) {
	e.mu.Lock()
	if e.writers == w {
		e.writers = nil
	}
	e.mu.Unlock()

	w.abandonEntry()

	e.mu.Lock()
	e.promoteLocked()
	e.mu.Unlock()
}

// stopCaching detaches the writers of t when t is their only member and
// nobody else uses the entry.
func (e *sharedEntry) stopCaching(t *Transaction) bool {
	e.mu.Lock()
	w := e.writers
	ok := w != nil && t.writers == w && len(e.readers) == 0 && len(e.queue) == 0 && w.soleMember(t)
	if ok {
		e.writers = nil
	}
	e.mu.Unlock()
	if !ok {
		return false
	}
	return w.stopCaching(w.resumable)
}

// removeTransaction forgets t in whatever role it had. When t was the last
// member of an unfinished group of writers, the fetch is cancelled and the
// entry is kept as truncated or doomed.
func (e *sharedEntry) removeTransaction(t *Transaction) {
	e.mu.Lock()
	if e.headersTx == t {
		e.headersTx = nil
	}
	delete(e.readers, t)
	var last *entryWriters
	if w := t.writers; w != nil && w.remove(t) {
		last = w
		if e.writers == w {
			e.writers = nil
		}
	}
	e.mu.Unlock()

	if last != nil {
		last.shutdown()
		last.abandonEntry()
	}

	e.mu.Lock()
	e.promoteLocked()
	e.mu.Unlock()
}
