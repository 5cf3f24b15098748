// Package cachetx implements an HTTP response cache as a per-request
// transaction engine.
//
// Every request runs through a Transaction that decides whether the stored
// response can be reused, has to be validated or replaced, and streams the
// body from the cache, the network or both. Transactions for the same key
// share one entry: one of them works on the headers at a time, concurrent
// writers share a single network fetch, and readers stream what was stored.
package cachetx

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/always-cache/cachetx/cache"
	cachekey "github.com/always-cache/cachetx/pkg/cache-key"
	"github.com/always-cache/cachetx/rfc9111"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultLockTimeout        = 20 * time.Second
	DefaultPartialLockTimeout = time.Second
	DefaultPrefetchReuse      = 5 * time.Minute
)

type Config struct {
	// Storage for cache entries.
	// Caching is disabled if nil.
	Backend cache.Backend
	// Network layer used for all requests that are not served from the cache.
	Network NetworkLayer
	// Unique identifier for the origin, used as the cache key prefix.
	OriginId string
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// How long a transaction waits for an entry another transaction is
	// working on before it bypasses the cache.
	LockTimeout time.Duration
	// Same as LockTimeout, for range requests.
	PartialLockTimeout time.Duration
	// How long a prefetched response may be used once without validation.
	PrefetchReuse time.Duration
	// Clock used for all freshness calculations. Defaults to time.Now.
	Now func() time.Time
}

// Cache coordinates the transactions of one origin.
type Cache struct {
	backend            cache.Backend
	network            NetworkLayer
	keyer              cachekey.CacheKeyer
	log                zerolog.Logger
	lockTimeout        time.Duration
	partialLockTimeout time.Duration
	prefetchReuse      time.Duration
	now                func() time.Time

	mu      sync.Mutex
	entries map[string]*sharedEntry
	// keys with a backend open or create in flight
	pending map[string]chan struct{}
	closed  bool

	stats stats
}

// New creates a cache.
func New(config Config) *Cache {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	logger = logger.With().
		Str("origin", config.OriginId).
		Logger()

	c := &Cache{
		backend:            config.Backend,
		network:            config.Network,
		keyer:              cachekey.NewCacheKeyer(config.OriginId),
		log:                logger,
		lockTimeout:        config.LockTimeout,
		partialLockTimeout: config.PartialLockTimeout,
		prefetchReuse:      config.PrefetchReuse,
		now:                config.Now,
		entries:            make(map[string]*sharedEntry),
		pending:            make(map[string]chan struct{}),
	}
	if c.lockTimeout <= 0 {
		c.lockTimeout = DefaultLockTimeout
	}
	if c.partialLockTimeout <= 0 {
		c.partialLockTimeout = DefaultPartialLockTimeout
	}
	if c.prefetchReuse <= 0 {
		c.prefetchReuse = DefaultPrefetchReuse
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// NewTransaction creates a transaction for one request.
func (c *Cache) NewTransaction() *Transaction {
	id := uuid.NewString()
	return &Transaction{
		cache:           c,
		id:              id,
		log:             c.log.With().Str("tx", id).Logger(),
		pendingSubrange: -1,
	}
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return c.stats.snapshot()
}

// Close makes new transactions fail. Transactions in progress finish
// normally. The backend is not closed.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Cache) usable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// lockKey locks c.mu once no backend open or create of key is in flight.
// The backend is called without c.mu held, so a slow disk only holds up
// transactions on the same key.
func (c *Cache) lockKey(ctx context.Context, key string) error {
	for {
		c.mu.Lock()
		done, busy := c.pending[key]
		if !busy {
			return nil
		}
		c.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// reserve marks key as pending and unlocks c.mu. The returned function
// locks c.mu again and lifts the reservation.
func (c *Cache) reserve(key string) func() {
	done := make(chan struct{})
	c.pending[key] = done
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.pending, key)
		close(done)
	}
}

// openEntry returns the active entry for the key or opens the stored one.
// Every successful call has to be paired with releaseEntry.
func (c *Cache) openEntry(ctx context.Context, key string) (*sharedEntry, error) {
	if err := c.lockKey(ctx, key); err != nil {
		return nil, err
	}
	if c.closed {
		c.mu.Unlock()
		return nil, ErrUnexpected
	}
	if e, ok := c.entries[key]; ok {
		e.refs++
		c.mu.Unlock()
		return e, nil
	}
	relock := c.reserve(key)
	disk, err := c.backend.OpenEntry(ctx, key)
	relock()
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.closed {
		c.mu.Unlock()
		disk.Close()
		return nil, ErrUnexpected
	}
	e := newSharedEntry(c, key, disk)
	c.entries[key] = e
	c.mu.Unlock()
	return e, nil
}

// createEntry creates an empty entry with t already holding its headers.
func (c *Cache) createEntry(ctx context.Context, key string, t *Transaction) (*sharedEntry, error) {
	if err := c.lockKey(ctx, key); err != nil {
		return nil, err
	}
	if c.closed {
		c.mu.Unlock()
		return nil, ErrUnexpected
	}
	if _, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return nil, errCacheRace
	}
	relock := c.reserve(key)
	disk, err := c.backend.CreateEntry(ctx, key)
	relock()
	if errors.Is(err, cache.ErrExists) {
		c.mu.Unlock()
		return nil, errCacheRace
	}
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.closed {
		c.mu.Unlock()
		disk.Doom()
		disk.Close()
		return nil, ErrUnexpected
	}
	e := newSharedEntry(c, key, disk)
	e.headersTx = t
	c.entries[key] = e
	c.mu.Unlock()
	return e, nil
}

// doomEntry removes the stored response for the key, active or not.
// Transactions waiting for the entry start over without that counting
// against their restarts.
func (c *Cache) doomEntry(ctx context.Context, key string) error {
	if err := c.lockKey(ctx, key); err != nil {
		return err
	}
	if e, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.mu.Unlock()
		c.stats.doomed.Add(1)
		e.doom(errEntryInvalidated)
		return nil
	}
	relock := c.reserve(key)
	err := c.backend.DoomEntry(ctx, key)
	relock()
	c.mu.Unlock()
	if errors.Is(err, cache.ErrNotFound) {
		return nil
	}
	if err == nil {
		c.stats.doomed.Add(1)
	}
	return err
}

// doomSharedEntry dooms an entry the caller holds a reference to.
func (c *Cache) doomSharedEntry(e *sharedEntry) {
	c.mu.Lock()
	if c.entries[e.key] == e {
		delete(c.entries, e.key)
	}
	c.mu.Unlock()
	if e.doom(errCacheRace) {
		c.stats.doomed.Add(1)
		c.log.Debug().Str("key", e.key).Msg("Doomed cache entry")
	}
}

// releaseEntry drops a reference taken by openEntry or createEntry.
func (c *Cache) releaseEntry(e *sharedEntry) {
	c.mu.Lock()
	e.refs--
	last := e.refs == 0
	if last && c.entries[e.key] == e {
		delete(c.entries, e.key)
	}
	c.mu.Unlock()
	if last {
		if err := e.disk.Close(); err != nil {
			c.log.Error().Err(err).Str("key", e.key).Msg("Could not close cache entry")
		}
	}
}

// invalidate dooms the stored responses made stale by an unsafe request.
func (c *Cache) invalidate(ctx context.Context, req *http.Request, statusCode int, header http.Header) {
	if c.backend == nil {
		return
	}
	for _, uri := range rfc9111.InvalidationURIs(req, statusCode, header) {
		key := c.keyer.KeyFor(http.MethodGet, uri, req.Header.Get("Cache-Key"))
		c.log.Debug().Str("key", key).Msg("Invalidating stored response")
		if err := c.doomEntry(ctx, key); err != nil {
			c.log.Error().Err(err).Str("key", key).Msg("Could not invalidate stored response")
		}
	}
}
