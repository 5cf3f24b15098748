package cachetx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	cacheupdate "github.com/always-cache/cachetx/pkg/cache-update"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Prefetcher loads responses into the cache ahead of use.
type Prefetcher struct {
	cache       *Cache
	log         zerolog.Logger
	concurrency int
}

// NewPrefetcher creates a prefetcher running at most concurrency requests
// at a time.
func NewPrefetcher(c *Cache, concurrency int) *Prefetcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Prefetcher{
		cache:       c,
		log:         c.log.With().Str("component", "prefetch").Logger(),
		concurrency: concurrency,
	}
}

// Prefetch loads the given paths. A prefetched response may be used once
// without validation within the prefetch reuse window.
func (p *Prefetcher) Prefetch(ctx context.Context, paths ...string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
			if err != nil {
				return fmt.Errorf("prefetch %s: %w", path, err)
			}
			return p.fetch(ctx, req, LoadPrefetch)
		})
	}
	return g.Wait()
}

// ScheduleUpdates prefetches the paths named by Cache-Update headers,
// after their delay if one was given.
func (p *Prefetcher) ScheduleUpdates(updates []cacheupdate.CacheUpdate) {
	for _, update := range updates {
		p.log.Trace().Str("update", update.Path).Msg("Updating cache based on header")
		path := update.Path
		updateCache := func() {
			if err := p.Prefetch(context.Background(), path); err != nil {
				p.log.Error().Err(err).Str("path", path).Msg("Could not save updates")
			}
		}
		if update.Delay > 0 {
			go func() {
				time.Sleep(update.Delay)
				updateCache()
			}()
		} else {
			updateCache()
		}
	}
}

// RefreshAll validates every stored response of the origin.
func (p *Prefetcher) RefreshAll(ctx context.Context) error {
	if p.cache.backend == nil {
		return nil
	}
	keys := make([]string, 0)
	p.cache.backend.AllKeys(p.cache.keyer.OriginPrefix, func(key string) {
		keys = append(keys, key)
	})
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			req, err := p.cache.keyer.GetRequestFromKey(key)
			if err != nil {
				// not every key maps back to a request
				p.log.Trace().Err(err).Str("key", key).Msg("Skipping key")
				return nil
			}
			if req.Method != http.MethodGet {
				return nil
			}
			if err := p.fetch(ctx, req.WithContext(ctx), LoadValidateCache); err != nil {
				p.log.Error().Err(err).Str("key", key).Msg("Could not refresh cache entry")
			}
			return nil
		})
	}
	return g.Wait()
}

// Run refreshes all stored responses every interval until ctx is done.
func (p *Prefetcher) Run(ctx context.Context, interval time.Duration) {
	p.log.Info().Msgf("Starting cache refresh loop with interval %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.RefreshAll(ctx); err != nil {
				p.log.Error().Err(err).Msg("Cache refresh failed")
			}
		}
	}
}

func (p *Prefetcher) fetch(ctx context.Context, req *http.Request, flags LoadFlags) error {
	tx := p.cache.NewTransaction()
	defer tx.Close()
	p.log.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Msg("Requesting content from origin")
	if err := tx.Start(ctx, req, flags); err != nil {
		return err
	}
	_, err := io.Copy(io.Discard, tx.Body(ctx))
	return err
}
