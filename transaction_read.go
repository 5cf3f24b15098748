package cachetx

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/always-cache/cachetx/cache"
	"github.com/always-cache/cachetx/rfc9111"
)

func (t *Transaction) readBody(ctx context.Context, p []byte) (int, error) {
	if t.authPending {
		// the caller settles for the challenge
		t.authPending = false
		t.dropEntry()
		t.status.set(StatusOther)
		t.response.CacheEntryStatus = StatusOther
	}
	switch t.source {
	case sourceNetwork:
		return t.readNetwork(p)
	case sourceCache:
		return t.readCache(ctx, p)
	case sourceWriters:
		return t.writers.Read(ctx, t, p)
	case sourcePartial:
		return t.readPartial(ctx, p)
	}
	return 0, io.EOF
}

func (t *Transaction) readNetwork(p []byte) (int, error) {
	if t.network == nil {
		return 0, io.EOF
	}
	for {
		n, err := t.network.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil {
			return 0, err
		}
	}
}

func (t *Transaction) readCache(ctx context.Context, p []byte) (int, error) {
	n, err := t.entry.disk.ReadData(ctx, cache.StreamBody, t.readOffset, p)
	if err == io.EOF {
		if cl := rfc9111.ContentLength(t.stored.Header); cl >= 0 && t.readOffset != cl {
			err = fmt.Errorf("%w: stored body has %d of %d bytes", io.ErrUnexpectedEOF, t.readOffset, cl)
		} else {
			return 0, io.EOF
		}
	}
	if err != nil {
		t.log.Warn().Err(err).Msg("Could not read stored body, dooming entry")
		t.cache.doomSharedEntry(t.entry)
		if t.bodyRead == 0 {
			return t.restartRead(ctx, p, err)
		}
		return 0, err
	}
	t.readOffset += int64(n)
	return n, nil
}

// restartRead starts the transaction over when the stored body failed
// before the caller got any of it.
func (t *Transaction) restartRead(ctx context.Context, p []byte, cause error) (int, error) {
	if t.restarts >= maxRestarts {
		return 0, cause
	}
	seen := t.response.StatusCode
	t.restarts++
	t.resetForRestart()
	t.headersDone = false
	if err := t.run(ctx, stateGetBackend); err != nil {
		return 0, err
	}
	if t.response.StatusCode != seen {
		return 0, fmt.Errorf("%w: response changed after restart", ErrUnexpected)
	}
	return t.readBody(ctx, p)
}

func (t *Transaction) readPartial(ctx context.Context, p []byte) (int, error) {
	for {
		if t.partial.done() {
			t.finishPartial(ctx)
			return 0, io.EOF
		}
		if t.partial.subrangeDone() {
			if err := t.startNextSubrange(ctx); err != nil {
				return 0, err
			}
			continue
		}
		buf := t.partial.limit(p)
		if t.partial.current.cached {
			n, err := t.partial.readStored(ctx, t.entry.disk, buf)
			if n > 0 {
				t.partial.consumed(n)
				return n, nil
			}
			if err == nil || err == io.EOF {
				err = fmt.Errorf("%w: stored range ended early", ErrUnexpected)
			}
			t.log.Warn().Err(err).Msg("Could not read stored range, dooming entry")
			t.cache.doomSharedEntry(t.entry)
			return 0, err
		}
		n, err := t.readNetwork(buf)
		if n > 0 {
			if t.mode.writes() {
				if werr := t.partial.store(context.WithoutCancel(ctx), t.entry.disk, buf[:n]); werr != nil {
					t.log.Error().Err(werr).Msg("Could not store range, continuing without caching")
					t.partial.noStore = true
				}
			}
			t.partial.consumed(n)
			return n, nil
		}
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}
}

// startNextSubrange prepares reading the run at the current offset,
// fetching it from the network when it is not stored.
func (t *Transaction) startNextSubrange(ctx context.Context) error {
	if t.pendingSubrange < 0 {
		t.closeNetwork()
	}
	if err := t.partial.prepareSubrange(ctx, t.entry.disk); err != nil {
		return err
	}
	cur := t.partial.current
	if t.network != nil && t.pendingSubrange == cur.start && !cur.cached {
		t.pendingSubrange = -1
		t.partial.current.length = t.partial.rangeEnd - cur.start + 1
		return nil
	}
	if cur.cached && !t.partialValidate {
		return nil
	}
	if t.mode == ModeReadOnly {
		return ErrCacheMiss
	}
	h, ok := t.subrangeHeaders()
	if !ok {
		return ErrPartialMismatch
	}
	t.extraHeaders = h
	if _, err := t.doSendRequest(ctx); err != nil {
		return err
	}
	res := t.network.Response()
	switch {
	case res.StatusCode == http.StatusNotModified && cur.cached:
		t.closeNetwork()
		t.partialValidate = false
		return nil
	case res.StatusCode == http.StatusPartialContent && !cur.cached &&
		t.partial.responseMatches(res.Header) && rfc9111.MayCombine(t.stored.Header, res.Header):
		t.partialValidate = false
		return nil
	}
	t.log.Warn().Int("status", res.StatusCode).Msg("Range response does not match stored entry, dooming entry")
	t.closeNetwork()
	t.cache.doomSharedEntry(t.entry)
	return ErrPartialMismatch
}

// finishPartial clears the truncated flag once the body is complete.
func (t *Transaction) finishPartial(ctx context.Context) {
	t.closeNetwork()
	if !t.partial.truncated || t.partial.sparse || !t.mode.writes() {
		return
	}
	if t.entry.disk.DataSize(cache.StreamBody) != t.partial.resourceSize {
		return
	}
	t.stored.Truncated = false
	if err := t.writeStoredResponse(ctx); err != nil {
		t.log.Error().Err(err).Msg("Could not mark entry as complete")
		return
	}
	t.log.Debug().Msg("Completed truncated entry")
}
