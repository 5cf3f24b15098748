package cachetx

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/always-cache/cachetx/cache"
	serializer "github.com/always-cache/cachetx/pkg/response-serializer"
	"github.com/always-cache/cachetx/rfc9111"

	"github.com/rs/zerolog"
)

// entryWriters shares one network fetch between all transactions that
// want the same new response. The member at the network frontier reads
// from the network and writes to the entry; members behind it read the
// stored bytes. Each member keeps its own offset in Transaction.readOffset.
type entryWriters struct {
	entry   *sharedEntry
	disk    cache.Entry
	network NetworkTransaction
	cancel  context.CancelFunc
	record  serializer.StoredResponse
	log     zerolog.Logger
	// expected body length, -1 when unknown
	expected  int64
	resumable bool

	closeOnce sync.Once

	mu      sync.Mutex
	members map[*Transaction]struct{}
	// written is the network frontier
	written int64
	// reading is set while a member waits for the network
	reading bool
	// progress is closed and replaced whenever the frontier moves
	progress  chan struct{}
	caching   bool
	done      bool
	err       error
	abandoned bool
}

func newEntryWriters(e *sharedEntry, network NetworkTransaction, cancel context.CancelFunc, record serializer.StoredResponse, log zerolog.Logger) *entryWriters {
	return &entryWriters{
		entry:     e,
		disk:      e.disk,
		network:   network,
		cancel:    cancel,
		record:    record,
		log:       log,
		expected:  rfc9111.ContentLength(record.Header),
		resumable: rfc9111.CanResume(record.StatusCode, record.Header),
		members:   make(map[*Transaction]struct{}),
		progress:  make(chan struct{}),
		caching:   true,
	}
}

func (w *entryWriters) add(t *Transaction) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.acceptingLocked() {
		return false
	}
	w.members[t] = struct{}{}
	return true
}

func (w *entryWriters) accepting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.acceptingLocked()
}

func (w *entryWriters) acceptingLocked() bool {
	return !w.done && w.err == nil && w.caching && !w.abandoned
}

// remove drops t from the group and reports whether it was the last member.
func (w *entryWriters) remove(t *Transaction) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.members[t]; !ok {
		return false
	}
	delete(w.members, t)
	return len(w.members) == 0
}

func (w *entryWriters) soleMember(t *Transaction) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.members[t]
	return ok && len(w.members) == 1
}

func (w *entryWriters) memberList() []*Transaction {
	w.mu.Lock()
	defer w.mu.Unlock()
	list := make([]*Transaction, 0, len(w.members))
	for t := range w.members {
		list = append(list, t)
	}
	return list
}

// Read reads the next part of the body for member t.
func (w *entryWriters) Read(ctx context.Context, t *Transaction, p []byte) (int, error) {
	for {
		w.mu.Lock()
		if t.readOffset < w.written {
			if !w.caching {
				w.mu.Unlock()
				return 0, fmt.Errorf("%w: body was not stored", ErrUnexpected)
			}
			available := w.written - t.readOffset
			w.mu.Unlock()
			if int64(len(p)) > available {
				p = p[:available]
			}
			n, err := w.disk.ReadData(ctx, cache.StreamBody, t.readOffset, p)
			t.readOffset += int64(n)
			if n > 0 {
				return n, nil
			}
			if err == nil || err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}
		if w.err != nil {
			err := w.err
			w.mu.Unlock()
			return 0, err
		}
		if w.done {
			w.mu.Unlock()
			return 0, io.EOF
		}
		if w.reading {
			progress := w.progress
			w.mu.Unlock()
			select {
			case <-progress:
				continue
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
		w.reading = true
		caching := w.caching
		offset := w.written
		w.mu.Unlock()

		n, err := w.network.Read(p)
		var writeErr error
		if n > 0 && caching {
			_, writeErr = w.disk.WriteData(context.WithoutCancel(ctx), cache.StreamBody, offset, p[:n], false)
		}

		w.mu.Lock()
		w.reading = false
		if writeErr != nil {
			w.log.Error().Err(writeErr).Msg("Could not write body to cache, continuing without caching")
			w.caching = false
		}
		w.written += int64(n)
		t.readOffset = w.written
		if err == io.EOF {
			if w.expected >= 0 && w.written != w.expected {
				err = fmt.Errorf("%w: body ended after %d of %d bytes", io.ErrUnexpectedEOF, w.written, w.expected)
			} else {
				w.done = true
			}
		}
		if err != nil && err != io.EOF {
			w.err = err
		}
		done, failed, written := w.done, w.err, w.written
		close(w.progress)
		w.progress = make(chan struct{})
		w.mu.Unlock()

		switch {
		case failed != nil:
			w.log.Debug().Err(failed).Int64("bytes", written).Msg("Network fetch failed")
			w.shutdown()
			w.entry.writersFailed(w)
		case done:
			w.log.Debug().Int64("bytes", written).Msg("Network fetch complete")
			w.shutdown()
			w.entry.writersFinished(w)
		}
		if n > 0 {
			return n, nil
		}
		if failed != nil {
			return 0, failed
		}
		if done {
			return 0, io.EOF
		}
	}
}

// shutdown cancels and closes the network transaction.
func (w *entryWriters) shutdown() {
	w.closeOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		w.network.Close()
	})
}

// stopCaching turns the group into a plain network reader. What was written
// so far is kept as a truncated entry if keepEntry is set, otherwise the
// entry is doomed.
func (w *entryWriters) stopCaching(keepEntry bool) bool {
	w.mu.Lock()
	if !w.acceptingLocked() || len(w.members) != 1 {
		w.mu.Unlock()
		return false
	}
	w.caching = false
	w.abandoned = true
	keep := keepEntry && w.written > 0
	w.mu.Unlock()

	w.log.Debug().Bool("keep", keep).Msg("Stopped caching")
	w.keepOrDoom(keep)
	return true
}

// abandonEntry is called when the group will not complete the body.
func (w *entryWriters) abandonEntry() {
	w.mu.Lock()
	if w.abandoned || w.done {
		w.mu.Unlock()
		return
	}
	w.abandoned = true
	keep := w.caching && w.resumable && w.written > 0
	w.mu.Unlock()

	w.keepOrDoom(keep)
}

func (w *entryWriters) keepOrDoom(keep bool) {
	if keep {
		rec := w.record.Clone()
		rec.Truncated = true
		_, err := w.disk.WriteData(context.Background(), cache.StreamHeaders, 0, rec.Marshal(), true)
		if err == nil {
			w.log.Debug().Msg("Kept incomplete entry as truncated")
			return
		}
		w.log.Error().Err(err).Msg("Could not mark entry as truncated")
	}
	w.entry.cache.doomSharedEntry(w.entry)
}
