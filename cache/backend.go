// Package cache provides the entry storage used by the transaction engine.
//
// An entry is addressed by key and holds three independent data streams
// (headers, body, metadata) plus an optional sparse byte-range store.
// Dooming an entry detaches it from its key: open handles stay usable, but
// new opens of the key no longer find it and a new entry can be created.
//
// Implementations must be thread-safe!
package cache

import (
	"context"
	"errors"
)

// Stream indices of an entry.
const (
	StreamHeaders  = 0
	StreamBody     = 1
	StreamMetadata = 2
	numStreams     = 3
)

var (
	ErrNotFound      = errors.New("cache entry not found")
	ErrExists        = errors.New("cache entry already exists")
	ErrInvalidStream = errors.New("invalid stream index")
)

// Hint is a cheap per-key verdict that lets a caller skip reading an entry.
type Hint int

const (
	HintNone Hint = iota
	// HintUnusable means the stored response can neither be reused
	// nor validated.
	HintUnusable
)

type Backend interface {
	// OpenEntry opens the entry stored under key or returns ErrNotFound.
	OpenEntry(ctx context.Context, key string) (Entry, error)
	// CreateEntry creates an empty entry or returns ErrExists.
	CreateEntry(ctx context.Context, key string) (Entry, error)
	// DoomEntry dooms the entry stored under key, if any.
	DoomEntry(ctx context.Context, key string) error
	// Hint returns the hint recorded for key.
	Hint(key string) Hint
	// SetHint records a hint for key.
	SetHint(key string, hint Hint)
	// AllKeys calls the given callback for each key with the given prefix.
	AllKeys(prefix string, cb func(string))
	Close() error
}

// Entry is a handle to one cache entry.
type Entry interface {
	Key() string
	// DataSize returns the length of the stream.
	DataSize(stream int) int64
	// ReadData reads from the stream at offset. It returns io.EOF when
	// offset is at or past the end of the stream.
	ReadData(ctx context.Context, stream int, offset int64, p []byte) (int, error)
	// WriteData writes p at offset, zero filling any gap. With truncate the
	// stream ends after the written data.
	WriteData(ctx context.Context, stream int, offset int64, p []byte, truncate bool) (int, error)
	// ReadSparseData reads the contiguous stored bytes starting at offset;
	// it returns 0 when offset is not stored.
	ReadSparseData(ctx context.Context, offset int64, p []byte) (int, error)
	WriteSparseData(ctx context.Context, offset int64, p []byte) (int, error)
	// GetAvailableRange returns the first stored run of bytes within
	// [offset, offset+length). n is 0 when nothing in the range is stored.
	GetAvailableRange(ctx context.Context, offset, length int64) (start int64, n int64, err error)
	// Doom detaches the entry from its key.
	Doom() error
	Close() error
}

func validStream(stream int) error {
	if stream < 0 || stream >= numStreams {
		return ErrInvalidStream
	}
	return nil
}
