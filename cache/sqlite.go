package cache

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// sparseStream is the chunk stream index of an entry's sparse data.
const sparseStream = -1

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteBackend stores entries in a SQLite database.
//
// Stream data is kept as chunk rows keyed by their offset, so appending to
// a stream inserts a row and leaves the stored bytes alone. The chunks of a
// stream never overlap and leave no gaps; sparse data uses the same table
// under its own stream index and may have gaps.
//
// Doomed entries lose their key at once; their rows are purged when the
// last open handle is closed, or on the next start.
type SQLiteBackend struct {
	db         *sql.DB
	writeMutex *sync.Mutex

	mu      sync.Mutex
	handles map[int64]*handleState
	hints   map[string]Hint
}

type handleState struct {
	refs   int
	doomed bool
}

// NewSQLiteBackend creates a new backend with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteBackend(filename string) (*SQLiteBackend, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, err
	}
	// a single connection keeps the in-memory db alive and avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT UNIQUE,
			created_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			entry_id INTEGER NOT NULL,
			stream INTEGER NOT NULL,
			pos INTEGER NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (entry_id, stream, pos)
		)`,
		"PRAGMA journal_mode=WAL",
		// entries doomed by a previous process
		"DELETE FROM chunks WHERE entry_id IN (SELECT id FROM entries WHERE key IS NULL)",
		"DELETE FROM entries WHERE key IS NULL",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &SQLiteBackend{
		db:         db,
		writeMutex: &sync.Mutex{},
		handles:    make(map[int64]*handleState),
		hints:      make(map[string]Hint),
	}, nil
}

func (s *SQLiteBackend) OpenEntry(ctx context.Context, key string) (Entry, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	id, err := s.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.acquire(id, key), nil
}

func (s *SQLiteBackend) CreateEntry(ctx context.Context, key string) (Entry, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if _, err := s.lookup(ctx, key); err == nil {
		return nil, ErrExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	result, err := s.db.ExecContext(ctx, "INSERT INTO entries (key, created_at) VALUES (?, ?)", key, time.Now().Unix())
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.acquire(id, key), nil
}

func (s *SQLiteBackend) DoomEntry(ctx context.Context, key string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	id, err := s.lookup(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	return s.doom(id)
}

func (s *SQLiteBackend) Hint(key string) Hint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hints[key]
}

func (s *SQLiteBackend) SetHint(key string, hint Hint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hint == HintNone {
		delete(s.hints, key)
		return
	}
	s.hints[key] = hint
}

func (s *SQLiteBackend) AllKeys(prefix string, cb func(string)) {
	rows, err := s.db.Query("SELECT key FROM entries WHERE key LIKE ? ORDER BY key", prefix+"%")
	if err != nil {
		return
	}
	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			break
		}
		keys = append(keys, key)
	}
	// the callback may use the db, and there is only one connection
	rows.Close()
	for _, key := range keys {
		cb(key)
	}
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

func (s *SQLiteBackend) lookup(ctx context.Context, key string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM entries WHERE key = ?", key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return id, err
}

func (s *SQLiteBackend) acquire(id int64, key string) *sqliteEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[id]
	if !ok {
		h = &handleState{}
		s.handles[id] = h
	}
	h.refs++
	return &sqliteEntry{backend: s, id: id, key: key}
}

// doom must be called with writeMutex held.
func (s *SQLiteBackend) doom(id int64) error {
	if _, err := s.db.Exec("UPDATE entries SET key = NULL WHERE id = ?", id); err != nil {
		return err
	}
	s.mu.Lock()
	h, open := s.handles[id]
	if open {
		h.doomed = true
	}
	s.mu.Unlock()
	if !open {
		return s.purge(id)
	}
	return nil
}

// purge must be called with writeMutex held.
func (s *SQLiteBackend) purge(id int64) error {
	for _, stmt := range []string{
		"DELETE FROM chunks WHERE entry_id = ?",
		"DELETE FROM entries WHERE id = ?",
	} {
		if _, err := s.db.Exec(stmt, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteBackend) release(id int64) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	s.mu.Lock()
	h, ok := s.handles[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	h.refs--
	if h.refs > 0 {
		s.mu.Unlock()
		return nil
	}
	delete(s.handles, id)
	s.mu.Unlock()
	if h.doomed {
		return s.purge(id)
	}
	return nil
}

type sqliteEntry struct {
	backend *SQLiteBackend
	id      int64
	key     string

	closeOnce sync.Once
}

func (e *sqliteEntry) Key() string {
	return e.key
}

func (e *sqliteEntry) DataSize(stream int) int64 {
	if validStream(stream) != nil {
		return 0
	}
	size, err := e.size(context.Background(), e.backend.db, stream)
	if err != nil {
		return 0
	}
	return size
}

func (e *sqliteEntry) ReadData(ctx context.Context, stream int, offset int64, p []byte) (int, error) {
	if err := validStream(stream); err != nil {
		return 0, err
	}
	n, err := e.read(ctx, stream, offset, p)
	if err != nil {
		return 0, err
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (e *sqliteEntry) WriteData(ctx context.Context, stream int, offset int64, p []byte, truncate bool) (int, error) {
	if err := validStream(stream); err != nil {
		return 0, err
	}
	if err := e.write(ctx, stream, offset, p, truncate); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (e *sqliteEntry) ReadSparseData(ctx context.Context, offset int64, p []byte) (int, error) {
	return e.read(ctx, sparseStream, offset, p)
}

func (e *sqliteEntry) WriteSparseData(ctx context.Context, offset int64, p []byte) (int, error) {
	if err := e.write(ctx, sparseStream, offset, p, false); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (e *sqliteEntry) GetAvailableRange(ctx context.Context, offset, length int64) (int64, int64, error) {
	end := offset + length
	rows, err := e.window(ctx, e.backend.db, "pos, length(data)", sparseStream, offset, end)
	if err != nil {
		return offset, 0, err
	}
	defer rows.Close()
	start, runEnd := offset, int64(-1)
	for rows.Next() {
		var pos, n int64
		if err := rows.Scan(&pos, &n); err != nil {
			return offset, 0, err
		}
		if pos+n <= offset {
			continue
		}
		if runEnd < 0 {
			start, runEnd = max(pos, offset), pos+n
			continue
		}
		if pos != runEnd {
			break
		}
		runEnd = pos + n
	}
	if err := rows.Err(); err != nil {
		return offset, 0, err
	}
	if runEnd < 0 {
		return offset, 0, nil
	}
	return start, min(runEnd, end) - start, nil
}

func (e *sqliteEntry) Doom() error {
	s := e.backend
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	return s.doom(e.id)
}

func (e *sqliteEntry) Close() error {
	var err error
	e.closeOnce.Do(func() {
		err = e.backend.release(e.id)
	})
	return err
}

// window selects the chunks of a stream that may hold bytes of [from, to):
// the one starting at or before from and every later one starting before to.
func (e *sqliteEntry) window(ctx context.Context, q querier, columns string, stream int, from, to int64) (*sql.Rows, error) {
	return q.QueryContext(ctx, "SELECT "+columns+` FROM chunks
		WHERE entry_id = ? AND stream = ? AND pos < ? AND pos >= COALESCE(
			(SELECT MAX(pos) FROM chunks WHERE entry_id = ? AND stream = ? AND pos <= ?), 0)
		ORDER BY pos`,
		e.id, stream, to, e.id, stream, from)
}

func (e *sqliteEntry) chunks(ctx context.Context, q querier, stream int, from, to int64) (extents, error) {
	rows, err := e.window(ctx, q, "pos, data", stream, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var x extents
	for rows.Next() {
		var c extent
		if err := rows.Scan(&c.offset, &c.data); err != nil {
			return nil, err
		}
		x = append(x, c)
	}
	return x, rows.Err()
}

func (e *sqliteEntry) size(ctx context.Context, q querier, stream int) (int64, error) {
	var size int64
	err := q.QueryRowContext(ctx,
		"SELECT pos + length(data) FROM chunks WHERE entry_id = ? AND stream = ? ORDER BY pos DESC LIMIT 1",
		e.id, stream,
	).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return size, err
}

// read copies the contiguous stored bytes starting at offset into p.
func (e *sqliteEntry) read(ctx context.Context, stream int, offset int64, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	x, err := e.chunks(ctx, e.backend.db, stream, offset, offset+int64(len(p)))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range x {
		next := offset + int64(n)
		if c.end() <= next {
			continue
		}
		if c.offset > next {
			break
		}
		n += copy(p[n:], c.data[next-c.offset:])
		if n == len(p) {
			break
		}
	}
	return n, nil
}

// write stores p at offset. The chunks it overlaps are cut back to the
// bytes p leaves alone. Streams are zero filled up to offset; sparse data
// is not.
func (e *sqliteEntry) write(ctx context.Context, stream int, offset int64, p []byte, truncate bool) error {
	if len(p) == 0 && !truncate {
		return nil
	}
	s := e.backend
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	end := offset + int64(len(p))
	var size int64
	if stream != sparseStream {
		if size, err = e.size(ctx, tx, stream); err != nil {
			return err
		}
	}
	overlapping, err := e.chunks(ctx, tx, stream, offset, end)
	if err != nil {
		return err
	}
	for _, c := range overlapping {
		if c.end() <= offset {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM chunks WHERE entry_id = ? AND stream = ? AND pos = ?", e.id, stream, c.offset,
		); err != nil {
			return err
		}
		if c.offset < offset {
			if err := e.insert(ctx, tx, stream, c.offset, c.data[:offset-c.offset]); err != nil {
				return err
			}
		}
		if c.end() > end && !truncate {
			if err := e.insert(ctx, tx, stream, end, c.data[end-c.offset:]); err != nil {
				return err
			}
		}
	}
	if truncate {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM chunks WHERE entry_id = ? AND stream = ? AND pos >= ?", e.id, stream, end,
		); err != nil {
			return err
		}
	}
	if stream != sparseStream && offset > size {
		if err := e.insert(ctx, tx, stream, size, make([]byte, offset-size)); err != nil {
			return err
		}
	}
	if len(p) > 0 {
		if err := e.insert(ctx, tx, stream, offset, p); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (e *sqliteEntry) insert(ctx context.Context, q querier, stream int, pos int64, data []byte) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO chunks (entry_id, stream, pos, data) VALUES (?, ?, ?, ?)", e.id, stream, pos, data)
	return err
}
