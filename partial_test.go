package cachetx

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		header string
		want   byteRange
		ok     bool
	}{
		{"bytes=0-9", byteRange{first: 0, last: 9}, true},
		{"bytes=10-", byteRange{first: 10, last: -1}, true},
		{"bytes=-5", byteRange{first: -1, last: -1, suffix: 5}, true},
		{" bytes = 3 - 4 ", byteRange{first: 3, last: 4}, true},
		{"bytes=0-1,5-6", byteRange{}, false},
		{"bytes=5-2", byteRange{}, false},
		{"bytes=-0", byteRange{}, false},
		{"items=0-1", byteRange{}, false},
		{"bytes=a-b", byteRange{}, false},
		{"bytes", byteRange{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := parseRange(tt.header)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestByteRangeResolve(t *testing.T) {
	tests := []struct {
		r           byteRange
		size        int64
		first, last int64
		ok          bool
	}{
		{byteRange{first: 0, last: 9}, 100, 0, 9, true},
		{byteRange{first: 90, last: 200}, 100, 90, 99, true},
		{byteRange{first: 10, last: -1}, 100, 10, 99, true},
		{byteRange{first: -1, last: -1, suffix: 10}, 100, 90, 99, true},
		{byteRange{first: -1, last: -1, suffix: 500}, 100, 0, 99, true},
		{byteRange{first: 100, last: -1}, 100, 0, 0, false},
		{byteRange{first: 0, last: 9}, 0, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.r.String(), func(t *testing.T) {
			first, last, ok := tt.r.resolve(tt.size)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.first, first)
				assert.Equal(t, tt.last, last)
			}
		})
	}
}

func TestFixResponseHeaders(t *testing.T) {
	p, ok := newPartialData("bytes=10-19")
	require.True(t, ok)
	p.resourceSize = 100
	require.True(t, p.resolve())

	h := http.Header{"Content-Length": {"100"}}
	assert.Equal(t, http.StatusPartialContent, p.fixResponseHeaders(h))
	assert.Equal(t, "bytes 10-19/100", h.Get("Content-Range"))
	assert.Equal(t, "10", h.Get("Content-Length"))

	resume := newResumeData(40, 100)
	h = http.Header{"Content-Length": {"100"}}
	assert.Equal(t, http.StatusOK, resume.fixResponseHeaders(h))
	assert.Empty(t, h.Get("Content-Range"))
	assert.Equal(t, "100", h.Get("Content-Length"))
}

func rangeOrigin(content string, modified time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=3600")
		w.Header().Set("ETag", `"content-v1"`)
		http.ServeContent(w, r, "content.txt", modified, strings.NewReader(content))
	}
}

func TestRangeRequests(t *testing.T) {
	content := "0123456789abcdefghijklmnopqrstuvwxyz"
	env := newTestEnv(t, rangeOrigin(content, time.Now().Add(-time.Hour)))

	info, body := env.mustFetch(t, newRequest("GET", "/file", "Range", "bytes=0-9"))
	assert.Equal(t, http.StatusPartialContent, info.StatusCode)
	assert.Equal(t, "0123456789", body)
	assert.Equal(t, StatusNotInCache, info.CacheEntryStatus)
	assert.Equal(t, "bytes 0-9/36", info.Header.Get("Content-Range"))
	assert.True(t, info.Stored)

	info, body = env.mustFetch(t, newRequest("GET", "/file", "Range", "bytes=2-5"))
	assert.Equal(t, http.StatusPartialContent, info.StatusCode)
	assert.Equal(t, "2345", body)
	assert.Equal(t, StatusUsed, info.CacheEntryStatus)
	assert.Equal(t, "bytes 2-5/36", info.Header.Get("Content-Range"))
	assert.EqualValues(t, 1, env.origin.requests.Load())

	// the stored head is read from the entry, the missing tail is fetched
	info, body = env.mustFetch(t, newRequest("GET", "/file", "Range", "bytes=5-14"))
	assert.Equal(t, "56789abcde", body)
	assert.Equal(t, StatusUsed, info.CacheEntryStatus)
	assert.EqualValues(t, 2, env.origin.requests.Load())
	assert.Equal(t, "bytes=10-14", env.origin.lastHeader().Get("Range"))
	assert.Equal(t, `"content-v1"`, env.origin.lastHeader().Get("If-Range"))

	info, body = env.mustFetch(t, newRequest("GET", "/file", "Range", "bytes=0-14"))
	assert.Equal(t, "0123456789abcde", body)
	assert.False(t, info.NetworkAccessed)
	assert.EqualValues(t, 2, env.origin.requests.Load())

	_, _, err := env.fetch(t, newRequest("GET", "/file", "Range", "bytes=20-25"), LoadOnlyFromCache)
	assert.ErrorIs(t, err, ErrCacheMiss)

	// a sparse entry does not serve the full body
	info, body = env.mustFetch(t, newRequest("GET", "/file"))
	assert.Equal(t, http.StatusOK, info.StatusCode)
	assert.Equal(t, content, body)
	info, body = env.mustFetch(t, newRequest("GET", "/file"))
	assert.Equal(t, StatusUsed, info.CacheEntryStatus)
	assert.Equal(t, content, body)
	assert.EqualValues(t, 3, env.origin.requests.Load())
}

func TestRangeFromFullEntry(t *testing.T) {
	content := "0123456789abcdefghijklmnopqrstuvwxyz"
	env := newTestEnv(t, rangeOrigin(content, time.Now().Add(-time.Hour)))

	env.mustFetch(t, newRequest("GET", "/file"))

	info, body := env.mustFetch(t, newRequest("GET", "/file", "Range", "bytes=-6"))
	assert.Equal(t, http.StatusPartialContent, info.StatusCode)
	assert.Equal(t, "uvwxyz", body)
	assert.Equal(t, "bytes 30-35/36", info.Header.Get("Content-Range"))
	assert.Equal(t, StatusUsed, info.CacheEntryStatus)

	// out of bounds ranges go to the origin as they are
	info, _ = env.mustFetch(t, newRequest("GET", "/file", "Range", "bytes=100-"))
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, info.StatusCode)
	assert.Equal(t, StatusOther, info.CacheEntryStatus)

	_, _, err := env.fetch(t, newRequest("GET", "/file", "Range", "bytes=100-"), LoadOnlyFromCache)
	assert.ErrorIs(t, err, ErrRangeNotSatisfiable)

	info, _ = env.mustFetch(t, newRequest("GET", "/file"))
	assert.Equal(t, StatusUsed, info.CacheEntryStatus)
	assert.EqualValues(t, 2, env.origin.requests.Load())
}

func TestRangeWithPreconditionBypassesCache(t *testing.T) {
	content := "0123456789"
	env := newTestEnv(t, rangeOrigin(content, time.Now().Add(-time.Hour)))

	env.mustFetch(t, newRequest("GET", "/file"))
	info, body := env.mustFetch(t, newRequest("GET", "/file", "Range", "bytes=0-1", "If-Range", `"content-v1"`))
	assert.Equal(t, "01", body)
	assert.Equal(t, StatusOther, info.CacheEntryStatus)
	assert.EqualValues(t, 2, env.origin.requests.Load())
}

func TestResumeTruncatedEntry(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 100)
	env := newTestEnv(t, rangeOrigin(string(content), time.Now().Add(-time.Hour)))
	ctx := context.Background()

	tx := env.cache.NewTransaction()
	require.NoError(t, tx.Start(ctx, newRequest("GET", "/big"), LoadNormal))
	part := make([]byte, 100)
	_, err := io.ReadFull(tx.Body(ctx), part)
	require.NoError(t, err)
	tx.Close()

	info, body := env.mustFetch(t, newRequest("GET", "/big"))
	assert.Equal(t, http.StatusOK, info.StatusCode)
	assert.Equal(t, string(content), body)
	assert.Equal(t, "1000", info.Header.Get("Content-Length"))
	assert.Equal(t, StatusValidated, info.CacheEntryStatus)
	assert.Equal(t, "bytes=100-999", env.origin.lastHeader().Get("Range"))
	assert.Equal(t, `"content-v1"`, env.origin.lastHeader().Get("If-Range"))

	info, body = env.mustFetch(t, newRequest("GET", "/big"))
	assert.Equal(t, StatusUsed, info.CacheEntryStatus)
	assert.False(t, info.NetworkAccessed)
	assert.Equal(t, string(content), body)
	assert.EqualValues(t, 2, env.origin.requests.Load())
}

func TestResumeAfterChangeStartsOver(t *testing.T) {
	version := "v1"
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=3600")
		w.Header().Set("ETag", `"`+version+`"`)
		content := strings.Repeat(version, 500)
		http.ServeContent(w, r, "big.txt", time.Time{}, strings.NewReader(content))
	})
	ctx := context.Background()

	tx := env.cache.NewTransaction()
	require.NoError(t, tx.Start(ctx, newRequest("GET", "/big"), LoadNormal))
	_, err := io.ReadFull(tx.Body(ctx), make([]byte, 10))
	require.NoError(t, err)
	tx.Close()

	// If-Range fails and the full new body replaces the entry
	version = "v2"
	info, body := env.mustFetch(t, newRequest("GET", "/big"))
	assert.Equal(t, http.StatusOK, info.StatusCode)
	assert.Equal(t, strings.Repeat("v2", 500), body)
	assert.Equal(t, StatusUpdated, info.CacheEntryStatus)

	info, body = env.mustFetch(t, newRequest("GET", "/big"))
	assert.Equal(t, StatusUsed, info.CacheEntryStatus)
	assert.Equal(t, strings.Repeat("v2", 500), body)
}
