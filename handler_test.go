package cachetx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(h http.Handler, req *http.Request) *http.Response {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Result()
}

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return string(body)
}

func TestHandlerServesFromCache(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=3600")
		w.Header().Set("Content-Type", "text/test")
		w.Write([]byte("Hello world"))
	})
	h := NewHandler(env.cache, nil)

	res := serve(h, newRequest("GET", "/"))
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Hello world", readBody(t, res))
	assert.Contains(t, res.Header.Get("Cache-Status"), "fwd=uri-miss")
	assert.Contains(t, res.Header.Get("Cache-Status"), "stored")

	res = serve(h, newRequest("GET", "/"))
	assert.Equal(t, "Hello world", readBody(t, res))
	assert.Equal(t, "text/test", res.Header.Get("Content-Type"))
	assert.Contains(t, res.Header.Get("Cache-Status"), "hit")
	assert.Equal(t, "0", res.Header.Get("Age"))
	assert.EqualValues(t, 1, env.origin.requests.Load())
}

func TestHandlerErrors(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	})
	h := NewHandler(env.cache, nil)

	res := serve(h, newRequest("GET", "/missing", "Cache-Control", "only-if-cached"))
	assert.Equal(t, http.StatusGatewayTimeout, res.StatusCode)
	assert.Contains(t, res.Header.Get("Cache-Status"), "detail=only-if-cached")

	env.origin.Close()
	res = serve(h, newRequest("GET", "/down"))
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)
}

func TestHandlerRequestModifier(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=3600")
		w.Write([]byte(r.Header.Get("X-Tenant")))
	})
	h := NewHandler(env.cache, nil)
	h.RequestModifier = func(r *http.Request) {
		r.Header.Set("Cache-Key", r.Header.Get("X-Tenant"))
	}

	assert.Equal(t, "a", readBody(t, serve(h, newRequest("GET", "/", "X-Tenant", "a"))))
	assert.Equal(t, "b", readBody(t, serve(h, newRequest("GET", "/", "X-Tenant", "b"))))
	assert.Equal(t, "a", readBody(t, serve(h, newRequest("GET", "/", "X-Tenant", "a"))))
	assert.EqualValues(t, 2, env.origin.requests.Load())
}

func TestHandlerCacheUpdate(t *testing.T) {
	var version int
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			version++
			w.Header().Set("Cache-Update", "/articles")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Cache-Control", "max-age=3600")
		w.Write([]byte{byte('0' + version)})
	})
	h := NewHandler(env.cache, NewPrefetcher(env.cache, 2))

	assert.Equal(t, "0", readBody(t, serve(h, newRequest("GET", "/articles"))))

	res := serve(h, newRequest("POST", "/articles"))
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res = serve(h, newRequest("GET", "/articles"))
	assert.Equal(t, "1", readBody(t, res))
	assert.Contains(t, res.Header.Get("Cache-Status"), "hit")
	assert.EqualValues(t, 3, env.origin.requests.Load())
}

func TestPrefetchAndRefresh(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=60")
		w.Header().Set("ETag", `"`+r.URL.Path+`"`)
		if r.Header.Get("If-None-Match") != "" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Write([]byte(r.URL.Path))
	})
	p := NewPrefetcher(env.cache, 2)
	ctx := context.Background()

	require.NoError(t, p.Prefetch(ctx, "/a", "/b"))
	assert.EqualValues(t, 2, env.origin.requests.Load())

	// past the window in which a prefetched response is used unvalidated
	env.clock.Advance(DefaultPrefetchReuse + time.Minute)
	require.NoError(t, p.RefreshAll(ctx))
	assert.EqualValues(t, 4, env.origin.requests.Load())
	assert.EqualValues(t, 2, env.cache.Stats().Validated)

	info, body := env.mustFetch(t, newRequest("GET", "/a"))
	assert.Equal(t, StatusUsed, info.CacheEntryStatus)
	assert.Equal(t, "/a", body)
	assert.EqualValues(t, 4, env.origin.requests.Load())
}
