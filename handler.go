package cachetx

import (
	"errors"
	"io"
	"net/http"
	"strings"

	cacheupdate "github.com/always-cache/cachetx/pkg/cache-update"
	tee "github.com/always-cache/cachetx/pkg/response-writer-tee"
	"github.com/always-cache/cachetx/rfc9211"

	"github.com/rs/zerolog"
)

// Handler serves HTTP requests through cache transactions.
type Handler struct {
	cache      *Cache
	prefetcher *Prefetcher
	log        zerolog.Logger
	// Optional function for mutating the incoming request.
	// Use it e.g. for setting the request `Cache-Key` header when needed.
	RequestModifier func(*http.Request)
}

// NewHandler creates a handler. Cache-Update response headers are acted on
// when a prefetcher is given.
func NewHandler(c *Cache, p *Prefetcher) *Handler {
	return &Handler{
		cache:      c,
		prefetcher: p,
		log:        c.log,
	}
}

// ServeHTTP implements the http.Handler interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.RequestModifier != nil {
		h.RequestModifier(r)
	}
	rw := tee.NewResponseTee(w)
	tx := h.cache.NewTransaction()
	defer tx.Close()

	if err := tx.Start(r.Context(), r, LoadNormal); err != nil {
		h.sendError(rw, r, err)
		return
	}
	info := tx.Response()
	cs := info.CacheStatus()
	copyHeader(rw.Header(), info.Header)
	rw.Header().Add("Cache-Status", cs.String())
	rw.WriteHeader(info.StatusCode)
	if r.Method != http.MethodHead {
		if _, err := io.Copy(rw, tx.Body(r.Context())); err != nil {
			h.log.Error().Err(err).Str("url", r.URL.String()).Msg("Could not write response body to client")
		}
	}
	h.logRequest(r, rw, cs)

	if h.prefetcher != nil {
		h.prefetcher.ScheduleUpdates(
			cacheupdate.GetCacheUpdates(r, rw.StatusCode(), rw.Header()))
	}
}

func (h *Handler) sendError(w *tee.ResponseTee, r *http.Request, err error) {
	status := http.StatusBadGateway
	cs := rfc9211.CacheStatus{Detail: "error"}
	cs.Forward(rfc9211.FwdReasonMiss)
	switch {
	case errors.Is(err, ErrCacheMiss):
		// §  [...] respond with either a stored response [...] or a 504 (Gateway
		// §  Timeout) status code.
		status = http.StatusGatewayTimeout
		cs.Forward(rfc9211.FwdReasonRequest)
		cs.Detail = "only-if-cached"
	case errors.Is(err, ErrRangeNotSatisfiable):
		status = http.StatusRequestedRangeNotSatisfiable
		cs.Forward(rfc9211.FwdReasonPartial)
		cs.Detail = ""
	}
	h.log.Error().Err(err).Str("url", r.URL.String()).Int("status", status).Msg("Could not serve request")
	w.Header().Set("Cache-Status", cs.String())
	http.Error(w, http.StatusText(status), status)
	h.logRequest(r, w, cs)
}

func (h *Handler) logRequest(r *http.Request, rw *tee.ResponseTee, cs rfc9211.CacheStatus) {
	isHit := 0
	if cs.Status == rfc9211.StatusHit {
		isHit = 1
	}
	h.log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("sourceIp", getRequestSourceIp(r)).
		Int("code", rw.StatusCode()).
		Str("status", string(cs.Status)).
		Str("fwd", string(cs.FwdReason)).
		Bool("stored", cs.Stored).
		Int("ttl", cs.TimeToLive).
		Int("hit", isHit).
		Int64("bytes", rw.BytesWritten()).
		Strs("updates", rw.Updates()).
		Dur("duration", rw.Duration()).
		Msg("Sent response to client")
}

func getRequestSourceIp(r *http.Request) string {
	// RemoteAddr is in the format:
	// 1.2.3.4:10000 for ipv4
	// [1:2:3]:10000 for ipv6
	ipAndPort := r.RemoteAddr
	portSepIdx := strings.LastIndex(ipAndPort, ":")
	// if not found, return
	if portSepIdx < 0 {
		return ipAndPort
	}
	return ipAndPort[:portSepIdx]
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		// headers added by an upstream proxy are not passed on to clients
		if k == "X-Forwarded-For" || k == "X-Forwarded-Proto" || k == "X-Forwarded-Host" {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
