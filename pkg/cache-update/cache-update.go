package cacheupdate

import (
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/always-cache/cachetx/rfc9111"
)

var delayDirective = regexp.MustCompile(`(?i)\bdelay=(\d+)`)

// CacheUpdate represents a single `Cache-Update` entry.
type CacheUpdate struct {
	// Fully resolved relative path to the resource.
	// Equivalent to `url.URL.Path`.
	Path string
	// Update delay, i.e. delay update by this duration.
	Delay time.Duration
}

// GetCacheUpdates gets the updates requested by a successful response to an
// unsafe request. The request is used in order to resolve potentially
// relative update paths.
func GetCacheUpdates(req *http.Request, statusCode int, header http.Header) []CacheUpdate {
	if !rfc9111.UnsafeRequest(req) || statusCode < 200 || statusCode >= 400 {
		return nil
	}
	updates := make([]CacheUpdate, 0)
	for _, update := range rfc9111.GetListHeader(header, "Cache-Update") {
		cu := CacheUpdate{}
		cu.Path = getURL(req, update).Path
		cu.Delay = getDelay(update)
		updates = append(updates, cu)
	}
	return updates
}

// getURL returns the URL to update the cache for from the `Cache-Update` header parameter.
// The URL is the first parameter in the header value (separated by a semicolon).
func getURL(r *http.Request, update string) *url.URL {
	possiblyRelativeURL := strings.TrimSpace(update)
	if i := strings.Index(possiblyRelativeURL, ";"); i != -1 {
		possiblyRelativeURL = strings.TrimSpace(possiblyRelativeURL[:i])
	}
	return r.URL.ResolveReference(&url.URL{Path: possiblyRelativeURL})
}

// getDelay returns the delay to wait before updating the cache for from the `Cache-Update` header parameter.
// The delay directive syntax is `delay=N`, where N is the number of seconds to wait.
// If no delay directive is found, it returns 0.
func getDelay(update string) time.Duration {
	if matches := delayDirective.FindStringSubmatch(update); matches != nil {
		if delay, err := strconv.Atoi(matches[1]); err == nil {
			return time.Duration(delay) * time.Second
		}
	}
	return 0
}
