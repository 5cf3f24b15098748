package cachetx

import (
	"net/http"

	"github.com/always-cache/cachetx/rfc9111"
)

// Mode is the access a transaction has to its cache entry.
type Mode int

const (
	// ModeNoCache passes the request through to the network.
	ModeNoCache Mode = iota
	// ModeReadOnly serves from the cache or fails.
	ModeReadOnly
	// ModeWriteOnly fetches from the network and stores the response.
	ModeWriteOnly
	// ModeReadWrite reuses, validates or replaces the stored response.
	ModeReadWrite
	// ModeUpdateOnly forwards the caller's own validation request and only
	// refreshes the stored headers.
	ModeUpdateOnly
)

func (m Mode) String() string {
	switch m {
	case ModeNoCache:
		return "none"
	case ModeReadOnly:
		return "read"
	case ModeWriteOnly:
		return "write"
	case ModeReadWrite:
		return "read-write"
	case ModeUpdateOnly:
		return "update"
	}
	return "unknown"
}

func (m Mode) writes() bool {
	return m == ModeWriteOnly || m == ModeReadWrite
}

// LoadFlags select how a transaction uses the cache.
type LoadFlags int

const (
	LoadNormal LoadFlags = 0
	// LoadValidateCache always validates a stored response.
	LoadValidateCache LoadFlags = 1 << (iota - 1)
	// LoadBypassCache ignores the stored response and replaces it.
	LoadBypassCache
	// LoadSkipCacheValidation reuses a stored response however stale it is.
	LoadSkipCacheValidation
	// LoadOnlyFromCache never goes to the network.
	LoadOnlyFromCache
	// LoadDisableCache neither reads nor writes the cache.
	LoadDisableCache
	// LoadPrefetch marks the stored response as fetched ahead of use.
	LoadPrefetch
)

// requestLoadFlags maps the request's own caching directives to load flags.
//
// §  5.2.1. Request Directives
func requestLoadFlags(header http.Header) LoadFlags {
	var flags LoadFlags
	cc := rfc9111.ParseCacheControl(header.Values("Cache-Control"))
	if cc.NoStore() {
		flags |= LoadDisableCache
	}
	if cc.OnlyIfCached() {
		flags |= LoadOnlyFromCache
	}
	if cc.NoCache() || rfc9111.PragmaNoCache(header) {
		flags |= LoadBypassCache
	}
	if maxAge, ok := cc.MaxAge(); ok && maxAge == 0 {
		flags |= LoadValidateCache
	}
	return flags
}
