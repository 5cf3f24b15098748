package rfc9111

import (
	"strings"
	"time"
)

// CacheControl implements parsing of the "Cache-Control" header (/field).
//
// §  5.2. Cache-Control
// §
// §  The "Cache-Control" header field is used to list directives for caches along
// §  the request/response chain.
// §
// §    Cache-Control   = #cache-directive
// §
// §    cache-directive = token [ "=" ( token / quoted-string ) ]
type CacheControl struct {
	directives map[string]string
}

// Get returns the value (/argument) of the specified directive,
// along with a boolean indicating whether this directive is present
func (c CacheControl) Get(directive string) (string, bool) {
	val, ok := c.directives[directive]
	return val, ok
}

// HasDirective returns whether the specified directive is present
func (c CacheControl) HasDirective(directive string) bool {
	_, ok := c.Get(directive)
	return ok
}

// ParseCacheControl takes Cache-Control headers as a slice of strings
// and returns an instance of `CacheControl`.
func ParseCacheControl(headers []string) CacheControl {
	m := make(map[string]string)
	// note setting map values like this means last defined directive wins
	for _, header := range headers {
		for _, directive := range splitList(header) {
			name, arg, _ := strings.Cut(directive, "=")
			m[getCacheControlDirectiveName(name)] = getCacheControlDirectiveArgument(arg)
		}
	}
	return CacheControl{m}
}

// getCacheControlDirectiveName returns a normalized name for the given directive.
func getCacheControlDirectiveName(token string) string {
	// §  [...] to be compared case-insensitively [...]
	return strings.ToLower(strings.TrimSpace(token))
}

// getCacheControlDirectiveArgument returns the directive argument in token form,
// i.e. it converts the argument from "quoted-string" to "token" form if needed.
func getCacheControlDirectiveArgument(arg string) string {
	// §  [...] argument that can use both token and quoted-string syntax. [...]
	return strings.Trim(strings.TrimSpace(arg), "\"")
}

// splitList splits a "#" list on commas that are not inside a quoted-string,
// dropping empty elements.
func splitList(header string) []string {
	var elements []string
	inQuote := false
	start := 0
	for i := 0; i < len(header); i++ {
		switch header[i] {
		case '"':
			inQuote = !inQuote
		case '\\':
			if inQuote {
				i++
			}
		case ',':
			if !inQuote {
				if el := strings.TrimSpace(header[start:i]); el != "" {
					elements = append(elements, el)
				}
				start = i + 1
			}
		}
	}
	if start <= len(header) {
		if el := strings.TrimSpace(header[start:]); el != "" {
			elements = append(elements, el)
		}
	}
	return elements
}

// §  5.2.1. Request Directives
// §
// §  This section defines cache request directives. They are advisory; caches
// §  MAY implement them, but are not required to.

// NoStore reports the "no-store" directive, which is meaningful for both
// requests and responses.
func (c CacheControl) NoStore() bool {
	return c.HasDirective("no-store")
}

// NoCache reports the unqualified or qualified "no-cache" directive.
func (c CacheControl) NoCache() bool {
	return c.HasDirective("no-cache")
}

// OnlyIfCached reports the "only-if-cached" request directive.
//
// §  The only-if-cached request directive indicates that the client only wishes
// §  to obtain a stored response. Caches that honor this request directive SHOULD,
// §  upon receiving it, respond with either a stored response consistent with the
// §  other constraints of the request or a 504 (Gateway Timeout) status code.
func (c CacheControl) OnlyIfCached() bool {
	return c.HasDirective("only-if-cached")
}

// §  5.2.2. Response Directives
// §
// §  This section defines cache response directives. A cache MUST obey the Cache-
// §  Control directives defined in this section.

// MaxAge returns "max-age" as a duration, along with a boolean indicating
// whether the "max-age" directive was present.
//
// §  5.2.2.1. max-age
// §
// §  The max-age response directive indicates that the response is to be considered
// §  stale after its age is greater than the specified number of seconds.
func (c CacheControl) MaxAge() (time.Duration, bool) {
	return c.getDeltaSeconds("max-age")
}

// §  5.2.2.10.  s-maxage
// §
// §     The s-maxage response directive indicates that, for a shared cache,
// §     the maximum age specified by this directive overrides the maximum age
// §     specified by either the max-age directive or the Expires header
// §     field.
func (c CacheControl) SMaxAge() (time.Duration, bool) {
	return c.getDeltaSeconds("s-maxage")
}

// MustRevalidate reports "must-revalidate" or its shared-cache variant
// "proxy-revalidate".
func (c CacheControl) MustRevalidate() bool {
	return c.HasDirective("must-revalidate") || c.HasDirective("proxy-revalidate")
}

func (c CacheControl) getDeltaSeconds(directive string) (time.Duration, bool) {
	val, ok := c.Get(directive)
	if !ok {
		return 0, false
	}
	return deltaSeconds(val)
}
