package rfc9111

import "net/http"

// MayStore reports whether a response to the request may be stored
// by a shared cache.
//
// §  3. Storing Responses in Caches
// §
// §  A cache MUST NOT store a response to a request unless:
// §
// §    * the request method is understood by the cache;
// §
// §    * the response status code is final (see Section 15 of [HTTP]);
// §
// §    * if the response status code is 206 or 304, or the must-understand cache
// §      directive (see Section 5.2.2.3) is present: the cache understands the
// §      response status code;
// §
// §    * the no-store cache directive is not present in the response (see Section
// §      5.2.2.5);
// §
// §    * if the cache is shared: the private response directive is either not
// §      present or allows a shared cache to store a modified response; see Section
// §      5.2.2.7);
// §
// §    * if the cache is shared: the Authorization header field is not present in
// §      the request (see Section 11.6.2 of [HTTP]) or a response directive is
// §      present that explicitly allows shared caching (see Section 3.5); and
// §
// §    * the response contains at least one of the following:
// §      [...]
func MayStore(req *http.Request, statusCode int, header http.Header) bool {
	resCacheControl := ParseCacheControl(header.Values("Cache-Control"))
	reqCacheControl := ParseCacheControl(req.Header.Values("Cache-Control"))
	return requestMethodIsUnderstood(req.Method) &&
		responseStatusCodeIsFinal(statusCode) &&
		statusCodeUnderstoodIfNeeded(statusCode, resCacheControl) &&
		!resCacheControl.NoStore() &&
		// the request directive applies to the response as well
		!reqCacheControl.NoStore() &&
		!resCacheControl.HasDirective("private") &&
		(req.Header.Get("Authorization") == "" || mayUseResponseForAuthenticatedRequest(resCacheControl)) &&
		(resCacheControl.HasDirective("public") ||
			hasExplicitExpiration(header) ||
			heuristicallyCacheable[statusCode])
}

// statusCodeUnderstoodIfNeeded checks if the response status code needs to be understood and is.
// It returns false if the response status code needs to be understood but isn't.
func statusCodeUnderstoodIfNeeded(statusCode int, resCacheControl CacheControl) bool {
	if statusCode == http.StatusPartialContent || statusCode == http.StatusNotModified || resCacheControl.HasDirective("must-understand") {
		return responseStatusCodeIsUnderstood(statusCode)
	}
	return true
}

// Only GET responses are stored; HEAD is answered from GET entries.
func requestMethodIsUnderstood(method string) bool {
	return method == http.MethodGet
}

// 304 responses only ever update stored responses, they are never stored themselves.
func responseStatusCodeIsUnderstood(statusCode int) bool {
	switch statusCode {
	case http.StatusOK, http.StatusPartialContent:
		return true
	}
	return false
}

func responseStatusCodeIsFinal(statusCode int) bool {
	return statusCode >= 200 && statusCode <= 599 && statusCode != http.StatusNotModified
}

// §  3.5. Storing Responses to Authenticated Requests
// §
// §  A shared cache MUST NOT use a cached response to a request with an
// §  Authorization header field (Section 11.6.2 of [HTTP]) to satisfy any
// §  subsequent request unless the response contains a Cache-Control field with
// §  a response directive (Section 5.2.2) that allows it to be stored by a shared
// §  cache, and the cache conforms to the requirements of that directive for
// §  that response.
func mayUseResponseForAuthenticatedRequest(resCacheControl CacheControl) bool {
	return resCacheControl.HasDirective("public") ||
		resCacheControl.HasDirective("s-maxage") ||
		resCacheControl.HasDirective("must-revalidate")
}
