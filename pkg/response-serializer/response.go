package serializer

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	responseTimeHeaderName = "Acache-Response-Time"
	requestTimeHeaderName  = "Acache-Request-Time"
	flagsHeaderName        = "Acache-Flags"
	varyHeaderName         = "Acache-Vary"
)

const (
	flagTruncated           = "truncated"
	flagSparse              = "sparse"
	flagUnusedSincePrefetch = "unused-since-prefetch"
)

var ErrCorrupt = errors.New("corrupt stored response")

// StoredResponse is the response record kept in the headers stream of a
// cache entry: status line, header and the bookkeeping the cache needs.
type StoredResponse struct {
	StatusCode int
	Header     http.Header
	// The value of the clock at the time of the request that resulted in the stored response.
	// Needed for age calculation.
	RequestTime time.Time
	// The value of the clock at the time the response was received.
	// Needed for age calculation.
	ResponseTime time.Time
	// Truncated marks a body that ends before its Content-Length.
	Truncated bool
	// Sparse marks an entry that holds byte ranges instead of a body.
	Sparse bool
	// UnusedSincePrefetch is set by a prefetch and cleared on first use.
	UnusedSincePrefetch bool
	// VaryData holds the request header values nominated by Vary,
	// nil when the response was stored without them.
	VaryData http.Header
}

// Clone returns a deep copy of the record.
func (s StoredResponse) Clone() StoredResponse {
	c := s
	c.Header = s.Header.Clone()
	if s.VaryData != nil {
		c.VaryData = s.VaryData.Clone()
	}
	return c
}

// Marshal returns the HTTP/1.1 representation of the record.
func (s StoredResponse) Marshal() []byte {
	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "HTTP/1.1 %03d %s\r\n", s.StatusCode, http.StatusText(s.StatusCode))

	header := s.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set(responseTimeHeaderName, strconv.FormatInt(s.ResponseTime.UnixMilli(), 10))
	header.Set(requestTimeHeaderName, strconv.FormatInt(s.RequestTime.UnixMilli(), 10))
	var flags []string
	if s.Truncated {
		flags = append(flags, flagTruncated)
	}
	if s.Sparse {
		flags = append(flags, flagSparse)
	}
	if s.UnusedSincePrefetch {
		flags = append(flags, flagUnusedSincePrefetch)
	}
	if len(flags) > 0 {
		header.Set(flagsHeaderName, strings.Join(flags, ", "))
	}
	if s.VaryData != nil {
		values := url.Values{}
		for name, vv := range s.VaryData {
			values[name] = vv
		}
		// an empty value still records that vary data is present
		header.Set(varyHeaderName, "?"+values.Encode())
	}
	header.Write(buf)
	buf.WriteString("\r\n")
	return buf.Bytes()
}

// Unmarshal parses a record written by Marshal.
func Unmarshal(b []byte) (StoredResponse, error) {
	sRes := StoredResponse{}
	if len(b) == 0 {
		return sRes, ErrCorrupt
	}
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
	if err != nil {
		return sRes, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if res.Body != nil {
		res.Body.Close()
	}
	sRes.StatusCode = res.StatusCode
	sRes.Header = res.Header

	resTimeInt, err := strconv.ParseInt(res.Header.Get(responseTimeHeaderName), 10, 64)
	if err != nil {
		return sRes, fmt.Errorf("%w: response time: %v", ErrCorrupt, err)
	}
	reqTimeInt, err := strconv.ParseInt(res.Header.Get(requestTimeHeaderName), 10, 64)
	if err != nil {
		return sRes, fmt.Errorf("%w: request time: %v", ErrCorrupt, err)
	}
	sRes.ResponseTime = time.UnixMilli(resTimeInt)
	sRes.RequestTime = time.UnixMilli(reqTimeInt)

	for _, flag := range strings.Split(res.Header.Get(flagsHeaderName), ",") {
		switch strings.TrimSpace(flag) {
		case flagTruncated:
			sRes.Truncated = true
		case flagSparse:
			sRes.Sparse = true
		case flagUnusedSincePrefetch:
			sRes.UnusedSincePrefetch = true
		}
	}
	if v, ok := res.Header[varyHeaderName]; ok && len(v) > 0 {
		values, err := url.ParseQuery(strings.TrimPrefix(v[0], "?"))
		if err != nil {
			return sRes, fmt.Errorf("%w: vary data: %v", ErrCorrupt, err)
		}
		sRes.VaryData = make(http.Header, len(values))
		for name, vv := range values {
			sRes.VaryData[http.CanonicalHeaderKey(name)] = vv
		}
	}

	// delete extra headers
	for _, name := range []string{responseTimeHeaderName, requestTimeHeaderName, flagsHeaderName, varyHeaderName} {
		sRes.Header.Del(name)
	}
	return sRes, nil
}
