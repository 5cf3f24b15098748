package tee

import (
	"net/http"
	"time"
)

// ResponseTee is a wrapper around http.ResponseWriter that records what was
// written through it (status, byte count, timing) while passing everything on
// to the underlying http.ResponseWriter.
type ResponseTee struct {
	rw           http.ResponseWriter
	status       int
	written      int64
	wroteHeaders bool
	CreatedAt    time.Time
}

// Implementation of http.ResponseWriter
func (t *ResponseTee) Header() http.Header {
	return t.rw.Header()
}

// Implementation of http.ResponseWriter
func (t *ResponseTee) WriteHeader(statusCode int) {
	if t.wroteHeaders {
		return
	}
	t.wroteHeaders = true
	t.status = statusCode
	t.rw.WriteHeader(statusCode)
}

// Implementation of http.ResponseWriter
func (t *ResponseTee) Write(b []byte) (int, error) {
	if !t.wroteHeaders {
		t.WriteHeader(http.StatusOK)
	}
	n, err := t.rw.Write(b)
	t.written += int64(n)
	return n, err
}

// Flush implements http.Flusher when the underlying writer does.
func (t *ResponseTee) Flush() {
	if f, ok := t.rw.(http.Flusher); ok {
		f.Flush()
	}
}

// Updates returns a slice of the urls that should be updated as a result of the (write) request.
func (t *ResponseTee) Updates() []string {
	return t.rw.Header().Values("Cache-Update")
}

// StatusCode returns the status code of the response.
func (t *ResponseTee) StatusCode() int {
	return t.status
}

// BytesWritten returns the number of body bytes passed through.
func (t *ResponseTee) BytesWritten() int64 {
	return t.written
}

// Duration returns the time since the tee was created.
func (t *ResponseTee) Duration() time.Duration {
	return time.Since(t.CreatedAt)
}

// NewResponseTee returns a new ResponseTee writing to w.
func NewResponseTee(w http.ResponseWriter) *ResponseTee {
	return &ResponseTee{
		CreatedAt: time.Now(),
		rw:        w,
	}
}
