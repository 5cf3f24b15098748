package cachetx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/always-cache/cachetx/cache"
	serializer "github.com/always-cache/cachetx/pkg/response-serializer"
	"github.com/always-cache/cachetx/rfc9111"
)

// byteRange is a single "bytes=" range. For a suffix range only suffix is
// set; last is -1 for an open-ended range.
type byteRange struct {
	first, last, suffix int64
}

// parseRange parses a Range header with exactly one byte range.
func parseRange(header string) (byteRange, bool) {
	unit, set, ok := strings.Cut(strings.TrimSpace(header), "=")
	if !ok || !strings.EqualFold(strings.TrimSpace(unit), "bytes") || strings.Contains(set, ",") {
		return byteRange{}, false
	}
	firstStr, lastStr, ok := strings.Cut(strings.TrimSpace(set), "-")
	if !ok {
		return byteRange{}, false
	}
	firstStr, lastStr = strings.TrimSpace(firstStr), strings.TrimSpace(lastStr)
	if firstStr == "" {
		suffix, err := strconv.ParseInt(lastStr, 10, 64)
		if err != nil || suffix <= 0 {
			return byteRange{}, false
		}
		return byteRange{first: -1, last: -1, suffix: suffix}, true
	}
	first, err := strconv.ParseInt(firstStr, 10, 64)
	if err != nil || first < 0 {
		return byteRange{}, false
	}
	r := byteRange{first: first, last: -1}
	if lastStr != "" {
		r.last, err = strconv.ParseInt(lastStr, 10, 64)
		if err != nil || r.last < first {
			return byteRange{}, false
		}
	}
	return r, true
}

func (r byteRange) String() string {
	switch {
	case r.suffix > 0:
		return fmt.Sprintf("bytes=-%d", r.suffix)
	case r.last < 0:
		return fmt.Sprintf("bytes=%d-", r.first)
	}
	return fmt.Sprintf("bytes=%d-%d", r.first, r.last)
}

// resolve returns the inclusive bounds of the range within a
// representation of the given size.
func (r byteRange) resolve(size int64) (int64, int64, bool) {
	if size <= 0 {
		return 0, 0, false
	}
	if r.suffix > 0 {
		first := size - r.suffix
		if first < 0 {
			first = 0
		}
		return first, size - 1, true
	}
	if r.first >= size {
		return 0, 0, false
	}
	last := r.last
	if last < 0 || last >= size {
		last = size - 1
	}
	return r.first, last, true
}

// subrange is a run of the requested range that is either entirely stored
// or entirely missing. length is -1 while unknown.
type subrange struct {
	start, length int64
	cached        bool
}

func (s subrange) end() int64 {
	return s.start + s.length
}

// partialData serves a byte range from an entry that holds parts of the
// representation, one subrange at a time. It also drives the resumption of
// a truncated entry, in which case the whole representation is served.
type partialData struct {
	requested byteRange
	// resourceSize is the complete length, -1 while unknown
	resourceSize int64
	sparse       bool
	truncated    bool
	resume       bool
	// rangeStart and rangeEnd are the inclusive resolved bounds,
	// -1 while unknown
	rangeStart int64
	rangeEnd   int64
	offset     int64
	current    subrange
	noStore    bool
}

func newPartialData(header string) (*partialData, bool) {
	r, ok := parseRange(header)
	if !ok {
		return nil, false
	}
	p := &partialData{requested: r}
	p.resetForNewEntry()
	return p, true
}

// newResumeData prepares fetching the missing tail of a truncated body.
func newResumeData(stored, total int64) *partialData {
	return &partialData{
		requested:    byteRange{first: 0, last: total - 1},
		resourceSize: total,
		truncated:    true,
		resume:       true,
		rangeStart:   0,
		rangeEnd:     total - 1,
		offset:       stored,
		current:      subrange{start: stored, length: total - stored},
	}
}

// resetForNewEntry forgets what was learned from a stored response.
func (p *partialData) resetForNewEntry() {
	p.resourceSize = -1
	p.sparse, p.truncated, p.resume = false, false, false
	p.rangeStart, p.rangeEnd = -1, -1
	if p.requested.suffix == 0 {
		p.rangeStart = p.requested.first
		p.rangeEnd = p.requested.last
	}
	p.offset = p.rangeStart
	p.current = subrange{start: p.rangeStart, length: -1}
	if p.rangeStart >= 0 && p.rangeEnd >= 0 {
		p.current.length = p.rangeEnd - p.rangeStart + 1
	}
}

// updateFromStored learns the size and layout of the stored representation.
// It returns false when the entry cannot serve ranges.
func (p *partialData) updateFromStored(rec serializer.StoredResponse, disk cache.Entry) bool {
	switch {
	case rec.Sparse:
		cr, err := rfc9111.ParseContentRange(rec.Header.Get("Content-Range"))
		if err != nil || cr.Complete <= 0 {
			return false
		}
		if _, ok := rfc9111.IfRange(rec.Header); !ok {
			return false
		}
		p.resourceSize = cr.Complete
		p.sparse = true
	case rec.StatusCode == http.StatusOK:
		size := rfc9111.ContentLength(rec.Header)
		if size < 0 {
			// only a complete body tells its own size
			if rec.Truncated {
				return false
			}
			size = disk.DataSize(cache.StreamBody)
		}
		if size <= 0 {
			return false
		}
		p.resourceSize = size
		p.truncated = rec.Truncated
	default:
		return false
	}
	return true
}

// resolve fixes the requested bounds against the stored size. It returns
// false when the range cannot be satisfied.
func (p *partialData) resolve() bool {
	first, last, ok := p.requested.resolve(p.resourceSize)
	if !ok {
		return false
	}
	p.rangeStart, p.rangeEnd = first, last
	p.offset = first
	p.current = subrange{start: first}
	return true
}

// available returns the stored run at or after offset within length bytes.
func (p *partialData) available(ctx context.Context, disk cache.Entry, offset, length int64) (int64, int64, error) {
	if p.sparse {
		return disk.GetAvailableRange(ctx, offset, length)
	}
	size := disk.DataSize(cache.StreamBody)
	if offset >= size {
		return offset, 0, nil
	}
	n := size - offset
	if n > length {
		n = length
	}
	return offset, n, nil
}

// prepareSubrange moves current to the run that starts at offset.
func (p *partialData) prepareSubrange(ctx context.Context, disk cache.Entry) error {
	remaining := p.rangeEnd - p.offset + 1
	start, n, err := p.available(ctx, disk, p.offset, remaining)
	if err != nil {
		return err
	}
	switch {
	case n > 0 && start == p.offset:
		p.current = subrange{start: p.offset, length: n, cached: true}
	case n > 0 && start < p.offset+remaining:
		p.current = subrange{start: p.offset, length: start - p.offset}
	default:
		p.current = subrange{start: p.offset, length: remaining}
	}
	return nil
}

// fullyStored reports whether the whole resolved range is in the entry.
func (p *partialData) fullyStored(ctx context.Context, disk cache.Entry) (bool, error) {
	for offset := p.rangeStart; offset <= p.rangeEnd; {
		start, n, err := p.available(ctx, disk, offset, p.rangeEnd-offset+1)
		if err != nil || n == 0 || start != offset {
			return false, err
		}
		offset += n
	}
	return true, nil
}

// setRangeHeader sets the Range field that fetches the current subrange.
func (p *partialData) setRangeHeader(h http.Header) {
	if p.current.start < 0 || p.current.length < 0 {
		h.Set("Range", p.requested.String())
		return
	}
	h.Set("Range", fmt.Sprintf("bytes=%d-%d", p.current.start, p.current.end()-1))
}

// responseMatches checks the Content-Range of a 206 against the current
// subrange and adopts the bounds still unknown.
func (p *partialData) responseMatches(header http.Header) bool {
	cr, err := rfc9111.ParseContentRange(header.Get("Content-Range"))
	if err != nil {
		return false
	}
	if p.resourceSize >= 0 && cr.Complete != p.resourceSize {
		return false
	}
	if p.current.start >= 0 && cr.First != p.current.start {
		return false
	}
	if p.current.length >= 0 && cr.Length() != p.current.length {
		return false
	}
	if p.requested.suffix > 0 && p.rangeStart < 0 && cr.Length() > p.requested.suffix {
		return false
	}
	p.current = subrange{start: cr.First, length: cr.Length()}
	if p.resourceSize < 0 {
		p.resourceSize = cr.Complete
	}
	if p.rangeStart < 0 {
		p.rangeStart = cr.First
		p.offset = cr.First
	}
	if p.rangeEnd < 0 {
		p.rangeEnd = cr.Last
	}
	return true
}

// fixResponseHeaders rewrites the stored headers into those of the
// response served to the caller and returns its status code.
func (p *partialData) fixResponseHeaders(h http.Header) int {
	h.Del("Content-Range")
	if p.resume {
		h.Set("Content-Length", strconv.FormatInt(p.resourceSize, 10))
		return http.StatusOK
	}
	cr := rfc9111.ContentRange{First: p.rangeStart, Last: p.rangeEnd, Complete: p.resourceSize}
	h.Set("Content-Range", cr.String())
	h.Set("Content-Length", strconv.FormatInt(cr.Length(), 10))
	return http.StatusPartialContent
}

// startReading positions a resumed transfer at the start of the body.
func (p *partialData) startReading() {
	if p.resume {
		p.offset = 0
		p.current = subrange{start: 0, length: 0}
	}
}

func (p *partialData) subrangeDone() bool {
	return p.current.length >= 0 && p.offset >= p.current.end()
}

func (p *partialData) done() bool {
	return p.rangeEnd >= 0 && p.offset > p.rangeEnd
}

// limit cuts buf to what is left of the current subrange.
func (p *partialData) limit(buf []byte) []byte {
	if p.current.length < 0 {
		return buf
	}
	if left := p.current.end() - p.offset; int64(len(buf)) > left {
		return buf[:left]
	}
	return buf
}

func (p *partialData) readStored(ctx context.Context, disk cache.Entry, buf []byte) (int, error) {
	if p.sparse {
		return disk.ReadSparseData(ctx, p.offset, buf)
	}
	n, err := disk.ReadData(ctx, cache.StreamBody, p.offset, buf)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

// store writes bytes received for the current offset. A non-sparse body
// only grows at its end.
func (p *partialData) store(ctx context.Context, disk cache.Entry, data []byte) error {
	if p.noStore {
		return nil
	}
	if p.sparse {
		_, err := disk.WriteSparseData(ctx, p.offset, data)
		return err
	}
	if p.offset != disk.DataSize(cache.StreamBody) {
		return nil
	}
	_, err := disk.WriteData(ctx, cache.StreamBody, p.offset, data, false)
	return err
}

func (p *partialData) consumed(n int) {
	p.offset += int64(n)
}
