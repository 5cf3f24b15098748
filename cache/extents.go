package cache

import (
	"io"
	"sort"
)

type extent struct {
	offset int64
	data   []byte
}

func (e extent) end() int64 {
	return e.offset + int64(len(e.data))
}

// extents is a sorted list of non-overlapping, non-adjacent byte runs.
type extents []extent

// write stores p at offset, merging it with every run it overlaps or touches.
func (x extents) write(offset int64, p []byte) extents {
	if len(p) == 0 {
		return x
	}
	start, end := offset, offset+int64(len(p))
	mergedStart, mergedEnd := start, end
	out := make(extents, 0, len(x)+1)
	var touching extents
	for _, e := range x {
		if e.end() < start || e.offset > end {
			out = append(out, e)
			continue
		}
		touching = append(touching, e)
		if e.offset < mergedStart {
			mergedStart = e.offset
		}
		if e.end() > mergedEnd {
			mergedEnd = e.end()
		}
	}
	if len(touching) == 1 && touching[0].offset <= start {
		// extend the run in place, appending grows it geometrically
		t := touching[0]
		n := copy(t.data[start-t.offset:], p)
		t.data = append(t.data, p[n:]...)
		out = append(out, t)
		sort.Slice(out, func(i, j int) bool { return out[i].offset < out[j].offset })
		return out
	}
	buf := make([]byte, mergedEnd-mergedStart)
	for _, e := range touching {
		copy(buf[e.offset-mergedStart:], e.data)
	}
	copy(buf[start-mergedStart:], p)
	out = append(out, extent{offset: mergedStart, data: buf})
	sort.Slice(out, func(i, j int) bool { return out[i].offset < out[j].offset })
	return out
}

// read copies the stored bytes starting at offset into p.
func (x extents) read(offset int64, p []byte) int {
	for _, e := range x {
		if e.offset <= offset && offset < e.end() {
			return copy(p, e.data[offset-e.offset:])
		}
	}
	return 0
}

func (x extents) available(offset, length int64) (int64, int64) {
	end := offset + length
	for _, e := range x {
		if e.end() <= offset {
			continue
		}
		if e.offset >= end {
			break
		}
		s := e.offset
		if s < offset {
			s = offset
		}
		en := e.end()
		if en > end {
			en = end
		}
		return s, en - s
	}
	return offset, 0
}

// splice writes p into data at offset, growing data as needed. The
// capacity at least doubles when it runs out.
func splice(data []byte, offset int64, p []byte, truncate bool) []byte {
	end := offset + int64(len(p))
	if size := int64(len(data)); size < end {
		if int64(cap(data)) < end {
			grown := make([]byte, size, max(end, 2*int64(cap(data))))
			copy(grown, data)
			data = grown
		}
		data = data[:end]
		// bytes past a truncation may still sit in the spare capacity
		clear(data[size:])
	}
	copy(data[offset:], p)
	if truncate {
		data = data[:end]
	}
	return data
}

func readAt(data []byte, offset int64, p []byte) (int, error) {
	if offset >= int64(len(data)) {
		return 0, io.EOF
	}
	return copy(p, data[offset:]), nil
}
