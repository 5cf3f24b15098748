package rfc9111

import (
	"net/http"
	"testing"
	"time"
)

func TestConditionalHeaders(t *testing.T) {
	stored := http.Header{
		"Etag":          {`"abc"`},
		"Last-Modified": {ToHttpDate(epoch)},
	}
	h, ok := ConditionalHeaders(stored, true)
	if !ok || h.Get("If-None-Match") != `"abc"` || h.Get("If-Modified-Since") == "" {
		t.Fatalf("Conditional headers are %v", h)
	}
	h, ok = ConditionalHeaders(stored, false)
	if !ok || h.Get("If-Modified-Since") != "" {
		t.Fatalf("Vary mismatch should only use the entity tag, got %v", h)
	}
	if _, ok := ConditionalHeaders(http.Header{}, true); ok {
		t.Fatal("No validators should not conditionalize")
	}
}

func TestIfRangeStrength(t *testing.T) {
	if _, ok := IfRange(http.Header{"Etag": {`W/"weak"`}}); ok {
		t.Fatal("Weak entity tag used for If-Range")
	}
	lm := http.Header{
		"Last-Modified": {ToHttpDate(epoch)},
		"Date":          {ToHttpDate(epoch.Add(10 * time.Second))},
	}
	if _, ok := IfRange(lm); ok {
		t.Fatal("Recent Last-Modified is not strong")
	}
	lm.Set("Date", ToHttpDate(epoch.Add(time.Hour)))
	if v, ok := IfRange(lm); !ok || v != ToHttpDate(epoch) {
		t.Fatalf("If-Range is %s (%v)", v, ok)
	}
}

func TestValidatorsMatch(t *testing.T) {
	stored := http.Header{"Etag": {`"v1"`}, "Last-Modified": {ToHttpDate(epoch)}}
	if !ValidatorsMatch(http.Header{"If-None-Match": {`W/"v1"`}}, stored) {
		t.Fatal("Weak comparison should match")
	}
	if ValidatorsMatch(http.Header{"If-None-Match": {`"v2"`}}, stored) {
		t.Fatal("Different entity tag matched")
	}
	if ValidatorsMatch(http.Header{"If-None-Match": {`"v1"`}, "If-Modified-Since": {ToHttpDate(epoch.Add(time.Hour))}}, stored) {
		t.Fatal("Both validators have to match")
	}
}

func TestUpdateStoredHeader(t *testing.T) {
	stored := http.Header{
		"Date":           {"old"},
		"Content-Length": {"100"},
		"X-Kept":         {"yes"},
	}
	UpdateStoredHeader(stored, http.Header{
		"Date":           {"new"},
		"Content-Length": {"0"},
		"Connection":     {"close"},
	})
	if stored.Get("Date") != "new" || stored.Get("Content-Length") != "100" || stored.Get("X-Kept") != "yes" || stored.Get("Connection") != "" {
		t.Fatalf("Updated header is %v", stored)
	}
}
