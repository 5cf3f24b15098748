package rfc9111

import (
	"net/http"
	"testing"
	"time"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestFreshnessLifetimePrecedence(t *testing.T) {
	h := http.Header{
		"Cache-Control": {"max-age=60, s-maxage=600"},
		"Expires":       {ToHttpDate(epoch.Add(time.Hour))},
		"Date":          {ToHttpDate(epoch)},
	}
	if l := FreshnessLifetime(200, h, epoch); l != 600*time.Second {
		t.Fatalf("Lifetime is %v", l)
	}
	h.Set("Cache-Control", "max-age=60")
	if l := FreshnessLifetime(200, h, epoch); l != 60*time.Second {
		t.Fatalf("Lifetime is %v", l)
	}
	h.Del("Cache-Control")
	if l := FreshnessLifetime(200, h, epoch); l != time.Hour {
		t.Fatalf("Lifetime is %v", l)
	}
}

func TestInvalidExpiresIsExpired(t *testing.T) {
	h := http.Header{
		"Expires":       {"0"},
		"Last-Modified": {ToHttpDate(epoch.Add(-100 * time.Hour))},
	}
	if l := FreshnessLifetime(200, h, epoch); l != 0 {
		t.Fatalf("Lifetime is %v", l)
	}
}

func TestHeuristicFreshness(t *testing.T) {
	h := http.Header{
		"Date":          {ToHttpDate(epoch)},
		"Last-Modified": {ToHttpDate(epoch.Add(-100 * time.Hour))},
	}
	if l := FreshnessLifetime(200, h, epoch); l != 10*time.Hour {
		t.Fatalf("Lifetime is %v", l)
	}
	if l := FreshnessLifetime(302, h, epoch); l != 0 {
		t.Fatalf("Lifetime of a 302 is %v", l)
	}
}

func TestCurrentAge(t *testing.T) {
	h := http.Header{
		"Date": {ToHttpDate(epoch)},
		"Age":  {"30"},
	}
	requestTime := epoch.Add(-time.Second)
	responseTime := epoch.Add(time.Second)
	age := CurrentAge(h, requestTime, responseTime, epoch.Add(11*time.Second))
	// corrected_age_value = 30 + 2, resident_time = 10
	if age != 42*time.Second {
		t.Fatalf("Age is %v", age)
	}
}

func TestNeedsValidation(t *testing.T) {
	h := http.Header{
		"Date":          {ToHttpDate(epoch)},
		"Cache-Control": {"max-age=60"},
	}
	if NeedsValidation(200, h, epoch, epoch, epoch.Add(30*time.Second)) {
		t.Fatal("Fresh response needs validation")
	}
	if !NeedsValidation(200, h, epoch, epoch, epoch.Add(61*time.Second)) {
		t.Fatal("Stale response does not need validation")
	}
	h.Set("Cache-Control", "max-age=60, no-cache")
	if !NeedsValidation(200, h, epoch, epoch, epoch) {
		t.Fatal("no-cache response does not need validation")
	}
	if ttl := TimeToLive(200, http.Header{"Cache-Control": {"max-age=60"}}, epoch, epoch, epoch.Add(20*time.Second)); ttl != 40*time.Second {
		t.Fatalf("TTL is %v", ttl)
	}
}

func TestMayServeStale(t *testing.T) {
	h := http.Header{
		"Cache-Control": {"max-age=60, must-revalidate"},
		"Date":          {ToHttpDate(epoch)},
	}
	if !MayServeStale(200, h, epoch, epoch, epoch.Add(time.Second)) {
		t.Fatal("Fresh response may not be served")
	}
	later := epoch.Add(10 * time.Minute)
	if MayServeStale(200, h, epoch, epoch, later) {
		t.Fatal("Stale must-revalidate response may be served")
	}
	for _, cc := range []string{"max-age=60, proxy-revalidate", "s-maxage=60", "max-age=60, no-cache"} {
		h.Set("Cache-Control", cc)
		if MayServeStale(200, h, epoch, epoch, later) {
			t.Fatalf("Stale response with %q may be served", cc)
		}
	}
	h.Set("Cache-Control", "max-age=60")
	if !MayServeStale(200, h, epoch, epoch, later) {
		t.Fatal("Stale response without directives may not be served")
	}
}
