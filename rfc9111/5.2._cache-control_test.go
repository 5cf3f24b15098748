package rfc9111

import (
	"net/http"
	"testing"
)

func TestMaxAge(t *testing.T) {
	cc := ParseCacheControl([]string{"max-age=60"})
	val, ok := cc.Get("max-age")
	if !ok {
		t.Fatal("Could not get directive")
	}
	if val != "60" {
		t.Fatalf("Value is %s", val)
	}
}

func TestReal(t *testing.T) {
	cc := ParseCacheControl([]string{"public, max-age=0, s-maxage=600"})
	if val, ok := cc.Get("public"); !ok || val != "" {
		t.Fatalf("val: '%s', ok: %v", val, ok)
	}
	if val, ok := cc.Get("max-age"); !ok || val != "0" {
		t.Fatalf("val: '%s', ok: %v", val, ok)
	}
	if val, ok := cc.Get("s-maxage"); !ok || val != "600" {
		t.Fatalf("val: '%s', ok: %v", val, ok)
	}
}

func TestUnspacedAndQuoted(t *testing.T) {
	cc := ParseCacheControl([]string{`No-Cache="Set-Cookie, X-Foo",max-age=5`})
	if val, ok := cc.Get("no-cache"); !ok || val != "Set-Cookie, X-Foo" {
		t.Fatalf("val: '%s', ok: %v", val, ok)
	}
	if d, ok := cc.MaxAge(); !ok || d.Seconds() != 5 {
		t.Fatalf("max-age: %v, ok: %v", d, ok)
	}
}

func TestRequestDirectives(t *testing.T) {
	cc := ParseCacheControl([]string{"only-if-cached", "no-store"})
	if !cc.OnlyIfCached() || !cc.NoStore() || cc.NoCache() {
		t.Fatalf("Unexpected request directives %+v", cc)
	}
}

func TestPragmaNoCache(t *testing.T) {
	h := http.Header{"Pragma": {"no-cache"}}
	if !PragmaNoCache(h) {
		t.Fatal("Pragma no-cache not detected")
	}
	h.Set("Cache-Control", "max-age=10")
	if PragmaNoCache(h) {
		t.Fatal("Pragma should be ignored when Cache-Control is present")
	}
}
