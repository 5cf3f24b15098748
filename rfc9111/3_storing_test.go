package rfc9111

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestMayStore(t *testing.T) {
	get := httptest.NewRequest("GET", "/", nil)
	cases := []struct {
		name   string
		req    *http.Request
		status int
		header http.Header
		want   bool
	}{
		{"max-age", get, 200, http.Header{"Cache-Control": {"max-age=60"}}, true},
		{"heuristic", get, 200, http.Header{}, true},
		{"no-store", get, 200, http.Header{"Cache-Control": {"max-age=60, no-store"}}, false},
		{"private", get, 200, http.Header{"Cache-Control": {"private"}}, false},
		{"302", get, 302, http.Header{}, false},
		{"302 explicit", get, 302, http.Header{"Cache-Control": {"max-age=5"}}, true},
		{"post", httptest.NewRequest("POST", "/", nil), 200, http.Header{"Cache-Control": {"max-age=60"}}, false},
		{"304", get, 304, http.Header{"Cache-Control": {"max-age=60"}}, false},
	}
	for _, c := range cases {
		if got := MayStore(c.req, c.status, c.header); got != c.want {
			t.Errorf("%s: MayStore is %v", c.name, got)
		}
	}
}

func TestMayStoreAuthenticated(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	if MayStore(req, 200, http.Header{"Cache-Control": {"max-age=60"}}) {
		t.Fatal("Authenticated response stored without permission")
	}
	if !MayStore(req, 200, http.Header{"Cache-Control": {"public, max-age=60"}}) {
		t.Fatal("Public authenticated response not stored")
	}
}

func TestCanResume(t *testing.T) {
	h := http.Header{"Etag": {`"x"`}, "Content-Length": {"100"}}
	if !CanResume(200, h) {
		t.Fatal("Response should be resumable")
	}
	h.Set("Accept-Ranges", "none")
	if CanResume(200, h) {
		t.Fatal("Accept-Ranges none is not resumable")
	}
}

func TestParseContentRange(t *testing.T) {
	cr, err := ParseContentRange("bytes 100-199/1000")
	if err != nil || cr.First != 100 || cr.Last != 199 || cr.Complete != 1000 || cr.Length() != 100 {
		t.Fatalf("Content-Range is %+v (%v)", cr, err)
	}
	if cr.String() != "bytes 100-199/1000" {
		t.Fatalf("Content-Range string is %s", cr)
	}
	for _, bad := range []string{"bytes */1000", "items 0-1/2", "bytes 5-1/10", "bytes 0-10/5"} {
		if _, err := ParseContentRange(bad); err == nil {
			t.Errorf("%q parsed", bad)
		}
	}
}

func TestInvalidationURIs(t *testing.T) {
	req := httptest.NewRequest("POST", "http://example.com/items/1", nil)
	uris := InvalidationURIs(req, 201, http.Header{
		"Location":         {"/items/2"},
		"Content-Location": {"http://other.example/items/3"},
	})
	if want := []string{"/items/1", "/items/2"}; !reflect.DeepEqual(uris, want) {
		t.Fatalf("URIs are %v", uris)
	}
	if uris := InvalidationURIs(req, 500, http.Header{}); uris != nil {
		t.Fatalf("Error response invalidated %v", uris)
	}
	if uris := InvalidationURIs(httptest.NewRequest("GET", "/", nil), 200, http.Header{}); uris != nil {
		t.Fatalf("Safe request invalidated %v", uris)
	}
}
