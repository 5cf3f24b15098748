package rfc9111

import (
	"net/http"
	"testing"
)

func TestVaryAcceptEncoding(t *testing.T) {
	req := http.Header{}
	res := http.Header{
		"Vary": {"Accept-Encoding"},
	}
	data, ok := VaryData(req, res)
	if !ok {
		t.Fatal("Vary data should be recorded")
	}
	if !VaryMatches(data, http.Header{}, res) {
		t.Fatal("Request with no accept encoding should match response with no encoding")
	}
	if VaryMatches(data, http.Header{"Accept-Encoding": {"gzip"}}, res) {
		t.Fatal("Request with accept encoding should not match")
	}
}

func TestVaryWhitespaceAndLines(t *testing.T) {
	res := http.Header{"Vary": {"accept-language"}}
	data, _ := VaryData(http.Header{"Accept-Language": {"en, fi"}}, res)
	if !VaryMatches(data, http.Header{"Accept-Language": {"en", "fi"}}, res) {
		t.Fatal("Combined lines should match")
	}
}

func TestVaryStar(t *testing.T) {
	res := http.Header{"Vary": {"*"}}
	if _, ok := VaryData(http.Header{}, res); ok {
		t.Fatal("Vary * must not be matchable")
	}
	if VaryMatches(http.Header{}, http.Header{}, res) {
		t.Fatal("Vary * must never match")
	}
}

func TestVaryWithoutData(t *testing.T) {
	if !VaryMatches(nil, http.Header{}, http.Header{}) {
		t.Fatal("No Vary should always match")
	}
	if VaryMatches(nil, http.Header{}, http.Header{"Vary": {"Cookie"}}) {
		t.Fatal("Missing vary data should not match")
	}
}
