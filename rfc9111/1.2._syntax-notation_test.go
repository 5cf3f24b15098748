package rfc9111

import (
	"testing"
	"time"
)

func TestToDeltaSeconds(t *testing.T) {
	fiveSeconds := 5 * time.Second
	if s := toDeltaSeconds(fiveSeconds); s != "5" {
		t.Fatalf("Delta seconds is %s", s)
	}
	if s := toDeltaSeconds(-time.Second); s != "0" {
		t.Fatalf("Negative delta seconds is %s", s)
	}
}

func TestDeltaSecondsOverflow(t *testing.T) {
	d, ok := deltaSeconds("99999999999999999999")
	if !ok || d != 2147483648*time.Second {
		t.Fatalf("Overflowing delta seconds is %v (%v)", d, ok)
	}
	if _, ok := deltaSeconds("-5"); ok {
		t.Fatal("Negative delta seconds should not parse")
	}
}

func TestHttpDateRFC850(t *testing.T) {
	_, err := HttpDate("Thursday, 18-Aug-50 02:01:18 GMT")
	if err != nil {
		t.Fatalf("Error parsing date %+v", err)
	}
}

func TestHttpDateTZCase(t *testing.T) {
	_, err := HttpDate("Thu, 18 Aug 2050 02:01:18 gMT")
	if err != nil {
		t.Fatalf("Error parsing date %+v", err)
	}
}

func TestHttpDateAsctime(t *testing.T) {
	d, err := HttpDate("Sun Nov  6 08:49:37 1994")
	if err != nil {
		t.Fatalf("Error parsing date %+v", err)
	}
	if d.Day() != 6 || d.Month() != time.November {
		t.Fatalf("Parsed date is %v", d)
	}
}

func TestToHttpDateRoundTrip(t *testing.T) {
	now := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	d, err := HttpDate(ToHttpDate(now))
	if err != nil || !d.Equal(now) {
		t.Fatalf("Round trip gave %v (%v)", d, err)
	}
}
