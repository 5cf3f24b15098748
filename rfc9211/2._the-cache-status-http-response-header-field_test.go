package rfc9211

import "testing"

func TestHitString(t *testing.T) {
	cs := CacheStatus{TimeToLive: 30}
	cs.Hit()
	if s := cs.String(); s != "cachetx; hit; ttl=30" {
		t.Fatalf("Cache-Status is %s", s)
	}
}

func TestForwardString(t *testing.T) {
	cs := CacheStatus{Cache: "edge", FwdStatus: 304, Stored: true, TimeToLive: 60, Detail: "validated"}
	cs.Forward(FwdReasonStale)
	want := "edge; fwd=stale; fwd-status=304; ttl=60; stored; detail=validated"
	if s := cs.String(); s != want {
		t.Fatalf("Cache-Status is %s", s)
	}
}

func TestCollapsedString(t *testing.T) {
	cs := CacheStatus{Collapsed: true}
	cs.Forward(FwdReasonUriMiss)
	if s := cs.String(); s != "cachetx; fwd=uri-miss; collapsed" {
		t.Fatalf("Cache-Status is %s", s)
	}
}
