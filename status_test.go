package cachetx

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusLattice(t *testing.T) {
	var l statusLattice
	assert.Equal(t, StatusUndefined, l.get())

	assert.True(t, l.set(StatusUsed))
	assert.False(t, l.set(StatusValidated), "a status is set only once")
	assert.Equal(t, StatusUsed, l.get())

	assert.True(t, l.set(StatusOther), "other replaces any status")
	assert.False(t, l.set(StatusUpdated))
	assert.False(t, l.set(StatusUndefined))
	assert.Equal(t, StatusOther, l.get())

	l.reset()
	assert.Equal(t, StatusUndefined, l.get())
	assert.True(t, l.set(StatusNotInCache))
}

func TestRequestLoadFlags(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		want   LoadFlags
	}{
		{"none", http.Header{}, LoadNormal},
		{"no-store", http.Header{"Cache-Control": {"no-store"}}, LoadDisableCache},
		{"only-if-cached", http.Header{"Cache-Control": {"only-if-cached"}}, LoadOnlyFromCache},
		{"no-cache", http.Header{"Cache-Control": {"no-cache"}}, LoadBypassCache},
		{"pragma", http.Header{"Pragma": {"no-cache"}}, LoadBypassCache},
		{"pragma with cache-control", http.Header{"Pragma": {"no-cache"}, "Cache-Control": {"max-age=60"}}, LoadNormal},
		{"max-age=0", http.Header{"Cache-Control": {"max-age=0"}}, LoadValidateCache},
		{"combined", http.Header{"Cache-Control": {"no-cache, max-age=0"}}, LoadBypassCache | LoadValidateCache},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, requestLoadFlags(tt.header))
		})
	}
}

func TestLoadFlagsAreDistinct(t *testing.T) {
	flags := []LoadFlags{LoadValidateCache, LoadBypassCache, LoadSkipCacheValidation, LoadOnlyFromCache, LoadDisableCache, LoadPrefetch}
	var seen LoadFlags
	for _, f := range flags {
		assert.NotZero(t, f)
		assert.Zero(t, seen&f)
		seen |= f
	}
}

func TestCacheStatusMapping(t *testing.T) {
	tests := []struct {
		info ResponseInfo
		want string
	}{
		{ResponseInfo{CacheEntryStatus: StatusUsed, TimeToLive: 90e9}, "cachetx; hit; ttl=90"},
		{ResponseInfo{CacheEntryStatus: StatusUsed, NetworkAccessed: true}, "cachetx; fwd=partial"},
		{ResponseInfo{CacheEntryStatus: StatusValidated}, "cachetx; fwd=stale; fwd-status=304"},
		{ResponseInfo{CacheEntryStatus: StatusNotInCache, Stored: true, TimeToLive: 60e9}, "cachetx; fwd=uri-miss; fwd-status=200; ttl=60; stored"},
		{ResponseInfo{CacheEntryStatus: StatusOther}, "cachetx; fwd=bypass"},
	}
	for _, tt := range tests {
		tt.info.StatusCode = http.StatusOK
		t.Run(tt.info.CacheEntryStatus.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.CacheStatus().String())
		})
	}
}

func TestStatsRecord(t *testing.T) {
	var s stats
	s.record(StatusUsed)
	s.record(StatusUsed)
	s.record(StatusOther)
	s.record(StatusUndefined)
	snap := s.snapshot()
	assert.EqualValues(t, 2, snap.Used)
	assert.EqualValues(t, 1, snap.Other)
	assert.Zero(t, snap.Validated)
}
