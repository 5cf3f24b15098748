package serializer

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestStoredResponseSerialization(t *testing.T) {
	reqTime := time.UnixMilli(time.Now().UnixMilli())
	resTime := reqTime.Add(time.Second)
	sRes := StoredResponse{
		StatusCode:   201,
		Header:       http.Header{"Test": {"-ing"}, "Content-Length": {"12"}},
		RequestTime:  reqTime,
		ResponseTime: resTime,
		Truncated:    true,
		VaryData:     http.Header{"Accept-Encoding": {"gzip"}},
	}
	res2, err := Unmarshal(sRes.Marshal())
	if err != nil {
		t.Fatalf("Error creating response: %+v", err)
	}
	if res2.StatusCode != 201 {
		t.Fatalf("Status code is %d", res2.StatusCode)
	}
	if res2.Header.Get("Test") != "-ing" || res2.Header.Get("Content-Length") != "12" {
		t.Fatalf("Header wrong %+v", res2.Header)
	}
	if res2.Header.Get(responseTimeHeaderName) != "" || res2.Header.Get(flagsHeaderName) != "" {
		t.Fatalf("Internal headers left in %+v", res2.Header)
	}
	if !res2.RequestTime.Equal(reqTime) || !res2.ResponseTime.Equal(resTime) {
		t.Fatalf("Times are %v %v", res2.RequestTime, res2.ResponseTime)
	}
	if !res2.Truncated || res2.Sparse || res2.UnusedSincePrefetch {
		t.Fatalf("Flags are %+v", res2)
	}
	if res2.VaryData.Get("Accept-Encoding") != "gzip" {
		t.Fatalf("Vary data is %+v", res2.VaryData)
	}
}

func TestEmptyVaryDataSurvives(t *testing.T) {
	sRes := StoredResponse{StatusCode: 200, Header: http.Header{}, VaryData: http.Header{}}
	res2, err := Unmarshal(sRes.Marshal())
	if err != nil {
		t.Fatal(err)
	}
	if res2.VaryData == nil {
		t.Fatal("Empty vary data was lost")
	}
	sRes.VaryData = nil
	res3, _ := Unmarshal(sRes.Marshal())
	if res3.VaryData != nil {
		t.Fatalf("Vary data appeared: %v", res3.VaryData)
	}
}

func TestCorrupt(t *testing.T) {
	for _, b := range [][]byte{nil, []byte("garbage"), []byte("HTTP/1.1 200 OK\r\n\r\n")} {
		if _, err := Unmarshal(b); !errors.Is(err, ErrCorrupt) {
			t.Errorf("%q: error is %v", b, err)
		}
	}
}
