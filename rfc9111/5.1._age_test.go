package rfc9111

import (
	"net/http"
	"testing"
	"time"
)

func TestDeltaSecondsParam(t *testing.T) {
	header := make(http.Header)
	header.Add("Age", "7200;foo=bar")
	if age, ok := getAge(header); !ok || age != time.Second*7200 {
		t.Fatalf("Age is %v", age)
	}
}

func TestAgeListUsesFirstMember(t *testing.T) {
	header := make(http.Header)
	header.Add("Age", "10, 20")
	if age, ok := getAge(header); !ok || age != 10*time.Second {
		t.Fatalf("Age is %v", age)
	}
}
