package mail

import (
	"testing"
	"time"
)

func TestEpochRoundTrip(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	v := ToServerTime(now)
	got := FromServerTime(v)
	if !got.Equal(now) {
		t.Fatalf("round trip: got %v want %v", got, now)
	}
}

func TestNeverExpires(t *testing.T) {
	if !NeverExpires(4294967295) {
		t.Fatalf("expected sentinel to mean never")
	}
	if NeverExpires(123456) {
		t.Fatalf("did not expect never for a normal timestamp")
	}
}
