package mail

import "time"

// blitzEpochOffset is the number of seconds between the mail server's own
// epoch (midnight, January 1 1904, US Eastern Standard Time, i.e. 05:00 UTC)
// and the Unix epoch.
const blitzEpochOffset = -2082826800

// neverExpires is the sentinel value the server sends for "never expires"
// in place of an actual 32-bit server-epoch timestamp: 2*INT32_MAX+1.
const neverExpires = 4294967295

// FromServerTime converts a server-epoch integer timestamp to time.Time.
func FromServerTime(v int64) time.Time {
	return time.Unix(v+blitzEpochOffset, 0).UTC()
}

// ToServerTime converts a time.Time to the server's epoch integer form.
func ToServerTime(t time.Time) int64 {
	return t.UTC().Unix() - blitzEpochOffset
}

// NeverExpires reports whether a raw server-epoch expiration value means
// "never expires".
func NeverExpires(v int64) bool {
	return v == neverExpires
}
