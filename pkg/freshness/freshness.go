package freshness

import (
	"net/http"
	"time"
)

// Threshold is how long a stored response stays fresh after it was captured.
const Threshold = 28 * time.Hour

// CapturedAt returns the capture timestamp of a stored response,
// i.e. the value of its `Date` header.
// It returns false if the header is missing or cannot be parsed.
func CapturedAt(header http.Header) (time.Time, bool) {
	date := header.Get("Date")
	if date == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(date)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Expired reports whether a response captured at capturedAt is stale at now.
// A response exactly Threshold old is still fresh.
func Expired(capturedAt, now time.Time) bool {
	return now.Sub(capturedAt) > Threshold
}

// IsExpired reports whether the stored response with the given headers is stale at now.
// Responses without a capture timestamp are always stale.
func IsExpired(header http.Header, now time.Time) bool {
	capturedAt, ok := CapturedAt(header)
	if !ok {
		return true
	}
	return Expired(capturedAt, now)
}

// TimeToLive returns the remaining freshness in whole seconds.
// It is negative for stale responses, including responses without a capture timestamp.
func TimeToLive(header http.Header, now time.Time) int {
	capturedAt, ok := CapturedAt(header)
	if !ok {
		return -1
	}
	return int(capturedAt.Add(Threshold).Sub(now) / time.Second)
}
