package freshness

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiredBoundary(t *testing.T) {
	capturedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, Expired(capturedAt, capturedAt))
	assert.False(t, Expired(capturedAt, capturedAt.Add(Threshold)), "exactly at threshold is fresh")
	assert.True(t, Expired(capturedAt, capturedAt.Add(Threshold+time.Microsecond)))
}

func TestIsExpiredWithoutDate(t *testing.T) {
	assert.True(t, IsExpired(http.Header{}, time.Now()))
	assert.True(t, IsExpired(http.Header{"Date": []string{"not a date"}}, time.Now()))
}

func TestIsExpiredFromDateHeader(t *testing.T) {
	capturedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	header := http.Header{}
	header.Set("Date", capturedAt.Format(http.TimeFormat))

	assert.False(t, IsExpired(header, capturedAt.Add(27*time.Hour)))
	assert.False(t, IsExpired(header, capturedAt.Add(Threshold)))
	assert.True(t, IsExpired(header, capturedAt.Add(Threshold+time.Second)))
}

func TestCapturedAtObsoleteFormat(t *testing.T) {
	header := http.Header{}
	header.Set("Date", "Sunday, 06-Nov-94 08:49:37 GMT")
	capturedAt, ok := CapturedAt(header)
	require.True(t, ok)
	assert.Equal(t, 1994, capturedAt.Year())
}

func TestTimeToLive(t *testing.T) {
	capturedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	header := http.Header{}
	header.Set("Date", capturedAt.Format(http.TimeFormat))

	assert.Equal(t, 3600, TimeToLive(header, capturedAt.Add(27*time.Hour)))
	assert.Equal(t, -60, TimeToLive(header, capturedAt.Add(Threshold+time.Minute)))
}

func TestTimeToLiveWithoutDateIsNegative(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, -1, TimeToLive(http.Header{}, now))

	header := http.Header{}
	header.Set("Date", "yesterday")
	assert.Equal(t, -1, TimeToLive(header, now))
}
