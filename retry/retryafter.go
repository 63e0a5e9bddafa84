package retry

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryAfterer is implemented by errors that carry a server-supplied minimum
// delay, typically from a Retry-After response header.
type RetryAfterer interface {
	RetryAfter() (time.Duration, bool)
}

// ParseRetryAfter parses a Retry-After header value given either as
// delta-seconds or as an HTTP-date relative to now. Dates in the past yield
// a zero delay.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		if maxSecs := int64(math.MaxInt64 / time.Second); secs > maxSecs {
			secs = maxSecs
		}
		return time.Duration(secs) * time.Second, true
	}

	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	d := at.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}
