package adsb

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ThrottledError is returned when the feed answers 429 Too Many Requests.
type ThrottledError struct {
	// RetryAfter is the wait the server asked for, zero when it did not say.
	RetryAfter time.Duration
	Quota      Quota
}

func (e *ThrottledError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("adsb feed throttled, retry after %v", e.RetryAfter)
	}
	return "adsb feed throttled"
}

// AsThrottled unwraps err looking for a *ThrottledError.
func AsThrottled(err error) (*ThrottledError, bool) {
	var te *ThrottledError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// Quota is the request budget a feed advertises in its X-Rate-Limit-*
// (or X-RateLimit-*) headers. Counts the server did not send are -1.
type Quota struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

func throttled(h http.Header, now time.Time) *ThrottledError {
	return &ThrottledError{
		RetryAfter: retryAfter(h, now),
		Quota:      readQuota(h),
	}
}

// retryAfter reads Retry-After as either delay-seconds or an HTTP date.
func retryAfter(h http.Header, now time.Time) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

func readQuota(h http.Header) Quota {
	q := Quota{Limit: -1, Remaining: -1}
	if n, ok := quotaHeader(h, "Limit"); ok {
		q.Limit = int(n)
	}
	if n, ok := quotaHeader(h, "Remaining"); ok {
		q.Remaining = int(n)
	}
	if n, ok := quotaHeader(h, "Reset"); ok {
		q.Reset = time.Unix(n, 0)
	}
	return q
}

func quotaHeader(h http.Header, field string) (int64, bool) {
	for _, prefix := range [...]string{"X-Rate-Limit-", "X-RateLimit-"} {
		v := h.Get(prefix + field)
		if v == "" {
			continue
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}
