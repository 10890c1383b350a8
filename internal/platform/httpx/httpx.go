package httpx

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

func IsRetryableHTTPStatus(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var sc HTTPStatusCoder
	if errors.As(err, &sc) {
		return IsRetryableHTTPStatus(sc.HTTPStatusCode())
	}
	return false
}

// ParseRetryAfter reads a delay-seconds Retry-After header. Zero when absent
// or unparseable.
func ParseRetryAfter(h http.Header) time.Duration {
	if ra := strings.TrimSpace(h.Get("Retry-After")); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

// RetryAfterDuration picks the next sleep: the server-requested delay when err
// carries one, else fallback, capped at max.
func RetryAfterDuration(err error, fallback, max time.Duration) time.Duration {
	sleepFor := fallback
	var se *StatusError
	if errors.As(err, &se) && se.RetryAfter > 0 {
		sleepFor = se.RetryAfter
	}
	if max > 0 && sleepFor > max {
		sleepFor = max
	}
	return sleepFor
}

func JitterSleep(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delta := base.Seconds() * 0.2
	low := base.Seconds() - delta
	if low < 0 {
		low = 0
	}
	high := base.Seconds() + delta
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}

// StatusError carries an HTTP status so retry predicates can classify it, and
// the server's Retry-After delay when one was sent.
type StatusError struct {
	Service    string
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return e.Service + " http " + strconv.Itoa(e.Code) + ": " + e.Body
}

func (e *StatusError) HTTPStatusCode() int { return e.Code }
