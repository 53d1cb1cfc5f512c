package routing

import (
	"context"
	"errors"
	"io"
	"net"
	"regexp"
	"syscall"
)

// Signal is the class of an upstream failure.
type Signal int

const (
	SignalNone      Signal = iota // Unclassified; no pause is applied
	SignalRateLimit               // 429, rate limit or quota
	SignalTimeout                 // 408 or a timed out request
	SignalNetwork                 // Connection level failure
)

func (s Signal) String() string {
	switch s {
	case SignalRateLimit:
		return "rate_limit"
	case SignalTimeout:
		return "timeout"
	case SignalNetwork:
		return "network"
	default:
		return "other"
	}
}

// QuotaSignal is implemented by errors that carry an upstream throttle verdict.
type QuotaSignal interface {
	error
	QuotaExceeded() bool
	SourceEndpoint() string
	StatusCode() int
}

var (
	rateLimitPattern = regexp.MustCompile(`(?i)\b429\b|rate.?limit|too many requests`)
	timeoutPattern   = regexp.MustCompile(`(?i)\b408\b|timeout|timed out`)
	networkPattern   = regexp.MustCompile(
		`(?i)fetch failed|econnreset|enotfound|eai_again|socket hang up|network|` +
			`connection reset|connection refused|no such host|broken pipe|\bEOF\b`,
	)
)

// ClassifyError determines the signal for a given error.
func ClassifyError(err error) Signal {
	if err == nil || errors.Is(err, context.Canceled) {
		return SignalNone
	}

	var qs QuotaSignal
	if errors.As(err, &qs) {
		if qs.QuotaExceeded() || qs.StatusCode() == 429 {
			return SignalRateLimit
		}
		if qs.StatusCode() == 408 {
			return SignalTimeout
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return SignalTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return SignalTimeout
	}

	var dnsErr *net.DNSError
	var opErr *net.OpError
	if errors.As(err, &dnsErr) || errors.As(err, &opErr) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return SignalNetwork
	}

	msg := err.Error()
	switch {
	case rateLimitPattern.MatchString(msg):
		return SignalRateLimit
	case timeoutPattern.MatchString(msg):
		return SignalTimeout
	case networkPattern.MatchString(msg):
		return SignalNetwork
	}
	return SignalNone
}

// QuotaSource returns the endpoint that reported a quota or rate-limit signal.
func QuotaSource(err error) (string, bool) {
	var qs QuotaSignal
	if errors.As(err, &qs) && (qs.QuotaExceeded() || qs.StatusCode() == 429) {
		return qs.SourceEndpoint(), true
	}
	return "", false
}
