package reliability

import (
	"context"
	"errors"
	"net"
	"strings"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableRealtimeError classifies an upstream realtime `error` event by
// its type and code. The bridge never retries; the classification is for
// logs and metrics.
func IsRetryableRealtimeError(errType, code string) bool {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "rate_limit_exceeded", "rate_limited", "resource_exhausted", "queue_overflow", "server_error", "session_expired":
		return true
	}
	switch strings.ToLower(strings.TrimSpace(errType)) {
	case "server_error", "rate_limit_error":
		return true
	default:
		return false
	}
}

// IsRetryableDialError classifies a failed realtime dial. status is the
// handshake HTTP status, or 0 when no response was received.
func IsRetryableDialError(err error, status int) bool {
	if err == nil {
		return false
	}
	if status != 0 {
		return IsRetryableHTTPStatus(status)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// ErrorCode normalizes an empty code for metric labels.
func ErrorCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return "unknown"
	}
	return code
}
