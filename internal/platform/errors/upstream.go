package errors

// Upstream HTTP helpers for mapping vendor API responses to project ErrorCode,
// extracting status/body, and retry semantics

import (
	"context"
	stderrs "errors"
	"fmt"
	"net/http"
	"strings"
)

// UpstreamError is the root cause carried by errors built from an upstream
// HTTP response with status >= 400. Body holds a bounded tail of the response
// for diagnostics. RetryAfter is the parsed Retry-After header in seconds,
// zero when absent
type UpstreamError struct {
	Status     int
	Body       string
	RetryAfter int
}

// Error implements the error interface
func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream status %d", e.Status)
	}
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Body)
}

// Upstream wraps an UpstreamError root cause into a project *Error
func Upstream(status int, body string, retryAfter int) error {
	return Wrap(
		&UpstreamError{Status: status, Body: body, RetryAfter: retryAfter},
		ErrorCodeUpstream,
		fmt.Sprintf("upstream status %d", status),
	)
}

// ExtractUpstream returns (*UpstreamError, true) if the root cause is an UpstreamError
func ExtractUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if stderrs.As(Root(err), &ue) {
		return ue, true
	}
	return nil, false
}

// UpstreamStatus returns the HTTP status of an upstream failure, or 0 when
// err does not carry one
func UpstreamStatus(err error) int {
	if ue, ok := ExtractUpstream(err); ok {
		return ue.Status
	}
	return 0
}

// IsUpstreamStatus reports whether err is an upstream failure with the given status
func IsUpstreamStatus(err error, status int) bool { return UpstreamStatus(err) == status }

// IsConflict reports whether err is an upstream 409 (already exists)
func IsConflict(err error) bool { return IsUpstreamStatus(err, http.StatusConflict) }

// IsAlreadyExists reports whether a create failed because the object exists.
// Some raw-store deployments answer 400 instead of 409 for duplicates
func IsAlreadyExists(err error) bool {
	return IsConflict(err) || IsUpstreamStatus(err, http.StatusBadRequest)
}

// IsRetryable reports whether an error represents a transient condition worth
// retrying. It handles both structured *UpstreamError roots and the generic
// transport text seen from net/http (timeouts, resets, refused dials)
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Do not retry local cancellations/timeouts; let the caller decide higher-level retries
	if stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded) {
		return false
	}

	switch CodeOf(err) {
	case ErrorCodeUnavailable, ErrorCodeTooManyRequests:
		return true
	}

	// Structured upstream errors by HTTP status
	root := Root(err)
	var ue *UpstreamError
	if stderrs.As(root, &ue) {
		if ue.Status == http.StatusTooManyRequests || ue.Status >= 500 {
			return true
		}
		return false
	}

	// Fallback: text patterns emitted by net/http and the dialer
	s := strings.ToLower(root.Error())
	switch {
	case strings.Contains(s, "connection reset"),
		strings.Contains(s, "connection refused"),
		strings.Contains(s, "broken pipe"),
		strings.Contains(s, "i/o timeout"),
		strings.Contains(s, "unexpected eof"),
		strings.Contains(s, "no such host"),
		strings.Contains(s, "client.timeout exceeded"):
		return true
	default:
		return false
	}
}
