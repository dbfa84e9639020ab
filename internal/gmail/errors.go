package gmail

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/googleapi"
)

// ErrorKind classifies a failed remote call so callers can decide whether to
// retry without string-matching error messages.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindRateLimited
	KindPermissionDenied
	KindNotFound
	KindServerError
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindPermissionDenied:
		return "permission_denied"
	case KindNotFound:
		return "not_found"
	case KindServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

// CallError wraps a remote failure with its classification.
type CallError struct {
	Kind ErrorKind
	Code int // HTTP status when known, 0 otherwise
	Op   string
	Err  error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Op, e.Err, e.Kind)
}

func (e *CallError) Unwrap() error { return e.Err }

// Retryable reports whether retrying the call could succeed. Rate limits and
// server errors are transient; everything else is not.
func (e *CallError) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindServerError
}

// Classify wraps err with the error kind derived from its googleapi status
// code. A nil err returns nil.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return &CallError{Kind: KindUnknown, Op: op, Err: err}
	}
	kind := KindUnknown
	switch {
	case apiErr.Code == 429:
		kind = KindRateLimited
	case apiErr.Code == 403 && strings.Contains(apiErr.Message, "Rate Limit"):
		// Gmail reports per-user quota exhaustion as 403.
		kind = KindRateLimited
	case apiErr.Code == 401 || apiErr.Code == 403:
		kind = KindPermissionDenied
	case apiErr.Code == 404:
		kind = KindNotFound
	case apiErr.Code >= 500:
		kind = KindServerError
	}
	return &CallError{Kind: kind, Code: apiErr.Code, Op: op, Err: err}
}

// KindOf extracts the classification from err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// IsNotFound reports whether err is a "message does not exist" outcome, which
// bulk operations treat as a skipped item rather than a failure.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsRateLimited reports whether err is a rate-limit signal.
func IsRateLimited(err error) bool {
	return KindOf(err) == KindRateLimited
}
