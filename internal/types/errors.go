package types

import (
	"errors"
	"fmt"
)

// ErrBadSignature indicates the webhook signature header was missing,
// malformed, or did not match the request body. Requests failing this check
// must not be processed any further.
var ErrBadSignature = errors.New("webhook signature verification failed")

// UpstreamError represents a failure talking to an external collaborator
// (GitHub, the model service, or the store). Workflows do not retry; the
// first upstream failure aborts the run.
type UpstreamError struct {
	Service string // "github", "llm", "storage"
	Op      string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Service, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError wraps err with the service and operation that failed.
func NewUpstreamError(service, op string, err error) error {
	return &UpstreamError{Service: service, Op: op, Err: err}
}

// IsUpstream reports whether err is (or wraps) an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
