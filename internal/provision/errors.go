package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/muurk/wifiprov/internal/device"
	"github.com/muurk/wifiprov/internal/retry"
)

// Sentinel errors returned by pollers and workflow operations.
// Use errors.Is or KindOf to inspect them; the underlying device error stays wrapped.
var (
	ErrCancelled            = retry.ErrCancelled
	ErrScanInitiationFailed = errors.New("scan initiation failed")
	ErrScanTimedOut         = errors.New("scan timed out")
	ErrTransport            = errors.New("transport failure")
	ErrProtocol             = errors.New("protocol failure")
	ErrSubmissionRejected   = errors.New("credentials rejected")
	ErrUnreachable          = errors.New("device unreachable")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidState         = errors.New("operation not allowed in current state")
	ErrClosed               = errors.New("session closed")
)

// Kind is the structured error category carried by events.
type Kind int

const (
	KindNone Kind = iota
	KindTransport
	KindProtocol
	KindValidation
	KindCancelled
	KindUnreachable
	KindScanTimedOut
	KindScanInitiation
	KindSubmissionRejected
	KindInvalidState
	KindClosed
)

var kindNames = map[Kind]string{
	KindNone:               "",
	KindTransport:          "transport",
	KindProtocol:           "protocol",
	KindValidation:         "validation",
	KindCancelled:          "cancelled",
	KindUnreachable:        "unreachable",
	KindScanTimedOut:       "scan_timed_out",
	KindScanInitiation:     "scan_initiation_failed",
	KindSubmissionRejected: "submission_rejected",
	KindInvalidState:       "invalid_state",
	KindClosed:             "closed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Retryable reports whether the UI should offer a retry for this kind.
func (k Kind) Retryable() bool {
	switch k {
	case KindTransport, KindProtocol, KindUnreachable, KindScanTimedOut,
		KindScanInitiation, KindSubmissionRejected:
		return true
	default:
		return false
	}
}

// KindOf classifies err. Workflow sentinels win over the wrapped device error.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrUnreachable):
		return KindUnreachable
	case errors.Is(err, ErrScanTimedOut):
		return KindScanTimedOut
	case errors.Is(err, ErrScanInitiationFailed):
		return KindScanInitiation
	case errors.Is(err, ErrSubmissionRejected):
		return KindSubmissionRejected
	case errors.Is(err, ErrInvalidInput):
		return KindValidation
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrClosed):
		return KindClosed
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrProtocol):
		return KindProtocol
	case device.IsCanceledError(err):
		return KindCancelled
	case device.IsValidationError(err):
		return KindValidation
	case device.IsRetryable(err):
		return KindTransport
	default:
		return KindProtocol
	}
}

// classify wraps a failed device call in the matching sentinel.
func classify(err error) error {
	switch {
	case device.IsCanceledError(err) || retry.IsCancelled(err):
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	case device.IsValidationError(err):
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	case device.IsRetryable(err):
		return fmt.Errorf("%w: %w", ErrTransport, err)
	default:
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}
}

// cancelled builds the error returned when ctx ended a phase.
func cancelled(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}
	if errors.Is(cause, ErrCancelled) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}
