package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrAuth           = fmt.Errorf("bad or missing credentials")
	ErrBusy           = fmt.Errorf("identity pair already has an active call")
	ErrCalleeOffline  = fmt.Errorf("callee has no active connections")
	ErrAlreadyHandled = fmt.Errorf("call already accepted by another device")
	ErrInvalidState   = fmt.Errorf("operation not legal in current call state")
	ErrUnauthorized   = fmt.Errorf("sender is not a bound party of this call")
	ErrRingTimeout    = fmt.Errorf("ring timer expired")
	ErrUnknownCall    = fmt.Errorf("unknown call id")
	ErrInvalidStatus  = fmt.Errorf("unknown presence status")
	ErrDegraded       = fmt.Errorf("entity frozen after invariant violation")
	ErrWorkerPanic    = fmt.Errorf("worker panic")
)

// KindOf maps an engine error to the wire errorKind carried by an
// OperationFailed envelope.
func KindOf(err error) string {
	switch {
	case stderrors.Is(err, ErrAuth):
		return "AuthError"
	case stderrors.Is(err, ErrBusy):
		return "Busy"
	case stderrors.Is(err, ErrCalleeOffline):
		return "CalleeOffline"
	case stderrors.Is(err, ErrAlreadyHandled):
		return "AlreadyHandled"
	case stderrors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case stderrors.Is(err, ErrRingTimeout):
		return "Timeout"
	case stderrors.Is(err, ErrDegraded):
		return "Degraded"
	case stderrors.Is(err, ErrInvalidState),
		stderrors.Is(err, ErrUnknownCall),
		stderrors.Is(err, ErrInvalidStatus):
		return "InvalidState"
	default:
		return "Internal"
	}
}
