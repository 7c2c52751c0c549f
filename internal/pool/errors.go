package pool

import "fmt"

// Kind enumerates the error taxonomy of spec.md §7.
type Kind string

const (
	KindPoolClosed          Kind = "pool_closed"
	KindPoolPaused          Kind = "pool_paused"
	KindWaitQueueTimeout    Kind = "wait_queue_timeout"
	KindExceededMaxWaiters  Kind = "exceeded_max_waiters"
	KindConnectionFailure   Kind = "connection_failure"
	KindAutoReconnect       Kind = "connection_failure_auto_reconnect"
	KindCertificate         Kind = "certificate"
	KindDocumentTooLarge    Kind = "document_too_large"
	KindNotWritable         Kind = "not_writable"
)

// Error is the pool's error type: a taxonomy Kind plus the underlying
// cause, if any.
type Error struct {
	Kind  Kind
	Cause error
	msg   string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("pool: %s: %v", e.msg, e.Cause)
	}
	return fmt.Sprintf("pool: %s", e.msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, pool.KindX) style checks via a sentinel
// wrapper, by comparing Kind.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other.Kind == e.Kind
}

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Cause: cause, msg: msg}
}

// Sentinel constructors used to classify an error by Kind in tests and
// callers, e.g. errors.Is(err, pool.ErrPoolClosed).
var (
	ErrPoolClosed         = &Error{Kind: KindPoolClosed, msg: "pool is closed"}
	ErrPoolPaused         = &Error{Kind: KindPoolPaused, msg: "pool is paused"}
	ErrWaitQueueTimeout   = &Error{Kind: KindWaitQueueTimeout, msg: "wait queue timeout"}
	ErrExceededMaxWaiters = &Error{Kind: KindExceededMaxWaiters, msg: "exceeded max waiters"}
)
