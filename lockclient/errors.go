package lockclient

import "fmt"

// TransientRpcError wraps an RPC transport failure talking to the
// lock server; callers may retry.
type TransientRpcError struct {
	reason string
}

func newTransientRpcError(reason string) *TransientRpcError {
	return &TransientRpcError{reason: reason}
}

func (e *TransientRpcError) Error() string { return e.reason }

// StaleError reports that the server considered our xid older than
// one it had already recorded for this (client, lock); it is fatal
// for that xid, not retryable.
type StaleError struct {
	reason string
}

func newStaleError(reason string) *StaleError {
	return &StaleError{reason: reason}
}

func (e *StaleError) Error() string { return e.reason }

// ProtocolViolationError reports that the server rejected a release
// because we were not the recorded owner, or the lock was already
// free, or that Release was called with a handle that does not hold
// the lock: a bug in the caller, not a transient condition.
type ProtocolViolationError struct {
	reason string
}

func newProtocolViolationError(reason string) *ProtocolViolationError {
	return &ProtocolViolationError{reason: reason}
}

func (e *ProtocolViolationError) Error() string { return e.reason }

func errUnexpectedStatus(op string, status fmt.Stringer) error {
	return newTransientRpcError(fmt.Sprintf("lockclient: unexpected %s status %s", op, status))
}
