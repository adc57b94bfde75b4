package lockserver

import "yfslock/internal/xid"

// Status is the shared reply status enumeration carried by every lock
// RPC in both directions.
type Status int32

const (
	OK Status = iota
	RETRY
	RPCERR
	NOENT
	IOERR
	STALE
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case RETRY:
		return "RETRY"
	case RPCERR:
		return "RPCERR"
	case NOENT:
		return "NOENT"
	case IOERR:
		return "IOERR"
	case STALE:
		return "STALE"
	default:
		return "UNKNOWN"
	}
}

// AcquireArgs/AcquireReply: client -> server.
type AcquireArgs struct {
	Lid      xid.LockId
	ClientId xid.ClientId
	Xid      xid.Xid
}

type AcquireReply struct {
	Status Status
	R      int32 // nonzero iff other clients are also waiting
	Revoke bool  // true iff this reply triggered a revoke of the current owner
}

// ReleaseArgs/ReleaseReply: client -> server.
type ReleaseArgs struct {
	Lid      xid.LockId
	ClientId xid.ClientId
	Xid      xid.Xid
}

type ReleaseReply struct {
	Status Status
}

// StatArgs/StatReply: client -> server, read-only.
type StatArgs struct {
	Lid xid.LockId
}

type StatReply struct {
	Status Status
	R      int32 // acquire count
}

// RevokeArgs/RevokeReply, RetryArgs/RetryReply: server -> client.
type RevokeArgs struct {
	Lid xid.LockId
	Xid xid.Xid
}

type RevokeReply struct {
	Status Status
}

type RetryArgs struct {
	Lid xid.LockId
	Xid xid.Xid
}

type RetryReply struct {
	Status Status
}

const (
	MethodAcquire = "Lock.Acquire"
	MethodRelease = "Lock.Release"
	MethodStat    = "Lock.Stat"
	MethodRevoke  = "Lock.Revoke"
	MethodRetry   = "Lock.Retry"
)
