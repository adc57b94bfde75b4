package lockclient

import (
	"time"

	"yfslock/internal/rpcwire"
	"yfslock/lockserver"
	"yfslock/rsm"
)

// transport is how a Client reaches the lock server: directly over
// rpcwire in standalone mode, or through an rsm.Client that tracks
// the current primary in replicated mode. Kept as an interface so
// Client's state machine never has to know which deployment it runs
// under.
type transport interface {
	acquire(args *lockserver.AcquireArgs) (*lockserver.AcquireReply, error)
	release(args *lockserver.ReleaseArgs) (*lockserver.ReleaseReply, error)
	stat(args *lockserver.StatArgs) (*lockserver.StatReply, error)
}

type standaloneTransport struct {
	hm      *rpcwire.HandleManager
	addr    string
	timeout time.Duration
}

func (t *standaloneTransport) acquire(args *lockserver.AcquireArgs) (*lockserver.AcquireReply, error) {
	reply := &lockserver.AcquireReply{}
	if err := t.hm.Call(t.addr, t.timeout, lockserver.MethodAcquire, args, reply); err != nil {
		t.hm.DeleteHandle(t.addr)
		return nil, newTransientRpcError(err.Error())
	}
	return reply, nil
}

func (t *standaloneTransport) release(args *lockserver.ReleaseArgs) (*lockserver.ReleaseReply, error) {
	reply := &lockserver.ReleaseReply{}
	if err := t.hm.Call(t.addr, t.timeout, lockserver.MethodRelease, args, reply); err != nil {
		t.hm.DeleteHandle(t.addr)
		return nil, newTransientRpcError(err.Error())
	}
	return reply, nil
}

func (t *standaloneTransport) stat(args *lockserver.StatArgs) (*lockserver.StatReply, error) {
	reply := &lockserver.StatReply{}
	if err := t.hm.Call(t.addr, t.timeout, lockserver.MethodStat, args, reply); err != nil {
		t.hm.DeleteHandle(t.addr)
		return nil, newTransientRpcError(err.Error())
	}
	return reply, nil
}

type replicatedTransport struct {
	rsm *rsm.Client
}

func (t *replicatedTransport) acquire(args *lockserver.AcquireArgs) (*lockserver.AcquireReply, error) {
	reply := &lockserver.AcquireReply{}
	if err := t.rsm.Call(lockserver.MethodAcquire, args, reply); err != nil {
		return nil, newTransientRpcError(err.Error())
	}
	return reply, nil
}

func (t *replicatedTransport) release(args *lockserver.ReleaseArgs) (*lockserver.ReleaseReply, error) {
	reply := &lockserver.ReleaseReply{}
	if err := t.rsm.Call(lockserver.MethodRelease, args, reply); err != nil {
		return nil, newTransientRpcError(err.Error())
	}
	return reply, nil
}

func (t *replicatedTransport) stat(args *lockserver.StatArgs) (*lockserver.StatReply, error) {
	reply := &lockserver.StatReply{}
	if err := t.rsm.CallAny(lockserver.MethodStat, args, reply); err != nil {
		return nil, newTransientRpcError(err.Error())
	}
	return reply, nil
}
