// Package lockclient is the cache-coherent lock client (C4): it caches
// locks granted by a lockserver.Server across local goroutines,
// answers the server's revoke/retry callbacks, and only hands a lock
// back to the server when asked to. One mutex guards every cached
// lock; per-lock condition variables arbitrate local contention.
package lockclient

import (
	"sync"

	"yfslock/internal/xid"
)

type status int

const (
	statusNone status = iota
	statusAcquiring
	statusFree
	statusLocked
	statusReleasing
)

func (s status) String() string {
	switch s {
	case statusNone:
		return "NONE"
	case statusAcquiring:
		return "ACQUIRING"
	case statusFree:
		return "FREE"
	case statusLocked:
		return "LOCKED"
	case statusReleasing:
		return "RELEASING"
	default:
		return "UNKNOWN"
	}
}

// entry is one cached lock's client-side state.
type entry struct {
	status  status
	revoked bool

	shouldRetry bool
	holder      *Handle

	freeCv  *sync.Cond
	retryCv *sync.Cond
}

func newEntry(mu *sync.Mutex) *entry {
	return &entry{
		freeCv:  sync.NewCond(mu),
		retryCv: sync.NewCond(mu),
	}
}

// ReleaseFlusher is the extent write-back cache's integration point
// (C5): DoRelease must synchronously flush every dirty extent the
// given lock protected, and discard them, before the client tells the
// lock server it is done with lid.
type ReleaseFlusher interface {
	DoRelease(lid xid.LockId) error
}

// Handle represents one goroutine's hold on a cached lock, returned
// by Client.Acquire. Only the goroutine holding the Handle may call
// Release on it; passing it to another goroutine without a handoff
// protocol of your own is a bug, same as handing off any other
// non-reentrant lock.
type Handle struct {
	client *Client
	lid    xid.LockId
}

// LockId returns the lock this handle was acquired for.
func (h *Handle) LockId() xid.LockId { return h.lid }

// Release hands the lock back to other local goroutines (and, if the
// server revoked it while we held it, back to the server).
func (h *Handle) Release() error { return h.client.Release(h) }
