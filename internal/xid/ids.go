// Package xid defines the identifier and sequence-number primitives
// shared across the lock service: LockId, ClientId and Xid.
package xid

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// LockId is an opaque 64-bit lock identifier. The id space is sparse;
// entries are created lazily and never deleted.
type LockId uint64

// ClientId is a reachable address string (host:port of the client's
// callback listener). It doubles as the key used for at-most-once
// duplicate suppression.
type ClientId string

// Xid is a monotonically increasing per-(client, lock-operation-kind)
// sequence number. Only strictly increasing values are valid: a
// client that resends its last xid gets the recorded reply back, and
// one that sends a lower xid gets STALE.
type Xid uint64

// NodeId is an opaque node identity used by Paxos acceptors/proposers
// and replicated-view members.
type NodeId string

// NewNodeId returns a fresh, globally unique node identity, drawn
// straight from a per-call uuid with no shared seed state.
func NewNodeId() NodeId {
	return NodeId(uuid.NewString())
}

// Counter is a per-instance monotonic xid generator. The lock client
// keeps one of these per cached lock; it must never be shared across
// lock client instances, or two clients could issue colliding xids.
type Counter struct {
	value uint64
}

// Next returns the next strictly increasing xid.
func (c *Counter) Next() Xid {
	return Xid(atomic.AddUint64(&c.value, 1))
}

func (l LockId) String() string {
	return fmt.Sprintf("lock(%d)", uint64(l))
}
