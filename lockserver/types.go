package lockserver

import "yfslock/internal/xid"

type lockStatus int

const (
	free lockStatus = iota
	lent
	revoked
)

// clientCtx remembers the last (xid, reply) pair this lock saw from a
// given client, per operation kind, so a retransmitted RPC gets the
// identical reply instead of a second grant or release.
type clientCtx struct {
	lastXidAcquire   xid.Xid
	haveAcquireReply bool
	lastAcquireReply AcquireReply

	lastXidRelease   xid.Xid
	haveReleaseReply bool
	lastReleaseReply ReleaseReply
}

// lockEntry is one lock's full server-side state. Entries are created
// lazily on first reference and never deleted.
type lockEntry struct {
	status   lockStatus
	owner    xid.ClientId
	nacquire int
	waitQ    *uqueue
	clients  map[xid.ClientId]*clientCtx
}

func newLockEntry() *lockEntry {
	return &lockEntry{status: free, waitQ: newUQueue(), clients: make(map[xid.ClientId]*clientCtx)}
}

func (e *lockEntry) ctxFor(id xid.ClientId) *clientCtx {
	c, ok := e.clients[id]
	if !ok {
		c = &clientCtx{}
		e.clients[id] = c
	}
	return c
}
