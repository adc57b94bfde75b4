package lockserver

import "yfslock/internal/xid"

// uqueue is a FIFO of distinct client ids: pushing a client already
// present is a no-op, which is what suppresses revoke storms when the
// same client re-issues acquire while already queued.
type uqueue struct {
	items []xid.ClientId
	set   map[xid.ClientId]struct{}
}

func newUQueue() *uqueue {
	return &uqueue{set: make(map[xid.ClientId]struct{})}
}

// push inserts id at the back and reports whether it was newly added.
func (q *uqueue) push(id xid.ClientId) bool {
	if _, ok := q.set[id]; ok {
		return false
	}
	q.set[id] = struct{}{}
	q.items = append(q.items, id)
	return true
}

func (q *uqueue) front() (xid.ClientId, bool) {
	if len(q.items) == 0 {
		return "", false
	}
	return q.items[0], true
}

// pop removes and returns the head of the queue.
func (q *uqueue) pop() (xid.ClientId, bool) {
	if len(q.items) == 0 {
		return "", false
	}
	id := q.items[0]
	q.items = q.items[1:]
	delete(q.set, id)
	return id, true
}

func (q *uqueue) empty() bool {
	return len(q.items) == 0
}

func (q *uqueue) contains(id xid.ClientId) bool {
	_, ok := q.set[id]
	return ok
}

// all returns a snapshot of the queue contents in FIFO order, for
// snapshotting.
func (q *uqueue) all() []xid.ClientId {
	return append([]xid.ClientId(nil), q.items...)
}
