package lockserver

import (
	"bufio"
	"bytes"
	"fmt"

	"yfslock/internal/xid"
	"yfslock/serializer"
)

// MarshalState serializes every lock's state into a single binary
// blob: a count of locks, then per lock its id, status, owner, wait
// queue and per-client dedup context. Used for state transfer to a
// recovering replica.
func (s *Server) MarshalState() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := &bytes.Buffer{}
	w := bufio.NewWriter(buf)

	if err := serializer.WriteUint32(w, uint32(len(s.locks))); err != nil {
		return nil, err
	}
	for lid, e := range s.locks {
		if err := serializer.WriteUint64(w, uint64(lid)); err != nil {
			return nil, err
		}
		if err := serializer.WriteUint32(w, uint32(e.status)); err != nil {
			return nil, err
		}
		if err := serializer.WriteString(w, string(e.owner)); err != nil {
			return nil, err
		}
		if err := serializer.WriteUint32(w, uint32(e.nacquire)); err != nil {
			return nil, err
		}
		waitIds := make([]string, 0, len(e.waitQ.all()))
		for _, c := range e.waitQ.all() {
			waitIds = append(waitIds, string(c))
		}
		if err := serializer.WriteStringSlice(w, waitIds); err != nil {
			return nil, err
		}
		if err := serializer.WriteUint32(w, uint32(len(e.clients))); err != nil {
			return nil, err
		}
		for cid, ctx := range e.clients {
			if err := serializer.WriteString(w, string(cid)); err != nil {
				return nil, err
			}
			if err := serializer.WriteUint64(w, uint64(ctx.lastXidAcquire)); err != nil {
				return nil, err
			}
			if err := serializer.WriteBool(w, ctx.haveAcquireReply); err != nil {
				return nil, err
			}
			if err := serializer.WriteUint32(w, uint32(ctx.lastAcquireReply.Status)); err != nil {
				return nil, err
			}
			if err := serializer.WriteUint32(w, uint32(ctx.lastAcquireReply.R)); err != nil {
				return nil, err
			}
			if err := serializer.WriteBool(w, ctx.lastAcquireReply.Revoke); err != nil {
				return nil, err
			}
			if err := serializer.WriteUint64(w, uint64(ctx.lastXidRelease)); err != nil {
				return nil, err
			}
			if err := serializer.WriteBool(w, ctx.haveReleaseReply); err != nil {
				return nil, err
			}
			if err := serializer.WriteUint32(w, uint32(ctx.lastReleaseReply.Status)); err != nil {
				return nil, err
			}
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalState replaces this server's entire lock table with the
// contents of a blob produced by MarshalState. The revoke/retry
// dispatch queues are not restored: a freshly promoted primary learns
// contention from subsequent client traffic, not from history.
func (s *Server) UnmarshalState(state []byte) error {
	r := bufio.NewReader(bytes.NewReader(state))

	n, err := serializer.ReadUint32(r)
	if err != nil {
		return err
	}

	locks := make(map[xid.LockId]*lockEntry, n)
	for i := uint32(0); i < n; i++ {
		lid, err := serializer.ReadUint64(r)
		if err != nil {
			return err
		}
		statusV, err := serializer.ReadUint32(r)
		if err != nil {
			return err
		}
		owner, err := serializer.ReadString(r)
		if err != nil {
			return err
		}
		nacquire, err := serializer.ReadUint32(r)
		if err != nil {
			return err
		}
		waitIds, err := serializer.ReadStringSlice(r)
		if err != nil {
			return err
		}

		e := newLockEntry()
		e.status = lockStatus(statusV)
		e.owner = xid.ClientId(owner)
		e.nacquire = int(nacquire)
		for _, id := range waitIds {
			e.waitQ.push(xid.ClientId(id))
		}

		nClients, err := serializer.ReadUint32(r)
		if err != nil {
			return err
		}
		for j := uint32(0); j < nClients; j++ {
			cid, err := serializer.ReadString(r)
			if err != nil {
				return err
			}
			ctx := e.ctxFor(xid.ClientId(cid))

			lxa, err := serializer.ReadUint64(r)
			if err != nil {
				return err
			}
			haveA, err := serializer.ReadBool(r)
			if err != nil {
				return err
			}
			aStatus, err := serializer.ReadUint32(r)
			if err != nil {
				return err
			}
			aR, err := serializer.ReadUint32(r)
			if err != nil {
				return err
			}
			aRevoke, err := serializer.ReadBool(r)
			if err != nil {
				return err
			}
			lxr, err := serializer.ReadUint64(r)
			if err != nil {
				return err
			}
			haveR, err := serializer.ReadBool(r)
			if err != nil {
				return err
			}
			rStatus, err := serializer.ReadUint32(r)
			if err != nil {
				return err
			}

			ctx.lastXidAcquire = xid.Xid(lxa)
			ctx.haveAcquireReply = haveA
			ctx.lastAcquireReply = AcquireReply{Status: Status(aStatus), R: int32(aR), Revoke: aRevoke}
			ctx.lastXidRelease = xid.Xid(lxr)
			ctx.haveReleaseReply = haveR
			ctx.lastReleaseReply = ReleaseReply{Status: Status(rStatus)}
		}

		locks[xid.LockId(lid)] = e
	}

	if _, err := r.Peek(1); err == nil {
		return fmt.Errorf("lockserver: trailing bytes after snapshot")
	}

	s.mu.Lock()
	s.locks = locks
	s.mu.Unlock()
	return nil
}
