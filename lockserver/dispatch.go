package lockserver

import (
	"yfslock/internal/xid"
)

// task is one unit of outbound work for a worker goroutine: tell
// client about lid.
type task struct {
	lid    xid.LockId
	client xid.ClientId
}

// revoker drains revoke tasks and fires a fire-and-forget Revoke RPC
// at the named client. It never touches the lock table directly, so
// it never contends with Acquire/Release for the server mutex.
func (s *Server) revoker() {
	for t := range s.revokeCh {
		if s.amIPrimary != nil && !s.amIPrimary() {
			continue
		}
		reply := &RevokeReply{}
		args := &RevokeArgs{Lid: t.lid}
		if err := s.hm.Call(string(t.client), s.callTimeout, MethodRevoke, args, reply); err != nil {
			logger.Debug("revoke to %s for lock %s failed: %v", t.client, t.lid, err)
			continue
		}
		if s.metrics != nil {
			s.metrics.RevokesSent.Inc()
		}
	}
}

// retryer is revoker's twin for retry notifications.
func (s *Server) retryer() {
	for t := range s.retryCh {
		if s.amIPrimary != nil && !s.amIPrimary() {
			continue
		}
		reply := &RetryReply{}
		args := &RetryArgs{Lid: t.lid}
		if err := s.hm.Call(string(t.client), s.callTimeout, MethodRetry, args, reply); err != nil {
			logger.Debug("retry to %s for lock %s failed: %v", t.client, t.lid, err)
			continue
		}
		if s.metrics != nil {
			s.metrics.RetriesSent.Inc()
		}
	}
}

func (s *Server) enqueueRevoke(lid xid.LockId, client xid.ClientId) {
	s.revokeCh <- task{lid: lid, client: client}
}

func (s *Server) enqueueRetry(lid xid.LockId, client xid.ClientId) {
	s.retryCh <- task{lid: lid, client: client}
}
