package lockclient

import (
	"yfslock/internal/rpcwire"
	"yfslock/internal/xid"
	"yfslock/lockserver"
)

func (c *Client) handleRevokeRPC(payload []byte) (interface{}, error) {
	var args lockserver.RevokeArgs
	if err := rpcwire.DecodeArgs(payload, &args); err != nil {
		return nil, err
	}
	status := c.revokeHandler(args.Lid)
	return &lockserver.RevokeReply{Status: status}, nil
}

func (c *Client) handleRetryRPC(payload []byte) (interface{}, error) {
	var args lockserver.RetryArgs
	if err := rpcwire.DecodeArgs(payload, &args); err != nil {
		return nil, err
	}
	c.retryHandler(args.Lid)
	return &lockserver.RetryReply{Status: lockserver.OK}, nil
}

// revokeHandler implements the server's revoke callback: if nothing
// local holds lid, the client owns it from the server's point of view
// with no local user, so it releases back to the server immediately.
// Otherwise it just flags the lock as revoked; the goroutine currently
// holding it releases to the server on its next Release call.
func (c *Client) revokeHandler(lid xid.LockId) lockserver.Status {
	c.mu.Lock()
	e, ok := c.locks[lid]
	if !ok {
		c.mu.Unlock()
		return lockserver.OK
	}

	if e.status != statusFree {
		e.revoked = true
		c.mu.Unlock()
		return lockserver.OK
	}

	e.status = statusReleasing
	c.mu.Unlock()

	if c.flusher != nil {
		if err := c.flusher.DoRelease(lid); err != nil {
			logger.Error("lockclient: flush on revoke of %v failed: %v", lid, err)
			c.mu.Lock()
			e.status = statusFree
			e.freeCv.Broadcast()
			c.mu.Unlock()
			return lockserver.RPCERR
		}
	}

	reply, err := c.transport.release(&lockserver.ReleaseArgs{
		Lid: lid, ClientId: c.clientId, Xid: c.nextXid(lid),
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		logger.Error("lockclient: server-release of %v on revoke failed: %v", lid, err)
		e.status = statusFree
		e.freeCv.Broadcast()
		return lockserver.RPCERR
	}
	if reply.Status != lockserver.OK {
		e.status = statusFree
		e.freeCv.Broadcast()
		return reply.Status
	}
	e.status = statusNone
	e.freeCv.Broadcast()
	return lockserver.OK
}

// retryHandler implements the server's retry callback: it just flags
// should_retry and wakes every goroutine waiting on this lock's
// retry_cv; the one actually in Acquire's RETRY branch clears the
// flag and re-attempts.
func (c *Client) retryHandler(lid xid.LockId) {
	c.mu.Lock()
	if e, ok := c.locks[lid]; ok {
		e.shouldRetry = true
		e.retryCv.Broadcast()
	}
	c.mu.Unlock()
}
