package lockclient

import (
	"sync"
	"time"

	"yfslock/internal/logging"
	"yfslock/internal/rpcwire"
	"yfslock/internal/xid"
	"yfslock/lockserver"
	"yfslock/metrics"
	"yfslock/rsm"
)

var logger = logging.Get("lockclient")

// defaultRetryWaitTimeout is the replicated variant's safety timeout
// on the retry wait, so a retry RPC lost during a view change cannot
// stall a goroutine forever. The non-replicated variant waits
// unbounded on the callback.
const defaultRetryWaitTimeout = 3 * time.Second

// Client is the cache-coherent lock client (C4). It presents a
// reachable callback address (clientId) to the server so the server
// can revoke or retry cached locks, and serializes every local
// goroutine's view of a lock's state through one mutex.
type Client struct {
	clientId xid.ClientId

	transport  transport
	replicated bool
	retryWait  time.Duration
	flusher    ReleaseFlusher
	metrics    *metrics.Registry
	callback   *rpcwire.Server

	mu    sync.Mutex
	locks map[xid.LockId]*entry
	xids  map[xid.LockId]*xid.Counter
}

// Config bundles Client's construction-time dependencies. Exactly one
// of ServerAddr or RsmClient must be set.
type Config struct {
	// ListenAddr is where the callback server binds; "127.0.0.1:0"
	// picks an ephemeral port. The bound address becomes this
	// client's ClientId.
	ListenAddr string

	Handles *rpcwire.HandleManager

	// ServerAddr targets a standalone (non-replicated) lock server.
	ServerAddr string
	// RsmClient targets a replicated lock server through its RSM view.
	RsmClient *rsm.Client

	CallTimeout      time.Duration
	RetryWaitTimeout time.Duration // replicated mode only; 0 -> default 3s

	Flusher ReleaseFlusher
	Metrics *metrics.Registry
}

// New builds a Client, binds its callback listener, and registers the
// server's revoke/retry RPC handlers on it.
func New(cfg Config) (*Client, error) {
	c := &Client{
		replicated: cfg.RsmClient != nil,
		retryWait:  cfg.RetryWaitTimeout,
		flusher:    cfg.Flusher,
		metrics:    cfg.Metrics,
		locks:      make(map[xid.LockId]*entry),
		xids:       make(map[xid.LockId]*xid.Counter),
	}
	if c.retryWait <= 0 {
		c.retryWait = defaultRetryWaitTimeout
	}

	if cfg.RsmClient != nil {
		c.transport = &replicatedTransport{rsm: cfg.RsmClient}
	} else {
		c.transport = &standaloneTransport{hm: cfg.Handles, addr: cfg.ServerAddr, timeout: cfg.CallTimeout}
	}

	rs := rpcwire.NewServer(cfg.ListenAddr)
	rs.Register(lockserver.MethodRevoke, c.handleRevokeRPC)
	rs.Register(lockserver.MethodRetry, c.handleRetryRPC)
	if err := rs.Start(); err != nil {
		return nil, err
	}
	c.callback = rs
	c.clientId = xid.ClientId(rs.Addr())
	return c, nil
}

// ClientId returns the callback address this client presents to the
// lock server.
func (c *Client) ClientId() xid.ClientId { return c.clientId }

// Close stops the callback listener. In-flight RPCs are abandoned.
func (c *Client) Close() error { return c.callback.Stop() }

func (c *Client) entryFor(lid xid.LockId) *entry {
	e, ok := c.locks[lid]
	if !ok {
		e = newEntry(&c.mu)
		c.locks[lid] = e
	}
	return e
}

func (c *Client) nextXid(lid xid.LockId) xid.Xid {
	c.mu.Lock()
	ctr, ok := c.xids[lid]
	if !ok {
		ctr = &xid.Counter{}
		c.xids[lid] = ctr
	}
	c.mu.Unlock()
	return ctr.Next()
}

// Acquire blocks until the calling goroutine holds lid, either because
// another local goroutine already cached it FREE, or by round-
// tripping to the server (possibly waiting through one or more
// revoke/retry cycles of other clients holding it first).
func (c *Client) Acquire(lid xid.LockId) (*Handle, error) {
	c.mu.Lock()
	e := c.entryFor(lid)

	for {
		switch e.status {
		case statusNone:
			e.status = statusAcquiring
			c.mu.Unlock()

			reply, err := c.transport.acquire(&lockserver.AcquireArgs{
				Lid: lid, ClientId: c.clientId, Xid: c.nextXid(lid),
			})

			c.mu.Lock()
			if err != nil {
				e.status = statusNone
				e.freeCv.Broadcast()
				c.mu.Unlock()
				return nil, err
			}

			if c.metrics != nil {
				c.metrics.LockAcquires.WithLabelValues(reply.Status.String()).Inc()
			}

			switch reply.Status {
			case lockserver.OK:
				e.status = statusFree
				if reply.R != 0 {
					e.revoked = true
				}
				e.freeCv.Broadcast()
				// fall through the outer loop: statusFree claims it next.
			case lockserver.RETRY:
				c.waitForRetry(e)
				e.shouldRetry = false
				e.status = statusNone
				// fall through: statusNone re-issues with a fresh xid.
			case lockserver.STALE:
				e.status = statusNone
				e.freeCv.Broadcast()
				c.mu.Unlock()
				return nil, newStaleError("lockclient: server reported our xid as stale")
			default:
				e.status = statusNone
				e.freeCv.Broadcast()
				c.mu.Unlock()
				return nil, errUnexpectedStatus("acquire", reply.Status)
			}

		case statusFree:
			e.status = statusLocked
			h := &Handle{client: c, lid: lid}
			e.holder = h
			c.mu.Unlock()
			return h, nil

		case statusLocked, statusAcquiring, statusReleasing:
			e.freeCv.Wait()
		}
	}
}

// waitForRetry blocks until the server's retry callback sets
// should_retry, or (replicated mode only) until the safety timeout
// elapses, in which case the caller re-attempts anyway: a lost retry
// RPC must not stall a goroutine forever. c.mu is held on entry and
// exit.
func (c *Client) waitForRetry(e *entry) {
	if !c.replicated {
		for !e.shouldRetry {
			e.retryCv.Wait()
		}
		return
	}
	if e.shouldRetry {
		return
	}
	timer := time.AfterFunc(c.retryWait, func() {
		c.mu.Lock()
		e.retryCv.Broadcast()
		c.mu.Unlock()
	})
	e.retryCv.Wait()
	timer.Stop()
}

// Release hands lid back to other local goroutines, and to the
// server too if it had been revoked while this goroutine held it.
// Only the goroutine holding h may call this.
func (c *Client) Release(h *Handle) error {
	c.mu.Lock()
	e, ok := c.locks[h.lid]
	if !ok || e.status != statusLocked || e.holder != h {
		c.mu.Unlock()
		return newProtocolViolationError("lockclient: release by non-owner or lock not held")
	}

	if !e.revoked {
		e.status = statusFree
		e.holder = nil
		e.freeCv.Broadcast()
		c.mu.Unlock()
		return nil
	}

	e.status = statusReleasing
	c.mu.Unlock()

	if c.flusher != nil {
		if err := c.flusher.DoRelease(h.lid); err != nil {
			c.mu.Lock()
			e.status = statusLocked
			e.freeCv.Broadcast()
			c.mu.Unlock()
			return err
		}
	}

	reply, err := c.transport.release(&lockserver.ReleaseArgs{
		Lid: h.lid, ClientId: c.clientId, Xid: c.nextXid(h.lid),
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		e.status = statusLocked
		e.freeCv.Broadcast()
		return err
	}
	if c.metrics != nil {
		c.metrics.LockReleases.WithLabelValues(reply.Status.String()).Inc()
	}
	if reply.Status == lockserver.RPCERR {
		e.status = statusLocked
		e.freeCv.Broadcast()
		return newProtocolViolationError("lockclient: server rejected release: not the owner or lock already free")
	}
	if reply.Status != lockserver.OK {
		e.status = statusLocked
		e.freeCv.Broadcast()
		return errUnexpectedStatus("release", reply.Status)
	}

	e.status = statusNone
	e.revoked = false
	e.holder = nil
	e.freeCv.Broadcast()
	return nil
}

// Stat forwards a read-only acquire-count query straight to the
// server; it never touches local cache state.
func (c *Client) Stat(lid xid.LockId) (int32, error) {
	reply, err := c.transport.stat(&lockserver.StatArgs{Lid: lid})
	if err != nil {
		return 0, err
	}
	return reply.R, nil
}
