package lockserver

import (
	"sync"
	"time"

	"yfslock/internal/logging"
	"yfslock/internal/rpcwire"
	"yfslock/internal/xid"
	"yfslock/metrics"
)

var logger = logging.Get("lockserver")

const dispatchQueueDepth = 4096

// Server is the cache-coherent lock server: one mutex guards every
// lock's state and every client's dedup context; outbound calls to
// clients are never made while holding it, only enqueued for the
// revoker/retryer goroutines to fire off.
type Server struct {
	mu    sync.Mutex
	locks map[xid.LockId]*lockEntry

	revokeCh chan task
	retryCh  chan task

	hm          *rpcwire.HandleManager
	callTimeout time.Duration
	metrics     *metrics.Registry

	// amIPrimary gates client dispatch in replicated mode: backups
	// enqueue tasks (so state stays consistent if they become
	// primary) but the worker goroutines drop them on dequeue. Nil
	// in standalone mode, where dispatch is always active.
	amIPrimary func() bool
}

// Config bundles Server's construction-time dependencies.
type Config struct {
	Handles     *rpcwire.HandleManager
	CallTimeout time.Duration
	Metrics     *metrics.Registry
	AmIPrimary  func() bool // nil for standalone mode
}

// New builds a lock server and starts its revoke/retry dispatch workers.
func New(cfg Config) *Server {
	s := &Server{
		locks:       make(map[xid.LockId]*lockEntry),
		revokeCh:    make(chan task, dispatchQueueDepth),
		retryCh:     make(chan task, dispatchQueueDepth),
		hm:          cfg.Handles,
		callTimeout: cfg.CallTimeout,
		metrics:     cfg.Metrics,
		amIPrimary:  cfg.AmIPrimary,
	}
	go s.revoker()
	go s.retryer()
	return s
}

func (s *Server) entry(lid xid.LockId) *lockEntry {
	e, ok := s.locks[lid]
	if !ok {
		e = newLockEntry()
		s.locks[lid] = e
	}
	return e
}

// Acquire implements the acquire RPC: FREE grants immediately; LENT
// or REVOKED enqueues the requester and, the first time, dispatches a
// revoke to the current owner.
func (s *Server) Acquire(args *AcquireArgs) (*AcquireReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(args.Lid)
	ctx := e.ctxFor(args.ClientId)

	if ctx.haveAcquireReply && args.Xid == ctx.lastXidAcquire {
		if ctx.lastAcquireReply.Revoke && e.owner != "" {
			s.enqueueRevoke(args.Lid, e.owner)
		}
		if s.metrics != nil {
			s.metrics.LockAcquires.WithLabelValues("duplicate").Inc()
		}
		return &ctx.lastAcquireReply, nil
	}
	if ctx.haveAcquireReply && args.Xid < ctx.lastXidAcquire {
		if s.metrics != nil {
			s.metrics.LockAcquires.WithLabelValues("stale").Inc()
		}
		return &AcquireReply{Status: STALE}, nil
	}

	var reply AcquireReply
	switch e.status {
	case free:
		e.status = lent
		e.owner = args.ClientId
		e.nacquire++
		r := int32(0)
		if !e.waitQ.empty() {
			r = 1
		}
		reply = AcquireReply{Status: OK, R: r}
		logger.Info("lock %v granted to %s", args.Lid, args.ClientId)

	case lent, revoked:
		revoke := false
		if e.waitQ.push(args.ClientId) && e.status == lent {
			e.status = revoked
			revoke = true
			s.enqueueRevoke(args.Lid, e.owner)
		}
		reply = AcquireReply{Status: RETRY, Revoke: revoke}
	}

	ctx.lastXidAcquire = args.Xid
	ctx.lastAcquireReply = reply
	ctx.haveAcquireReply = true

	if s.metrics != nil {
		s.metrics.LockAcquires.WithLabelValues(reply.Status.String()).Inc()
	}
	return &reply, nil
}

// Release implements the release RPC: the current owner gives the
// lock back, which frees it and wakes the head waiter, if any.
func (s *Server) Release(args *ReleaseArgs) (*ReleaseReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.locks[args.Lid]
	if !ok {
		return &ReleaseReply{Status: RPCERR}, nil
	}
	ctx := e.ctxFor(args.ClientId)

	if ctx.haveReleaseReply && args.Xid == ctx.lastXidRelease {
		return &ctx.lastReleaseReply, nil
	}
	if ctx.haveReleaseReply && args.Xid < ctx.lastXidRelease {
		return &ReleaseReply{Status: STALE}, nil
	}

	var reply ReleaseReply
	switch {
	case e.status == free:
		reply = ReleaseReply{Status: RPCERR}
	case e.owner != args.ClientId:
		reply = ReleaseReply{Status: RPCERR}
	default:
		e.status = free
		e.owner = ""
		if next, ok := e.waitQ.pop(); ok {
			s.enqueueRetry(args.Lid, next)
		}
		reply = ReleaseReply{Status: OK}
		logger.Info("lock %v released by %s", args.Lid, args.ClientId)
	}

	ctx.lastXidRelease = args.Xid
	ctx.lastReleaseReply = reply
	ctx.haveReleaseReply = true

	if s.metrics != nil {
		s.metrics.LockReleases.WithLabelValues(reply.Status.String()).Inc()
	}
	return &reply, nil
}

// Stat answers a read-only acquire-count query. It is never proposed
// through Paxos and any replica can answer it from locally applied state.
func (s *Server) Stat(args *StatArgs) (*StatReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.locks[args.Lid]
	if !ok {
		return &StatReply{Status: OK, R: 0}, nil
	}
	return &StatReply{Status: OK, R: int32(e.nacquire)}, nil
}
