package paxos

import (
	"fmt"
	"sync"

	"yfslock/internal/logging"
	"yfslock/internal/paxoslog"
	"yfslock/internal/xid"
)

var logger = logging.Get("paxos")

// acceptor is the durable half of a Paxos node: it answers
// prepare/accept/decide RPCs and only ever advances state forward.
// Instances are decided strictly in order (DECIDE only succeeds for
// instance_h+1); once an instance is decided the ballot state (n_h,
// n_a, v_a) resets for the next one.
type acceptor struct {
	me xid.NodeId

	mu sync.Mutex

	nH Proposal
	nA Proposal
	vA Value

	instanceH InstanceId
	values    map[InstanceId]Value

	log    *paxoslog.Log
	commit CommitUpcall
}

func newAcceptor(me xid.NodeId, log *paxoslog.Log, commit CommitUpcall) (*acceptor, error) {
	a := &acceptor{
		me:     me,
		values: make(map[InstanceId]Value),
		log:    log,
		commit: commit,
	}
	if log != nil {
		state, err := log.Replay()
		if err != nil {
			return nil, err
		}
		for instance, v := range state.Decided {
			a.values[InstanceId(instance)] = Value(v)
		}
		a.instanceH = InstanceId(state.MaxDecided)
		// The ballot triple is shared across instances, so restore it
		// from the highest undecided record: that was the last one
		// written before the crash.
		var nhKey uint64
		for inst, rec := range state.NH {
			if inst > state.MaxDecided && inst >= nhKey {
				a.nH = Proposal{Seq: rec.Seq, Node: xid.NodeId(rec.Node)}
				nhKey = inst
			}
		}
		var naKey uint64
		for inst, rec := range state.Accepted {
			if inst > state.MaxDecided && inst >= naKey {
				a.nA = Proposal{Seq: rec.Seq, Node: xid.NodeId(rec.Node)}
				a.vA = Value(rec.Value)
				naKey = inst
			}
		}
	}
	return a, nil
}

func (a *acceptor) getNH() Proposal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nH
}

// setNH is used by the proposer to fast-forward its own ballot when a
// peer rejects with a higher n_h.
func (a *acceptor) setNH(n Proposal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n.Greater(a.nH) {
		a.nH = n
	}
}

// handlePrepare implements the PREPARE phase of the acceptor role.
func (a *acceptor) handlePrepare(args *PrepareArgs) (*PrepareReply, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	reply := &PrepareReply{}

	if args.Instance <= a.instanceH {
		reply.OldInstance = true
		reply.InstanceV = a.values[args.Instance]
		return reply, nil
	}

	if args.N.Greater(a.nH) {
		a.nH = args.N
		if a.log != nil {
			if err := a.log.PutNH(uint64(args.Instance), args.N.Seq, string(args.N.Node)); err != nil {
				return nil, err
			}
		}
		reply.Accept = true
		reply.NA = a.nA
		reply.VA = a.vA
		return reply, nil
	}

	reply.NH = a.nH
	return reply, nil
}

// handleAccept implements the ACCEPT phase of the acceptor role.
func (a *acceptor) handleAccept(args *AcceptArgs) (*AcceptReply, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if args.N.GreaterEqual(a.nH) && args.Instance > a.instanceH {
		a.nA = args.N
		a.vA = args.V
		if a.log != nil {
			if err := a.log.PutAccepted(uint64(args.Instance), args.N.Seq, string(args.N.Node), args.V); err != nil {
				return nil, err
			}
		}
		return &AcceptReply{Accepted: true}, nil
	}
	return &AcceptReply{Accepted: false}, nil
}

// handleDecide implements the DECIDE phase of the acceptor role: only
// instance_h+1 is accepted; instance_h or below is an idempotent
// no-op; anything further ahead is a protocol violation and the one
// condition this acceptor treats as fatal.
func (a *acceptor) handleDecide(args *DecideArgs) (*DecideReply, error) {
	a.mu.Lock()

	if args.Instance <= a.instanceH {
		a.mu.Unlock()
		return &DecideReply{}, nil
	}
	if args.Instance != a.instanceH+1 {
		a.mu.Unlock()
		panic(fmt.Sprintf("paxos: decide gap: have instance_h=%d, got decide for %d", a.instanceH, args.Instance))
	}

	a.values[args.Instance] = args.V
	if a.log != nil {
		if err := a.log.PutDecided(uint64(args.Instance), args.V); err != nil {
			a.mu.Unlock()
			return nil, err
		}
	}
	a.instanceH = args.Instance
	a.nH = Proposal{}
	a.nA = Proposal{}
	a.vA = nil

	commit := a.commit
	a.mu.Unlock()

	logger.Info("decided instance %d", args.Instance)
	if commit != nil {
		commit(args.Instance, args.V)
	}
	return &DecideReply{}, nil
}

// commitDirectly installs a decided value the node learned about
// out-of-band (an OldInstance prepare response carrying an already-
// decided value). The usual case is instance_h+1: this proposer was
// behind and a peer had already decided the instance it tried to
// propose, so the commit path runs exactly as if a DECIDE had arrived
// in order, upcall included. Values further ahead cannot be applied
// in order and are dropped; the proposer will learn them one at a
// time on subsequent runs.
func (a *acceptor) commitDirectly(instance InstanceId, v Value) error {
	a.mu.Lock()
	if instance <= a.instanceH {
		if _, ok := a.values[instance]; !ok {
			a.values[instance] = v
			if a.log != nil {
				if err := a.log.PutDecided(uint64(instance), v); err != nil {
					a.mu.Unlock()
					return err
				}
			}
		}
		a.mu.Unlock()
		return nil
	}
	if instance != a.instanceH+1 {
		a.mu.Unlock()
		logger.Warning("cannot commit instance %d out of order, instance_h=%d", instance, a.instanceH)
		return nil
	}

	a.values[instance] = v
	if a.log != nil {
		if err := a.log.PutDecided(uint64(instance), v); err != nil {
			a.mu.Unlock()
			return err
		}
	}
	a.instanceH = instance
	a.nH = Proposal{}
	a.nA = Proposal{}
	a.vA = nil

	commit := a.commit
	a.mu.Unlock()

	logger.Info("committed instance %d from a peer's decided value", instance)
	if commit != nil {
		commit(instance, v)
	}
	return nil
}

// status returns the decided value for instance, if any; it backs
// Node.Status.
func (a *acceptor) status(instance InstanceId) (Value, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.values[instance]
	return v, ok
}

// maxDecided returns the highest instance known to be decided.
func (a *acceptor) maxDecided() InstanceId {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.instanceH
}
