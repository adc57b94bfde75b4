package paxos

import (
	"sync"
	"time"

	"yfslock/internal/rpcwire"
	"yfslock/internal/xid"
	"yfslock/metrics"
)

const prepareAcceptTimeout = 1 * time.Second

// proposer runs the Paxos proposer role for this node. Only one run()
// can be active at a time, tracked by the `stable` flag.
type proposer struct {
	me  xid.NodeId
	acc *acceptor
	hm  *rpcwire.HandleManager
	m   *metrics.Registry

	mu     sync.Mutex
	stable bool
	myN    uint64

	// test-only hooks, invoked between prepare/accept and
	// accept/decide. Left nil in production.
	breakAfterPrepare func()
	breakAfterAccept  func()
}

func newProposer(me xid.NodeId, acc *acceptor, hm *rpcwire.HandleManager, m *metrics.Registry) *proposer {
	return &proposer{me: me, acc: acc, hm: hm, m: m, stable: true}
}

// isRunning reports whether a run() is currently in flight.
func (p *proposer) isRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.stable
}

func majority(total, have int) bool {
	return have >= (total/2)+1
}

// setN picks a proposal number strictly greater than anything seen so far.
func (p *proposer) setN() {
	hn := p.acc.getNH().Seq
	if hn+1 > p.myN+1 {
		p.myN = hn + 1
	} else {
		p.myN++
	}
}

// run drives one attempt at single-decree Paxos for instance, trying
// to get nodes to agree on vNew (or, if another value was already
// partially accepted, that value instead). Returns true iff a
// majority accepted. Concurrent calls on the same node fail fast.
func (p *proposer) run(instance InstanceId, nodes []xid.NodeId, vNew Value) bool {
	p.mu.Lock()
	if !p.stable {
		p.mu.Unlock()
		logger.Info("proposer: already running")
		return false
	}
	p.stable = false
	p.setN()
	n := Proposal{Seq: p.myN, Node: p.me}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.stable = true
		p.mu.Unlock()
	}()

	if p.m != nil {
		p.m.PaxosRounds.WithLabelValues("prepare").Inc()
		defer p.m.Timer(p.m.PaxosRoundTime, "run")()
	}

	accepters, v, ok := p.prepare(instance, nodes, n)
	if !ok {
		// an oldinstance response committed us elsewhere; this
		// round is abandoned, not a failure to reach majority.
		return false
	}
	if !majority(len(nodes), len(accepters)) {
		if p.m != nil {
			p.m.QuorumFailure.Inc()
		}
		logger.Info("paxos: no majority of prepare responses for instance %d", instance)
		return false
	}

	if v == nil {
		v = vNew
	}

	if p.breakAfterPrepare != nil {
		p.breakAfterPrepare()
	}

	if p.m != nil {
		p.m.PaxosRounds.WithLabelValues("accept").Inc()
	}
	acceptedBy := p.sendAccept(instance, accepters, n, v)
	if !majority(len(nodes), len(acceptedBy)) {
		if p.m != nil {
			p.m.QuorumFailure.Inc()
		}
		logger.Info("paxos: no majority of accept responses for instance %d", instance)
		return false
	}

	if p.breakAfterAccept != nil {
		p.breakAfterAccept()
	}

	if p.m != nil {
		p.m.PaxosRounds.WithLabelValues("decide").Inc()
	}
	p.sendDecide(instance, acceptedBy, v)
	return true
}

// prepare sends PREPARE to every node and classifies the responses.
// Returns the set of nodes that accepted, the highest-n_a accepted
// value seen (nil if none), and ok = false if an oldinstance response
// short-circuited this round.
func (p *proposer) prepare(instance InstanceId, nodes []xid.NodeId, n Proposal) ([]xid.NodeId, Value, bool) {
	type result struct {
		node  xid.NodeId
		reply *PrepareReply
		err   error
	}
	recv := make(chan result, len(nodes))
	args := &PrepareArgs{Instance: instance, N: n}

	for _, node := range nodes {
		go func(node xid.NodeId) {
			reply := &PrepareReply{}
			err := p.hm.Call(string(node), prepareAcceptTimeout, MethodPrepare, args, reply)
			if err != nil {
				p.hm.DeleteHandle(string(node))
				recv <- result{node: node, err: err}
				return
			}
			recv <- result{node: node, reply: reply}
		}(node)
	}

	accepters := make([]xid.NodeId, 0, len(nodes))
	var best Proposal
	var bestV Value
	haveBest := false

	for i := 0; i < len(nodes); i++ {
		r := <-recv
		if r.err != nil {
			logger.Debug("paxos: prepare RPC to %s failed: %v", r.node, r.err)
			continue
		}
		reply := r.reply
		if reply.OldInstance {
			p.acc.commitDirectly(instance, reply.InstanceV)
			return nil, nil, false
		}
		if reply.Accept {
			accepters = append(accepters, r.node)
			if !haveBest || reply.NA.Greater(best) {
				best = reply.NA
				bestV = reply.VA
				haveBest = true
			}
		} else {
			p.acc.setNH(reply.NH)
			if p.m != nil {
				p.m.PaxosRejected.Inc()
			}
		}
	}
	return accepters, bestV, true
}

// sendAccept sends ACCEPT to the nodes that prepare-accepted and
// returns those that accept-accepted.
func (p *proposer) sendAccept(instance InstanceId, nodes []xid.NodeId, n Proposal, v Value) []xid.NodeId {
	type result struct {
		node xid.NodeId
		ok   bool
	}
	recv := make(chan result, len(nodes))
	args := &AcceptArgs{Instance: instance, N: n, V: v}

	for _, node := range nodes {
		go func(node xid.NodeId) {
			reply := &AcceptReply{}
			err := p.hm.Call(string(node), prepareAcceptTimeout, MethodAccept, args, reply)
			if err != nil {
				p.hm.DeleteHandle(string(node))
				recv <- result{node: node, ok: false}
				return
			}
			recv <- result{node: node, ok: reply.Accepted}
		}(node)
	}

	accepted := make([]xid.NodeId, 0, len(nodes))
	for i := 0; i < len(nodes); i++ {
		r := <-recv
		if r.ok {
			accepted = append(accepted, r.node)
		}
	}
	return accepted
}

// sendDecide tells every accepting node the value is decided. A
// quorum has already agreed, so per-node failures are ignored, but the
// calls are awaited: by the time run returns true, every reachable
// accepter (this node included) has applied the decision.
func (p *proposer) sendDecide(instance InstanceId, nodes []xid.NodeId, v Value) {
	args := &DecideArgs{Instance: instance, V: v}
	var wg sync.WaitGroup
	for _, node := range nodes {
		wg.Add(1)
		go func(node xid.NodeId) {
			defer wg.Done()
			reply := &DecideReply{}
			if err := p.hm.Call(string(node), prepareAcceptTimeout, MethodDecide, args, reply); err != nil {
				p.hm.DeleteHandle(string(node))
			}
		}(node)
	}
	wg.Wait()
}
