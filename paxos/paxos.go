package paxos

import (
	"fmt"
	"time"

	"yfslock/internal/paxoslog"
	"yfslock/internal/rpcwire"
	"yfslock/internal/xid"
	"yfslock/metrics"
)

// Node is one participant in a single-decree Paxos group: it answers
// PREPARE/ACCEPT/DECIDE on behalf of its acceptor, and can be asked to
// propose a value for a given instance via Run. This is the public
// surface a replicated state machine's view manager drives.
type Node struct {
	me       xid.NodeId
	acceptor *acceptor
	proposer *proposer
	metrics  *metrics.Registry
}

// Config bundles Node's construction-time dependencies.
type Config struct {
	Me      xid.NodeId
	Server  *rpcwire.Server        // RPC server to register handlers on
	Handles *rpcwire.HandleManager // outbound call cache shared with rsm
	Log     *paxoslog.Log          // nil disables durability (tests only)
	Metrics *metrics.Registry
	Commit  CommitUpcall
}

// New builds a Paxos node and registers its RPC handlers on cfg.Server.
func New(cfg Config) (*Node, error) {
	acc, err := newAcceptor(cfg.Me, cfg.Log, cfg.Commit)
	if err != nil {
		return nil, err
	}
	prop := newProposer(cfg.Me, acc, cfg.Handles, cfg.Metrics)

	n := &Node{me: cfg.Me, acceptor: acc, proposer: prop, metrics: cfg.Metrics}

	if cfg.Server != nil {
		cfg.Server.Register(MethodPrepare, n.handlePrepareRPC)
		cfg.Server.Register(MethodAccept, n.handleAcceptRPC)
		cfg.Server.Register(MethodDecide, n.handleDecideRPC)
		cfg.Server.Register(MethodHeartbeat, n.handleHeartbeatRPC)
	}
	return n, nil
}

func (n *Node) handlePrepareRPC(payload []byte) (interface{}, error) {
	var args PrepareArgs
	if err := rpcwire.DecodeArgs(payload, &args); err != nil {
		return nil, err
	}
	return n.acceptor.handlePrepare(&args)
}

func (n *Node) handleAcceptRPC(payload []byte) (interface{}, error) {
	var args AcceptArgs
	if err := rpcwire.DecodeArgs(payload, &args); err != nil {
		return nil, err
	}
	return n.acceptor.handleAccept(&args)
}

func (n *Node) handleDecideRPC(payload []byte) (interface{}, error) {
	var args DecideArgs
	if err := rpcwire.DecodeArgs(payload, &args); err != nil {
		return nil, err
	}
	return n.acceptor.handleDecide(&args)
}

func (n *Node) handleHeartbeatRPC(payload []byte) (interface{}, error) {
	return &HeartbeatReply{}, nil
}

// Ping sends a heartbeat to addr and reports whether it answered
// before timeout, the liveness check a view's primary uses to decide
// whether a member needs dropping.
func (n *Node) Ping(hm *rpcwire.HandleManager, addr string, timeout time.Duration) error {
	reply := &HeartbeatReply{}
	if err := hm.Call(addr, timeout, MethodHeartbeat, &HeartbeatArgs{}, reply); err != nil {
		hm.DeleteHandle(addr)
		return err
	}
	return nil
}

// Run attempts to get the given node set to agree on v for instance,
// returning true iff a majority decided. Fails fast with an error if
// this node is already running a proposer.
func (n *Node) Run(instance InstanceId, nodes []xid.NodeId, v Value) (bool, error) {
	if n.proposer.isRunning() {
		return false, fmt.Errorf("paxos: proposer already running on %s", n.me)
	}
	return n.proposer.run(instance, nodes, v), nil
}

// Status returns the decided value for instance, if known locally.
func (n *Node) Status(instance InstanceId) (Value, bool) {
	return n.acceptor.status(instance)
}

// MaxDecided returns the highest instance this node has decided.
func (n *Node) MaxDecided() InstanceId {
	return n.acceptor.maxDecided()
}

// SetBreakpoints installs test-only process-exit hooks fired right
// after the prepare and accept phases complete. Exposed for the test
// harness only; never call in production code.
func (n *Node) SetBreakpoints(afterPrepare, afterAccept func()) {
	n.proposer.breakAfterPrepare = afterPrepare
	n.proposer.breakAfterAccept = afterAccept
}
