package rsm

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"
	"time"

	"yfslock/internal/logging"
	"yfslock/internal/rpcwire"
	"yfslock/internal/xid"
	"yfslock/paxos"
	"yfslock/topology"
)

var logger = logging.Get("rsm")

// defaultHeartbeatInterval/defaultMissThreshold govern StartHeartbeat:
// the primary pings every other view member this often, and proposes
// dropping one after this many consecutive misses.
const (
	defaultHeartbeatInterval = 500 * time.Millisecond
	defaultMissThreshold     = 3
)

// Manager turns a Paxos group into a replicated command log: client
// RPCs land at the primary, are proposed as the next instance's
// value, and are applied to a registered state machine in strict
// instance order at every replica.
type Manager struct {
	me    xid.NodeId
	paxos *paxos.Node
	view  *topology.Container
	hm    *rpcwire.HandleManager

	// invokeMu serializes proposals from this node so at most one
	// log entry is in flight per replica; the paxos proposer's
	// stable flag would reject a concurrent run anyway.
	invokeMu sync.Mutex

	mu       sync.Mutex
	applied  paxos.InstanceId
	handlers map[string]Handler
	pending  map[paxos.InstanceId]chan applyResult
	transfer StateTransfer
}

type applyResult struct {
	raw   []byte // the decided value, so a proposer can tell if it lost the instance
	reply interface{}
	err   error
}

// maxInvokeAttempts bounds how many consecutive instances a proposal
// may lose to competing entries before Invoke gives up.
const maxInvokeAttempts = 5

// Config bundles Manager's construction-time dependencies.
type Config struct {
	Me      xid.NodeId
	Nodes   []xid.NodeId // full RSM membership, in view order
	Paxos   *paxos.Node
	Handles *rpcwire.HandleManager
	Server  *rpcwire.Server
}

// New builds a Manager and registers its RPC handlers on cfg.Server.
// The Paxos node passed in must be constructed with this Manager's
// Apply method wired as its commit upcall.
func New(cfg Config) *Manager {
	m := &Manager{
		me:       cfg.Me,
		paxos:    cfg.Paxos,
		view:     topology.NewContainer(cfg.Nodes),
		hm:       cfg.Handles,
		handlers: make(map[string]Handler),
		pending:  make(map[paxos.InstanceId]chan applyResult),
	}
	if cfg.Server != nil {
		cfg.Server.Register(MethodInvoke, m.handleInvokeRPC)
		cfg.Server.Register(MethodTransfer, m.handleTransferRPC)
	}
	return m
}

// Reg registers an RPC method name with the handler that applies it
// once decided. Call before the rpcwire.Server starts serving; not
// safe to call concurrently with Invoke/Apply.
func (m *Manager) Reg(method string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method] = h
}

// SetStateTransfer installs the snapshot/restore handler used when a
// backup catches up to the primary.
func (m *Manager) SetStateTransfer(st StateTransfer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfer = st
}

// AmIPrimary reports whether this node is the primary of the current view.
func (m *Manager) AmIPrimary() bool {
	return m.view.AmIPrimary(m.me)
}

// View returns the currently installed view.
func (m *Manager) View() topology.View {
	return m.view.Current()
}

// InstallView updates the locally known view membership, e.g. after a
// reconfiguration decided through Paxos. Side-effectful work
// downstream must be gated on AmIPrimary, not on this call succeeding.
func (m *Manager) InstallView(v topology.View) bool {
	return m.view.Install(v)
}

// Invoke proposes method(args) as the next log entry and blocks until
// it has been applied locally, returning the handler's reply. Callers
// must check AmIPrimary first; a non-primary call still fails, since
// only the primary's Run calls reach a quorum's accept phase in the
// expected order, but the error path exists so the RPC handler has a
// single code path for both local and remote invocation.
//
// The instance number is always re-read from the decided log: if this
// proposal loses an instance to a competing entry (an old primary
// finishing its round, a reconfiguration racing in), that entry is
// applied through the normal upcall path and the proposal moves on to
// the next instance.
func (m *Manager) Invoke(method string, args []byte) (interface{}, error) {
	if !m.AmIPrimary() {
		return nil, fmt.Errorf("rsm: not primary")
	}

	entry := LogEntry{Method: method, Args: args}
	buf := &bytes.Buffer{}
	if err := gob.NewEncoder(buf).Encode(entry); err != nil {
		return nil, err
	}
	value := buf.Bytes()

	m.invokeMu.Lock()
	defer m.invokeMu.Unlock()

	for attempt := 0; attempt < maxInvokeAttempts; attempt++ {
		instance := m.paxos.MaxDecided() + 1

		ch := make(chan applyResult, 1)
		m.mu.Lock()
		m.pending[instance] = ch
		m.mu.Unlock()

		ok, err := m.paxos.Run(instance, m.View().Members, paxos.Value(value))
		if err != nil {
			m.clearPending(instance)
			return nil, err
		}
		if !ok {
			m.clearPending(instance)
			// Either no majority, or a peer had already decided this
			// instance and the proposer committed it locally instead.
			// The decided log tells the two apart.
			if m.paxos.MaxDecided() < instance {
				return nil, fmt.Errorf("rsm: instance %d failed to reach a majority", instance)
			}
			continue
		}

		res := <-ch
		if !bytes.Equal(res.raw, value) {
			// The instance decided on someone else's entry; it has
			// been applied, ours has not. Try the next slot.
			continue
		}
		return res.reply, res.err
	}
	return nil, fmt.Errorf("rsm: proposal lost %d consecutive instances", maxInvokeAttempts)
}

func (m *Manager) clearPending(instance paxos.InstanceId) {
	m.mu.Lock()
	delete(m.pending, instance)
	m.mu.Unlock()
}

// Apply is the Paxos commit upcall: it decodes the decided value,
// dispatches it to the registered handler, and wakes any local caller
// waiting on this instance. Instances are guaranteed to arrive in
// order since the underlying acceptor only ever decides instance_h+1.
func (m *Manager) Apply(instance paxos.InstanceId, v paxos.Value) {
	var entry LogEntry
	if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&entry); err != nil {
		logger.Error("rsm: failed to decode log entry at instance %d: %v", instance, err)
		return
	}

	if entry.Method == MethodReconfigure {
		m.applyReconfigure(instance, v, entry.Args)
		return
	}

	m.mu.Lock()
	h, ok := m.handlers[entry.Method]
	ch := m.pending[instance]
	delete(m.pending, instance)
	m.mu.Unlock()

	var reply interface{}
	var err error
	if !ok {
		err = fmt.Errorf("rsm: no handler registered for %q", entry.Method)
	} else {
		reply, err = h(entry.Args)
	}

	m.mu.Lock()
	m.applied = instance
	m.mu.Unlock()

	if ch != nil {
		ch <- applyResult{raw: v, reply: reply, err: err}
	}
}

// applyReconfigure installs a decided view-change entry: every
// replica, primary or backup, applies it the moment it is decided so
// the whole group agrees on membership at the same log position a
// regular client RPC would occupy.
func (m *Manager) applyReconfigure(instance paxos.InstanceId, raw paxos.Value, args []byte) {
	var view topology.View
	err := gob.NewDecoder(bytes.NewReader(args)).Decode(&view)
	if err == nil {
		m.InstallView(view)
		logger.Info("rsm: installed view %v at instance %d", view, instance)
	} else {
		logger.Error("rsm: failed to decode reconfiguration at instance %d: %v", instance, err)
	}

	m.mu.Lock()
	ch := m.pending[instance]
	delete(m.pending, instance)
	m.applied = instance
	m.mu.Unlock()

	if ch != nil {
		ch <- applyResult{raw: raw, err: err}
	}
}

// Reconfigure proposes a new view as the next log entry; once a
// majority decides it, every replica installs it via Apply. Only the
// current primary may call it, for the same reason Invoke requires
// AmIPrimary: a non-primary proposal would race a quorum's accept
// phase against whoever the group actually agrees is primary.
func (m *Manager) Reconfigure(view topology.View) error {
	buf := &bytes.Buffer{}
	if err := gob.NewEncoder(buf).Encode(view); err != nil {
		return err
	}
	_, err := m.Invoke(MethodReconfigure, buf.Bytes())
	return err
}

// StartHeartbeat launches the background monitor that detects dead
// view members: while this node is primary, it pings every other
// member on defaultHeartbeatInterval and proposes a reconfiguration
// dropping one after defaultMissThreshold consecutive misses. Call
// once; it runs until the process exits.
func (m *Manager) StartHeartbeat() {
	go m.heartbeatLoop(defaultHeartbeatInterval, defaultMissThreshold)
}

func (m *Manager) heartbeatLoop(interval time.Duration, missThreshold int) {
	misses := make(map[xid.NodeId]int)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		if !m.AmIPrimary() {
			continue
		}
		view := m.View()
		for _, node := range view.Members {
			if node == m.me {
				continue
			}
			if err := m.paxos.Ping(m.hm, string(node), interval); err != nil {
				misses[node]++
			} else {
				misses[node] = 0
			}
			if misses[node] >= missThreshold {
				misses[node] = 0
				m.suspect(node, view)
			}
		}
	}
}

// suspect proposes dropping node from view, the primary's response to
// missThreshold consecutive failed heartbeats.
func (m *Manager) suspect(node xid.NodeId, view topology.View) {
	members := make([]xid.NodeId, 0, len(view.Members))
	for _, n := range view.Members {
		if n != node {
			members = append(members, n)
		}
	}
	if len(members) == 0 {
		return
	}
	next := topology.View{ViewId: view.ViewId + 1, Members: members}
	logger.Info("rsm: suspecting %s dead, proposing view %v", node, next)
	if err := m.Reconfigure(next); err != nil {
		logger.Error("rsm: reconfiguration dropping %s failed: %v", node, err)
	}
}

func (m *Manager) handleInvokeRPC(payload []byte) (interface{}, error) {
	var args InvokeArgs
	if err := rpcwire.DecodeArgs(payload, &args); err != nil {
		return nil, err
	}
	reply, err := m.Invoke(args.Method, args.Args)
	out := &InvokeReply{}
	if err != nil {
		out.ErrMsg = err.Error()
		return out, nil
	}
	if reply != nil {
		buf := &bytes.Buffer{}
		if encErr := gob.NewEncoder(buf).Encode(reply); encErr != nil {
			return nil, encErr
		}
		out.Payload = buf.Bytes()
	}
	return out, nil
}

func (m *Manager) handleTransferRPC(payload []byte) (interface{}, error) {
	m.mu.Lock()
	st := m.transfer
	m.mu.Unlock()
	if st == nil {
		return nil, fmt.Errorf("rsm: no state transfer handler registered")
	}
	state, err := st.MarshalState()
	if err != nil {
		return nil, err
	}
	return &TransferReply{ViewId: m.View().ViewId, State: state}, nil
}

// FetchState pulls a full snapshot from addr and installs it locally
// via the registered StateTransfer, used by a recovering backup
// before it rejoins the apply pipeline.
func (m *Manager) FetchState(addr string) error {
	m.mu.Lock()
	st := m.transfer
	m.mu.Unlock()
	if st == nil {
		return fmt.Errorf("rsm: no state transfer handler registered")
	}
	reply := &TransferReply{}
	if err := m.hm.Call(addr, 0, MethodTransfer, &TransferArgs{}, reply); err != nil {
		return err
	}
	return st.UnmarshalState(reply.State)
}
