package paxos

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yfslock/internal/paxoslog"
	"yfslock/internal/xid"
)

func TestPrepareGrantsHigherProposal(t *testing.T) {
	a, err := newAcceptor("n1", nil, nil)
	require.NoError(t, err)

	reply, err := a.handlePrepare(&PrepareArgs{Instance: 1, N: Proposal{Seq: 1, Node: "n1"}})
	require.NoError(t, err)
	assert.True(t, reply.Accept)
	assert.False(t, reply.OldInstance)
}

func TestPrepareRejectsLowerProposalAndReturnsNH(t *testing.T) {
	a, err := newAcceptor("n1", nil, nil)
	require.NoError(t, err)

	_, err = a.handlePrepare(&PrepareArgs{Instance: 1, N: Proposal{Seq: 5, Node: "n1"}})
	require.NoError(t, err)

	reply, err := a.handlePrepare(&PrepareArgs{Instance: 1, N: Proposal{Seq: 3, Node: "n2"}})
	require.NoError(t, err)
	assert.False(t, reply.Accept)
	assert.Equal(t, Proposal{Seq: 5, Node: "n1"}, reply.NH)
}

func TestPrepareOnDecidedInstanceReturnsOldInstance(t *testing.T) {
	a, err := newAcceptor("n1", nil, nil)
	require.NoError(t, err)

	_, err = a.handleDecide(&DecideArgs{Instance: 1, V: Value("X")})
	require.NoError(t, err)

	reply, err := a.handlePrepare(&PrepareArgs{Instance: 1, N: Proposal{Seq: 99, Node: "n2"}})
	require.NoError(t, err)
	assert.True(t, reply.OldInstance)
	assert.Equal(t, Value("X"), reply.InstanceV)
}

func TestAcceptRequiresAtLeastNH(t *testing.T) {
	a, err := newAcceptor("n1", nil, nil)
	require.NoError(t, err)

	_, err = a.handlePrepare(&PrepareArgs{Instance: 1, N: Proposal{Seq: 5, Node: "n1"}})
	require.NoError(t, err)

	low, err := a.handleAccept(&AcceptArgs{Instance: 1, N: Proposal{Seq: 3, Node: "n2"}, V: Value("lo")})
	require.NoError(t, err)
	assert.False(t, low.Accepted)

	high, err := a.handleAccept(&AcceptArgs{Instance: 1, N: Proposal{Seq: 5, Node: "n1"}, V: Value("hi")})
	require.NoError(t, err)
	assert.True(t, high.Accepted)
}

func TestDecideOnlyAdvancesInOrder(t *testing.T) {
	commits := make(chan InstanceId, 2)
	a, err := newAcceptor("n1", nil, func(instance InstanceId, v Value) { commits <- instance })
	require.NoError(t, err)

	_, err = a.handleDecide(&DecideArgs{Instance: 1, V: Value("X")})
	require.NoError(t, err)
	assert.Equal(t, InstanceId(1), <-commits)

	// re-delivery of an already-decided instance is an idempotent no-op.
	_, err = a.handleDecide(&DecideArgs{Instance: 1, V: Value("X")})
	require.NoError(t, err)

	assert.Equal(t, InstanceId(1), a.maxDecided())
}

func TestDecideGapPanics(t *testing.T) {
	a, err := newAcceptor("n1", nil, nil)
	require.NoError(t, err)

	assert.Panics(t, func() {
		a.handleDecide(&DecideArgs{Instance: 3, V: Value("X")})
	})
}

func TestBallotResetsAfterDecide(t *testing.T) {
	a, err := newAcceptor("n1", nil, nil)
	require.NoError(t, err)

	_, err = a.handlePrepare(&PrepareArgs{Instance: 1, N: Proposal{Seq: 5, Node: "n1"}})
	require.NoError(t, err)
	_, err = a.handleAccept(&AcceptArgs{Instance: 1, N: Proposal{Seq: 5, Node: "n1"}, V: Value("X")})
	require.NoError(t, err)
	_, err = a.handleDecide(&DecideArgs{Instance: 1, V: Value("X")})
	require.NoError(t, err)

	assert.True(t, a.getNH().Zero())

	reply, err := a.handlePrepare(&PrepareArgs{Instance: 2, N: Proposal{Seq: 1, Node: "n2"}})
	require.NoError(t, err)
	assert.True(t, reply.Accept)
	assert.True(t, reply.NA.Zero())
}

// A restarted acceptor replays its durable log and resumes with the
// same decided values and ballot state it crashed with.
func TestAcceptorReplaysDurableLogAfterRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paxos.db")
	log, err := paxoslog.Open(path)
	require.NoError(t, err)

	a, err := newAcceptor("n1", log, nil)
	require.NoError(t, err)

	_, err = a.handlePrepare(&PrepareArgs{Instance: 1, N: Proposal{Seq: 5, Node: "n2"}})
	require.NoError(t, err)
	_, err = a.handleAccept(&AcceptArgs{Instance: 1, N: Proposal{Seq: 5, Node: "n2"}, V: Value("X")})
	require.NoError(t, err)
	_, err = a.handleDecide(&DecideArgs{Instance: 1, V: Value("X")})
	require.NoError(t, err)

	_, err = a.handlePrepare(&PrepareArgs{Instance: 2, N: Proposal{Seq: 9, Node: "n3"}})
	require.NoError(t, err)
	require.NoError(t, log.Close())

	reopened, err := paxoslog.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	restarted, err := newAcceptor("n1", reopened, nil)
	require.NoError(t, err)

	v, have := restarted.status(1)
	require.True(t, have)
	assert.Equal(t, Value("X"), v)
	assert.Equal(t, InstanceId(1), restarted.maxDecided())
	assert.Equal(t, Proposal{Seq: 9, Node: "n3"}, restarted.getNH())
}

func TestProposalOrdering(t *testing.T) {
	assert.True(t, (Proposal{Seq: 2, Node: "a"}).Greater(Proposal{Seq: 1, Node: "z"}))
	assert.True(t, (Proposal{Seq: 1, Node: "b"}).Greater(Proposal{Seq: 1, Node: "a"}))
	assert.False(t, (Proposal{Seq: 1, Node: "a"}).Greater(Proposal{Seq: 1, Node: "a"}))

	var nid xid.NodeId = "n1"
	p := Proposal{Seq: 1, Node: nid}
	assert.Equal(t, "(1,n1)", p.String())
}
