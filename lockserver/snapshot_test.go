package lockserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"yfslock/internal/rpcwire"
)

type SnapshotTest struct {
	suite.Suite
}

func TestSnapshotSuite(t *testing.T) {
	suite.Run(t, new(SnapshotTest))
}

func newTestServer() *Server {
	return New(Config{Handles: rpcwire.NewHandleManager(time.Second), CallTimeout: time.Second})
}

// Snapshot round-trip: unmarshal(marshal(S)) == S for a state with a
// FREE lock, a REVOKED lock with a populated wait queue, and dedup
// contexts.
func (s *SnapshotTest) TestRoundTrip() {
	src := newTestServer()

	_, err := src.Acquire(&AcquireArgs{Lid: 1, ClientId: "A", Xid: 1})
	s.Require().NoError(err)
	_, err = src.Release(&ReleaseArgs{Lid: 1, ClientId: "A", Xid: 1})
	s.Require().NoError(err)

	_, err = src.Acquire(&AcquireArgs{Lid: 2, ClientId: "A", Xid: 1})
	s.Require().NoError(err)
	_, err = src.Acquire(&AcquireArgs{Lid: 2, ClientId: "B", Xid: 1})
	s.Require().NoError(err)
	_, err = src.Acquire(&AcquireArgs{Lid: 2, ClientId: "C", Xid: 1})
	s.Require().NoError(err)

	blob, err := src.MarshalState()
	s.Require().NoError(err)

	dst := newTestServer()
	s.Require().NoError(dst.UnmarshalState(blob))

	src.mu.Lock()
	dst.mu.Lock()
	defer src.mu.Unlock()
	defer dst.mu.Unlock()

	s.Equal(len(src.locks), len(dst.locks))
	for lid, srcE := range src.locks {
		dstE, ok := dst.locks[lid]
		s.Require().True(ok, "missing lock %v after round-trip", lid)
		s.Equal(srcE.status, dstE.status)
		s.Equal(srcE.owner, dstE.owner)
		s.Equal(srcE.nacquire, dstE.nacquire)
		s.Equal(srcE.waitQ.all(), dstE.waitQ.all())
		s.Equal(len(srcE.clients), len(dstE.clients))
		for cid, srcCtx := range srcE.clients {
			dstCtx, ok := dstE.clients[cid]
			s.Require().True(ok)
			s.Equal(srcCtx.lastXidAcquire, dstCtx.lastXidAcquire)
			s.Equal(srcCtx.lastAcquireReply, dstCtx.lastAcquireReply)
			s.Equal(srcCtx.lastXidRelease, dstCtx.lastXidRelease)
			s.Equal(srcCtx.lastReleaseReply, dstCtx.lastReleaseReply)
		}
	}
}

func (s *SnapshotTest) TestUnmarshalRejectsTrailingBytes() {
	src := newTestServer()
	blob, err := src.MarshalState()
	s.Require().NoError(err)

	dst := newTestServer()
	err = dst.UnmarshalState(append(blob, 0xff))
	require.Error(s.T(), err)
}
