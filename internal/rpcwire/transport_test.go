package rpcwire

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type echoArgs struct {
	Msg string
}

type echoReply struct {
	Msg string
}

// TransportTest stands up one real Server on loopback TCP and drives
// it through a HandleManager, the way every other package in this
// module consumes the transport.
type TransportTest struct {
	suite.Suite

	srv *Server
	hm  *HandleManager
}

func TestTransportSuite(t *testing.T) {
	suite.Run(t, new(TransportTest))
}

func (s *TransportTest) SetupTest() {
	s.srv = NewServer("127.0.0.1:0")
	s.srv.Register("Test.Echo", func(payload []byte) (interface{}, error) {
		var args echoArgs
		if err := DecodeArgs(payload, &args); err != nil {
			return nil, err
		}
		return &echoReply{Msg: args.Msg}, nil
	})
	s.srv.Register("Test.Fail", func(payload []byte) (interface{}, error) {
		return nil, errors.New("handler exploded")
	})
	s.Require().NoError(s.srv.Start())
	s.hm = NewHandleManager(time.Second)
}

func (s *TransportTest) TearDownTest() {
	s.srv.Stop()
}

func (s *TransportTest) TestCallRoundTrip() {
	reply := &echoReply{}
	err := s.hm.Call(s.srv.Addr(), time.Second, "Test.Echo", &echoArgs{Msg: "hello"}, reply)
	s.Require().NoError(err)
	s.Equal("hello", reply.Msg)
}

func (s *TransportTest) TestHandlerErrorComesBackAsRemoteError() {
	err := s.hm.Call(s.srv.Addr(), time.Second, "Test.Fail", &echoArgs{}, &echoReply{})
	s.Require().Error(err)

	var remote RemoteError
	s.True(errors.As(err, &remote))
	s.Contains(err.Error(), "handler exploded")
}

func (s *TransportTest) TestUnknownMethodIsARemoteError() {
	err := s.hm.Call(s.srv.Addr(), time.Second, "Test.Nope", &echoArgs{}, &echoReply{})
	s.Require().Error(err)

	var remote RemoteError
	s.True(errors.As(err, &remote))
}

func (s *TransportTest) TestDialFailureSurfacesAsTransportError() {
	err := s.hm.Call("127.0.0.1:1", 200*time.Millisecond, "Test.Echo", &echoArgs{}, &echoReply{})
	s.Require().Error(err)

	var remote RemoteError
	s.False(errors.As(err, &remote), "a dial failure must not look like a handler error")
}

func (s *TransportTest) TestConnectionsAreReusedAcrossCalls() {
	for i := 0; i < 3; i++ {
		reply := &echoReply{}
		s.Require().NoError(s.hm.Call(s.srv.Addr(), time.Second, "Test.Echo", &echoArgs{Msg: "x"}, reply))
	}

	p := s.hm.poolFor(s.srv.Addr())
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(s.T(), 1, len(p.free), "sequential calls should reuse one pooled connection")
}

func (s *TransportTest) TestDeleteHandleEvictsPooledConnections() {
	reply := &echoReply{}
	s.Require().NoError(s.hm.Call(s.srv.Addr(), time.Second, "Test.Echo", &echoArgs{Msg: "x"}, reply))

	s.hm.DeleteHandle(s.srv.Addr())

	s.hm.mu.Lock()
	_, ok := s.hm.pools[s.srv.Addr()]
	s.hm.mu.Unlock()
	s.False(ok)

	// The next call dials fresh and still works.
	s.Require().NoError(s.hm.Call(s.srv.Addr(), time.Second, "Test.Echo", &echoArgs{Msg: "y"}, reply))
}

func TestServerAddrBeforeStart(t *testing.T) {
	srv := NewServer("127.0.0.1:4242")
	require.Equal(t, "127.0.0.1:4242", srv.Addr())
}
