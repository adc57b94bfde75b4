package lockserver

import (
	"bytes"
	"encoding/gob"

	"yfslock/internal/rpcwire"
	"yfslock/rsm"
)

// RegisterReplicated wires Acquire/Release through the given RSM
// manager, so every replica applies them in the same Paxos-decided
// order, and answers Stat directly: it is read-only and any replica
// can serve it from locally applied state without going through
// Paxos.
func (s *Server) RegisterReplicated(m *rsm.Manager, rs *rpcwire.Server) {
	m.Reg(MethodAcquire, func(argBytes []byte) (interface{}, error) {
		var args AcquireArgs
		if err := gob.NewDecoder(bytes.NewReader(argBytes)).Decode(&args); err != nil {
			return nil, err
		}
		return s.Acquire(&args)
	})
	m.Reg(MethodRelease, func(argBytes []byte) (interface{}, error) {
		var args ReleaseArgs
		if err := gob.NewDecoder(bytes.NewReader(argBytes)).Decode(&args); err != nil {
			return nil, err
		}
		return s.Release(&args)
	})
	rs.Register(MethodStat, s.handleStatRPC)
}
