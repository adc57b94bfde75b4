package lockserver

import "yfslock/internal/rpcwire"

// RegisterStandalone wires Server's RPCs directly onto an rpcwire
// server for the non-replicated deployment: no Paxos/RSM in between,
// client RPCs are applied immediately.
func (s *Server) RegisterStandalone(rs *rpcwire.Server) {
	rs.Register(MethodAcquire, s.handleAcquireRPC)
	rs.Register(MethodRelease, s.handleReleaseRPC)
	rs.Register(MethodStat, s.handleStatRPC)
}

func (s *Server) handleAcquireRPC(payload []byte) (interface{}, error) {
	var args AcquireArgs
	if err := rpcwire.DecodeArgs(payload, &args); err != nil {
		return nil, err
	}
	return s.Acquire(&args)
}

func (s *Server) handleReleaseRPC(payload []byte) (interface{}, error) {
	var args ReleaseArgs
	if err := rpcwire.DecodeArgs(payload, &args); err != nil {
		return nil, err
	}
	return s.Release(&args)
}

func (s *Server) handleStatRPC(payload []byte) (interface{}, error) {
	var args StatArgs
	if err := rpcwire.DecodeArgs(payload, &args); err != nil {
		return nil, err
	}
	return s.Stat(&args)
}
