package paxos

// Wire messages for the three Paxos RPCs. These travel over
// internal/rpcwire's gob-framed transport.

type PrepareArgs struct {
	Instance InstanceId
	N        Proposal
}

type PrepareReply struct {
	// OldInstance and Accept can not both be true.
	OldInstance bool
	Accept      bool

	// valid iff OldInstance
	InstanceV Value

	// valid iff Accept
	NA Proposal
	VA Value

	// valid iff !OldInstance && !Accept: lets the proposer catch up.
	NH Proposal
}

type AcceptArgs struct {
	Instance InstanceId
	N        Proposal
	V        Value
}

type AcceptReply struct {
	Accepted bool
}

type DecideArgs struct {
	Instance InstanceId
	V        Value
}

type DecideReply struct{}

// HeartbeatArgs/HeartbeatReply carry no data: a successful round trip
// is itself the liveness signal used for view maintenance.
type HeartbeatArgs struct{}

type HeartbeatReply struct{}

const (
	MethodPrepare   = "Paxos.Prepare"
	MethodAccept    = "Paxos.Accept"
	MethodDecide    = "Paxos.Decide"
	MethodHeartbeat = "Paxos.Heartbeat"
)
