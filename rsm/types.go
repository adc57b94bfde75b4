package rsm

// LogEntry is the value agreed upon by one Paxos instance in this
// replicated state machine: a single client RPC awaiting application.
type LogEntry struct {
	Method string
	Args   []byte
}

// Handler applies one decided log entry's argument bytes to the
// underlying state machine and returns the reply to send back to the
// client (or an error).
type Handler func(args []byte) (reply interface{}, err error)

// StateTransfer lets a state machine snapshot and restore itself so a
// recovering backup can catch up without replaying the full log.
type StateTransfer interface {
	MarshalState() ([]byte, error)
	UnmarshalState(blob []byte) error
}

// InvokeArgs is the wire request a client sends to the current primary.
type InvokeArgs struct {
	Method string
	Args   []byte
}

// InvokeReply carries either a gob-encoded reply payload or an error
// string (including "not primary", on which the client moves on to
// the next known member).
type InvokeReply struct {
	Payload []byte
	ErrMsg  string
}

const MethodInvoke = "RSM.Invoke"

// TransferArgs/TransferReply support a recovering backup pulling a
// full snapshot from the primary.
type TransferArgs struct{}

type TransferReply struct {
	ViewId uint64
	State  []byte
}

const MethodTransfer = "RSM.Transfer"

// MethodReconfigure is a reserved LogEntry method: Apply installs its
// payload (a gob-encoded topology.View) directly through InstallView
// instead of dispatching it to a registered Handler. It travels
// through the same Paxos log as every other client RPC, so every
// replica applies the new view at the same instance.
const MethodReconfigure = "RSM.Reconfigure"
