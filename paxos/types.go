// Package paxos implements single-decree Paxos per instance number, as
// described by Lamport's "Paxos Made Simple". Each node runs one
// acceptor and, when it chooses to propose, one proposer; the
// acceptor's accepted state is durably logged so a crash-and-restart
// is safe (internal/paxoslog).
package paxos

import (
	"fmt"

	"yfslock/internal/xid"
)

// InstanceId numbers a single run of Paxos. Decided instances are
// immutable and form an append-only sequence.
type InstanceId uint64

// Proposal is the (seq, node) pair that totally orders proposal
// numbers across nodes lexicographically.
type Proposal struct {
	Seq  uint64
	Node xid.NodeId
}

// Zero reports whether this is the zero-value "no proposal seen" marker.
func (p Proposal) Zero() bool { return p.Seq == 0 && p.Node == "" }

// Greater compares Seq first, then Node as a tie-breaker so two nodes
// proposing the same Seq never tie.
func (p Proposal) Greater(o Proposal) bool {
	if p.Seq != o.Seq {
		return p.Seq > o.Seq
	}
	return p.Node > o.Node
}

// GreaterEqual reports whether p is greater than or equal to o.
func (p Proposal) GreaterEqual(o Proposal) bool {
	return p.Greater(o) || p == o
}

func (p Proposal) String() string {
	return fmt.Sprintf("(%d,%s)", p.Seq, p.Node)
}

// Value is the opaque, application-supplied payload agreed upon by an
// instance (a serialized RSM log entry, in this module's only caller).
type Value []byte

// CommitUpcall is invoked once an instance is durably decided, with
// the acceptor's mutex released.
type CommitUpcall func(instance InstanceId, v Value)
