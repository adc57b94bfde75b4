// Package topology tracks the current replicated-state-machine view:
// an ordered member list whose first entry is always the primary.
package topology

import (
	"fmt"
	"sync"

	"yfslock/internal/xid"
)

// View is one generation of RSM group membership. Views change only
// through Paxos-decided reconfiguration entries; the zero ViewId is
// never assigned to a real view.
type View struct {
	ViewId  uint64
	Members []xid.NodeId
}

// Primary returns the first member of the view, or the zero NodeId if
// the view has no members.
func (v View) Primary() xid.NodeId {
	if len(v.Members) == 0 {
		return ""
	}
	return v.Members[0]
}

// Contains reports whether node is a member of this view.
func (v View) Contains(node xid.NodeId) bool {
	for _, m := range v.Members {
		if m == node {
			return true
		}
	}
	return false
}

func (v View) String() string {
	return fmt.Sprintf("view(%d, %v)", v.ViewId, v.Members)
}

// Container holds the locally known current view behind one RWMutex;
// installs are monotonic by ViewId.
type Container struct {
	mu      sync.RWMutex
	current View
}

// NewContainer builds a container seeded with the given initial view
// (view id 1, the members the process was launched with).
func NewContainer(initial []xid.NodeId) *Container {
	return &Container{current: View{ViewId: 1, Members: append([]xid.NodeId(nil), initial...)}}
}

// Current returns the presently installed view.
func (c *Container) Current() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Install replaces the current view, provided newView is a later
// generation; installing an older or equal ViewId is a no-op so
// out-of-order reconfiguration entries from Paxos (replayed during
// catch-up) can never move the view backwards.
func (c *Container) Install(newView View) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if newView.ViewId <= c.current.ViewId {
		return false
	}
	c.current = newView
	return true
}

// AmIPrimary reports whether me is the primary of the current view.
func (c *Container) AmIPrimary(me xid.NodeId) bool {
	return c.Current().Primary() == me
}
