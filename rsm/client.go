package rsm

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"
	"time"

	"yfslock/internal/rpcwire"
)

// Client is the replicated-RPC stub a lock client uses to reach the
// lock server without caring which node currently holds the primary
// role: it calls the node it believes is primary, and on a "not
// primary" or transport error it rotates through the rest of the
// known member list until one accepts.
type Client struct {
	hm *rpcwire.HandleManager

	mu      sync.Mutex
	members []string
	primary int
	timeout time.Duration
}

// NewClient builds an rsm client over the given member addresses
// (order does not matter; Client discovers the live primary by trial).
func NewClient(hm *rpcwire.HandleManager, members []string, timeout time.Duration) *Client {
	return &Client{hm: hm, members: append([]string(nil), members...), timeout: timeout}
}

// Call invokes method(args) against the replicated state machine and
// decodes the reply into reply, retrying against every known member
// until one answers as primary or the member list is exhausted.
func (c *Client) Call(method string, args interface{}, reply interface{}) error {
	argBuf := &bytes.Buffer{}
	if err := gob.NewEncoder(argBuf).Encode(args); err != nil {
		return err
	}
	req := &InvokeArgs{Method: method, Args: argBuf.Bytes()}

	c.mu.Lock()
	start := c.primary
	members := append([]string(nil), c.members...)
	c.mu.Unlock()

	var lastErr error
	for i := 0; i < len(members); i++ {
		idx := (start + i) % len(members)
		addr := members[idx]

		out := &InvokeReply{}
		err := c.hm.Call(addr, c.timeout, MethodInvoke, req, out)
		if err != nil {
			c.hm.DeleteHandle(addr)
			lastErr = err
			continue
		}
		if out.ErrMsg != "" {
			lastErr = fmt.Errorf("rsm: %s", out.ErrMsg)
			continue
		}

		c.mu.Lock()
		c.primary = idx
		c.mu.Unlock()

		if reply != nil && len(out.Payload) > 0 {
			return gob.NewDecoder(bytes.NewReader(out.Payload)).Decode(reply)
		}
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("rsm: no members configured")
	}
	return lastErr
}

// CallAny invokes method(args) directly against any member that
// answers, bypassing the Invoke/Paxos log entirely. It is for RPCs a
// state machine registers directly on every replica's rpcwire.Server
// rather than through Reg (read-only queries that don't need to be
// ordered, such as lockserver's Stat).
func (c *Client) CallAny(method string, args interface{}, reply interface{}) error {
	c.mu.Lock()
	start := c.primary
	members := append([]string(nil), c.members...)
	c.mu.Unlock()

	var lastErr error
	for i := 0; i < len(members); i++ {
		idx := (start + i) % len(members)
		addr := members[idx]
		if err := c.hm.Call(addr, c.timeout, method, args, reply); err != nil {
			c.hm.DeleteHandle(addr)
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("rsm: no members configured")
	}
	return lastErr
}
