// Package extentcache is the per-extent write-back cache (C5) used by
// the (out-of-scope) FUSE file-system client: reads are served from
// cache when present, writes mark an entry dirty without round-
// tripping the extent server, and a lock's holder synchronously
// flushes and discards every extent it protected at the moment the
// lock client hands the lock back (lockclient.ReleaseFlusher).
package extentcache

import (
	"fmt"
	"sync"
	"time"

	"yfslock/internal/xid"
)

// ExtentId is the 64-bit id an extent is addressed by; it doubles as
// an inode number in the surrounding file system (high bit 1 => file,
// 0 => directory; root is 1).
type ExtentId uint64

// Attrs mirrors the extent server's getattr reply.
type Attrs struct {
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
	Size  uint64
}

// entry is one cached extent.
type entry struct {
	data    []byte
	attrs   Attrs
	dirty   bool
	removed bool
}

// Backend is the out-of-scope extent server client this cache fetches
// from on a miss and flushes to on release.
type Backend interface {
	Get(id ExtentId) ([]byte, error)
	GetAttr(id ExtentId) (Attrs, error)
	Put(id ExtentId, data []byte) error
	Remove(id ExtentId) error
}

// Cache is a single-thread-safe extent cache: callers are assumed to
// hold the distributed lock protecting each extent they touch, so the
// only concurrency this type itself serializes is bookkeeping, not
// cross-client coherence (that is the lock service's job).
type Cache struct {
	backend Backend

	mu      sync.Mutex
	entries map[ExtentId]*entry
	byLock  map[xid.LockId]map[ExtentId]struct{}
}

// New builds an empty cache fronting backend.
func New(backend Backend) *Cache {
	return &Cache{
		backend: backend,
		entries: make(map[ExtentId]*entry),
		byLock:  make(map[xid.LockId]map[ExtentId]struct{}),
	}
}

// Associate records that id is protected by lid, so a later FlushLock
// for lid flushes and discards it. The FS layer (out of scope here)
// calls this whenever it creates or first touches an extent while
// holding a lock.
func (c *Cache) Associate(lid xid.LockId, id ExtentId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.byLock[lid]
	if !ok {
		set = make(map[ExtentId]struct{})
		c.byLock[lid] = set
	}
	set[id] = struct{}{}
}

func (c *Cache) entryFor(id ExtentId) *entry {
	e, ok := c.entries[id]
	if !ok {
		e = &entry{}
		c.entries[id] = e
	}
	return e
}

// Get returns id's data, fetching from the backend on a cache miss.
func (c *Cache) Get(id ExtentId) ([]byte, error) {
	c.mu.Lock()
	if e, ok := c.entries[id]; ok {
		if e.removed {
			c.mu.Unlock()
			return nil, fmt.Errorf("extentcache: %d removed", id)
		}
		data := append([]byte(nil), e.data...)
		c.mu.Unlock()
		return data, nil
	}
	c.mu.Unlock()

	data, err := c.backend.Get(id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	e := c.entryFor(id)
	e.data = data
	c.mu.Unlock()
	return append([]byte(nil), data...), nil
}

// GetAttr returns id's attributes, fetching from the backend on a miss.
func (c *Cache) GetAttr(id ExtentId) (Attrs, error) {
	c.mu.Lock()
	if e, ok := c.entries[id]; ok && !e.removed {
		attrs := e.attrs
		c.mu.Unlock()
		return attrs, nil
	}
	c.mu.Unlock()

	attrs, err := c.backend.GetAttr(id)
	if err != nil {
		return Attrs{}, err
	}
	c.mu.Lock()
	e := c.entryFor(id)
	e.attrs = attrs
	c.mu.Unlock()
	return attrs, nil
}

// Put writes data into the cache and marks id dirty; it does not
// round-trip the backend until a flush.
func (c *Cache) Put(id ExtentId, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryFor(id)
	e.data = append([]byte(nil), data...)
	e.attrs.Size = uint64(len(data))
	e.attrs.Mtime = time.Now()
	e.removed = false
	e.dirty = true
}

// Remove marks id removed, so subsequent Gets fail until it is
// recreated, and flushes a Remove to the backend instead of a Put.
func (c *Cache) Remove(id ExtentId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryFor(id)
	e.removed = true
	e.dirty = true
}

// FlushLock implements lockclient.ReleaseFlusher: it synchronously
// writes every dirty extent associated with lid to the backend, then
// discards the cache entries, so the next acquirer of lid sees a
// consistent view from the extent server rather than this client's
// in-memory state.
func (c *Cache) FlushLock(lid xid.LockId) error {
	c.mu.Lock()
	ids := c.byLock[lid]
	delete(c.byLock, lid)
	type flush struct {
		id      ExtentId
		data    []byte
		removed bool
	}
	pending := make([]flush, 0, len(ids))
	for id := range ids {
		e, ok := c.entries[id]
		if !ok || !e.dirty {
			continue
		}
		pending = append(pending, flush{id: id, data: e.data, removed: e.removed})
	}
	c.mu.Unlock()

	for _, f := range pending {
		var err error
		if f.removed {
			err = c.backend.Remove(f.id)
		} else {
			err = c.backend.Put(f.id, f.data)
		}
		if err != nil {
			return fmt.Errorf("extentcache: flush %d: %w", f.id, err)
		}
	}

	c.mu.Lock()
	for id := range ids {
		delete(c.entries, id)
	}
	c.mu.Unlock()
	return nil
}

// DoRelease satisfies lockclient.ReleaseFlusher directly.
func (c *Cache) DoRelease(lid xid.LockId) error { return c.FlushLock(lid) }
