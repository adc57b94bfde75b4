package extentcache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yfslock/internal/xid"
)

// fakeBackend is an in-memory stand-in for the out-of-scope extent
// server, with call counters so flush-law tests can assert exactly
// one round trip happens per dirty extent.
type fakeBackend struct {
	data      map[ExtentId][]byte
	getCalls  int
	putCalls  int
	delCalls  int
	putErr    error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{data: make(map[ExtentId][]byte)}
}

func (b *fakeBackend) Get(id ExtentId) ([]byte, error) {
	b.getCalls++
	d, ok := b.data[id]
	if !ok {
		return nil, fmt.Errorf("no such extent %d", id)
	}
	return append([]byte(nil), d...), nil
}

func (b *fakeBackend) GetAttr(id ExtentId) (Attrs, error) {
	d, ok := b.data[id]
	if !ok {
		return Attrs{}, fmt.Errorf("no such extent %d", id)
	}
	return Attrs{Size: uint64(len(d))}, nil
}

func (b *fakeBackend) Put(id ExtentId, data []byte) error {
	b.putCalls++
	if b.putErr != nil {
		return b.putErr
	}
	b.data[id] = append([]byte(nil), data...)
	return nil
}

func (b *fakeBackend) Remove(id ExtentId) error {
	b.delCalls++
	delete(b.data, id)
	return nil
}

func TestGetFetchesFromBackendOnMiss(t *testing.T) {
	backend := newFakeBackend()
	backend.data[1] = []byte("hello")
	c := New(backend)

	got, err := c.Get(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	_, err = c.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.getCalls, "second Get must be served from cache")
}

func TestPutIsDirtyUntilFlushed(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend)

	c.Put(5, []byte("payload"))
	got, err := c.Get(5)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
	assert.Equal(t, 0, backend.putCalls, "a dirty write must not round-trip until flush")
}

func TestFlushLockWritesOnlyAssociatedDirtyExtents(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend)

	var lidA, lidB xid.LockId = 1, 2
	c.Associate(lidA, 10)
	c.Associate(lidA, 11)
	c.Associate(lidB, 20)

	c.Put(10, []byte("a10"))
	c.Put(11, []byte("a11"))
	c.Put(20, []byte("b20"))

	require.NoError(t, c.FlushLock(lidA))

	assert.Equal(t, []byte("a10"), backend.data[10])
	assert.Equal(t, []byte("a11"), backend.data[11])
	assert.Equal(t, 2, backend.putCalls)
	_, stillCached := backend.data[20]
	assert.False(t, stillCached, "lock B's extent must not be flushed by lock A's release")
}

func TestFlushLockDiscardsEntriesAfterFlush(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend)

	c.Associate(1, 30)
	c.Put(30, []byte("x"))
	require.NoError(t, c.FlushLock(1))

	backend.data[30] = []byte("server-truth")
	got, err := c.Get(30)
	require.NoError(t, err)
	assert.Equal(t, []byte("server-truth"), got, "post-flush Get must re-fetch, not serve stale cache")
	assert.Equal(t, 1, backend.getCalls)
}

func TestRemoveFlushesAsDeleteNotPut(t *testing.T) {
	backend := newFakeBackend()
	backend.data[40] = []byte("gone-soon")
	c := New(backend)

	c.Associate(1, 40)
	c.Remove(40)
	require.NoError(t, c.FlushLock(1))

	assert.Equal(t, 1, backend.delCalls)
	assert.Equal(t, 0, backend.putCalls)
	_, ok := backend.data[40]
	assert.False(t, ok)
}

func TestGetOnRemovedEntryFailsUntilRecreated(t *testing.T) {
	backend := newFakeBackend()
	backend.data[50] = []byte("x")
	c := New(backend)

	_, err := c.Get(50)
	require.NoError(t, err)
	c.Remove(50)

	_, err = c.Get(50)
	assert.Error(t, err)

	c.Put(50, []byte("recreated"))
	got, err := c.Get(50)
	require.NoError(t, err)
	assert.Equal(t, []byte("recreated"), got)
}

func TestFlushLockPropagatesBackendError(t *testing.T) {
	backend := newFakeBackend()
	backend.putErr = fmt.Errorf("backend unavailable")
	c := New(backend)

	c.Associate(1, 60)
	c.Put(60, []byte("x"))

	err := c.FlushLock(1)
	assert.Error(t, err)
}

func TestDoReleaseIsAnAliasForFlushLock(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend)
	c.Associate(1, 70)
	c.Put(70, []byte("y"))

	require.NoError(t, c.DoRelease(1))
	assert.Equal(t, []byte("y"), backend.data[70])
}
