package paxoslog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) (*Log, string) {
	path := filepath.Join(t.TempDir(), "paxos.db")
	l, err := Open(path)
	require.NoError(t, err)
	return l, path
}

func TestReplayOnEmptyLog(t *testing.T) {
	l, _ := openTestLog(t)
	defer l.Close()

	state, err := l.Replay()
	require.NoError(t, err)
	assert.Empty(t, state.NH)
	assert.Empty(t, state.Accepted)
	assert.Empty(t, state.Decided)
	assert.Zero(t, state.MaxDecided)
}

func TestReplayAfterReopen(t *testing.T) {
	l, path := openTestLog(t)

	require.NoError(t, l.PutNH(2, 7, "n1"))
	require.NoError(t, l.PutAccepted(2, 7, "n1", []byte("accepted-v")))
	require.NoError(t, l.PutDecided(1, []byte("decided-v")))
	require.NoError(t, l.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	state, err := reopened.Replay()
	require.NoError(t, err)

	assert.Equal(t, uint64(1), state.MaxDecided)
	assert.Equal(t, []byte("decided-v"), state.Decided[1])

	nh := state.NH[2]
	assert.Equal(t, uint64(7), nh.Seq)
	assert.Equal(t, "n1", nh.Node)

	acc := state.Accepted[2]
	assert.Equal(t, uint64(7), acc.Seq)
	assert.Equal(t, []byte("accepted-v"), acc.Value)
}

func TestPutOverwritesSameInstance(t *testing.T) {
	l, _ := openTestLog(t)
	defer l.Close()

	require.NoError(t, l.PutNH(1, 3, "n1"))
	require.NoError(t, l.PutNH(1, 9, "n2"))

	state, err := l.Replay()
	require.NoError(t, err)
	assert.Equal(t, uint64(9), state.NH[1].Seq)
	assert.Equal(t, "n2", state.NH[1].Node)
}

func TestMaxDecidedTracksHighestInstance(t *testing.T) {
	l, _ := openTestLog(t)
	defer l.Close()

	require.NoError(t, l.PutDecided(1, []byte("a")))
	require.NoError(t, l.PutDecided(3, []byte("c")))
	require.NoError(t, l.PutDecided(2, []byte("b")))

	state, err := l.Replay()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), state.MaxDecided)
}
