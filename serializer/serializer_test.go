package serializer

import (
	"bufio"
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStringRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	w := bufio.NewWriter(buf)
	require.NoError(t, WriteString(w, "127.0.0.1:9090"))
	require.NoError(t, w.Flush())

	r := bufio.NewReader(buf)
	got, err := ReadString(r)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9090", got)
}

func TestUint64RoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	w := bufio.NewWriter(buf)
	require.NoError(t, WriteUint64(w, 0xdeadbeefcafef00d))
	require.NoError(t, w.Flush())

	r := bufio.NewReader(buf)
	got, err := ReadUint64(r)
	require.NoError(t, err)
	require.Equal(t, uint64(0xdeadbeefcafef00d), got)
}

func TestBoolRoundTrip(t *testing.T) {
	for _, v := range []bool{true, false} {
		buf := &bytes.Buffer{}
		w := bufio.NewWriter(buf)
		require.NoError(t, WriteBool(w, v))
		require.NoError(t, w.Flush())

		r := bufio.NewReader(buf)
		got, err := ReadBool(r)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	now := time.Now().UTC().Round(0)
	buf := &bytes.Buffer{}
	w := bufio.NewWriter(buf)
	require.NoError(t, WriteTime(w, now))
	require.NoError(t, w.Flush())

	r := bufio.NewReader(buf)
	got, err := ReadTime(r)
	require.NoError(t, err)
	require.True(t, now.Equal(got))
}

func TestStringSliceRoundTrip(t *testing.T) {
	in := []string{"a", "bb", "", "ccc"}
	buf := &bytes.Buffer{}
	w := bufio.NewWriter(buf)
	require.NoError(t, WriteStringSlice(w, in))
	require.NoError(t, w.Flush())

	r := bufio.NewReader(buf)
	got, err := ReadStringSlice(r)
	require.NoError(t, err)
	require.Equal(t, in, got)
}

func TestEmptyStringSliceRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	w := bufio.NewWriter(buf)
	require.NoError(t, WriteStringSlice(w, nil))
	require.NoError(t, w.Flush())

	r := bufio.NewReader(buf)
	got, err := ReadStringSlice(r)
	require.NoError(t, err)
	require.Len(t, got, 0)
}
