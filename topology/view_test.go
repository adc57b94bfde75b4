package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"yfslock/internal/xid"
)

func TestNewContainerSeedsViewOne(t *testing.T) {
	c := NewContainer([]xid.NodeId{"n1", "n2", "n3"})
	v := c.Current()
	assert.EqualValues(t, 1, v.ViewId)
	assert.Equal(t, xid.NodeId("n1"), v.Primary())
}

func TestAmIPrimary(t *testing.T) {
	c := NewContainer([]xid.NodeId{"n1", "n2"})
	assert.True(t, c.AmIPrimary("n1"))
	assert.False(t, c.AmIPrimary("n2"))
}

func TestInstallRejectsOldOrEqualView(t *testing.T) {
	c := NewContainer([]xid.NodeId{"n1", "n2"})

	assert.False(t, c.Install(View{ViewId: 1, Members: []xid.NodeId{"n2", "n1"}}))
	assert.Equal(t, xid.NodeId("n1"), c.Current().Primary())

	assert.True(t, c.Install(View{ViewId: 2, Members: []xid.NodeId{"n2", "n1"}}))
	assert.Equal(t, xid.NodeId("n2"), c.Current().Primary())

	assert.False(t, c.Install(View{ViewId: 2, Members: []xid.NodeId{"n1", "n2"}}))
	assert.Equal(t, xid.NodeId("n2"), c.Current().Primary())
}

func TestViewContains(t *testing.T) {
	v := View{ViewId: 1, Members: []xid.NodeId{"a", "b"}}
	assert.True(t, v.Contains("a"))
	assert.False(t, v.Contains("c"))
}
