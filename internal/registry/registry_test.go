package registry

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/rplsim/internal/neighbor"
	"github.com/malbeclabs/rplsim/internal/node"
	"github.com/malbeclabs/rplsim/internal/routing"
)

func newTestNode(name, mac, ip string) *node.Node {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return node.New(node.Config{
		Name: name, MAC: mac, IP: ip, QueueSize: 10, DispatchQueueDepth: 4,
		Neighbors: neighbor.New(2000, 1000),
	}, log)
}

func TestRegistry_Add_RejectsDuplicateName(t *testing.T) {
	t.Parallel()
	r := New()
	require.NoError(t, r.Add(newTestNode("a", "m1", "ab00")))
	err := r.Add(newTestNode("a", "m2", "cd00"))
	require.Error(t, err)
}

func TestRegistry_Add_RejectsDuplicateMAC(t *testing.T) {
	t.Parallel()
	r := New()
	require.NoError(t, r.Add(newTestNode("a", "m1", "ab00")))
	err := r.Add(newTestNode("b", "m1", "cd00"))
	require.Error(t, err)
}

func TestRegistry_Add_RejectsDuplicateIP(t *testing.T) {
	t.Parallel()
	r := New()
	require.NoError(t, r.Add(newTestNode("a", "m1", "ab00")))
	err := r.Add(newTestNode("b", "m2", "ab00"))
	require.Error(t, err)
}

func TestRegistry_Remove_UnknownNodeReportsErrorWithoutPanicking(t *testing.T) {
	t.Parallel()
	r := New()
	n := newTestNode("a", "m1", "ab00")
	// never added
	require.NotPanics(t, func() {
		err := r.Remove(n)
		require.Error(t, err)
		require.Contains(t, err.Error(), n.Handle.String())
	})
}

func TestRegistry_Remove_DropsNodeByHandle(t *testing.T) {
	t.Parallel()
	r := New()
	n := newTestNode("a", "m1", "ab00")
	require.NoError(t, r.Add(n))
	require.NoError(t, r.Remove(n))

	_, ok := r.FindByHandle(n.Handle)
	require.False(t, ok)
}

func TestRegistry_FindBy_NameMacIpHandle(t *testing.T) {
	t.Parallel()
	r := New()
	n := newTestNode("a", "m1", "ab00")
	require.NoError(t, r.Add(n))

	found, ok := r.FindByName("a")
	require.True(t, ok)
	require.Equal(t, n.Handle, found.Handle)

	found, ok = r.FindByMAC("m1")
	require.True(t, ok)
	require.Equal(t, n.Handle, found.Handle)

	found, ok = r.FindByIP("ab00")
	require.True(t, ok)
	require.Equal(t, n.Handle, found.Handle)

	found, ok = r.FindByHandle(n.Handle)
	require.True(t, ok)
	require.Equal(t, n.Handle, found.Handle)
}

func TestRegistry_FindByName_NotFound(t *testing.T) {
	t.Parallel()
	r := New()
	_, ok := r.FindByName("nope")
	require.False(t, ok)
}

func TestRegistry_ListSnapshot_IsIndependentCopy(t *testing.T) {
	t.Parallel()
	r := New()
	n := newTestNode("a", "m1", "ab00")
	require.NoError(t, r.Add(n))

	snap := r.ListSnapshot()
	require.Len(t, snap, 1)
	require.NoError(t, r.Add(newTestNode("b", "m2", "cd00")))
	require.Len(t, snap, 1, "snapshot taken before the second Add must not observe it")
}

func TestRegistry_DropRoutesReferencing_RemovesAcrossAllNodes(t *testing.T) {
	t.Parallel()
	r := New()
	a := newTestNode("a", "m1", "ab00")
	b := newTestNode("b", "m2", "cd00")
	require.NoError(t, r.Add(a))
	require.NoError(t, r.Add(b))

	route, err := routing.NewRoute("cd00", 16, b.Handle, routing.Manual, 0)
	require.NoError(t, err)
	a.Ip.Routes.Add(route)

	r.DropRoutesReferencing(b)
	require.Empty(t, a.Ip.Routes.List(routing.Filter{}))
}
