package routing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTable_FindNextHop_LongestPrefixWins(t *testing.T) {
	t.Parallel()
	tbl := NewTable()

	short, err := NewRoute("ab00", 8, "hopA", Manual, 0)
	require.NoError(t, err)
	long, err := NewRoute("ab01", 16, "hopB", RPLDao, 0)
	require.NoError(t, err)
	tbl.Add(short)
	tbl.Add(long)

	best, err := tbl.FindNextHop("ab01")
	require.NoError(t, err)
	require.Equal(t, "hopB", best.NextHop)
}

func TestTable_FindNextHop_NoMatchReturnsError(t *testing.T) {
	t.Parallel()
	tbl := NewTable()
	r, err := NewRoute("ab00", 16, "hopA", Manual, 0)
	require.NoError(t, err)
	tbl.Add(r)

	_, err = tbl.FindNextHop("cd00")
	require.ErrorIs(t, err, ErrNoNextHopRoute)
}

func TestTable_FindNextHop_EmptyTable(t *testing.T) {
	t.Parallel()
	tbl := NewTable()
	_, err := tbl.FindNextHop("ab00")
	require.ErrorIs(t, err, ErrNoNextHopRoute)
}

func TestTable_RemoveByNextHop_DropsAllReferencingRoutes(t *testing.T) {
	t.Parallel()
	tbl := NewTable()
	r1, _ := NewRoute("ab00", 8, "hopA", Manual, 0)
	r2, _ := NewRoute("cd00", 8, "hopA", RPLDio, 0)
	r3, _ := NewRoute("ef00", 8, "hopB", Manual, 0)
	tbl.Add(r1)
	tbl.Add(r2)
	tbl.Add(r3)

	removed := tbl.RemoveByNextHop("hopA")
	require.Equal(t, 2, removed)

	remaining := tbl.List(Filter{})
	require.Len(t, remaining, 1)
	require.Equal(t, "hopB", remaining[0].NextHop)
}

func TestTable_List_FiltersByType(t *testing.T) {
	t.Parallel()
	tbl := NewTable()
	r1, _ := NewRoute("ab00", 8, "hopA", Manual, 0)
	r2, _ := NewRoute("cd00", 8, "hopB", RPLDao, 0)
	tbl.Add(r1)
	tbl.Add(r2)

	daoType := RPLDao
	out := tbl.List(Filter{Type: &daoType})
	require.Len(t, out, 1)
	require.Equal(t, "hopB", out[0].NextHop)
}

func TestTable_Remove_ByDstAndPrefixLen(t *testing.T) {
	t.Parallel()
	tbl := NewTable()
	r1, _ := NewRoute("ab00", 8, "hopA", Manual, 0)
	r2, _ := NewRoute("ab00", 16, "hopB", Manual, 0)
	tbl.Add(r1)
	tbl.Add(r2)

	dst := "ab00"
	pfx := uint8(8)
	removed := tbl.Remove(Filter{Dst: &dst, PrefixLen: &pfx})
	require.Equal(t, 1, removed)
	require.Len(t, tbl.List(Filter{}), 1)
}

func TestTable_Add_SafeForConcurrentWriters(t *testing.T) {
	t.Parallel()
	tbl := NewTable()
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func(i int) {
			r, err := NewRoute("ab00", 8, i, Manual, 0)
			require.NoError(t, err)
			tbl.Add(r)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 20; i++ {
		<-done
	}
	require.Len(t, tbl.List(Filter{}), 20)
}
