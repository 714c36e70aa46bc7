package routing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRoute_RejectsMalformedAddress(t *testing.T) {
	t.Parallel()
	_, err := NewRoute("not-hex", 8, "nextHop", Manual, 0)
	require.Error(t, err)
}

func TestNewRoute_RejectsPrefixLongerThanAddress(t *testing.T) {
	t.Parallel()
	// "ab" is one byte = 8 bits.
	_, err := NewRoute("ab", 16, "nextHop", Manual, 0)
	require.ErrorIs(t, err, ErrInvalidPrefix)
}

func TestRoute_String_IncludesFields(t *testing.T) {
	t.Parallel()
	r, err := NewRoute("ab", 8, "next", Connected, 42)
	require.NoError(t, err)
	s := r.String()
	require.Contains(t, s, "ab/8")
	require.Contains(t, s, "connected")
}

func TestRouteType_String(t *testing.T) {
	t.Parallel()
	require.Equal(t, "connected", Connected.String())
	require.Equal(t, "manual", Manual.String())
	require.Equal(t, "rpl-dao", RPLDao.String())
	require.Equal(t, "rpl-dio", RPLDio.String())
	require.Equal(t, "unknown", RouteType(99).String())
}

func TestFlowLabel_CloneIsIndependentCopy(t *testing.T) {
	t.Parallel()
	f := FlowLabel{GoingDown: true, SenderRank: 5}
	c := f.Clone()
	c.SenderRank = 10
	require.Equal(t, uint16(5), f.SenderRank, "clone must not alias the original")
}

func TestRoute_NilStringIsEmpty(t *testing.T) {
	t.Parallel()
	var r *Route
	require.Equal(t, "", r.String())
}
