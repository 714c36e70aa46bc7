// Package routing implements node-local RPL routes: the route record, a
// longest-prefix-match table with a pre-expanded bit-prefix cache, and the
// IP flow label RPL forwarding annotates.
package routing

import (
	"encoding/hex"
	"fmt"

	"github.com/malbeclabs/rplsim/internal/simclock"
)

// RouteType mirrors the reference simulator's ip_route_t.type: where a route
// came from.
type RouteType uint8

const (
	Connected RouteType = iota
	Manual
	RPLDao
	RPLDio
)

func (t RouteType) String() string {
	switch t {
	case Connected:
		return "connected"
	case Manual:
		return "manual"
	case RPLDao:
		return "rpl-dao"
	case RPLDio:
		return "rpl-dio"
	default:
		return "unknown"
	}
}

// FlowLabel is annotated by the RPL hook while forwarding a frame down or up
// the DODAG.
type FlowLabel struct {
	GoingDown    bool
	FromSibling  bool
	RankError    bool
	ForwardError bool
	SenderRank   uint16
}

// Clone deep-copies the flow label. IP PDU duplication must deep-copy this
// field even when shallow-copying the upper-layer SDU.
func (f FlowLabel) Clone() FlowLabel { return f }

// Route is a node-local route record. NextHop is an opaque node handle
// (compared by equality, never dereferenced by this package) so routing has
// no dependency on the node package; node.Handle satisfies this field.
type Route struct {
	Dst        string
	PrefixLen  uint8
	NextHop    any
	Type       RouteType
	UpdateTime simclock.Time

	dstBits []bool // pre-expanded bit prefix, cached for fast LPM
}

// NewRoute builds a Route, pre-expanding dst's bit prefix for longest-prefix
// matching. dst is a hex-encoded address string, mirroring the simulator's
// short hex node addresses.
func NewRoute(dst string, prefixLen uint8, nextHop any, typ RouteType, now simclock.Time) (*Route, error) {
	bits, err := expandBits(dst)
	if err != nil {
		return nil, fmt.Errorf("routing: %w", err)
	}
	if int(prefixLen) > len(bits) {
		return nil, ErrInvalidPrefix
	}
	return &Route{
		Dst:        dst,
		PrefixLen:  prefixLen,
		NextHop:    nextHop,
		Type:       typ,
		UpdateTime: now,
		dstBits:    bits,
	}, nil
}

func (r *Route) String() string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("dst=%s/%d type=%s next_hop=%v updated=%d", r.Dst, r.PrefixLen, r.Type, r.NextHop, r.UpdateTime)
}

// expandBits decodes a hex address string into its big-endian bit sequence.
func expandBits(addr string) ([]bool, error) {
	raw, err := hex.DecodeString(addr)
	if err != nil {
		return nil, fmt.Errorf("decode address %q: %w", addr, err)
	}
	bits := make([]bool, len(raw)*8)
	for i, b := range raw {
		for bit := 0; bit < 8; bit++ {
			bits[i*8+bit] = (b>>(7-bit))&1 == 1
		}
	}
	return bits, nil
}

// matchesPrefix reports whether addr's bit-expanded form shares r's prefix.
func (r *Route) matchesPrefix(addrBits []bool) bool {
	if int(r.PrefixLen) > len(addrBits) || int(r.PrefixLen) > len(r.dstBits) {
		return false
	}
	for i := 0; i < int(r.PrefixLen); i++ {
		if addrBits[i] != r.dstBits[i] {
			return false
		}
	}
	return true
}
