package pdu

import (
	"context"
	"fmt"

	"github.com/malbeclabs/rplsim/internal/simerrors"
)

// Pipeline drives the encapsulation/decapsulation state machine described in
// spec.md §4.6: it wraps an outbound RPL message down through ICMP/IP/MAC/PHY
// calling each layer's before-sent hook, and on receipt unwraps PHY down
// through MAC/IP/ICMP/RPL calling each layer's after-received hook, erroring
// out of the chain the moment a layer sees something it doesn't recognize.
type Pipeline struct {
	Hooks   Hooks
	Mangler Mangler
}

// NewPipeline returns a Pipeline using hooks and the identity mangler.
func NewPipeline(hooks Hooks) *Pipeline {
	if hooks == nil {
		hooks = NopHooks{}
	}
	return &Pipeline{Hooks: hooks, Mangler: IdentityMangler}
}

// Send builds the full PHY(MAC(IP(ICMP(RPL)))) chain for msg, running each
// layer's before-sent hook in inner-to-outer order as it wraps, then applies
// the medium's mangling hook. A hook returning false aborts the send and
// Send returns a HookRejection error.
func (p *Pipeline) Send(ctx context.Context, node NodeRef, srcMAC, dstMAC, srcIP, dstIP string, msg RplMessage) (*PhyPdu, error) {
	code := CodeForMessage(msg)
	if !p.Hooks.BeforeRplSent(ctx, node, code, msg) {
		return nil, simerrors.New(simerrors.HookRejection, "pdu.Send", fmt.Errorf("rpl hook rejected message"))
	}

	icmp := &IcmpPdu{Type: ICMPTypeRPL, Code: code, Sdu: RplEnvelope{Message: msg}}
	if !p.Hooks.BeforeIcmpSent(ctx, node, icmp) {
		return nil, simerrors.New(simerrors.HookRejection, "pdu.Send", fmt.Errorf("icmp hook rejected frame"))
	}

	ip := &IpPdu{SrcIP: srcIP, DstIP: dstIP, NextHeader: ICMPTypeRPL, Sdu: icmp}
	if !p.Hooks.BeforeIpSent(ctx, node, ip) {
		return nil, simerrors.New(simerrors.HookRejection, "pdu.Send", fmt.Errorf("ip hook rejected frame"))
	}

	mac := &MacPdu{SrcMAC: srcMAC, DstMAC: dstMAC, Type: MACTypeIP, Sdu: ip}
	if !p.Hooks.BeforeMacSent(ctx, node, mac) {
		return nil, simerrors.New(simerrors.HookRejection, "pdu.Send", fmt.Errorf("mac hook rejected frame"))
	}

	phy := &PhyPdu{Sdu: mac}
	if !p.Hooks.BeforePhySent(ctx, node, phy) {
		return nil, simerrors.New(simerrors.HookRejection, "pdu.Send", fmt.Errorf("phy hook rejected frame"))
	}

	return p.Mangler(phy), nil
}

// Receive runs the full after-received chain described in spec.md §4.6 step
// by step: PHY, then MAC (gated on MACTypeIP), then IP (gated on ICMP as
// next header), then ICMP (gated on ICMPTypeRPL), then the RPL message
// itself selected by code. Any mismatch is a FormatError; any hook
// rejection is a HookRejection. Both are non-fatal: the caller logs and
// drops the frame.
func (p *Pipeline) Receive(ctx context.Context, node NodeRef, phy *PhyPdu) error {
	if !p.Hooks.AfterPhyReceived(ctx, node, phy) {
		return simerrors.New(simerrors.HookRejection, "pdu.Receive", fmt.Errorf("phy hook rejected frame"))
	}

	mac, ok := phy.Sdu.(*MacPdu)
	if !ok {
		return simerrors.New(simerrors.Format, "pdu.Receive", fmt.Errorf("phy sdu is not a mac frame"))
	}
	if !p.Hooks.AfterMacReceived(ctx, node, mac) {
		return simerrors.New(simerrors.HookRejection, "pdu.Receive", fmt.Errorf("mac hook rejected frame"))
	}

	if mac.Type != MACTypeIP {
		return simerrors.New(simerrors.Format, "pdu.Receive", fmt.Errorf("unknown mac type 0x%04x", mac.Type))
	}
	ip, ok := mac.Sdu.(*IpPdu)
	if !ok {
		return simerrors.New(simerrors.Format, "pdu.Receive", fmt.Errorf("mac sdu is not an ip packet"))
	}
	if !p.Hooks.AfterIpReceived(ctx, node, ip) {
		return simerrors.New(simerrors.HookRejection, "pdu.Receive", fmt.Errorf("ip hook rejected frame"))
	}

	if ip.NextHeader != ICMPTypeRPL {
		return simerrors.New(simerrors.Format, "pdu.Receive", fmt.Errorf("unknown ip next_header 0x%02x", ip.NextHeader))
	}
	icmp, ok := ip.Sdu.(*IcmpPdu)
	if !ok {
		return simerrors.New(simerrors.Format, "pdu.Receive", fmt.Errorf("ip sdu is not an icmp message"))
	}
	if !p.Hooks.AfterIcmpReceived(ctx, node, icmp) {
		return simerrors.New(simerrors.HookRejection, "pdu.Receive", fmt.Errorf("icmp hook rejected frame"))
	}

	if icmp.Type != ICMPTypeRPL {
		return simerrors.New(simerrors.Format, "pdu.Receive", fmt.Errorf("unknown icmp type 0x%02x", icmp.Type))
	}
	env, ok := icmp.Sdu.(RplEnvelope)
	if !ok {
		return simerrors.New(simerrors.Format, "pdu.Receive", fmt.Errorf("icmp sdu is not an rpl message"))
	}
	switch icmp.Code {
	case ICMPCodeDIS, ICMPCodeDIO, ICMPCodeDAO:
	default:
		return simerrors.New(simerrors.Format, "pdu.Receive", fmt.Errorf("unknown icmp code 0x%02x", icmp.Code))
	}
	if !p.Hooks.AfterRplReceived(ctx, node, icmp.Code, env.Message) {
		return simerrors.New(simerrors.HookRejection, "pdu.Receive", fmt.Errorf("rpl hook rejected message"))
	}
	return nil
}
